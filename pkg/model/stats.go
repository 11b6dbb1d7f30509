package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PeriodStats is one row of the daily or hourly aggregate.
type PeriodStats struct {
	Period             time.Time       `json:"period"`
	TxCount            int64           `json:"tx_count"`
	FailedTxCount      int64           `json:"failed_tx_count"`
	FailureRate        decimal.Decimal `json:"failure_rate"`
	TotalValue         decimal.Decimal `json:"total_value"`
	TotalGasUsed       decimal.Decimal `json:"total_gas_used"`
	TotalGasCost       decimal.Decimal `json:"total_gas_cost"`
	AvgGasPrice        decimal.Decimal `json:"avg_gas_price"`
	UniqueSenders      int64           `json:"unique_senders"`
	UniqueReceivers    int64           `json:"unique_receivers"`
	UniqueContracts    int64           `json:"unique_contracts"`
	TokenTransferCount int64           `json:"token_transfer_count"`
}

// AddressActivity is one row of the top-addresses aggregate.
type AddressActivity struct {
	Address       string          `json:"address"`
	TxCount       int64           `json:"tx_count"`
	SentCount     int64           `json:"sent_count"`
	ReceivedCount int64           `json:"received_count"`
	TotalSent     decimal.Decimal `json:"total_sent"`
	TotalReceived decimal.Decimal `json:"total_received"`
	FirstSeen     time.Time       `json:"first_seen"`
	LastSeen      time.Time       `json:"last_seen"`
}
