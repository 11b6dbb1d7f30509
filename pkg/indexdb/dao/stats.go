package dao

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// PeriodStatsDao maps rows of the 'daily_stats' and 'hourly_stats' materialized views.
type PeriodStatsDao struct {
	bun.BaseModel      `bun:"table:daily_stats,alias:s"`
	Period             time.Time       `bun:"period"`
	TxCount            int64           `bun:"tx_count"`
	FailedTxCount      int64           `bun:"failed_tx_count"`
	FailureRate        decimal.Decimal `bun:"failure_rate"`
	TotalValue         decimal.Decimal `bun:"total_value"`
	TotalGasUsed       decimal.Decimal `bun:"total_gas_used"`
	TotalGasCost       decimal.Decimal `bun:"total_gas_cost"`
	AvgGasPrice        decimal.Decimal `bun:"avg_gas_price"`
	UniqueSenders      int64           `bun:"unique_senders"`
	UniqueReceivers    int64           `bun:"unique_receivers"`
	UniqueContracts    int64           `bun:"unique_contracts"`
	TokenTransferCount int64           `bun:"token_transfer_count"`
}

// AddressActivityDao maps rows of the 'top_addresses' materialized view.
type AddressActivityDao struct {
	bun.BaseModel `bun:"table:top_addresses,alias:a"`
	Address       string          `bun:"address"`
	TxCount       int64           `bun:"tx_count"`
	SentCount     int64           `bun:"sent_count"`
	ReceivedCount int64           `bun:"received_count"`
	TotalSent     decimal.Decimal `bun:"total_sent"`
	TotalReceived decimal.Decimal `bun:"total_received"`
	FirstSeen     time.Time       `bun:"first_seen"`
	LastSeen      time.Time       `bun:"last_seen"`
}
