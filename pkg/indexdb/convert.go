package indexdb

import (
	"github.com/shopspring/decimal"

	"github.com/chainsafe/evm-indexer/pkg/indexdb/dao"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func fromNullDecimal(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func derefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func toBlockDao(b *model.Block) *dao.BlockDao {
	return &dao.BlockDao{
		Number:     int64(b.Number),
		Hash:       b.Hash,
		ParentHash: b.ParentHash,
		Timestamp:  b.Timestamp.UTC(),
		TxCount:    b.TxCount,
		GasUsed:    b.GasUsed,
		GasLimit:   b.GasLimit,
		BaseFee:    nullDecimal(b.BaseFee),
		Miner:      b.Miner,
	}
}

func toBlock(d *dao.BlockDao) *model.Block {
	return &model.Block{
		Number:     uint64(d.Number),
		Hash:       d.Hash,
		ParentHash: d.ParentHash,
		Timestamp:  d.Timestamp,
		TxCount:    d.TxCount,
		GasUsed:    d.GasUsed,
		GasLimit:   d.GasLimit,
		BaseFee:    fromNullDecimal(d.BaseFee),
		Miner:      d.Miner,
	}
}

func toTransactionDao(t *model.Transaction) *dao.TransactionDao {
	return &dao.TransactionDao{
		Hash:                 t.Hash,
		BlockNumber:          int64(t.BlockNumber),
		TxIndex:              int(t.Index),
		FromAddress:          t.From,
		ToAddress:            optString(t.To),
		Value:                t.Value,
		GasLimit:             t.GasLimit,
		GasPrice:             nullDecimal(t.GasPrice),
		GasUsed:              nullDecimal(t.GasUsed),
		MaxFeePerGas:         nullDecimal(t.MaxFeePerGas),
		MaxPriorityFeePerGas: nullDecimal(t.MaxPriorityFeePerGas),
		Nonce:                int64(t.Nonce),
		Status:               string(t.Status),
		TxType:               int16(t.Type),
		ContractAddress:      optString(t.ContractAddress),
		MethodID:             optString(t.MethodID),
		DecodedMethod:        optString(t.DecodedMethod),
		Metadata:             t.Metadata,
	}
}

func toTokenTransferDao(t *model.TokenTransfer) *dao.TokenTransferDao {
	return &dao.TokenTransferDao{
		TxHash:       t.TxHash,
		LogIndex:     int(t.LogIndex),
		BlockNumber:  int64(t.BlockNumber),
		TokenAddress: t.TokenAddress,
		FromAddress:  t.From,
		ToAddress:    t.To,
		Amount:       t.Amount,
		TokenID:      nullDecimal(t.TokenID),
		Standard:     string(t.Standard),
	}
}

func toContractEventDao(e *model.ContractEvent) *dao.ContractEventDao {
	row := &dao.ContractEventDao{
		TxHash:          e.TxHash,
		LogIndex:        int(e.LogIndex),
		BlockNumber:     int64(e.BlockNumber),
		ContractAddress: e.ContractAddress,
		Data:            e.Data,
		EventName:       optString(e.EventName),
		Decoded:         e.Decoded,
	}
	topics := []**string{&row.Topic0, &row.Topic1, &row.Topic2, &row.Topic3}
	for i, topic := range e.Topics {
		if i >= len(topics) {
			break
		}
		*topics[i] = optString(topic)
	}
	return row
}

func toAlertDao(a *model.Alert) *dao.AlertDao {
	row := &dao.AlertDao{
		ID:        a.ID,
		RuleName:  a.RuleName,
		AlertType: a.Type,
		Severity:  string(a.Severity),
		Title:     a.Title,
		Message:   a.Message,
		TxHash:    optString(a.TxHash),
		Address:   optString(a.Address),
		Metadata:  a.Metadata,
		DedupKey:  a.DedupKey,
	}
	if a.BlockNumber != nil {
		n := int64(*a.BlockNumber)
		row.BlockNumber = &n
	}
	return row
}

func toAlert(d *dao.AlertDao) *model.Alert {
	a := &model.Alert{
		ID:              d.ID,
		RuleName:        d.RuleName,
		Type:            d.AlertType,
		Severity:        model.Severity(d.Severity),
		Title:           d.Title,
		Message:         d.Message,
		TxHash:          derefString(d.TxHash),
		Address:         derefString(d.Address),
		Metadata:        d.Metadata,
		DedupKey:        d.DedupKey,
		Acknowledged:    d.Acknowledged,
		AcknowledgedAt:  d.AcknowledgedAt,
		AcknowledgedBy:  derefString(d.AcknowledgedBy),
		Notified:        d.Notified,
		NotifiedAt:      d.NotifiedAt,
		NotifyAttempts:  d.NotifyAttempts,
		LastNotifyError: derefString(d.LastNotifyError),
		CreatedAt:       d.CreatedAt,
	}
	if d.BlockNumber != nil {
		n := uint64(*d.BlockNumber)
		a.BlockNumber = &n
	}
	return a
}

func toWatchedAddressDao(w *model.WatchedAddress) *dao.WatchedAddressDao {
	sev := w.Severity
	if sev == "" {
		sev = model.SeverityWarning
	}
	return &dao.WatchedAddressDao{
		Address:         model.NormalizeAddress(w.Address),
		Label:           w.Label,
		Reason:          w.Reason,
		Severity:        string(sev),
		AlertOnActivity: w.AlertOnActivity,
	}
}

func toWatchedAddress(d *dao.WatchedAddressDao) model.WatchedAddress {
	return model.WatchedAddress{
		Address:         d.Address,
		Label:           d.Label,
		Reason:          d.Reason,
		Severity:        model.Severity(d.Severity),
		AlertOnActivity: d.AlertOnActivity,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}
}

func toPeriodStats(d *dao.PeriodStatsDao) model.PeriodStats {
	return model.PeriodStats{
		Period:             d.Period,
		TxCount:            d.TxCount,
		FailedTxCount:      d.FailedTxCount,
		FailureRate:        d.FailureRate,
		TotalValue:         d.TotalValue,
		TotalGasUsed:       d.TotalGasUsed,
		TotalGasCost:       d.TotalGasCost,
		AvgGasPrice:        d.AvgGasPrice,
		UniqueSenders:      d.UniqueSenders,
		UniqueReceivers:    d.UniqueReceivers,
		UniqueContracts:    d.UniqueContracts,
		TokenTransferCount: d.TokenTransferCount,
	}
}

func toAddressActivity(d *dao.AddressActivityDao) model.AddressActivity {
	return model.AddressActivity{
		Address:       d.Address,
		TxCount:       d.TxCount,
		SentCount:     d.SentCount,
		ReceivedCount: d.ReceivedCount,
		TotalSent:     d.TotalSent,
		TotalReceived: d.TotalReceived,
		FirstSeen:     d.FirstSeen,
		LastSeen:      d.LastSeen,
	}
}
