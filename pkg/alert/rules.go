package alert

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/chainsafe/evm-indexer/pkg/model"
)

func dedupKey(parts ...any) string {
	key := ""
	for i, p := range parts {
		if i > 0 {
			key += ":"
		}
		key += fmt.Sprint(p)
	}
	return key
}

func parseThreshold(spec RuleSpec) (decimal.Decimal, error) {
	if spec.Threshold == "" {
		return decimal.Decimal{}, errors.New("threshold is required")
	}
	d, err := decimal.NewFromString(spec.Threshold)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid threshold: %w", err)
	}
	if d.IsNegative() {
		return decimal.Decimal{}, errors.New("threshold must not be negative")
	}
	return d, nil
}

func blockRef(b *model.BlockBundle) *uint64 {
	n := b.Block.Number
	return &n
}

// watchedAddressRule fires once per transaction and watched address it touches.
type watchedAddressRule struct {
	name     string
	severity model.Severity
}

func newWatchedAddressRule(spec RuleSpec) (Rule, error) {
	sev, err := model.ParseSeverity(spec.Severity)
	if err != nil {
		return nil, err
	}
	return &watchedAddressRule{name: spec.Name, severity: sev}, nil
}

func (r *watchedAddressRule) Name() string { return r.name }

func (r *watchedAddressRule) Evaluate(_ context.Context, in *Input) ([]*model.Alert, error) {
	if len(in.Watched) == 0 {
		return nil, nil
	}
	var out []*model.Alert
	for i := range in.Batch.Transactions {
		tx := &in.Batch.Transactions[i]
		for _, addr := range tx.Addresses() {
			w, ok := in.Watched[addr]
			if !ok || !w.AlertOnActivity {
				continue
			}
			sev := w.Severity
			if sev.Rank() == 0 {
				sev = r.severity
			}
			name := addr
			if w.Label != "" {
				name = fmt.Sprintf("%s (%s)", w.Label, addr)
			}
			msg := fmt.Sprintf("Transaction %s in block %d involves watched address %s as %s",
				tx.Hash, tx.BlockNumber, name, roleOf(tx, addr))
			if w.Reason != "" {
				msg += ": " + w.Reason
			}
			out = append(out, &model.Alert{
				RuleName:    r.name,
				Type:        TypeWatchedAddress,
				Severity:    sev,
				Title:       "Activity on watched address " + name,
				Message:     msg,
				TxHash:      tx.Hash,
				BlockNumber: blockRef(in.Batch),
				Address:     addr,
				Metadata: map[string]any{
					"role":   roleOf(tx, addr),
					"label":  w.Label,
					"reason": w.Reason,
					"value":  tx.Value.String(),
					"status": string(tx.Status),
				},
				DedupKey: dedupKey(r.name, tx.Hash, addr),
			})
		}
	}
	return out, nil
}

func roleOf(tx *model.Transaction, addr string) string {
	switch addr {
	case tx.From:
		return "sender"
	case tx.To:
		return "recipient"
	default:
		return "created_contract"
	}
}

// failedTxRateRule fires when more than threshold transactions failed within the
// window ending at the batch's block time. It fires at most once per window.
type failedTxRateRule struct {
	name      string
	severity  model.Severity
	threshold int64
	window    time.Duration
}

func newFailedTxRateRule(spec RuleSpec) (Rule, error) {
	sev, err := model.ParseSeverity(spec.Severity)
	if err != nil {
		return nil, err
	}
	d, err := parseThreshold(spec)
	if err != nil {
		return nil, err
	}
	if !d.IsInteger() {
		return nil, errors.New("threshold must be a whole number of transactions")
	}
	if spec.Window <= 0 {
		return nil, errors.New("window is required")
	}
	return &failedTxRateRule{name: spec.Name, severity: sev, threshold: d.IntPart(), window: spec.Window}, nil
}

func (r *failedTxRateRule) Name() string { return r.name }

func (r *failedTxRateRule) Evaluate(ctx context.Context, in *Input) ([]*model.Alert, error) {
	failedInBatch := 0
	for i := range in.Batch.Transactions {
		if in.Batch.Transactions[i].Status == model.TxStatusFailed {
			failedInBatch++
		}
	}
	if failedInBatch == 0 || in.Failures == nil {
		return nil, nil
	}

	end := in.Batch.Block.Timestamp
	start := end.Add(-r.window)
	count, err := in.Failures.CountFailedBetween(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to count failed transactions: %w", err)
	}
	if int64(count) <= r.threshold {
		return nil, nil
	}

	bucket := end.Truncate(r.window).Unix()
	return []*model.Alert{{
		RuleName:    r.name,
		Type:        TypeFailedTxRate,
		Severity:    r.severity,
		Title:       "Elevated failed transaction rate",
		Message:     fmt.Sprintf("%d failed transactions in the %s up to block %d (threshold %d)", count, r.window, in.Batch.Block.Number, r.threshold),
		BlockNumber: blockRef(in.Batch),
		Metadata: map[string]any{
			"failed_count": count,
			"threshold":    r.threshold,
			"window":       r.window.String(),
			"window_start": start.UTC().Format(time.RFC3339),
		},
		DedupKey: dedupKey(r.name, bucket),
	}}, nil
}

// largeTransferRule fires for token transfers above threshold base units.
type largeTransferRule struct {
	name      string
	severity  model.Severity
	threshold decimal.Decimal
	token     string
}

func newLargeTransferRule(spec RuleSpec) (Rule, error) {
	sev, err := model.ParseSeverity(spec.Severity)
	if err != nil {
		return nil, err
	}
	d, err := parseThreshold(spec)
	if err != nil {
		return nil, err
	}
	return &largeTransferRule{name: spec.Name, severity: sev, threshold: d, token: model.NormalizeAddress(spec.Token)}, nil
}

func (r *largeTransferRule) Name() string { return r.name }

func (r *largeTransferRule) Evaluate(_ context.Context, in *Input) ([]*model.Alert, error) {
	var out []*model.Alert
	for i := range in.Batch.Transfers {
		t := &in.Batch.Transfers[i]
		if r.token != "" && t.TokenAddress != r.token {
			continue
		}
		if !t.Amount.GreaterThan(r.threshold) {
			continue
		}
		out = append(out, &model.Alert{
			RuleName:    r.name,
			Type:        TypeLargeTransfer,
			Severity:    r.severity,
			Title:       "Large token transfer",
			Message:     fmt.Sprintf("%s units of %s moved from %s to %s in %s", t.Amount, t.TokenAddress, t.From, t.To, t.TxHash),
			TxHash:      t.TxHash,
			BlockNumber: blockRef(in.Batch),
			Address:     t.From,
			Metadata: map[string]any{
				"token":     t.TokenAddress,
				"from":      t.From,
				"to":        t.To,
				"amount":    t.Amount.String(),
				"standard":  string(t.Standard),
				"log_index": t.LogIndex,
				"threshold": r.threshold.String(),
			},
			DedupKey: dedupKey(r.name, t.TxHash, t.LogIndex),
		})
	}
	return out, nil
}

// largeValueRule fires for transactions moving more than threshold wei.
type largeValueRule struct {
	name      string
	severity  model.Severity
	threshold decimal.Decimal
}

func newLargeValueRule(spec RuleSpec) (Rule, error) {
	sev, err := model.ParseSeverity(spec.Severity)
	if err != nil {
		return nil, err
	}
	d, err := parseThreshold(spec)
	if err != nil {
		return nil, err
	}
	return &largeValueRule{name: spec.Name, severity: sev, threshold: d}, nil
}

func (r *largeValueRule) Name() string { return r.name }

func (r *largeValueRule) Evaluate(_ context.Context, in *Input) ([]*model.Alert, error) {
	var out []*model.Alert
	for i := range in.Batch.Transactions {
		tx := &in.Batch.Transactions[i]
		if !tx.Value.GreaterThan(r.threshold) {
			continue
		}
		out = append(out, &model.Alert{
			RuleName:    r.name,
			Type:        TypeLargeValue,
			Severity:    r.severity,
			Title:       "Large native value transfer",
			Message:     fmt.Sprintf("Transaction %s moved %s wei from %s", tx.Hash, tx.Value, tx.From),
			TxHash:      tx.Hash,
			BlockNumber: blockRef(in.Batch),
			Address:     tx.From,
			Metadata: map[string]any{
				"from":      tx.From,
				"to":        tx.To,
				"value":     tx.Value.String(),
				"threshold": r.threshold.String(),
			},
			DedupKey: dedupKey(r.name, tx.Hash),
		})
	}
	return out, nil
}
