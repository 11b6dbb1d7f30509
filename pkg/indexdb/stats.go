package indexdb

import (
	"context"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/evm-indexer/pkg/indexdb/dao"
	"github.com/chainsafe/evm-indexer/pkg/migrations/indexerdb"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

// RefreshViews recomputes every stats view in one transaction. Readers keep
// seeing the previous contents until it commits; on any failure, including
// the statement timeout, nothing changes.
func (s *Store) RefreshViews(ctx context.Context, timeout time.Duration) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if timeout > 0 {
			if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL statement_timeout = %d", timeout.Milliseconds())); err != nil {
				return fmt.Errorf("failed to set statement timeout: %w", err)
			}
		}
		for _, view := range indexerdb.StatsViews {
			if _, err := tx.ExecContext(ctx, "REFRESH MATERIALIZED VIEW CONCURRENTLY ?", bun.Ident(view)); err != nil {
				return fmt.Errorf("failed to refresh %s: %w", view, err)
			}
		}
		return nil
	})
}

// DailyStats returns per-day aggregates within [from, to], newest first.
func (s *Store) DailyStats(ctx context.Context, from, to time.Time, limit int) ([]model.PeriodStats, error) {
	return s.periodStats(ctx, indexerdb.DailyStatsView, from, to, limit)
}

// HourlyStats returns per-hour aggregates within [from, to], newest first.
func (s *Store) HourlyStats(ctx context.Context, from, to time.Time, limit int) ([]model.PeriodStats, error) {
	return s.periodStats(ctx, indexerdb.HourlyStatsView, from, to, limit)
}

func (s *Store) periodStats(ctx context.Context, view string, from, to time.Time, limit int) ([]model.PeriodStats, error) {
	var rows []dao.PeriodStatsDao
	q := s.db.NewSelect().
		Model(&rows).
		ModelTableExpr("? AS s", bun.Ident(view)).
		Order("period DESC")
	if !from.IsZero() {
		q = q.Where("period >= ?", from.UTC())
	}
	if !to.IsZero() {
		q = q.Where("period <= ?", to.UTC())
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", view, err)
	}

	out := make([]model.PeriodStats, len(rows))
	for i := range rows {
		out[i] = toPeriodStats(&rows[i])
	}
	return out, nil
}

// TopAddresses returns the most active addresses.
func (s *Store) TopAddresses(ctx context.Context, limit int) ([]model.AddressActivity, error) {
	var rows []dao.AddressActivityDao
	q := s.db.NewSelect().
		Model(&rows).
		OrderExpr("tx_count DESC, address ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to read top addresses: %w", err)
	}

	out := make([]model.AddressActivity, len(rows))
	for i := range rows {
		out[i] = toAddressActivity(&rows[i])
	}
	return out, nil
}
