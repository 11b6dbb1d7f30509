package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/chainsafe/evm-indexer/pkg/indexdb/dao"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

// AlertFilter narrows ListAlerts. Zero values mean no filter.
type AlertFilter struct {
	Acknowledged *bool
	Severity     model.Severity
	RuleName     string
	Limit        int
	Offset       int
}

const defaultAlertLimit = 100

// InsertAlert appends an alert. An alert whose dedup key already exists is not
// inserted again and created is false.
func (s *Store) InsertAlert(ctx context.Context, a *model.Alert) (created bool, err error) {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}

	row := toAlertDao(a)
	row.CreatedAt = a.CreatedAt
	res, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (dedup_key) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert alert %s: %w", a.DedupKey, err)
	}
	return affected(res), nil
}

// GetAlert returns a single alert by id.
func (s *Store) GetAlert(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	row := new(dao.AlertDao)
	err := s.db.NewSelect().
		Model(row).
		Where("id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrAlertNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert %s: %w", id, err)
	}
	return toAlert(row), nil
}

// ListAlerts returns alerts newest first.
func (s *Store) ListAlerts(ctx context.Context, f AlertFilter) ([]*model.Alert, error) {
	var rows []dao.AlertDao
	q := s.db.NewSelect().
		Model(&rows).
		OrderExpr("created_at DESC, id ASC")

	if f.Acknowledged != nil {
		q = q.Where("acknowledged = ?", *f.Acknowledged)
	}
	if f.Severity != "" {
		q = q.Where("severity = ?", string(f.Severity))
	}
	if f.RuleName != "" {
		q = q.Where("rule_name = ?", f.RuleName)
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultAlertLimit
	}
	q = q.Limit(limit).Offset(f.Offset)

	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	return toAlerts(rows), nil
}

// ListUndispatched returns alerts still awaiting delivery, oldest first.
func (s *Store) ListUndispatched(ctx context.Context, maxAttempts, limit int) ([]*model.Alert, error) {
	var rows []dao.AlertDao
	err := s.db.NewSelect().
		Model(&rows).
		Where("notified = false").
		Where("notify_attempts < ?", maxAttempts).
		OrderExpr("created_at ASC, id ASC").
		Limit(limit).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list undispatched alerts: %w", err)
	}
	return toAlerts(rows), nil
}

func toAlerts(rows []dao.AlertDao) []*model.Alert {
	alerts := make([]*model.Alert, len(rows))
	for i := range rows {
		alerts[i] = toAlert(&rows[i])
	}
	return alerts
}

// Acknowledge marks an alert acknowledged. The flag only moves from false to
// true; acknowledging twice keeps the first timestamp and actor.
func (s *Store) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*model.Alert, error) {
	var out *model.Alert
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewUpdate().
			Model((*dao.AlertDao)(nil)).
			Set("acknowledged = true").
			Set("acknowledged_at = ?", time.Now().UTC()).
			Set("acknowledged_by = ?", optString(by)).
			Where("id = ?", id).
			Where("acknowledged = false").
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to acknowledge alert %s: %w", id, err)
		}

		row := new(dao.AlertDao)
		err = tx.NewSelect().Model(row).Where("id = ?", id).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrAlertNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to get alert %s: %w", id, err)
		}
		out = toAlert(row)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// MarkNotified records a confirmed delivery that took attempts tries. It
// reports false when the alert was already marked or does not exist.
func (s *Store) MarkNotified(ctx context.Context, id uuid.UUID, attempts int) (bool, error) {
	res, err := s.db.NewUpdate().
		Model((*dao.AlertDao)(nil)).
		Set("notified = true").
		Set("notified_at = ?", time.Now().UTC()).
		Set("notify_attempts = notify_attempts + ?", attempts).
		Set("last_notify_error = NULL").
		Where("id = ?", id).
		Where("notified = false").
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to mark alert %s notified: %w", id, err)
	}
	return affected(res), nil
}

// RecordNotifyFailure bumps the attempt counter and keeps the last delivery error.
func (s *Store) RecordNotifyFailure(ctx context.Context, id uuid.UUID, attempts int, cause string) error {
	_, err := s.db.NewUpdate().
		Model((*dao.AlertDao)(nil)).
		Set("notify_attempts = notify_attempts + ?", attempts).
		Set("last_notify_error = ?", cause).
		Where("id = ?", id).
		Where("notified = false").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to record notify failure for alert %s: %w", id, err)
	}
	return nil
}
