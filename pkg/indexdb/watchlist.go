package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/chainsafe/evm-indexer/pkg/indexdb/dao"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

// WatchList returns the whole watch list in a single read, which gives callers
// a consistent snapshot even while operators edit it.
func (s *Store) WatchList(ctx context.Context) ([]model.WatchedAddress, error) {
	var rows []dao.WatchedAddressDao
	if err := s.db.NewSelect().Model(&rows).Order("address ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to list watched addresses: %w", err)
	}
	out := make([]model.WatchedAddress, len(rows))
	for i := range rows {
		out[i] = toWatchedAddress(&rows[i])
	}
	return out, nil
}

// GetWatched returns one watch list entry.
func (s *Store) GetWatched(ctx context.Context, address string) (*model.WatchedAddress, error) {
	row := new(dao.WatchedAddressDao)
	err := s.db.NewSelect().
		Model(row).
		Where("address = ?", model.NormalizeAddress(address)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWatchedAddressNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get watched address: %w", err)
	}
	w := toWatchedAddress(row)
	return &w, nil
}

// UpsertWatched adds an address to the watch list or updates an existing entry.
func (s *Store) UpsertWatched(ctx context.Context, w *model.WatchedAddress) error {
	row := toWatchedAddressDao(w)
	row.UpdatedAt = time.Now().UTC()

	_, err := s.db.NewInsert().
		Model(row).
		On("CONFLICT (address) DO UPDATE").
		Set("label = EXCLUDED.label").
		Set("reason = EXCLUDED.reason").
		Set("severity = EXCLUDED.severity").
		Set("alert_on_activity = EXCLUDED.alert_on_activity").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert watched address %s: %w", row.Address, err)
	}
	return nil
}

// RemoveWatched deletes an address from the watch list.
func (s *Store) RemoveWatched(ctx context.Context, address string) error {
	res, err := s.db.NewDelete().
		Model((*dao.WatchedAddressDao)(nil)).
		Where("address = ?", model.NormalizeAddress(address)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to remove watched address: %w", err)
	}
	if !affected(res) {
		return ErrWatchedAddressNotFound
	}
	return nil
}
