package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/evm-indexer/pkg/indexdb/dao"
)

type pgStore struct {
	db bun.IDB
}

// New returns a postgres backed Store. db may be a *bun.DB or a bun.Tx, which
// lets callers advance the tip inside the same transaction as the block rows.
func New(db bun.IDB) Store {
	return &pgStore{db: db}
}

func (s *pgStore) Get(ctx context.Context, key string) (json.RawMessage, error) {
	row := new(dao.IndexerStateDao)
	err := s.db.NewSelect().
		Model(row).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get state %s: %w", key, err)
	}
	return row.Value, nil
}

func (s *pgStore) Set(ctx context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode state %s: %w", key, err)
	}

	row := &dao.IndexerStateDao{
		Key:       key,
		Value:     raw,
		UpdatedAt: time.Now().UTC(),
	}
	_, err = s.db.NewInsert().
		Model(row).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to set state %s: %w", key, err)
	}
	return nil
}

func (s *pgStore) LastIndexedBlock(ctx context.Context) (uint64, error) {
	raw, err := s.Get(ctx, KeyLastIndexedBlock)
	if errors.Is(err, ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	var v lastIndexed
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, fmt.Errorf("corrupt %s value: %w", KeyLastIndexedBlock, err)
	}
	return v.BlockNumber, nil
}

func (s *pgStore) SetLastIndexedBlock(ctx context.Context, height uint64) error {
	return s.Set(ctx, KeyLastIndexedBlock, lastIndexed{BlockNumber: height})
}

func (s *pgStore) Status(ctx context.Context) (*Status, error) {
	raw, err := s.Get(ctx, KeyIndexerStatus)
	if errors.Is(err, ErrNotFound) {
		return &Status{Status: StatusStopped}, nil
	}
	if err != nil {
		return nil, err
	}

	st := new(Status)
	if err := json.Unmarshal(raw, st); err != nil {
		return nil, fmt.Errorf("corrupt %s value: %w", KeyIndexerStatus, err)
	}
	return st, nil
}

func (s *pgStore) SetStatus(ctx context.Context, st *Status) error {
	return s.Set(ctx, KeyIndexerStatus, st)
}
