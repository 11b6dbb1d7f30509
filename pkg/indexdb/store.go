// Package indexdb is the postgres storage layer for indexed chain data, alerts and aggregates.
package indexdb

import (
	"context"
	"errors"

	"github.com/uptrace/bun"

	"github.com/chainsafe/evm-indexer/pkg/state"
)

var (
	// ErrBlockConflict is returned when a different block is already stored at the same height.
	ErrBlockConflict = errors.New("conflicting block already stored at height")
	// ErrBlockNotFound is returned when no block is stored at the requested height.
	ErrBlockNotFound = errors.New("block not found")
	// ErrAlertNotFound is returned when an alert id does not exist.
	ErrAlertNotFound = errors.New("alert not found")
	// ErrWatchedAddressNotFound is returned when an address is not on the watch list.
	ErrWatchedAddressNotFound = errors.New("watched address not found")
	// ErrLeaseHeld is returned when another process holds the ingestion lease.
	ErrLeaseHeld = errors.New("ingestion lease held by another process")
)

// Store provides database operations for the indexer
type Store struct {
	db *bun.DB
}

// NewStore creates a new indexer store on top of an open connection pool
func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

// DB returns the underlying database connection for advanced queries
func (s *Store) DB() *bun.DB {
	return s.db
}

// State returns the progress register backed by the same database.
func (s *Store) State() state.Store {
	return state.New(s.db)
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// LastIndexedBlock returns the persisted tip.
func (s *Store) LastIndexedBlock(ctx context.Context) (uint64, error) {
	return s.State().LastIndexedBlock(ctx)
}
