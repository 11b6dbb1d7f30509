// Package state persists indexer progress and run status.
package state

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a state key has never been written.
var ErrNotFound = errors.New("state key not found")

// Well-known keys.
const (
	KeyLastIndexedBlock = "last_indexed_block"
	KeyIndexerStatus    = "indexer_status"
)

// RunStatus is the lifecycle state of the ingestion pipeline.
type RunStatus string

const (
	StatusStopped RunStatus = "stopped"
	StatusRunning RunStatus = "running"
	StatusError   RunStatus = "error"
)

// Status is the value stored under KeyIndexerStatus.
type Status struct {
	Status    RunStatus  `json:"status"`
	StartedAt *time.Time `json:"started_at"`
	Error     string     `json:"error,omitempty"`
}

type lastIndexed struct {
	BlockNumber uint64 `json:"block_number"`
}

// Store is a durable last-write-wins key/value register.
type Store interface {
	Get(ctx context.Context, key string) (json.RawMessage, error)
	Set(ctx context.Context, key string, value any) error

	LastIndexedBlock(ctx context.Context) (uint64, error)
	SetLastIndexedBlock(ctx context.Context, height uint64) error
	Status(ctx context.Context) (*Status, error)
	SetStatus(ctx context.Context, st *Status) error
}
