package engine

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/state"
	"github.com/chainsafe/evm-indexer/pkg/stats"
)

// MockIngestor is a mock implementation of Ingestor
type MockIngestor struct {
	RunFunc func(ctx context.Context) error
	head    atomic.Uint64
}

func (m *MockIngestor) Run(ctx context.Context) error {
	if m.RunFunc != nil {
		return m.RunFunc(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

func (m *MockIngestor) Head() uint64 { return m.head.Load() }

// memState is an in-memory StateStore.
type memState struct {
	mu     sync.Mutex
	tip    uint64
	status state.Status
	writes []state.RunStatus
}

func newMemState() *memState {
	return &memState{status: state.Status{Status: state.StatusStopped}}
}

func (m *memState) LastIndexedBlock(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tip, nil
}

func (m *memState) Status(context.Context) (*state.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := m.status
	return &st, nil
}

func (m *memState) SetStatus(_ context.Context, st *state.Status) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = *st
	m.writes = append(m.writes, st.Status)
	return nil
}

func (m *memState) current() state.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// fakeLease counts acquisitions and releases.
type fakeLease struct {
	mu       sync.Mutex
	held     bool
	acquired int
	released int
	err      error
}

func (f *fakeLease) acquire(context.Context) (Lease, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.held = true
	f.acquired++
	return f, nil
}

func (f *fakeLease) Release(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = false
	f.released++
	return nil
}

func (f *fakeLease) isHeld() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held
}

// MockAlertStore is a mock implementation of AlertStore
type MockAlertStore struct {
	AcknowledgeFunc func(ctx context.Context, id uuid.UUID, by string) (*model.Alert, error)
}

func (m *MockAlertStore) Acknowledge(ctx context.Context, id uuid.UUID, by string) (*model.Alert, error) {
	return m.AcknowledgeFunc(ctx, id, by)
}

// MockRefresher is a mock implementation of StatsRefresher
type MockRefresher struct {
	calls atomic.Int32
	last  *stats.Result
}

func (m *MockRefresher) Refresh(context.Context) error {
	m.calls.Add(1)
	return nil
}

func (m *MockRefresher) LastResult() (*stats.Result, *stats.Result) {
	return m.last, m.last
}

// WorkerFunc adapts a function to Worker.
type WorkerFunc func(ctx context.Context) error

func (f WorkerFunc) Run(ctx context.Context) error { return f(ctx) }
