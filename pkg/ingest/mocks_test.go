package ingest

import (
	"context"
	"sync"

	"github.com/chainsafe/evm-indexer/pkg/model"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	CommitBlockFunc   func(ctx context.Context, bundle *model.BlockBundle) (*model.BlockBundle, error)
	RollbackAboveFunc func(ctx context.Context, height uint64) (int64, error)
}

func (m *MockStore) CommitBlock(ctx context.Context, bundle *model.BlockBundle) (*model.BlockBundle, error) {
	if m.CommitBlockFunc != nil {
		return m.CommitBlockFunc(ctx, bundle)
	}
	return bundle, nil
}

func (m *MockStore) RollbackAbove(ctx context.Context, height uint64) (int64, error) {
	if m.RollbackAboveFunc != nil {
		return m.RollbackAboveFunc(ctx, height)
	}
	return 0, nil
}

// MockSink records submitted batches
type MockSink struct {
	mu      sync.Mutex
	batches []*model.BlockBundle
	ctxErrs []error
	err     error
}

func (m *MockSink) Submit(ctx context.Context, written *model.BlockBundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.batches = append(m.batches, written)
	m.ctxErrs = append(m.ctxErrs, ctx.Err())
	return m.err
}

func (m *MockSink) Batches() []*model.BlockBundle {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]*model.BlockBundle(nil), m.batches...)
}

func (m *MockSink) ContextErrors() []error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]error(nil), m.ctxErrs...)
}
