package alert

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainsafe/evm-indexer/pkg/model"
)

// MockStore is an in-memory Store and DispatchStore. Func fields override the defaults.
type MockStore struct {
	mu       sync.Mutex
	hashes   map[uint64]string
	watched  []model.WatchedAddress
	alerts   map[string]*model.Alert
	order    []string
	failed   int
	notified map[uuid.UUID]int
	failures map[uuid.UUID]string

	WatchListFunc   func(ctx context.Context) ([]model.WatchedAddress, error)
	InsertAlertFunc func(ctx context.Context, a *model.Alert) (bool, error)
}

func NewMockStore() *MockStore {
	return &MockStore{
		hashes:   make(map[uint64]string),
		alerts:   make(map[string]*model.Alert),
		notified: make(map[uuid.UUID]int),
		failures: make(map[uuid.UUID]string),
	}
}

func (m *MockStore) CountFailedBetween(context.Context, time.Time, time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failed, nil
}

func (m *MockStore) WatchList(ctx context.Context) ([]model.WatchedAddress, error) {
	if m.WatchListFunc != nil {
		return m.WatchListFunc(ctx)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.WatchedAddress(nil), m.watched...), nil
}

func (m *MockStore) BlockHash(_ context.Context, height uint64) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.hashes[height]
	return h, ok, nil
}

func (m *MockStore) InsertAlert(ctx context.Context, a *model.Alert) (bool, error) {
	if m.InsertAlertFunc != nil {
		return m.InsertAlertFunc(ctx, a)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.alerts[a.DedupKey]; ok {
		return false, nil
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	m.alerts[a.DedupKey] = a
	m.order = append(m.order, a.DedupKey)
	return true, nil
}

func (m *MockStore) Alerts() []*model.Alert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*model.Alert, 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.alerts[k])
	}
	return out
}

func (m *MockStore) ListUndispatched(_ context.Context, maxAttempts, limit int) ([]*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*model.Alert
	for _, k := range m.order {
		a := m.alerts[k]
		if a.Notified || a.NotifyAttempts >= maxAttempts {
			continue
		}
		out = append(out, a)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockStore) MarkNotified(_ context.Context, id uuid.UUID, attempts int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notified[id]++
	for _, a := range m.alerts {
		if a.ID == id && !a.Notified {
			a.Notified = true
			a.NotifyAttempts += attempts
			return true, nil
		}
	}
	return false, nil
}

func (m *MockStore) RecordNotifyFailure(_ context.Context, id uuid.UUID, attempts int, cause string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[id] = cause
	for _, a := range m.alerts {
		if a.ID == id {
			a.NotifyAttempts += attempts
		}
	}
	return nil
}

func (m *MockStore) NotifiedCount(id uuid.UUID) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.notified[id]
}

func (m *MockStore) Failure(id uuid.UUID) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.failures[id]
	return c, ok
}

// MockNotifier is a mock implementation of Notifier
type MockNotifier struct {
	mu         sync.Mutex
	calls      int
	NotifyFunc func(ctx context.Context, n Notification) error
}

func (m *MockNotifier) Notify(ctx context.Context, n Notification) error {
	m.mu.Lock()
	m.calls++
	m.mu.Unlock()
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, n)
	}
	return nil
}

func (m *MockNotifier) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// recordingEnqueuer collects enqueued alerts.
type recordingEnqueuer struct {
	mu     sync.Mutex
	alerts []*model.Alert
}

func (r *recordingEnqueuer) Enqueue(a *model.Alert) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
}

func (r *recordingEnqueuer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.alerts)
}
