package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chainsafe/evm-indexer/pkg/engine"
	"github.com/chainsafe/evm-indexer/pkg/indexdb"
	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/state"
)

// MockController is a function-field fake of the engine.
type MockController struct {
	ready          bool
	StartFunc      func(ctx context.Context) error
	StopFunc       func(ctx context.Context) error
	RefreshFunc    func(ctx context.Context) error
	AckAlertFunc   func(ctx context.Context, id uuid.UUID, by string) (*model.Alert, error)
	status         engine.Status
	lastAckSubject string
}

func newMockController() *MockController {
	return &MockController{
		ready:  true,
		status: engine.Status{Status: state.StatusRunning, Ingesting: true, Tip: 100, Head: 105, Lag: 5},
	}
}

func (m *MockController) Ready() bool { return m.ready }

func (m *MockController) Status(context.Context) (*engine.Status, error) {
	st := m.status
	return &st, nil
}

func (m *MockController) StartIngestion(ctx context.Context) error {
	if m.StartFunc != nil {
		return m.StartFunc(ctx)
	}
	return nil
}

func (m *MockController) StopIngestion(ctx context.Context) error {
	if m.StopFunc != nil {
		return m.StopFunc(ctx)
	}
	return nil
}

func (m *MockController) RefreshStats(ctx context.Context) error {
	if m.RefreshFunc != nil {
		return m.RefreshFunc(ctx)
	}
	return nil
}

func (m *MockController) AckAlert(ctx context.Context, id uuid.UUID, by string) (*model.Alert, error) {
	m.lastAckSubject = by
	if m.AckAlertFunc != nil {
		return m.AckAlertFunc(ctx, id, by)
	}
	return &model.Alert{ID: id, Acknowledged: true, AcknowledgedBy: by}, nil
}

// MockQueryStore keeps alerts and the watch list in memory.
type MockQueryStore struct {
	mu         sync.Mutex
	alerts     map[uuid.UUID]*model.Alert
	watched    map[string]model.WatchedAddress
	lastFilter indexdb.AlertFilter
	lastFrom   time.Time
	lastTo     time.Time
	lastLimit  int
}

func newMockQueryStore() *MockQueryStore {
	return &MockQueryStore{
		alerts:  make(map[uuid.UUID]*model.Alert),
		watched: make(map[string]model.WatchedAddress),
	}
}

func (m *MockQueryStore) GetAlert(_ context.Context, id uuid.UUID) (*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.alerts[id]
	if !ok {
		return nil, indexdb.ErrAlertNotFound
	}
	return a, nil
}

func (m *MockQueryStore) ListAlerts(_ context.Context, f indexdb.AlertFilter) ([]*model.Alert, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFilter = f
	var out []*model.Alert
	for _, a := range m.alerts {
		out = append(out, a)
	}
	return out, nil
}

func (m *MockQueryStore) DailyStats(_ context.Context, from, to time.Time, limit int) ([]model.PeriodStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastFrom, m.lastTo, m.lastLimit = from, to, limit
	return []model.PeriodStats{{Period: from, TxCount: 3}}, nil
}

func (m *MockQueryStore) HourlyStats(ctx context.Context, from, to time.Time, limit int) ([]model.PeriodStats, error) {
	return m.DailyStats(ctx, from, to, limit)
}

func (m *MockQueryStore) TopAddresses(_ context.Context, limit int) ([]model.AddressActivity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastLimit = limit
	return []model.AddressActivity{{Address: "0xaaa", TxCount: 9}}, nil
}

func (m *MockQueryStore) WatchList(context.Context) ([]model.WatchedAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.WatchedAddress, 0, len(m.watched))
	for _, w := range m.watched {
		out = append(out, w)
	}
	return out, nil
}

func (m *MockQueryStore) GetWatched(_ context.Context, address string) (*model.WatchedAddress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.watched[address]
	if !ok {
		return nil, indexdb.ErrWatchedAddressNotFound
	}
	return &w, nil
}

func (m *MockQueryStore) UpsertWatched(_ context.Context, w *model.WatchedAddress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.watched[w.Address] = *w
	return nil
}

func (m *MockQueryStore) RemoveWatched(_ context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.watched[address]; !ok {
		return indexdb.ErrWatchedAddressNotFound
	}
	delete(m.watched, address)
	return nil
}
