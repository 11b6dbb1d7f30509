package stats

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/internal/metrics"
	"github.com/chainsafe/evm-indexer/pkg/config"
)

// MockStore is a mock implementation of Store
type MockStore struct {
	RefreshViewsFunc func(ctx context.Context, timeout time.Duration) error
}

func (m *MockStore) RefreshViews(ctx context.Context, timeout time.Duration) error {
	if m.RefreshViewsFunc != nil {
		return m.RefreshViewsFunc(ctx, timeout)
	}
	return nil
}

func testConfig() config.StatsConfig {
	return config.StatsConfig{Enabled: true, Interval: 10 * time.Millisecond, Timeout: time.Second}
}

func TestRefresh_FailureKeepsLastSuccess(t *testing.T) {
	fail := false
	store := &MockStore{RefreshViewsFunc: func(_ context.Context, timeout time.Duration) error {
		assert.Equal(t, time.Second, timeout)
		if fail {
			return errors.New("canceling statement due to statement timeout")
		}
		return nil
	}}
	r := New(store, testConfig(), zap.NewNop())

	require.NoError(t, r.Refresh(context.Background()))
	_, first := r.LastResult()
	require.NotNil(t, first)

	fail = true
	require.Error(t, r.Refresh(context.Background()))

	last, lastSuccess := r.LastResult()
	assert.Contains(t, last.Error, "statement timeout")
	assert.Equal(t, first, lastSuccess)
}

func TestRefresh_Serialized(t *testing.T) {
	var running, maxRunning atomic.Int32
	store := &MockStore{RefreshViewsFunc: func(context.Context, time.Duration) error {
		n := running.Add(1)
		for {
			m := maxRunning.Load()
			if n <= m || maxRunning.CompareAndSwap(m, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		running.Add(-1)
		return nil
	}}
	r := New(store, testConfig(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, r.Refresh(context.Background()))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxRunning.Load())
}

func TestRefresh_WaitingCallerHonoursContext(t *testing.T) {
	release := make(chan struct{})
	store := &MockStore{RefreshViewsFunc: func(context.Context, time.Duration) error {
		<-release
		return nil
	}}
	r := New(store, testConfig(), zap.NewNop())

	go func() { _ = r.Refresh(context.Background()) }()
	require.Eventually(t, func() bool { return len(r.sem) == 1 }, time.Second, time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Refresh(ctx), context.DeadlineExceeded)
	close(release)
}

func TestRun_RefreshesPeriodically(t *testing.T) {
	var calls atomic.Int32
	store := &MockStore{RefreshViewsFunc: func(context.Context, time.Duration) error {
		calls.Add(1)
		return nil
	}}
	r := New(store, testConfig(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool { return calls.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()
	assert.NoError(t, <-done)
}

func TestRefresh_RecordsOutcomeMetrics(t *testing.T) {
	success := metrics.StatsRefreshes.WithLabelValues(metrics.StatusSuccess)
	failure := metrics.StatsRefreshes.WithLabelValues(metrics.StatusFailure)
	okBefore, failBefore := testutil.ToFloat64(success), testutil.ToFloat64(failure)

	var fail bool
	store := &MockStore{RefreshViewsFunc: func(context.Context, time.Duration) error {
		if fail {
			return errors.New("boom")
		}
		return nil
	}}
	r := New(store, testConfig(), zap.NewNop())

	require.NoError(t, r.Refresh(context.Background()))
	fail = true
	require.Error(t, r.Refresh(context.Background()))

	assert.Equal(t, okBefore+1, testutil.ToFloat64(success))
	assert.Equal(t, failBefore+1, testutil.ToFloat64(failure))
}
