package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/pkg/indexdb"
	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/state"
	"github.com/chainsafe/evm-indexer/pkg/stats"
)

type harness struct {
	engine   *Engine
	ingestor *MockIngestor
	state    *memState
	lease    *fakeLease
	cancel   context.CancelFunc
	done     chan error
}

func startHarness(t *testing.T, autoStart bool, mutate func(*Deps)) *harness {
	t.Helper()
	h := &harness{
		ingestor: &MockIngestor{},
		state:    newMemState(),
		lease:    &fakeLease{},
		done:     make(chan error, 1),
	}
	deps := Deps{
		Ingestor:     h.ingestor,
		State:        h.state,
		Alerts:       &MockAlertStore{},
		AcquireLease: h.lease.acquire,
	}
	if mutate != nil {
		mutate(&deps)
	}
	h.engine = New(deps, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	h.cancel = cancel
	go func() { h.done <- h.engine.Run(ctx, autoStart) }()
	require.Eventually(t, h.engine.Ready, time.Second, time.Millisecond)
	return h
}

func (h *harness) shutdown(t *testing.T) error {
	t.Helper()
	h.cancel()
	select {
	case err := <-h.done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("engine did not shut down")
		return nil
	}
}

func TestEngine_StartStop(t *testing.T) {
	h := startHarness(t, false, nil)
	ctx := context.Background()

	require.NoError(t, h.engine.StartIngestion(ctx))
	assert.Equal(t, state.StatusRunning, h.state.current().Status)
	assert.NotNil(t, h.state.current().StartedAt)
	assert.True(t, h.lease.isHeld())
	assert.ErrorIs(t, h.engine.StartIngestion(ctx), ErrAlreadyRunning)

	require.NoError(t, h.engine.StopIngestion(ctx))
	assert.Equal(t, state.StatusStopped, h.state.current().Status)
	assert.False(t, h.lease.isHeld())
	assert.ErrorIs(t, h.engine.StopIngestion(ctx), ErrNotRunning)

	// It can be started again.
	require.NoError(t, h.engine.StartIngestion(ctx))
	require.NoError(t, h.shutdown(t))
	assert.Equal(t, state.StatusStopped, h.state.current().Status)
	assert.Equal(t, 2, h.lease.released)
}

func TestEngine_FatalErrorSetsErrorStatus(t *testing.T) {
	h := startHarness(t, false, nil)
	h.ingestor.RunFunc = func(context.Context) error {
		return errors.New("reorganization exceeds maximum depth")
	}

	require.NoError(t, h.engine.StartIngestion(context.Background()))
	require.Eventually(t, func() bool {
		return h.state.current().Status == state.StatusError
	}, time.Second, time.Millisecond)

	st, err := h.engine.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, state.StatusError, st.Status)
	assert.Contains(t, st.Error, "maximum depth")
	require.Eventually(t, func() bool { return !h.lease.isHeld() }, time.Second, time.Millisecond)

	require.NoError(t, h.shutdown(t))
}

func TestEngine_LeaseHeldElsewhere(t *testing.T) {
	h := startHarness(t, false, nil)
	h.lease.err = indexdb.ErrLeaseHeld

	err := h.engine.StartIngestion(context.Background())
	assert.ErrorIs(t, err, indexdb.ErrLeaseHeld)
	assert.Equal(t, state.StatusStopped, h.state.current().Status)
	require.NoError(t, h.shutdown(t))
}

func TestEngine_StatusReportsLag(t *testing.T) {
	refresher := &MockRefresher{last: &stats.Result{Duration: time.Second}}
	h := startHarness(t, true, func(d *Deps) { d.Refresher = refresher })
	h.state.tip = 90
	h.ingestor.head.Store(100)

	require.Eventually(t, func() bool {
		return h.state.current().Status == state.StatusRunning
	}, time.Second, time.Millisecond)

	st, err := h.engine.Status(context.Background())
	require.NoError(t, err)
	assert.True(t, st.Ingesting)
	assert.Equal(t, uint64(90), st.Tip)
	assert.Equal(t, uint64(100), st.Head)
	assert.Equal(t, uint64(10), st.Lag)
	assert.Equal(t, time.Second, st.StatsLast.Duration)

	require.NoError(t, h.engine.RefreshStats(context.Background()))
	assert.Equal(t, int32(1), refresher.calls.Load())

	require.NoError(t, h.shutdown(t))
	assert.Equal(t, state.StatusStopped, h.state.current().Status)
}

func TestEngine_RefreshStatsDisabled(t *testing.T) {
	e := New(Deps{}, zap.NewNop())
	assert.ErrorIs(t, e.RefreshStats(context.Background()), ErrStatsDisabled)
	assert.ErrorIs(t, e.StartIngestion(context.Background()), ErrNotStarted)
	assert.False(t, e.Ready())
}

func TestEngine_AckAlert(t *testing.T) {
	id := uuid.New()
	h := startHarness(t, false, func(d *Deps) {
		d.Alerts = &MockAlertStore{AcknowledgeFunc: func(_ context.Context, got uuid.UUID, by string) (*model.Alert, error) {
			assert.Equal(t, id, got)
			assert.Equal(t, "ops", by)
			return &model.Alert{ID: got, Acknowledged: true}, nil
		}}
	})

	a, err := h.engine.AckAlert(context.Background(), id, "ops")
	require.NoError(t, err)
	assert.True(t, a.Acknowledged)
	require.NoError(t, h.shutdown(t))
}

func TestEngine_WorkerFailureStopsEngine(t *testing.T) {
	boom := errors.New("dispatcher crashed")
	h := &harness{ingestor: &MockIngestor{}, state: newMemState(), lease: &fakeLease{}}
	e := New(Deps{
		Ingestor:     h.ingestor,
		State:        h.state,
		AcquireLease: h.lease.acquire,
		Workers:      []Worker{WorkerFunc(func(context.Context) error { return boom })},
	}, zap.NewNop())

	err := e.Run(context.Background(), true)
	assert.ErrorIs(t, err, boom)
	assert.False(t, h.lease.isHeld())
}

func TestEngine_ShutdownStopsIngestionBeforeWorkers(t *testing.T) {
	var ingestionDone atomic.Bool
	workerSawIngestion := make(chan bool, 1)

	h := startHarness(t, true, func(d *Deps) {
		d.Ingestor = &MockIngestor{RunFunc: func(ctx context.Context) error {
			<-ctx.Done()
			ingestionDone.Store(true)
			return ctx.Err()
		}}
		d.Workers = []Worker{WorkerFunc(func(ctx context.Context) error {
			<-ctx.Done()
			workerSawIngestion <- ingestionDone.Load()
			return nil
		})}
	})
	require.Eventually(t, h.lease.isHeld, time.Second, time.Millisecond)

	require.NoError(t, h.shutdown(t))
	assert.True(t, <-workerSawIngestion)
	assert.Equal(t, state.StatusStopped, h.state.current().Status)
}
