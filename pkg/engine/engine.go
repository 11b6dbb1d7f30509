// Package engine wires the ingestion pipeline and background workers together
// and exposes the operational controls.
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/state"
	"github.com/chainsafe/evm-indexer/pkg/stats"
)

const stateWriteTimeout = 10 * time.Second

var (
	// ErrAlreadyRunning is returned when ingestion is started twice.
	ErrAlreadyRunning = errors.New("ingestion already running")
	// ErrNotRunning is returned when stopping ingestion that is not running.
	ErrNotRunning = errors.New("ingestion not running")
	// ErrNotStarted is returned when ingestion is started before Run or after shutdown.
	ErrNotStarted = errors.New("engine not started")
	// ErrStatsDisabled is returned by RefreshStats when no refresher is configured.
	ErrStatsDisabled = errors.New("stats refresh disabled")
)

// Ingestor is the block cursor.
type Ingestor interface {
	Run(ctx context.Context) error
	Head() uint64
}

// Worker is a background loop that returns when ctx is cancelled.
type Worker interface {
	Run(ctx context.Context) error
}

// StatsRefresher recomputes aggregates on demand.
type StatsRefresher interface {
	Refresh(ctx context.Context) error
	LastResult() (last, lastSuccess *stats.Result)
}

// StateStore reads and writes progress and run status.
type StateStore interface {
	LastIndexedBlock(ctx context.Context) (uint64, error)
	Status(ctx context.Context) (*state.Status, error)
	SetStatus(ctx context.Context, st *state.Status) error
}

// AlertStore acknowledges alerts.
type AlertStore interface {
	Acknowledge(ctx context.Context, id uuid.UUID, by string) (*model.Alert, error)
}

// Lease is the single-writer right to advance the tip.
type Lease interface {
	Release(ctx context.Context) error
}

// LeaseFunc acquires the lease without waiting.
type LeaseFunc func(ctx context.Context) (Lease, error)

// Deps are the engine collaborators. Refresher may be nil.
type Deps struct {
	Ingestor     Ingestor
	State        StateStore
	Alerts       AlertStore
	Refresher    StatsRefresher
	AcquireLease LeaseFunc
	// Workers run for the whole process lifetime, independent of ingestion.
	Workers []Worker
}

// Status is the operational view of the engine.
type Status struct {
	Status       state.RunStatus `json:"status"`
	StartedAt    *time.Time      `json:"started_at"`
	Error        string          `json:"error,omitempty"`
	Ingesting    bool            `json:"ingesting"`
	Tip          uint64          `json:"tip"`
	Head         uint64          `json:"head"`
	Lag          uint64          `json:"lag"`
	StatsLast    *stats.Result   `json:"stats_last_refresh,omitempty"`
	StatsSuccess *stats.Result   `json:"stats_last_success,omitempty"`
}

type ingestion struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// Engine owns the ingestion lifecycle.
type Engine struct {
	deps   Deps
	logger *zap.Logger

	mu   sync.Mutex
	base context.Context
	run  *ingestion
}

// New creates an engine.
func New(deps Deps, logger *zap.Logger) *Engine {
	return &Engine{deps: deps, logger: logger}
}

// Run starts the background workers, optionally starts ingestion, and blocks
// until ctx is cancelled or a worker fails. Ingestion is stopped and its
// status persisted before the workers are cancelled, so batches committed by
// the last block still reach alert evaluation.
func (e *Engine) Run(ctx context.Context, autoStart bool) error {
	workerCtx, cancelWorkers := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWorkers()
	g, gctx := errgroup.WithContext(workerCtx)
	for _, w := range e.deps.Workers {
		w := w
		g.Go(func() error { return w.Run(gctx) })
	}

	base, cancelBase := context.WithCancel(ctx)
	defer cancelBase()
	e.mu.Lock()
	e.base = base
	e.mu.Unlock()

	if autoStart {
		if err := e.StartIngestion(base); err != nil {
			e.logger.Error("Failed to start ingestion", zap.Error(err))
		}
	}

	select {
	case <-ctx.Done():
	case <-gctx.Done():
	}
	cancelBase()
	e.logger.Info("Shutting down engine")

	stopCtx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
	defer cancel()
	if err := e.StopIngestion(stopCtx); err != nil && !errors.Is(err, ErrNotRunning) {
		e.logger.Error("Failed to stop ingestion", zap.Error(err))
	}

	cancelWorkers()
	return g.Wait()
}

// Ready reports whether the engine has been started and is not shutting down.
func (e *Engine) Ready() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.base != nil && e.base.Err() == nil
}

// StartIngestion takes the lease and starts the cursor.
func (e *Engine) StartIngestion(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.base == nil || e.base.Err() != nil {
		return ErrNotStarted
	}
	if e.run != nil {
		return ErrAlreadyRunning
	}

	lease, err := e.deps.AcquireLease(ctx)
	if err != nil {
		return fmt.Errorf("failed to acquire ingestion lease: %w", err)
	}

	startedAt := time.Now().UTC()
	if err := e.deps.State.SetStatus(ctx, &state.Status{Status: state.StatusRunning, StartedAt: &startedAt}); err != nil {
		e.release(lease)
		return fmt.Errorf("failed to persist status: %w", err)
	}

	runCtx, cancel := context.WithCancel(e.base)
	run := &ingestion{cancel: cancel, done: make(chan struct{})}
	e.run = run

	go func() {
		defer close(run.done)
		err := e.deps.Ingestor.Run(runCtx)
		cancel()
		e.finish(run, lease, startedAt, err)
	}()

	e.logger.Info("Ingestion started")
	return nil
}

// StopIngestion cancels the cursor and waits for the in-flight block to finish.
func (e *Engine) StopIngestion(ctx context.Context) error {
	e.mu.Lock()
	run := e.run
	e.mu.Unlock()
	if run == nil {
		return ErrNotRunning
	}

	run.cancel()
	select {
	case <-run.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) finish(run *ingestion, lease Lease, startedAt time.Time, err error) {
	st := &state.Status{Status: state.StatusStopped}
	if err != nil && !errors.Is(err, context.Canceled) {
		st = &state.Status{Status: state.StatusError, StartedAt: &startedAt, Error: err.Error()}
		e.logger.Error("Ingestion halted", zap.Error(err))
	} else {
		e.logger.Info("Ingestion stopped")
	}

	ctx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
	defer cancel()
	if serr := e.deps.State.SetStatus(ctx, st); serr != nil {
		e.logger.Error("Failed to persist status", zap.String("status", string(st.Status)), zap.Error(serr))
	}
	e.release(lease)

	e.mu.Lock()
	if e.run == run {
		e.run = nil
	}
	e.mu.Unlock()
}

func (e *Engine) release(lease Lease) {
	ctx, cancel := context.WithTimeout(context.Background(), stateWriteTimeout)
	defer cancel()
	if err := lease.Release(ctx); err != nil {
		e.logger.Warn("Failed to release ingestion lease", zap.Error(err))
	}
}

// Status reports run status, tip, upstream head and lag.
func (e *Engine) Status(ctx context.Context) (*Status, error) {
	st, err := e.deps.State.Status(ctx)
	if err != nil {
		return nil, err
	}
	tip, err := e.deps.State.LastIndexedBlock(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	ingesting := e.run != nil
	e.mu.Unlock()

	out := &Status{
		Status:    st.Status,
		StartedAt: st.StartedAt,
		Error:     st.Error,
		Ingesting: ingesting,
		Tip:       tip,
		Head:      e.deps.Ingestor.Head(),
	}
	if out.Head > tip {
		out.Lag = out.Head - tip
	}
	if e.deps.Refresher != nil {
		out.StatsLast, out.StatsSuccess = e.deps.Refresher.LastResult()
	}
	return out, nil
}

// RefreshStats forces an aggregate recomputation.
func (e *Engine) RefreshStats(ctx context.Context) error {
	if e.deps.Refresher == nil {
		return ErrStatsDisabled
	}
	return e.deps.Refresher.Refresh(ctx)
}

// AckAlert acknowledges an alert. Acknowledging twice is a no-op.
func (e *Engine) AckAlert(ctx context.Context, id uuid.UUID, by string) (*model.Alert, error) {
	return e.deps.Alerts.Acknowledge(ctx, id, by)
}
