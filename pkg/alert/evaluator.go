package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/internal/metrics"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

// evaluationTimeout bounds one batch evaluation. Evaluations are detached from
// the run context so that shutdown never interrupts a committed batch.
const evaluationTimeout = 30 * time.Second

// Store is the persistence the evaluator reads from and appends alerts to.
type Store interface {
	FailureCounter
	WatchList(ctx context.Context) ([]model.WatchedAddress, error)
	BlockHash(ctx context.Context, height uint64) (hash string, ok bool, err error)
	InsertAlert(ctx context.Context, a *model.Alert) (created bool, err error)
}

// Enqueuer accepts newly created alerts for delivery.
type Enqueuer interface {
	Enqueue(a *model.Alert)
}

// Evaluator applies rules to committed batches on its own goroutine.
type Evaluator struct {
	store    Store
	rules    []Rule
	dispatch Enqueuer
	queue    chan *model.BlockBundle
	logger   *zap.Logger

	// rollback holds the write side while rows are being deleted.
	rollback sync.RWMutex
}

// NewEvaluator creates an evaluator. dispatch may be nil.
func NewEvaluator(store Store, rules []Rule, dispatch Enqueuer, queueSize int, logger *zap.Logger) *Evaluator {
	if queueSize <= 0 {
		queueSize = 1
	}
	return &Evaluator{
		store:    store,
		rules:    rules,
		dispatch: dispatch,
		queue:    make(chan *model.BlockBundle, queueSize),
		logger:   logger,
	}
}

// RollbackLocker returns the lock a rollback must hold so that it never
// overlaps an evaluation.
func (e *Evaluator) RollbackLocker() sync.Locker {
	return &e.rollback
}

// Submit queues a committed batch. It blocks while the queue is full.
func (e *Evaluator) Submit(ctx context.Context, batch *model.BlockBundle) error {
	select {
	case e.queue <- batch:
		metrics.EvaluationQueueDepth.Set(float64(len(e.queue)))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run evaluates queued batches until ctx is cancelled. Batches still queued at
// cancellation belong to committed blocks, so they are evaluated before Run
// returns.
func (e *Evaluator) Run(ctx context.Context) error {
	e.logger.Info("Alert evaluator started", zap.Int("rules", len(e.rules)))
	for {
		select {
		case <-ctx.Done():
			e.drain(ctx)
			return nil
		case batch := <-e.queue:
			e.evaluateDetached(ctx, batch)
		}
	}
}

func (e *Evaluator) drain(ctx context.Context) {
	drained := 0
	for {
		select {
		case batch := <-e.queue:
			e.evaluateDetached(ctx, batch)
			drained++
		default:
			if drained > 0 {
				e.logger.Info("Evaluated queued batches on shutdown", zap.Int("batches", drained))
			}
			return
		}
	}
}

func (e *Evaluator) evaluateDetached(ctx context.Context, batch *model.BlockBundle) {
	metrics.EvaluationQueueDepth.Set(float64(len(e.queue)))

	evalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), evaluationTimeout)
	defer cancel()
	if _, err := e.Evaluate(evalCtx, batch); err != nil {
		e.logger.Error("Alert evaluation failed",
			zap.Uint64("block", batch.Block.Number), zap.Error(err))
	}
}

// Evaluate runs every rule against one batch and returns the alerts it created.
// Batches whose block was rolled back since commit are skipped. A failing
// rule does not stop the others.
func (e *Evaluator) Evaluate(ctx context.Context, batch *model.BlockBundle) ([]*model.Alert, error) {
	e.rollback.RLock()
	defer e.rollback.RUnlock()

	hash, ok, err := e.store.BlockHash(ctx, batch.Block.Number)
	if err != nil {
		return nil, err
	}
	if !ok || hash != batch.Block.Hash {
		e.logger.Debug("Skipping evaluation of rolled back block",
			zap.Uint64("block", batch.Block.Number), zap.String("hash", batch.Block.Hash))
		return nil, nil
	}

	watched, err := e.store.WatchList(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load watch list: %w", err)
	}
	in := &Input{
		Batch:    batch,
		Watched:  make(map[string]model.WatchedAddress, len(watched)),
		Failures: e.store,
	}
	for _, w := range watched {
		in.Watched[model.NormalizeAddress(w.Address)] = w
	}

	var (
		created []*model.Alert
		errs    []error
	)
	for _, rule := range e.rules {
		alerts, err := rule.Evaluate(ctx, in)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: %w", rule.Name(), err))
			continue
		}
		for _, a := range alerts {
			ok, err := e.store.InsertAlert(ctx, a)
			if err != nil {
				errs = append(errs, fmt.Errorf("rule %s: %w", rule.Name(), err))
				continue
			}
			if !ok {
				continue
			}
			metrics.AlertsCreated.WithLabelValues(rule.Name(), string(a.Severity)).Inc()
			e.logger.Info("Alert created",
				zap.String("id", a.ID.String()),
				zap.String("rule", a.RuleName),
				zap.String("severity", string(a.Severity)),
				zap.String("tx_hash", a.TxHash))
			created = append(created, a)
			if e.dispatch != nil {
				e.dispatch.Enqueue(a)
			}
		}
	}
	return created, errors.Join(errs...)
}
