package alert

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/internal/metrics"
	"github.com/chainsafe/evm-indexer/pkg/config"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

const defaultDeliveryTimeout = 10 * time.Second

// DispatchStore records delivery outcomes.
type DispatchStore interface {
	ListUndispatched(ctx context.Context, maxAttempts, limit int) ([]*model.Alert, error)
	MarkNotified(ctx context.Context, id uuid.UUID, attempts int) (bool, error)
	RecordNotifyFailure(ctx context.Context, id uuid.UUID, attempts int, cause string) error
}

// Dispatcher delivers alerts asynchronously. Only the notified flag is ever
// retried; the alert row itself is never rewritten.
type Dispatcher struct {
	store       DispatchStore
	notifier    Notifier
	cfg         config.DispatchConfig
	minSeverity model.Severity
	queue       chan *model.Alert
	logger      *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(store DispatchStore, notifier Notifier, cfg config.DispatchConfig, logger *zap.Logger) *Dispatcher {
	size := cfg.QueueSize
	if size <= 0 {
		size = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultDeliveryTimeout
	}
	minSeverity := model.Severity(cfg.MinSeverity)
	if minSeverity.Rank() == 0 {
		minSeverity = model.SeverityInfo
	}
	return &Dispatcher{
		store:       store,
		notifier:    notifier,
		cfg:         cfg,
		minSeverity: minSeverity,
		queue:       make(chan *model.Alert, size),
		logger:      logger,
	}
}

// Enqueue schedules delivery without blocking. When the queue is full the
// alert stays undispatched in the store and is picked up on the next start.
func (d *Dispatcher) Enqueue(a *model.Alert) {
	if !a.Severity.AtLeast(d.minSeverity) {
		return
	}
	select {
	case d.queue <- a:
	default:
		metrics.AlertDispatches.WithLabelValues("dropped").Inc()
		d.logger.Warn("Dispatch queue full, deferring alert",
			zap.String("id", a.ID.String()))
	}
}

// Run resumes undelivered alerts and then delivers queued alerts until ctx is
// cancelled. Retries in flight at cancellation are abandoned.
func (d *Dispatcher) Run(ctx context.Context) error {
	pending, err := d.store.ListUndispatched(ctx, d.maxAttempts(), cap(d.queue))
	if err != nil {
		d.logger.Error("Failed to load undispatched alerts", zap.Error(err))
	}
	for _, a := range pending {
		d.Enqueue(a)
	}
	d.logger.Info("Alert dispatcher started", zap.Int("resumed", len(pending)))

	for {
		select {
		case <-ctx.Done():
			return nil
		case a := <-d.queue:
			d.deliver(ctx, a)
		}
	}
}

func (d *Dispatcher) maxAttempts() int {
	return d.cfg.MaxRetries + 1
}

func (d *Dispatcher) deliver(ctx context.Context, a *model.Alert) {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = d.cfg.InitialInterval
	exp.MaxInterval = d.cfg.MaxInterval
	exp.MaxElapsedTime = 0
	exp.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(exp, uint64(d.cfg.MaxRetries)), ctx)

	n := NotificationFor(a)
	attempts := 0
	err := backoff.RetryNotify(func() error {
		attempts++
		callCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
		defer cancel()
		return d.notifier.Notify(callCtx, n)
	}, policy, func(err error, wait time.Duration) {
		d.logger.Warn("Alert delivery failed, retrying",
			zap.String("id", a.ID.String()),
			zap.Int("attempt", attempts),
			zap.Duration("retry_in", wait),
			zap.Error(err))
	})

	if ctx.Err() != nil {
		return
	}
	if err != nil {
		metrics.AlertDispatches.WithLabelValues(metrics.StatusFailure).Inc()
		d.logger.Error("Alert delivery permanently failed",
			zap.String("id", a.ID.String()),
			zap.Int("attempts", attempts),
			zap.Error(err))
		if rerr := d.store.RecordNotifyFailure(ctx, a.ID, attempts, err.Error()); rerr != nil {
			d.logger.Error("Failed to record delivery failure", zap.String("id", a.ID.String()), zap.Error(rerr))
		}
		return
	}

	metrics.AlertDispatches.WithLabelValues(metrics.StatusSuccess).Inc()
	if _, err := d.store.MarkNotified(ctx, a.ID, attempts); err != nil {
		d.logger.Error("Failed to mark alert notified", zap.String("id", a.ID.String()), zap.Error(err))
	}
}
