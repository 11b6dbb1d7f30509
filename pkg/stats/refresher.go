// Package stats keeps the derived aggregates fresh by recomputing them on a timer.
package stats

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/internal/metrics"
	"github.com/chainsafe/evm-indexer/pkg/config"
)

// Store recomputes every aggregate in one transaction. A failed refresh must
// leave the previous contents in place.
type Store interface {
	RefreshViews(ctx context.Context, timeout time.Duration) error
}

// Result describes one refresh cycle.
type Result struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Error     string        `json:"error,omitempty"`
}

// Refresher runs full recomputations, one at a time.
type Refresher struct {
	store    Store
	interval time.Duration
	timeout  time.Duration
	logger   *zap.Logger

	sem chan struct{}

	mu          sync.RWMutex
	last        *Result
	lastSuccess *Result
}

// New creates a refresher.
func New(store Store, cfg config.StatsConfig, logger *zap.Logger) *Refresher {
	return &Refresher{
		store:    store,
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		logger:   logger,
		sem:      make(chan struct{}, 1),
	}
}

// Refresh recomputes all aggregates now. A call made while another refresh is
// running waits for it and then runs its own cycle.
func (r *Refresher) Refresh(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-r.sem }()

	start := time.Now()
	err := r.store.RefreshViews(ctx, r.timeout)
	metrics.ObserveStatsRefresh(start, err)

	res := &Result{StartedAt: start.UTC(), Duration: time.Since(start)}
	if err != nil {
		res.Error = err.Error()
		r.logger.Warn("Stats refresh failed, previous aggregates remain visible",
			zap.Duration("duration", res.Duration), zap.Error(err))
	} else {
		r.logger.Info("Stats refreshed", zap.Duration("duration", res.Duration))
	}

	r.mu.Lock()
	r.last = res
	if err == nil {
		r.lastSuccess = res
	}
	r.mu.Unlock()
	return err
}

// LastResult returns the most recent cycle and the most recent successful one.
func (r *Refresher) LastResult() (last, lastSuccess *Result) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.lastSuccess
}

// Run refreshes once immediately and then every interval until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("Started periodic stats refresh", zap.Duration("interval", r.interval))
	_ = r.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			_ = r.Refresh(ctx)
		}
	}
}
