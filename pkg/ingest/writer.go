package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/internal/metrics"
	"github.com/chainsafe/evm-indexer/pkg/decoder"
	"github.com/chainsafe/evm-indexer/pkg/model"
)

const defaultHandoffTimeout = 30 * time.Second

// Store is the persistence the writer needs.
type Store interface {
	CommitBlock(ctx context.Context, bundle *model.BlockBundle) (*model.BlockBundle, error)
	RollbackAbove(ctx context.Context, height uint64) (int64, error)
}

// Sink receives the rows a commit newly wrote.
type Sink interface {
	Submit(ctx context.Context, written *model.BlockBundle) error
}

// Writer normalizes and commits blocks one at a time.
type Writer struct {
	store         Store
	dec           *decoder.Decoder
	sink          Sink
	rollbackLock  sync.Locker
	commitTimeout time.Duration
	logger        *zap.Logger
}

// NewWriter creates a writer. sink may be nil. rollbackLock is held for the
// duration of every rollback so that readers of committed rows, such as the
// alert evaluator, never interleave with one.
func NewWriter(store Store, dec *decoder.Decoder, sink Sink, rollbackLock sync.Locker, commitTimeout time.Duration, logger *zap.Logger) *Writer {
	if rollbackLock == nil {
		rollbackLock = &sync.Mutex{}
	}
	return &Writer{
		store:         store,
		dec:           dec,
		sink:          sink,
		rollbackLock:  rollbackLock,
		commitTimeout: commitTimeout,
		logger:        logger,
	}
}

// Write commits one block. It returns the rows that were newly written; a
// block that was already committed yields an empty bundle and no error.
func (w *Writer) Write(ctx context.Context, raw *model.RawBlock) (*model.BlockBundle, error) {
	bundle := Normalize(w.dec, raw)

	commitCtx, cancel := w.withTimeout(ctx)
	start := time.Now()
	written, err := w.store.CommitBlock(commitCtx, bundle)
	cancel()
	metrics.CommitDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("commit block %d: %w", raw.Number, err)
	}

	metrics.BlocksIndexed.Inc()
	metrics.IndexedHeight.Set(float64(raw.Number))
	metrics.RowsWritten.WithLabelValues("transaction").Add(float64(len(written.Transactions)))
	metrics.RowsWritten.WithLabelValues("token_transfer").Add(float64(len(written.Transfers)))
	metrics.RowsWritten.WithLabelValues("contract_event").Add(float64(len(written.Events)))

	w.logger.Debug("Committed block",
		zap.Uint64("block", raw.Number),
		zap.String("hash", bundle.Block.Hash),
		zap.Int("transactions", len(written.Transactions)),
		zap.Int("transfers", len(written.Transfers)),
		zap.Int("events", len(written.Events)))

	if w.sink != nil && !written.Empty() {
		// The rows are committed; cancellation of ctx must not lose them.
		handoffCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), w.handoffTimeout())
		err := w.sink.Submit(handoffCtx, written)
		cancel()
		if err != nil {
			w.logger.Warn("Failed to hand committed rows to alert evaluation",
				zap.Uint64("block", raw.Number), zap.Error(err))
		}
	}
	return written, nil
}

// Rollback removes every block above ancestor and resets the tip to it.
func (w *Writer) Rollback(ctx context.Context, ancestor uint64) (int64, error) {
	w.rollbackLock.Lock()
	defer w.rollbackLock.Unlock()

	rbCtx, cancel := w.withTimeout(ctx)
	defer cancel()

	removed, err := w.store.RollbackAbove(rbCtx, ancestor)
	if err != nil {
		return 0, fmt.Errorf("rollback above %d: %w", ancestor, err)
	}
	metrics.IndexedHeight.Set(float64(ancestor))
	return removed, nil
}

func (w *Writer) handoffTimeout() time.Duration {
	if w.commitTimeout > 0 {
		return w.commitTimeout
	}
	return defaultHandoffTimeout
}

func (w *Writer) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.commitTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, w.commitTimeout)
}
