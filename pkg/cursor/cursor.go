// Package cursor walks the upstream chain one block at a time and repairs
// reorganizations by rolling back to the common ancestor.
package cursor

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coocood/freecache"
	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/internal/metrics"
	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/source"
)

var (
	// ErrNoNewBlock is returned by Step when the cursor is caught up with the source.
	ErrNoNewBlock = errors.New("no new block available")
	// ErrReorgTooDeep is returned when no common ancestor exists within the configured depth.
	ErrReorgTooDeep = errors.New("reorganization exceeds maximum depth")

	errUnsettled = errors.New("source reports a block that does not extend its own canonical chain")
)

// Store reads committed progress.
type Store interface {
	LastIndexedBlock(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) (hash string, ok bool, err error)
}

// Writer commits and rolls back blocks.
type Writer interface {
	Write(ctx context.Context, raw *model.RawBlock) (*model.BlockBundle, error)
	Rollback(ctx context.Context, ancestor uint64) (int64, error)
}

// Config controls where the cursor starts and how it paces itself.
type Config struct {
	StartBlock           uint64
	Confirmations        uint64
	MaxReorgDepth        uint64
	PollInterval         time.Duration
	RetryInitialInterval time.Duration
	RetryMaxInterval     time.Duration
	HashCacheSize        int
}

// Cursor is the single writer that advances the tip.
type Cursor struct {
	src     source.Source
	store   Store
	writer  Writer
	cfg     Config
	isFatal func(error) bool
	cache   *freecache.Cache
	logger  *zap.Logger

	head atomic.Uint64
}

// New creates a cursor. isFatal classifies errors that must halt ingestion;
// everything else is retried with backoff.
func New(src source.Source, store Store, writer Writer, cfg Config, isFatal func(error) bool, logger *zap.Logger) *Cursor {
	if isFatal == nil {
		isFatal = func(error) bool { return false }
	}
	c := &Cursor{
		src:     src,
		store:   store,
		writer:  writer,
		cfg:     cfg,
		isFatal: isFatal,
		logger:  logger,
	}
	if cfg.HashCacheSize > 0 {
		c.cache = freecache.NewCache(cfg.HashCacheSize)
	}
	return c
}

// ConfirmedHead is the highest height that has the required number of
// confirmations when the node reports latest.
func ConfirmedHead(latest, confirmations uint64) uint64 {
	if latest > confirmations {
		return latest - confirmations
	}
	return 0
}

// Head returns the confirmed upstream height seen by the last step.
func (c *Cursor) Head() uint64 {
	return c.head.Load()
}

// Run advances the cursor until ctx is cancelled or a fatal error occurs.
// Cached hashes from an earlier run are dropped, since another lease holder
// may have rewritten those heights in between.
func (c *Cursor) Run(ctx context.Context) error {
	c.forget()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryInitialInterval
	bo.MaxInterval = c.cfg.RetryMaxInterval
	bo.MaxElapsedTime = 0
	bo.Reset()

	var hints <-chan uint64
	if hs, ok := c.src.(source.HintSource); ok {
		hints = hs.Hints()
	}

	c.logger.Info("Block cursor started",
		zap.Uint64("start_block", c.cfg.StartBlock),
		zap.Uint64("confirmations", c.cfg.Confirmations))

	for {
		err := c.Step(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		var wait time.Duration
		switch {
		case err == nil:
			bo.Reset()
			continue
		case errors.Is(err, ErrNoNewBlock):
			bo.Reset()
			wait = c.cfg.PollInterval
		case errors.Is(err, ErrReorgTooDeep) || c.isFatal(err):
			metrics.IngestionErrors.WithLabelValues("fatal").Inc()
			c.logger.Error("Ingestion halted", zap.Error(err))
			return err
		default:
			metrics.IngestionErrors.WithLabelValues("transient").Inc()
			wait = bo.NextBackOff()
			c.logger.Warn("Ingestion step failed, retrying",
				zap.Duration("retry_in", wait), zap.Error(err))
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-hints:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Step ingests at most one block. It returns ErrNoNewBlock when there is
// nothing to do. A detected reorganization is repaired and reported as success;
// the replacement blocks are fetched by later steps.
func (c *Cursor) Step(ctx context.Context) error {
	tip, err := c.store.LastIndexedBlock(ctx)
	if err != nil {
		return fmt.Errorf("failed to read tip: %w", err)
	}
	if c.cfg.StartBlock > 0 && tip < c.cfg.StartBlock-1 {
		tip = c.cfg.StartBlock - 1
	}

	latest, err := c.src.LatestHeight(ctx)
	if err != nil {
		return fmt.Errorf("failed to get latest height: %w", err)
	}
	metrics.ChainHead.Set(float64(latest))
	head := ConfirmedHead(latest, c.cfg.Confirmations)
	c.head.Store(head)

	next := tip + 1
	if next > head {
		return c.verifyTip(ctx, tip)
	}

	raw, err := c.src.BlockAt(ctx, next)
	if errors.Is(err, source.ErrBlockNotFound) {
		return ErrNoNewBlock
	}
	if err != nil {
		return fmt.Errorf("failed to fetch block %d: %w", next, err)
	}

	if tip > 0 {
		stored, ok, err := c.storedHash(ctx, tip)
		if err != nil {
			return err
		}
		if ok && stored != raw.ParentHash.Hex() {
			c.logger.Warn("Parent hash mismatch",
				zap.Uint64("block", next),
				zap.String("parent_hash", raw.ParentHash.Hex()),
				zap.String("stored_hash", stored))
			return c.reorg(ctx, tip)
		}
	}

	if _, err := c.writer.Write(ctx, raw); err != nil {
		return err
	}
	c.remember(next, raw.Hash.Hex())
	return nil
}

// verifyTip compares the stored tip with the source while caught up, so a
// reorganization at the head is noticed before the next block arrives.
func (c *Cursor) verifyTip(ctx context.Context, tip uint64) error {
	if tip == 0 {
		return ErrNoNewBlock
	}
	stored, ok, err := c.storedHash(ctx, tip)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNoNewBlock
	}
	upstream, err := c.src.HashAt(ctx, tip)
	if errors.Is(err, source.ErrBlockNotFound) {
		return ErrNoNewBlock
	}
	if err != nil {
		return fmt.Errorf("failed to get hash at %d: %w", tip, err)
	}
	if upstream.Hex() == stored {
		return ErrNoNewBlock
	}
	c.logger.Warn("Stored tip is no longer canonical",
		zap.Uint64("block", tip),
		zap.String("stored_hash", stored),
		zap.String("canonical_hash", upstream.Hex()))
	return c.reorg(ctx, tip)
}

// reorg walks back from tip to the newest height whose stored hash matches the
// source and rolls everything above it back.
func (c *Cursor) reorg(ctx context.Context, tip uint64) error {
	ancestor, err := c.findAncestor(ctx, tip)
	if err != nil {
		return err
	}
	if ancestor == tip {
		// The source answered from two different forks; retry once it settles.
		return fmt.Errorf("%w at %d", errUnsettled, tip)
	}

	removed, err := c.writer.Rollback(ctx, ancestor)
	if err != nil {
		return err
	}
	c.forget()

	depth := tip - ancestor
	metrics.ReorgsTotal.Inc()
	metrics.ReorgDepth.Observe(float64(depth))
	c.logger.Warn("Rolled back reorganized blocks",
		zap.Uint64("ancestor", ancestor),
		zap.Uint64("depth", depth),
		zap.Int64("blocks_removed", removed))
	return nil
}

func (c *Cursor) findAncestor(ctx context.Context, tip uint64) (uint64, error) {
	for depth := uint64(0); depth <= c.cfg.MaxReorgDepth && depth <= tip; depth++ {
		h := tip - depth
		stored, ok, err := c.storedHash(ctx, h)
		if err != nil {
			return 0, err
		}
		if !ok {
			// Nothing stored below the first indexed block.
			return h, nil
		}
		upstream, err := c.src.HashAt(ctx, h)
		if err != nil {
			return 0, fmt.Errorf("failed to get hash at %d: %w", h, err)
		}
		if upstream.Hex() == stored {
			return h, nil
		}
	}
	return 0, fmt.Errorf("%w: no common ancestor within %d blocks of %d", ErrReorgTooDeep, c.cfg.MaxReorgDepth, tip)
}

func (c *Cursor) storedHash(ctx context.Context, height uint64) (string, bool, error) {
	if c.cache != nil {
		if v, err := c.cache.Get(heightKey(height)); err == nil {
			return string(v), true, nil
		}
	}
	hash, ok, err := c.store.BlockHash(ctx, height)
	if err != nil {
		return "", false, err
	}
	if ok {
		c.remember(height, hash)
	}
	return hash, ok, nil
}

func (c *Cursor) remember(height uint64, hash string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.Set(heightKey(height), []byte(hash), 0); err != nil {
		c.logger.Debug("Failed to cache block hash", zap.Uint64("block", height), zap.Error(err))
	}
}

func (c *Cursor) forget() {
	if c.cache != nil {
		c.cache.Clear()
	}
}

func heightKey(height uint64) []byte {
	var k [8]byte
	binary.BigEndian.PutUint64(k[:], height)
	return k[:]
}
