// Package source fetches raw blocks, transactions and logs from an upstream node.
package source

import (
	"context"
	"errors"

	"github.com/ethereum/go-ethereum/common"

	"github.com/chainsafe/evm-indexer/pkg/model"
)

// ErrBlockNotFound is returned when the requested height is not available yet.
var ErrBlockNotFound = errors.New("block not available")

// ErrReceiptNotFound is returned when the node serves a block but not all of
// its receipts. The block must be fetched again later.
var ErrReceiptNotFound = errors.New("receipt not available")

// Source is the upstream block provider consumed by the block cursor.
type Source interface {
	// LatestHeight returns the height of the newest block known upstream.
	LatestHeight(ctx context.Context) (uint64, error)
	// BlockAt returns the canonical block at height with its transactions,
	// receipts and logs, or ErrBlockNotFound.
	BlockAt(ctx context.Context, height uint64) (*model.RawBlock, error)
	// HashAt returns the canonical block hash at height, or ErrBlockNotFound.
	HashAt(ctx context.Context, height uint64) (common.Hash, error)
}

// HintSource is implemented by sources that push new-head notifications.
// Hints only wake the cursor early; parent-hash verification stays authoritative.
type HintSource interface {
	Hints() <-chan uint64
}
