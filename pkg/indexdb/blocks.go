package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"github.com/chainsafe/evm-indexer/pkg/indexdb/dao"
	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/state"
)

// CommitBlock writes one block with all of its transactions, transfers and events
// in a single transaction and advances the tip to the block height.
//
// Rows whose unique key already exists are skipped. The returned bundle carries
// only the rows this call actually wrote, so a replay of an already committed
// block returns an empty bundle and no error. A pending transaction that is
// already stored is upgraded in place and counts as written.
func (s *Store) CommitBlock(ctx context.Context, bundle *model.BlockBundle) (*model.BlockBundle, error) {
	written := &model.BlockBundle{Block: bundle.Block}

	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := insertBlock(ctx, tx, &bundle.Block); err != nil {
			return err
		}

		for i := range bundle.Transactions {
			ok, err := upsertTransaction(ctx, tx, &bundle.Transactions[i])
			if err != nil {
				return err
			}
			if ok {
				written.Transactions = append(written.Transactions, bundle.Transactions[i])
			}
		}

		for i := range bundle.Transfers {
			res, err := tx.NewInsert().
				Model(toTokenTransferDao(&bundle.Transfers[i])).
				On("CONFLICT (tx_hash, log_index) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to insert token transfer %s/%d: %w",
					bundle.Transfers[i].TxHash, bundle.Transfers[i].LogIndex, err)
			}
			if affected(res) {
				written.Transfers = append(written.Transfers, bundle.Transfers[i])
			}
		}

		for i := range bundle.Events {
			res, err := tx.NewInsert().
				Model(toContractEventDao(&bundle.Events[i])).
				On("CONFLICT (tx_hash, log_index) DO NOTHING").
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("failed to insert contract event %s/%d: %w",
					bundle.Events[i].TxHash, bundle.Events[i].LogIndex, err)
			}
			if affected(res) {
				written.Events = append(written.Events, bundle.Events[i])
			}
		}

		st := state.New(tx)
		tip, err := st.LastIndexedBlock(ctx)
		if err != nil {
			return err
		}
		if bundle.Block.Number > tip || tip == 0 {
			return st.SetLastIndexedBlock(ctx, bundle.Block.Number)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return written, nil
}

func insertBlock(ctx context.Context, tx bun.Tx, b *model.Block) error {
	res, err := tx.NewInsert().
		Model(toBlockDao(b)).
		On("CONFLICT DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to insert block %d: %w", b.Number, err)
	}
	if affected(res) {
		return nil
	}

	// Nothing inserted: either a replay of the same block or a different one in its place.
	var hash string
	err = tx.NewSelect().
		Model((*dao.BlockDao)(nil)).
		Column("hash").
		Where("number = ?", int64(b.Number)).
		Scan(ctx, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: hash %s is stored at another height", ErrBlockConflict, b.Hash)
	}
	if err != nil {
		return fmt.Errorf("failed to read block %d: %w", b.Number, err)
	}
	if hash != b.Hash {
		return fmt.Errorf("%w %d: stored %s, got %s", ErrBlockConflict, b.Number, hash, b.Hash)
	}
	return nil
}

func upsertTransaction(ctx context.Context, tx bun.Tx, t *model.Transaction) (bool, error) {
	row := toTransactionDao(t)
	row.UpdatedAt = time.Now().UTC()

	res, err := tx.NewInsert().
		Model(row).
		On("CONFLICT (hash) DO UPDATE").
		Set("gas_used = EXCLUDED.gas_used").
		Set("status = EXCLUDED.status").
		Set("contract_address = EXCLUDED.contract_address").
		Set("decoded_method = COALESCE(EXCLUDED.decoded_method, transactions.decoded_method)").
		Set("updated_at = EXCLUDED.updated_at").
		Where("transactions.status = ?", string(model.TxStatusPending)).
		Exec(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to insert transaction %s: %w", t.Hash, err)
	}
	return affected(res), nil
}

func affected(res sql.Result) bool {
	n, err := res.RowsAffected()
	return err == nil && n > 0
}

// RollbackAbove deletes every block above height together with its child rows and
// resets the tip to height, all in one transaction.
func (s *Store) RollbackAbove(ctx context.Context, height uint64) (int64, error) {
	var removed int64
	err := s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewDelete().
			Model((*dao.BlockDao)(nil)).
			Where("number > ?", int64(height)).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("failed to delete blocks above %d: %w", height, err)
		}
		removed, _ = res.RowsAffected()

		return state.New(tx).SetLastIndexedBlock(ctx, height)
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

// BlockHash returns the stored hash at height. ok is false when nothing is stored there.
func (s *Store) BlockHash(ctx context.Context, height uint64) (hash string, ok bool, err error) {
	err = s.db.NewSelect().
		Model((*dao.BlockDao)(nil)).
		Column("hash").
		Where("number = ?", int64(height)).
		Scan(ctx, &hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get block hash %d: %w", height, err)
	}
	return hash, true, nil
}

// GetBlock returns the stored block at height.
func (s *Store) GetBlock(ctx context.Context, height uint64) (*model.Block, error) {
	row := new(dao.BlockDao)
	err := s.db.NewSelect().
		Model(row).
		Where("number = ?", int64(height)).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBlockNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", height, err)
	}
	return toBlock(row), nil
}

// CountFailedBetween counts failed transactions in blocks timestamped within [from, to].
func (s *Store) CountFailedBetween(ctx context.Context, from, to time.Time) (int, error) {
	n, err := s.db.NewSelect().
		TableExpr("transactions AS t").
		Join("JOIN blocks AS b ON b.number = t.block_number").
		Where("t.status = ?", string(model.TxStatusFailed)).
		Where(`b."timestamp" >= ?`, from.UTC()).
		Where(`b."timestamp" <= ?`, to.UTC()).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count failed transactions: %w", err)
	}
	return n, nil
}
