package indexerdb

import (
	"context"
	"log"

	"github.com/chainsafe/evm-indexer/pkg/indexdb/dao"
	mghelper "github.com/chainsafe/evm-indexer/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating transactions table...")
		err := mghelper.CreateTableWithForeignKeys(ctx, db, &dao.TransactionDao{},
			"(block_number) REFERENCES blocks (number) ON DELETE CASCADE")
		if err != nil {
			return err
		}
		if err := mghelper.CreateCompositeIndex(ctx, db, "transactions", "uq_transactions_block_index", true,
			"block_number", "tx_index"); err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.TransactionDao{},
			"from_address", "to_address", "contract_address", "status", "block_number")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping transactions table...")
		return mghelper.DropTables(ctx, db, &dao.TransactionDao{})
	})
}
