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
		log.Println("creating token_transfers table...")
		err := mghelper.CreateTableWithForeignKeys(ctx, db, &dao.TokenTransferDao{},
			"(tx_hash) REFERENCES transactions (hash) ON DELETE CASCADE")
		if err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.TokenTransferDao{},
			"block_number", "token_address", "from_address", "to_address")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping token_transfers table...")
		return mghelper.DropTables(ctx, db, &dao.TokenTransferDao{})
	})
}
