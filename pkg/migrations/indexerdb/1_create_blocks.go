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
		log.Println("creating blocks table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.BlockDao{}); err != nil {
			return err
		}
		return mghelper.CreateIndex(ctx, db, "blocks", "idx_blocks_timestamp", "timestamp")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping blocks table...")
		return mghelper.DropTables(ctx, db, &dao.BlockDao{})
	})
}
