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
		log.Println("creating indexer_state table...")
		return mghelper.CreateSchema(ctx, db, &dao.IndexerStateDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping indexer_state table...")
		return mghelper.DropTables(ctx, db, &dao.IndexerStateDao{})
	})
}
