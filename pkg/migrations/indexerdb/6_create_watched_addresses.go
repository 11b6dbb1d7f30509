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
		log.Println("creating watched_addresses table...")
		return mghelper.CreateSchema(ctx, db, &dao.WatchedAddressDao{})
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping watched_addresses table...")
		return mghelper.DropTables(ctx, db, &dao.WatchedAddressDao{})
	})
}
