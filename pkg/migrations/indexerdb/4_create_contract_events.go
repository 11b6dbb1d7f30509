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
		log.Println("creating contract_events table...")
		err := mghelper.CreateTableWithForeignKeys(ctx, db, &dao.ContractEventDao{},
			"(tx_hash) REFERENCES transactions (hash) ON DELETE CASCADE")
		if err != nil {
			return err
		}
		return mghelper.CreateModelIndexes(ctx, db, &dao.ContractEventDao{},
			"block_number", "contract_address", "topic0", "event_name")
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping contract_events table...")
		return mghelper.DropTables(ctx, db, &dao.ContractEventDao{})
	})
}
