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
		log.Println("creating alerts table...")
		if err := mghelper.CreateSchema(ctx, db, &dao.AlertDao{}); err != nil {
			return err
		}
		if err := mghelper.CreateModelIndexes(ctx, db, &dao.AlertDao{},
			"rule_name", "severity", "created_at", "tx_hash"); err != nil {
			return err
		}
		// Partial index backing the dispatcher resume scan.
		return mghelper.ExecStatements(ctx, db,
			`CREATE INDEX IF NOT EXISTS idx_alerts_undispatched ON alerts (created_at) WHERE notified = false`)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping alerts table...")
		return mghelper.DropTables(ctx, db, &dao.AlertDao{})
	})
}
