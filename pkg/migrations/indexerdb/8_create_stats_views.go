package indexerdb

import (
	"context"
	"fmt"
	"log"

	mghelper "github.com/chainsafe/evm-indexer/pkg/pgutil/migrations"

	"github.com/uptrace/bun"
)

// Stats views. Each carries a unique index so it can be refreshed CONCURRENTLY.
const (
	DailyStatsView   = "daily_stats"
	HourlyStatsView  = "hourly_stats"
	TopAddressesView = "top_addresses"
)

// StatsViews lists the materialized views in refresh order.
var StatsViews = []string{DailyStatsView, HourlyStatsView, TopAddressesView}

func periodStatsQuery(unit string) string {
	return fmt.Sprintf(`
WITH tx AS (
	SELECT date_trunc('%[1]s', b."timestamp") AS period,
		COUNT(*) AS tx_count,
		COUNT(*) FILTER (WHERE t.status = 'failed') AS failed_tx_count,
		COALESCE(SUM(t.value), 0) AS total_value,
		COALESCE(SUM(t.gas_used), 0) AS total_gas_used,
		COALESCE(SUM(t.gas_used * t.gas_price), 0) AS total_gas_cost,
		COALESCE(ROUND(AVG(t.gas_price)), 0) AS avg_gas_price,
		COUNT(DISTINCT t.from_address) AS unique_senders,
		COUNT(DISTINCT t.to_address) AS unique_receivers,
		COUNT(DISTINCT t.contract_address) AS unique_contracts
	FROM transactions t
	JOIN blocks b ON b.number = t.block_number
	GROUP BY 1
), tt AS (
	SELECT date_trunc('%[1]s', b."timestamp") AS period,
		COUNT(*) AS token_transfer_count
	FROM token_transfers x
	JOIN blocks b ON b.number = x.block_number
	GROUP BY 1
)
SELECT COALESCE(tx.period, tt.period) AS period,
	COALESCE(tx.tx_count, 0) AS tx_count,
	COALESCE(tx.failed_tx_count, 0) AS failed_tx_count,
	CASE WHEN COALESCE(tx.tx_count, 0) = 0 THEN 0
		ELSE ROUND(tx.failed_tx_count::numeric / tx.tx_count, 6) END AS failure_rate,
	COALESCE(tx.total_value, 0) AS total_value,
	COALESCE(tx.total_gas_used, 0) AS total_gas_used,
	COALESCE(tx.total_gas_cost, 0) AS total_gas_cost,
	COALESCE(tx.avg_gas_price, 0) AS avg_gas_price,
	COALESCE(tx.unique_senders, 0) AS unique_senders,
	COALESCE(tx.unique_receivers, 0) AS unique_receivers,
	COALESCE(tx.unique_contracts, 0) AS unique_contracts,
	COALESCE(tt.token_transfer_count, 0) AS token_transfer_count
FROM tx
FULL OUTER JOIN tt ON tt.period = tx.period`, unit)
}

const topAddressesQuery = `
WITH sent AS (
	SELECT t.from_address AS address, COUNT(*) AS n, SUM(t.value) AS total,
		MIN(b."timestamp") AS first_seen, MAX(b."timestamp") AS last_seen
	FROM transactions t
	JOIN blocks b ON b.number = t.block_number
	GROUP BY t.from_address
), received AS (
	SELECT t.to_address AS address, COUNT(*) AS n, SUM(t.value) AS total,
		MIN(b."timestamp") AS first_seen, MAX(b."timestamp") AS last_seen
	FROM transactions t
	JOIN blocks b ON b.number = t.block_number
	WHERE t.to_address IS NOT NULL
	GROUP BY t.to_address
)
SELECT COALESCE(s.address, r.address) AS address,
	COALESCE(s.n, 0) + COALESCE(r.n, 0) AS tx_count,
	COALESCE(s.n, 0) AS sent_count,
	COALESCE(r.n, 0) AS received_count,
	COALESCE(s.total, 0) AS total_sent,
	COALESCE(r.total, 0) AS total_received,
	LEAST(s.first_seen, r.first_seen) AS first_seen,
	GREATEST(s.last_seen, r.last_seen) AS last_seen
FROM sent s
FULL OUTER JOIN received r ON r.address = s.address
ORDER BY tx_count DESC, address ASC
LIMIT 1000`

func init() {
	Migrations.MustRegister(func(ctx context.Context, db *bun.DB) error {
		log.Println("creating stats materialized views...")
		if err := mghelper.CreateMaterializedView(ctx, db, DailyStatsView, periodStatsQuery("day")); err != nil {
			return err
		}
		if err := mghelper.CreateMaterializedView(ctx, db, HourlyStatsView, periodStatsQuery("hour")); err != nil {
			return err
		}
		if err := mghelper.CreateMaterializedView(ctx, db, TopAddressesView, topAddressesQuery); err != nil {
			return err
		}
		return mghelper.ExecStatements(ctx, db,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_daily_stats_period ON daily_stats (period)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_hourly_stats_period ON hourly_stats (period)`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_top_addresses_address ON top_addresses (address)`,
		)
	}, func(ctx context.Context, db *bun.DB) error {
		log.Println("dropping stats materialized views...")
		return mghelper.DropMaterializedViews(ctx, db, TopAddressesView, HourlyStatsView, DailyStatsView)
	})
}
