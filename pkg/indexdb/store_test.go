package indexdb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun/migrate"

	"github.com/chainsafe/evm-indexer/pkg/migrations/indexerdb"
	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/pgutil"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func setupStore(t *testing.T) (context.Context, *Store) {
	t.Helper()

	ctx := context.Background()
	db, cleanup := pgutil.SetupTestDB(t)
	t.Cleanup(cleanup)

	migrator := migrate.NewMigrator(db, indexerdb.Migrations)
	require.NoError(t, migrator.Init(ctx))
	_, err := migrator.Migrate(ctx)
	require.NoError(t, err)

	return ctx, NewStore(db)
}

func hashOf(prefix string, n uint64) string {
	return fmt.Sprintf("0x%s%062d", prefix, n)
}

func newBundle(number uint64, hash, parent string, txs ...model.Transaction) *model.BlockBundle {
	ts := baseTime.Add(time.Duration(number) * 12 * time.Second)
	for i := range txs {
		txs[i].BlockNumber = number
		txs[i].Index = uint(i)
		txs[i].Timestamp = ts
	}
	return &model.BlockBundle{
		Block: model.Block{
			Number:     number,
			Hash:       hash,
			ParentHash: parent,
			Timestamp:  ts,
			TxCount:    len(txs),
			GasUsed:    decimal.NewFromInt(21000 * int64(len(txs))),
			GasLimit:   decimal.NewFromInt(30_000_000),
			Miner:      "0x0000000000000000000000000000000000000001",
		},
		Transactions: txs,
	}
}

func newTx(hash, from, to string, value int64, status model.TxStatus) model.Transaction {
	price := decimal.NewFromInt(2_000_000_000)
	used := decimal.NewFromInt(21000)
	return model.Transaction{
		Hash:     hash,
		From:     from,
		To:       to,
		Value:    decimal.NewFromInt(value),
		GasLimit: decimal.NewFromInt(50000),
		GasPrice: &price,
		GasUsed:  &used,
		Status:   status,
		Type:     2,
	}
}

func withTransfer(b *model.BlockBundle, txHash string, logIndex uint, amount string) {
	amt := decimal.RequireFromString(amount)
	b.Transfers = append(b.Transfers, model.TokenTransfer{
		TxHash:       txHash,
		LogIndex:     logIndex,
		BlockNumber:  b.Block.Number,
		TokenAddress: "0x00000000000000000000000000000000000000ee",
		From:         "0x00000000000000000000000000000000000000aa",
		To:           "0x00000000000000000000000000000000000000bb",
		Amount:       amt,
		Standard:     model.StandardERC20,
	})
	b.Events = append(b.Events, model.ContractEvent{
		TxHash:          txHash,
		LogIndex:        logIndex,
		BlockNumber:     b.Block.Number,
		ContractAddress: "0x00000000000000000000000000000000000000ee",
		Topics:          []string{"0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"},
		Data:            "0x01",
		EventName:       "Transfer",
	})
}

func TestCommitBlock_Idempotent(t *testing.T) {
	ctx, s := setupStore(t)

	b := newBundle(100, hashOf("a", 100), hashOf("a", 99),
		newTx(hashOf("t", 1), "0xaaa", "0xbbb", 5, model.TxStatusSuccess))
	withTransfer(b, hashOf("t", 1), 0, "1000")

	written, err := s.CommitBlock(ctx, b)
	require.NoError(t, err)
	assert.Len(t, written.Transactions, 1)
	assert.Len(t, written.Transfers, 1)
	assert.Len(t, written.Events, 1)

	again, err := s.CommitBlock(ctx, b)
	require.NoError(t, err)
	assert.True(t, again.Empty(), "replay must not report new rows")

	pgutil.AssertRowCount(t, s.DB(), "blocks", 1)
	pgutil.AssertRowCount(t, s.DB(), "transactions", 1)
	pgutil.AssertRowCount(t, s.DB(), "token_transfers", 1)
	pgutil.AssertRowCount(t, s.DB(), "contract_events", 1)

	tip, err := s.State().LastIndexedBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), tip)
}

func TestCommitBlock_AtomicOnFailure(t *testing.T) {
	ctx, s := setupStore(t)

	b := newBundle(100, hashOf("a", 100), hashOf("a", 99),
		newTx(hashOf("t", 1), "0xaaa", "0xbbb", 5, model.TxStatusSuccess))
	// Transfer pointing at a transaction that is not part of the block.
	withTransfer(b, hashOf("t", 9), 0, "1")

	_, err := s.CommitBlock(ctx, b)
	require.Error(t, err)
	assert.True(t, IsFatal(err), "foreign key violation should be fatal: %v", err)

	pgutil.AssertRowCount(t, s.DB(), "blocks", 0)
	pgutil.AssertRowCount(t, s.DB(), "transactions", 0)

	tip, err := s.State().LastIndexedBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), tip)
}

func TestCommitBlock_ConflictingHash(t *testing.T) {
	ctx, s := setupStore(t)

	_, err := s.CommitBlock(ctx, newBundle(100, hashOf("a", 100), hashOf("a", 99)))
	require.NoError(t, err)

	_, err = s.CommitBlock(ctx, newBundle(100, hashOf("b", 100), hashOf("a", 99)))
	require.ErrorIs(t, err, ErrBlockConflict)
	assert.True(t, IsFatal(err))

	hash, ok, err := s.BlockHash(ctx, 100)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, hashOf("a", 100), hash)
}

func TestCommitBlock_PendingUpgrade(t *testing.T) {
	ctx, s := setupStore(t)

	pending := newTx(hashOf("t", 1), "0xaaa", "0xbbb", 5, model.TxStatusPending)
	pending.GasUsed = nil
	_, err := s.CommitBlock(ctx, newBundle(100, hashOf("a", 100), hashOf("a", 99), pending))
	require.NoError(t, err)

	confirmed := newTx(hashOf("t", 1), "0xaaa", "0xbbb", 5, model.TxStatusFailed)
	written, err := s.CommitBlock(ctx, newBundle(100, hashOf("a", 100), hashOf("a", 99), confirmed))
	require.NoError(t, err)
	require.Len(t, written.Transactions, 1)

	var status string
	require.NoError(t, s.DB().NewSelect().TableExpr("transactions").Column("status").Scan(ctx, &status))
	assert.Equal(t, "failed", status)

	// A confirmed transaction is never rewritten.
	written, err = s.CommitBlock(ctx, newBundle(100, hashOf("a", 100), hashOf("a", 99),
		newTx(hashOf("t", 1), "0xaaa", "0xbbb", 5, model.TxStatusSuccess)))
	require.NoError(t, err)
	assert.Empty(t, written.Transactions)
}

func TestRollbackAbove_Cascades(t *testing.T) {
	ctx, s := setupStore(t)

	_, err := s.CommitBlock(ctx, newBundle(100, hashOf("a", 100), hashOf("a", 99),
		newTx(hashOf("t", 1), "0xaaa", "0xbbb", 5, model.TxStatusSuccess)))
	require.NoError(t, err)

	b101 := newBundle(101, hashOf("a", 101), hashOf("a", 100),
		newTx(hashOf("t", 2), "0xaaa", "0xccc", 7, model.TxStatusSuccess))
	withTransfer(b101, hashOf("t", 2), 3, "42")
	_, err = s.CommitBlock(ctx, b101)
	require.NoError(t, err)

	removed, err := s.RollbackAbove(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)

	pgutil.AssertRowCount(t, s.DB(), "blocks", 1)
	pgutil.AssertRowCount(t, s.DB(), "transactions", 1)
	pgutil.AssertRowCount(t, s.DB(), "token_transfers", 0)
	pgutil.AssertRowCount(t, s.DB(), "contract_events", 0)

	tip, err := s.State().LastIndexedBlock(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), tip)

	_, ok, err := s.BlockHash(ctx, 101)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GetBlock(ctx, 101)
	assert.ErrorIs(t, err, ErrBlockNotFound)
}

func TestCountFailedBetween(t *testing.T) {
	ctx, s := setupStore(t)

	_, err := s.CommitBlock(ctx, newBundle(10, hashOf("a", 10), hashOf("a", 9),
		newTx(hashOf("t", 1), "0xaaa", "0xbbb", 1, model.TxStatusFailed),
		newTx(hashOf("t", 2), "0xaaa", "0xbbb", 1, model.TxStatusSuccess),
		newTx(hashOf("t", 3), "0xaaa", "0xbbb", 1, model.TxStatusFailed),
	))
	require.NoError(t, err)

	blockTime := baseTime.Add(120 * time.Second)
	n, err := s.CountFailedBetween(ctx, blockTime.Add(-time.Minute), blockTime)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = s.CountFailedBetween(ctx, blockTime.Add(time.Second), blockTime.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestAlerts_DedupAndMonotonicFlags(t *testing.T) {
	ctx, s := setupStore(t)

	height := uint64(100)
	a := &model.Alert{
		RuleName:    "watch",
		Type:        "watched_address",
		Severity:    model.SeverityCritical,
		Title:       "watched address active",
		Message:     "0xaaa sent a transaction",
		TxHash:      hashOf("t", 1),
		BlockNumber: &height,
		Address:     "0xaaa",
		Metadata:    map[string]any{"label": "treasury"},
		DedupKey:    "watched_address:watch:tx1:0xaaa",
	}
	created, err := s.InsertAlert(ctx, a)
	require.NoError(t, err)
	assert.True(t, created)
	require.NotEqual(t, uuid.Nil, a.ID)

	dup := *a
	dup.ID = uuid.Nil
	created, err = s.InsertAlert(ctx, &dup)
	require.NoError(t, err)
	assert.False(t, created)
	pgutil.AssertRowCount(t, s.DB(), "alerts", 1)

	pending, err := s.ListUndispatched(ctx, 5, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)

	require.NoError(t, s.RecordNotifyFailure(ctx, a.ID, 5, "connection refused"))
	pending, err = s.ListUndispatched(ctx, 5, 10)
	require.NoError(t, err)
	assert.Empty(t, pending, "alert past the attempt budget is not resumed")

	ok, err := s.MarkNotified(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.MarkNotified(ctx, a.ID, 1)
	require.NoError(t, err)
	assert.False(t, ok)

	acked, err := s.Acknowledge(ctx, a.ID, "ops")
	require.NoError(t, err)
	assert.True(t, acked.Acknowledged)
	require.NotNil(t, acked.AcknowledgedAt)
	assert.Equal(t, "ops", acked.AcknowledgedBy)

	again, err := s.Acknowledge(ctx, a.ID, "someone-else")
	require.NoError(t, err)
	assert.Equal(t, "ops", again.AcknowledgedBy)
	assert.True(t, acked.AcknowledgedAt.Equal(*again.AcknowledgedAt))

	got, err := s.GetAlert(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, got.Notified)
	assert.Equal(t, 7, got.NotifyAttempts, "failed and successful attempts are counted alike")
	assert.Equal(t, model.SeverityCritical, got.Severity)
	require.NotNil(t, got.BlockNumber)
	assert.Equal(t, uint64(100), *got.BlockNumber)
	assert.Equal(t, "treasury", got.Metadata["label"])

	_, err = s.Acknowledge(ctx, uuid.New(), "ops")
	assert.ErrorIs(t, err, ErrAlertNotFound)
}

func TestAlerts_SurviveRollback(t *testing.T) {
	ctx, s := setupStore(t)

	_, err := s.CommitBlock(ctx, newBundle(101, hashOf("a", 101), hashOf("a", 100),
		newTx(hashOf("t", 1), "0xaaa", "0xbbb", 5, model.TxStatusSuccess)))
	require.NoError(t, err)

	_, err = s.InsertAlert(ctx, &model.Alert{
		RuleName: "r", Type: "large_value", Severity: model.SeverityInfo,
		Title: "t", Message: "m", TxHash: hashOf("t", 1), DedupKey: "k1",
	})
	require.NoError(t, err)

	_, err = s.RollbackAbove(ctx, 100)
	require.NoError(t, err)
	pgutil.AssertRowCount(t, s.DB(), "alerts", 1)
}

func TestListAlerts_Filters(t *testing.T) {
	ctx, s := setupStore(t)

	for i, sev := range []model.Severity{model.SeverityInfo, model.SeverityWarning, model.SeverityCritical} {
		_, err := s.InsertAlert(ctx, &model.Alert{
			RuleName:  "r",
			Type:      "large_value",
			Severity:  sev,
			Title:     "t",
			Message:   "m",
			DedupKey:  fmt.Sprintf("k%d", i),
			CreatedAt: baseTime.Add(time.Duration(i) * time.Minute),
		})
		require.NoError(t, err)
	}

	all, err := s.ListAlerts(ctx, AlertFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, model.SeverityCritical, all[0].Severity, "newest first")

	crit, err := s.ListAlerts(ctx, AlertFilter{Severity: model.SeverityCritical})
	require.NoError(t, err)
	require.Len(t, crit, 1)

	_, err = s.Acknowledge(ctx, crit[0].ID, "ops")
	require.NoError(t, err)

	unacked := false
	open, err := s.ListAlerts(ctx, AlertFilter{Acknowledged: &unacked})
	require.NoError(t, err)
	assert.Len(t, open, 2)

	page, err := s.ListAlerts(ctx, AlertFilter{Limit: 1, Offset: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, model.SeverityWarning, page[0].Severity)
}

func TestWatchList_CRUD(t *testing.T) {
	ctx, s := setupStore(t)

	require.NoError(t, s.UpsertWatched(ctx, &model.WatchedAddress{
		Address:         "0xAAAaaa0000000000000000000000000000000001",
		Label:           "hot wallet",
		Reason:          "exchange",
		Severity:        model.SeverityWarning,
		AlertOnActivity: true,
	}))

	w, err := s.GetWatched(ctx, "0xaaaaaa0000000000000000000000000000000001")
	require.NoError(t, err)
	assert.Equal(t, "hot wallet", w.Label)
	assert.True(t, w.AlertOnActivity)

	require.NoError(t, s.UpsertWatched(ctx, &model.WatchedAddress{
		Address:  "0xaaaaaa0000000000000000000000000000000001",
		Label:    "hot wallet",
		Reason:   "exploit",
		Severity: model.SeverityCritical,
	}))

	list, err := s.WatchList(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, model.SeverityCritical, list[0].Severity)
	assert.False(t, list[0].AlertOnActivity)

	require.NoError(t, s.RemoveWatched(ctx, "0xaaaaaa0000000000000000000000000000000001"))
	assert.ErrorIs(t, s.RemoveWatched(ctx, "0xaaaaaa0000000000000000000000000000000001"), ErrWatchedAddressNotFound)

	_, err = s.GetWatched(ctx, "0xaaaaaa0000000000000000000000000000000001")
	assert.ErrorIs(t, err, ErrWatchedAddressNotFound)
}

func TestRefreshViews_Deterministic(t *testing.T) {
	ctx, s := setupStore(t)

	b := newBundle(1, hashOf("a", 1), hashOf("a", 0),
		newTx(hashOf("t", 1), "0xaaa", "0xbbb", 10, model.TxStatusSuccess),
		newTx(hashOf("t", 2), "0xaaa", "0xccc", 20, model.TxStatusFailed),
	)
	withTransfer(b, hashOf("t", 1), 0, "5")
	_, err := s.CommitBlock(ctx, b)
	require.NoError(t, err)

	before, err := s.DailyStats(ctx, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Empty(t, before, "views only change on refresh")

	require.NoError(t, s.RefreshViews(ctx, time.Minute))
	first, err := s.DailyStats(ctx, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, first, 1)
	assert.Equal(t, int64(2), first[0].TxCount)
	assert.Equal(t, int64(1), first[0].FailedTxCount)
	assert.True(t, decimal.NewFromFloat(0.5).Equal(first[0].FailureRate))
	assert.True(t, decimal.NewFromInt(30).Equal(first[0].TotalValue))
	assert.Equal(t, int64(1), first[0].UniqueSenders)
	assert.Equal(t, int64(2), first[0].UniqueReceivers)
	assert.Equal(t, int64(1), first[0].TokenTransferCount)

	require.NoError(t, s.RefreshViews(ctx, time.Minute))
	second, err := s.DailyStats(ctx, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	hourly, err := s.HourlyStats(ctx, time.Time{}, time.Time{}, 10)
	require.NoError(t, err)
	require.Len(t, hourly, 1)

	top, err := s.TopAddresses(ctx, 10)
	require.NoError(t, err)
	require.Len(t, top, 3)
	assert.Equal(t, "0xaaa", top[0].Address)
	assert.Equal(t, int64(2), top[0].SentCount)
}

func TestLease_Exclusive(t *testing.T) {
	ctx, s := setupStore(t)

	lease, err := s.AcquireLease(ctx, 4242)
	require.NoError(t, err)

	_, err = s.AcquireLease(ctx, 4242)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	require.NoError(t, lease.Release(ctx))

	again, err := s.AcquireLease(ctx, 4242)
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}
