package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/chainsafe/evm-indexer/pkg/config"
	"github.com/chainsafe/evm-indexer/pkg/cursor"
	"github.com/chainsafe/evm-indexer/pkg/indexdb"
	"github.com/chainsafe/evm-indexer/pkg/model"
	"github.com/chainsafe/evm-indexer/pkg/pgutil"
	"github.com/chainsafe/evm-indexer/pkg/source"
	"github.com/chainsafe/evm-indexer/pkg/stats"
)

const opTimeout = 5 * time.Minute

const headTimeout = 15 * time.Second

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print run status, the last indexed block, the upstream head and the lag",
	RunE: withStore(func(ctx context.Context, _ *cobra.Command, cfg *config.Config, store *indexdb.Store, _ []string) error {
		st, err := store.State().Status(ctx)
		if err != nil {
			return err
		}
		tip, err := store.LastIndexedBlock(ctx)
		if err != nil {
			return err
		}

		out := map[string]any{
			"status":     st.Status,
			"started_at": st.StartedAt,
			"error":      st.Error,
			"tip":        tip,
		}
		latest, err := upstreamHeight(ctx, &cfg.Chain)
		if err != nil {
			out["head_error"] = err.Error()
			return printJSON(out)
		}
		head, lag := chainProgress(tip, latest, cfg.Chain.Confirmations)
		out["head"] = head
		out["lag"] = lag
		return printJSON(out)
	}),
}

func upstreamHeight(ctx context.Context, cfg *config.ChainConfig) (uint64, error) {
	ctx, cancel := context.WithTimeout(ctx, headTimeout)
	defer cancel()

	src, err := source.NewEthSource(ctx, cfg, zap.NewNop())
	if err != nil {
		return 0, err
	}
	defer src.Close()
	return src.LatestHeight(ctx)
}

// chainProgress returns the confirmed head and how far tip trails it.
func chainProgress(tip, latest, confirmations uint64) (head, lag uint64) {
	head = cursor.ConfirmedHead(latest, confirmations)
	if head > tip {
		lag = head - tip
	}
	return head, lag
}

var refreshStatsCmd = &cobra.Command{
	Use:   "refresh-stats",
	Short: "Recompute the aggregate views once",
	RunE: withStore(func(ctx context.Context, _ *cobra.Command, cfg *config.Config, store *indexdb.Store, _ []string) error {
		logger, err := config.NewLogger(cfg.Logging)
		if err != nil {
			return err
		}
		defer func() { _ = logger.Sync() }()

		r := stats.New(store, cfg.Stats, logger)
		if err := r.Refresh(ctx); err != nil {
			return err
		}
		last, _ := r.LastResult()
		fmt.Printf("stats refreshed in %s\n", last.Duration)
		return nil
	}),
}

var ackAlertCmd = &cobra.Command{
	Use:   "ack-alert <id>",
	Short: "Acknowledge an alert",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, cmd *cobra.Command, _ *config.Config, store *indexdb.Store, args []string) error {
		id, err := uuid.Parse(args[0])
		if err != nil {
			return fmt.Errorf("invalid alert id: %w", err)
		}
		by, _ := cmd.Flags().GetString("by")
		a, err := store.Acknowledge(ctx, id, by)
		if err != nil {
			return err
		}
		return printJSON(a)
	}),
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Manage the address watch list",
}

var watchListCmd = &cobra.Command{
	Use:   "list",
	Short: "List watched addresses",
	RunE: withStore(func(ctx context.Context, _ *cobra.Command, _ *config.Config, store *indexdb.Store, _ []string) error {
		list, err := store.WatchList(ctx)
		if err != nil {
			return err
		}
		return printJSON(list)
	}),
}

var watchAddCmd = &cobra.Command{
	Use:   "add <address>",
	Short: "Add or update a watched address",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, cmd *cobra.Command, _ *config.Config, store *indexdb.Store, args []string) error {
		if !common.IsHexAddress(args[0]) {
			return fmt.Errorf("invalid address %q", args[0])
		}
		label, _ := cmd.Flags().GetString("label")
		reason, _ := cmd.Flags().GetString("reason")
		sevFlag, _ := cmd.Flags().GetString("severity")
		silent, _ := cmd.Flags().GetBool("silent")

		sev, err := model.ParseSeverity(sevFlag)
		if err != nil {
			return err
		}
		w := &model.WatchedAddress{
			Address:         model.NormalizeAddress(args[0]),
			Label:           label,
			Reason:          reason,
			Severity:        sev,
			AlertOnActivity: !silent,
		}
		if err := store.UpsertWatched(ctx, w); err != nil {
			return err
		}
		fmt.Printf("watching %s\n", w.Address)
		return nil
	}),
}

var watchRemoveCmd = &cobra.Command{
	Use:   "remove <address>",
	Short: "Remove a watched address",
	Args:  cobra.ExactArgs(1),
	RunE: withStore(func(ctx context.Context, _ *cobra.Command, _ *config.Config, store *indexdb.Store, args []string) error {
		if err := store.RemoveWatched(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("removed %s\n", model.NormalizeAddress(args[0]))
		return nil
	}),
}

func init() {
	rootCmd.AddCommand(statusCmd, refreshStatsCmd, ackAlertCmd, watchCmd)
	watchCmd.AddCommand(watchListCmd, watchAddCmd, watchRemoveCmd)

	ackAlertCmd.Flags().String("by", "cli", "Recorded as the acknowledging actor")

	watchAddCmd.Flags().StringP("label", "l", "", "Human readable label")
	watchAddCmd.Flags().StringP("reason", "r", "", "Why the address is watched")
	watchAddCmd.Flags().StringP("severity", "s", string(model.SeverityWarning), "Alert severity: info, warning or critical")
	watchAddCmd.Flags().Bool("silent", false, "Keep the entry without raising activity alerts")
}

type storeFunc func(ctx context.Context, cmd *cobra.Command, cfg *config.Config, store *indexdb.Store, args []string) error

// withStore loads config and opens the database for a one-shot command.
func withStore(fn storeFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		db, err := pgutil.ConnectDB(&cfg.Database)
		if err != nil {
			return err
		}
		store := indexdb.NewStore(db)
		defer func() { _ = store.Close() }()

		ctx, cancel := context.WithTimeout(cmd.Context(), opTimeout)
		defer cancel()
		return fn(ctx, cmd, cfg, store, args)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
