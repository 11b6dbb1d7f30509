package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chainsafe/evm-indexer/pkg/app"
	"github.com/chainsafe/evm-indexer/pkg/app/indexer"
	"github.com/chainsafe/evm-indexer/pkg/config"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the indexer and its operational API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		if noStart, _ := cmd.Flags().GetBool("no-start"); noStart {
			cfg.Indexer.AutoStart = false
		}
		var runner app.Runner = indexer.NewServer(cfg)
		return runner.Run()
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().Bool("no-start", false, "Serve the API without starting ingestion")
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return cfg, nil
}
