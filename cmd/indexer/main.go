package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "evm-indexer",
	Short: "EVM chain indexer with reorg handling, alerting and aggregates",
	Long: "Ingests blocks, transactions and logs from an EVM node into PostgreSQL, " +
		"evaluates alert rules on committed data and maintains aggregate statistics",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "config.yaml", "Path to configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
