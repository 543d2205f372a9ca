// Command cryptorun is the CLI entrypoint: a live ingest daemon, a
// backtest runner, and the boundary HTTP API server, per spec.md §6 and
// SPEC_FULL.md §6.2.
//
// Grounded on the teacher's cmd/cryptorun/main.go: zerolog initialized in
// main before cobra runs, a cobra.Command tree with a Version string, and
// TTY-aware routing (runDefaultEntry) for the interactive surface.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptorun/internal/config"
	"github.com/sawpanic/cryptorun/internal/obs"
)

const (
	appName = "cryptorun"
	version = "v0.1.0"
)

var configPath string

func main() {
	rootCmd := &cobra.Command{
		Use:     appName,
		Short:   "Cryptocurrency tick ingestion, caching, and strategy backtesting",
		Version: version,
		Long: `cryptorun ingests exchange tick data into a durable store with a
two-tier cache in front of it, and replays stored ticks through pluggable
strategies for deterministic backtests.`,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file (env vars always win)")

	// live is also the default when no subcommand is given.
	liveCmd := newLiveCmd()
	rootCmd.RunE = liveCmd.RunE
	rootCmd.Flags().AddFlagSet(liveCmd.Flags())
	rootCmd.AddCommand(liveCmd)
	rootCmd.AddCommand(newBacktestCmd())
	rootCmd.AddCommand(newServeCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig reads and validates the process configuration, initializing
// the zerolog logger from its log.level before returning.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	logger := obs.NewLogger(cfg.Log.Level)
	log.Logger = logger
	return cfg, nil
}
