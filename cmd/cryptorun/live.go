package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptorun/internal/cache"
	"github.com/sawpanic/cryptorun/internal/ingest"
	"github.com/sawpanic/cryptorun/internal/source/wsfeed"
	"github.com/sawpanic/cryptorun/internal/store/postgres"
	"github.com/sawpanic/cryptorun/internal/tick"
)

// newLiveCmd wires a TickSource into the IngestPipeline and runs until
// SIGINT/SIGTERM, mirroring the teacher's long-running daemon commands
// (monitor_main.go's signal-driven shutdown).
func newLiveCmd() *cobra.Command {
	var symbolsFlag []string

	cmd := &cobra.Command{
		Use:   "live",
		Short: "Ingest live ticks from a configured source into the tick store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Ingest.SourceURL == "" {
				return fmt.Errorf("ingest.source_url (or config file) must be set for live mode")
			}

			st, err := postgres.Open(cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("connect store: %w", err)
			}

			var l2 cache.L2
			if cfg.Cache.RedisURL != "" {
				opts, err := redis.ParseURL(cfg.Cache.RedisURL)
				if err != nil {
					return fmt.Errorf("parse cache.redis_url: %w", err)
				}
				l2 = cache.NewRedisL2(redis.NewClient(opts))
			}
			cch := cache.New(cache.Config{
				L1Capacity: cfg.Cache.L1Capacity,
				L1TTL:      cfg.Cache.L1TTL,
				LateWindow: cfg.Cache.LateWindow,
			}, l2, log.Logger)

			symbols := make([]tick.Symbol, 0, len(symbolsFlag))
			for _, raw := range symbolsFlag {
				sym, err := tick.NewSymbol(raw)
				if err != nil {
					return fmt.Errorf("invalid --symbol %q: %w", raw, err)
				}
				symbols = append(symbols, sym)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			wsCfg := wsfeed.DefaultConfig(cfg.Ingest.SourceURL)
			feed, err := wsfeed.Connect(ctx, wsCfg, symbols, log.Logger)
			if err != nil {
				return fmt.Errorf("connect tick source: %w", err)
			}
			defer feed.Close()

			pipeline := ingest.New(ingest.Config{
				QueueCapacity: cfg.Ingest.QueueCapacity,
				BatchSize:     cfg.Ingest.BatchSize,
				BatchAge:      cfg.Ingest.BatchAge,
				DrainTimeout:  cfg.Ingest.DrainTimeout,
				Symbols:       symbols,
				MaxClockSkew:  cfg.Ingest.MaxClockSkew,
			}, st, cch, log.Logger)
			pipeline.Start(ctx)

			log.Info().Strs("symbols", symbolsFlag).Str("source", cfg.Ingest.SourceURL).Msg("live ingest started")
			pipeline.RunSource(ctx, feed)

			log.Info().Msg("shutting down ingest pipeline")
			pipeline.Stop()
			stats := pipeline.Stats()
			log.Info().Uint64("accepted", stats.Accepted).Uint64("rejected", stats.Rejected).Uint64("committed", stats.Committed).Msg("ingest pipeline stopped")
			return nil
		},
	}

	cmd.Flags().StringSliceVar(&symbolsFlag, "symbol", nil, "symbol(s) to subscribe to (repeatable, e.g. --symbol BTC-USD --symbol ETH-USD)")
	return cmd
}
