package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/sawpanic/cryptorun/internal/httpapi"
	"github.com/sawpanic/cryptorun/internal/obs"
	"github.com/sawpanic/cryptorun/internal/store/postgres"
)

// newServeCmd starts the boundary HTTP API for a host shell, per
// SPEC_FULL.md §6.3, and shuts it down cleanly on SIGINT/SIGTERM
// (teacher: Server.Shutdown in internal/interfaces/http/server.go).
func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the boundary HTTP API (data-info, strategies, backtests, health, metrics)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			st, err := postgres.Open(cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("connect store: %w", err)
			}

			registry := obs.NewMetricsRegistry()
			srv, err := httpapi.NewServer(httpapi.ServerConfig{
				Host:            cfg.HTTP.Host,
				Port:            cfg.HTTP.Port,
				ReadTimeout:     10 * time.Second,
				WriteTimeout:    10 * time.Second,
				IdleTimeout:     60 * time.Second,
				ForceCloseAtEnd: cfg.Backtest.ForceCloseAtEnd,
			}, st, registry, log.Logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("host", cfg.HTTP.Host).Int("port", cfg.HTTP.Port).Msg("boundary API listening")
				errCh <- srv.Start()
			}()

			select {
			case <-ctx.Done():
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				log.Info().Msg("shutting down boundary API")
				return srv.Shutdown(shutdownCtx)
			case err := <-errCh:
				return err
			}
		},
	}
	return cmd
}
