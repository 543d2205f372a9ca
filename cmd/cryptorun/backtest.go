package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/sawpanic/cryptorun/internal/backtest"
	"github.com/sawpanic/cryptorun/internal/metrics"
	"github.com/sawpanic/cryptorun/internal/portfolio"
	"github.com/sawpanic/cryptorun/internal/store/postgres"
	"github.com/sawpanic/cryptorun/internal/strategy"
	"github.com/sawpanic/cryptorun/internal/tick"
)

// newBacktestCmd runs one BacktestEngine replay against the configured
// store. On a TTY it prompts for any parameter not already given as a
// flag (teacher: runDefaultEntry's TTY-detection idiom in main.go);
// otherwise every parameter must come from flags, for scripting.
func newBacktestCmd() *cobra.Command {
	var (
		strategyID     string
		symbolFlag     string
		startFlag      string
		endFlag        string
		capitalFlag    string
		commissionFlag string
	)

	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay stored ticks through a strategy and report performance",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			interactive := term.IsTerminal(int(os.Stdin.Fd()))
			reader := bufio.NewReader(os.Stdin)

			if strategyID == "" {
				if !interactive {
					return fmt.Errorf("--strategy is required outside a TTY")
				}
				strategyID = promptDefault(reader, "Strategy (sma_crossover, rsi)", "sma_crossover")
			}
			if symbolFlag == "" {
				if !interactive {
					return fmt.Errorf("--symbol is required outside a TTY")
				}
				symbolFlag = promptDefault(reader, "Symbol", "BTC-USD")
			}
			if startFlag == "" {
				if !interactive {
					return fmt.Errorf("--start is required outside a TTY")
				}
				startFlag = promptDefault(reader, "Start (RFC3339)", time.Now().Add(-24*time.Hour).Format(time.RFC3339))
			}
			if endFlag == "" {
				if !interactive {
					return fmt.Errorf("--end is required outside a TTY")
				}
				endFlag = promptDefault(reader, "End (RFC3339)", time.Now().Format(time.RFC3339))
			}
			if capitalFlag == "" {
				capitalFlag = cfg.Backtest.InitialCash
				if interactive {
					capitalFlag = promptDefault(reader, "Initial capital", capitalFlag)
				}
			}
			if commissionFlag == "" {
				commissionFlag = fmt.Sprintf("%g", cfg.Backtest.CommissionRate)
				if interactive {
					commissionFlag = promptDefault(reader, "Commission rate", commissionFlag)
				}
			}

			symbol, err := tick.NewSymbol(symbolFlag)
			if err != nil {
				return err
			}
			start, err := time.Parse(time.RFC3339, startFlag)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, endFlag)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}

			strat, err := strategy.New(strategyID, nil)
			if err != nil {
				return err
			}

			pcfg := portfolio.DefaultConfig()
			if capitalFlag != "" {
				cash, perr := decimal.NewFromString(capitalFlag)
				if perr != nil {
					return fmt.Errorf("invalid capital %q: %w", capitalFlag, perr)
				}
				pcfg.InitialCash = cash
			}
			if commissionFlag != "" {
				rate, perr := decimal.NewFromString(commissionFlag)
				if perr != nil {
					return fmt.Errorf("invalid commission rate %q: %w", commissionFlag, perr)
				}
				pcfg.CommissionRate = rate
			}

			st, err := postgres.Open(cfg.Database.DSN)
			if err != nil {
				return fmt.Errorf("connect store: %w", err)
			}

			bcfg := backtest.DefaultConfig()
			bcfg.Symbol = symbol
			bcfg.Start = start
			bcfg.End = end
			bcfg.Strategy = strat
			bcfg.Portfolio = pcfg
			bcfg.ForceCloseAtEnd = cfg.Backtest.ForceCloseAtEnd

			engine := backtest.New(bcfg, st, log.Logger)

			result, err := engine.Run(cmd.Context())
			if err != nil {
				return fmt.Errorf("backtest failed: %w", err)
			}

			summary := metrics.Compute(result, 0)
			fmt.Printf("Replayed %d ticks over %v\n", result.TicksReplayed, result.Duration)
			fmt.Printf("Trades: %d   Total return: %s   Sharpe: %s\n", len(result.Trades), summary.TotalReturn, summary.SharpeRatio)
			fmt.Printf("Max drawdown: %s   Win rate: %s   Profit factor: %s\n", summary.MaxDrawdown, summary.WinRate, summary.ProfitFactor)
			return nil
		},
	}

	cmd.Flags().StringVar(&strategyID, "strategy", "", "strategy id (sma_crossover, rsi)")
	cmd.Flags().StringVar(&symbolFlag, "symbol", "", "symbol to replay")
	cmd.Flags().StringVar(&startFlag, "start", "", "replay window start (RFC3339)")
	cmd.Flags().StringVar(&endFlag, "end", "", "replay window end (RFC3339)")
	cmd.Flags().StringVar(&capitalFlag, "capital", "", "initial cash (defaults to config)")
	cmd.Flags().StringVar(&commissionFlag, "commission", "", "commission rate (defaults to config)")
	return cmd
}

func promptDefault(r *bufio.Reader, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	line, _ := r.ReadString('\n')
	line = strings.TrimSpace(line)
	if line == "" {
		return def
	}
	return line
}
