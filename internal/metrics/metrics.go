// Package metrics computes the summary statistics spec §4.8 requires
// from a completed backtest: total return, Sharpe ratio, max drawdown,
// win rate, and profit factor.
//
// Grounded on ComprehensiveMetrics
// (CRun0.9/reviews/CodeReview_CProtocol/internal/testing/types.go): the
// same field set (TotalReturn, SharpeRatio, MaxDrawdown, WinRate,
// ProfitFactor), adapted here from mixed decimal/float64 typing to
// decimal-typed outputs computed from float64 intermediate statistics
// (mean, stddev, ln, sqrt have no exact decimal equivalents — the
// float64-then-decimal-at-the-boundary pattern spec §7 calls for).
package metrics

import (
	"math"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/backtest"
	"github.com/sawpanic/cryptorun/internal/portfolio"
	"github.com/sawpanic/cryptorun/internal/tick"
)

// Summary holds the computed statistics for one completed run.
type Summary struct {
	TotalReturn tick.Decimal
	SharpeRatio tick.Decimal
	MaxDrawdown tick.Decimal
	WinRate     tick.Decimal
	ProfitFactor tick.Decimal
	NumTrades   int
}

// Compute derives a Summary from a backtest.Result's equity curve and
// closed-trade PnL log. periodsPerYear annualizes the Sharpe ratio
// (e.g. 252 for daily bars, 365*24*3600 for per-second tick sampling);
// pass 0 to get the non-annualized (per-period) Sharpe.
func Compute(result *backtest.Result, periodsPerYear float64) Summary {
	s := Summary{}

	if len(result.Equity) > 0 {
		first := result.Equity[0].Equity
		last := result.Equity[len(result.Equity)-1].Equity
		if !first.IsZero() {
			s.TotalReturn = last.Sub(first).Div(first)
		}
	}

	returns := periodReturns(result.Equity)
	s.SharpeRatio = decimal.NewFromFloat(sharpe(returns, periodsPerYear))
	s.MaxDrawdown = decimal.NewFromFloat(maxDrawdown(result.Equity))

	wins, losses, grossProfit, grossLoss := tradeStats(result.Trades)
	s.NumTrades = wins + losses
	if s.NumTrades > 0 {
		s.WinRate = decimal.NewFromInt(int64(wins)).DivRound(decimal.NewFromInt(int64(s.NumTrades)), 8)
	}
	if grossLoss.Sign() > 0 {
		s.ProfitFactor = grossProfit.DivRound(grossLoss, 8)
	} else if grossProfit.Sign() > 0 {
		// No losing trades: profit factor is conventionally reported as
		// unbounded; we cap it at grossProfit itself to keep the field
		// finite and comparable rather than emitting +Inf.
		s.ProfitFactor = grossProfit
	}

	return s
}

func periodReturns(curve []portfolio.EquitySample) []float64 {
	if len(curve) < 2 {
		return nil
	}
	out := make([]float64, 0, len(curve)-1)
	for i := 1; i < len(curve); i++ {
		prev, _ := curve[i-1].Equity.Float64()
		cur, _ := curve[i].Equity.Float64()
		if prev == 0 {
			continue
		}
		out = append(out, (cur-prev)/prev)
	}
	return out
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	sum := 0.0
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64, m float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	sumSq := 0.0
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)-1))
}

// sharpe returns the (optionally annualized) Sharpe ratio of a return
// series, assuming a zero risk-free rate.
func sharpe(returns []float64, periodsPerYear float64) float64 {
	if len(returns) < 2 {
		return 0
	}
	m := mean(returns)
	sd := stddev(returns, m)
	if sd == 0 {
		return 0
	}
	ratio := m / sd
	if periodsPerYear > 0 {
		ratio *= math.Sqrt(periodsPerYear)
	}
	return ratio
}

// maxDrawdown returns the largest peak-to-trough decline in the equity
// curve, expressed as a positive fraction (0.2 == 20% drawdown).
func maxDrawdown(curve []portfolio.EquitySample) float64 {
	if len(curve) == 0 {
		return 0
	}
	peak, _ := curve[0].Equity.Float64()
	maxDD := 0.0
	for _, sample := range curve {
		v, _ := sample.Equity.Float64()
		if v > peak {
			peak = v
		}
		if peak <= 0 {
			continue
		}
		dd := (peak - v) / peak
		if dd > maxDD {
			maxDD = dd
		}
	}
	return maxDD
}

// tradeStats partitions closed trades (those with a non-zero
// RealizedPnL) into wins/losses and sums gross profit/loss.
func tradeStats(trades []portfolio.TradeRecord) (wins, losses int, grossProfit, grossLoss tick.Decimal) {
	grossProfit, grossLoss = decimal.Zero, decimal.Zero
	for _, t := range trades {
		if t.RealizedPnL.IsZero() {
			continue // not a closing trade
		}
		if t.RealizedPnL.Sign() > 0 {
			wins++
			grossProfit = grossProfit.Add(t.RealizedPnL)
		} else {
			losses++
			grossLoss = grossLoss.Add(t.RealizedPnL.Abs())
		}
	}
	return
}
