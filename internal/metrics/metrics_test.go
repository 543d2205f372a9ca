package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/backtest"
	"github.com/sawpanic/cryptorun/internal/portfolio"
)

func TestCompute_TotalReturn(t *testing.T) {
	base := time.Now()
	result := &backtest.Result{
		Equity: []portfolio.EquitySample{
			{TS: base, Equity: decimal.NewFromInt(100)},
			{TS: base.Add(time.Second), Equity: decimal.NewFromInt(110)},
		},
	}
	s := Compute(result, 0)
	expected := decimal.NewFromFloat(0.1)
	if !s.TotalReturn.Equal(expected) {
		t.Fatalf("expected total return 0.1, got %s", s.TotalReturn)
	}
}

func TestCompute_MaxDrawdown(t *testing.T) {
	base := time.Now()
	result := &backtest.Result{
		Equity: []portfolio.EquitySample{
			{TS: base, Equity: decimal.NewFromInt(100)},
			{TS: base.Add(time.Second), Equity: decimal.NewFromInt(150)},
			{TS: base.Add(2 * time.Second), Equity: decimal.NewFromInt(90)},
			{TS: base.Add(3 * time.Second), Equity: decimal.NewFromInt(120)},
		},
	}
	s := Compute(result, 0)
	f, _ := s.MaxDrawdown.Float64()
	if f < 0.39 || f > 0.41 {
		t.Fatalf("expected ~40%% drawdown, got %f", f)
	}
}

func TestCompute_WinRateAndProfitFactor(t *testing.T) {
	result := &backtest.Result{
		Trades: []portfolio.TradeRecord{
			{RealizedPnL: decimal.NewFromInt(10)},
			{RealizedPnL: decimal.NewFromInt(-5)},
			{RealizedPnL: decimal.NewFromInt(20)},
			{RealizedPnL: decimal.Zero}, // non-closing trade, excluded
		},
	}
	s := Compute(result, 0)
	if s.NumTrades != 3 {
		t.Fatalf("expected 3 closing trades, got %d", s.NumTrades)
	}
	wr, _ := s.WinRate.Float64()
	if wr < 0.66 || wr > 0.67 {
		t.Fatalf("expected win rate ~2/3, got %f", wr)
	}
	pf, _ := s.ProfitFactor.Float64()
	if pf != 6 {
		t.Fatalf("expected profit factor 30/5=6, got %f", pf)
	}
}

func TestCompute_NoLosingTradesProfitFactorIsGrossProfit(t *testing.T) {
	result := &backtest.Result{
		Trades: []portfolio.TradeRecord{
			{RealizedPnL: decimal.NewFromInt(10)},
		},
	}
	s := Compute(result, 0)
	if !s.ProfitFactor.Equal(decimal.NewFromInt(10)) {
		t.Fatalf("expected profit factor == gross profit with no losses, got %s", s.ProfitFactor)
	}
}

func TestCompute_EmptyResult(t *testing.T) {
	s := Compute(&backtest.Result{}, 0)
	if !s.TotalReturn.IsZero() || s.NumTrades != 0 {
		t.Fatalf("expected zero-value summary for empty result, got %+v", s)
	}
}
