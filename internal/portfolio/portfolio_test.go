package portfolio

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/strategy"
	"github.com/sawpanic/cryptorun/internal/tick"
)

func mkTick(symbol string, price float64, ts time.Time) tick.Tick {
	sym, _ := tick.NewSymbol(symbol)
	return tick.Tick{
		Symbol:  sym,
		TS:      ts,
		Price:   decimal.NewFromFloat(price),
		Qty:     decimal.NewFromInt(1),
		Side:    tick.SideBuy,
		TradeID: 1,
	}
}

func noCommission() Config {
	return Config{
		InitialCash:    decimal.NewFromInt(10000),
		CommissionRate: decimal.Zero,
		MinCommission:  decimal.Zero,
	}
}

func TestPortfolio_BuyThenClose_RoundTripsCashMinusCommission(t *testing.T) {
	cfg := DefaultConfig()
	cfg.InitialCash = decimal.NewFromInt(10000)
	p := New(cfg)
	base := time.Now()

	p.Apply(strategy.SignalBuy, mkTick("BTC-USD", 100, base))
	if p.Cash.Sign() < 0 {
		t.Fatalf("cash went negative on buy: %s", p.Cash)
	}

	pos := p.Positions[mustSymbol("BTC-USD")]
	if pos.Qty.Sign() <= 0 {
		t.Fatalf("expected a long position after buy, got qty %s", pos.Qty)
	}

	p.Apply(strategy.SignalClose, mkTick("BTC-USD", 100, base.Add(time.Second)))
	pos = p.Positions[mustSymbol("BTC-USD")]
	if !pos.Qty.IsZero() {
		t.Fatalf("expected flat position after close, got qty %s", pos.Qty)
	}

	// Flat round trip at the same price should only cost commission.
	expected := cfg.InitialCash.Sub(p.Cash)
	if expected.Sign() < 0 {
		t.Fatalf("round trip at flat price should not profit: delta %s", expected)
	}
}

func TestPortfolio_WeightedAverageEntryPrice(t *testing.T) {
	p := New(noCommission())
	base := time.Now()

	p.Apply(strategy.SignalBuy, mkTick("BTC-USD", 100, base))

	// The first buy spends 100% of cash, so reset the book to a known
	// 10-unit long at 100 and give it exactly enough cash for 10 more
	// units at 200; a second Buy while long then adds to the position.
	pos := p.Positions[mustSymbol("BTC-USD")]
	pos.AvgPrice = decimal.NewFromInt(100)
	pos.Qty = decimal.NewFromInt(10)
	p.Cash = decimal.NewFromInt(2000)

	p.Apply(strategy.SignalBuy, mkTick("BTC-USD", 200, base.Add(time.Second)))
	pos = p.Positions[mustSymbol("BTC-USD")]
	if !pos.Qty.Equal(decimal.NewFromInt(20)) {
		t.Fatalf("expected combined qty 20, got %s", pos.Qty)
	}
	if !pos.AvgPrice.Equal(decimal.NewFromInt(150)) {
		t.Fatalf("expected weighted avg 150, got %s", pos.AvgPrice)
	}
}

func TestPortfolio_RealizedPnLPositiveOnProfitableClose(t *testing.T) {
	p := New(noCommission())
	base := time.Now()

	p.Apply(strategy.SignalBuy, mkTick("BTC-USD", 100, base))
	p.Apply(strategy.SignalClose, mkTick("BTC-USD", 110, base.Add(time.Second)))

	if p.RealizedPnL().Sign() <= 0 {
		t.Fatalf("expected positive realized PnL on profitable close, got %s", p.RealizedPnL())
	}
}

func TestPortfolio_CloseAllFlattensOpenPositions(t *testing.T) {
	p := New(noCommission())
	base := time.Now()
	p.Apply(strategy.SignalBuy, mkTick("BTC-USD", 100, base))

	p.CloseAll(map[tick.Symbol]tick.Decimal{mustSymbol("BTC-USD"): decimal.NewFromInt(105)}, base.Add(time.Minute))

	pos := p.Positions[mustSymbol("BTC-USD")]
	if !pos.Qty.IsZero() {
		t.Fatalf("expected CloseAll to flatten position, got qty %s", pos.Qty)
	}
}

func TestPortfolio_EquityCurveGrows(t *testing.T) {
	// Mirrors the engine's per-tick loop: Mark samples equity
	// unconditionally, Apply adds one more sample only when a signal
	// actually produces a fill.
	p := New(noCommission())
	base := time.Now()

	tick1 := mkTick("BTC-USD", 100, base)
	p.Mark(tick1)
	p.Apply(strategy.SignalBuy, tick1)

	tick2 := mkTick("BTC-USD", 120, base.Add(time.Second))
	p.Mark(tick2)
	p.Apply(strategy.SignalHold, tick2)

	if len(p.Equity) != 3 {
		t.Fatalf("expected 3 equity samples (mark, buy fill, mark), got %d", len(p.Equity))
	}
	if !p.Equity[len(p.Equity)-1].Equity.GreaterThan(p.Equity[0].Equity) {
		t.Fatalf("expected equity to rise with price: %s -> %s", p.Equity[0].Equity, p.Equity[len(p.Equity)-1].Equity)
	}
}

func TestPortfolio_Mark_AppendsSampleWithoutTrading(t *testing.T) {
	p := New(noCommission())
	base := time.Now()

	p.Mark(mkTick("BTC-USD", 100, base))
	if len(p.Equity) != 1 {
		t.Fatalf("expected 1 equity sample after Mark, got %d", len(p.Equity))
	}
	if len(p.Trades) != 0 {
		t.Fatalf("expected Mark to record no trades, got %d", len(p.Trades))
	}
}

func TestPortfolio_Apply_HoldDoesNotAddExtraSample(t *testing.T) {
	p := New(noCommission())
	base := time.Now()
	p.Apply(strategy.SignalHold, mkTick("BTC-USD", 100, base))
	if len(p.Equity) != 0 {
		t.Fatalf("expected Apply(Hold) alone to add no equity sample, got %d", len(p.Equity))
	}
}

func TestPortfolio_CloseAll_AppendsEquitySampleForForcedClose(t *testing.T) {
	p := New(noCommission())
	base := time.Now()
	p.Apply(strategy.SignalBuy, mkTick("BTC-USD", 100, base))
	before := len(p.Equity)

	p.CloseAll(map[tick.Symbol]tick.Decimal{mustSymbol("BTC-USD"): decimal.NewFromInt(105)}, base.Add(time.Minute))

	if len(p.Equity) != before+1 {
		t.Fatalf("expected CloseAll to append exactly one equity sample, got %d (was %d)", len(p.Equity), before)
	}
}

func TestPortfolio_CloseAll_NoSampleWhenNothingToClose(t *testing.T) {
	p := New(noCommission())
	base := time.Now()
	p.CloseAll(map[tick.Symbol]tick.Decimal{mustSymbol("BTC-USD"): decimal.NewFromInt(105)}, base)
	if len(p.Equity) != 0 {
		t.Fatalf("expected no equity sample when there was nothing open to close, got %d", len(p.Equity))
	}
}

func mustSymbol(s string) tick.Symbol {
	sym, err := tick.NewSymbol(s)
	if err != nil {
		panic(err)
	}
	return sym
}
