// Package portfolio implements the fill model and equity bookkeeping
// from spec §4.6: weighted-average entry price, realized and
// unrealized P&L, commission, and an equity curve sampled once per
// Mark plus once more for every fill (including a forced close).
//
// Grounded on ExecutionCostConfig / ComprehensiveMetrics
// (CRun0.9/reviews/CodeReview_CProtocol/internal/testing/types.go), the
// only place in the pack that types commission and P&L fields as
// decimal.Decimal instead of float64 — the shape this package follows
// for every money-valued field.
package portfolio

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/strategy"
	"github.com/sawpanic/cryptorun/internal/tick"
)

// Config controls commission and initial capital.
type Config struct {
	InitialCash    tick.Decimal
	CommissionRate tick.Decimal // fraction of notional, e.g. 0.001 = 10bps
	MinCommission  tick.Decimal
}

// DefaultConfig matches spec §6.1: $100,000 starting cash, 10bps
// commission, no minimum.
func DefaultConfig() Config {
	return Config{
		InitialCash:    decimal.NewFromInt(100000),
		CommissionRate: decimal.NewFromFloat(0.001),
		MinCommission:  decimal.Zero,
	}
}

// Position is the open holding in a single symbol. A flat position has
// Qty == 0 and is otherwise a zero value.
type Position struct {
	Symbol   tick.Symbol
	Qty      tick.Decimal // positive = long, negative = short
	AvgPrice tick.Decimal
}

// TradeRecord is a single fill, appended to Portfolio.Trades in
// execution order.
type TradeRecord struct {
	Symbol     tick.Symbol
	TS         time.Time
	Side       tick.Side
	Qty        tick.Decimal
	Price      tick.Decimal
	Commission tick.Decimal
	RealizedPnL tick.Decimal
}

// EquitySample is one point on the equity curve.
type EquitySample struct {
	TS     time.Time
	Equity tick.Decimal
}

// Portfolio tracks cash, open positions, closed trade history, and an
// equity curve across a backtest run.
type Portfolio struct {
	cfg Config

	Cash      tick.Decimal
	Positions map[tick.Symbol]*Position
	Trades    []TradeRecord
	Equity    []EquitySample

	realizedPnL tick.Decimal
}

// New creates a Portfolio with cfg.InitialCash in cash and no positions.
func New(cfg Config) *Portfolio {
	return &Portfolio{
		cfg:       cfg,
		Cash:      cfg.InitialCash,
		Positions: make(map[tick.Symbol]*Position),
	}
}

func (p *Portfolio) commission(notional tick.Decimal) tick.Decimal {
	c := notional.Abs().Mul(p.cfg.CommissionRate)
	if c.LessThan(p.cfg.MinCommission) {
		return p.cfg.MinCommission
	}
	return c
}

// Mark appends an equity sample at t's price without evaluating any
// signal. Per spec §4.7's per-tick loop, the engine calls Mark once per
// tick before handing it to the strategy, so every tick contributes an
// equity observation whether or not it produces a fill.
func (p *Portfolio) Mark(t tick.Tick) {
	p.sampleEquity(t)
}

// Apply executes sig against t's price for t's symbol, updating cash,
// position, and trade history, and appends an additional equity sample
// if (and only if) a fill actually occurred — Hold, or a Buy/Close that
// couldn't execute (no position, or cash that would go negative),
// produces no extra sample
// beyond the one Mark already recorded for this tick. Buy/Sell open or
// add to a position in that direction; Close flattens the existing
// position (if any) at t's price. Size is always 100% of the
// Portfolio's buying power for a Buy (spec §4.6: single-asset,
// fully-invested sizing — no partial sizing policy is specified).
func (p *Portfolio) Apply(sig strategy.Signal, t tick.Tick) {
	var traded bool
	switch sig {
	case strategy.SignalBuy:
		traded = p.open(t.Symbol, t.Price, t.TS, tick.SideBuy)
	case strategy.SignalSell:
		traded = p.open(t.Symbol, t.Price, t.TS, tick.SideSell)
	case strategy.SignalClose:
		traded = p.close(t.Symbol, t.Price, t.TS)
	}
	if traded {
		p.sampleEquity(t)
	}
}

func (p *Portfolio) open(symbol tick.Symbol, price tick.Decimal, ts time.Time, side tick.Side) bool {
	pos := p.Positions[symbol]
	if pos == nil {
		pos = &Position{Symbol: symbol}
		p.Positions[symbol] = pos
	}

	// An opposite-direction signal while already holding a position
	// closes it first (flip), then opens the new direction flat — spec
	// §4.6 edge case "signal reversal while a position is open".
	if !pos.Qty.IsZero() {
		holdingLong := pos.Qty.Sign() > 0
		signalBuy := side == tick.SideBuy
		if holdingLong != signalBuy {
			p.close(symbol, price, ts)
			pos = p.Positions[symbol]
		}
	}

	qty := p.affordableQty(price)
	if qty.IsZero() {
		return false
	}
	if side == tick.SideSell {
		qty = qty.Neg()
	}

	notional := qty.Mul(price)
	comm := p.commission(notional)
	if notional.Abs().Add(comm).GreaterThan(p.Cash) {
		// The fill would drive cash negative; reject it outright.
		return false
	}

	newQty := pos.Qty.Add(qty)
	if pos.Qty.IsZero() {
		pos.AvgPrice = price
	} else {
		// Weighted-average entry price across the combined position.
		totalCost := pos.AvgPrice.Mul(pos.Qty).Add(price.Mul(qty))
		pos.AvgPrice = totalCost.DivRound(newQty, 12)
	}
	pos.Qty = newQty

	p.Cash = p.Cash.Sub(notional.Abs()).Sub(comm)
	p.Trades = append(p.Trades, TradeRecord{
		Symbol: symbol, TS: ts, Side: side, Qty: qty.Abs(), Price: price, Commission: comm,
	})
	return true
}

func (p *Portfolio) close(symbol tick.Symbol, price tick.Decimal, ts time.Time) bool {
	pos := p.Positions[symbol]
	if pos == nil || pos.Qty.IsZero() {
		return false
	}

	notional := pos.Qty.Mul(price)
	comm := p.commission(notional)

	pnl := pos.Qty.Mul(price.Sub(pos.AvgPrice))
	p.realizedPnL = p.realizedPnL.Add(pnl)

	side := tick.SideSell
	if pos.Qty.Sign() < 0 {
		side = tick.SideBuy
	}

	p.Cash = p.Cash.Add(notional.Abs()).Sub(comm)
	p.Trades = append(p.Trades, TradeRecord{
		Symbol: symbol, TS: ts, Side: side, Qty: pos.Qty.Abs(), Price: price, Commission: comm, RealizedPnL: pnl,
	})

	pos.Qty = decimal.Zero
	pos.AvgPrice = decimal.Zero
	return true
}

// affordableQty sizes a new position at 100% of current cash net of the
// proportional commission, floor rounded to 8 decimal places
// (satoshi-scale lot size).
func (p *Portfolio) affordableQty(price tick.Decimal) tick.Decimal {
	if price.Sign() <= 0 || p.Cash.Sign() <= 0 {
		return decimal.Zero
	}
	unitCost := price.Mul(decimal.NewFromInt(1).Add(p.cfg.CommissionRate))
	return p.Cash.Div(unitCost).Truncate(8)
}

// CloseAll force-closes every open position at the given ticks' prices
// and, if anything was actually closed, appends one equity sample for
// the resulting flat (or partially flattened) book — the forced close
// that ends nearly every run must still land in the equity curve, the
// same as any other fill.
// Called by the backtest engine's Finalizing state (spec §4.7).
func (p *Portfolio) CloseAll(lastPrice map[tick.Symbol]tick.Decimal, ts time.Time) {
	var closed bool
	for symbol, pos := range p.Positions {
		if pos.Qty.IsZero() {
			continue
		}
		price, ok := lastPrice[symbol]
		if !ok {
			continue
		}
		if p.close(symbol, price, ts) {
			closed = true
		}
	}
	if closed {
		p.sampleEquityAt(ts, lastPrice)
	}
}

func (p *Portfolio) sampleEquity(t tick.Tick) {
	p.sampleEquityAt(t.TS, map[tick.Symbol]tick.Decimal{t.Symbol: t.Price})
}

func (p *Portfolio) sampleEquityAt(ts time.Time, prices map[tick.Symbol]tick.Decimal) {
	p.Equity = append(p.Equity, EquitySample{TS: ts, Equity: p.MarkToMarket(prices)})
}

// MarkToMarket returns cash plus the mark value of every open position,
// using lastPrice for symbols with an open position (symbols absent
// from lastPrice retain their last-known cost basis rather than 0, so a
// single-tick sample doesn't understate a multi-symbol book).
func (p *Portfolio) MarkToMarket(lastPrice map[tick.Symbol]tick.Decimal) tick.Decimal {
	equity := p.Cash
	for symbol, pos := range p.Positions {
		if pos.Qty.IsZero() {
			continue
		}
		price, ok := lastPrice[symbol]
		if !ok {
			price = pos.AvgPrice
		}
		equity = equity.Add(pos.Qty.Mul(price))
	}
	return equity
}

// RealizedPnL returns total realized profit/loss across all closes so far.
func (p *Portfolio) RealizedPnL() tick.Decimal {
	return p.realizedPnL
}
