// Package tick defines the canonical market-data types shared by every
// other package: symbols, fixed-point prices, trade sides, and the tick
// and OHLC shapes that flow through storage, cache, and the backtest
// engine.
package tick

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Decimal is the exact fixed-point type used for every price, quantity,
// cash, and P&L figure in the system. Never use float64 for money math.
type Decimal = decimal.Decimal

// Side is the aggressor side of a trade.
type Side uint8

const (
	SideUnknown Side = iota
	SideBuy
	SideSell
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "buy"
	case SideSell:
		return "sell"
	default:
		return "unknown"
	}
}

// Symbol is a short, case-insensitive ASCII identifier, canonicalized to
// upper-case on construction.
type Symbol string

// NewSymbol validates and canonicalizes a raw symbol string.
func NewSymbol(raw string) (Symbol, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", fmt.Errorf("tick: empty symbol")
	}
	for _, r := range trimmed {
		if r > 127 {
			return "", fmt.Errorf("tick: symbol %q is not ASCII", raw)
		}
	}
	return Symbol(strings.ToUpper(trimmed)), nil
}

func (s Symbol) String() string { return string(s) }

// Tick is a single executed trade event. Once constructed, a Tick is never
// mutated; late arrivals and duplicates are handled by the store and cache,
// not by rewriting a Tick in place.
type Tick struct {
	Symbol  Symbol    `json:"symbol"`
	TS      time.Time `json:"ts"`
	Price   Decimal   `json:"price"`
	Qty     Decimal   `json:"qty"`
	Side    Side      `json:"side"`
	TradeID uint64    `json:"trade_id"`
}

// Validate checks the structural invariants spec'd for an ingested tick:
// known symbol shape, strictly positive price and quantity.
func (t Tick) Validate() error {
	if strings.TrimSpace(string(t.Symbol)) == "" {
		return fmt.Errorf("tick: missing symbol")
	}
	if t.Price.Sign() <= 0 {
		return fmt.Errorf("tick: non-positive price %s", t.Price)
	}
	if t.Qty.Sign() <= 0 {
		return fmt.Errorf("tick: non-positive qty %s", t.Qty)
	}
	if t.TradeID == 0 {
		return fmt.Errorf("tick: missing trade_id")
	}
	return nil
}

// Interval is an OHLC bucket width.
type Interval time.Duration

// Common bar intervals.
const (
	Interval1m Interval = Interval(time.Minute)
	Interval5m Interval = Interval(5 * time.Minute)
	Interval1h Interval = Interval(time.Hour)
)

// OHLC is a derived bar; the core never persists bars separately from the
// tick store of record — callers derive them with BuildOHLC.
type OHLC struct {
	Symbol  Symbol    `json:"symbol"`
	OpenTS  time.Time `json:"open_ts"`
	Open    Decimal   `json:"open"`
	High    Decimal   `json:"high"`
	Low     Decimal   `json:"low"`
	Close   Decimal   `json:"close"`
	Volume  Decimal   `json:"volume"`
}

// BuildOHLC derives OHLC bars for a single symbol's ascending-ts tick
// sequence at the given interval. Ticks must already be ordered by ts then
// trade id (the order TickStore.QueryRange guarantees).
func BuildOHLC(symbol Symbol, interval Interval, ticks []Tick) []OHLC {
	if len(ticks) == 0 {
		return nil
	}
	step := time.Duration(interval)
	var bars []OHLC
	var cur *OHLC
	var bucketStart time.Time

	for _, t := range ticks {
		b := t.TS.Truncate(step)
		if cur == nil || !b.Equal(bucketStart) {
			if cur != nil {
				bars = append(bars, *cur)
			}
			bucketStart = b
			cur = &OHLC{
				Symbol: symbol,
				OpenTS: b,
				Open:   t.Price,
				High:   t.Price,
				Low:    t.Price,
				Close:  t.Price,
				Volume: t.Qty,
			}
			continue
		}
		if t.Price.GreaterThan(cur.High) {
			cur.High = t.Price
		}
		if t.Price.LessThan(cur.Low) {
			cur.Low = t.Price
		}
		cur.Close = t.Price
		cur.Volume = cur.Volume.Add(t.Qty)
	}
	if cur != nil {
		bars = append(bars, *cur)
	}
	return bars
}
