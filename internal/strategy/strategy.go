// Package strategy defines the Strategy contract the backtest engine
// drives tick by tick, and provides two reference implementations — an
// SMA crossover and a Wilder's-smoothing RSI strategy.
//
// Grounded on the teacher's internal/algo/momentum.MomentumCore: a
// config struct, an OnTick-equivalent Calculate method, and a
// calculateRSI helper using the gains/losses-over-period shape. Adapted
// from momentum's multi-timeframe weighted score (out of scope here) to
// the simpler single-series, two-output (signal) shape spec §4.5 needs.
package strategy

import (
	"github.com/sawpanic/cryptorun/internal/tick"
)

// Signal is the directive a Strategy emits for a given tick.
type Signal int

const (
	SignalHold Signal = iota
	SignalBuy
	SignalSell
	SignalClose
)

func (s Signal) String() string {
	switch s {
	case SignalBuy:
		return "buy"
	case SignalSell:
		return "sell"
	case SignalClose:
		return "close"
	default:
		return "hold"
	}
}

// Strategy is implemented by every pluggable trading strategy. OnTick is
// called once per tick in timestamp order by the backtest engine (and,
// in live mode, by the same driver wired to a live TickSource); it must
// be a pure function of its own accumulated internal state plus the
// tick stream seen so far — no wall-clock reads, no external I/O.
type Strategy interface {
	// OnTick consumes the next tick for its symbol and returns a Signal.
	OnTick(t tick.Tick) Signal

	// Name is a short machine-stable identifier, e.g. "sma_crossover".
	Name() string

	// Description is a one-line human-readable summary.
	Description() string

	// Parameters returns the strategy's configuration as a flat map, for
	// display in the boundary API and CLI.
	Parameters() map[string]string
}
