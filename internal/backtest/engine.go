// Package backtest implements the deterministic BacktestEngine state
// machine from spec §4.7: Idle -> Loading -> Running -> Finalizing ->
// Complete, with Failed reachable from Loading or Running.
//
// Grounded on the teacher's smoke90.Runner: a Config struct with
// defaults, an injectable Clock for determinism under test, and a
// single Run entrypoint that loads data then iterates windows. Adapted
// from smoke90's cached-candidate-window loop (parallel, best-effort,
// continue-on-error) to a strict single-threaded tick-by-tick replay,
// since spec §4.7 requires exact determinism and a hard-fail state
// rather than skip-and-continue.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/cryptorun/internal/portfolio"
	"github.com/sawpanic/cryptorun/internal/store"
	"github.com/sawpanic/cryptorun/internal/strategy"
	"github.com/sawpanic/cryptorun/internal/tick"
)

// State is a BacktestEngine lifecycle state.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateRunning
	StateFinalizing
	StateComplete
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateRunning:
		return "running"
	case StateFinalizing:
		return "finalizing"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ErrInvalidTransition is returned by Run when the engine is reused
// after reaching a terminal state.
var ErrInvalidTransition = errors.New("backtest: engine already run; create a new one")

// Clock abstracts time so Run is reproducible under test, mirroring the
// teacher's smoke90.Clock injection point.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Config parameterizes a single backtest run.
type Config struct {
	Symbol    tick.Symbol
	Start     time.Time
	End       time.Time
	Strategy  strategy.Strategy
	Portfolio portfolio.Config
	// ProgressEvery, if > 0, invokes Progress every N processed ticks.
	ProgressEvery int
	// ForceCloseAtEnd force-closes any open position during Finalizing.
	// Use DefaultConfig to get spec §6's documented default of true.
	ForceCloseAtEnd bool
}

// DefaultConfig returns a Config with ForceCloseAtEnd set per spec §6's
// backtest.force_close_at_end default; every other field is run-specific
// and left zero-valued for the caller to fill in.
func DefaultConfig() Config {
	return Config{ForceCloseAtEnd: true}
}

// Progress reports coarse-grained replay progress to an optional
// caller-supplied callback.
type Progress struct {
	TicksProcessed int
	LastTS         time.Time
}

// Result is the terminal output of a completed run.
type Result struct {
	Trades       []portfolio.TradeRecord
	Equity       []portfolio.EquitySample
	RealizedPnL  tick.Decimal
	TicksReplayed int
	Duration     time.Duration
}

// Engine drives one Strategy and one Portfolio across a historical tick
// range loaded from a TickStore.
type Engine struct {
	cfg   Config
	st    store.TickStore
	clock Clock
	log   zerolog.Logger

	state State
	onProgress func(Progress)
}

// New builds an Engine in StateIdle.
func New(cfg Config, st store.TickStore, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, st: st, clock: realClock{}, log: log.With().Str("component", "backtest_engine").Logger(), state: StateIdle}
}

// SetClock overrides the clock (tests only); must be called before Run.
func (e *Engine) SetClock(c Clock) { e.clock = c }

// OnProgress registers a callback invoked every cfg.ProgressEvery ticks.
func (e *Engine) OnProgress(fn func(Progress)) { e.onProgress = fn }

// State returns the engine's current lifecycle state.
func (e *Engine) State() State { return e.state }

// Run executes the full state machine once: Loading, then Running tick
// by tick in strict timestamp order, then Finalizing (force-closing any
// open position when ForceCloseAtEnd is set), ending in Complete. A failure in any non-terminal
// state transitions to Failed and returns the error; Run never panics on
// a data or strategy error.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	if e.state != StateIdle {
		return nil, ErrInvalidTransition
	}

	start := e.clock.Now()

	e.state = StateLoading
	ticks, err := e.st.QueryRange(ctx, e.cfg.Symbol, e.cfg.Start, e.cfg.End, 0)
	if err != nil {
		e.state = StateFailed
		return nil, fmt.Errorf("backtest: load: %w", err)
	}
	if len(ticks) == 0 {
		e.state = StateFailed
		return nil, fmt.Errorf("backtest: no ticks in range [%s, %s] for %s", e.cfg.Start, e.cfg.End, e.cfg.Symbol)
	}

	e.state = StateRunning
	pf := portfolio.New(e.cfg.Portfolio)
	var lastTS time.Time
	var lastPrice tick.Decimal

	for i, t := range ticks {
		if i > 0 && t.TS.Before(lastTS) {
			e.state = StateFailed
			return nil, fmt.Errorf("backtest: tick stream out of order at index %d (%s before %s)", i, t.TS, lastTS)
		}

		select {
		case <-ctx.Done():
			e.state = StateFailed
			return nil, ctx.Err()
		default:
		}

		pf.Mark(t)
		sig := e.cfg.Strategy.OnTick(t)
		pf.Apply(sig, t)
		lastTS = t.TS
		lastPrice = t.Price

		if e.onProgress != nil && e.cfg.ProgressEvery > 0 && (i+1)%e.cfg.ProgressEvery == 0 {
			e.onProgress(Progress{TicksProcessed: i + 1, LastTS: t.TS})
		}
	}

	e.state = StateFinalizing
	if e.cfg.ForceCloseAtEnd {
		pf.CloseAll(map[tick.Symbol]tick.Decimal{e.cfg.Symbol: lastPrice}, lastTS)
	}

	e.state = StateComplete
	return &Result{
		Trades:        pf.Trades,
		Equity:        pf.Equity,
		RealizedPnL:   pf.RealizedPnL(),
		TicksReplayed: len(ticks),
		Duration:      e.clock.Now().Sub(start),
	}, nil
}
