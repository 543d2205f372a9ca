package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/tick"
)

// SMACrossover emits Buy when the fast simple moving average crosses
// above the slow one (golden cross), Close when it crosses back below
// while a long is open (death cross), and Hold otherwise.
type SMACrossover struct {
	fastPeriod int
	slowPeriod int

	prices   []tick.Decimal
	prevFast tick.Decimal
	prevSlow tick.Decimal
	havePrev bool
	holding  bool // true once a golden cross has opened a long position
}

// NewSMACrossover builds a crossover strategy. fastPeriod must be smaller
// than slowPeriod.
func NewSMACrossover(fastPeriod, slowPeriod int) *SMACrossover {
	if fastPeriod <= 0 {
		fastPeriod = 5
	}
	if slowPeriod <= fastPeriod {
		slowPeriod = fastPeriod * 4
	}
	return &SMACrossover{fastPeriod: fastPeriod, slowPeriod: slowPeriod}
}

func (s *SMACrossover) Name() string        { return "sma_crossover" }
func (s *SMACrossover) Description() string {
	return "buys on a golden cross, closes the long on the reverse (death) cross"
}

func (s *SMACrossover) Parameters() map[string]string {
	return map[string]string{
		"fast_period": fmt.Sprintf("%d", s.fastPeriod),
		"slow_period": fmt.Sprintf("%d", s.slowPeriod),
	}
}

// OnTick feeds the tick's price into both windows and evaluates a cross.
func (s *SMACrossover) OnTick(t tick.Tick) Signal {
	s.prices = append(s.prices, t.Price)
	if len(s.prices) > s.slowPeriod {
		s.prices = s.prices[len(s.prices)-s.slowPeriod:]
	}
	if len(s.prices) < s.slowPeriod {
		return SignalHold
	}

	fast := sma(s.prices[len(s.prices)-s.fastPeriod:])
	slow := sma(s.prices)

	if !s.havePrev {
		s.prevFast, s.prevSlow, s.havePrev = fast, slow, true
		return SignalHold
	}

	wasBelow := s.prevFast.LessThanOrEqual(s.prevSlow)
	isAbove := fast.GreaterThan(slow)
	wasAbove := s.prevFast.GreaterThan(s.prevSlow)
	isBelow := fast.LessThanOrEqual(slow)

	s.prevFast, s.prevSlow = fast, slow

	switch {
	case wasBelow && isAbove:
		if s.holding {
			return SignalHold
		}
		s.holding = true
		return SignalBuy
	case wasAbove && isBelow:
		// Per spec §4.5: a bearish cross closes an existing long. Going
		// short on a bearish cross while flat is unspecified/optional, so
		// we simply hold rather than open a short.
		if !s.holding {
			return SignalHold
		}
		s.holding = false
		return SignalClose
	default:
		return SignalHold
	}
}

func sma(values []tick.Decimal) tick.Decimal {
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.DivRound(decimal.NewFromInt(int64(len(values))), 12)
}
