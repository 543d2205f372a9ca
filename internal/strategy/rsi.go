package strategy

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/tick"
)

// RSIStrategy implements Wilder's smoothed RSI: buys (opens long) when
// RSI crosses up through the oversold threshold, and closes an open long
// when RSI crosses back down through the overbought threshold. Unlike
// the teacher's calculateRSI (a windowed
// recompute over the last `period` closes every call), this uses Wilder's
// running-average form so OnTick is O(1) instead of O(period) per tick —
// required because OnTick is called once per raw trade, not once per bar.
type RSIStrategy struct {
	period     int
	oversold   tick.Decimal
	overbought tick.Decimal

	havePrev   bool
	prevPrice  tick.Decimal
	avgGain    tick.Decimal
	avgLoss    tick.Decimal
	seeded     bool
	seedCount  int
	seedGain   tick.Decimal
	seedLoss   tick.Decimal
	prevRSI    tick.Decimal
	haveRSI    bool
	holding    bool // true once an oversold recovery has opened a long position
}

// NewRSIStrategy builds an RSI strategy with Wilder's classic period of
// 14 and 30/70 thresholds unless overridden.
func NewRSIStrategy(period int, oversold, overbought float64) *RSIStrategy {
	if period <= 0 {
		period = 14
	}
	return &RSIStrategy{
		period:     period,
		oversold:   decimal.NewFromFloat(oversold),
		overbought: decimal.NewFromFloat(overbought),
	}
}

func (r *RSIStrategy) Name() string        { return "rsi" }
func (r *RSIStrategy) Description() string {
	return "Wilder's RSI, buys on oversold recovery, closes on overbought reversal"
}

func (r *RSIStrategy) Parameters() map[string]string {
	return map[string]string{
		"period":     fmt.Sprintf("%d", r.period),
		"oversold":   r.oversold.String(),
		"overbought": r.overbought.String(),
	}
}

// OnTick updates the running average gain/loss and evaluates threshold
// crosses on the resulting RSI value.
func (r *RSIStrategy) OnTick(t tick.Tick) Signal {
	price := t.Price
	if !r.havePrev {
		r.prevPrice, r.havePrev = price, true
		return SignalHold
	}

	change := price.Sub(r.prevPrice)
	r.prevPrice = price

	gain := decimal.Zero
	loss := decimal.Zero
	if change.Sign() > 0 {
		gain = change
	} else if change.Sign() < 0 {
		loss = change.Neg()
	}

	if !r.seeded {
		r.seedGain = r.seedGain.Add(gain)
		r.seedLoss = r.seedLoss.Add(loss)
		r.seedCount++
		if r.seedCount < r.period {
			return SignalHold
		}
		n := decimal.NewFromInt(int64(r.period))
		r.avgGain = r.seedGain.DivRound(n, 16)
		r.avgLoss = r.seedLoss.DivRound(n, 16)
		r.seeded = true
	} else {
		n := decimal.NewFromInt(int64(r.period))
		r.avgGain = r.avgGain.Mul(n.Sub(decimal.NewFromInt(1))).Add(gain).DivRound(n, 16)
		r.avgLoss = r.avgLoss.Mul(n.Sub(decimal.NewFromInt(1))).Add(loss).DivRound(n, 16)
	}

	rsi := r.rsiValue()

	if !r.haveRSI {
		r.prevRSI, r.haveRSI = rsi, true
		return SignalHold
	}

	wasBelowOversold := r.prevRSI.LessThan(r.oversold)
	crossedAboveOversold := wasBelowOversold && rsi.GreaterThanOrEqual(r.oversold)

	wasAboveOverbought := r.prevRSI.GreaterThanOrEqual(r.overbought)
	crossedBelowOverbought := wasAboveOverbought && rsi.LessThan(r.overbought)

	r.prevRSI = rsi

	switch {
	case crossedAboveOversold:
		if r.holding {
			return SignalHold
		}
		r.holding = true
		return SignalBuy
	case crossedBelowOverbought:
		// Per spec §4.5: RSI crossing back down through the overbought
		// line closes an existing long; there is no short-entry signal.
		if !r.holding {
			return SignalHold
		}
		r.holding = false
		return SignalClose
	default:
		return SignalHold
	}
}

// rsiValue computes 100 - 100/(1+RS) from the current Wilder averages. An
// avgLoss of zero means no losses in the window: RSI saturates at 100.
func (r *RSIStrategy) rsiValue() tick.Decimal {
	hundred := decimal.NewFromInt(100)
	if r.avgLoss.IsZero() {
		return hundred
	}
	rs := r.avgGain.Div(r.avgLoss)
	return hundred.Sub(hundred.Div(decimal.NewFromInt(1).Add(rs)))
}
