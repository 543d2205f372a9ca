package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/tick"
)

func mkTick(symbol string, id uint64, ts time.Time, price float64) tick.Tick {
	sym, _ := tick.NewSymbol(symbol)
	return tick.Tick{
		Symbol:  sym,
		TS:      ts,
		Price:   decimal.NewFromFloat(price),
		Qty:     decimal.NewFromFloat(1),
		Side:    tick.SideBuy,
		TradeID: id,
	}
}

func TestTickCache_L1ReadThrough(t *testing.T) {
	c := New(DefaultConfig(), nil, zerolog.Nop())
	base := time.Now()
	for i := uint64(1); i <= 5; i++ {
		c.Write(context.Background(), mkTick("BTC-USD", i, base.Add(time.Duration(i)*time.Second), 100+float64(i)))
	}

	got, ok := c.Latest(context.Background(), mustSymbol("BTC-USD"), 3)
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 ticks, got %d", len(got))
	}
	if got[2].TradeID != 5 {
		t.Fatalf("expected last tick to be trade 5, got %d", got[2].TradeID)
	}
}

func TestTickCache_MissWhenInsufficientHistory(t *testing.T) {
	c := New(DefaultConfig(), nil, zerolog.Nop())
	c.Write(context.Background(), mkTick("ETH-USD", 1, time.Now(), 10))

	_, ok := c.Latest(context.Background(), mustSymbol("ETH-USD"), 5)
	if ok {
		t.Fatalf("expected miss when fewer ticks cached than requested")
	}
}

func TestTickCache_LateTickDropped(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LateWindow = time.Second
	c := New(cfg, nil, zerolog.Nop())

	base := time.Now()
	c.Write(context.Background(), mkTick("BTC-USD", 1, base, 100))
	c.Write(context.Background(), mkTick("BTC-USD", 2, base.Add(5*time.Second), 101))
	// Arrives 4s behind the current head — outside the 1s late window.
	c.Write(context.Background(), mkTick("BTC-USD", 3, base.Add(1*time.Second), 99))

	got, ok := c.Latest(context.Background(), mustSymbol("BTC-USD"), 2)
	if !ok {
		t.Fatalf("expected hit")
	}
	for _, tk := range got {
		if tk.TradeID == 3 {
			t.Fatalf("expected late tick 3 to be dropped from cache")
		}
	}
}

func TestTickCache_RingCapacity(t *testing.T) {
	cfg := DefaultConfig()
	cfg.L1Capacity = 10
	c := New(cfg, nil, zerolog.Nop())

	base := time.Now()
	for i := uint64(1); i <= 25; i++ {
		c.Write(context.Background(), mkTick("BTC-USD", i, base.Add(time.Duration(i)*time.Second), 100))
	}

	got, ok := c.Latest(context.Background(), mustSymbol("BTC-USD"), 10)
	if !ok || len(got) != 10 {
		t.Fatalf("expected ring to retain exactly cap ticks")
	}
	if got[0].TradeID != 16 {
		t.Fatalf("expected oldest retained to be trade 16, got %d", got[0].TradeID)
	}
}

type fakeL2 struct {
	data map[tick.Symbol][]tick.Tick
	fail bool
}

func (f *fakeL2) PushTail(ctx context.Context, symbol tick.Symbol, t tick.Tick, capL2 int, ttl time.Duration) error {
	if f.fail {
		return errFakeL2
	}
	if f.data == nil {
		f.data = make(map[tick.Symbol][]tick.Tick)
	}
	f.data[symbol] = append(f.data[symbol], t)
	return nil
}

func (f *fakeL2) Tail(ctx context.Context, symbol tick.Symbol, n int) ([]tick.Tick, bool, error) {
	if f.fail {
		return nil, false, errFakeL2
	}
	ticks := f.data[symbol]
	if len(ticks) < n {
		return nil, false, nil
	}
	return ticks[len(ticks)-n:], true, nil
}

var errFakeL2 = fakeErr("fake L2 failure")

type fakeErr string

func (e fakeErr) Error() string { return string(e) }

func TestTickCache_L2FallbackOnL1Miss(t *testing.T) {
	l2 := &fakeL2{}
	c := New(Config{L1Capacity: 2, L1TTL: time.Minute, LateWindow: time.Second}, l2, zerolog.Nop())

	base := time.Now()
	for i := uint64(1); i <= 5; i++ {
		c.Write(context.Background(), mkTick("BTC-USD", i, base.Add(time.Duration(i)*time.Second), 100))
	}

	// L1 only holds the last 2; asking for 4 must fall through to L2.
	got, ok := c.Latest(context.Background(), mustSymbol("BTC-USD"), 4)
	if !ok {
		t.Fatalf("expected L2 fallback hit")
	}
	if len(got) != 4 {
		t.Fatalf("expected 4 ticks from L2, got %d", len(got))
	}
}

func TestTickCache_L2FailureIsolated(t *testing.T) {
	l2 := &fakeL2{fail: true}
	c := New(DefaultConfig(), l2, zerolog.Nop())

	// Write must not panic or error out even though L2 always fails.
	c.Write(context.Background(), mkTick("BTC-USD", 1, time.Now(), 100))

	got, ok := c.Latest(context.Background(), mustSymbol("BTC-USD"), 1)
	if !ok || len(got) != 1 {
		t.Fatalf("L1 should still serve reads when L2 is down")
	}
}

func mustSymbol(s string) tick.Symbol {
	sym, err := tick.NewSymbol(s)
	if err != nil {
		panic(err)
	}
	return sym
}
