package ingest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/cache"
	"github.com/sawpanic/cryptorun/internal/store"
	"github.com/sawpanic/cryptorun/internal/tick"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]tick.Tick
	failN   int
}

func (f *fakeStore) InsertOne(ctx context.Context, t tick.Tick) (store.InsertResult, error) {
	return store.Inserted, nil
}

func (f *fakeStore) InsertBatch(ctx context.Context, ticks []tick.Tick) (store.BatchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failN > 0 {
		f.failN--
		return store.BatchResult{}, store.ErrTransient
	}
	cp := make([]tick.Tick, len(ticks))
	copy(cp, ticks)
	f.batches = append(f.batches, cp)
	return store.BatchResult{Inserted: uint32(len(ticks))}, nil
}

func (f *fakeStore) QueryRange(ctx context.Context, symbol tick.Symbol, tLo, tHi time.Time, limit int) ([]tick.Tick, error) {
	return nil, nil
}

func (f *fakeStore) QueryLatest(ctx context.Context, symbol tick.Symbol, n int) ([]tick.Tick, error) {
	return nil, nil
}

func (f *fakeStore) Stats(ctx context.Context) (store.Stats, error) {
	return store.Stats{}, nil
}

func (f *fakeStore) totalCommitted() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, b := range f.batches {
		n += len(b)
	}
	return n
}

func mkTick(id uint64) tick.Tick {
	sym, _ := tick.NewSymbol("BTC-USD")
	return tick.Tick{
		Symbol:  sym,
		TS:      time.Now(),
		Price:   decimal.NewFromInt(100),
		Qty:     decimal.NewFromInt(1),
		Side:    tick.SideBuy,
		TradeID: id,
	}
}

func TestPipeline_FlushesOnBatchSize(t *testing.T) {
	st := &fakeStore{}
	cch := cache.New(cache.DefaultConfig(), nil, zerolog.Nop())
	cfg := DefaultConfig()
	cfg.BatchSize = 5
	cfg.BatchAge = time.Hour

	p := New(cfg, st, cch, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	for i := uint64(1); i <= 5; i++ {
		if err := p.Submit(ctx, mkTick(i)); err != nil {
			t.Fatalf("submit: %v", err)
		}
	}

	deadline := time.After(time.Second)
	for st.totalCommitted() < 5 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for batch commit, got %d", st.totalCommitted())
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	p.Stop()
}

func TestPipeline_FlushesOnAge(t *testing.T) {
	st := &fakeStore{}
	cch := cache.New(cache.DefaultConfig(), nil, zerolog.Nop())
	cfg := DefaultConfig()
	cfg.BatchSize = 1000
	cfg.BatchAge = 20 * time.Millisecond

	p := New(cfg, st, cch, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	if err := p.Submit(ctx, mkTick(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.After(time.Second)
	for st.totalCommitted() < 1 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for age-based flush")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	p.Stop()
}

func TestPipeline_RejectsInvalidTick(t *testing.T) {
	st := &fakeStore{}
	cch := cache.New(cache.DefaultConfig(), nil, zerolog.Nop())
	p := New(DefaultConfig(), st, cch, zerolog.Nop())

	bad := mkTick(1)
	bad.Price = decimal.Zero
	if err := p.Submit(context.Background(), bad); err == nil {
		t.Fatalf("expected rejection of non-positive price")
	}
	if p.Stats().Rejected != 1 {
		t.Fatalf("expected rejected counter to be 1, got %d", p.Stats().Rejected)
	}
}

func TestPipeline_RejectsSymbolOutsideConfiguredUniverse(t *testing.T) {
	st := &fakeStore{}
	cch := cache.New(cache.DefaultConfig(), nil, zerolog.Nop())
	cfg := DefaultConfig()
	btc, _ := tick.NewSymbol("BTC-USD")
	cfg.Symbols = []tick.Symbol{btc}
	p := New(cfg, st, cch, zerolog.Nop())

	unknown := mkTick(1)
	unknown.Symbol, _ = tick.NewSymbol("DOGE-USD")
	if err := p.Submit(context.Background(), unknown); err == nil {
		t.Fatalf("expected rejection of a symbol outside the configured universe")
	}
	if p.Stats().Rejected != 1 {
		t.Fatalf("expected rejected counter to be 1, got %d", p.Stats().Rejected)
	}

	if err := p.Submit(context.Background(), mkTick(2)); err != nil {
		t.Fatalf("expected the allowlisted symbol to be accepted: %v", err)
	}
}

func TestPipeline_RejectsTickOutsideClockSkewTolerance(t *testing.T) {
	st := &fakeStore{}
	cch := cache.New(cache.DefaultConfig(), nil, zerolog.Nop())
	cfg := DefaultConfig()
	cfg.MaxClockSkew = 5 * time.Minute
	p := New(cfg, st, cch, zerolog.Nop())

	stale := mkTick(1)
	stale.TS = time.Now().Add(-time.Hour)
	if err := p.Submit(context.Background(), stale); err == nil {
		t.Fatalf("expected rejection of a tick far outside the wall-clock tolerance")
	}
	if p.Stats().Rejected != 1 {
		t.Fatalf("expected rejected counter to be 1, got %d", p.Stats().Rejected)
	}

	future := mkTick(2)
	future.TS = time.Now().Add(time.Hour)
	if err := p.Submit(context.Background(), future); err == nil {
		t.Fatalf("expected rejection of a tick far in the future")
	}

	if err := p.Submit(context.Background(), mkTick(3)); err != nil {
		t.Fatalf("expected a tick within tolerance to be accepted: %v", err)
	}
}

func TestPipeline_RetriesTransientStoreFailure(t *testing.T) {
	st := &fakeStore{failN: 2}
	cch := cache.New(cache.DefaultConfig(), nil, zerolog.Nop())
	cfg := DefaultConfig()
	cfg.BatchSize = 1
	cfg.BatchAge = time.Hour

	p := New(cfg, st, cch, zerolog.Nop())
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)

	if err := p.Submit(ctx, mkTick(1)); err != nil {
		t.Fatalf("submit: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for st.totalCommitted() < 1 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for retried commit")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	p.Stop()
}
