// Package cache implements the two-tier read-through/write-through
// TickCache from spec §4.2: a process-local, per-symbol L1 ring, and an
// optional remote L2. Cache writes are best-effort — an L2 failure is
// logged and discarded, never propagated to the caller (cache-failure
// isolation).
//
// Reconciliation between L2 and the store of record (spec §9, "open
// question") is deliberately not implemented: nothing in the teacher pack
// or the wider example corpus implements a periodic tail-N reconciliation
// job to ground one on, and the spec leaves the decision open. The
// invariant "cache visible implies store committed" is maintained purely
// by sequencing (store write happens-before cache write) rather than by
// any reconciliation pass.
package cache

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/sawpanic/cryptorun/internal/tick"
)

// Config controls ring sizes and TTLs per spec §6.1.
type Config struct {
	L1Capacity int
	L1TTL      time.Duration
	LateWindow time.Duration
}

// DefaultConfig returns spec defaults: 1000 ticks per symbol, 300s TTL,
// 2s late-tick window.
func DefaultConfig() Config {
	return Config{
		L1Capacity: 1000,
		L1TTL:      300 * time.Second,
		LateWindow: 2 * time.Second,
	}
}

// L2 is the optional remote cache tier. A nil L2 on TickCache disables it
// entirely (spec §8 property 4: disabling L2 mid-run must not lose any
// persisted tick).
type L2 interface {
	// PushTail appends a tick to the symbol's remote list, trimming to
	// cap_l2 and refreshing the TTL. Errors are logged by the caller and
	// never surfaced further.
	PushTail(ctx context.Context, symbol tick.Symbol, t tick.Tick, capL2 int, ttl time.Duration) error
	// Tail returns up to n most recent ticks for symbol, chronological.
	Tail(ctx context.Context, symbol tick.Symbol, n int) ([]tick.Tick, bool, error)
}

// TickCache is the L1(+L2) read-through/write-through cache.
type TickCache struct {
	cfg Config
	l2  L2
	log zerolog.Logger

	mu    sync.RWMutex
	rings map[tick.Symbol]*symbolRing
}

// New creates a TickCache. l2 may be nil to run L1-only.
func New(cfg Config, l2 L2, log zerolog.Logger) *TickCache {
	return &TickCache{
		cfg:   cfg,
		l2:    l2,
		log:   log.With().Str("component", "tick_cache").Logger(),
		rings: make(map[tick.Symbol]*symbolRing),
	}
}

func (c *TickCache) ring(symbol tick.Symbol) *symbolRing {
	c.mu.RLock()
	r, ok := c.rings[symbol]
	c.mu.RUnlock()
	if ok {
		return r
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if r, ok = c.rings[symbol]; ok {
		return r
	}
	r = newSymbolRing(c.cfg.L1Capacity, c.cfg.L1TTL, c.cfg.LateWindow)
	c.rings[symbol] = r
	return r
}

// Write pushes an accepted live tick through the cache write path: L1
// head, then best-effort L2 tail. Per spec §4.2, an L2 error is logged and
// discarded; this call never fails because of L2.
func (c *TickCache) Write(ctx context.Context, t tick.Tick) {
	c.ring(t.Symbol).insert(t)

	if c.l2 == nil {
		return
	}
	if err := c.l2.PushTail(ctx, t.Symbol, t, 10000, time.Hour); err != nil {
		c.log.Warn().Err(err).Str("symbol", string(t.Symbol)).Msg("cache: L2 write failed, continuing (cache-failure isolation)")
	}
}

// Latest implements the "latest N ticks" read flow from spec §4.2:
// 1. L1 if it has >= n ticks.
// 2. Else L2 if it has >= n ticks (repopulating L1 asynchronously).
// 3. Else the caller must fall through to TickStore.QueryLatest.
//
// ok is false when neither tier can satisfy the request; the caller is
// expected to query the store of record in that case.
func (c *TickCache) Latest(ctx context.Context, symbol tick.Symbol, n int) (ticks []tick.Tick, ok bool) {
	r := c.ring(symbol)
	if got := r.tail(n); len(got) >= n {
		return got, true
	}

	if c.l2 == nil {
		return nil, false
	}
	l2Ticks, l2ok, err := c.l2.Tail(ctx, symbol, n)
	if err != nil {
		c.log.Warn().Err(err).Str("symbol", string(symbol)).Msg("cache: L2 read failed, falling through")
		return nil, false
	}
	if !l2ok || len(l2Ticks) < n {
		return nil, false
	}

	// Repopulate L1 asynchronously so the hot path isn't blocked on it.
	go func(ticks []tick.Tick) {
		for _, t := range ticks {
			r.insert(t)
		}
	}(l2Ticks)

	return l2Ticks, true
}

// symbolRing is a bounded, per-symbol ring of the most recent L1Capacity
// ticks, ordered by ts. One mutex per symbol permits parallel symbols.
// insert finds its slot by binary search and shifts any newer ticks up by
// one, so a late tick costs time proportional to the ring size.
type symbolRing struct {
	mu         sync.Mutex
	cap        int
	ttl        time.Duration
	lateWindow time.Duration
	ticks      []tick.Tick // ascending by ts
	lastWrite  time.Time
}

func newSymbolRing(cap int, ttl, lateWindow time.Duration) *symbolRing {
	if cap <= 0 {
		cap = 1
	}
	return &symbolRing{cap: cap, ttl: ttl, lateWindow: lateWindow}
}

// insert places t in ts order. A tick older than the ring head by more
// than lateWindow is dropped from the cache (but is still persisted by
// the store — this method never touches the store).
func (r *symbolRing) insert(t tick.Tick) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.expired() {
		r.ticks = nil
	}
	r.lastWrite = time.Now()

	if len(r.ticks) > 0 {
		head := r.ticks[len(r.ticks)-1].TS
		if t.TS.Before(head) && head.Sub(t.TS) > r.lateWindow {
			return // too late, cache drops it
		}
	}

	idx := sort.Search(len(r.ticks), func(i int) bool {
		if r.ticks[i].TS.Equal(t.TS) {
			return r.ticks[i].TradeID >= t.TradeID
		}
		return r.ticks[i].TS.After(t.TS)
	})
	r.ticks = append(r.ticks, tick.Tick{})
	copy(r.ticks[idx+1:], r.ticks[idx:])
	r.ticks[idx] = t

	if len(r.ticks) > r.cap {
		r.ticks = r.ticks[len(r.ticks)-r.cap:]
	}
}

func (r *symbolRing) expired() bool {
	return r.ttl > 0 && !r.lastWrite.IsZero() && time.Since(r.lastWrite) > r.ttl
}

func (r *symbolRing) tail(n int) []tick.Tick {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.expired() {
		r.ticks = nil
		return nil
	}
	if n > len(r.ticks) {
		n = len(r.ticks)
	}
	out := make([]tick.Tick, n)
	copy(out, r.ticks[len(r.ticks)-n:])
	return out
}
