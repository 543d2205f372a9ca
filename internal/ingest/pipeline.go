// Package ingest implements the live ingest pipeline from spec §4.4:
// bounded-channel backpressure from one or more TickSources into
// size/age-batched, circuit-breaker-guarded, retrying writes to the
// TickStore, with a cache write-through on every committed batch.
//
// Grounded on the teacher's internal/infrastructure/async.Pipeline /
// BatchProcessor (worker pool + size/interval batch flushing) and
// infra/breakers.Breaker (gobreaker wrapping a risky call), generalized
// from a generic T pipeline to the concrete tick.Tick domain and from a
// worker-pool fan-out to a single-writer-per-symbol-class batcher, since
// spec §4.4 requires at-least-once, ordered-per-symbol commits rather
// than arbitrary parallel reordering.
package ingest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sony/gobreaker"

	"github.com/sawpanic/cryptorun/internal/cache"
	"github.com/sawpanic/cryptorun/internal/source"
	"github.com/sawpanic/cryptorun/internal/store"
	"github.com/sawpanic/cryptorun/internal/tick"
)

// Config controls batching, backpressure, and shutdown behavior.
type Config struct {
	// QueueCapacity bounds the channel between TickSource readers and the
	// batcher. A full queue applies backpressure: Submit blocks (it never
	// silently drops) unless the context is cancelled first.
	QueueCapacity int
	// BatchSize flushes a batch once it reaches this many ticks.
	BatchSize int
	// BatchAge is the period of the batcher's flush timer: any buffered
	// ticks are flushed when it fires, even if BatchSize hasn't been hit,
	// and the timer restarts after every flush. A tick therefore waits at
	// most about BatchAge; the timer is not aligned to the arrival of the
	// oldest buffered tick, so a batch may flush sooner than that.
	BatchAge time.Duration
	// DrainTimeout bounds how long Stop waits for in-flight batches to
	// commit before giving up.
	DrainTimeout time.Duration
	// Symbols is the allowlist of symbols Submit accepts, per spec §4.4
	// step 1 ("symbol known"). Empty means accept any structurally valid
	// symbol — used by tests and any caller that hasn't wired a
	// configured universe yet.
	Symbols []tick.Symbol
	// MaxClockSkew bounds how far a tick's ts may diverge from wall-clock
	// time before Submit rejects it (spec §4.4 step 1's "within ±5min of
	// wall clock"). Zero disables the check.
	MaxClockSkew time.Duration
}

// DefaultConfig matches spec §6.1 defaults.
func DefaultConfig() Config {
	return Config{
		QueueCapacity: 10000,
		BatchSize:     100,
		BatchAge:      200 * time.Millisecond,
		DrainTimeout:  5 * time.Second,
		MaxClockSkew:  5 * time.Minute,
	}
}

// Pipeline reads from a TickSource, batches, and commits to a TickStore
// with a cache write-through, circuit breaker, and retry.
type Pipeline struct {
	cfg     Config
	st      store.TickStore
	cch     *cache.TickCache
	breaker *gobreaker.CircuitBreaker
	log     zerolog.Logger

	queue chan tick.Tick

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc

	symbols map[tick.Symbol]struct{}

	mu        sync.Mutex
	accepted  uint64
	rejected  uint64
	committed uint64
}

// New builds a Pipeline. The circuit breaker trips after 3 consecutive
// store failures, or a >5% failure rate over 20+ requests within a 60s
// window — the same thresholds as the teacher's infra/breakers.Breaker.
func New(cfg Config, st store.TickStore, cch *cache.TickCache, log zerolog.Logger) *Pipeline {
	settings := gobreaker.Settings{
		Name:     "ingest_store_commit",
		Interval: 60 * time.Second,
		Timeout:  60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= 3 {
				return true
			}
			if counts.Requests < 20 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) > 0.05
		},
	}
	var symbols map[tick.Symbol]struct{}
	if len(cfg.Symbols) > 0 {
		symbols = make(map[tick.Symbol]struct{}, len(cfg.Symbols))
		for _, s := range cfg.Symbols {
			symbols[s] = struct{}{}
		}
	}
	return &Pipeline{
		cfg:     cfg,
		st:      st,
		cch:     cch,
		breaker: gobreaker.NewCircuitBreaker(settings),
		log:     log.With().Str("component", "ingest_pipeline").Logger(),
		queue:   make(chan tick.Tick, cfg.QueueCapacity),
		symbols: symbols,
	}
}

// Submit enqueues a tick for commit, blocking if the queue is full
// (backpressure) until ctx is cancelled. Per spec §4.4 step 1, a tick is
// rejected before enqueueing if it fails structural validation, names a
// symbol outside the configured universe, or carries a ts too far from
// wall-clock time to be trustworthy.
func (p *Pipeline) Submit(ctx context.Context, t tick.Tick) error {
	if err := t.Validate(); err != nil {
		p.reject()
		return err
	}
	if p.symbols != nil {
		if _, ok := p.symbols[t.Symbol]; !ok {
			p.reject()
			return fmt.Errorf("ingest: symbol %q is not in the configured universe", t.Symbol)
		}
	}
	if p.cfg.MaxClockSkew > 0 {
		if skew := time.Since(t.TS); skew > p.cfg.MaxClockSkew || skew < -p.cfg.MaxClockSkew {
			p.reject()
			return fmt.Errorf("ingest: tick ts %s is outside the ±%s wall-clock tolerance", t.TS, p.cfg.MaxClockSkew)
		}
	}
	select {
	case p.queue <- t:
		p.mu.Lock()
		p.accepted++
		p.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (p *Pipeline) reject() {
	p.mu.Lock()
	p.rejected++
	p.mu.Unlock()
}

// RunSource pumps a TickSource into Submit until the source closes or ctx
// is cancelled. Intended to be run in its own goroutine per source.
func (p *Pipeline) RunSource(ctx context.Context, src source.TickSource) {
	for {
		t, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() == nil {
				p.log.Warn().Err(err).Msg("ingest: source ended")
			}
			return
		}
		if err := p.Submit(ctx, t); err != nil {
			return
		}
	}
}

// Start launches the batcher loop. Call Stop to drain and shut down.
func (p *Pipeline) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.batchLoop(runCtx)
}

// Stop signals shutdown and waits up to cfg.DrainTimeout for the batcher
// to flush any in-flight batch and exit.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		if p.cancel != nil {
			p.cancel()
		}
		done := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(p.cfg.DrainTimeout):
			p.log.Warn().Msg("ingest: drain timeout exceeded, shutting down with ticks possibly unflushed")
		}
	})
}

// Stats returns lightweight counters for the boundary API / logs.
type Stats struct {
	Accepted  uint64
	Rejected  uint64
	Committed uint64
}

func (p *Pipeline) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Accepted: p.accepted, Rejected: p.rejected, Committed: p.committed}
}

func (p *Pipeline) batchLoop(ctx context.Context) {
	defer p.wg.Done()

	buf := make([]tick.Tick, 0, p.cfg.BatchSize)
	timer := time.NewTimer(p.cfg.BatchAge)
	defer timer.Stop()

	commitCtx := ctx
	flush := func() {
		if len(buf) == 0 {
			return
		}
		batch := make([]tick.Tick, len(buf))
		copy(batch, buf)
		buf = buf[:0]
		p.commit(commitCtx, batch)
	}

	for {
		select {
		case t, ok := <-p.queue:
			if !ok {
				flush()
				return
			}
			buf = append(buf, t)
			if len(buf) >= p.cfg.BatchSize {
				flush()
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(p.cfg.BatchAge)
			}
		case <-timer.C:
			flush()
			timer.Reset(p.cfg.BatchAge)
		case <-ctx.Done():
			// Drain whatever is already queued before exiting, up to
			// DrainTimeout (enforced by Stop's own timer). ctx is already
			// cancelled here, so the drain commits with a context that
			// keeps its values but not its cancellation.
			commitCtx = context.WithoutCancel(ctx)
			for {
				select {
				case t := <-p.queue:
					buf = append(buf, t)
					if len(buf) >= p.cfg.BatchSize {
						flush()
					}
				default:
					flush()
					return
				}
			}
		}
	}
}

func (p *Pipeline) commit(ctx context.Context, batch []tick.Tick) {
	_, err := p.breaker.Execute(func() (interface{}, error) {
		err := store.Retry(ctx, store.DefaultRetryPolicy(), func(ctx context.Context) error {
			_, err := p.st.InsertBatch(ctx, batch)
			return err
		})
		return nil, err
	})
	if err != nil {
		p.log.Error().Err(err).Int("batch_size", len(batch)).Msg("ingest: batch commit failed")
		return
	}

	p.mu.Lock()
	p.committed += uint64(len(batch))
	p.mu.Unlock()

	if p.cch != nil {
		for _, t := range batch {
			p.cch.Write(ctx, t)
		}
	}
}
