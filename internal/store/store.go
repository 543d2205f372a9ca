// Package store defines the durable TickStore contract: append-only
// storage with idempotent batch inserts, range/latest queries, and
// aggregate stats. internal/store/postgres provides the sqlx-backed
// implementation; the interface here is what internal/ingest and
// internal/backtest depend on so they never import a SQL driver directly.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sawpanic/cryptorun/internal/tick"
)

// Sentinel errors classifying TickStore failures per the error taxonomy.
var (
	// ErrDuplicate classifies a unique-constraint violation reported by
	// the database. A duplicate (symbol, trade_id) tick is not reported
	// this way: InsertOne returns DuplicateIgnored and InsertBatch counts
	// it in BatchResult.Duplicates, both with a nil error.
	ErrDuplicate = errors.New("store: duplicate tick")
	// ErrTransient marks a retryable failure (pool exhaustion, timeout,
	// connection reset).
	ErrTransient = errors.New("store: transient failure")
	// ErrSchema marks a non-duplicate constraint violation; never retried.
	ErrSchema = errors.New("store: schema violation")
)

// InsertResult is the return value of InsertOne.
type InsertResult int

const (
	Inserted InsertResult = iota
	DuplicateIgnored
)

// BatchResult summarizes an InsertBatch call.
type BatchResult struct {
	Inserted   uint32
	Duplicates uint32
}

// SymbolStats summarizes the rows on file for one symbol.
type SymbolStats struct {
	Count      int64
	EarliestTS time.Time
	LatestTS   time.Time
	MinPrice   tick.Decimal
	MaxPrice   tick.Decimal
}

// Stats summarizes the whole store.
type Stats struct {
	TotalRows int64
	PerSymbol map[tick.Symbol]SymbolStats
}

// TickStore is the durable append-only tick store contract from spec §4.1.
type TickStore interface {
	// InsertOne persists a single tick, returning DuplicateIgnored (not an
	// error) when (symbol, trade_id) already exists.
	InsertOne(ctx context.Context, t tick.Tick) (InsertResult, error)

	// InsertBatch persists many ticks atomically: either every
	// non-duplicate row commits, or none do. Duplicates are silently
	// excluded from the commit and counted.
	InsertBatch(ctx context.Context, ticks []tick.Tick) (BatchResult, error)

	// QueryRange returns ticks for symbol in [tLo, tHi], ordered by ts
	// ascending then trade_id ascending. limit <= 0 means unbounded.
	QueryRange(ctx context.Context, symbol tick.Symbol, tLo, tHi time.Time, limit int) ([]tick.Tick, error)

	// QueryLatest returns the most recent n ticks for symbol, in
	// chronological (ascending) order.
	QueryLatest(ctx context.Context, symbol tick.Symbol, n int) ([]tick.Tick, error)

	// Stats returns row counts and per-symbol aggregates.
	Stats(ctx context.Context) (Stats, error)
}
