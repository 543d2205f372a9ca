// Package source defines the TickSource contract that feeds the ingest
// pipeline, per spec §4.3. Concrete exchange integrations are out of
// scope (Non-goals); internal/source/wsfeed provides a single reference
// adapter over a generic JSON-over-websocket contract to exercise the
// interface end to end.
package source

import (
	"context"
	"errors"

	"github.com/sawpanic/cryptorun/internal/tick"
)

// ErrClosed is returned by Next once the source has been closed, either
// by the caller or because the upstream connection ended.
var ErrClosed = errors.New("source: closed")

// TickSource is a symbol-scoped stream of live ticks. Implementations
// must be safe to read from a single goroutine; Close may be called
// concurrently with a blocked Next to unblock it.
type TickSource interface {
	// Next blocks until a tick is available, ctx is cancelled, or the
	// source is closed. Returns ErrClosed (or a wrapped ctx.Err()) on
	// termination.
	Next(ctx context.Context) (tick.Tick, error)

	// Close releases the underlying connection. Idempotent.
	Close() error
}

// Factory builds a TickSource for a set of symbols. Adapters implement
// this so the CLI can select a source by name without internal/ingest
// importing a specific transport package.
type Factory func(ctx context.Context, symbols []tick.Symbol) (TickSource, error)
