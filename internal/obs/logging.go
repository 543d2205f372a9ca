// Package obs wires up the ambient observability stack: zerolog
// structured logging and the Prometheus metrics registry, per spec §7
// and SPEC_FULL.md's ambient-stack expansion.
//
// Grounded on cmd/cryptorun/main.go's zerolog setup (RFC3339 timestamps,
// a zerolog.ConsoleWriter on a TTY) and
// internal/interfaces/http.MetricsRegistry (a struct of typed
// prometheus collectors registered once at startup), adapted from
// CryptoRun's scan-pipeline metric names to the tick-store/cache/ingest
// domain this module covers.
package obs

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"
)

// NewLogger builds the process-wide zerolog.Logger: a human-readable
// console writer when stderr is a TTY, structured JSON otherwise (e.g.
// under a process supervisor or in CI), matching the teacher's TTY
// detection idiom in cmd/cryptorun/main.go's runDefaultEntry.
func NewLogger(level string) zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339

	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if term.IsTerminal(int(os.Stderr.Fd())) {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
	} else {
		logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
	return logger.Level(lvl)
}
