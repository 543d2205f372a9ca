// Package httpapi exposes the boundary HTTP+JSON API spec.md §6 and
// SPEC_FULL.md §6.3 describe for a host shell: read-only data/strategy
// introspection plus synchronous backtest execution, liveness, and
// Prometheus metrics.
//
// Grounded on internal/interfaces/http/server.go (gorilla/mux router,
// ServerConfig with read/write/idle timeouts, a localhost-only default
// bind, and the request-ID/logging/timeout/CORS middleware chain) and
// internal/interfaces/http/handlers (Handlers struct, writeJSON/writeError
// conventions, ErrorResponse shape), adapted from that read-only
// candidate-scanning API to this module's tick-store/strategy/backtest
// domain.
package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/sawpanic/cryptorun/internal/obs"
	"github.com/sawpanic/cryptorun/internal/store"
)

type contextKey int

const ctxKeyRequestID contextKey = iota

// ServerConfig configures the boundary HTTP server.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
	// ForceCloseAtEnd is threaded into every backtest.Config the
	// /v1/backtests handler builds, mirroring spec §6's
	// backtest.force_close_at_end configuration key.
	ForceCloseAtEnd bool
}

// DefaultServerConfig binds to localhost only, matching the teacher's
// read-only server default.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "127.0.0.1",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		IdleTimeout:     60 * time.Second,
		ForceCloseAtEnd: true,
	}
}

// Server is the boundary HTTP API described in spec.md §6.
type Server struct {
	router *mux.Router
	http   *http.Server
	config ServerConfig
}

// NewServer wires the router and handlers against st (for /v1/data-info
// and backtest replay) and metrics (for /metrics).
func NewServer(config ServerConfig, st store.TickStore, metrics *obs.MetricsRegistry, log zerolog.Logger) (*Server, error) {
	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("httpapi: port %d is busy or unavailable: %w", config.Port, err)
	}
	listener.Close()

	h := newHandlers(st, log, config.ForceCloseAtEnd)
	router := mux.NewRouter()
	s := &Server{router: router, config: config}
	s.setupRoutes(h, metrics, log)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}
	return s, nil
}

func (s *Server) setupRoutes(h *handlers, metrics *obs.MetricsRegistry, log zerolog.Logger) {
	s.router.Use(requestIDMiddleware)
	s.router.Use(loggingMiddleware(log))
	s.router.Use(timeoutMiddleware(5 * time.Second))

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentTypeMiddleware)

	api.HandleFunc("/healthz", h.healthz).Methods(http.MethodGet)
	api.HandleFunc("/v1/data-info", h.dataInfo).Methods(http.MethodGet)
	api.HandleFunc("/v1/strategies", h.strategies).Methods(http.MethodGet)
	api.HandleFunc("/v1/backtests", h.backtests).Methods(http.MethodPost)

	// /metrics is Prometheus exposition format, not JSON; mounted outside
	// the jsonContentTypeMiddleware subrouter.
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	s.router.NotFoundHandler = http.HandlerFunc(h.notFound)
}

// Handler exposes the underlying mux.Router for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns the bound address.
func (s *Server) Addr() string { return s.http.Addr }

// Start blocks serving until the listener errors (including on Shutdown,
// which returns http.ErrServerClosed).
func (s *Server) Start() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := uuid.New().String()[:8]
		ctx := context.WithValue(r.Context(), ctxKeyRequestID, id)
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggingMiddleware(log zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapper := &statusWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(wrapper, r)
			requestID, _ := r.Context().Value(ctxKeyRequestID).(string)
			log.Info().
				Str("request_id", requestID).
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Int("status", wrapper.statusCode).
				Dur("duration", time.Since(start)).
				Msg("http request")
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), d)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func jsonContentTypeMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

type statusWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWrapper) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}
