package httpapi

import (
	"time"

	"github.com/sawpanic/cryptorun/internal/metrics"
	"github.com/sawpanic/cryptorun/internal/portfolio"
	"github.com/sawpanic/cryptorun/internal/store"
)

// ErrorResponse is the standardized error body, shaped like the teacher's
// internal/http.ErrorResponse.
type ErrorResponse struct {
	Error     string    `json:"error"`
	Message   string    `json:"message"`
	Code      string    `json:"code"`
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

// DataInfoResponse wraps store.Stats for GET /v1/data-info.
type DataInfoResponse struct {
	Stats     store.Stats `json:"stats"`
	Timestamp time.Time   `json:"timestamp"`
}

// StrategyInfo describes one strategy registration for GET /v1/strategies.
type StrategyInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Parameters  map[string]string `json:"parameters"`
}

// StrategiesResponse is the body for GET /v1/strategies.
type StrategiesResponse struct {
	Strategies []StrategyInfo `json:"strategies"`
}

// BacktestRequest is the body for POST /v1/backtests.
type BacktestRequest struct {
	StrategyID     string            `json:"strategy_id"`
	Parameters     map[string]string `json:"parameters"`
	Symbol         string            `json:"symbol"`
	Start          time.Time         `json:"start"`
	End            time.Time         `json:"end"`
	InitialCash    string            `json:"initial_cash"`
	CommissionRate string            `json:"commission_rate"`
}

// BacktestResponse is the body for a completed POST /v1/backtests.
type BacktestResponse struct {
	RunID         string                    `json:"run_id"`
	Symbol        string                    `json:"symbol"`
	StrategyID    string                    `json:"strategy_id"`
	Summary       metrics.Summary           `json:"summary"`
	Trades        []portfolio.TradeRecord   `json:"trades"`
	EquityCurve   []portfolio.EquitySample  `json:"equity_curve"`
	TicksReplayed int                       `json:"ticks_replayed"`
	DurationMS    int64                     `json:"duration_ms"`
	Timestamp     time.Time                 `json:"timestamp"`
}

// HealthzResponse is the body for GET /healthz.
type HealthzResponse struct {
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
}
