package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/sawpanic/cryptorun/internal/backtest"
	"github.com/sawpanic/cryptorun/internal/metrics"
	"github.com/sawpanic/cryptorun/internal/portfolio"
	"github.com/sawpanic/cryptorun/internal/store"
	"github.com/sawpanic/cryptorun/internal/strategy"
	"github.com/sawpanic/cryptorun/internal/tick"
)

// handlers owns the dependencies every boundary endpoint needs: the
// durable store backtests replay against and a logger for request
// correlation. Grounded on the teacher's handlers.Handlers, which holds
// no state today but is the seam real dependencies (regime detector,
// candidate manager) would be threaded through.
type handlers struct {
	st              store.TickStore
	log             zerolog.Logger
	forceCloseAtEnd bool
}

func newHandlers(st store.TickStore, log zerolog.Logger, forceCloseAtEnd bool) *handlers {
	return &handlers{st: st, log: log, forceCloseAtEnd: forceCloseAtEnd}
}

func (h *handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, `{"error":"json_encoding_failed"}`, http.StatusInternalServerError)
	}
}

func (h *handlers) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	requestID, _ := r.Context().Value(ctxKeyRequestID).(string)
	if requestID == "" {
		requestID = "unknown"
	}
	h.writeJSON(w, status, ErrorResponse{
		Error:     http.StatusText(status),
		Message:   message,
		Code:      code,
		RequestID: requestID,
		Timestamp: time.Now().UTC(),
	})
}

func (h *handlers) notFound(w http.ResponseWriter, r *http.Request) {
	h.writeError(w, r, http.StatusNotFound, "endpoint_not_found", "the requested endpoint does not exist")
}

func (h *handlers) healthz(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, HealthzResponse{Status: "ok", Timestamp: time.Now().UTC()})
}

func (h *handlers) dataInfo(w http.ResponseWriter, r *http.Request) {
	stats, err := h.st.Stats(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusInternalServerError, "store_unavailable", err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, DataInfoResponse{Stats: stats, Timestamp: time.Now().UTC()})
}

func (h *handlers) strategies(w http.ResponseWriter, r *http.Request) {
	specs := strategy.List()
	out := make([]StrategyInfo, 0, len(specs))
	for _, s := range specs {
		built, err := s.Build(nil)
		params := map[string]string{}
		if err == nil {
			params = built.Parameters()
		}
		out = append(out, StrategyInfo{
			ID:          s.ID,
			Name:        s.ID,
			Description: s.Description,
			Parameters:  params,
		})
	}
	h.writeJSON(w, http.StatusOK, StrategiesResponse{Strategies: out})
}

// backtests runs a BacktestEngine synchronously and returns its result.
// Each request is tagged with a uuid run ID returned in the response and
// logged alongside the strategy/symbol for correlation, matching the
// teacher's use of google/uuid for request identifiers.
func (h *handlers) backtests(w http.ResponseWriter, r *http.Request) {
	var req BacktestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	runID := uuid.New().String()
	symbol, err := tick.NewSymbol(req.Symbol)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "invalid_symbol", err.Error())
		return
	}

	strat, err := strategy.New(req.StrategyID, req.Parameters)
	if err != nil {
		h.writeError(w, r, http.StatusBadRequest, "unknown_strategy", err.Error())
		return
	}

	pcfg := portfolio.DefaultConfig()
	if req.InitialCash != "" {
		cash, err := decimal.NewFromString(req.InitialCash)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_initial_cash", err.Error())
			return
		}
		pcfg.InitialCash = cash
	}
	if req.CommissionRate != "" {
		rate, err := decimal.NewFromString(req.CommissionRate)
		if err != nil {
			h.writeError(w, r, http.StatusBadRequest, "invalid_commission_rate", err.Error())
			return
		}
		pcfg.CommissionRate = rate
	}

	bcfg := backtest.DefaultConfig()
	bcfg.Symbol = symbol
	bcfg.Start = req.Start
	bcfg.End = req.End
	bcfg.Strategy = strat
	bcfg.Portfolio = pcfg
	bcfg.ForceCloseAtEnd = h.forceCloseAtEnd

	engine := backtest.New(bcfg, h.st, h.log.With().Str("run_id", runID).Logger())

	started := time.Now()
	result, err := engine.Run(r.Context())
	elapsed := time.Since(started)
	if err != nil {
		h.log.Warn().Str("run_id", runID).Err(err).Msg("backtest run failed")
		h.writeError(w, r, http.StatusUnprocessableEntity, "backtest_failed", err.Error())
		return
	}

	summary := metrics.Compute(result, 0)
	h.writeJSON(w, http.StatusOK, BacktestResponse{
		RunID:         runID,
		Symbol:        req.Symbol,
		StrategyID:    req.StrategyID,
		Summary:       summary,
		Trades:        result.Trades,
		EquityCurve:   result.Equity,
		TicksReplayed: result.TicksReplayed,
		DurationMS:    elapsed.Milliseconds(),
		Timestamp:     time.Now().UTC(),
	})
}

