package strategy

import "fmt"

// Spec describes one buildable strategy for listing and construction from
// the boundary API and CLI, keeping internal/httpapi and cmd/cryptorun from
// knowing about each strategy's constructor signature directly.
type Spec struct {
	ID          string
	Description string
	// Build constructs a Strategy from a flat string-keyed parameter map,
	// applying each implementation's own defaults for missing keys.
	Build func(params map[string]string) (Strategy, error)
}

// registry is the fixed set of strategies this build ships. Adding a new
// Strategy implementation means adding one entry here.
var registry = []Spec{
	{
		ID:          "sma_crossover",
		Description: "Fast/slow simple moving average golden/death cross",
		Build: func(params map[string]string) (Strategy, error) {
			fast := intParam(params, "fast_period", 5)
			slow := intParam(params, "slow_period", 20)
			return NewSMACrossover(fast, slow), nil
		},
	},
	{
		ID:          "rsi",
		Description: "Wilder's-smoothing RSI oversold/overbought crossover",
		Build: func(params map[string]string) (Strategy, error) {
			period := intParam(params, "period", 14)
			oversold := floatParam(params, "oversold", 30)
			overbought := floatParam(params, "overbought", 70)
			return NewRSIStrategy(period, oversold, overbought), nil
		},
	},
}

// List returns every registered strategy's id and description, in
// registration order, for the boundary API's GET /v1/strategies.
func List() []Spec {
	out := make([]Spec, len(registry))
	copy(out, registry)
	return out
}

// New builds the named strategy with the given parameters, returning an
// error if no strategy is registered under that id.
func New(id string, params map[string]string) (Strategy, error) {
	for _, s := range registry {
		if s.ID == id {
			return s.Build(params)
		}
	}
	return nil, fmt.Errorf("strategy: unknown id %q", id)
}

func intParam(params map[string]string, key string, def int) int {
	v, ok := params[key]
	if !ok {
		return def
	}
	var n int
	if _, err := fmt.Sscanf(v, "%d", &n); err != nil {
		return def
	}
	return n
}

func floatParam(params map[string]string, key string, def float64) float64 {
	v, ok := params[key]
	if !ok {
		return def
	}
	var f float64
	if _, err := fmt.Sscanf(v, "%g", &f); err != nil {
		return def
	}
	return f
}
