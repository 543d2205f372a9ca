package strategy

import "testing"

func TestList_ReturnsRegisteredStrategies(t *testing.T) {
	specs := List()
	if len(specs) != 2 {
		t.Fatalf("expected 2 registered strategies, got %d", len(specs))
	}
}

func TestNew_BuildsKnownStrategy(t *testing.T) {
	s, err := New("sma_crossover", map[string]string{"fast_period": "3", "slow_period": "10"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Parameters()["fast_period"] != "3" {
		t.Fatalf("expected fast_period 3, got %s", s.Parameters()["fast_period"])
	}
}

func TestNew_UnknownIDErrors(t *testing.T) {
	if _, err := New("nonexistent", nil); err == nil {
		t.Fatalf("expected error for unknown strategy id")
	}
}

func TestNew_MissingParamsUseDefaults(t *testing.T) {
	s, err := New("rsi", nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if s.Parameters()["period"] != "14" {
		t.Fatalf("expected default period 14, got %s", s.Parameters()["period"])
	}
}
