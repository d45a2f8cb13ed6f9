package opt

import (
	"testing"

	"github.com/cwbudde/flwopt/internal/flw"
)

func TestFLWAdapterOnSphere(t *testing.T) {
	cfg := flw.DefaultConfig()
	cfg.NGens = 200
	optimizer := NewFLW(cfg, 42)

	dim := 3
	lower := []float64{-10, -10, -10}
	upper := []float64{10, 10, 10}

	best, cost := optimizer.Run(sphere, lower, upper, dim)
	if len(best) != dim {
		t.Fatalf("Expected %d parameters, got %d", dim, len(best))
	}
	if cost != sphere(best) {
		t.Errorf("cost %f does not match best position %v", cost, best)
	}

	// Same seed, same start: more generations never end worse.
	short := cfg
	short.NGens = 1
	_, first := NewFLW(short, 42).Run(sphere, lower, upper, dim)
	if cost > first {
		t.Errorf("200 generations ended at %f, worse than one generation at %f", cost, first)
	}
	for i, v := range best {
		if v < -10 || v > 10 {
			t.Errorf("Parameter %d = %f outside bounds", i, v)
		}
	}
}

func TestFLWAdapterDeterministic(t *testing.T) {
	cfg := flw.DefaultConfig()
	cfg.NGens = 50
	lower := []float64{-5, -5}
	upper := []float64{5, 5}

	_, cost1 := NewFLW(cfg, 123).Run(sphere, lower, upper, 2)
	_, cost2 := NewFLW(cfg, 123).Run(sphere, lower, upper, 2)
	if cost1 != cost2 {
		t.Errorf("Non-deterministic: cost1=%f, cost2=%f", cost1, cost2)
	}
}

func TestFLWAdapterFallsBackOnInvalidConfig(t *testing.T) {
	cfg := flw.DefaultConfig()
	cfg.NLeaders = 0

	best, cost := NewFLW(cfg, 1).Run(sphere, []float64{-1}, []float64{1}, 1)
	if len(best) != 1 || best[0] != 0 || cost != 0 {
		t.Errorf("expected zero fallback, got %v %f", best, cost)
	}
}
