package opt

import (
	"log/slog"
	"math"

	"github.com/cwbudde/flwopt/internal/flw"
)

// FLWAdapter runs the leader/follower/walker optimizer through the Optimizer
// interface. Sampling and magnitude bounds are derived from the first
// dimension of lower and upper.
type FLWAdapter struct {
	cfg  flw.Config
	seed int64
}

// NewFLW creates an adapter from a base configuration. Dimension and bounds
// are overwritten on every Run.
func NewFLW(cfg flw.Config, seed int64) Optimizer {
	return &FLWAdapter{cfg: cfg, seed: seed}
}

func (f *FLWAdapter) Name() string { return "flw" }

// Run executes cfg.NGens generations on eval.
func (f *FLWAdapter) Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64) {
	cfg := f.cfg
	cfg.Dimension = dim
	cfg.A = lower[0]
	cfg.B = upper[0]
	cfg.MaxMagnitude = math.Max(math.Abs(lower[0]), math.Abs(upper[0]))
	if cfg.MinMagnitude > cfg.MaxMagnitude {
		cfg.MinMagnitude = 0
	}

	o, err := flw.New(cfg, flw.ObjectiveFunc(eval), flw.WithSeed(f.seed))
	if err != nil {
		slog.Warn("FLW optimizer rejected configuration", "error", err)
		return fallback(eval, dim)
	}
	res, err := o.Run()
	if err != nil {
		slog.Warn("FLW optimization failed", "error", err)
		return fallback(eval, dim)
	}
	return res.Best.Position, res.Best.Fitness
}
