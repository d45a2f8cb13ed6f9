package flw

import (
	"log/slog"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises the fitness values evaluated in one generation.
type Stats struct {
	Generation  int     `json:"generation"`
	Evaluations int     `json:"evaluations"`
	Avg         float64 `json:"avg"`
	Std         float64 `json:"std"`
	Min         float64 `json:"min"`
	Max         float64 `json:"max"`
	Best        float64 `json:"best"`
	Stale       int     `json:"stale"`
}

// computeStats uses population (not sample) standard deviation. floats.Min
// and floats.Max skip NaN entries.
func computeStats(generation, evals int, values []float64, best float64, stale int) Stats {
	s := Stats{Generation: generation, Evaluations: evals, Best: best, Stale: stale}
	if len(values) == 0 {
		return s
	}
	s.Avg, s.Std = stat.PopMeanStdDev(values, nil)
	s.Min = floats.Min(values)
	s.Max = floats.Max(values)
	return s
}

// StagnationConfig defines when a generation counts as progress.
type StagnationConfig struct {
	// Threshold is the minimum relative improvement of the best-known
	// fitness, (last - current) / |last|, that resets the stale counter.
	Threshold float64
}

// DefaultStagnationConfig treats a 0.1% improvement as progress.
func DefaultStagnationConfig() StagnationConfig {
	return StagnationConfig{Threshold: 0.001}
}

// StagnationTracker counts generations without significant improvement of
// the best-known fitness. It only reports; runs never stop on it.
type StagnationTracker struct {
	config          StagnationConfig
	lastSignificant float64
	staleCount      int
	seen            bool
	log             *slog.Logger
}

// NewStagnationTracker creates a tracker with the given config.
func NewStagnationTracker(config StagnationConfig) *StagnationTracker {
	return &StagnationTracker{config: config, lastSignificant: math.Inf(1), log: slog.Default()}
}

// Update records the best-known fitness after a generation and returns the
// current stale count.
func (t *StagnationTracker) Update(best float64) int {
	if !t.seen {
		t.seen = true
		t.lastSignificant = best
		return 0
	}

	var improvement float64
	switch {
	case best == t.lastSignificant:
		improvement = 0
	case t.lastSignificant == 0 || math.IsInf(t.lastSignificant, 0):
		// Relative change is undefined; any decrease counts.
		if best < t.lastSignificant {
			improvement = math.Inf(1)
		}
	default:
		improvement = (t.lastSignificant - best) / math.Abs(t.lastSignificant)
	}

	if improvement >= t.config.Threshold && improvement > 0 {
		t.lastSignificant = best
		t.staleCount = 0
		return 0
	}
	t.staleCount++
	t.log.Debug("No significant improvement",
		"best", best,
		"last_significant", t.lastSignificant,
		"stale_count", t.staleCount,
	)
	return t.staleCount
}

// StaleCount returns the current number of generations without improvement.
func (t *StagnationTracker) StaleCount() int {
	return t.staleCount
}

// Reset clears the tracker's state.
func (t *StagnationTracker) Reset() {
	t.lastSignificant = math.Inf(1)
	t.staleCount = 0
	t.seen = false
}
