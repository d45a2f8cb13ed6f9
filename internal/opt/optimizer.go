// Package opt puts the leader/follower/walker optimizer and the Mayfly
// algorithm behind one interface so they can be compared on the same
// objectives.
package opt

// Optimizer defines an optimization algorithm interface
type Optimizer interface {
	// Name identifies the algorithm in comparison output.
	Name() string

	// Run executes the optimization
	// eval: objective function to minimize
	// lower, upper: parameter bounds
	// dim: dimensionality of parameter space
	// Returns: best parameters and best cost
	Run(eval func([]float64) float64, lower, upper []float64, dim int) ([]float64, float64)
}

// fallback is returned when an algorithm cannot start.
func fallback(eval func([]float64) float64, dim int) ([]float64, float64) {
	zero := make([]float64, dim)
	return zero, eval(zero)
}
