package flw

import "fmt"

// Objective evaluates a position. It must be framed so that lower values are
// better. A returned error aborts the run.
type Objective interface {
	Evaluate(x []float64) (float64, error)
}

// ObjectiveFunc adapts a plain function that cannot fail.
type ObjectiveFunc func(x []float64) float64

func (f ObjectiveFunc) Evaluate(x []float64) (float64, error) { return f(x), nil }

// EvaluationError wraps an objective failure with where it happened.
type EvaluationError struct {
	Generation int
	Agent      int
	Err        error
}

func (e *EvaluationError) Error() string {
	return fmt.Sprintf("evaluation failed at generation %d, agent %d: %v", e.Generation, e.Agent, e.Err)
}

func (e *EvaluationError) Unwrap() error { return e.Err }
