package store

import (
	"math"
	"time"

	"github.com/cwbudde/flwopt/internal/flw"
)

// JobConfig records what a run was asked to do. It is a copy of the server's
// job request so the store does not import the server package.
type JobConfig struct {
	Objective string     `json:"objective"`
	Seed      int64      `json:"seed"`
	Optimizer flw.Config `json:"optimizer"`
}

// Run outcomes recorded in RunReport.Status.
const (
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// RunReport is the saved summary of a finished run. It is written once when
// the run ends and is never used to restart a run: the population itself is
// not persisted.
type RunReport struct {
	// ID is the unique identifier of the run
	ID string `json:"id"`

	Config JobConfig `json:"config"`

	// Best is the position of the best-known solution at the end of the run
	Best        []float64 `json:"best"`
	BestFitness float64   `json:"bestFitness"`

	Generations int `json:"generations"`
	Evaluations int `json:"evaluations"`

	// Status is one of StatusCompleted, StatusCancelled or StatusFailed;
	// Error carries the failure message for the latter two.
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`

	Elapsed   time.Duration `json:"elapsed"`
	Timestamp time.Time     `json:"timestamp"`
}

// RunReportInfo contains report metadata without the best position.
type RunReportInfo struct {
	ID          string    `json:"id"`
	Objective   string    `json:"objective"`
	Dimension   int       `json:"dimension"`
	BestFitness float64   `json:"bestFitness"`
	Generations int       `json:"generations"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewRunReport creates a report stamped with the current time.
func NewRunReport(id string, config JobConfig, best flw.Solution, generations, evaluations int, status string) *RunReport {
	return &RunReport{
		ID:          id,
		Config:      config,
		Best:        append([]float64(nil), best.Position...),
		BestFitness: best.Fitness,
		Generations: generations,
		Evaluations: evaluations,
		Status:      status,
		Timestamp:   time.Now(),
	}
}

// ToInfo converts a full report to its listing metadata.
func (r *RunReport) ToInfo() RunReportInfo {
	return RunReportInfo{
		ID:          r.ID,
		Objective:   r.Config.Objective,
		Dimension:   r.Config.Optimizer.Dimension,
		BestFitness: r.BestFitness,
		Generations: r.Generations,
		Status:      r.Status,
		Timestamp:   r.Timestamp,
	}
}

// Validate checks if the report has valid data.
// Returns an error if any required field is missing or invalid.
func (r *RunReport) Validate() error {
	if r.ID == "" {
		return &ValidationError{Field: "ID", Reason: "cannot be empty"}
	}
	if r.Config.Objective == "" {
		return &ValidationError{Field: "Config.Objective", Reason: "cannot be empty"}
	}
	if err := r.Config.Optimizer.Validate(); err != nil {
		return &ValidationError{Field: "Config.Optimizer", Reason: err.Error()}
	}
	if len(r.Best) == 0 {
		return &ValidationError{Field: "Best", Reason: "cannot be empty"}
	}
	if len(r.Best) != r.Config.Optimizer.Dimension {
		return &ValidationError{Field: "Best", Reason: "length must match the configured dimension"}
	}
	// encoding/json cannot represent NaN or infinities.
	if math.IsNaN(r.BestFitness) || math.IsInf(r.BestFitness, 0) {
		return &ValidationError{Field: "BestFitness", Reason: "must be finite"}
	}
	if r.Generations < 0 {
		return &ValidationError{Field: "Generations", Reason: "cannot be negative"}
	}
	if r.Evaluations < 0 {
		return &ValidationError{Field: "Evaluations", Reason: "cannot be negative"}
	}
	switch r.Status {
	case StatusCompleted, StatusCancelled, StatusFailed:
	default:
		return &ValidationError{Field: "Status", Reason: "unknown value " + r.Status}
	}
	if r.Timestamp.IsZero() {
		return &ValidationError{Field: "Timestamp", Reason: "cannot be zero"}
	}
	return nil
}

// ValidationError represents a report validation error.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return "validation error: " + e.Field + " " + e.Reason
}
