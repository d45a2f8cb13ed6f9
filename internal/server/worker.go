package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cwbudde/flwopt/internal/bench"
	"github.com/cwbudde/flwopt/internal/flw"
	"github.com/cwbudde/flwopt/internal/store"
)

// runJob executes an optimization job in the background.
// If reportStore is not nil a run report is saved once the job ends; an
// FSStore additionally receives a per-generation trace.
func runJob(ctx context.Context, jm *JobManager, reportStore store.Store, jobID string) error {
	// Get the job
	job, exists := jm.GetJob(jobID)
	if !exists {
		return fmt.Errorf("%w: %s", ErrJobNotFound, jobID)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	jm.setCancel(jobID, cancel)
	defer jm.clearCancel(jobID)

	// Update state to running, unless the job was cancelled while pending
	started := false
	err := jm.UpdateJob(jobID, func(j *Job) {
		if j.State == StatePending {
			j.State = StateRunning
			j.StartTime = time.Now()
			started = true
		}
	})
	if err != nil {
		return err
	}
	if !started {
		slog.Info("Job cancelled before start", "job_id", jobID)
		broadcastState(jm, jobID)
		return nil
	}
	jm.metrics.jobStarted()

	cfg := job.Config.Optimizer
	slog.Info("Starting job",
		"job_id", jobID,
		"objective", job.Config.Objective,
		"dimension", cfg.Dimension,
		"generations", cfg.NGens,
		"seed", job.Config.Seed,
	)

	fn, err := bench.Lookup(job.Config.Objective, cfg.Dimension)
	if err != nil {
		markJobFailed(jm, reportStore, jobID, nil, fmt.Errorf("failed to resolve objective: %w", err))
		return err
	}

	lastGen := time.Now()
	progress := func(r flw.Report) error {
		// Cancellation takes effect between generations.
		if err := ctx.Err(); err != nil {
			return err
		}
		now := time.Now()
		jm.metrics.generationDone(jobID, r.Stats.Evaluations, now.Sub(lastGen).Seconds(), r.Best.Fitness)
		lastGen = now

		return jm.UpdateJob(jobID, func(j *Job) {
			j.Generations = r.Generation
			j.Evaluations += r.Stats.Evaluations
			j.Best = r.Best.Position
			j.BestFitness = r.Best.Fitness
			j.Stale = r.Stats.Stale
		})
	}

	opts := []flw.Option{
		flw.WithSeed(job.Config.Seed),
		flw.WithLogger(slog.Default().With("job_id", jobID)),
		flw.WithObserver(progress),
	}

	if fs, ok := reportStore.(*store.FSStore); ok {
		tw, err := store.NewTraceWriter(fs.BaseDir(), jobID, false)
		if err != nil {
			slog.Warn("Failed to open trace, continuing without it", "job_id", jobID, "error", err)
		} else {
			defer tw.Close()
			opts = append(opts, flw.WithObserver(traceObserver(tw, jobID)))
		}
	}

	optimizer, err := flw.New(cfg, flw.ObjectiveFunc(fn.Eval), opts...)
	if err != nil {
		markJobFailed(jm, reportStore, jobID, nil, fmt.Errorf("failed to create optimizer: %w", err))
		return err
	}

	// Start progress monitoring goroutine
	progressDone := make(chan struct{})
	go monitorProgress(ctx, jm, jobID, time.Now(), progressDone)

	result, err := optimizer.Run()
	close(progressDone)

	if err != nil {
		if errors.Is(err, context.Canceled) || ctx.Err() != nil {
			markJobCancelled(jm, reportStore, jobID, optimizer)
			return ctx.Err()
		}
		markJobFailed(jm, reportStore, jobID, optimizer, err)
		return err
	}

	// Update job with results
	endTime := time.Now()
	err = jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCompleted
		j.Best = result.Best.Position
		j.BestFitness = result.Best.Fitness
		j.Generations = result.Generations
		j.Evaluations = result.Evaluations
		j.EndTime = &endTime
	})
	if err != nil {
		return err
	}
	jm.metrics.jobFinished(StateCompleted)

	final, _ := jm.GetJob(jobID)
	slog.Info("Job completed",
		"job_id", jobID,
		"elapsed", final.Elapsed(),
		"generations", result.Generations,
		"evaluations", result.Evaluations,
		"best_fitness", result.Best.Fitness,
		"evals_per_second", evalsPerSecond(final),
	)

	saveReport(reportStore, final, optimizer)
	broadcastState(jm, jobID)
	return nil
}

// traceObserver writes each generation to tw. A failing trace is logged and
// then ignored so it never aborts the run.
func traceObserver(tw *store.TraceWriter, jobID string) flw.Observer {
	failed := false
	return func(r flw.Report) error {
		if failed {
			return nil
		}
		if err := tw.Observe(r); err != nil {
			slog.Warn("Trace write failed, disabling trace", "job_id", jobID, "error", err)
			failed = true
		}
		return nil
	}
}

// monitorProgress periodically broadcasts progress events during optimization
func monitorProgress(ctx context.Context, jm *JobManager, jobID string, startTime time.Time, done chan struct{}) {
	ticker := time.NewTicker(500 * time.Millisecond) // Throttle to 2 updates per second
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !broadcastState(jm, jobID) {
				return
			}
		}
	}
}

// broadcastState sends the job's current progress to its subscribers and
// reports whether the job still exists.
func broadcastState(jm *JobManager, jobID string) bool {
	job, exists := jm.GetJob(jobID)
	if !exists {
		return false
	}
	jm.broadcaster.Broadcast(newProgressEvent(job))
	return true
}

// evalsPerSecond is the job's objective throughput so far.
func evalsPerSecond(job *Job) float64 {
	elapsed := job.Elapsed().Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(job.Evaluations) / elapsed
}

// markJobFailed marks a job as failed with an error message
func markJobFailed(jm *JobManager, reportStore store.Store, jobID string, optimizer *flw.Optimizer, err error) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateFailed
		j.Error = err.Error()
		j.EndTime = &endTime
	})
	jm.metrics.jobFinished(StateFailed)
	slog.Error("Job failed", "job_id", jobID, "error", err)

	if job, ok := jm.GetJob(jobID); ok {
		saveReport(reportStore, job, optimizer)
	}
	broadcastState(jm, jobID)
}

// markJobCancelled marks a job as cancelled
func markJobCancelled(jm *JobManager, reportStore store.Store, jobID string, optimizer *flw.Optimizer) {
	endTime := time.Now()
	jm.UpdateJob(jobID, func(j *Job) {
		j.State = StateCancelled
		j.EndTime = &endTime
	})
	jm.metrics.jobFinished(StateCancelled)
	slog.Info("Job cancelled", "job_id", jobID)

	if job, ok := jm.GetJob(jobID); ok {
		saveReport(reportStore, job, optimizer)
	}
	broadcastState(jm, jobID)
}

// saveReport stores the outcome of a finished job. Jobs that never evaluated
// an agent have nothing worth reporting.
func saveReport(reportStore store.Store, job *Job, optimizer *flw.Optimizer) {
	if reportStore == nil || optimizer == nil {
		return
	}
	best, ok := optimizer.Best()
	if !ok {
		slog.Debug("No evaluated agents, skipping report", "job_id", job.ID)
		return
	}

	var status string
	switch job.State {
	case StateCompleted:
		status = store.StatusCompleted
	case StateCancelled:
		status = store.StatusCancelled
	default:
		status = store.StatusFailed
	}

	report := store.NewRunReport(job.ID, job.Config, best, optimizer.Generation(), optimizer.Evaluations(), status)
	report.Error = job.Error
	report.Elapsed = job.Elapsed()

	if err := reportStore.SaveReport(job.ID, report); err != nil {
		slog.Error("Failed to save run report", "job_id", job.ID, "error", err)
		return
	}
	slog.Info("Run report saved", "job_id", job.ID, "status", status)
}
