// Package server runs optimization jobs behind an HTTP API and streams their
// progress to clients.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/cwbudde/flwopt/internal/bench"
	"github.com/cwbudde/flwopt/internal/flw"
	"github.com/cwbudde/flwopt/internal/store"
)

// Server represents the HTTP server
type Server struct {
	jobManager  *JobManager
	reportStore store.Store
	addr        string
	server      *http.Server

	// baseCtx is the parent of every job context; Shutdown cancels it.
	baseCtx    context.Context
	cancelJobs context.CancelFunc
	workers    sync.WaitGroup
}

// NewServer creates a new HTTP server. reportStore may be nil, in which case
// finished jobs are only kept in memory.
func NewServer(addr string, reportStore store.Store) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		jobManager:  NewJobManager(),
		reportStore: reportStore,
		addr:        addr,
		baseCtx:     ctx,
		cancelJobs:  cancel,
	}
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	return s
}

// Handler returns the routed and wrapped HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Register API routes
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobsWithID)
	mux.HandleFunc("/api/v1/reports", s.handleReports)
	mux.HandleFunc("/api/v1/reports/", s.handleReportWithID)
	mux.HandleFunc("/api/v1/objectives", s.handleObjectives)
	mux.Handle("/metrics", s.jobManager.metrics.Handler())

	// Wrap with middleware
	return s.loggingMiddleware(s.corsMiddleware(mux))
}

// Start starts the HTTP server
func (s *Server) Start() error {
	slog.Info("Starting HTTP server", "addr", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown stops accepting requests, cancels running jobs and waits for their
// workers to record the outcome.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("Shutting down HTTP server")

	err := s.server.Shutdown(ctx)

	s.cancelJobs()
	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		return fmt.Errorf("failed to stop jobs: %w", ctx.Err())
	}
	return err
}

// startJob runs the job's worker in the background.
func (s *Server) startJob(jobID string) {
	s.workers.Add(1)
	go func() {
		defer s.workers.Done()
		if err := runJob(s.baseCtx, s.jobManager, s.reportStore, jobID); err != nil {
			slog.Debug("Job worker returned", "job_id", jobID, "error", err)
		}
	}()
}

// handleJobs handles /api/v1/jobs
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateJob(w, r)
	case http.MethodGet:
		s.handleListJobs(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleJobsWithID handles /api/v1/jobs/:id/*
func (s *Server) handleJobsWithID(w http.ResponseWriter, r *http.Request) {
	// Parse job ID from path
	path := strings.TrimPrefix(r.URL.Path, "/api/v1/jobs/")
	parts := strings.Split(path, "/")
	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "Job ID required", http.StatusBadRequest)
		return
	}

	jobID := parts[0]
	sub := ""
	if len(parts) > 1 {
		sub = parts[1]
	}

	// Route based on subpath
	switch sub {
	case "":
		if r.Method == http.MethodDelete {
			s.handleDeleteJob(w, r, jobID)
			return
		}
		s.handleGetJobStatus(w, r, jobID)
	case "status":
		s.handleGetJobStatus(w, r, jobID)
	case "cancel":
		s.handleCancelJob(w, r, jobID)
	case "stream":
		s.handleJobStream(w, r, jobID)
	case "ws":
		s.handleJobWebSocket(w, r, jobID)
	case "report":
		s.handleGetReport(w, r, jobID)
	default:
		http.Error(w, "Not found", http.StatusNotFound)
	}
}

// defaultJobConfig is what a job request starts from; fields present in the
// request body override it.
func defaultJobConfig() JobConfig {
	return JobConfig{
		Objective: "rastrigin",
		Seed:      1,
		Optimizer: flw.DefaultConfig(),
	}
}

// validateJobConfig rejects configurations the worker could not run.
// Limits on submitted jobs. A job holds PoolSize*Dimension coordinates.
const (
	maxPoolSize    = 10000
	maxDimension   = 1000
	maxCoordinates = 1000000
	maxStepScales  = 32
)

func validateJobConfig(config JobConfig) error {
	if err := config.Optimizer.Validate(); err != nil {
		return err
	}
	opt := config.Optimizer
	switch {
	case opt.PoolSize > maxPoolSize:
		return fmt.Errorf("pool size %d exceeds the limit of %d", opt.PoolSize, maxPoolSize)
	case opt.Dimension > maxDimension:
		return fmt.Errorf("dimension %d exceeds the limit of %d", opt.Dimension, maxDimension)
	case opt.PoolSize*opt.Dimension > maxCoordinates:
		return fmt.Errorf("pool size times dimension exceeds the limit of %d", maxCoordinates)
	case opt.StepScales > maxStepScales:
		return fmt.Errorf("step scales %d exceeds the limit of %d", opt.StepScales, maxStepScales)
	}
	if _, err := bench.Lookup(config.Objective, config.Optimizer.Dimension); err != nil {
		return err
	}
	return nil
}

// handleCreateJob handles POST /api/v1/jobs
func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	config := defaultJobConfig()
	if err := json.NewDecoder(r.Body).Decode(&config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid JSON: %v", err), http.StatusBadRequest)
		return
	}

	// Validate config
	if err := validateJobConfig(config); err != nil {
		http.Error(w, fmt.Sprintf("Invalid config: %v", err), http.StatusBadRequest)
		return
	}

	// Create job
	job := s.jobManager.CreateJob(config)

	// Start worker in background
	s.startJob(job.ID)

	writeJSON(w, http.StatusCreated, job)
}

// handleListJobs handles GET /api/v1/jobs
func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.jobManager.ListJobs())
}

// handleGetJobStatus handles GET /api/v1/jobs/:id/status
func (s *Server) handleGetJobStatus(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	// Create response
	response := map[string]interface{}{
		"id":          job.ID,
		"state":       job.State,
		"config":      job.Config,
		"best":        job.Best,
		"bestFitness": job.BestFitness,
		"generations": job.Generations,
		"evaluations": job.Evaluations,
		"stale":       job.Stale,
		"elapsed":     job.Elapsed().Seconds(),
		"eps":         evalsPerSecond(job),
		"startTime":   job.StartTime,
		"endTime":     job.EndTime,
		"error":       job.Error,
	}

	writeJSON(w, http.StatusOK, response)
}

// handleCancelJob handles POST /api/v1/jobs/:id/cancel
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request, jobID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	err := s.jobManager.CancelJob(jobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	case errors.Is(err, ErrJobFinished):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	slog.Info("Job cancellation requested", "job_id", jobID)
	w.WriteHeader(http.StatusAccepted)
}

// handleDeleteJob handles DELETE /api/v1/jobs/:id
func (s *Server) handleDeleteJob(w http.ResponseWriter, r *http.Request, jobID string) {
	err := s.jobManager.DeleteJob(jobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		http.Error(w, "Job not found", http.StatusNotFound)
	case errors.Is(err, ErrJobActive):
		http.Error(w, err.Error(), http.StatusConflict)
	case err != nil:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

// handleGetReport handles GET /api/v1/jobs/:id/report and
// GET /api/v1/reports/:id
func (s *Server) handleGetReport(w http.ResponseWriter, r *http.Request, runID string) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.reportStore == nil {
		http.Error(w, "No report store configured", http.StatusNotFound)
		return
	}

	report, err := s.reportStore.LoadReport(runID)
	if errors.Is(err, store.ErrInvalidRunID) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to load report: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// handleReports handles GET /api/v1/reports
func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.reportStore == nil {
		writeJSON(w, http.StatusOK, []store.RunReportInfo{})
		return
	}

	infos, err := s.reportStore.ListReports()
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to list reports: %v", err), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, infos)
}

// handleReportWithID handles GET and DELETE /api/v1/reports/:id
func (s *Server) handleReportWithID(w http.ResponseWriter, r *http.Request) {
	runID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/reports/"), "/")
	if runID == "" || strings.Contains(runID, "/") {
		http.Error(w, "Report ID required", http.StatusBadRequest)
		return
	}

	if r.Method != http.MethodDelete {
		s.handleGetReport(w, r, runID)
		return
	}
	if s.reportStore == nil {
		http.Error(w, "No report store configured", http.StatusNotFound)
		return
	}

	err := s.reportStore.DeleteReport(runID)
	if errors.Is(err, store.ErrInvalidRunID) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Report not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, fmt.Sprintf("Failed to delete report: %v", err), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleObjectives handles GET /api/v1/objectives
func (s *Server) handleObjectives(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, bench.Names())
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// corsMiddleware adds CORS headers
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("HTTP request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
