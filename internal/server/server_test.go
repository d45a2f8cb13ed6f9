package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/cwbudde/flwopt/internal/store"
)

func TestServer_CreateJob(t *testing.T) {
	s := NewServer(":8080", nil)
	defer s.Shutdown(context.Background())

	body := []byte(`{"objective": "sphere", "seed": 42, "optimizer": {"nGens": 10}}`)
	req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", bytes.NewReader(body))
	w := httptest.NewRecorder()

	s.handleCreateJob(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var job Job
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if job.ID == "" {
		t.Error("Job ID should not be empty")
	}
	if job.State != StatePending {
		t.Errorf("Expected pending state in the creation response, got %s", job.State)
	}

	// Omitted fields keep their defaults
	if job.Config.Optimizer.NGens != 10 {
		t.Errorf("Expected nGens 10, got %d", job.Config.Optimizer.NGens)
	}
	if job.Config.Optimizer.PoolSize != defaultJobConfig().Optimizer.PoolSize {
		t.Errorf("Expected default pool size, got %d", job.Config.Optimizer.PoolSize)
	}
}

func TestServer_CreateJob_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{"objective": `},
		{"unknown objective", `{"objective": "nope"}`},
		{"zero leaders", `{"optimizer": {"nLeaders": 0}}`},
		{"zero dimension", `{"optimizer": {"dimension": 0}}`},
		{"inverted range", `{"optimizer": {"a": 5, "b": -5}}`},
		{"oversized pool", `{"optimizer": {"poolSize": 2000000000}}`},
		{"oversized dimension", `{"optimizer": {"dimension": 100000}}`},
		{"oversized population", `{"optimizer": {"poolSize": 10000, "dimension": 1000}}`},
		{"too many step scales", `{"optimizer": {"stepScales": 100000}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewServer(":8080", nil)

			req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs", strings.NewReader(tt.body))
			w := httptest.NewRecorder()

			s.handleCreateJob(w, req)

			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
			if len(s.jobManager.ListJobs()) != 0 {
				t.Error("No job should be created for an invalid request")
			}
		})
	}
}

func TestValidateJobConfig_AcceptsLimits(t *testing.T) {
	config := defaultJobConfig()
	config.Objective = "sphere"
	config.Optimizer.PoolSize = maxPoolSize
	config.Optimizer.Dimension = maxCoordinates / maxPoolSize
	config.Optimizer.StepScales = maxStepScales

	if err := validateJobConfig(config); err != nil {
		t.Errorf("Expected config at the limits to be accepted, got %v", err)
	}
}

func TestServer_ListJobs(t *testing.T) {
	s := NewServer(":8080", nil)

	// Create two jobs
	s.jobManager.CreateJob(testJobConfig(10))
	s.jobManager.CreateJob(testJobConfig(10))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()

	s.handleListJobs(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var jobs []Job
	if err := json.NewDecoder(w.Body).Decode(&jobs); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if len(jobs) != 2 {
		t.Errorf("Expected 2 jobs, got %d", len(jobs))
	}
}

func TestServer_GetJobStatus(t *testing.T) {
	s := NewServer(":8080", nil)

	job := s.jobManager.CreateJob(testJobConfig(10))

	req := httptest.NewRequest(http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/status", job.ID), nil)
	w := httptest.NewRecorder()

	s.handleJobsWithID(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	var status map[string]interface{}
	if err := json.NewDecoder(w.Body).Decode(&status); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if status["id"] != job.ID {
		t.Error("Wrong job ID in response")
	}
	if status["state"] != string(StatePending) {
		t.Errorf("Expected pending state, got %v", status["state"])
	}
	for _, key := range []string{"bestFitness", "generations", "evaluations", "elapsed", "eps"} {
		if _, ok := status[key]; !ok {
			t.Errorf("Status response is missing %q", key)
		}
	}
}

func TestServer_GetJobStatus_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/status", nil)
	w := httptest.NewRecorder()

	s.handleJobsWithID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_UnknownSubpath(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(testJobConfig(10))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/best.png", nil)
	w := httptest.NewRecorder()

	s.handleJobsWithID(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestServer_CancelJob(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(testJobConfig(10))

	cancel := func(id string) int {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/jobs/"+id+"/cancel", nil)
		w := httptest.NewRecorder()
		s.handleJobsWithID(w, req)
		return w.Code
	}

	if code := cancel(job.ID); code != http.StatusAccepted {
		t.Errorf("Expected status 202, got %d", code)
	}
	if code := cancel(job.ID); code != http.StatusConflict {
		t.Errorf("Expected status 409 for a finished job, got %d", code)
	}
	if code := cancel("nonexistent"); code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/cancel", nil)
	w := httptest.NewRecorder()
	s.handleJobsWithID(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("Expected status 405 for GET, got %d", w.Code)
	}
}

func TestServer_DeleteJob(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(testJobConfig(10))

	del := func() int {
		req := httptest.NewRequest(http.MethodDelete, "/api/v1/jobs/"+job.ID, nil)
		w := httptest.NewRecorder()
		s.handleJobsWithID(w, req)
		return w.Code
	}

	if code := del(); code != http.StatusConflict {
		t.Errorf("Expected 409 for a pending job, got %d", code)
	}
	s.jobManager.CancelJob(job.ID)
	if code := del(); code != http.StatusNoContent {
		t.Errorf("Expected 204, got %d", code)
	}
	if code := del(); code != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", code)
	}
}

func TestServer_Objectives(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/objectives", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	var names []string
	if err := json.NewDecoder(w.Body).Decode(&names); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if !containsString(strings.Join(names, ","), "rastrigin") {
		t.Errorf("Expected rastrigin among %v", names)
	}
}

func TestServer_CORSPreflight(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/jobs", nil)
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("Missing CORS header")
	}
}

// waitForState polls the status endpoint until the job reaches a terminal
// state.
func waitForState(t *testing.T, baseURL, jobID string) map[string]interface{} {
	t.Helper()

	maxAttempts := 100
	for i := 0; i < maxAttempts; i++ {
		resp, err := http.Get(baseURL + "/api/v1/jobs/" + jobID + "/status")
		if err != nil {
			t.Fatalf("Failed to get status: %v", err)
		}

		var status map[string]interface{}
		json.NewDecoder(resp.Body).Decode(&status)
		resp.Body.Close()

		if state, _ := status["state"].(string); JobState(state).Terminal() {
			return status
		}

		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("Job did not finish in time")
	return nil
}

func TestServer_Integration(t *testing.T) {
	// Skip in short mode
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	reportStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	s := NewServer("localhost:0", reportStore)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()
	defer s.Shutdown(context.Background())

	// Create job
	body, _ := json.Marshal(testJobConfig(30))
	resp, err := http.Post(srv.URL+"/api/v1/jobs", "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("Failed to create job: %v", err)
	}
	defer resp.Body.Close()

	var job Job
	json.NewDecoder(resp.Body).Decode(&job)

	status := waitForState(t, srv.URL, job.ID)
	if status["state"] != string(StateCompleted) {
		t.Fatalf("Job ended as %v: %v", status["state"], status["error"])
	}
	if status["generations"].(float64) != 30 {
		t.Errorf("Expected 30 generations, got %v", status["generations"])
	}

	// The report is written by the worker after the state change; poll briefly
	var reportResp *http.Response
	for i := 0; i < 50; i++ {
		reportResp, err = http.Get(srv.URL + "/api/v1/jobs/" + job.ID + "/report")
		if err != nil {
			t.Fatalf("Failed to get report: %v", err)
		}
		if reportResp.StatusCode == http.StatusOK {
			break
		}
		reportResp.Body.Close()
		time.Sleep(20 * time.Millisecond)
	}
	defer reportResp.Body.Close()

	if reportResp.StatusCode != http.StatusOK {
		t.Fatalf("Expected 200 for report, got %d", reportResp.StatusCode)
	}

	var report store.RunReport
	if err := json.NewDecoder(reportResp.Body).Decode(&report); err != nil {
		t.Fatalf("Failed to decode report: %v", err)
	}
	if report.ID != job.ID || report.Status != store.StatusCompleted {
		t.Errorf("Unexpected report: id=%s status=%s", report.ID, report.Status)
	}

	// Listing and deleting reports
	listResp, err := http.Get(srv.URL + "/api/v1/reports")
	if err != nil {
		t.Fatal(err)
	}
	var infos []store.RunReportInfo
	json.NewDecoder(listResp.Body).Decode(&infos)
	listResp.Body.Close()
	if len(infos) != 1 || infos[0].ID != job.ID {
		t.Errorf("Expected one listed report for %s, got %+v", job.ID, infos)
	}

	req, _ := http.NewRequest(http.MethodDelete, srv.URL+"/api/v1/reports/"+job.ID, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	delResp.Body.Close()
	if delResp.StatusCode != http.StatusNoContent {
		t.Errorf("Expected 204 on delete, got %d", delResp.StatusCode)
	}

	missing, err := http.Get(srv.URL + "/api/v1/reports/" + job.ID)
	if err != nil {
		t.Fatal(err)
	}
	missing.Body.Close()
	if missing.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 after delete, got %d", missing.StatusCode)
	}
}

func TestServer_ReportsWithoutStore(t *testing.T) {
	s := NewServer(":8080", nil)

	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports", nil))
	if w.Code != http.StatusOK || strings.TrimSpace(w.Body.String()) != "[]" {
		t.Errorf("Expected empty list, got %d %q", w.Code, w.Body.String())
	}

	w = httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/reports/abc", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestServer_ShutdownCancelsJobs(t *testing.T) {
	reportStore, err := store.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	s := NewServer(":8080", reportStore)
	job := s.jobManager.CreateJob(testJobConfig(1000000))
	s.startJob(job.ID)

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	updated, _ := s.jobManager.GetJob(job.ID)
	if updated.State != StateCancelled {
		t.Errorf("Expected cancelled after shutdown, got %s", updated.State)
	}

	// Shutdown waits for the worker, so the report is already there
	report, err := reportStore.LoadReport(job.ID)
	if err != nil {
		t.Fatalf("Expected a saved report: %v", err)
	}
	if report.Status != store.StatusCancelled {
		t.Errorf("Expected cancelled report, got %s", report.Status)
	}
}

func TestServer_JobStream_SSE(t *testing.T) {
	// Skip in short mode
	if testing.Short() {
		t.Skip("Skipping SSE test in short mode")
	}

	s := NewServer(":8080", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	job := s.jobManager.CreateJob(testJobConfig(1000000))

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/v1/jobs/"+job.ID+"/stream", nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("Failed to open stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.Header.Get("Content-Type") != "text/event-stream" {
		t.Error("Expected text/event-stream content type")
	}

	// Start the worker only now so the stream sees it running
	go runJob(ctx, s.jobManager, nil, job.ID)

	// The initial event plus at least one ticker event
	buf := make([]byte, 4096)
	var body strings.Builder
	for strings.Count(body.String(), "data: ") < 2 {
		n, err := resp.Body.Read(buf)
		body.Write(buf[:n])
		if err != nil {
			if err == io.EOF {
				break
			}
			t.Fatalf("Stream read failed: %v", err)
		}
	}

	events := strings.Split(strings.TrimSpace(body.String()), "\n\n")
	name, first := parseSSEEvent(t, events[0])
	if name != "progress" {
		t.Errorf("Expected progress event, got %q", name)
	}
	if first.JobID != job.ID {
		t.Errorf("Expected jobId %s, got %s", job.ID, first.JobID)
	}
}

func TestServer_JobStream_FinishedJob(t *testing.T) {
	s := NewServer(":8080", nil)
	job := s.jobManager.CreateJob(testJobConfig(5))
	if err := runJob(context.Background(), s.jobManager, nil, job.ID); err != nil {
		t.Fatalf("runJob failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/"+job.ID+"/stream", nil)
	w := httptest.NewRecorder()

	// Returns without waiting for more events
	s.handleJobStream(w, req, job.ID)

	events := strings.Split(strings.TrimSpace(w.Body.String()), "\n\n")
	if len(events) != 1 {
		t.Fatalf("Expected a single event, got %d: %q", len(events), w.Body.String())
	}
	if !strings.HasPrefix(events[0], "id: 5\n") {
		t.Errorf("Expected event id 5, got %q", events[0])
	}
	name, ev := parseSSEEvent(t, events[0])
	if name != "done" {
		t.Errorf("Expected done event, got %q", name)
	}
	if ev.State != StateCompleted {
		t.Errorf("Expected state completed, got %s", ev.State)
	}
}

// parseSSEEvent returns the event name and decoded data of one SSE block.
func parseSSEEvent(t *testing.T, block string) (string, ProgressEvent) {
	t.Helper()
	var name string
	var ev ProgressEvent
	for _, line := range strings.Split(block, "\n") {
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("Failed to parse event data %q: %v", line, err)
			}
		}
	}
	return name, ev
}

func TestServer_JobStream_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/jobs/nonexistent/stream", nil)
	w := httptest.NewRecorder()

	s.handleJobStream(w, req, "nonexistent")

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestEventBroadcaster(t *testing.T) {
	eb := NewEventBroadcaster()

	// Subscribe to events
	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	// Broadcast an event
	event := ProgressEvent{
		JobID:       "job1",
		State:       StateRunning,
		Generation:  10,
		BestFitness: 100.5,
		EPS:         1500.0,
		Timestamp:   time.Now(),
	}
	eb.Broadcast(event)

	// Receive event
	select {
	case received := <-ch:
		if received.JobID != "job1" {
			t.Errorf("Expected jobID job1, got %s", received.JobID)
		}
		if received.Generation != 10 {
			t.Errorf("Expected generation 10, got %d", received.Generation)
		}
	case <-time.After(1 * time.Second):
		t.Error("Timeout waiting for event")
	}
}

func TestEventBroadcaster_ReplaysLastEvent(t *testing.T) {
	eb := NewEventBroadcaster()

	eb.Broadcast(ProgressEvent{JobID: "job1", Generation: 7})

	ch := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", ch)

	select {
	case received := <-ch:
		if received.Generation != 7 {
			t.Errorf("Expected replay of generation 7, got %d", received.Generation)
		}
	case <-time.After(1 * time.Second):
		t.Error("Late subscriber should receive the last event")
	}

	eb.CleanupJob("job1")
	late := eb.Subscribe("job1")
	defer eb.Unsubscribe("job1", late)
	select {
	case ev := <-late:
		t.Errorf("No event expected after cleanup, got %+v", ev)
	default:
	}
}

func containsString(haystack, needle string) bool {
	return bytes.Contains([]byte(haystack), []byte(needle))
}

func TestServer_ReportRejectsDotDotID(t *testing.T) {
	dataDir := t.TempDir()
	reportStore, err := store.NewFSStore(dataDir)
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	s := NewServer(":8080", reportStore)

	for _, method := range []string{http.MethodDelete, http.MethodGet} {
		req := httptest.NewRequest(method, "/api/v1/reports/%2e%2e", nil)
		w := httptest.NewRecorder()

		s.handleReportWithID(w, req)

		if w.Code != http.StatusBadRequest {
			t.Errorf("%s: expected status 400, got %d", method, w.Code)
		}
	}

	if _, err := os.Stat(dataDir); err != nil {
		t.Fatalf("Data directory must survive: %v", err)
	}
}
