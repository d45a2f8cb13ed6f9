package main

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const testStatusJSON = `{
	"id": "job-1",
	"state": "running",
	"config": {"objective": "sphere", "seed": 3, "optimizer": {"dimension": 2, "poolSize": 21, "nLeaders": 4, "nGens": 100}},
	"best": [0.1, 0.2],
	"bestFitness": 0.05,
	"generations": 40,
	"evaluations": 760,
	"stale": 2,
	"elapsed": 1.5,
	"eps": 506.7
}`

func newStatusTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/jobs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte("[" + testStatusJSON + "]"))
	})
	mux.HandleFunc("/api/v1/jobs/job-1/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(testStatusJSON))
	})
	mux.HandleFunc("/api/v1/jobs/job-1/cancel", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestGetJobStatus(t *testing.T) {
	srv := newStatusTestServer(t)

	var buf bytes.Buffer
	if err := getJobStatus(&buf, srv.URL+"/api/v1/jobs/job-1/status", "job-1"); err != nil {
		t.Fatalf("getJobStatus failed: %v", err)
	}

	out := buf.String()
	for _, want := range []string{
		"Job: job-1",
		"State: running",
		"Objective: sphere",
		"Generation: 40",
		"Evaluations: 760",
		"Best Fitness: 0.05",
		"Elapsed: 1.5s",
		"Throughput: 507 evals/sec",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("Expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestGetJobStatus_NotFound(t *testing.T) {
	srv := newStatusTestServer(t)

	var buf bytes.Buffer
	err := getJobStatus(&buf, srv.URL+"/api/v1/jobs/missing/status", "missing")
	if err == nil || !strings.Contains(err.Error(), "job not found") {
		t.Errorf("Expected job not found error, got %v", err)
	}
}

func TestListJobs(t *testing.T) {
	srv := newStatusTestServer(t)

	var buf bytes.Buffer
	if err := listJobs(&buf, srv.URL+"/api/v1/jobs"); err != nil {
		t.Fatalf("listJobs failed: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "Found 1 job(s)") {
		t.Errorf("Expected job count, got:\n%s", out)
	}
	if !strings.Contains(out, "Progress: 40/100 generations") {
		t.Errorf("Expected progress line, got:\n%s", out)
	}
}

func TestRequestCancel(t *testing.T) {
	srv := newStatusTestServer(t)

	original := serverURL
	serverURL = srv.URL
	defer func() { serverURL = original }()

	var buf bytes.Buffer
	if err := requestCancel(&buf, "job-1"); err != nil {
		t.Fatalf("requestCancel failed: %v", err)
	}
	if !strings.Contains(buf.String(), "Cancellation requested for job-1") {
		t.Errorf("Unexpected output: %q", buf.String())
	}

	if err := requestCancel(&buf, "missing"); err == nil {
		t.Error("Expected error for unknown job")
	}
}
