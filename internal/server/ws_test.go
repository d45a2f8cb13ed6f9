package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func wsURL(srv *httptest.Server, jobID string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/v1/jobs/" + jobID + "/ws"
}

func TestWebSocket_StreamsUntilCompletion(t *testing.T) {
	s := NewServer(":8080", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	job := s.jobManager.CreateJob(testJobConfig(200))

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, job.ID), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	s.startJob(job.ID)
	defer s.Shutdown(t.Context())

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))

	var events []ProgressEvent
	for {
		var ev ProgressEvent
		if err := conn.ReadJSON(&ev); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				t.Fatalf("Unexpected read error: %v", err)
			}
			break
		}
		events = append(events, ev)
	}

	if len(events) == 0 {
		t.Fatal("No events received")
	}
	if events[0].JobID != job.ID {
		t.Errorf("Expected jobId %s, got %s", job.ID, events[0].JobID)
	}

	last := events[len(events)-1]
	if last.State != StateCompleted {
		t.Errorf("Last event state = %s, want completed", last.State)
	}
	if last.Generation != 200 {
		t.Errorf("Last event generation = %d, want 200", last.Generation)
	}
}

func TestWebSocket_FinishedJobClosesImmediately(t *testing.T) {
	s := NewServer(":8080", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	job := s.jobManager.CreateJob(testJobConfig(10))
	s.jobManager.CancelJob(job.ID)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, job.ID), nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var ev ProgressEvent
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("Expected the current state before close: %v", err)
	}
	if ev.State != StateCancelled {
		t.Errorf("State = %s, want cancelled", ev.State)
	}

	if err := conn.ReadJSON(&ev); !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("Expected a normal close, got %v", err)
	}
}

func TestWebSocket_NotFound(t *testing.T) {
	s := NewServer(":8080", nil)
	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, "nonexistent"), nil)
	if err == nil {
		t.Fatal("Dial should fail for an unknown job")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected 404 response, got %v", resp)
	}
}
