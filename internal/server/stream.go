package server

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// ProgressEvent is the progress snapshot pushed to stream subscribers.
type ProgressEvent struct {
	JobID       string    `json:"jobId"`
	State       JobState  `json:"state"`
	Generation  int       `json:"generation"`
	Evaluations int       `json:"evaluations"`
	BestFitness float64   `json:"bestFitness"`
	Stale       int       `json:"stale"`
	EPS         float64   `json:"eps"`
	Timestamp   time.Time `json:"timestamp"`
}

// newProgressEvent snapshots a job for subscribers.
func newProgressEvent(job *Job) ProgressEvent {
	return ProgressEvent{
		JobID:       job.ID,
		State:       job.State,
		Generation:  job.Generations,
		Evaluations: job.Evaluations,
		BestFitness: job.BestFitness,
		Stale:       job.Stale,
		EPS:         evalsPerSecond(job),
		Timestamp:   time.Now(),
	}
}

// EventBroadcaster fans progress events of each job out to its SSE and
// websocket subscribers. The latest event per job is replayed to late
// subscribers.
type EventBroadcaster struct {
	mu        sync.Mutex
	clients   map[string]map[chan ProgressEvent]bool // job ID -> subscriber channels
	lastEvent map[string]ProgressEvent
}

// NewEventBroadcaster creates an empty broadcaster.
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients:   make(map[string]map[chan ProgressEvent]bool),
		lastEvent: make(map[string]ProgressEvent),
	}
}

// Subscribe registers a subscriber for jobID. The job's latest event, if
// any, is queued on the returned channel right away.
func (eb *EventBroadcaster) Subscribe(jobID string) chan ProgressEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan ProgressEvent, 10)
	subs := eb.clients[jobID]
	if subs == nil {
		subs = make(map[chan ProgressEvent]bool)
		eb.clients[jobID] = subs
	}
	subs[ch] = true

	if last, ok := eb.lastEvent[jobID]; ok {
		ch <- last
	}

	slog.Debug("Progress subscriber added", "job_id", jobID, "subscribers", len(subs))
	return ch
}

// Unsubscribe removes ch and closes it unless CleanupJob already did.
func (eb *EventBroadcaster) Unsubscribe(jobID string, ch chan ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	subs, ok := eb.clients[jobID]
	if !ok || !subs[ch] {
		return
	}
	delete(subs, ch)
	close(ch)
	if len(subs) == 0 {
		delete(eb.clients, jobID)
	}
	slog.Debug("Progress subscriber removed", "job_id", jobID, "subscribers", len(subs))
}

// Broadcast records event as the job's latest and offers it to every
// subscriber. Subscribers with a full buffer miss the event.
func (eb *EventBroadcaster) Broadcast(event ProgressEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.lastEvent[event.JobID] = event

	for ch := range eb.clients[event.JobID] {
		select {
		case ch <- event:
		default:
			slog.Warn("Progress subscriber lagging, event dropped",
				"job_id", event.JobID,
				"generation", event.Generation,
			)
		}
	}
}

// CleanupJob closes every subscriber of jobID and forgets its latest event.
func (eb *EventBroadcaster) CleanupJob(jobID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.clients[jobID] {
		close(ch)
	}
	delete(eb.clients, jobID)
	delete(eb.lastEvent, jobID)
	slog.Debug("Progress subscribers released", "job_id", jobID)
}

// handleJobStream streams job progress as server-sent events. Every event
// carries the generation as its id and is named "progress", or "done" once
// the job reached a terminal state; the stream ends after "done".
func (s *Server) handleJobStream(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	events := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, events)

	initial := newProgressEvent(job)
	if err := writeSSEEvent(w, initial); err != nil {
		slog.Error("Failed to write initial SSE event", "job_id", jobID, "error", err)
		return
	}
	flusher.Flush()
	if initial.State.Terminal() {
		return
	}

	keepAlive := time.NewTicker(30 * time.Second)
	defer keepAlive.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "job_id", jobID)
			return

		case event, ok := <-events:
			if !ok {
				// job deleted
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "job_id", jobID, "error", err)
				return
			}
			flusher.Flush()
			if event.State.Terminal() {
				return
			}

		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// sseEventName is the SSE event type of a progress event.
func sseEventName(event ProgressEvent) string {
	if event.State.Terminal() {
		return "done"
	}
	return "progress"
}

// writeSSEEvent writes one event as id, event and data fields.
func writeSSEEvent(w io.Writer, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "id: %d\nevent: %s\ndata: %s\n\n", event.Generation, sseEventName(event), data)
	return err
}
