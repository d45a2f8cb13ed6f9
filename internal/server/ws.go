package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Clients only send control frames.
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same policy as the CORS middleware
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// handleJobWebSocket streams progress events for a job over a websocket. The
// connection is closed after the event that reports a terminal state.
func (s *Server) handleJobWebSocket(w http.ResponseWriter, r *http.Request, jobID string) {
	job, exists := s.jobManager.GetJob(jobID)
	if !exists {
		http.Error(w, "Job not found", http.StatusNotFound)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		slog.Warn("WebSocket upgrade failed", "jobID", jobID, "error", err)
		return
	}
	defer conn.Close()

	eventChan := s.jobManager.broadcaster.Subscribe(jobID)
	defer s.jobManager.broadcaster.Unsubscribe(jobID, eventChan)

	closed := make(chan struct{})
	go readControl(conn, jobID, closed)

	if err := writeWSEvent(conn, newProgressEvent(job)); err != nil {
		slog.Debug("Failed to write initial WebSocket event", "jobID", jobID, "error", err)
		return
	}
	if job.State.Terminal() {
		closeWS(conn)
		return
	}

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-closed:
			slog.Debug("WebSocket client disconnected", "jobID", jobID)
			return

		case event, ok := <-eventChan:
			if !ok {
				closeWS(conn)
				return
			}
			if err := writeWSEvent(conn, event); err != nil {
				slog.Debug("Failed to write WebSocket event", "jobID", jobID, "error", err)
				return
			}
			if event.State.Terminal() {
				closeWS(conn)
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readControl drains the connection so pongs and close frames are handled,
// and closes done once the peer goes away.
func readControl(conn *websocket.Conn, jobID string, done chan struct{}) {
	defer close(done)

	conn.SetReadLimit(maxMessageSize)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("WebSocket read error", "jobID", jobID, "error", err)
			}
			return
		}
	}
}

// writeWSEvent writes an event as a single JSON text message
func writeWSEvent(conn *websocket.Conn, event ProgressEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	w, err := conn.NextWriter(websocket.TextMessage)
	if err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	return w.Close()
}

func closeWS(conn *websocket.Conn) {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
}
