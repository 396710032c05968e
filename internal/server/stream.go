package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/cwbudde/adaptivexp/internal/store"
)

// EventType names an experiment event on the stream.
type EventType string

const (
	EventSnapshot  EventType = "snapshot"
	EventProposed  EventType = "proposed"
	EventCompleted EventType = "completed"
)

// TrialEvent represents an update to an experiment
type TrialEvent struct {
	ExperimentID string         `json:"experiment_id"`
	Type         EventType      `json:"type"`
	Trial        *store.Trial   `json:"trial,omitempty"`
	Summary      *store.Summary `json:"summary,omitempty"`
	Timestamp    time.Time      `json:"timestamp"`
}

// EventBroadcaster manages SSE connections per experiment
type EventBroadcaster struct {
	mu      sync.Mutex
	clients map[string]map[chan TrialEvent]bool // experimentID -> set of client channels
	closed  bool
}

// NewEventBroadcaster creates a new event broadcaster
func NewEventBroadcaster() *EventBroadcaster {
	return &EventBroadcaster{
		clients: make(map[string]map[chan TrialEvent]bool),
	}
}

// Subscribe adds a client to receive events for an experiment. The returned
// channel is closed once the broadcaster shuts down.
func (eb *EventBroadcaster) Subscribe(experimentID string) chan TrialEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	ch := make(chan TrialEvent, 16) // Buffered to prevent blocking
	if eb.closed {
		close(ch)
		return ch
	}

	if eb.clients[experimentID] == nil {
		eb.clients[experimentID] = make(map[chan TrialEvent]bool)
	}
	eb.clients[experimentID][ch] = true

	slog.Debug("SSE client subscribed", "experiment_id", experimentID, "total_clients", len(eb.clients[experimentID]))
	return ch
}

// Unsubscribe removes a client from receiving events
func (eb *EventBroadcaster) Unsubscribe(experimentID string, ch chan TrialEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	clients, ok := eb.clients[experimentID]
	if !ok || !clients[ch] {
		// Already closed by CleanupExperiment or Close
		return
	}
	delete(clients, ch)
	close(ch)
	if len(clients) == 0 {
		delete(eb.clients, experimentID)
	}

	slog.Debug("SSE client unsubscribed", "experiment_id", experimentID)
}

// Broadcast sends an event to all subscribed clients of its experiment
func (eb *EventBroadcaster) Broadcast(event TrialEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	clients := eb.clients[event.ExperimentID]
	if len(clients) == 0 {
		return
	}

	slog.Debug("Broadcasting event", "experiment_id", event.ExperimentID, "type", event.Type, "clients", len(clients))

	for ch := range clients {
		select {
		case ch <- event:
		default:
			// Slow client, drop the event rather than block the API
			slog.Warn("SSE channel full, skipping event", "experiment_id", event.ExperimentID)
		}
	}
}

// CleanupExperiment disconnects all clients of an experiment
func (eb *EventBroadcaster) CleanupExperiment(experimentID string) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for ch := range eb.clients[experimentID] {
		close(ch)
	}
	delete(eb.clients, experimentID)
	slog.Debug("Cleaned up SSE resources", "experiment_id", experimentID)
}

// Close disconnects every client and rejects new subscriptions.
func (eb *EventBroadcaster) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	for id, clients := range eb.clients {
		for ch := range clients {
			close(ch)
		}
		delete(eb.clients, id)
	}
	eb.closed = true
}

// handleEvents handles GET /api/experiments/{id}/events
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	exp, err := s.store.Get(id)
	if err != nil {
		s.fail(w, "events", err)
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

	eventChan := s.broadcaster.Subscribe(id)
	defer s.broadcaster.Unsubscribe(id, eventChan)

	summary := exp.Summary()
	if err := writeSSEEvent(w, TrialEvent{ExperimentID: id, Type: EventSnapshot, Summary: &summary, Timestamp: time.Now()}); err != nil {
		slog.Error("Failed to write initial SSE event", "error", err)
		return
	}
	flusher.Flush()

	pingTicker := time.NewTicker(30 * time.Second)
	defer pingTicker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			slog.Debug("SSE client disconnected", "experiment_id", id)
			return

		case event, ok := <-eventChan:
			if !ok {
				return
			}
			if err := writeSSEEvent(w, event); err != nil {
				slog.Error("Failed to write SSE event", "error", err)
				return
			}
			flusher.Flush()

		case <-pingTicker.C:
			fmt.Fprintf(w, ": ping\n\n")
			flusher.Flush()
		}
	}
}

// writeSSEEvent writes an event in SSE format
func writeSSEEvent(w http.ResponseWriter, event TrialEvent) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event.Type, data)
	return err
}
