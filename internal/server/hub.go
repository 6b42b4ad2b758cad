package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/kwang/interview-server/internal/recordings"
	"github.com/kwang/interview-server/internal/storage"
)

// Hub fans events out to /ws/events observers. Slow observers drop events.
type Hub struct {
	mu      sync.RWMutex
	clients map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{clients: make(map[chan []byte]struct{})}
}

func (h *Hub) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	h.mu.Lock()
	h.clients[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

func (h *Hub) Unsubscribe(ch chan []byte) {
	h.mu.Lock()
	delete(h.clients, ch)
	h.mu.Unlock()
	close(ch)
}

func (h *Hub) Broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.clients {
		select {
		case ch <- msg:
		default:
		}
	}
}

func (h *Hub) BroadcastSessionStarted(sessionID string) {
	h.broadcastEvent(SessionStartedEvent{
		Event:     newEvent("session_started", time.Now().UTC()),
		SessionID: sessionID,
	})
}

func (h *Hub) BroadcastTurn(sessionID string, turn storage.Turn) {
	h.broadcastEvent(TurnEvent{
		Event:     newEvent("turn", turn.Timestamp),
		SessionID: sessionID,
		Index:     turn.Index,
		Role:      turn.Role,
		Text:      turn.Text,
	})
}

func (h *Hub) BroadcastMediaSaved(sessionID string, rec recordings.Record) {
	h.broadcastEvent(MediaSavedEvent{
		Event:     newEvent("media_saved", rec.Timestamp),
		SessionID: sessionID,
		Kind:      string(rec.Kind),
		File:      rec.Name(),
		SizeBytes: rec.SizeBytes,
	})
}

func (h *Hub) BroadcastSessionClosed(sessionID string, duration time.Duration) {
	h.broadcastEvent(SessionClosedEvent{
		Event:     newEvent("session_closed", time.Now().UTC()),
		SessionID: sessionID,
		Duration:  duration.Seconds(),
	})
}

func (h *Hub) BroadcastSessionFinished(sessionID string, result recordings.CombineResult) {
	h.broadcastEvent(finishedEvent(sessionID, result, time.Now().UTC()))
}

func (h *Hub) BroadcastSummaryReady(sessionID, summary, status string) {
	h.broadcastEvent(SummaryReadyEvent{
		Event:     newEvent("summary_ready", time.Now().UTC()),
		SessionID: sessionID,
		Summary:   summary,
		Status:    status,
	})
}

func (h *Hub) broadcastEvent(event any) {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Printf("event marshal error: %v", err)
		return
	}
	h.Broadcast(payload)
}
