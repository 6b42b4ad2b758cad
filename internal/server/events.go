package server

import (
	"time"

	"github.com/kwang/interview-server/internal/recordings"
)

const EventVersion = 1

type Event struct {
	Type      string `json:"type"`
	Version   int    `json:"version"`
	Timestamp string `json:"timestamp"`
}

type SessionStartedEvent struct {
	Event
	SessionID string `json:"session_id"`
}

type TurnEvent struct {
	Event
	SessionID string `json:"session_id"`
	Index     int    `json:"index"`
	Role      string `json:"role"`
	Text      string `json:"text"`
}

type MediaSavedEvent struct {
	Event
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	File      string `json:"file"`
	SizeBytes int64  `json:"size_bytes"`
}

type SessionClosedEvent struct {
	Event
	SessionID string  `json:"session_id"`
	Duration  float64 `json:"duration"`
}

type SessionFinishedEvent struct {
	Event
	SessionID     string `json:"session_id"`
	Success       bool   `json:"success"`
	AudioCombined bool   `json:"audio_combined"`
	VideoCombined bool   `json:"video_combined"`
	Error         string `json:"error,omitempty"`
}

type SummaryReadyEvent struct {
	Event
	SessionID string `json:"session_id"`
	Summary   string `json:"summary"`
	Status    string `json:"status"`
}

type ConnectionEvent struct {
	Event
	Connected bool `json:"connected"`
}

func newEvent(eventType string, now time.Time) Event {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return Event{
		Type:      eventType,
		Version:   EventVersion,
		Timestamp: now.UTC().Format(time.RFC3339Nano),
	}
}

func finishedEvent(sessionID string, result recordings.CombineResult, now time.Time) SessionFinishedEvent {
	return SessionFinishedEvent{
		Event:         newEvent("session_finished", now),
		SessionID:     sessionID,
		Success:       result.Success,
		AudioCombined: result.Audio.Combined,
		VideoCombined: result.Video.Combined,
		Error:         result.Error,
	}
}
