package interview

import (
	"context"
	"time"

	"github.com/kwang/interview-server/internal/recordings"
	"github.com/kwang/interview-server/internal/storage"
)

const (
	MessageGreeting = "greeting"
	MessageFollowUp = "follow_up"
)

// Message is one server-to-client frame on the conversation channel.
type Message struct {
	Type      string `json:"type"`
	Message   string `json:"message"`
	SessionID string `json:"session_id"`
}

// Conn is the live conversation channel. ReadTranscript blocks until the
// client sends a transcript or the channel fails.
type Conn interface {
	ReadTranscript() (string, error)
	WriteMessage(msg Message) error
	Close() error
}

type Catalog interface {
	CreateSession(id, connectionKey string, startedAt time.Time) error
	CloseSession(id string, endedAt time.Time) error
	FinishSession(id string, endedAt time.Time, combinedAudio, combinedVideo string) error
	SessionStatus(id string) (string, error)
	AppendTurn(sessionID string, turn storage.Turn) error
	GetTurns(sessionID string) ([]storage.Turn, error)
	UpdateSummary(sessionID, summary, status string) error
}

type TranscriptLog interface {
	Append(sessionID string, turn storage.Turn) error
}

type Combiner interface {
	Combine(ctx context.Context, sessionID string) (recordings.CombineResult, error)
}

type Summarizer interface {
	Summarize(ctx context.Context, sessionID, transcript string) (string, error)
}

type EventBroadcaster interface {
	BroadcastSessionStarted(sessionID string)
	BroadcastTurn(sessionID string, turn storage.Turn)
	BroadcastSessionClosed(sessionID string, duration time.Duration)
	BroadcastSessionFinished(sessionID string, result recordings.CombineResult)
	BroadcastSummaryReady(sessionID, summary, status string)
}
