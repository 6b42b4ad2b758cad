package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/kwang/interview-server/internal/recordings"
)

const defaultInboxSize = 8

// Session is the in-memory state of one live interview. All fields behind
// mu are owned by the session; readers get copies.
type Session struct {
	ID            string
	ConnectionKey string
	CreatedAt     time.Time

	inbox chan string
	done  chan struct{}

	mu        sync.Mutex
	state     State
	history   []Turn
	topic     int
	used      map[string]struct{}
	responses int
	media     []recordings.Record
}

func newSession(id, connectionKey string, createdAt time.Time, inboxSize int) *Session {
	if inboxSize <= 0 {
		inboxSize = defaultInboxSize
	}
	return &Session{
		ID:            id,
		ConnectionKey: connectionKey,
		CreatedAt:     createdAt,
		inbox:         make(chan string, inboxSize),
		done:          make(chan struct{}),
		state:         StateAwaitingConnect,
		used:          make(map[string]struct{}),
	}
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Transition moves the session to the next lifecycle state. Reaching
// FINISHED closes Done.
func (s *Session) Transition(to State) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !CanTransition(s.state, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, s.state, to)
	}
	s.state = to
	if to == StateFinished {
		close(s.done)
	}
	return nil
}

// Finished reports whether the session reached its terminal state.
func (s *Session) Finished() bool {
	return s.State() == StateFinished
}

// AppendTurn adds a turn to the history. The first turn must be the
// interviewer's and roles must alternate.
func (s *Session) AppendTurn(role Role, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	expected := RoleInterviewer
	if n := len(s.history); n > 0 && s.history[n-1].Role == RoleInterviewer {
		expected = RoleCandidate
	}
	if role != expected {
		return fmt.Errorf("%w: expected %s, got %s", ErrTurnOutOfOrder, expected, role)
	}

	s.history = append(s.history, Turn{Role: role, Text: text})
	return nil
}

func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Turn(nil), s.history...)
}

// Topic returns the index of the scripted topic in play.
func (s *Session) Topic() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.topic
}

// Used returns a copy of the utterances already spoken.
func (s *Session) Used() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make(map[string]struct{}, len(s.used))
	for k := range s.used {
		out[k] = struct{}{}
	}
	return out
}

// Advance records the topic now in play and marks utterance as spoken.
func (s *Session) Advance(topic int, utterance string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.topic = topic
	if utterance != "" {
		s.used[utterance] = struct{}{}
	}
}

// IncrementResponses counts one candidate turn and returns the new total.
func (s *Session) IncrementResponses() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses++
	return s.responses
}

func (s *Session) ResponseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.responses
}

// AppendMedia indexes a persisted record. Timestamps must increase and
// paths must be unique.
func (s *Session) AppendMedia(rec recordings.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.media {
		if existing.Path == rec.Path {
			return fmt.Errorf("%w: %s", ErrDuplicateMedia, rec.Path)
		}
	}
	if n := len(s.media); n > 0 && !rec.Timestamp.After(s.media[n-1].Timestamp) {
		return fmt.Errorf("%w: %s not after %s", ErrMediaOutOfOrder,
			rec.Timestamp.Format(time.RFC3339Nano), s.media[n-1].Timestamp.Format(time.RFC3339Nano))
	}

	s.media = append(s.media, rec)
	return nil
}

func (s *Session) Media() []recordings.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]recordings.Record(nil), s.media...)
}

// Notify queues a candidate transcript for the orchestrator. It never
// blocks: false means the session is finished or the inbox is full.
func (s *Session) Notify(text string) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.inbox <- text:
		return true
	default:
		return false
	}
}

// Inbox delivers transcripts queued by Notify.
func (s *Session) Inbox() <-chan string {
	return s.inbox
}

// Done is closed when the session reaches FINISHED.
func (s *Session) Done() <-chan struct{} {
	return s.done
}
