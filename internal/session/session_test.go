package session

import (
	"errors"
	"testing"
	"time"

	"github.com/kwang/interview-server/internal/recordings"
)

func newTestSession() *Session {
	return newSession("interview_1", "conn-1", time.Now(), 2)
}

func TestAppendTurnEnforcesAlternation(t *testing.T) {
	s := newTestSession()

	if err := s.AppendTurn(RoleCandidate, "hi"); !errors.Is(err, ErrTurnOutOfOrder) {
		t.Fatalf("expected ErrTurnOutOfOrder for candidate first, got %v", err)
	}
	if err := s.AppendTurn(RoleInterviewer, "Introduce yourself"); err != nil {
		t.Fatalf("AppendTurn interviewer failed: %v", err)
	}
	if err := s.AppendTurn(RoleInterviewer, "again"); !errors.Is(err, ErrTurnOutOfOrder) {
		t.Fatalf("expected ErrTurnOutOfOrder for repeated interviewer, got %v", err)
	}
	if err := s.AppendTurn(RoleCandidate, "I am Ada"); err != nil {
		t.Fatalf("AppendTurn candidate failed: %v", err)
	}

	history := s.History()
	if len(history) != 2 || history[0].Role != RoleInterviewer || history[1].Role != RoleCandidate {
		t.Fatalf("unexpected history %#v", history)
	}

	history[0].Text = "mutated"
	if s.History()[0].Text != "Introduce yourself" {
		t.Fatal("History must return a copy")
	}
}

func TestTransitionFollowsLifecycle(t *testing.T) {
	s := newTestSession()

	steps := []State{
		StateGreetingSent,
		StateAwaitingCandidateTurn,
		StateGeneratingFollowUp,
		StateAwaitingCandidateTurn,
		StateGeneratingFollowUp,
		StateAwaitingCandidateTurn,
	}
	for _, step := range steps {
		if err := s.Transition(step); err != nil {
			t.Fatalf("Transition(%s) failed: %v", step, err)
		}
	}

	if err := s.Transition(StateGreetingSent); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected ErrInvalidTransition, got %v", err)
	}

	if err := s.Transition(StateFinished); err != nil {
		t.Fatalf("Transition(FINISHED) failed: %v", err)
	}
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done to be closed after finish")
	}
	if err := s.Transition(StateFinished); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("expected FINISHED to be terminal, got %v", err)
	}
}

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to State
		want     bool
	}{
		{StateAwaitingConnect, StateGreetingSent, true},
		{StateAwaitingConnect, StateAwaitingCandidateTurn, false},
		{StateAwaitingConnect, StateFinished, true},
		{StateGreetingSent, StateGeneratingFollowUp, false},
		{StateGeneratingFollowUp, StateFinished, true},
		{StateFinished, StateAwaitingCandidateTurn, false},
	}
	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Fatalf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestAppendMediaRequiresIncreasingTimestamps(t *testing.T) {
	s := newTestSession()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	first := recordings.Record{Timestamp: base, Path: "/r/a.mp3"}
	if err := s.AppendMedia(first); err != nil {
		t.Fatalf("AppendMedia failed: %v", err)
	}
	if err := s.AppendMedia(recordings.Record{Timestamp: base.Add(time.Second), Path: "/r/a.mp3"}); !errors.Is(err, ErrDuplicateMedia) {
		t.Fatalf("expected ErrDuplicateMedia, got %v", err)
	}
	if err := s.AppendMedia(recordings.Record{Timestamp: base, Path: "/r/b.mp3"}); !errors.Is(err, ErrMediaOutOfOrder) {
		t.Fatalf("expected ErrMediaOutOfOrder, got %v", err)
	}
	if err := s.AppendMedia(recordings.Record{Timestamp: base.Add(time.Microsecond), Path: "/r/b.mp3"}); err != nil {
		t.Fatalf("AppendMedia failed: %v", err)
	}

	if got := len(s.Media()); got != 2 {
		t.Fatalf("expected 2 media records, got %d", got)
	}
}

func TestNotifyNeverBlocks(t *testing.T) {
	s := newTestSession()

	if !s.Notify("one") || !s.Notify("two") {
		t.Fatal("expected inbox to accept two notifications")
	}
	if s.Notify("three") {
		t.Fatal("expected full inbox to drop notification")
	}

	if got := <-s.Inbox(); got != "one" {
		t.Fatalf("expected FIFO inbox, got %q", got)
	}

	if err := s.Transition(StateFinished); err != nil {
		t.Fatalf("Transition failed: %v", err)
	}
	if s.Notify("late") {
		t.Fatal("expected finished session to reject notifications")
	}
}

func TestAdvanceTracksTopicAndUsed(t *testing.T) {
	s := newTestSession()

	s.Advance(2, "What are your key technical skills?")
	if s.Topic() != 2 {
		t.Fatalf("expected topic 2, got %d", s.Topic())
	}

	used := s.Used()
	if _, ok := used["What are your key technical skills?"]; !ok {
		t.Fatalf("expected utterance marked used, got %v", used)
	}

	delete(used, "What are your key technical skills?")
	if len(s.Used()) != 1 {
		t.Fatal("Used must return a copy")
	}

	if s.IncrementResponses() != 1 || s.IncrementResponses() != 2 || s.ResponseCount() != 2 {
		t.Fatalf("unexpected response count %d", s.ResponseCount())
	}
}
