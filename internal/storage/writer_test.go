package storage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kwang/interview-server/internal/recordings"
)

func TestTranscriptWriterAppendsToSessionDir(t *testing.T) {
	dir := t.TempDir()
	w := NewTranscriptWriter(dir)
	ts := time.Date(2026, 2, 26, 10, 30, 0, 0, time.Local)

	if err := w.Append("interview_1", Turn{Index: 0, Role: "interviewer", Text: "Introduce yourself.", Timestamp: ts}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := w.Append("interview_1", Turn{Index: 1, Role: "candidate", Text: " I write Go. ", Timestamp: ts}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "interview_1", recordings.TranscriptFilename))
	if err != nil {
		t.Fatalf("ReadFile failed: %v", err)
	}

	content := string(data)
	if strings.Count(content, "# Interview interview_1") != 1 {
		t.Fatalf("expected a single header, got: %s", content)
	}
	if !strings.Contains(content, "**Interviewer** [10:30:00]: Introduce yourself.") {
		t.Errorf("expected interviewer line, got: %s", content)
	}
	if !strings.Contains(content, "**Candidate** [10:30:00]: I write Go.") {
		t.Errorf("expected candidate line, got: %s", content)
	}
	if w.Path("interview_1") != filepath.Join(dir, "interview_1", "transcript.md") {
		t.Fatalf("unexpected path %q", w.Path("interview_1"))
	}
}

func TestTranscriptWriterRejectsBadSessionID(t *testing.T) {
	w := NewTranscriptWriter(t.TempDir())

	err := w.Append("../escape", Turn{Role: "candidate", Text: "x"})
	if !errors.Is(err, recordings.ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}
