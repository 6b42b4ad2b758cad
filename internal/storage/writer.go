package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/kwang/interview-server/internal/recordings"
)

// TranscriptWriter appends turns to <root>/<session id>/transcript.md.
type TranscriptWriter struct {
	root string
	mu   sync.Mutex
}

func NewTranscriptWriter(root string) *TranscriptWriter {
	return &TranscriptWriter{root: root}
}

func (w *TranscriptWriter) Append(sessionID string, turn Turn) error {
	if !recordings.ValidSessionID(sessionID) {
		return fmt.Errorf("%w: %q", recordings.ErrInvalidSessionID, sessionID)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	dir := filepath.Join(w.root, sessionID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("mkdir %s: %w", dir, err)
	}

	path := filepath.Join(dir, recordings.TranscriptFilename)
	_, statErr := os.Stat(path)
	fresh := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if fresh {
		if _, err := fmt.Fprintf(f, "# Interview %s\n\n", sessionID); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if _, err := fmt.Fprintln(f, FormatTurn(turn)); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}

	return nil
}

// Path returns the transcript location for a session.
func (w *TranscriptWriter) Path(sessionID string) string {
	return filepath.Join(w.root, sessionID, recordings.TranscriptFilename)
}

// FormatTurn renders a turn as one markdown line.
func FormatTurn(turn Turn) string {
	role := turn.Role
	if role != "" {
		role = strings.ToUpper(role[:1]) + role[1:]
	}
	return fmt.Sprintf("**%s** [%s]: %s", role, turn.Timestamp.Local().Format("15:04:05"), strings.TrimSpace(turn.Text))
}
