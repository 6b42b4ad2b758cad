package recordings

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/kwang/interview-server/internal/audio"
)

// Entry is one file to persist into a session directory.
type Entry struct {
	Kind       Kind
	Format     audio.Format
	Data       []byte
	Transcript string
	// Metadata is merged into the sidecar next to the standard fields.
	Metadata map[string]any
}

// Archive owns the on-disk layout: one directory per session under root.
// It also hands out the per-session lock that serializes writes against
// combination.
type Archive struct {
	root          string
	combinedAudio string
	combinedVideo string

	now func() time.Time

	mu     sync.Mutex
	guards map[string]*guard
}

type guard struct {
	mu   sync.Mutex
	last time.Time
}

func NewArchive(root, combinedAudio, combinedVideo string) *Archive {
	if root == "" {
		root = "recordings"
	}
	if combinedAudio == "" {
		combinedAudio = "combined_interview.mp3"
	}
	if combinedVideo == "" {
		combinedVideo = "combined_interview.webm"
	}
	return &Archive{
		root:          root,
		combinedAudio: combinedAudio,
		combinedVideo: combinedVideo,
		now:           time.Now,
		guards:        make(map[string]*guard),
	}
}

func (a *Archive) Root() string {
	return a.root
}

// SessionDir returns the directory for a session without creating it.
func (a *Archive) SessionDir(sessionID string) (string, error) {
	if !ValidSessionID(sessionID) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	return filepath.Join(a.root, sessionID), nil
}

// Exists reports whether a session directory is present on disk.
func (a *Archive) Exists(sessionID string) bool {
	dir, err := a.SessionDir(sessionID)
	if err != nil {
		return false
	}
	info, err := os.Stat(dir)
	return err == nil && info.IsDir()
}

// Lock acquires the session's exclusive token and returns its release func.
func (a *Archive) Lock(sessionID string) func() {
	g := a.guardFor(sessionID)
	g.mu.Lock()
	return g.mu.Unlock
}

func (a *Archive) guardFor(sessionID string) *guard {
	a.mu.Lock()
	defer a.mu.Unlock()

	g, ok := a.guards[sessionID]
	if !ok {
		g = &guard{}
		a.guards[sessionID] = g
	}
	return g
}

func (a *Archive) dropGuard(sessionID string) {
	a.mu.Lock()
	delete(a.guards, sessionID)
	a.mu.Unlock()
}

// Write persists e as a new media file plus JSON sidecar. It takes the
// session lock itself, so callers must not hold it.
func (a *Archive) Write(sessionID string, e Entry) (Record, error) {
	return a.WriteIf(sessionID, e, nil)
}

// WriteIf is Write with a precondition evaluated under the session lock.
// A non-nil error from check aborts the write and is returned as is.
func (a *Archive) WriteIf(sessionID string, e Entry, check func() error) (Record, error) {
	dir, err := a.SessionDir(sessionID)
	if err != nil {
		return Record{}, err
	}
	if len(e.Data) == 0 {
		return Record{}, errors.New("write media: empty data")
	}

	g := a.guardFor(sessionID)
	g.mu.Lock()
	defer g.mu.Unlock()

	if check != nil {
		if err := check(); err != nil {
			return Record{}, err
		}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Record{}, fmt.Errorf("create session directory: %w", err)
	}

	ts := a.now().UTC().Truncate(time.Microsecond)
	if !ts.After(g.last) {
		ts = g.last.Add(time.Microsecond)
	}

	stamp := Stamp(ts)
	name := e.Kind.prefix() + stamp + e.Format.Ext()
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return Record{}, fmt.Errorf("create media file %s: %w", name, err)
	}
	if _, err := f.Write(e.Data); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return Record{}, fmt.Errorf("write media file %s: %w", name, err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return Record{}, fmt.Errorf("close media file %s: %w", name, err)
	}

	rec := Record{
		Timestamp:  ts,
		Kind:       e.Kind,
		Path:       path,
		Format:     e.Format,
		SizeBytes:  int64(len(e.Data)),
		Transcript: e.Transcript,
	}

	sidecar := filepath.Join(dir, e.Kind.sidecarPrefix()+stamp+".json")
	if err := writeSidecar(sidecar, sessionID, rec, e.Metadata); err != nil {
		_ = os.Remove(path)
		return Record{}, err
	}

	if err := os.Chtimes(path, ts, ts); err != nil {
		return Record{}, fmt.Errorf("stamp media file %s: %w", name, err)
	}

	g.last = ts
	return rec, nil
}

func writeSidecar(path, sessionID string, rec Record, extra map[string]any) error {
	meta := make(map[string]any, len(extra)+8)
	for k, v := range extra {
		meta[k] = v
	}
	meta["session_id"] = sessionID
	meta["timestamp"] = rec.Timestamp.Format(time.RFC3339Nano)
	meta["kind"] = rec.Kind
	meta["file"] = rec.Name()
	meta["format"] = rec.Format
	meta["size_bytes"] = rec.SizeBytes
	meta["file_size_mb"] = math.Round(float64(rec.SizeBytes)/(1<<20)*100) / 100
	if rec.Transcript != "" {
		meta["transcription"] = rec.Transcript
	}

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write metadata %s: %w", filepath.Base(path), err)
	}
	return nil
}
