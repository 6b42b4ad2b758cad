package recordings

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kwang/interview-server/internal/audio"
)

type fakeTool struct {
	mu       sync.Mutex
	concats  [][]string
	failExts map[string]error
}

func (f *fakeTool) Transcode(_ context.Context, _, _ string, _ audio.Spec) error {
	return errors.New("not used")
}

func (f *fakeTool) Concat(_ context.Context, files []string, out string) error {
	f.mu.Lock()
	names := make([]string, len(files))
	for i, file := range files {
		names[i] = filepath.Base(file)
	}
	f.concats = append(f.concats, names)
	err := f.failExts[filepath.Ext(out)]
	f.mu.Unlock()

	if err != nil {
		return err
	}

	var buf bytes.Buffer
	for _, file := range files {
		data, readErr := os.ReadFile(file)
		if readErr != nil {
			return readErr
		}
		buf.Write(data)
	}
	return os.WriteFile(out, buf.Bytes(), 0o644)
}

func (f *fakeTool) calls() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.concats...)
}

func seedSession(t *testing.T, archive *Archive, sessionID string, entries ...Entry) {
	t.Helper()
	base := time.Now().Add(-time.Hour)
	for i, e := range entries {
		writeAt(t, archive, sessionID, base.Add(time.Duration(i)*time.Second), e)
	}
}

func TestCombineSingleAudioInput(t *testing.T) {
	archive := newTestArchive(t)
	seedSession(t, archive, "s1", Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("only")})
	tool := &fakeTool{}

	result, err := NewCombiner(archive, tool, time.Minute).Combine(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if !result.Success || !result.Audio.Combined {
		t.Fatalf("expected audio combined, got %+v", result)
	}
	if !result.Video.Skipped || result.Video.Combined {
		t.Fatalf("expected video skipped, got %+v", result.Video)
	}

	data, err := os.ReadFile(filepath.Join(archive.Root(), "s1", "combined_interview.mp3"))
	if err != nil {
		t.Fatalf("read combined failed: %v", err)
	}
	if string(data) != "only" {
		t.Fatalf("unexpected combined bytes %q", data)
	}
}

func TestCombineOrdersByRecordingTimeAcrossRoles(t *testing.T) {
	archive := newTestArchive(t)
	seedSession(t, archive, "s1",
		Entry{Kind: KindInterviewerAudio, Format: audio.FormatMP3, Data: []byte("Q1.")},
		Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("A1.")},
		Entry{Kind: KindInterviewerAudio, Format: audio.FormatMP3, Data: []byte("Q2.")},
		Entry{Kind: KindVideo, Format: audio.FormatWebM, Data: []byte("V1.")},
		Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("A2.")},
	)
	tool := &fakeTool{}

	result, err := NewCombiner(archive, tool, time.Minute).Combine(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if !result.Audio.Combined || !result.Video.Combined || result.Audio.Inputs != 4 {
		t.Fatalf("unexpected result %+v", result)
	}

	data, err := os.ReadFile(filepath.Join(archive.Root(), "s1", "combined_interview.mp3"))
	if err != nil {
		t.Fatalf("read combined failed: %v", err)
	}
	if string(data) != "Q1.A1.Q2.A2." {
		t.Fatalf("expected recording order, got %q", data)
	}

	for _, call := range tool.calls() {
		for _, name := range call {
			if strings.Contains(name, "/") {
				t.Fatalf("expected base names only, got %s", name)
			}
		}
	}
}

func TestCombineIsIdempotentAndExcludesOwnOutput(t *testing.T) {
	archive := newTestArchive(t)
	seedSession(t, archive, "s1",
		Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("a")},
		Entry{Kind: KindInterviewerAudio, Format: audio.FormatMP3, Data: []byte("b")},
	)
	tool := &fakeTool{}
	combiner := NewCombiner(archive, tool, time.Minute)

	if _, err := combiner.Combine(context.Background(), "s1"); err != nil {
		t.Fatalf("first Combine failed: %v", err)
	}
	outPath := filepath.Join(archive.Root(), "s1", "combined_interview.mp3")
	first, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read combined failed: %v", err)
	}

	second, err := combiner.Combine(context.Background(), "s1")
	if err != nil {
		t.Fatalf("second Combine failed: %v", err)
	}
	if !second.Success || !second.Audio.UpToDate {
		t.Fatalf("expected up-to-date no-op, got %+v", second)
	}

	after, err := os.ReadFile(outPath)
	if err != nil {
		t.Fatalf("read combined failed: %v", err)
	}
	if !bytes.Equal(first, after) {
		t.Fatalf("combined output changed: %q -> %q", first, after)
	}

	calls := tool.calls()
	if len(calls) != 1 {
		t.Fatalf("expected a single concat, got %d", len(calls))
	}
	for _, name := range calls[0] {
		if name == "combined_interview.mp3" {
			t.Fatal("combined output used as input")
		}
	}
}

func TestCombineRerunsAfterNewInput(t *testing.T) {
	archive := newTestArchive(t)
	seedSession(t, archive, "s1", Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("a")})
	tool := &fakeTool{}
	combiner := NewCombiner(archive, tool, time.Minute)

	if _, err := combiner.Combine(context.Background(), "s1"); err != nil {
		t.Fatalf("Combine failed: %v", err)
	}

	writeAt(t, archive, "s1", time.Now().Add(time.Hour), Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("b")})

	result, err := combiner.Combine(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if result.Audio.UpToDate || result.Audio.Inputs != 2 {
		t.Fatalf("expected a fresh combine of 2 inputs, got %+v", result.Audio)
	}

	data, _ := os.ReadFile(filepath.Join(archive.Root(), "s1", "combined_interview.mp3"))
	if string(data) != "ab" {
		t.Fatalf("unexpected combined bytes %q", data)
	}
}

func TestCombinePerKindFailure(t *testing.T) {
	archive := newTestArchive(t)
	seedSession(t, archive, "s1",
		Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("a")},
		Entry{Kind: KindVideo, Format: audio.FormatWebM, Data: []byte("v")},
	)
	tool := &fakeTool{failExts: map[string]error{".webm": errors.New("codec mismatch")}}

	result, err := NewCombiner(archive, tool, time.Minute).Combine(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Combine failed: %v", err)
	}
	if !result.Success || !result.Audio.Combined {
		t.Fatalf("expected audio success, got %+v", result)
	}
	if result.Video.Combined || !strings.Contains(result.Video.Error, "codec mismatch") {
		t.Fatalf("expected video failure, got %+v", result.Video)
	}

	entries, _ := os.ReadDir(filepath.Join(archive.Root(), "s1"))
	for _, entry := range entries {
		if strings.HasPrefix(entry.Name(), ".partial-") {
			t.Fatalf("expected partial output cleanup, found %s", entry.Name())
		}
	}
}

func TestCombineAllKindsFail(t *testing.T) {
	archive := newTestArchive(t)
	seedSession(t, archive, "s1", Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("a")})
	tool := &fakeTool{failExts: map[string]error{".mp3": errors.New("boom")}}

	result, err := NewCombiner(archive, tool, time.Minute).Combine(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Combine returned error: %v", err)
	}
	if result.Success || !strings.Contains(result.Error, "audio: boom") {
		t.Fatalf("expected reported failure, got %+v", result)
	}
}

func TestCombineEmptyAndMissingSessions(t *testing.T) {
	archive := newTestArchive(t)
	if err := os.MkdirAll(filepath.Join(archive.Root(), "empty"), 0o755); err != nil {
		t.Fatalf("mkdir failed: %v", err)
	}
	combiner := NewCombiner(archive, &fakeTool{}, time.Minute)

	for _, id := range []string{"empty", "missing"} {
		result, err := combiner.Combine(context.Background(), id)
		if err != nil {
			t.Fatalf("Combine(%s) returned error: %v", id, err)
		}
		if result.Success || result.Error == "" {
			t.Fatalf("expected reported failure for %s, got %+v", id, result)
		}
	}

	if _, err := combiner.Combine(context.Background(), "../up"); !errors.Is(err, ErrInvalidSessionID) {
		t.Fatalf("expected ErrInvalidSessionID, got %v", err)
	}
}

func TestCombineWithoutTool(t *testing.T) {
	archive := newTestArchive(t)
	seedSession(t, archive, "s1", Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("a")})

	result, err := NewCombiner(archive, nil, time.Minute).Combine(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Combine returned error: %v", err)
	}
	if result.Success || result.Audio.Error == "" {
		t.Fatalf("expected tool-unavailable failure, got %+v", result)
	}
}

func TestCombineHoldsSessionLock(t *testing.T) {
	archive := newTestArchive(t)
	seedSession(t, archive, "s1", Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("a")})

	release := make(chan struct{})
	started := make(chan struct{})
	tool := &blockingTool{started: started, release: release}
	combiner := NewCombiner(archive, tool, time.Minute)

	done := make(chan struct{})
	go func() {
		_, _ = combiner.Combine(context.Background(), "s1")
		close(done)
	}()
	<-started

	wrote := make(chan struct{})
	go func() {
		_, _ = archive.Write("s1", Entry{Kind: KindCandidateAudio, Format: audio.FormatMP3, Data: []byte("late")})
		close(wrote)
	}()

	select {
	case <-wrote:
		t.Fatal("write completed while combine held the session lock")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-done
	select {
	case <-wrote:
	case <-time.After(time.Second):
		t.Fatal("write never completed after combine finished")
	}
}

type blockingTool struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingTool) Transcode(_ context.Context, _, _ string, _ audio.Spec) error { return nil }

func (b *blockingTool) Concat(_ context.Context, _ []string, out string) error {
	b.once.Do(func() { close(b.started) })
	<-b.release
	return os.WriteFile(out, []byte("x"), 0o644)
}
