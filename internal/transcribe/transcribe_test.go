package transcribe

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kwang/interview-server/internal/audio"
	"github.com/kwang/interview-server/internal/config"
)

func writeTempAudio(t *testing.T, name string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, audio.SilentWAV(100*time.Millisecond, 16000), 0o644); err != nil {
		t.Fatalf("write temp audio: %v", err)
	}
	return path
}

func TestNewSelectsProvider(t *testing.T) {
	tr, err := New(config.Transcription{Provider: "openai"}, "key")
	if err != nil {
		t.Fatalf("New openai failed: %v", err)
	}
	if _, ok := tr.(*OpenAI); !ok {
		t.Fatalf("expected *OpenAI, got %T", tr)
	}

	tr, err = New(config.Transcription{Provider: "deepgram"}, "key")
	if err != nil {
		t.Fatalf("New deepgram failed: %v", err)
	}
	if _, ok := tr.(*Deepgram); !ok {
		t.Fatalf("expected *Deepgram, got %T", tr)
	}
}

func TestNewErrors(t *testing.T) {
	if _, err := New(config.Transcription{Provider: "openai"}, " "); err == nil {
		t.Fatal("expected missing key error")
	}
	_, err := New(config.Transcription{Provider: "whisper.cpp"}, "key")
	if err == nil || !strings.Contains(err.Error(), "unknown transcription provider") {
		t.Fatalf("expected unknown provider error, got %v", err)
	}
}

func TestAcceptedFormats(t *testing.T) {
	oa := NewOpenAI("k", "", "en", "")
	dg := NewDeepgram("k", "", "en", "")

	if oa.Accepts(audio.FormatWebM) {
		t.Fatal("openai should not accept webm directly")
	}
	if !oa.Accepts(audio.FormatMP3) || !oa.Accepts(audio.FormatWAV) {
		t.Fatal("openai should accept mp3 and wav")
	}
	if !dg.Accepts(audio.FormatWebM) || !dg.Accepts(audio.FormatOGG) {
		t.Fatal("deepgram should accept webm and ogg")
	}
	if dg.Accepts(audio.FormatMKV) || oa.Accepts(audio.FormatUnknown) {
		t.Fatal("unexpected format accepted")
	}
}

func TestOpenAITranscribe(t *testing.T) {
	var (
		mu       sync.Mutex
		gotPath  string
		gotModel string
		gotLang  string
		gotFile  []byte
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		defer mu.Unlock()

		gotPath = r.URL.Path
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		gotModel = r.FormValue("model")
		gotLang = r.FormValue("language")
		f, _, err := r.FormFile("file")
		if err == nil {
			gotFile, _ = io.ReadAll(f)
			_ = f.Close()
		}

		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"text":"  I led the migration to Go.  "}`)
	}))
	defer srv.Close()

	path := writeTempAudio(t, "response.wav")
	tr := NewOpenAI("test-key", "", "en", srv.URL+"/v1")

	text, err := tr.Transcribe(context.Background(), path)
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "I led the migration to Go." {
		t.Fatalf("unexpected transcript %q", text)
	}

	mu.Lock()
	defer mu.Unlock()
	if gotPath != "/v1/audio/transcriptions" {
		t.Fatalf("unexpected path %q", gotPath)
	}
	if gotModel != "whisper-1" || gotLang != "en" {
		t.Fatalf("unexpected form model=%q language=%q", gotModel, gotLang)
	}
	if len(gotFile) == 0 {
		t.Fatal("expected uploaded file bytes")
	}
}

func TestOpenAITranscribeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":{"message":"boom","type":"server_error"}}`)
	}))
	defer srv.Close()

	tr := NewOpenAI("test-key", "whisper-1", "", srv.URL+"/v1")
	_, err := tr.Transcribe(context.Background(), writeTempAudio(t, "a.wav"))
	if err == nil || !strings.Contains(err.Error(), "openai transcription") {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}

func TestDeepgramTranscribe(t *testing.T) {
	dg := NewDeepgram("k", "", "en", "")

	var gotPath string
	dg.fromFile = func(_ context.Context, path string) (string, error) {
		gotPath = path
		return " Hello there ", nil
	}

	text, err := dg.Transcribe(context.Background(), "/tmp/x.webm")
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if text != "Hello there" || gotPath != "/tmp/x.webm" {
		t.Fatalf("unexpected result text=%q path=%q", text, gotPath)
	}

	boom := errors.New("quota exceeded")
	dg.fromFile = func(context.Context, string) (string, error) { return "", boom }
	if _, err := dg.Transcribe(context.Background(), "/tmp/x.webm"); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped error, got %v", err)
	}
}
