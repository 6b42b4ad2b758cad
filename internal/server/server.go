package server

import (
	"context"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strings"

	"github.com/kwang/interview-server/internal/ingest"
	"github.com/kwang/interview-server/internal/interview"
	"github.com/kwang/interview-server/internal/recordings"
	"github.com/kwang/interview-server/internal/speech"
	"github.com/kwang/interview-server/internal/storage"
)

type Conversation interface {
	Run(ctx context.Context, conn interview.Conn, connectionKey string) error
	Finish(ctx context.Context, sessionID string) (recordings.CombineResult, error)
	Questions() []interview.Topic
}

type Ingestor interface {
	Ingest(ctx context.Context, up ingest.Upload) (ingest.Result, error)
	SaveVideo(ctx context.Context, up ingest.Upload) (recordings.Record, error)
}

type Speaker interface {
	Synthesize(ctx context.Context, req speech.Request) (speech.Result, error)
}

// RecordingsIndex is the read side of the on-disk archive.
type RecordingsIndex interface {
	List() ([]recordings.Summary, error)
	Detail(sessionID string) (recordings.Detail, error)
	FilePath(sessionID, name string) (string, error)
	Export(w io.Writer, sessionID string) error
}

type SessionStore interface {
	GetSessionsByDate(date string) ([]storage.Session, error)
	GetSession(id string) (storage.Session, error)
	GetTurns(sessionID string) ([]storage.Turn, error)
	GetMedia(sessionID string) ([]recordings.Record, error)
	GetDates() ([]string, error)
}

// Deps are the services behind the HTTP surface. A nil service makes its
// routes answer 503.
type Deps struct {
	Hub          *Hub
	Conversation Conversation
	Ingest       Ingestor
	Speech       Speaker
	Recordings   RecordingsIndex
	Catalog      SessionStore

	MaxUploadBytes int64
	MaxVideoBytes  int64

	ActiveSessions func() int
	Warnings       func() []string
}

// Handler builds the route table. staticFS may be nil when no front end is
// installed.
func Handler(staticFS fs.FS, deps Deps) (http.Handler, error) {
	if deps.Hub == nil {
		deps.Hub = NewHub()
	}

	mux := http.NewServeMux()

	registerWSRoutes(mux, deps.Hub, deps.Conversation)
	registerInterviewRoutes(mux, deps)
	registerRecordingRoutes(mux, deps.Recordings)
	registerAPIRoutes(mux, deps)

	if staticFS != nil {
		fileServer := http.FileServer(http.FS(staticFS))
		mux.HandleFunc("/", serveSPA(fileServer))
	}

	return mux, nil
}

func serveSPA(fileServer http.Handler) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/api/") || strings.HasPrefix(r.URL.Path, "/ws") ||
			strings.HasPrefix(r.URL.Path, "/recordings/") {
			http.NotFound(w, r)
			return
		}

		if r.URL.Path == "/manifest.json" || r.URL.Path == "/manifest.webmanifest" {
			w.Header().Set("Content-Type", "application/manifest+json")
		}

		cleanPath := path.Clean(strings.TrimPrefix(r.URL.Path, "/"))
		if cleanPath == "." || cleanPath == "" {
			r.URL.Path = "/"
		} else if !strings.Contains(cleanPath, ".") {
			r.URL.Path = "/"
		} else {
			r.URL.Path = "/" + cleanPath
		}

		fileServer.ServeHTTP(w, r)
	}
}
