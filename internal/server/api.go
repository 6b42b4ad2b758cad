package server

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"regexp"
	"time"

	"github.com/kwang/interview-server/internal/audio"
	"github.com/kwang/interview-server/internal/recordings"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

func registerAPIRoutes(mux *http.ServeMux, deps Deps) {
	store := deps.Catalog

	mux.HandleFunc("GET /api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "catalog unavailable")
			return
		}

		date := r.URL.Query().Get("date")
		if date == "" {
			date = time.Now().UTC().Format("2006-01-02")
		}

		sessions, err := store.GetSessionsByDate(date)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list sessions: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, sessions)
	})

	mux.HandleFunc("GET /api/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "catalog unavailable")
			return
		}

		sessionID := r.PathValue("id")
		if !validSessionID(sessionID) {
			writeJSONError(w, http.StatusForbidden, "invalid session id")
			return
		}

		sessionData, err := store.GetSession(sessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, os.ErrNotExist) || errors.Is(err, sql.ErrNoRows) {
				status = http.StatusNotFound
			}
			writeJSONError(w, status, fmt.Sprintf("get session: %v", err))
			return
		}

		turns, err := store.GetTurns(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session turns: %v", err))
			return
		}
		media, err := store.GetMedia(sessionID)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get session media: %v", err))
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"session": sessionData,
			"turns":   turns,
			"media":   media,
		})
	})

	mux.HandleFunc("GET /api/dates", func(w http.ResponseWriter, r *http.Request) {
		if store == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "catalog unavailable")
			return
		}

		dates, err := store.GetDates()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("get dates: %v", err))
			return
		}
		if dates == nil {
			dates = []string{}
		}
		writeJSON(w, http.StatusOK, dates)
	})

	mux.HandleFunc("GET /api/status", func(w http.ResponseWriter, r *http.Request) {
		active := 0
		if deps.ActiveSessions != nil {
			active = deps.ActiveSessions()
		}
		var warnings []string
		if deps.Warnings != nil {
			warnings = deps.Warnings()
		}
		if warnings == nil {
			warnings = []string{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"active_sessions": active, "warnings": warnings})
	})
}

func registerRecordingRoutes(mux *http.ServeMux, index RecordingsIndex) {
	mux.HandleFunc("GET /recordings", func(w http.ResponseWriter, r *http.Request) {
		if index == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "recordings unavailable")
			return
		}

		list, err := index.List()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("list recordings: %v", err))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"recordings": list})
	})

	mux.HandleFunc("GET /recordings/{id}", func(w http.ResponseWriter, r *http.Request) {
		if index == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "recordings unavailable")
			return
		}

		detail, err := index.Detail(r.PathValue("id"))
		if err != nil {
			writeJSONError(w, recordingErrorStatus(err), err.Error())
			return
		}
		writeJSON(w, http.StatusOK, detail)
	})

	mux.HandleFunc("GET /recordings/{id}/export", func(w http.ResponseWriter, r *http.Request) {
		if index == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "recordings unavailable")
			return
		}

		sessionID := r.PathValue("id")
		if _, err := index.Detail(sessionID); err != nil {
			writeJSONError(w, recordingErrorStatus(err), err.Error())
			return
		}

		w.Header().Set("Content-Type", "application/zip")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.zip"`, sessionID))
		if err := index.Export(w, sessionID); err != nil {
			// Headers are already sent; the truncated archive is the signal.
			log.Printf("export %s: %v", sessionID, err)
		}
	})

	mux.HandleFunc("GET /recordings/{id}/{file}", func(w http.ResponseWriter, r *http.Request) {
		if index == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "recordings unavailable")
			return
		}

		path, err := index.FilePath(r.PathValue("id"), r.PathValue("file"))
		if err != nil {
			writeJSONError(w, recordingErrorStatus(err), err.Error())
			return
		}

		f, err := os.Open(path)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "file not found")
			return
		}
		defer func() { _ = f.Close() }()

		info, err := f.Stat()
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("stat file: %v", err))
			return
		}

		w.Header().Set("Accept-Ranges", "bytes")
		w.Header().Set("Content-Type", audio.ContentType(path))
		http.ServeContent(w, r, info.Name(), info.ModTime(), f)
	})
}

func recordingErrorStatus(err error) int {
	switch {
	case errors.Is(err, recordings.ErrInvalidSessionID), errors.Is(err, recordings.ErrInvalidFilename):
		return http.StatusForbidden
	case errors.Is(err, recordings.ErrSessionNotFound), errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func validSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
