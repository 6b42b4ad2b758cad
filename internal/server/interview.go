package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"

	"github.com/kwang/interview-server/internal/ingest"
	"github.com/kwang/interview-server/internal/interview"
	"github.com/kwang/interview-server/internal/recordings"
	"github.com/kwang/interview-server/internal/session"
	"github.com/kwang/interview-server/internal/speech"
)

// multipart framing allowance on top of the file ceiling
const formOverhead = 1 << 20

func registerInterviewRoutes(mux *http.ServeMux, deps Deps) {
	maxUpload := deps.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 50 << 20
	}
	maxVideo := deps.MaxVideoBytes
	if maxVideo <= 0 {
		maxVideo = 500 << 20
	}

	mux.HandleFunc("POST /transcribe", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ingest == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "transcription unavailable")
			return
		}

		up, status, err := readUpload(w, r, maxUpload)
		if err != nil {
			writeJSONError(w, status, err.Error())
			return
		}

		res, err := deps.Ingest.Ingest(r.Context(), up)
		if err != nil {
			writeJSONError(w, uploadErrorStatus(err), err.Error())
			return
		}

		body := map[string]any{"transcription": res.Transcript}
		if res.SessionID != "" {
			body["session_id"] = res.SessionID
		}
		if res.TranscriptionErr != nil {
			body["error"] = res.TranscriptionErr.Error()
		}
		if res.Unresolved {
			body["warning"] = "session not found"
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("POST /tts", func(w http.ResponseWriter, r *http.Request) {
		if deps.Speech == nil {
			writeJSONError(w, http.StatusServiceUnavailable, "speech synthesis unavailable")
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, formOverhead)
		res, err := deps.Speech.Synthesize(r.Context(), speech.Request{
			Text:      r.FormValue("text"),
			Voice:     r.FormValue("voice"),
			SessionID: r.FormValue("session_id"),
		})
		if err != nil {
			status := http.StatusBadGateway
			if errors.Is(err, speech.ErrEmptyText) {
				status = http.StatusBadRequest
			}
			writeJSONError(w, status, err.Error())
			return
		}

		w.Header().Set("Content-Type", "audio/mpeg")
		w.Header().Set("Content-Length", fmt.Sprint(len(res.Audio)))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Audio)
	})

	mux.HandleFunc("POST /save-video", func(w http.ResponseWriter, r *http.Request) {
		if deps.Ingest == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "video storage unavailable"})
			return
		}

		up, status, err := readUpload(w, r, maxVideo)
		if err != nil {
			writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
			return
		}

		rec, err := deps.Ingest.SaveVideo(r.Context(), up)
		if err != nil {
			writeJSON(w, uploadErrorStatus(err), map[string]any{"success": false, "error": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"success": true, "file": rec.Name()})
	})

	mux.HandleFunc("POST /finish-session", func(w http.ResponseWriter, r *http.Request) {
		if deps.Conversation == nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"success": false, "error": "conversation unavailable"})
			return
		}

		var req struct {
			SessionID string `json:"session_id"`
		}
		if err := json.NewDecoder(io.LimitReader(r.Body, formOverhead)).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "invalid request body"})
			return
		}
		if strings.TrimSpace(req.SessionID) == "" {
			writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": "session_id is required"})
			return
		}

		// Combination outlives a client that hangs up.
		result, err := deps.Conversation.Finish(context.WithoutCancel(r.Context()), req.SessionID)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, recordings.ErrInvalidSessionID) {
				status = http.StatusBadRequest
			}
			writeJSON(w, status, map[string]any{"success": false, "error": err.Error()})
			return
		}
		if !result.Success {
			log.Printf("finish %s: %s", req.SessionID, result.Error)
		}

		body := map[string]any{
			"success":        result.Success,
			"audio_combined": result.Audio.Combined,
			"video_combined": result.Video.Combined,
		}
		if result.Error != "" {
			body["error"] = result.Error
		}
		writeJSON(w, http.StatusOK, body)
	})

	mux.HandleFunc("GET /interview-questions", func(w http.ResponseWriter, r *http.Request) {
		questions := []interview.Topic{}
		if deps.Conversation != nil {
			questions = deps.Conversation.Questions()
		}
		writeJSON(w, http.StatusOK, map[string]any{"questions": questions})
	})
}

// readUpload parses a multipart upload with its "file" part and session
// hints. client_id is accepted as an alias for connection_key.
func readUpload(w http.ResponseWriter, r *http.Request, limit int64) (ingest.Upload, int, error) {
	if r.ContentLength > limit+formOverhead {
		return ingest.Upload{}, http.StatusRequestEntityTooLarge, ingest.ErrTooLarge
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit+formOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return ingest.Upload{}, http.StatusRequestEntityTooLarge, ingest.ErrTooLarge
		}
		return ingest.Upload{}, http.StatusBadRequest, fmt.Errorf("invalid multipart form: %w", err)
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		return ingest.Upload{}, http.StatusBadRequest, errors.New("no file uploaded")
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, limit+1))
	if err != nil {
		return ingest.Upload{}, http.StatusBadRequest, fmt.Errorf("read upload: %w", err)
	}

	connectionKey := r.FormValue("connection_key")
	if connectionKey == "" {
		connectionKey = r.FormValue("client_id")
	}

	return ingest.Upload{
		Data:          data,
		Filename:      header.Filename,
		ContentType:   header.Header.Get("Content-Type"),
		SessionID:     r.FormValue("session_id"),
		ConnectionKey: connectionKey,
	}, http.StatusOK, nil
}

func uploadErrorStatus(err error) int {
	switch {
	case errors.Is(err, ingest.ErrTooLarge):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ingest.ErrSessionFinished):
		return http.StatusConflict
	case errors.Is(err, session.ErrSessionNotFound):
		return http.StatusNotFound
	case ingest.IsInputError(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
