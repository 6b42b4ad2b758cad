package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/kwang/interview-server/internal/audio"
	"github.com/kwang/interview-server/internal/recordings"
	"github.com/kwang/interview-server/internal/session"
	"github.com/kwang/interview-server/internal/transcribe"
)

// Upload is one media file posted by the browser together with the hints
// that identify its session.
type Upload struct {
	Data          []byte
	Filename      string
	ContentType   string
	SessionID     string
	ConnectionKey string
}

// Result is what the caller learns about an ingested upload. A failed
// transcription leaves Transcript empty and sets TranscriptionErr.
type Result struct {
	Transcript       string
	SessionID        string
	Record           *recordings.Record
	TranscriptionErr error
	PersistErr       error
	Unresolved       bool
}

// Notifier is the orchestrator side of ingestion.
type Notifier interface {
	CandidateTurn(sessionID, text string) bool
	IsFinished(sessionID string) bool
}

type MediaCatalog interface {
	AddMedia(sessionID string, rec recordings.Record) error
}

type EventBroadcaster interface {
	BroadcastMediaSaved(sessionID string, rec recordings.Record)
}

type Options struct {
	MaxUploadBytes int64
	MaxVideoBytes  int64
	StorageFormat  audio.Format
	// Timeout bounds one transcription call.
	Timeout time.Duration
	Catalog MediaCatalog
	Events  EventBroadcaster
}

// Pipeline turns uploaded recordings into transcripts and persisted media
// records.
type Pipeline struct {
	store       *session.Store
	archive     *recordings.Archive
	tool        audio.Tool
	transcriber transcribe.Transcriber
	notifier    Notifier

	maxUpload     int64
	maxVideo      int64
	storageFormat audio.Format
	timeout       time.Duration
	catalog       MediaCatalog
	events        EventBroadcaster
}

// NewPipeline wires the pipeline. tool and transcriber may be nil when the
// media tool or the transcription service is unavailable.
func NewPipeline(store *session.Store, archive *recordings.Archive, tool audio.Tool, transcriber transcribe.Transcriber, notifier Notifier, opts Options) *Pipeline {
	p := &Pipeline{
		store:         store,
		archive:       archive,
		tool:          tool,
		transcriber:   transcriber,
		notifier:      notifier,
		maxUpload:     opts.MaxUploadBytes,
		maxVideo:      opts.MaxVideoBytes,
		storageFormat: opts.StorageFormat,
		timeout:       opts.Timeout,
		catalog:       opts.Catalog,
		events:        opts.Events,
	}
	if p.maxUpload <= 0 {
		p.maxUpload = 50 << 20
	}
	if p.maxVideo <= 0 {
		p.maxVideo = 500 << 20
	}
	if p.storageFormat == audio.FormatUnknown {
		p.storageFormat = audio.FormatMP3
	}
	if p.timeout <= 0 {
		p.timeout = 30 * time.Second
	}
	return p
}

// Ingest transcribes a candidate recording and, when its session resolves,
// persists it and hands the transcript to the conversation.
func (p *Pipeline) Ingest(ctx context.Context, up Upload) (Result, error) {
	if err := checkSize(up.Data, p.maxUpload); err != nil {
		return Result{}, err
	}

	sess, ok := p.store.Resolve(up.SessionID, up.ConnectionKey)
	if ok && sess.Finished() {
		return Result{}, fmt.Errorf("%w: %s", ErrSessionFinished, sess.ID)
	}
	if !ok && p.finishedHint(up.SessionID, up.ConnectionKey) {
		return Result{}, ErrSessionFinished
	}

	format := audio.DetectFormat(up.Filename, up.ContentType)

	work, err := os.MkdirTemp("", "interview-upload-*")
	if err != nil {
		return Result{}, fmt.Errorf("create work dir: %w", err)
	}
	defer func() { _ = os.RemoveAll(work) }()

	original := filepath.Join(work, "upload"+format.Ext())
	if err := os.WriteFile(original, up.Data, 0o644); err != nil {
		return Result{}, fmt.Errorf("write upload: %w", err)
	}

	var res Result
	normalized := p.prepareForTranscription(ctx, original, format)
	res.Transcript, res.TranscriptionErr = p.transcribe(ctx, normalized)

	if !ok {
		slog.Warn("ingest: no session for upload", "session_id", up.SessionID, "connection_key", up.ConnectionKey)
		res.Unresolved = true
		return res, nil
	}
	res.SessionID = sess.ID

	turn := strings.TrimSpace(res.Transcript) != ""

	stored, storedFormat := p.encodeForStorage(ctx, original, format, up.Data)
	meta := map[string]any{
		"interview_question": lastQuestion(sess),
		"original_filename":  up.Filename,
		"original_format":    string(format),
	}
	if turn {
		// The conversation loop counts the turn once it is taken.
		meta["response_number"] = sess.ResponseCount() + 1
	}
	if d, ok := duration(normalized, stored); ok {
		meta["duration_seconds"] = math.Round(d.Seconds()*100) / 100
	}

	rec, err := p.archive.WriteIf(sess.ID, recordings.Entry{
		Kind:       recordings.KindCandidateAudio,
		Format:     storedFormat,
		Data:       stored,
		Transcript: res.Transcript,
		Metadata:   meta,
	}, p.stillOpen(sess, sess.ID))
	switch {
	case errors.Is(err, ErrSessionFinished):
		return Result{}, err
	case err != nil:
		slog.Warn("ingest: persist failed", "session_id", sess.ID, "error", err)
		res.PersistErr = err
	default:
		res.Record = &rec
		p.index(sess, rec)
	}

	if turn && p.notifier != nil {
		if !p.notifier.CandidateTurn(sess.ID, res.Transcript) {
			slog.Warn("ingest: candidate turn not queued", "session_id", sess.ID)
		}
	}

	return res, nil
}

// SaveVideo persists a camera recording for a live or archived session.
func (p *Pipeline) SaveVideo(ctx context.Context, up Upload) (recordings.Record, error) {
	if err := checkSize(up.Data, p.maxVideo); err != nil {
		return recordings.Record{}, err
	}

	sess, id, err := p.target(up.SessionID, up.ConnectionKey)
	if err != nil {
		return recordings.Record{}, err
	}

	format := audio.DetectFormat(up.Filename, up.ContentType)
	if format == audio.FormatUnknown {
		format = audio.FormatWebM
	}

	rec, err := p.archive.WriteIf(id, recordings.Entry{
		Kind:   recordings.KindVideo,
		Format: format,
		Data:   up.Data,
		Metadata: map[string]any{
			"original_filename": up.Filename,
			"original_format":   string(format),
		},
	}, p.stillOpen(sess, id))
	if errors.Is(err, ErrSessionFinished) {
		return recordings.Record{}, err
	}
	if err != nil {
		return recordings.Record{}, fmt.Errorf("save video: %w", err)
	}
	p.index(sess, rec)
	return rec, nil
}

// PersistInterviewerAudio stores synthesized interviewer speech so it takes
// part in the combined recording.
func (p *Pipeline) PersistInterviewerAudio(ctx context.Context, sessionID string, data []byte, text, voice string) (recordings.Record, error) {
	sess, id, err := p.target(sessionID, "")
	if err != nil {
		return recordings.Record{}, err
	}

	rec, err := p.archive.WriteIf(id, recordings.Entry{
		Kind:       recordings.KindInterviewerAudio,
		Format:     audio.FormatMP3,
		Data:       data,
		Transcript: text,
		Metadata: map[string]any{
			"text":  text,
			"voice": voice,
		},
	}, p.stillOpen(sess, id))
	if errors.Is(err, ErrSessionFinished) {
		return recordings.Record{}, err
	}
	if err != nil {
		return recordings.Record{}, fmt.Errorf("persist interviewer audio: %w", err)
	}
	p.index(sess, rec)
	return rec, nil
}

// target resolves a live session, or an archived one whose directory
// exists. Finished sessions are rejected. sess is nil for archived sessions.
func (p *Pipeline) target(sessionID, connectionKey string) (*session.Session, string, error) {
	if sess, ok := p.store.Resolve(sessionID, connectionKey); ok {
		if sess.Finished() {
			return nil, "", fmt.Errorf("%w: %s", ErrSessionFinished, sess.ID)
		}
		return sess, sess.ID, nil
	}
	if p.finishedHint(sessionID, connectionKey) {
		return nil, "", ErrSessionFinished
	}
	if sessionID != "" && p.archive.Exists(sessionID) {
		return nil, sessionID, nil
	}
	return nil, "", fmt.Errorf("%w: %q", session.ErrSessionNotFound, sessionID)
}

// stillOpen is the write precondition checked under the session lock.
// Finish marks a session before it takes that lock to combine, so a write
// either lands before the combine or is rejected.
func (p *Pipeline) stillOpen(sess *session.Session, id string) func() error {
	return func() error {
		if (sess != nil && sess.Finished()) || p.finishedHint(id) {
			return fmt.Errorf("%w: %s", ErrSessionFinished, id)
		}
		return nil
	}
}

func (p *Pipeline) finishedHint(hints ...string) bool {
	if p.notifier == nil {
		return false
	}
	for _, h := range hints {
		if h != "" && p.notifier.IsFinished(h) {
			return true
		}
	}
	return false
}

func (p *Pipeline) index(sess *session.Session, rec recordings.Record) {
	sessionID := filepath.Base(filepath.Dir(rec.Path))
	if sess != nil {
		if err := sess.AppendMedia(rec); err != nil {
			slog.Warn("ingest: media index rejected record", "session_id", sessionID, "file", rec.Name(), "error", err)
		}
	}
	if p.catalog != nil {
		if err := p.catalog.AddMedia(sessionID, rec); err != nil {
			slog.Warn("ingest: catalog media insert failed", "session_id", sessionID, "file", rec.Name(), "error", err)
		}
	}
	if p.events != nil {
		p.events.BroadcastMediaSaved(sessionID, rec)
	}
}

// prepareForTranscription returns the file to send to the transcriber,
// normalizing formats it cannot consume. Any failure keeps the original.
func (p *Pipeline) prepareForTranscription(ctx context.Context, original string, format audio.Format) string {
	if p.transcriber == nil || p.transcriber.Accepts(format) || p.tool == nil {
		return original
	}

	out := filepath.Join(filepath.Dir(original), "transcription.wav")
	if err := p.tool.Transcode(ctx, original, out, audio.TranscriptionSpec); err != nil {
		slog.Warn("ingest: transcription transcode failed, using original", "format", format, "error", err)
		return original
	}
	return out
}

func (p *Pipeline) transcribe(ctx context.Context, path string) (string, error) {
	if p.transcriber == nil {
		return "", ErrNoTranscriber
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	text, err := p.transcriber.Transcribe(ctx, path)
	if err != nil {
		slog.Warn("ingest: transcription failed", "error", err)
		return "", err
	}
	return text, nil
}

// encodeForStorage re-encodes the original bytes into the canonical storage
// format, falling back to the raw bytes.
func (p *Pipeline) encodeForStorage(ctx context.Context, original string, format audio.Format, raw []byte) ([]byte, audio.Format) {
	if format == p.storageFormat || p.tool == nil {
		return raw, format
	}

	out := filepath.Join(filepath.Dir(original), "stored"+p.storageFormat.Ext())
	if err := p.tool.Transcode(ctx, original, out, audio.StorageSpec(p.storageFormat)); err != nil {
		slog.Warn("ingest: storage encode failed, keeping original bytes", "format", format, "error", err)
		return raw, format
	}
	data, err := os.ReadFile(out)
	if err != nil || len(data) == 0 {
		slog.Warn("ingest: storage encode produced no output, keeping original bytes", "format", format, "error", err)
		return raw, format
	}
	return data, p.storageFormat
}

func checkSize(data []byte, limit int64) error {
	if len(data) == 0 {
		return ErrEmptyUpload
	}
	if int64(len(data)) > limit {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrTooLarge, len(data), limit)
	}
	return nil
}

func lastQuestion(sess *session.Session) string {
	history := sess.History()
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role == session.RoleInterviewer {
			return history[i].Text
		}
	}
	return ""
}

// duration reads the playing time from whichever WAV is at hand.
func duration(normalized string, stored []byte) (time.Duration, bool) {
	if d, ok := audio.WAVDuration(stored); ok {
		return d, true
	}
	if audio.FormatOf(normalized) != audio.FormatWAV {
		return 0, false
	}
	data, err := os.ReadFile(normalized)
	if err != nil {
		return 0, false
	}
	return audio.WAVDuration(data)
}

// IsInputError reports whether err should be shown to the client as a bad
// request rather than a server failure.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyUpload) || errors.Is(err, ErrTooLarge) ||
		errors.Is(err, ErrSessionFinished) || errors.Is(err, session.ErrSessionNotFound) ||
		errors.Is(err, recordings.ErrInvalidSessionID)
}
