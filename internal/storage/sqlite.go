package storage

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kwang/interview-server/internal/audio"
	"github.com/kwang/interview-server/internal/recordings"
)

const (
	SummaryPending   = "pending"
	SummaryRunning   = "running"
	SummaryCompleted = "completed"
	SummaryFailed    = "failed"
	SummarySkipped   = "skipped"
)

// Session statuses. active -> closed when the connection ends, and
// any -> finished on an explicit finish.
const (
	StatusActive   = "active"
	StatusClosed   = "closed"
	StatusFinished = "finished"
)

type Session struct {
	ID            string     `json:"id"`
	ConnectionKey string     `json:"connection_key,omitempty"`
	StartedAt     time.Time  `json:"started_at"`
	EndedAt       *time.Time `json:"ended_at,omitempty"`
	Status        string     `json:"status"`
	Summary       string     `json:"summary"`
	SummaryStatus string     `json:"summary_status"`
	CombinedAudio string     `json:"combined_audio,omitempty"`
	CombinedVideo string     `json:"combined_video,omitempty"`
}

// Turn is one catalogued utterance.
type Turn struct {
	Index     int       `json:"index"`
	Role      string    `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if strings.TrimSpace(dbPath) == "" {
		dbPath = filepath.Join("data", "interview.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) init() error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := s.db.Exec(p); err != nil {
			return fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	tables := []struct {
		name string
		ddl  string
	}{
		{"sessions", `
		CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			connection_key TEXT NOT NULL DEFAULT '',
			started_at TEXT NOT NULL,
			ended_at TEXT,
			status TEXT NOT NULL,
			summary TEXT NOT NULL DEFAULT '',
			summary_status TEXT NOT NULL DEFAULT 'pending',
			combined_audio TEXT NOT NULL DEFAULT '',
			combined_video TEXT NOT NULL DEFAULT ''
		);`},
		{"turns", `
		CREATE TABLE IF NOT EXISTS turns (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			turn_index INTEGER NOT NULL,
			role TEXT NOT NULL,
			text TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			UNIQUE(session_id, turn_index),
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`},
		{"media", `
		CREATE TABLE IF NOT EXISTS media (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			session_id TEXT NOT NULL,
			kind TEXT NOT NULL,
			path TEXT NOT NULL UNIQUE,
			format TEXT NOT NULL,
			size_bytes INTEGER NOT NULL,
			transcript TEXT NOT NULL DEFAULT '',
			timestamp TEXT NOT NULL,
			FOREIGN KEY(session_id) REFERENCES sessions(id) ON DELETE CASCADE
		);`},
		{"summary_requests", `
		CREATE TABLE IF NOT EXISTS summary_requests (
			session_id TEXT NOT NULL,
			prompt_hash TEXT NOT NULL,
			created_at TEXT NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE(session_id, prompt_hash)
		);`},
	}
	for _, table := range tables {
		if _, err := s.db.Exec(table.ddl); err != nil {
			return fmt.Errorf("create %s table: %w", table.name, err)
		}
	}

	indexes := []string{
		"CREATE INDEX IF NOT EXISTS idx_sessions_started_at ON sessions(started_at)",
		"CREATE INDEX IF NOT EXISTS idx_turns_session_id ON turns(session_id, turn_index)",
		"CREATE INDEX IF NOT EXISTS idx_media_session_id ON media(session_id, timestamp)",
	}
	for _, idx := range indexes {
		if _, err := s.db.Exec(idx); err != nil {
			return fmt.Errorf("create index: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) CreateSession(id, connectionKey string, startedAt time.Time) error {
	if strings.TrimSpace(id) == "" {
		return errors.New("session id is required")
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions(id, connection_key, started_at, status, summary_status) VALUES(?, ?, ?, ?, ?)`,
		id,
		connectionKey,
		formatTime(startedAt),
		StatusActive,
		SummaryPending,
	)
	if err != nil {
		return fmt.Errorf("create session %s: %w", id, err)
	}
	return nil
}

// CloseSession marks an active session closed. Finished sessions are left
// untouched.
func (s *SQLiteStore) CloseSession(id string, endedAt time.Time) error {
	_, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, status = ? WHERE id = ? AND status = ?`,
		formatTime(endedAt),
		StatusClosed,
		id,
		StatusActive,
	)
	if err != nil {
		return fmt.Errorf("close session %s: %w", id, err)
	}
	return nil
}

// FinishSession marks a session finished and records its combined outputs.
// Sessions unknown to the catalog (archived before it existed) are inserted.
func (s *SQLiteStore) FinishSession(id string, endedAt time.Time, combinedAudio, combinedVideo string) error {
	ended := formatTime(endedAt)
	_, err := s.db.Exec(
		`INSERT INTO sessions(id, started_at, ended_at, status, summary_status, combined_audio, combined_video)
		 VALUES(?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			ended_at = COALESCE(sessions.ended_at, excluded.ended_at),
			status = excluded.status,
			combined_audio = CASE WHEN excluded.combined_audio != '' THEN excluded.combined_audio ELSE sessions.combined_audio END,
			combined_video = CASE WHEN excluded.combined_video != '' THEN excluded.combined_video ELSE sessions.combined_video END`,
		id,
		ended,
		ended,
		StatusFinished,
		SummaryPending,
		combinedAudio,
		combinedVideo,
	)
	if err != nil {
		return fmt.Errorf("finish session %s: %w", id, err)
	}
	return nil
}

// SessionStatus returns the catalog status of a session, or sql.ErrNoRows.
func (s *SQLiteStore) SessionStatus(id string) (string, error) {
	var status string
	if err := s.db.QueryRow(`SELECT status FROM sessions WHERE id = ?`, id).Scan(&status); err != nil {
		return "", fmt.Errorf("query status of session %s: %w", id, err)
	}
	return status, nil
}

func (s *SQLiteStore) AppendTurn(sessionID string, turn Turn) error {
	_, err := s.db.Exec(
		`INSERT INTO turns(session_id, turn_index, role, text, timestamp) VALUES(?, ?, ?, ?, ?)`,
		sessionID,
		turn.Index,
		turn.Role,
		strings.TrimSpace(turn.Text),
		formatTime(turn.Timestamp),
	)
	if err != nil {
		return fmt.Errorf("append turn for session %s: %w", sessionID, err)
	}
	return nil
}

func (s *SQLiteStore) GetTurns(sessionID string) ([]Turn, error) {
	rows, err := s.db.Query(
		`SELECT turn_index, role, text, timestamp
		 FROM turns
		 WHERE session_id = ?
		 ORDER BY turn_index ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query turns for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	turns := make([]Turn, 0, 16)
	for rows.Next() {
		var turn Turn
		var ts string
		if err := rows.Scan(&turn.Index, &turn.Role, &turn.Text, &ts); err != nil {
			return nil, fmt.Errorf("scan turn for session %s: %w", sessionID, err)
		}
		if turn.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse turn timestamp for session %s: %w", sessionID, err)
		}
		turns = append(turns, turn)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate turn rows for session %s: %w", sessionID, err)
	}

	return turns, nil
}

// AddMedia catalogs a persisted media record. A session row is created as
// closed when the record belongs to a session the catalog has not seen.
func (s *SQLiteStore) AddMedia(sessionID string, rec recordings.Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin add media: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ts := formatTime(rec.Timestamp)
	if _, err := tx.Exec(
		`INSERT OR IGNORE INTO sessions(id, started_at, status, summary_status) VALUES(?, ?, ?, ?)`,
		sessionID, ts, StatusClosed, SummaryPending,
	); err != nil {
		return fmt.Errorf("ensure session %s: %w", sessionID, err)
	}

	if _, err := tx.Exec(
		`INSERT INTO media(session_id, kind, path, format, size_bytes, transcript, timestamp) VALUES(?, ?, ?, ?, ?, ?, ?)`,
		sessionID,
		string(rec.Kind),
		rec.Path,
		string(rec.Format),
		rec.SizeBytes,
		rec.Transcript,
		ts,
	); err != nil {
		return fmt.Errorf("add media %s: %w", rec.Name(), err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit add media: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMedia(sessionID string) ([]recordings.Record, error) {
	rows, err := s.db.Query(
		`SELECT kind, path, format, size_bytes, transcript, timestamp
		 FROM media
		 WHERE session_id = ?
		 ORDER BY timestamp ASC, id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query media for session %s: %w", sessionID, err)
	}
	defer func() { _ = rows.Close() }()

	var records []recordings.Record
	for rows.Next() {
		var rec recordings.Record
		var kind, format, ts string
		if err := rows.Scan(&kind, &rec.Path, &format, &rec.SizeBytes, &rec.Transcript, &ts); err != nil {
			return nil, fmt.Errorf("scan media for session %s: %w", sessionID, err)
		}
		rec.Kind = recordings.Kind(kind)
		rec.Format = audio.Format(format)
		if rec.Timestamp, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return nil, fmt.Errorf("parse media timestamp for session %s: %w", sessionID, err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate media rows for session %s: %w", sessionID, err)
	}

	return records, nil
}

const sessionColumns = `id, connection_key, started_at, ended_at, status, summary, summary_status, combined_audio, combined_video`

func (s *SQLiteStore) GetSessionsByDate(date string) ([]Session, error) {
	rows, err := s.db.Query(
		`SELECT `+sessionColumns+`
		 FROM sessions
		 WHERE substr(started_at, 1, 10) = ?
		 ORDER BY started_at DESC`,
		date,
	)
	if err != nil {
		return nil, fmt.Errorf("query sessions by date %s: %w", date, err)
	}
	defer func() { _ = rows.Close() }()

	sessions := make([]Session, 0, 16)
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions rows: %w", err)
	}

	return sessions, nil
}

func (s *SQLiteStore) GetDates() ([]string, error) {
	rows, err := s.db.Query(
		`SELECT DISTINCT substr(started_at, 1, 10) AS date FROM sessions ORDER BY date DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("query dates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var dates []string
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("scan date: %w", err)
		}
		dates = append(dates, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dates rows: %w", err)
	}

	return dates, nil
}

func (s *SQLiteStore) GetSession(id string) (Session, error) {
	row := s.db.QueryRow(`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id)

	sess, err := scanSession(row)
	if err != nil {
		return Session{}, fmt.Errorf("query session %s: %w", id, err)
	}
	return sess, nil
}

func (s *SQLiteStore) UpdateSummary(sessionID, summary, status string) error {
	res, err := s.db.Exec(
		`UPDATE sessions SET summary = ?, summary_status = ? WHERE id = ?`,
		summary,
		status,
		sessionID,
	)
	if err != nil {
		return fmt.Errorf("update summary for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update summary rows affected: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}

	return nil
}

func (s *SQLiteStore) ClaimSummaryRequest(sessionID, promptHash string) (bool, error) {
	res, err := s.db.Exec(
		`INSERT OR IGNORE INTO summary_requests(session_id, prompt_hash) VALUES(?, ?)`,
		sessionID,
		promptHash,
	)
	if err != nil {
		return false, fmt.Errorf("claim summary request for session %s: %w", sessionID, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim summary rows affected: %w", err)
	}

	return rows > 0, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (Session, error) {
	var sess Session
	var startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&sess.ID, &sess.ConnectionKey, &startedAt, &endedAt, &sess.Status,
		&sess.Summary, &sess.SummaryStatus, &sess.CombinedAudio, &sess.CombinedVideo); err != nil {
		return Session{}, fmt.Errorf("scan session: %w", err)
	}

	parsedStart, err := time.Parse(time.RFC3339Nano, startedAt)
	if err != nil {
		return Session{}, fmt.Errorf("parse started_at: %w", err)
	}
	sess.StartedAt = parsedStart

	if endedAt.Valid {
		parsedEnd, err := time.Parse(time.RFC3339Nano, endedAt.String)
		if err != nil {
			return Session{}, fmt.Errorf("parse ended_at: %w", err)
		}
		sess.EndedAt = &parsedEnd
	}

	return sess, nil
}

// timeLayout keeps fractional seconds fixed-width so stored timestamps sort
// lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
