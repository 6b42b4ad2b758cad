package interview

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/kwang/interview-server/internal/recordings"
	"github.com/kwang/interview-server/internal/session"
	"github.com/kwang/interview-server/internal/storage"
	"github.com/kwang/interview-server/internal/summary"
)

// Options carries the orchestrator's optional collaborators.
type Options struct {
	Catalog     Catalog
	Transcript  TranscriptLog
	Summarizer  Summarizer
	Events      EventBroadcaster
	IdleTimeout time.Duration
}

// Orchestrator drives one conversation per live connection and owns the
// finish path.
type Orchestrator struct {
	store      *session.Store
	responder  *Responder
	combiner   Combiner
	catalog    Catalog
	transcript TranscriptLog
	summarizer Summarizer
	hub        EventBroadcaster
	idle       time.Duration
	now        func() time.Time

	mu       sync.Mutex
	finished map[string]struct{}

	wg sync.WaitGroup
}

func NewOrchestrator(store *session.Store, responder *Responder, combiner Combiner, opts Options) *Orchestrator {
	return &Orchestrator{
		store:      store,
		responder:  responder,
		combiner:   combiner,
		catalog:    opts.Catalog,
		transcript: opts.Transcript,
		summarizer: opts.Summarizer,
		hub:        opts.Events,
		idle:       opts.IdleTimeout,
		now:        time.Now,
		finished:   make(map[string]struct{}),
	}
}

// Run serves one connection until it closes, idles out, fails to send, or
// the session is finished. Run closes conn and always removes the session
// from the store before returning.
func (o *Orchestrator) Run(ctx context.Context, conn Conn, connectionKey string) error {
	defer func() { _ = conn.Close() }()

	sess, err := o.store.Create(connectionKey)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer o.teardown(sess)

	if o.catalog != nil {
		if err := o.catalog.CreateSession(sess.ID, connectionKey, sess.CreatedAt); err != nil {
			slog.Warn("orchestrator: catalog create failed", "session_id", sess.ID, "error", err)
		}
	}
	if o.hub != nil {
		o.hub.BroadcastSessionStarted(sess.ID)
	}

	greeting := o.responder.Respond(ctx, Request{Script: scriptState(sess)})
	if err := o.speak(sess, greeting); err != nil {
		return fmt.Errorf("record greeting: %w", err)
	}
	if err := conn.WriteMessage(Message{Type: MessageGreeting, Message: greeting.Text, SessionID: sess.ID}); err != nil {
		return fmt.Errorf("send greeting: %w", err)
	}
	if err := sess.Transition(session.StateGreetingSent); err != nil {
		return err
	}
	if err := sess.Transition(session.StateAwaitingCandidateTurn); err != nil {
		return err
	}

	transcripts := make(chan string)
	readErr := make(chan error, 1)
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			text, err := conn.ReadTranscript()
			if err != nil {
				readErr <- err
				return
			}
			select {
			case transcripts <- text:
			case <-stop:
				return
			}
		}
	}()

	idle := session.NewIdleTimer(o.idle, func() {
		slog.Info("orchestrator: session idle, closing connection", "session_id", sess.ID)
		_ = conn.Close()
	})
	idle.Touch()
	defer idle.Stop()

	for {
		var answer string
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sess.Done():
			return nil
		case err := <-readErr:
			return fmt.Errorf("read transcript: %w", err)
		case answer = <-transcripts:
		case answer = <-sess.Inbox():
		}

		idle.Touch()
		answer = strings.TrimSpace(answer)
		if answer == "" {
			continue
		}

		reply, ok := o.takeTurn(ctx, sess, answer)
		if !ok {
			continue
		}
		if err := conn.WriteMessage(Message{Type: MessageFollowUp, Message: reply.Text, SessionID: sess.ID}); err != nil {
			return fmt.Errorf("send follow-up: %w", err)
		}
	}
}

// takeTurn records the candidate answer and the interviewer reply. A false
// result means nothing should be sent.
func (o *Orchestrator) takeTurn(ctx context.Context, sess *session.Session, answer string) (Reply, bool) {
	if err := sess.Transition(session.StateGeneratingFollowUp); err != nil {
		slog.Warn("orchestrator: dropping candidate turn", "session_id", sess.ID, "error", err)
		return Reply{}, false
	}

	if err := sess.AppendTurn(session.RoleCandidate, answer); err != nil {
		slog.Warn("orchestrator: dropping candidate turn", "session_id", sess.ID, "error", err)
		_ = sess.Transition(session.StateAwaitingCandidateTurn)
		return Reply{}, false
	}
	sess.IncrementResponses()
	o.recordTurn(sess, session.RoleCandidate, answer)

	reply := o.responder.Respond(ctx, Request{
		History: sess.History(),
		Answer:  answer,
		Script:  scriptState(sess),
	})
	if err := o.speak(sess, reply); err != nil {
		slog.Warn("orchestrator: recording reply failed", "session_id", sess.ID, "error", err)
	}

	if err := sess.Transition(session.StateAwaitingCandidateTurn); err != nil {
		return Reply{}, false
	}
	return reply, true
}

func (o *Orchestrator) speak(sess *session.Session, reply Reply) error {
	if err := sess.AppendTurn(session.RoleInterviewer, reply.Text); err != nil {
		return err
	}
	sess.Advance(reply.Topic, reply.Text)
	o.recordTurn(sess, session.RoleInterviewer, reply.Text)
	return nil
}

func (o *Orchestrator) recordTurn(sess *session.Session, role session.Role, text string) {
	turn := storage.Turn{
		Index:     len(sess.History()) - 1,
		Role:      string(role),
		Text:      text,
		Timestamp: o.now().UTC(),
	}

	if o.catalog != nil {
		if err := o.catalog.AppendTurn(sess.ID, turn); err != nil {
			slog.Warn("orchestrator: catalog turn failed", "session_id", sess.ID, "error", err)
		}
	}
	if o.transcript != nil {
		if err := o.transcript.Append(sess.ID, turn); err != nil {
			slog.Warn("orchestrator: transcript append failed", "session_id", sess.ID, "error", err)
		}
	}
	if o.hub != nil {
		o.hub.BroadcastTurn(sess.ID, turn)
	}
}

func (o *Orchestrator) teardown(sess *session.Session) {
	o.store.Remove(sess.ID)
	if sess.Finished() {
		return
	}

	endedAt := o.now().UTC()
	if o.catalog != nil {
		if err := o.catalog.CloseSession(sess.ID, endedAt); err != nil {
			slog.Warn("orchestrator: catalog close failed", "session_id", sess.ID, "error", err)
		}
	}
	if o.hub != nil {
		o.hub.BroadcastSessionClosed(sess.ID, endedAt.Sub(sess.CreatedAt))
	}
}

// CandidateTurn hands a transcript produced outside the connection to the
// session's conversation loop. It reports whether the turn was queued.
func (o *Orchestrator) CandidateTurn(sessionID, text string) bool {
	sess, ok := o.store.Get(sessionID)
	if !ok {
		return false
	}
	return sess.Notify(text)
}

// Finish ends a session: it leaves the store, its media is combined, and a
// summary is scheduled. Finishing an archived or already finished session
// re-runs the combine, which is a no-op when outputs are current.
func (o *Orchestrator) Finish(ctx context.Context, sessionID string) (recordings.CombineResult, error) {
	if sess, ok := o.store.Get(sessionID); ok {
		if err := sess.Transition(session.StateFinished); err != nil {
			slog.Warn("orchestrator: finish transition", "session_id", sessionID, "error", err)
		}
		o.store.Remove(sessionID)
	}

	o.mu.Lock()
	o.finished[sessionID] = struct{}{}
	o.mu.Unlock()

	// Combine takes the archive's session lock, so writes checked after the
	// mark above are rejected and earlier ones are already on disk.
	result, err := o.combiner.Combine(ctx, sessionID)
	if err != nil {
		return result, err
	}

	if o.catalog != nil {
		audioOut, videoOut := "", ""
		if result.Audio.Combined {
			audioOut = result.Audio.Output
		}
		if result.Video.Combined {
			videoOut = result.Video.Output
		}
		if err := o.catalog.FinishSession(sessionID, o.now().UTC(), audioOut, videoOut); err != nil {
			slog.Warn("orchestrator: catalog finish failed", "session_id", sessionID, "error", err)
		}
	}
	if o.hub != nil {
		o.hub.BroadcastSessionFinished(sessionID, result)
	}

	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.generateSummary(context.Background(), sessionID)
	}()

	return result, nil
}

// IsFinished reports whether a session reached FINISHED in this process or
// is recorded as finished in the catalog.
func (o *Orchestrator) IsFinished(sessionID string) bool {
	o.mu.Lock()
	_, ok := o.finished[sessionID]
	o.mu.Unlock()
	if ok {
		return true
	}
	if o.catalog == nil {
		return false
	}

	status, err := o.catalog.SessionStatus(sessionID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			slog.Warn("orchestrator: status lookup failed", "session_id", sessionID, "error", err)
		}
		return false
	}
	return status == storage.StatusFinished
}

// Wait blocks until background summaries complete.
func (o *Orchestrator) Wait() {
	o.wg.Wait()
}

func (o *Orchestrator) generateSummary(ctx context.Context, sessionID string) {
	if o.summarizer == nil || o.catalog == nil {
		return
	}

	turns, err := o.catalog.GetTurns(sessionID)
	if err != nil {
		slog.Warn("summary: load turns failed", "session_id", sessionID, "error", err)
		o.storeSummary(sessionID, "", storage.SummaryFailed)
		return
	}

	var b strings.Builder
	for _, turn := range turns {
		if strings.TrimSpace(turn.Text) == "" {
			continue
		}
		role := "Candidate"
		if turn.Role == string(session.RoleInterviewer) {
			role = "Interviewer"
		}
		fmt.Fprintf(&b, "%s: %s\n", role, turn.Text)
	}

	text, err := o.summarizer.Summarize(ctx, sessionID, b.String())
	switch {
	case errors.Is(err, summary.ErrAlreadyRequested):
		// The stored evaluation of this transcript stays as it is.
		slog.Info("summary: transcript already evaluated", "session_id", sessionID)
	case err != nil:
		slog.Warn("summary: generation failed", "session_id", sessionID, "error", err)
		o.storeSummary(sessionID, "", storage.SummaryFailed)
	case text == "":
		o.storeSummary(sessionID, "", storage.SummarySkipped)
	default:
		o.storeSummary(sessionID, text, storage.SummaryCompleted)
	}
}

func (o *Orchestrator) storeSummary(sessionID, text, status string) {
	if err := o.catalog.UpdateSummary(sessionID, text, status); err != nil {
		slog.Warn("summary: store failed", "session_id", sessionID, "status", status, "error", err)
		return
	}
	if o.hub != nil {
		o.hub.BroadcastSummaryReady(sessionID, text, status)
	}
}

// Questions returns the fallback script table.
func (o *Orchestrator) Questions() []Topic {
	return o.responder.fallback.script.Topics()
}

func scriptState(sess *session.Session) ScriptState {
	return ScriptState{Topic: sess.Topic(), Used: sess.Used()}
}
