package summary

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/kwang/interview-server/internal/config"
	"github.com/kwang/interview-server/internal/llm"
)

const minTranscriptWords = 20

const defaultSystemPrompt = "You are an experienced hiring manager reviewing a recorded screening interview."

const defaultUserTemplate = `Review the interview transcript below and write a short evaluation in markdown with the sections
## Summary, ## Strengths, ## Concerns and ## Recommendation.

Interview date: {{date}}

Transcript:
{{transcript}}`

type ClientFactory func(provider, model string) (llm.Client, error)

// Claimer records that a summary was requested so the same transcript is
// only evaluated once.
type Claimer interface {
	ClaimSummaryRequest(sessionID, promptHash string) (bool, error)
}

type Summarizer struct {
	cfg     config.Summary
	factory ClientFactory
	claims  Claimer
	sleep   func(time.Duration)
	now     func() time.Time
}

func New(cfg config.Summary, factory ClientFactory, claims Claimer) *Summarizer {
	return &Summarizer{
		cfg:     cfg,
		factory: factory,
		claims:  claims,
		sleep:   time.Sleep,
		now:     time.Now,
	}
}

// Summarize evaluates an interview transcript. Transcripts under twenty
// words yield an empty summary and no error.
func (s *Summarizer) Summarize(ctx context.Context, sessionID, transcript string) (string, error) {
	if len(strings.Fields(transcript)) < minTranscriptWords {
		return "", nil
	}

	if s.claims != nil {
		claimed, err := s.claims.ClaimSummaryRequest(sessionID, hashTranscript(transcript))
		if err != nil {
			return "", fmt.Errorf("claim summary request: %w", err)
		}
		if !claimed {
			return "", ErrAlreadyRequested
		}
	}

	provider, model, err := llm.ParseModel(s.cfg.Model)
	if err != nil {
		return "", err
	}

	client, err := s.factory(provider, model)
	if err != nil {
		return "", fmt.Errorf("create llm client: %w", err)
	}

	template := s.cfg.Prompt
	if strings.TrimSpace(template) == "" {
		template = defaultUserTemplate
	}
	date := s.now().UTC().Format("2006-01-02")
	userContent := strings.ReplaceAll(template, "{{transcript}}", transcript)
	userContent = strings.ReplaceAll(userContent, "{{date}}", date)

	messages := []llm.Message{
		{Role: "system", Content: defaultSystemPrompt},
		{Role: "user", Content: userContent},
	}

	backoff := []time.Duration{1 * time.Second, 4 * time.Second, 16 * time.Second}
	var lastErr error
	for attempt := range backoff {
		result, err := client.Complete(ctx, messages)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		if attempt < len(backoff)-1 {
			s.sleep(backoff[attempt])
		}
	}
	return "", fmt.Errorf("summarize failed after retries: %w", lastErr)
}

func hashTranscript(transcript string) string {
	sum := sha256.Sum256([]byte(transcript))
	return hex.EncodeToString(sum[:])
}
