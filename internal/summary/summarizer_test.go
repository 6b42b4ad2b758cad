package summary

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kwang/interview-server/internal/config"
	"github.com/kwang/interview-server/internal/llm"
)

type mockLLMClient struct {
	calls        int
	failFirst    int
	response     string
	err          error
	lastMessages []llm.Message
}

func (m *mockLLMClient) Complete(_ context.Context, messages []llm.Message) (string, error) {
	m.calls++
	m.lastMessages = append([]llm.Message(nil), messages...)
	if m.err != nil && m.calls <= m.failFirst {
		return "", m.err
	}
	return m.response, nil
}

type claimMock struct {
	mu     sync.Mutex
	claims map[string]bool
	err    error
}

func (c *claimMock) ClaimSummaryRequest(sessionID, promptHash string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return false, c.err
	}
	if c.claims == nil {
		c.claims = map[string]bool{}
	}
	key := sessionID + "/" + promptHash
	if c.claims[key] {
		return false, nil
	}
	c.claims[key] = true
	return true, nil
}

func testConfig() config.Summary {
	return config.Summary{Enabled: true, Model: "openai/gpt-4o-mini"}
}

func TestSummarizeEvaluatesTranscript(t *testing.T) {
	transcript := buildTranscript(25)
	client := &mockLLMClient{response: "## Summary\nSolid candidate."}
	factoryCalls := 0

	s := New(testConfig(), func(provider, model string) (llm.Client, error) {
		if provider != "openai" {
			t.Fatalf("expected provider openai, got %q", provider)
		}
		if model != "gpt-4o-mini" {
			t.Fatalf("expected model gpt-4o-mini, got %q", model)
		}
		factoryCalls++
		return client, nil
	}, &claimMock{})
	s.sleep = func(time.Duration) {}

	got, err := s.Summarize(context.Background(), "interview_1", transcript)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "## Summary\nSolid candidate." {
		t.Fatalf("unexpected summary %q", got)
	}
	if client.calls != 1 || factoryCalls != 1 {
		t.Fatalf("expected 1 llm call and 1 factory call, got %d and %d", client.calls, factoryCalls)
	}
	if len(client.lastMessages) != 2 || client.lastMessages[0].Role != "system" {
		t.Fatalf("unexpected messages %#v", client.lastMessages)
	}
	if !strings.Contains(client.lastMessages[1].Content, "## Recommendation") {
		t.Fatalf("expected default evaluation template, got %q", client.lastMessages[1].Content)
	}
}

func TestSummarizeSkipsShortTranscript(t *testing.T) {
	client := &mockLLMClient{response: "should-not-be-used"}
	claims := &claimMock{}

	s := New(testConfig(), func(_, _ string) (llm.Client, error) {
		return client, nil
	}, claims)

	got, err := s.Summarize(context.Background(), "interview_1", "too short")
	if err != nil {
		t.Fatalf("Summarize returned error: %v", err)
	}
	if got != "" {
		t.Fatalf("expected empty summary, got %q", got)
	}
	if client.calls != 0 || len(claims.claims) != 0 {
		t.Fatalf("expected no llm call and no claim, got %d calls", client.calls)
	}
}

func TestSummarizeRendersTemplate(t *testing.T) {
	transcript := buildTranscript(25)
	client := &mockLLMClient{response: "ok"}

	cfg := testConfig()
	cfg.Prompt = "Date={{date}}\nBody={{transcript}}"
	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return client, nil
	}, nil)
	s.now = func() time.Time { return time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC) }

	if _, err := s.Summarize(context.Background(), "interview_1", transcript); err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}

	if !strings.Contains(client.lastMessages[1].Content, "Date=2026-03-01") {
		t.Fatalf("expected rendered date in user content, got %q", client.lastMessages[1].Content)
	}
	if !strings.Contains(client.lastMessages[1].Content, "Body="+transcript) {
		t.Fatalf("expected rendered transcript in user content, got %q", client.lastMessages[1].Content)
	}
}

func TestSummarizeClaimIsIdempotent(t *testing.T) {
	transcript := buildTranscript(30)
	client := &mockLLMClient{response: "ok"}
	s := New(testConfig(), func(_, _ string) (llm.Client, error) {
		return client, nil
	}, &claimMock{})

	if _, err := s.Summarize(context.Background(), "interview_1", transcript); err != nil {
		t.Fatalf("first Summarize failed: %v", err)
	}
	if _, err := s.Summarize(context.Background(), "interview_1", transcript); !errors.Is(err, ErrAlreadyRequested) {
		t.Fatalf("expected ErrAlreadyRequested, got %v", err)
	}
	if _, err := s.Summarize(context.Background(), "interview_2", transcript); err != nil {
		t.Fatalf("other session Summarize failed: %v", err)
	}
	if client.calls != 2 {
		t.Fatalf("expected 2 llm calls, got %d", client.calls)
	}
}

func TestSummarizeClaimError(t *testing.T) {
	s := New(testConfig(), func(_, _ string) (llm.Client, error) {
		t.Fatal("factory must not be called")
		return nil, nil
	}, &claimMock{err: errors.New("db locked")})

	_, err := s.Summarize(context.Background(), "interview_1", buildTranscript(25))
	if err == nil || !strings.Contains(err.Error(), "db locked") {
		t.Fatalf("expected claim error, got %v", err)
	}
}

func TestSummarizeRetries(t *testing.T) {
	transcript := buildTranscript(25)
	client := &mockLLMClient{response: "retry-success", err: errors.New("temporary"), failFirst: 2}
	var sleeps []time.Duration

	s := New(testConfig(), func(_, _ string) (llm.Client, error) {
		return client, nil
	}, nil)
	s.sleep = func(d time.Duration) {
		sleeps = append(sleeps, d)
	}

	got, err := s.Summarize(context.Background(), "interview_1", transcript)
	if err != nil {
		t.Fatalf("Summarize failed: %v", err)
	}
	if got != "retry-success" {
		t.Fatalf("expected retry-success, got %q", got)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 llm calls, got %d", client.calls)
	}
	if len(sleeps) != 2 || sleeps[0] != time.Second || sleeps[1] != 4*time.Second {
		t.Fatalf("unexpected sleep durations: %#v", sleeps)
	}
}

func TestSummarizeGivesUpAfterRetries(t *testing.T) {
	client := &mockLLMClient{err: errors.New("unavailable"), failFirst: 10}
	s := New(testConfig(), func(_, _ string) (llm.Client, error) {
		return client, nil
	}, nil)
	s.sleep = func(time.Duration) {}

	_, err := s.Summarize(context.Background(), "interview_1", buildTranscript(25))
	if err == nil || !strings.Contains(err.Error(), "after retries") {
		t.Fatalf("expected retries error, got %v", err)
	}
	if client.calls != 3 {
		t.Fatalf("expected 3 llm calls, got %d", client.calls)
	}
}

func TestSummarizeInvalidModel(t *testing.T) {
	cfg := testConfig()
	cfg.Model = "gpt-4o-mini"
	s := New(cfg, func(_, _ string) (llm.Client, error) {
		return &mockLLMClient{response: "ok"}, nil
	}, nil)

	_, err := s.Summarize(context.Background(), "interview_1", buildTranscript(25))
	if err == nil || !strings.Contains(err.Error(), "invalid model format") {
		t.Fatalf("expected invalid model error, got %v", err)
	}
}

func buildTranscript(wordCount int) string {
	words := make([]string, 0, wordCount)
	for i := 0; i < wordCount; i++ {
		words = append(words, "word")
	}
	return strings.Join(words, " ")
}
