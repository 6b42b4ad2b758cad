package interview

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kwang/interview-server/internal/llm"
	"github.com/kwang/interview-server/internal/session"
)

const (
	SourceExternal = "external"
	SourceScripted = "scripted"
)

const kickoffPrompt = "The candidate has just joined. Greet them and ask them to introduce themselves."

// Request is what a ResponseSource sees for one interviewer turn. An empty
// Answer asks for the greeting.
type Request struct {
	History []session.Turn
	Answer  string
	Script  ScriptState
}

// Reply is one interviewer line plus the scripted topic it leaves in play.
type Reply struct {
	Text   string
	Topic  int
	Source string
}

// ResponseSource produces the next interviewer line.
type ResponseSource interface {
	Name() string
	Respond(ctx context.Context, req Request) (Reply, error)
}

// External asks a chat model for the next line.
type External struct {
	client       llm.Client
	systemPrompt string
}

func NewExternal(client llm.Client, systemPrompt string) *External {
	return &External{client: client, systemPrompt: systemPrompt}
}

func (e *External) Name() string { return SourceExternal }

func (e *External) Respond(ctx context.Context, req Request) (Reply, error) {
	messages := make([]llm.Message, 0, len(req.History)+2)
	if e.systemPrompt != "" {
		messages = append(messages, llm.Message{Role: "system", Content: e.systemPrompt})
	}
	if len(req.History) == 0 {
		messages = append(messages, llm.Message{Role: "user", Content: kickoffPrompt})
	}
	for _, turn := range req.History {
		role := "user"
		if turn.Role == session.RoleInterviewer {
			role = "assistant"
		}
		messages = append(messages, llm.Message{Role: role, Content: turn.Text})
	}

	text, err := e.client.Complete(ctx, messages)
	if err != nil {
		return Reply{}, fmt.Errorf("external response: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return Reply{}, errors.New("external response: empty reply")
	}
	return Reply{Text: text, Topic: req.Script.Topic, Source: SourceExternal}, nil
}

// Scripted answers from the fallback script. It never fails.
type Scripted struct {
	script *Script
}

func NewScripted(script *Script) *Scripted {
	return &Scripted{script: script}
}

func (s *Scripted) Name() string { return SourceScripted }

func (s *Scripted) Respond(_ context.Context, req Request) (Reply, error) {
	var step Step
	if req.Answer == "" && len(req.History) == 0 {
		step = s.script.Greeting()
	} else {
		step = s.script.Next(req.Script, req.Answer)
	}
	return Reply{Text: step.Text, Topic: step.Topic, Source: SourceScripted}, nil
}
