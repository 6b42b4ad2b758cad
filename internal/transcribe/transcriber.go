package transcribe

import (
	"context"
	"fmt"
	"strings"

	"github.com/kwang/interview-server/internal/audio"
	"github.com/kwang/interview-server/internal/config"
)

// Transcriber turns a recorded file into text.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) (string, error)
	// Accepts reports whether the service consumes format directly.
	Accepts(format audio.Format) bool
}

type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL points the provider at another endpoint.
func WithBaseURL(url string) Option {
	return func(o *options) {
		o.baseURL = url
	}
}

// New builds the transcriber named by cfg.Provider.
func New(cfg config.Transcription, apiKey string, opts ...Option) (Transcriber, error) {
	o := &options{}
	for _, opt := range opts {
		opt(o)
	}

	if strings.TrimSpace(apiKey) == "" {
		return nil, fmt.Errorf("transcription provider %q: missing API key", cfg.Provider)
	}

	switch cfg.Provider {
	case "openai":
		return NewOpenAI(apiKey, cfg.Model, cfg.Language, o.baseURL), nil
	case "deepgram":
		return NewDeepgram(apiKey, cfg.Model, cfg.Language, o.baseURL), nil
	default:
		return nil, fmt.Errorf("unknown transcription provider %q: supported providers are openai, deepgram", cfg.Provider)
	}
}

func acceptsAny(format audio.Format, accepted ...audio.Format) bool {
	for _, f := range accepted {
		if f == format {
			return true
		}
	}
	return false
}
