package transcribe

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/kwang/interview-server/internal/audio"
)

// OpenAI transcribes through the Whisper API.
type OpenAI struct {
	client   *openai.Client
	model    string
	language string
}

func NewOpenAI(apiKey, model, language, baseURL string) *OpenAI {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	if model == "" {
		model = openai.Whisper1
	}
	return &OpenAI{client: openai.NewClientWithConfig(cfg), model: model, language: language}
}

// Accepts excludes webm so browser recorder chunks are normalized first.
func (o *OpenAI) Accepts(format audio.Format) bool {
	return acceptsAny(format,
		audio.FormatWAV, audio.FormatMP3, audio.FormatM4A, audio.FormatMP4, audio.FormatFLAC, audio.FormatOGG)
}

func (o *OpenAI) Transcribe(ctx context.Context, path string) (string, error) {
	resp, err := o.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    o.model,
		FilePath: path,
		Language: o.language,
		Format:   openai.AudioResponseFormatJSON,
	})
	if err != nil {
		return "", fmt.Errorf("openai transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}
