package transcribe

import (
	"context"
	"fmt"
	"strings"

	api "github.com/deepgram/deepgram-go-sdk/v3/pkg/api/listen/v1/rest"
	interfaces "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/interfaces"
	client "github.com/deepgram/deepgram-go-sdk/v3/pkg/client/listen"

	"github.com/kwang/interview-server/internal/audio"
)

const defaultDeepgramModel = "nova-2"

// Deepgram transcribes through the prerecorded listen API.
type Deepgram struct {
	fromFile func(ctx context.Context, path string) (string, error)
}

func NewDeepgram(apiKey, model, language, host string) *Deepgram {
	if model == "" || model == "whisper-1" {
		model = defaultDeepgramModel
	}

	cOptions := &interfaces.ClientOptions{Host: host}
	tOptions := &interfaces.PreRecordedTranscriptionOptions{
		Model:       model,
		Language:    language,
		Punctuate:   true,
		SmartFormat: true,
	}
	dg := api.New(client.NewREST(apiKey, cOptions))

	return &Deepgram{
		fromFile: func(ctx context.Context, path string) (string, error) {
			res, err := dg.FromFile(ctx, path, tOptions)
			if err != nil {
				return "", err
			}
			if res == nil || res.Results == nil || len(res.Results.Channels) == 0 ||
				len(res.Results.Channels[0].Alternatives) == 0 {
				return "", nil
			}
			return res.Results.Channels[0].Alternatives[0].Transcript, nil
		},
	}
}

func (d *Deepgram) Accepts(format audio.Format) bool {
	return acceptsAny(format,
		audio.FormatWAV, audio.FormatMP3, audio.FormatOGG, audio.FormatWebM, audio.FormatFLAC, audio.FormatM4A)
}

func (d *Deepgram) Transcribe(ctx context.Context, path string) (string, error) {
	text, err := d.fromFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("deepgram transcription: %w", err)
	}
	return strings.TrimSpace(text), nil
}
