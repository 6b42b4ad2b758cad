package audio

import "context"

// Spec describes the target of a transcode.
type Spec struct {
	Format     Format
	Codec      string
	SampleRate int
	Channels   int
	Quality    string
}

// TranscriptionSpec is 16 kHz mono 16-bit PCM in a WAV container.
var TranscriptionSpec = Spec{
	Format:     FormatWAV,
	Codec:      "pcm_s16le",
	SampleRate: 16000,
	Channels:   1,
}

// StorageSpec returns the canonical storage encoding for the given format.
func StorageSpec(format Format) Spec {
	switch format {
	case FormatMP3:
		return Spec{Format: FormatMP3, Codec: "libmp3lame", Quality: "2"}
	case FormatWAV:
		return Spec{Format: FormatWAV, Codec: "pcm_s16le"}
	case FormatOGG:
		return Spec{Format: FormatOGG, Codec: "libvorbis", Quality: "5"}
	default:
		return Spec{Format: format}
	}
}

// Tool normalizes and concatenates media files. All codec and container
// assumptions live behind it.
type Tool interface {
	Transcode(ctx context.Context, in, out string, spec Spec) error
	// Concat joins files, which must share one directory, into out without
	// re-encoding.
	Concat(ctx context.Context, files []string, out string) error
}
