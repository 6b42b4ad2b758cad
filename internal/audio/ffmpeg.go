package audio

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
)

// ErrToolUnavailable is returned when the ffmpeg binary cannot be found.
var ErrToolUnavailable = errors.New("media tool unavailable")

const maxErrOutput = 512

// FFmpeg implements Tool by shelling out to the ffmpeg binary.
type FFmpeg struct {
	bin string

	run func(ctx context.Context, dir, name string, args ...string) ([]byte, error)
}

func NewFFmpeg(bin string) *FFmpeg {
	if strings.TrimSpace(bin) == "" {
		bin = "ffmpeg"
	}
	return &FFmpeg{bin: bin, run: runCommand}
}

// Available reports whether the configured binary resolves.
func (f *FFmpeg) Available() bool {
	_, err := exec.LookPath(f.bin)
	return err == nil
}

func (f *FFmpeg) Transcode(ctx context.Context, in, out string, spec Spec) error {
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return fmt.Errorf("create transcode output directory: %w", err)
	}

	if output, err := f.run(ctx, "", f.bin, transcodeArgs(in, out, spec)...); err != nil {
		return fmt.Errorf("ffmpeg transcode %s: %w%s", filepath.Base(in), err, tail(output))
	}
	return nil
}

func (f *FFmpeg) Concat(ctx context.Context, files []string, out string) error {
	if len(files) == 0 {
		return errors.New("ffmpeg concat: no input files")
	}

	dir := filepath.Dir(files[0])
	var manifest strings.Builder
	for _, file := range files {
		if filepath.Dir(file) != dir {
			return fmt.Errorf("ffmpeg concat: %s is outside %s", file, dir)
		}
		fmt.Fprintf(&manifest, "file '%s'\n", escapeManifestName(filepath.Base(file)))
	}

	list, err := os.CreateTemp(dir, ".concat-*.txt")
	if err != nil {
		return fmt.Errorf("create concat manifest: %w", err)
	}
	listPath := list.Name()
	defer func() { _ = os.Remove(listPath) }()

	if _, err := list.WriteString(manifest.String()); err != nil {
		_ = list.Close()
		return fmt.Errorf("write concat manifest: %w", err)
	}
	if err := list.Close(); err != nil {
		return fmt.Errorf("close concat manifest: %w", err)
	}

	absOut, err := filepath.Abs(out)
	if err != nil {
		return fmt.Errorf("resolve concat output: %w", err)
	}

	args := []string{
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", filepath.Base(listPath),
		"-c", "copy",
		absOut,
	}
	if output, err := f.run(ctx, dir, f.bin, args...); err != nil {
		return fmt.Errorf("ffmpeg concat: %w%s", err, tail(output))
	}
	return nil
}

func transcodeArgs(in, out string, spec Spec) []string {
	args := []string{"-y", "-i", in, "-vn"}
	if spec.Codec != "" {
		args = append(args, "-codec:a", spec.Codec)
	}
	if spec.Quality != "" {
		args = append(args, "-qscale:a", spec.Quality)
	}
	if spec.SampleRate > 0 {
		args = append(args, "-ar", strconv.Itoa(spec.SampleRate))
	}
	if spec.Channels > 0 {
		args = append(args, "-ac", strconv.Itoa(spec.Channels))
	}
	return append(args, out)
}

// escapeManifestName quotes a filename for the concat demuxer's
// single-quoted syntax.
func escapeManifestName(name string) string {
	return strings.ReplaceAll(name, "'", `'\''`)
}

func runCommand(ctx context.Context, dir, name string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(name); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrToolUnavailable, err)
	}
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	return cmd.CombinedOutput()
}

func tail(output []byte) string {
	text := strings.TrimSpace(string(output))
	if text == "" {
		return ""
	}
	if len(text) > maxErrOutput {
		text = text[len(text)-maxErrOutput:]
	}
	return ": " + text
}
