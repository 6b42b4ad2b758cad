package recordings

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kwang/interview-server/internal/audio"
)

// KindResult reports the outcome for one media kind.
type KindResult struct {
	Inputs   int    `json:"inputs"`
	Output   string `json:"output,omitempty"`
	Combined bool   `json:"combined"`
	UpToDate bool   `json:"up_to_date,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Error    string `json:"error,omitempty"`
}

// CombineResult is reported, never raised: an empty session or a failing
// tool yields Success=false with Error set.
type CombineResult struct {
	SessionID string     `json:"session_id"`
	Success   bool       `json:"success"`
	Audio     KindResult `json:"audio"`
	Video     KindResult `json:"video"`
	Error     string     `json:"error,omitempty"`
}

// Combiner merges a session's fragments into one file per kind.
type Combiner struct {
	archive *Archive
	tool    audio.Tool
	timeout time.Duration
}

func NewCombiner(archive *Archive, tool audio.Tool, timeout time.Duration) *Combiner {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Combiner{archive: archive, tool: tool, timeout: timeout}
}

// Combine concatenates the session's audio files and its video files. It
// holds the session lock for the whole run so no ingest write interleaves.
// The returned error is non-nil only for an invalid session id.
func (c *Combiner) Combine(ctx context.Context, sessionID string) (CombineResult, error) {
	dir, err := c.archive.SessionDir(sessionID)
	if err != nil {
		return CombineResult{SessionID: sessionID, Error: err.Error()}, err
	}

	unlock := c.archive.Lock(sessionID)
	defer unlock()

	result := CombineResult{SessionID: sessionID}

	files, err := readFiles(dir)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	var audioInputs, videoInputs []fileEntry
	for _, f := range files {
		class, kind := c.archive.classify(f.name)
		if class != classMedia {
			continue
		}
		if kind.IsAudio() {
			audioInputs = append(audioInputs, f)
		} else {
			videoInputs = append(videoInputs, f)
		}
	}

	if len(audioInputs) == 0 && len(videoInputs) == 0 {
		result.Error = "no combinable media in session"
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		result.Audio = c.combineKind(ctx, dir, audioInputs, c.archive.combinedAudio)
		return nil
	})
	g.Go(func() error {
		result.Video = c.combineKind(ctx, dir, videoInputs, c.archive.combinedVideo)
		return nil
	})
	_ = g.Wait()

	result.Success = result.Audio.Combined || result.Video.Combined
	if !result.Success {
		var reasons []string
		if result.Audio.Error != "" {
			reasons = append(reasons, "audio: "+result.Audio.Error)
		}
		if result.Video.Error != "" {
			reasons = append(reasons, "video: "+result.Video.Error)
		}
		result.Error = "combine failed"
		if len(reasons) > 0 {
			result.Error += ": " + strings.Join(reasons, "; ")
		}
	}
	return result, nil
}

// combineKind expects inputs already in recording order.
func (c *Combiner) combineKind(ctx context.Context, dir string, inputs []fileEntry, outName string) KindResult {
	kr := KindResult{Inputs: len(inputs)}
	if len(inputs) == 0 {
		kr.Skipped = true
		return kr
	}

	outPath := filepath.Join(dir, outName)
	newest := inputs[0].modTime
	paths := make([]string, len(inputs))
	for i, in := range inputs {
		paths[i] = in.path
		if in.modTime.After(newest) {
			newest = in.modTime
		}
	}

	if info, err := os.Stat(outPath); err == nil && info.ModTime().After(newest) {
		kr.Output = outName
		kr.Combined = true
		kr.UpToDate = true
		return kr
	}

	if c.tool == nil {
		kr.Error = audio.ErrToolUnavailable.Error()
		return kr
	}

	tmpPath := filepath.Join(dir, ".partial-"+outName)
	if err := c.tool.Concat(ctx, paths, tmpPath); err != nil {
		_ = os.Remove(tmpPath)
		if errors.Is(err, audio.ErrToolUnavailable) {
			slog.Warn("combine: media tool unavailable", "dir", dir, "error", err)
		} else {
			slog.Warn("combine: concat failed", "dir", dir, "output", outName, "error", err)
		}
		kr.Error = err.Error()
		return kr
	}

	if err := os.Rename(tmpPath, outPath); err != nil {
		_ = os.Remove(tmpPath)
		kr.Error = fmt.Sprintf("move combined output: %v", err)
		return kr
	}

	kr.Output = outName
	kr.Combined = true
	return kr
}
