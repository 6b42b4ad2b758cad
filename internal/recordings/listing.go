package recordings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Summary is the per-session row of the recordings listing.
type Summary struct {
	SessionID     string    `json:"session_id"`
	CreatedAt     time.Time `json:"created_at"`
	AudioFiles    int       `json:"audio_files"`
	VideoFiles    int       `json:"video_files"`
	MetadataFiles int       `json:"metadata_files"`
	CombinedAudio bool      `json:"combined_audio"`
	CombinedVideo bool      `json:"combined_video"`
	TotalFiles    int       `json:"total_files"`
}

// Detail is the file manifest of one session directory.
type Detail struct {
	SessionID        string   `json:"session_id"`
	InterviewerFiles []string `json:"interviewer_files"`
	CandidateFiles   []string `json:"candidate_files"`
	VideoFiles       []string `json:"video_files"`
	MetadataFiles    []string `json:"metadata_files"`
	Transcript       string   `json:"transcript,omitempty"`
	CombinedAudio    string   `json:"combined_audio,omitempty"`
	CombinedVideo    string   `json:"combined_video,omitempty"`
	TotalFiles       int      `json:"total_files"`
}

type fileEntry struct {
	name    string
	path    string
	modTime time.Time
}

// List scans every session directory, newest first.
func (a *Archive) List() ([]Summary, error) {
	entries, err := os.ReadDir(a.root)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return []Summary{}, nil
		}
		return nil, fmt.Errorf("read recordings directory: %w", err)
	}

	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() || !ValidSessionID(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		detail, err := a.Detail(entry.Name())
		if err != nil {
			continue
		}

		summaries = append(summaries, Summary{
			SessionID:     entry.Name(),
			CreatedAt:     info.ModTime().UTC(),
			AudioFiles:    len(detail.CandidateFiles) + len(detail.InterviewerFiles),
			VideoFiles:    len(detail.VideoFiles),
			MetadataFiles: len(detail.MetadataFiles),
			CombinedAudio: detail.CombinedAudio != "",
			CombinedVideo: detail.CombinedVideo != "",
			TotalFiles:    detail.TotalFiles,
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].SessionID > summaries[j].SessionID
	})
	return summaries, nil
}

// Detail lists a session's files grouped by role. Files within a group are
// in recording order.
func (a *Archive) Detail(sessionID string) (Detail, error) {
	dir, err := a.SessionDir(sessionID)
	if err != nil {
		return Detail{}, err
	}

	files, err := readFiles(dir)
	if err != nil {
		return Detail{}, err
	}

	d := Detail{
		SessionID:        sessionID,
		InterviewerFiles: []string{},
		CandidateFiles:   []string{},
		VideoFiles:       []string{},
		MetadataFiles:    []string{},
	}
	for _, f := range files {
		class, kind := a.classify(f.name)
		switch class {
		case classMedia:
			switch kind {
			case KindInterviewerAudio:
				d.InterviewerFiles = append(d.InterviewerFiles, f.name)
			case KindVideo:
				d.VideoFiles = append(d.VideoFiles, f.name)
			default:
				d.CandidateFiles = append(d.CandidateFiles, f.name)
			}
		case classSidecar:
			d.MetadataFiles = append(d.MetadataFiles, f.name)
		case classCombined:
			if f.name == a.combinedAudio {
				d.CombinedAudio = f.name
			} else {
				d.CombinedVideo = f.name
			}
		case classTranscript:
			d.Transcript = f.name
		default:
			continue
		}
		d.TotalFiles++
	}
	return d, nil
}

// FilePath resolves a file inside a session directory, refusing anything
// that is not a plain visible file name.
func (a *Archive) FilePath(sessionID, name string) (string, error) {
	dir, err := a.SessionDir(sessionID)
	if err != nil {
		return "", err
	}
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidFilename, name)
	}

	path := filepath.Join(dir, name)
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return "", fmt.Errorf("%w: %q is not a file", ErrInvalidFilename, name)
	}
	return path, nil
}

// readFiles returns the regular files of dir sorted by mtime, then name.
func readFiles(dir string) ([]fileEntry, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, filepath.Base(dir))
		}
		return nil, fmt.Errorf("read session directory: %w", err)
	}

	files := make([]fileEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		files = append(files, fileEntry{
			name:    entry.Name(),
			path:    filepath.Join(dir, entry.Name()),
			modTime: info.ModTime(),
		})
	}

	sort.SliceStable(files, func(i, j int) bool {
		if !files[i].modTime.Equal(files[j].modTime) {
			return files[i].modTime.Before(files[j].modTime)
		}
		return files[i].name < files[j].name
	})
	return files, nil
}
