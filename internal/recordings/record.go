package recordings

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/kwang/interview-server/internal/audio"
)

// Kind classifies a persisted media file.
type Kind string

const (
	KindCandidateAudio   Kind = "candidate-audio"
	KindInterviewerAudio Kind = "interviewer-audio"
	KindVideo            Kind = "video"
)

const (
	candidatePrefix   = "response_"
	interviewerPrefix = "interviewer_"
	videoPrefix       = "video_"

	candidateSidecarPrefix   = "metadata_"
	interviewerSidecarPrefix = "interviewer_metadata_"
	videoSidecarPrefix       = "video_metadata_"

	TranscriptFilename = "transcript.md"
)

var sessionIDPattern = regexp.MustCompile(`^[a-zA-Z0-9_-]{1,128}$`)

// Record describes one persisted media file. Timestamp is the ordering key
// for combination and is also stamped onto the file's mtime.
type Record struct {
	Timestamp  time.Time    `json:"timestamp"`
	Kind       Kind         `json:"kind"`
	Path       string       `json:"path"`
	Format     audio.Format `json:"format"`
	SizeBytes  int64        `json:"size_bytes"`
	Transcript string       `json:"transcript,omitempty"`
}

// Name returns the record's base filename.
func (r Record) Name() string {
	return filepath.Base(r.Path)
}

func ValidSessionID(id string) bool {
	return sessionIDPattern.MatchString(id)
}

// Stamp renders t as the sortable timestamp used in media filenames.
func Stamp(t time.Time) string {
	t = t.UTC()
	return t.Format("20060102_150405") + fmt.Sprintf("_%06d", t.Nanosecond()/int(time.Microsecond))
}

func (k Kind) prefix() string {
	switch k {
	case KindInterviewerAudio:
		return interviewerPrefix
	case KindVideo:
		return videoPrefix
	default:
		return candidatePrefix
	}
}

func (k Kind) sidecarPrefix() string {
	switch k {
	case KindInterviewerAudio:
		return interviewerSidecarPrefix
	case KindVideo:
		return videoSidecarPrefix
	default:
		return candidateSidecarPrefix
	}
}

// IsAudio reports whether files of this kind combine into the audio track.
func (k Kind) IsAudio() bool {
	return k == KindCandidateAudio || k == KindInterviewerAudio
}

type fileClass int

const (
	classOther fileClass = iota
	classMedia
	classSidecar
	classCombined
	classTranscript
)

// classify sorts a directory entry name into media kinds, sidecars, combined
// outputs and everything else. Hidden files are always other.
func (a *Archive) classify(name string) (fileClass, Kind) {
	if strings.HasPrefix(name, ".") {
		return classOther, ""
	}
	if name == a.combinedAudio || name == a.combinedVideo {
		return classCombined, ""
	}
	if name == TranscriptFilename {
		return classTranscript, ""
	}
	if strings.EqualFold(filepath.Ext(name), ".json") {
		return classSidecar, ""
	}

	format := audio.FormatOf(name)
	if !format.IsMedia() {
		return classOther, ""
	}

	switch {
	case strings.HasPrefix(name, interviewerPrefix):
		return classMedia, KindInterviewerAudio
	case strings.HasPrefix(name, videoPrefix):
		return classMedia, KindVideo
	case strings.HasPrefix(name, candidatePrefix):
		return classMedia, KindCandidateAudio
	case format.IsVideo():
		return classMedia, KindVideo
	default:
		return classMedia, KindCandidateAudio
	}
}
