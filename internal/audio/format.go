package audio

import (
	"mime"
	"path/filepath"
	"strings"
)

// Format is a media container identified by its canonical file extension
// (without the dot).
type Format string

const (
	FormatUnknown Format = ""
	FormatWAV     Format = "wav"
	FormatMP3     Format = "mp3"
	FormatWebM    Format = "webm"
	FormatOGG     Format = "ogg"
	FormatM4A     Format = "m4a"
	FormatFLAC    Format = "flac"
	FormatMP4     Format = "mp4"
	FormatMOV     Format = "mov"
	FormatAVI     Format = "avi"
	FormatMKV     Format = "mkv"
)

var extFormats = map[string]Format{
	".wav":  FormatWAV,
	".wave": FormatWAV,
	".mp3":  FormatMP3,
	".mpga": FormatMP3,
	".webm": FormatWebM,
	".weba": FormatWebM,
	".ogg":  FormatOGG,
	".oga":  FormatOGG,
	".opus": FormatOGG,
	".m4a":  FormatM4A,
	".aac":  FormatM4A,
	".flac": FormatFLAC,
	".mp4":  FormatMP4,
	".mov":  FormatMOV,
	".avi":  FormatAVI,
	".mkv":  FormatMKV,
}

var mimeFormats = map[string]Format{
	"audio/wav":        FormatWAV,
	"audio/x-wav":      FormatWAV,
	"audio/wave":       FormatWAV,
	"audio/mpeg":       FormatMP3,
	"audio/mp3":        FormatMP3,
	"audio/webm":       FormatWebM,
	"video/webm":       FormatWebM,
	"audio/ogg":        FormatOGG,
	"audio/mp4":        FormatM4A,
	"audio/x-m4a":      FormatM4A,
	"audio/aac":        FormatM4A,
	"audio/flac":       FormatFLAC,
	"audio/x-flac":     FormatFLAC,
	"video/mp4":        FormatMP4,
	"video/quicktime":  FormatMOV,
	"video/x-msvideo":  FormatAVI,
	"video/x-matroska": FormatMKV,
}

var contentTypes = map[string]string{
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".webm": "audio/webm",
	".ogg":  "audio/ogg",
	".m4a":  "audio/mp4",
	".flac": "audio/flac",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".avi":  "video/x-msvideo",
	".mkv":  "video/x-matroska",
	".json": "application/json",
	".md":   "text/markdown; charset=utf-8",
	".zip":  "application/zip",
}

// DetectFormat determines an upload's container from its filename and its
// declared content type. A recognised filename extension always wins.
func DetectFormat(filename, contentType string) Format {
	if f, ok := extFormats[strings.ToLower(filepath.Ext(filename))]; ok {
		return f
	}

	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	if f, ok := mimeFormats[strings.ToLower(mediaType)]; ok {
		return f
	}
	return FormatUnknown
}

// FormatOf returns the format implied by a path's extension.
func FormatOf(path string) Format {
	return extFormats[strings.ToLower(filepath.Ext(path))]
}

// Ext returns the extension for f including the leading dot, or ".bin" for
// unknown formats.
func (f Format) Ext() string {
	if f == FormatUnknown {
		return ".bin"
	}
	return "." + string(f)
}

// IsVideo reports whether f is normally a video container. WebM is treated
// as audio since the browser records both; callers decide by context.
func (f Format) IsVideo() bool {
	switch f {
	case FormatMP4, FormatMOV, FormatAVI, FormatMKV:
		return true
	default:
		return false
	}
}

// IsMedia reports whether f is any known audio or video container.
func (f Format) IsMedia() bool {
	return f != FormatUnknown
}

func ContentType(name string) string {
	if ct, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; ok {
		return ct
	}
	return "application/octet-stream"
}
