package ingest

import "errors"

var (
	ErrEmptyUpload     = errors.New("empty upload")
	ErrTooLarge        = errors.New("upload exceeds size limit")
	ErrSessionFinished = errors.New("session already finished")
	ErrNoTranscriber   = errors.New("transcription service not configured")
)
