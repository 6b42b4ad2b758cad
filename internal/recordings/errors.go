package recordings

import "errors"

var (
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidFilename  = errors.New("invalid filename")
	ErrSessionNotFound  = errors.New("session recordings not found")
)
