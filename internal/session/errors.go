package session

import "errors"

var (
	// ErrSessionNotFound is returned when no live session matches an id.
	ErrSessionNotFound = errors.New("session not found")
	// ErrConnectionInUse is returned by Create when the connection already owns a session.
	ErrConnectionInUse = errors.New("connection already owns a session")
	ErrTurnOutOfOrder  = errors.New("turn out of order")
	ErrMediaOutOfOrder = errors.New("media record out of order")
	ErrDuplicateMedia  = errors.New("duplicate media record")
	// ErrInvalidTransition is returned for a state change the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid state transition")
)
