package summary

import "errors"

// ErrAlreadyRequested is returned when an identical transcript was already
// submitted for the session.
var ErrAlreadyRequested = errors.New("summary already requested")
