package deepquery

import "errors"

var (
	// ErrDurationUnknown means the recording's length could not be determined.
	ErrDurationUnknown = errors.New("could not determine audio duration")
	// ErrNoWindows means no window survived planning and extraction.
	ErrNoWindows = errors.New("no windows to query")
	ErrInvalidParams = errors.New("invalid deep query parameters")
)
