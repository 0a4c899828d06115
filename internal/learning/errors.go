package learning

import "errors"

var (
	// ErrTimeout is reported in Result.Err when nothing was captured in time.
	ErrTimeout = errors.New("learning: timed out waiting for a code")

	// ErrNoFrequency is reported when the RF sweep never locked.
	ErrNoFrequency = errors.New("learning: no RF frequency found")

	// ErrCanceled is reported when the session was canceled.
	ErrCanceled = errors.New("learning: canceled")
)
