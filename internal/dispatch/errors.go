package dispatch

import "errors"

var (
	// ErrInvalidCommand is returned for structurally malformed commands.
	// It indicates a programming or client error, never a device problem.
	ErrInvalidCommand = errors.New("dispatch: invalid command")
)
