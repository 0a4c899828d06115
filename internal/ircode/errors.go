package ircode

import "errors"

var (
	// ErrEmpty is returned for an empty payload.
	ErrEmpty = errors.New("ircode: empty payload")

	// ErrInvalidHex is returned when a payload is not valid hex.
	ErrInvalidHex = errors.New("ircode: invalid hex payload")

	// ErrInvalidPronto is returned when a Pronto code cannot be converted.
	ErrInvalidPronto = errors.New("ircode: invalid pronto code")
)
