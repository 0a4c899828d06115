package auth

import "errors"

var (
	// ErrTokenInvalid is returned when a token fails signature, expiry or
	// claim validation.
	ErrTokenInvalid = errors.New("auth: invalid token")

	// ErrInvalidRole is returned when a token is requested for an unknown role.
	ErrInvalidRole = errors.New("auth: invalid role")

	// ErrMissingSecret is returned when signing without a secret.
	ErrMissingSecret = errors.New("auth: signing secret is required")
)
