package link

import "errors"

var (
	// ErrUnknownRole is returned for a role other than sensor or mobile.
	ErrUnknownRole = errors.New("link: unknown role")

	// ErrInvalidEvent is returned when a gateway message cannot be decoded.
	ErrInvalidEvent = errors.New("link: invalid gateway event")
)
