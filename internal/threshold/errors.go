package threshold

import "errors"

var (
	// ErrUnknownKind is returned for a kind other than ultrasonic or magnetometer.
	ErrUnknownKind = errors.New("threshold: unknown kind")

	// ErrInvalidValue is returned when a value is not a finite, non-negative decimal.
	ErrInvalidValue = errors.New("threshold: invalid value")
)
