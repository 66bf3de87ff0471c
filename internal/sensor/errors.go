package sensor

import "errors"

var (
	// ErrMalformedReading is returned when a reading has the wrong number of
	// fields or a field is not a number.
	ErrMalformedReading = errors.New("sensor: malformed reading")

	// ErrThresholdUnavailable is returned when the threshold store cannot
	// supply a usable value.
	ErrThresholdUnavailable = errors.New("sensor: threshold unavailable")
)
