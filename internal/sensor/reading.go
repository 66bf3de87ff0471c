package sensor

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/nerrad567/gray-logic-access/internal/threshold"
)

// Reading is one parsed sample. It is either a MagnetometerSample or a
// DistanceSample.
type Reading interface {
	// Kind names the threshold that applies to this reading.
	Kind() threshold.Kind
}

// MagnetometerSample is a three-axis field measurement.
type MagnetometerSample struct {
	X, Y, Z float64
}

// Kind implements Reading.
func (MagnetometerSample) Kind() threshold.Kind { return threshold.Magnetometer }

// MagnitudeSq returns x²+y²+z².
func (m MagnetometerSample) MagnitudeSq() float64 {
	return m.X*m.X + m.Y*m.Y + m.Z*m.Z
}

// DistanceSample is a single range measurement.
type DistanceSample struct {
	Distance float64
}

// Kind implements Reading.
func (DistanceSample) Kind() threshold.Kind { return threshold.Ultrasonic }

// Parse decodes a raw reading. Surrounding whitespace and trailing NUL
// bytes left by the radio are ignored.
func Parse(raw string) (Reading, error) {
	raw = strings.TrimRight(raw, "\x00")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty", ErrMalformedReading)
	}

	fields := strings.Split(raw, ",")
	switch len(fields) {
	case 3:
		var axes [3]float64
		for i, f := range fields {
			v, err := parseField(f)
			if err != nil {
				return nil, err
			}
			axes[i] = v
		}
		return MagnetometerSample{X: axes[0], Y: axes[1], Z: axes[2]}, nil
	case 1:
		v, err := parseField(fields[0])
		if err != nil {
			return nil, err
		}
		return DistanceSample{Distance: v}, nil
	default:
		return nil, fmt.Errorf("%w: %d fields in %q", ErrMalformedReading, len(fields), raw)
	}
}

func parseField(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a number", ErrMalformedReading, s)
	}
	return v, nil
}
