package sensor

import (
	"fmt"
	"math"

	"github.com/nerrad567/gray-logic-access/internal/threshold"
)

// Detection is the classifier's verdict on one reading.
type Detection int

const (
	None Detection = iota
	Presence
	Tampering
)

// String returns the detection name.
func (d Detection) String() string {
	switch d {
	case Presence:
		return "PRESENCE"
	case Tampering:
		return "TAMPERING"
	default:
		return "NONE"
	}
}

// Thresholds supplies the current detection thresholds.
type Thresholds interface {
	Get(kind threshold.Kind) (float64, error)
}

// Baseline is the resting magnetometer vector measured at installation.
type Baseline struct {
	X, Y, Z float64
}

// Result describes one classified reading.
type Result struct {
	Detection Detection
	Kind      threshold.Kind

	// Value is the compared quantity: the squared-magnitude deviation for
	// the magnetometer, the distance for the ultrasonic sensor.
	Value float64

	// Measurement is Value formatted to three decimals, as written to the
	// audit chain.
	Measurement string
}

// Classifier applies the current thresholds to readings.
type Classifier struct {
	thresholds Thresholds
	baselineSq float64
}

// NewClassifier returns a Classifier comparing magnetometer samples against
// baseline.
func NewClassifier(thresholds Thresholds, baseline Baseline) *Classifier {
	return &Classifier{
		thresholds: thresholds,
		baselineSq: MagnetometerSample(baseline).MagnitudeSq(),
	}
}

// Classify parses raw and applies the matching threshold. A malformed
// reading returns ErrMalformedReading and no Result.
func (c *Classifier) Classify(raw string) (Result, error) {
	reading, err := Parse(raw)
	if err != nil {
		return Result{}, err
	}
	return c.ClassifyReading(reading)
}

// ClassifyReading applies the matching threshold to an already parsed
// reading.
func (c *Classifier) ClassifyReading(reading Reading) (Result, error) {
	limit, err := c.thresholds.Get(reading.Kind())
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", ErrThresholdUnavailable, reading.Kind(), err)
	}

	res := Result{Kind: reading.Kind()}
	switch r := reading.(type) {
	case MagnetometerSample:
		res.Value = math.Abs(r.MagnitudeSq() - c.baselineSq)
		if res.Value > limit {
			res.Detection = Tampering
		}
	case DistanceSample:
		res.Value = r.Distance
		if res.Value <= limit {
			res.Detection = Presence
		}
	default:
		return Result{}, fmt.Errorf("%w: unsupported reading %T", ErrMalformedReading, reading)
	}
	res.Measurement = FormatMeasurement(res.Value)
	return res, nil
}

// FormatMeasurement renders a value with three decimals.
func FormatMeasurement(v float64) string {
	return fmt.Sprintf("%.3f", v)
}
