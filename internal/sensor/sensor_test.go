package sensor

import (
	"errors"
	"testing"

	"github.com/nerrad567/gray-logic-access/internal/threshold"
)

// fixedThresholds is a Thresholds with constant values.
type fixedThresholds map[threshold.Kind]float64

func (f fixedThresholds) Get(kind threshold.Kind) (float64, error) {
	v, ok := f[kind]
	if !ok {
		return 0, threshold.ErrUnknownKind
	}
	return v, nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    Reading
		wantErr bool
	}{
		{"magnetometer", "-0.845,0.505,0.200", MagnetometerSample{X: -0.845, Y: 0.505, Z: 0.2}, false},
		{"magnetometer with spaces", " 1.0, 2.0 ,3.0\n", MagnetometerSample{X: 1, Y: 2, Z: 3}, false},
		{"distance", "0.075", DistanceSample{Distance: 0.075}, false},
		{"distance with NUL padding", "0.500\x00\x00", DistanceSample{Distance: 0.5}, false},
		{"one comma", "1.0,2.0", nil, true},
		{"three commas", "1,2,3,4", nil, true},
		{"empty", "", nil, true},
		{"not a number", "abc", nil, true},
		{"bad axis", "1.0,x,3.0", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.raw)
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedReading) {
					t.Fatalf("Parse() error = %v, want ErrMalformedReading", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Parse() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestClassify_MagnetometerBoundaryIsExclusive(t *testing.T) {
	// Baseline at the origin makes mag_sq the deviation itself.
	c := NewClassifier(fixedThresholds{threshold.Magnetometer: 0.25, threshold.Ultrasonic: 0.08}, Baseline{})

	tests := []struct {
		name string
		raw  string
		want Detection
		meas string
	}{
		{"below", "0.4,0,0", None, "0.160"},
		{"equal", "0.5,0,0", None, "0.250"},
		{"above", "0.6,0,0", Tampering, "0.360"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(tt.raw)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if res.Detection != tt.want {
				t.Errorf("Detection = %v, want %v", res.Detection, tt.want)
			}
			if res.Kind != threshold.Magnetometer {
				t.Errorf("Kind = %v, want magnetometer", res.Kind)
			}
			if res.Measurement != tt.meas {
				t.Errorf("Measurement = %q, want %q", res.Measurement, tt.meas)
			}
		})
	}
}

func TestClassify_MagnetometerDeviationIsAbsolute(t *testing.T) {
	c := NewClassifier(fixedThresholds{threshold.Magnetometer: 0.05}, Baseline{X: -0.845, Y: 0.505, Z: 0.200})

	tests := []struct {
		name string
		raw  string
		want Detection
	}{
		{"at rest", "-0.845,0.505,0.200", None},
		{"field weakened", "-0.5,0.3,0.1", Tampering},
		{"field strengthened", "-1.2,0.8,0.4", Tampering},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(tt.raw)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if res.Detection != tt.want {
				t.Errorf("Detection = %v (value %s), want %v", res.Detection, res.Measurement, tt.want)
			}
			if res.Value < 0 {
				t.Errorf("Value = %v, deviation must be non-negative", res.Value)
			}
		})
	}
}

func TestClassify_DistanceBoundaryIsInclusive(t *testing.T) {
	c := NewClassifier(fixedThresholds{threshold.Ultrasonic: 0.080, threshold.Magnetometer: 0.05}, Baseline{})

	tests := []struct {
		name string
		raw  string
		want Detection
		meas string
	}{
		{"closer", "0.030", Presence, "0.030"},
		{"equal", "0.080", Presence, "0.080"},
		{"further", "0.081", None, "0.081"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Classify(tt.raw)
			if err != nil {
				t.Fatalf("Classify() error = %v", err)
			}
			if res.Detection != tt.want {
				t.Errorf("Detection = %v, want %v", res.Detection, tt.want)
			}
			if res.Measurement != tt.meas {
				t.Errorf("Measurement = %q, want %q", res.Measurement, tt.meas)
			}
		})
	}
}

func TestClassify_UsesCurrentThreshold(t *testing.T) {
	store, err := threshold.NewStore(nil, map[threshold.Kind]string{
		threshold.Ultrasonic:   "0.080",
		threshold.Magnetometer: "0.050",
	})
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}
	c := NewClassifier(store, Baseline{})

	res, _ := c.Classify("0.100")
	if res.Detection != None {
		t.Fatalf("Detection = %v before threshold change, want None", res.Detection)
	}

	if err := store.Set(t.Context(), threshold.Ultrasonic, "0.150"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}

	res, _ = c.Classify("0.100")
	if res.Detection != Presence {
		t.Errorf("Detection = %v after threshold change, want Presence", res.Detection)
	}
}

func TestClassify_Errors(t *testing.T) {
	c := NewClassifier(fixedThresholds{threshold.Ultrasonic: 0.08}, Baseline{})

	if _, err := c.Classify("1,2"); !errors.Is(err, ErrMalformedReading) {
		t.Errorf("Classify(malformed) error = %v, want ErrMalformedReading", err)
	}
	if _, err := c.Classify("1,2,3"); !errors.Is(err, ErrThresholdUnavailable) {
		t.Errorf("Classify(no magnetometer threshold) error = %v, want ErrThresholdUnavailable", err)
	}
}

func TestDetectionString(t *testing.T) {
	tests := []struct {
		d    Detection
		want string
	}{
		{None, "NONE"},
		{Presence, "PRESENCE"},
		{Tampering, "TAMPERING"},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.d, got, tt.want)
		}
	}
}
