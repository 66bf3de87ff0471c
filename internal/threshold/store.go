package threshold

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
)

// Kind identifies one threshold.
type Kind string

const (
	// Ultrasonic is the distance at or below which Presence is detected.
	Ultrasonic Kind = "ultrasonic"

	// Magnetometer is the squared-magnitude deviation above which Tampering
	// is detected.
	Magnetometer Kind = "magnetometer"
)

// Kinds lists every threshold kind in display order.
func Kinds() []Kind {
	return []Kind{Ultrasonic, Magnetometer}
}

// ParseKind validates a kind name.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case Ultrasonic, Magnetometer:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ValidateValue checks that value parses as a finite, non-negative decimal.
func ValidateValue(value string) error {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("%w: %q", ErrInvalidValue, value)
	}
	return nil
}

// FormatValue renders v with three decimals.
func FormatValue(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

// Logger is the logging interface used by Store and Watcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Store is the thread-safe threshold store.
type Store struct {
	repo Repository

	mu     sync.RWMutex
	values map[Kind]string

	changes chan struct{}
	logger  Logger
}

// NewStore returns a Store seeded with defaults. repo may be nil, in which
// case values live only in memory.
func NewStore(repo Repository, defaults map[Kind]string) (*Store, error) {
	s := &Store{
		repo:    repo,
		values:  make(map[Kind]string, len(defaults)),
		changes: make(chan struct{}, 1),
		logger:  noopLogger{},
	}
	for _, kind := range Kinds() {
		v, ok := defaults[kind]
		if !ok {
			return nil, fmt.Errorf("%w: no default for %s", ErrInvalidValue, kind)
		}
		if err := ValidateValue(v); err != nil {
			return nil, fmt.Errorf("default %s: %w", kind, err)
		}
		s.values[kind] = strings.TrimSpace(v)
	}
	return s, nil
}

// SetLogger sets the logger.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Load overlays persisted values on the defaults. Stored values that no
// longer validate are skipped with a warning.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}

	stored, err := s.repo.Load(ctx)
	if err != nil {
		return fmt.Errorf("loading thresholds: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for kind, v := range stored {
		if _, err := ParseKind(string(kind)); err != nil {
			s.logger.Warn("ignoring stored threshold", "kind", kind, "error", err)
			continue
		}
		if err := ValidateValue(v); err != nil {
			s.logger.Warn("ignoring stored threshold", "kind", kind, "error", err)
			continue
		}
		s.values[kind] = v
	}
	return nil
}

// Get parses the current value of kind.
func (s *Store) Get(kind Kind) (float64, error) {
	raw, err := s.Value(kind)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidValue, raw)
	}
	return v, nil
}

// Value returns the stored text of kind.
func (s *Store) Value(kind Kind) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[kind]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	return v, nil
}

// All returns a copy of every threshold.
func (s *Store) All() map[Kind]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[Kind]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Set validates, persists and applies a new value. Setting the current
// value again is a no-op and does not signal Changes.
func (s *Store) Set(ctx context.Context, kind Kind, value string) error {
	if _, err := ParseKind(string(kind)); err != nil {
		return err
	}
	value = strings.TrimSpace(value)
	if err := ValidateValue(value); err != nil {
		return err
	}

	s.mu.Lock()
	if s.values[kind] == value {
		s.mu.Unlock()
		return nil
	}
	if s.repo != nil {
		if err := s.repo.Save(ctx, kind, value); err != nil {
			s.mu.Unlock()
			return fmt.Errorf("saving threshold %s: %w", kind, err)
		}
	}
	old := s.values[kind]
	s.values[kind] = value
	s.mu.Unlock()

	s.logger.Info("threshold updated", "kind", kind, "from", old, "to", value)
	s.notify()
	return nil
}

// SetFloat is Set with the value formatted to three decimals.
func (s *Store) SetFloat(ctx context.Context, kind Kind, v float64) error {
	return s.Set(ctx, kind, FormatValue(v))
}

// Changes fires after a Set changes a value. Bursts coalesce into a single
// pending signal.
func (s *Store) Changes() <-chan struct{} {
	return s.changes
}

func (s *Store) notify() {
	select {
	case s.changes <- struct{}{}:
	default:
	}
}
