package access

import (
	"context"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/chain"
	"github.com/nerrad567/gray-logic-access/internal/credential"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-access/internal/link"
	"github.com/nerrad567/gray-logic-access/internal/sensor"
)

// Radio starts and stops links and writes to the connected peer.
type Radio interface {
	BeginDiscovery(ctx context.Context, role link.Role, allow []string) error
	Teardown(ctx context.Context, role link.Role) error
	Send(ctx context.Context, role link.Role, payload []byte) error
}

// Links is the control-loop side of the link bus.
type Links interface {
	WaitConnected(ctx context.Context, role link.Role, timeout time.Duration) (bool, error)
	WaitDisconnected(ctx context.Context, role link.Role) error
	LinkLost(role link.Role) bool
	NextReading() (string, bool)
	NextPeer() (string, bool)
}

// Keypad is polled once per pass while a phone is paired. Drain discards
// presses made outside a session and reports how many there were.
type Keypad interface {
	ScanOnce() (rune, bool)
	Drain() int
}

// Lock flips the latch. The result is logged, never acted on.
type Lock interface {
	Toggle(ctx context.Context) error
}

// Ledger appends outcomes to the audit chain.
type Ledger interface {
	Append(e chain.Entry) (chain.Block, error)
}

// Credentials resolves paired phones.
type Credentials interface {
	Allowed(excludeAlias string) []string
	LookupMAC(mac string) (credential.Credential, bool)
}

// Classifier turns raw sensor readings into detections.
type Classifier interface {
	Classify(raw string) (sensor.Result, error)
}

// Telemetry records measurements and outcomes. Optional.
type Telemetry interface {
	RecordMeasurement(kind string, value float64, detected bool)
	RecordOutcome(event, user string)
}

// Observer is notified of transitions and appended blocks. Callbacks run
// on the loop goroutine and must not block.
type Observer interface {
	StateChanged(from, to State)
	Recorded(b chain.Block)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Radio       Radio
	Links       Links
	Keypad      Keypad
	Lock        Lock
	Ledger      Ledger
	Credentials Credentials
	Classifier  Classifier
	Telemetry   Telemetry
	Logger      Logger
}

// Logger is the logging interface used by the Orchestrator.
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

type noopTelemetry struct{}

func (noopTelemetry) RecordMeasurement(string, float64, bool) {}
func (noopTelemetry) RecordOutcome(string, string)            {}

// Timings are the loop's fixed delays.
type Timings struct {
	Poll                 time.Duration
	Idle                 time.Duration
	SensorSettle         time.Duration
	MobileConnectTimeout time.Duration
	MobileSettle         time.Duration
	MobileTeardownSettle time.Duration
	SuccessDelay         time.Duration
	BlockchainDelay      time.Duration

	// FeedbackGap separates consecutive messages to the paired display.
	FeedbackGap time.Duration

	// SyncCount is the number of time-sync writes before sensor data is read.
	SyncCount int

	// SensorPeer is the address of the sensor board.
	SensorPeer string
}

const defaultFeedbackGap = 100 * time.Millisecond

// TimingsFromConfig converts the node configuration.
func TimingsFromConfig(cfg config.NodeConfig) Timings {
	return Timings{
		Poll:                 config.Millis(cfg.PollInterval),
		Idle:                 config.Millis(cfg.IdleDelay),
		SensorSettle:         config.Millis(cfg.SensorSettle),
		MobileConnectTimeout: config.Millis(cfg.MobileConnectTimeout),
		MobileSettle:         config.Millis(cfg.MobileSettle),
		MobileTeardownSettle: config.Millis(cfg.MobileTeardownSettle),
		SuccessDelay:         config.Millis(cfg.SuccessDelay),
		BlockchainDelay:      config.Millis(cfg.BlockchainDelay),
		FeedbackGap:          defaultFeedbackGap,
		SyncCount:            cfg.SyncCount,
		SensorPeer:           cfg.SensorPeer,
	}
}
