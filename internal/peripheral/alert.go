package peripheral

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/chain"
)

// Alert asks the buzzer and camera to react to an outcome.
// Topic: accessnode/{node}/alert
type Alert struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Event     string    `json:"event"`
	User      string    `json:"user"`
	MAC       string    `json:"mac"`
	EventTime string    `json:"event_time"`
	BlockHash string    `json:"block_hash"`
}

// DefaultAlertQueue is the number of alerts held while the broker is slow.
const DefaultAlertQueue = 8

// Alerter publishes an Alert for every tampering, presence and failed
// entry recorded to the chain. Recorded runs on the control loop and only
// queues; a background goroutine publishes.
type Alerter struct {
	pub     Publisher
	topic   string
	logger  Logger
	alerts  chan Alert
	dropped atomic.Uint64

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ access.Observer = (*Alerter)(nil)

// NewAlerter creates an alerter publishing to topic.
func NewAlerter(pub Publisher, topic string) *Alerter {
	return &Alerter{
		pub:    pub,
		topic:  topic,
		logger: noopLogger{},
		alerts: make(chan Alert, DefaultAlertQueue),
		done:   make(chan struct{}),
	}
}

// SetLogger sets the logger.
func (a *Alerter) SetLogger(logger Logger) {
	a.logger = logger
}

// Start launches the publisher goroutine.
func (a *Alerter) Start(ctx context.Context) {
	a.wg.Add(1)
	go a.run(ctx)
}

// Stop publishes queued alerts and waits for the publisher to exit.
func (a *Alerter) Stop() {
	a.stopOnce.Do(func() {
		close(a.done)
	})
	a.wg.Wait()
}

// StateChanged is a no-op.
func (a *Alerter) StateChanged(_, _ access.State) {}

// Recorded queues an alert for alarming outcomes. It never blocks: when
// the queue is full the alert is dropped and counted.
func (a *Alerter) Recorded(b chain.Block) {
	switch b.Event {
	case access.EventTampering.String(), access.EventPresence.String(), access.EventFail.String():
	default:
		return
	}

	alert := Alert{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Event:     b.Event,
		User:      b.User,
		MAC:       b.MAC,
		EventTime: b.Timestamp,
		BlockHash: b.CurrHash,
	}
	select {
	case a.alerts <- alert:
	default:
		n := a.dropped.Add(1)
		a.logger.Error("alert queue full, alert dropped", "event", b.Event, "dropped_total", n)
	}
}

// Dropped returns the number of alerts lost to a full queue.
func (a *Alerter) Dropped() uint64 {
	return a.dropped.Load()
}

func (a *Alerter) run(ctx context.Context) {
	defer a.wg.Done()
	for {
		select {
		case alert := <-a.alerts:
			a.send(alert)
		case <-a.done:
			a.drain()
			return
		case <-ctx.Done():
			a.drain()
			return
		}
	}
}

func (a *Alerter) drain() {
	for {
		select {
		case alert := <-a.alerts:
			a.send(alert)
		default:
			return
		}
	}
}

func (a *Alerter) send(alert Alert) {
	payload, err := json.Marshal(alert)
	if err != nil {
		a.logger.Error("marshal alert", "error", err)
		return
	}
	if err := a.pub.Publish(a.topic, payload, 1, false); err != nil {
		a.logger.Error("publish alert", "event", alert.Event, "error", err)
		return
	}
	a.logger.Info("alert raised", "event", alert.Event, "user", alert.User)
}
