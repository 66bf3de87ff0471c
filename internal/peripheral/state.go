package peripheral

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/chain"
)

// SnapshotSource provides the control loop state.
type SnapshotSource interface {
	Snapshot() access.Snapshot
}

// StateReporter republishes the control loop snapshot, retained, on every
// transition so panels and dashboards see the current state on subscribe.
//
// Snapshots are taken on the loop goroutine and handed to a background
// publisher. Only the newest unsent snapshot is kept: the topic is
// retained, so a subscriber only ever needs the latest state.
type StateReporter struct {
	pub    Publisher
	topic  string
	source SnapshotSource
	logger Logger

	mu      sync.Mutex // serialises replacing the pending snapshot
	pending chan access.Snapshot

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

var _ access.Observer = (*StateReporter)(nil)

// NewStateReporter creates a reporter publishing source's snapshot to topic.
func NewStateReporter(pub Publisher, topic string, source SnapshotSource) *StateReporter {
	return &StateReporter{
		pub:     pub,
		topic:   topic,
		source:  source,
		logger:  noopLogger{},
		pending: make(chan access.Snapshot, 1),
		done:    make(chan struct{}),
	}
}

// SetLogger sets the logger.
func (r *StateReporter) SetLogger(logger Logger) {
	r.logger = logger
}

// Start launches the publisher goroutine.
func (r *StateReporter) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

// Stop publishes a pending snapshot and waits for the publisher to exit.
func (r *StateReporter) Stop() {
	r.stopOnce.Do(func() {
		close(r.done)
	})
	r.wg.Wait()
}

// StateChanged queues the current snapshot. It never blocks.
func (r *StateReporter) StateChanged(_, _ access.State) {
	r.Publish()
}

// Recorded is a no-op; the transition that follows republishes state.
func (r *StateReporter) Recorded(chain.Block) {}

// Publish queues the current snapshot, replacing one not yet sent.
func (r *StateReporter) Publish() {
	snap := r.source.Snapshot()

	r.mu.Lock()
	defer r.mu.Unlock()
	select {
	case <-r.pending:
	default:
	}
	r.pending <- snap
}

func (r *StateReporter) run(ctx context.Context) {
	defer r.wg.Done()
	for {
		select {
		case snap := <-r.pending:
			r.send(snap)
		case <-r.done:
			r.flush()
			return
		case <-ctx.Done():
			r.flush()
			return
		}
	}
}

func (r *StateReporter) flush() {
	select {
	case snap := <-r.pending:
		r.send(snap)
	default:
	}
}

func (r *StateReporter) send(snap access.Snapshot) {
	payload, err := json.Marshal(snap)
	if err != nil {
		r.logger.Error("marshal state snapshot", "error", err)
		return
	}
	if err := r.pub.Publish(r.topic, payload, 1, true); err != nil {
		r.logger.Warn("publish state snapshot", "error", err)
	}
}
