package access

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/credential"
	"github.com/nerrad567/gray-logic-access/internal/passcode"
)

// Orchestrator runs the access control state machine.
type Orchestrator struct {
	radio       Radio
	links       Links
	keypad      Keypad
	lock        Lock
	ledger      Ledger
	credentials Credentials
	classifier  Classifier
	telemetry   Telemetry
	logger      Logger
	timings     Timings
	now         func() time.Time

	// mu guards the fields below for Snapshot readers. Only the loop
	// goroutine writes them.
	mu          sync.RWMutex
	state       State
	previous    State
	event       Event
	currentUser *credential.Credential
	lastFailed  *credential.Credential
	observers   []Observer

	// Loop-local session state.
	verifier *passcode.Verifier
	syncSent int
}

// New validates deps and returns an Orchestrator in IDLE.
func New(deps Deps, timings Timings) (*Orchestrator, error) {
	required := []struct {
		name string
		ok   bool
	}{
		{"radio", deps.Radio != nil},
		{"links", deps.Links != nil},
		{"keypad", deps.Keypad != nil},
		{"lock", deps.Lock != nil},
		{"ledger", deps.Ledger != nil},
		{"credentials", deps.Credentials != nil},
		{"classifier", deps.Classifier != nil},
	}
	for _, r := range required {
		if !r.ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingDependency, r.name)
		}
	}

	o := &Orchestrator{
		radio:       deps.Radio,
		links:       deps.Links,
		keypad:      deps.Keypad,
		lock:        deps.Lock,
		ledger:      deps.Ledger,
		credentials: deps.Credentials,
		classifier:  deps.Classifier,
		telemetry:   deps.Telemetry,
		logger:      deps.Logger,
		timings:     timings,
		now:         time.Now,
		state:       StateIdle,
		previous:    StateIdle,
		event:       emptyEvent(),
	}
	if o.telemetry == nil {
		o.telemetry = noopTelemetry{}
	}
	if o.logger == nil {
		o.logger = noopLogger{}
	}
	return o, nil
}

// AddObserver registers o for transition and block notifications.
func (o *Orchestrator) AddObserver(obs Observer) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, obs)
}

// Run drives the loop until ctx is cancelled and then returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("control loop started", "state", o.State(), "poll", o.timings.Poll)
	for {
		if err := o.step(ctx); err != nil && ctx.Err() != nil {
			break
		}
		if err := o.sleep(ctx, o.timings.Poll); err != nil {
			break
		}
	}
	o.logger.Info("control loop stopped", "state", o.State())
	return ctx.Err()
}

// step evaluates the current state once.
func (o *Orchestrator) step(ctx context.Context) error {
	switch o.state {
	case StateIdle:
		return o.handleIdle(ctx)
	case StateSensorConnect:
		return o.handleSensorConnect(ctx)
	case StateSensorSync:
		return o.handleSensorSync(ctx)
	case StateSensorData:
		return o.handleSensorData(ctx)
	case StateSensorDisconnect:
		return o.handleSensorDisconnect(ctx)
	case StateMobileConnect:
		return o.handleMobileConnect(ctx)
	case StateMobileData:
		return o.handleMobileData(ctx)
	case StateMobileDisconnect:
		return o.handleMobileDisconnect(ctx)
	case StateTampering, StatePresence:
		o.transition(StateBlockchain)
		return nil
	case StateFail:
		return o.handleFail()
	case StateSuccess:
		return o.handleSuccess(ctx)
	case StateBlockchain:
		return o.handleBlockchain(ctx)
	default:
		o.logger.Error("invalid state, resetting", "state", o.state)
		o.transition(StateIdle)
		return nil
	}
}

func (o *Orchestrator) transition(next State) {
	o.mu.Lock()
	from := o.state
	o.previous = from
	o.state = next
	observers := o.observers
	o.mu.Unlock()

	o.logger.Debug("state transition", "from", from, "to", next)
	for _, obs := range observers {
		obs.StateChanged(from, next)
	}
}

// State returns the current state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.state
}

// Snapshot is a consistent view of the control state.
type Snapshot struct {
	State          State     `json:"state"`
	Previous       State     `json:"previous"`
	Event          Event     `json:"event"`
	CurrentUser    string    `json:"current_user,omitempty"`
	LastFailedUser string    `json:"last_failed_user,omitempty"`
	At             time.Time `json:"at"`
}

// Snapshot returns the current control state. Safe from any goroutine.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	s := Snapshot{
		State:    o.state,
		Previous: o.previous,
		Event:    o.event,
		At:       o.now().UTC(),
	}
	if o.currentUser != nil {
		s.CurrentUser = o.currentUser.Alias
	}
	if o.lastFailed != nil {
		s.LastFailedUser = o.lastFailed.Alias
	}
	return s
}

func (o *Orchestrator) setEvent(kind EventKind) {
	o.mu.Lock()
	o.event.Kind = kind
	o.event.Timestamp = o.now().Unix()
	o.mu.Unlock()
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
