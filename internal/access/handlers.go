package access

import (
	"context"
	"encoding/binary"
	"errors"
	"strconv"

	"github.com/nerrad567/gray-logic-access/internal/chain"
	"github.com/nerrad567/gray-logic-access/internal/link"
	"github.com/nerrad567/gray-logic-access/internal/passcode"
	"github.com/nerrad567/gray-logic-access/internal/sensor"
	"github.com/nerrad567/gray-logic-access/internal/threshold"
)

// Audit subjects for outcomes with no credential.
const (
	subjectIntruder = "Intruder"
	subjectVisitor  = "Visitor"
)

func (o *Orchestrator) handleIdle(ctx context.Context) error {
	if err := o.sleep(ctx, o.timings.Idle); err != nil {
		return err
	}

	o.mu.Lock()
	o.event = emptyEvent()
	o.currentUser = nil
	o.mu.Unlock()
	o.verifier = nil
	o.syncSent = 0

	o.transition(StateSensorConnect)
	return nil
}

func (o *Orchestrator) handleSensorConnect(ctx context.Context) error {
	if err := o.radio.BeginDiscovery(ctx, link.RoleSensor, []string{o.timings.SensorPeer}); err != nil {
		o.logger.Warn("sensor discovery failed", "state", StateSensorConnect, "peer", o.timings.SensorPeer, "error", err)
		return err
	}
	if _, err := o.links.WaitConnected(ctx, link.RoleSensor, 0); err != nil {
		return err
	}

	o.syncSent = 0
	o.transition(StateSensorSync)
	return nil
}

func (o *Orchestrator) handleSensorSync(ctx context.Context) error {
	if o.links.LinkLost(link.RoleSensor) {
		o.logger.Warn("sensor link lost during sync", "state", StateSensorSync)
		o.transition(StateSensorConnect)
		return nil
	}

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, uint64(o.now().UnixMilli()))
	if err := o.radio.Send(ctx, link.RoleSensor, payload); err != nil {
		o.logger.Warn("time sync write failed", "state", StateSensorSync, "error", err)
	}

	o.syncSent++
	if o.syncSent >= o.timings.SyncCount {
		o.transition(StateSensorData)
	}
	return nil
}

func (o *Orchestrator) handleSensorData(_ context.Context) error {
	for {
		raw, ok := o.links.NextReading()
		if !ok {
			break
		}
		if o.classify(raw) {
			o.transition(StateSensorDisconnect)
			return nil
		}
	}

	if o.links.LinkLost(link.RoleSensor) {
		o.logger.Warn("sensor link lost, reconnecting", "state", StateSensorData)
		o.transition(StateSensorConnect)
	}
	return nil
}

// classify runs one reading through the classifier, records the
// measurement, and reports whether it raised an event.
func (o *Orchestrator) classify(raw string) bool {
	res, err := o.classifier.Classify(raw)
	if err != nil {
		o.logger.Debug("discarding sensor reading", "state", StateSensorData, "reading", raw, "error", err)
		return false
	}

	detected := res.Detection != sensor.None
	o.telemetry.RecordMeasurement(string(res.Kind), res.Value, detected)

	o.mu.Lock()
	switch res.Kind {
	case threshold.Magnetometer:
		o.event.MagMeas = res.Measurement
	case threshold.Ultrasonic:
		o.event.UltraMeas = res.Measurement
	}
	o.mu.Unlock()

	switch res.Detection {
	case sensor.Tampering:
		o.setEvent(EventTampering)
	case sensor.Presence:
		o.setEvent(EventPresence)
	default:
		return false
	}
	o.logger.Info("sensor event detected", "event", res.Detection, "kind", res.Kind, "measurement", res.Measurement)
	return true
}

func (o *Orchestrator) handleSensorDisconnect(ctx context.Context) error {
	if err := o.radio.Teardown(ctx, link.RoleSensor); err != nil {
		o.logger.Warn("sensor teardown failed", "state", StateSensorDisconnect, "error", err)
		return err
	}
	if err := o.links.WaitDisconnected(ctx, link.RoleSensor); err != nil {
		return err
	}
	if err := o.sleep(ctx, o.timings.SensorSettle); err != nil {
		return err
	}
	o.transition(StateMobileConnect)
	return nil
}

func (o *Orchestrator) handleMobileConnect(ctx context.Context) error {
	o.mu.RLock()
	exclude := ""
	if o.lastFailed != nil {
		exclude = o.lastFailed.Alias
	}
	o.mu.RUnlock()

	allow := o.credentials.Allowed(exclude)
	paired := false
	if len(allow) == 0 {
		o.logger.Debug("no credentials eligible for pairing", "state", StateMobileConnect, "excluded", exclude)
		if err := o.sleep(ctx, o.timings.MobileConnectTimeout); err != nil {
			return err
		}
	} else {
		if err := o.radio.BeginDiscovery(ctx, link.RoleMobile, allow); err != nil {
			o.logger.Warn("mobile discovery failed", "state", StateMobileConnect, "error", err)
			return err
		}
		ok, err := o.links.WaitConnected(ctx, link.RoleMobile, o.timings.MobileConnectTimeout)
		if err != nil {
			return err
		}
		paired = ok
	}

	if !paired {
		o.mu.RLock()
		kind := o.event.Kind
		o.mu.RUnlock()
		switch kind {
		case EventTampering:
			o.transition(StateTampering)
		case EventPresence:
			o.transition(StatePresence)
		}
		return nil
	}

	peer, _ := o.links.NextPeer()
	cred, found := o.credentials.LookupMAC(peer)
	if !found || (exclude != "" && cred.Alias == exclude) {
		o.logger.Warn("rejecting paired peer", "state", StateMobileConnect, "peer", peer, "known", found)
		return o.dropMobile(ctx)
	}

	o.mu.Lock()
	o.currentUser = &cred
	o.mu.Unlock()
	if n := o.keypad.Drain(); n > 0 {
		o.logger.Debug("discarding key presses from before pairing", "state", StateMobileConnect, "keys", n)
	}
	o.verifier = passcode.New(cred.Passcode)

	o.logger.Info("credential paired", "user", cred.Alias, "peer", peer)
	o.transition(StateMobileData)
	return nil
}

// dropMobile tears down a mobile link that must not proceed and waits, at
// most the connect timeout, for it to go.
func (o *Orchestrator) dropMobile(ctx context.Context) error {
	if err := o.radio.Teardown(ctx, link.RoleMobile); err != nil {
		o.logger.Warn("mobile teardown failed", "state", o.State(), "error", err)
		return err
	}
	waitCtx, cancel := context.WithTimeout(ctx, o.timings.MobileConnectTimeout)
	defer cancel()
	if err := o.links.WaitDisconnected(waitCtx, link.RoleMobile); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if errors.Is(err, context.DeadlineExceeded) {
			o.logger.Warn("mobile teardown not confirmed", "state", o.State())
		}
	}
	return nil
}

func (o *Orchestrator) handleMobileData(ctx context.Context) error {
	if key, ok := o.keypad.ScanOnce(); ok && o.verifier != nil {
		res := o.verifier.Press(key)
		o.sendFeedback(ctx, res.Send)

		switch res.Outcome {
		case passcode.Accepted:
			o.setEvent(EventSuccess)
			o.logger.Info("passcode accepted", "user", o.userAlias())
			o.transition(StateMobileDisconnect)
			return nil
		case passcode.LockedOut:
			o.setEvent(EventFail)
			o.logger.Warn("passcode attempts exhausted", "user", o.userAlias())
			o.transition(StateMobileDisconnect)
			return nil
		}
		if len(res.Send) > 0 && res.Send[0] == passcode.MsgIncorrect {
			o.logger.Info("incorrect passcode", "user", o.userAlias(), "remaining", o.verifier.Remaining())
		}
	}

	if o.links.LinkLost(link.RoleMobile) {
		o.logger.Warn("mobile link lost, reconnecting", "state", StateMobileData, "user", o.userAlias())
		o.verifier = nil
		o.mu.Lock()
		o.currentUser = nil
		o.mu.Unlock()
		o.transition(StateMobileConnect)
	}
	return nil
}

func (o *Orchestrator) sendFeedback(ctx context.Context, msgs []string) {
	for i, msg := range msgs {
		if i > 0 {
			if err := o.sleep(ctx, o.timings.FeedbackGap); err != nil {
				return
			}
		}
		if err := o.radio.Send(ctx, link.RoleMobile, []byte(msg)); err != nil {
			o.logger.Warn("display write failed", "state", StateMobileData, "error", err)
		}
	}
}

func (o *Orchestrator) handleMobileDisconnect(ctx context.Context) error {
	if err := o.sleep(ctx, o.timings.MobileSettle); err != nil {
		return err
	}
	if err := o.radio.Teardown(ctx, link.RoleMobile); err != nil {
		o.logger.Warn("mobile teardown failed", "state", StateMobileDisconnect, "error", err)
		return err
	}
	if err := o.links.WaitDisconnected(ctx, link.RoleMobile); err != nil {
		return err
	}
	if err := o.sleep(ctx, o.timings.MobileTeardownSettle); err != nil {
		return err
	}

	o.mu.RLock()
	kind := o.event.Kind
	o.mu.RUnlock()

	switch kind {
	case EventFail:
		o.transition(StateFail)
	case EventSuccess:
		o.transition(StateSuccess)
	default:
		o.logger.Warn("no outcome after mobile session", "state", StateMobileDisconnect, "event", kind)
		o.transition(StateIdle)
	}
	return nil
}

func (o *Orchestrator) handleFail() error {
	o.mu.Lock()
	if o.currentUser != nil {
		failed := *o.currentUser
		o.lastFailed = &failed
	}
	o.mu.Unlock()

	o.logger.Warn("credential excluded from next pairing", "user", o.userAlias())
	o.transition(StateBlockchain)
	return nil
}

func (o *Orchestrator) handleSuccess(ctx context.Context) error {
	if err := o.lock.Toggle(ctx); err != nil {
		o.logger.Error("lock actuation failed", "state", StateSuccess, "error", err)
	}

	o.mu.Lock()
	o.lastFailed = nil
	o.mu.Unlock()

	if err := o.sleep(ctx, o.timings.SuccessDelay); err != nil {
		return err
	}
	o.transition(StateBlockchain)
	return nil
}

func (o *Orchestrator) handleBlockchain(ctx context.Context) error {
	o.mu.RLock()
	previous := o.previous
	event := o.event
	var user, mac string
	if o.currentUser != nil {
		user, mac = o.currentUser.Alias, o.currentUser.MAC
	}
	observers := o.observers
	o.mu.RUnlock()

	var kind EventKind
	switch previous {
	case StateTampering:
		kind, user, mac = EventTampering, subjectIntruder, NotAvailable
	case StatePresence:
		kind, user, mac = EventPresence, subjectVisitor, NotAvailable
	case StateFail:
		kind = EventFail
	case StateSuccess:
		kind = EventSuccess
	}

	if kind == EventNone {
		o.logger.Warn("no outcome to record", "state", StateBlockchain, "previous", previous)
	} else {
		if user == "" {
			user, mac = NotAvailable, NotAvailable
		}
		block, err := o.ledger.Append(chain.Entry{
			Timestamp: strconv.FormatInt(event.Timestamp, 10),
			Event:     kind.String(),
			MagMeas:   event.MagMeas,
			UltraMeas: event.UltraMeas,
			User:      user,
			MAC:       mac,
		})
		if err != nil {
			o.logger.Error("audit append failed", "state", StateBlockchain, "event", kind, "error", err)
		} else {
			o.logger.Info("outcome recorded", "event", kind, "user", user, "timestamp", block.Timestamp)
			o.telemetry.RecordOutcome(kind.String(), user)
			for _, obs := range observers {
				obs.Recorded(block)
			}
		}
	}

	if err := o.sleep(ctx, o.timings.BlockchainDelay); err != nil {
		return err
	}
	if previous == StateSuccess {
		if err := o.lock.Toggle(ctx); err != nil {
			o.logger.Error("lock actuation failed", "state", StateBlockchain, "error", err)
		}
	}

	o.mu.Lock()
	o.currentUser = nil
	o.mu.Unlock()
	o.transition(StateIdle)
	return nil
}

func (o *Orchestrator) userAlias() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if o.currentUser == nil {
		return ""
	}
	return o.currentUser.Alias
}
