package peripheral

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-access/internal/access"
	"github.com/nerrad567/gray-logic-access/internal/chain"
	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
)

// ─── Mock Dependencies ─────────────────────────────────────────────

type message struct {
	topic    string
	payload  []byte
	retained bool
}

type mockBroker struct {
	mu       sync.Mutex
	messages []message
	handlers map[string]mqtt.MessageHandler
	err      error
}

func (m *mockBroker) Publish(topic string, payload []byte, _ byte, retained bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.messages = append(m.messages, message{topic: topic, payload: payload, retained: retained})
	return nil
}

func (m *mockBroker) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.handlers == nil {
		m.handlers = make(map[string]mqtt.MessageHandler)
	}
	m.handlers[topic] = handler
	return nil
}

func (m *mockBroker) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.messages)
}

type staticSnapshot struct {
	snap access.Snapshot
}

func (s staticSnapshot) Snapshot() access.Snapshot { return s.snap }

func keyPayload(k string) []byte {
	b, _ := json.Marshal(KeyMessage{Key: k})
	return b
}

// ─── Keypad ────────────────────────────────────────────────────────

func TestMQTTKeypad_ScanOnce(t *testing.T) {
	k := NewMQTTKeypad(4)
	if _, ok := k.ScanOnce(); ok {
		t.Fatal("ScanOnce() on empty keypad returned a key")
	}

	for _, key := range []string{"1", "e", "C"} {
		if err := k.HandleMessage("t", keyPayload(key)); err != nil {
			t.Fatalf("HandleMessage(%q) error = %v", key, err)
		}
	}
	want := []rune{'1', 'E', 'C'}
	for _, w := range want {
		got, ok := k.ScanOnce()
		if !ok || got != w {
			t.Errorf("ScanOnce() = (%q, %v), want %q", got, ok, w)
		}
	}
}

func TestMQTTKeypad_Drain(t *testing.T) {
	k := NewMQTTKeypad(4)
	if n := k.Drain(); n != 0 {
		t.Errorf("Drain() on empty keypad = %d, want 0", n)
	}

	for _, key := range []string{"1", "2", "E"} {
		if err := k.HandleMessage("t", keyPayload(key)); err != nil {
			t.Fatalf("HandleMessage(%q) error = %v", key, err)
		}
	}
	if n := k.Drain(); n != 3 {
		t.Errorf("Drain() = %d, want 3", n)
	}
	if _, ok := k.ScanOnce(); ok {
		t.Error("ScanOnce() after Drain() returned a key")
	}
}

func TestMQTTKeypad_InvalidKeys(t *testing.T) {
	k := NewMQTTKeypad(4)
	tests := []struct {
		name    string
		payload []byte
	}{
		{"not json", []byte("5")},
		{"empty", keyPayload("")},
		{"two keys", keyPayload("12")},
		{"not on keypad", keyPayload("#")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := k.HandleMessage("t", tt.payload); !errors.Is(err, ErrInvalidKey) {
				t.Errorf("HandleMessage() error = %v, want ErrInvalidKey", err)
			}
		})
	}
	if _, ok := k.ScanOnce(); ok {
		t.Error("invalid key was buffered")
	}
}

func TestMQTTKeypad_FullBufferDrops(t *testing.T) {
	k := NewMQTTKeypad(2)
	for _, key := range []string{"1", "2", "3"} {
		if err := k.HandleMessage("t", keyPayload(key)); err != nil {
			t.Fatal(err)
		}
	}
	if k.dropped.Load() != 1 {
		t.Errorf("dropped = %d, want 1", k.dropped.Load())
	}
	first, _ := k.ScanOnce()
	second, _ := k.ScanOnce()
	if first != '1' || second != '2' {
		t.Errorf("buffered %q %q, want 1 2", first, second)
	}
}

func TestMQTTKeypad_Subscribe(t *testing.T) {
	broker := &mockBroker{}
	k := NewMQTTKeypad(0)
	topic := mqtt.Topics{Node: "door1"}.Keypad()
	if err := k.Subscribe(broker, topic); err != nil {
		t.Fatalf("Subscribe() error = %v", err)
	}
	if err := broker.handlers[topic](topic, keyPayload("7")); err != nil {
		t.Fatal(err)
	}
	if key, ok := k.ScanOnce(); !ok || key != '7' {
		t.Errorf("ScanOnce() = (%q, %v), want 7", key, ok)
	}
}

// ─── Lock ──────────────────────────────────────────────────────────

func TestMQTTLock_Toggle(t *testing.T) {
	broker := &mockBroker{}
	l := NewMQTTLock(broker, "accessnode/door1/lock/command")

	if err := l.Toggle(context.Background()); err != nil {
		t.Fatalf("Toggle() error = %v", err)
	}
	msg := broker.messages[0]
	if msg.topic != "accessnode/door1/lock/command" || msg.retained {
		t.Errorf("published %+v", msg)
	}
	var cmd LockCommand
	if err := json.Unmarshal(msg.payload, &cmd); err != nil {
		t.Fatal(err)
	}
	if cmd.Command != CommandToggle || cmd.ID == "" {
		t.Errorf("command = %+v", cmd)
	}
}

func TestMQTTLock_Errors(t *testing.T) {
	broker := &mockBroker{err: mqtt.ErrNotConnected}
	l := NewMQTTLock(broker, "t")
	if err := l.Toggle(context.Background()); !errors.Is(err, mqtt.ErrNotConnected) {
		t.Errorf("Toggle() error = %v, want ErrNotConnected", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := NewMQTTLock(&mockBroker{}, "t").Toggle(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Toggle() error = %v, want context.Canceled", err)
	}
}

// ─── Alerter ───────────────────────────────────────────────────────

func TestAlerter_Recorded(t *testing.T) {
	tests := []struct {
		event string
		alert bool
	}{
		{"TAMPERING", true},
		{"PRESENCE", true},
		{"FAIL", true},
		{"SUCCESS", false},
	}
	for _, tt := range tests {
		t.Run(tt.event, func(t *testing.T) {
			broker := &mockBroker{}
			a := NewAlerter(broker, "accessnode/door1/alert")
			a.Start(context.Background())
			a.Recorded(chain.Block{Event: tt.event, User: "Intruder", MAC: "N/A", Timestamp: "42", CurrHash: "abc"})
			a.Stop()

			if got := broker.count() == 1; got != tt.alert {
				t.Fatalf("alert published = %v, want %v", got, tt.alert)
			}
			if !tt.alert {
				return
			}
			var alert Alert
			if err := json.Unmarshal(broker.messages[0].payload, &alert); err != nil {
				t.Fatal(err)
			}
			if alert.Event != tt.event || alert.EventTime != "42" || alert.BlockHash != "abc" {
				t.Errorf("alert = %+v", alert)
			}
		})
	}
}

func TestAlerter_PublishErrorIsAbsorbed(t *testing.T) {
	a := NewAlerter(&mockBroker{err: errors.New("offline")}, "t")
	a.Start(context.Background())
	a.Recorded(chain.Block{Event: "FAIL"})
	a.StateChanged(access.StateIdle, access.StateSensorConnect)
	a.Stop()
}

func TestAlerter_FullQueueDropsWithoutBlocking(t *testing.T) {
	broker := &mockBroker{}
	a := NewAlerter(broker, "t")

	// Not started: nothing drains the queue.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < DefaultAlertQueue+3; i++ {
			a.Recorded(chain.Block{Event: "TAMPERING"})
		}
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Recorded blocked on a full queue")
	}
	if a.Dropped() != 3 {
		t.Errorf("Dropped() = %d, want 3", a.Dropped())
	}

	a.Start(context.Background())
	a.Stop()
	if broker.count() != DefaultAlertQueue {
		t.Errorf("published %d alerts, want %d", broker.count(), DefaultAlertQueue)
	}
}

// ─── State reporter ────────────────────────────────────────────────

func waitForCount(t *testing.T, broker *mockBroker, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for broker.count() < want {
		if time.Now().After(deadline) {
			t.Fatalf("published %d messages, want %d", broker.count(), want)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStateReporter(t *testing.T) {
	broker := &mockBroker{}
	r := NewStateReporter(broker, "accessnode/door1/state", staticSnapshot{
		snap: access.Snapshot{State: access.StateMobileData, Previous: access.StateMobileConnect, CurrentUser: "Alice"},
	})
	r.Start(context.Background())
	defer r.Stop()

	r.StateChanged(access.StateMobileConnect, access.StateMobileData)
	r.Recorded(chain.Block{})
	waitForCount(t, broker, 1)

	broker.mu.Lock()
	msg := broker.messages[0]
	broker.mu.Unlock()
	if !msg.retained {
		t.Error("state snapshot not retained")
	}
	var got map[string]any
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatal(err)
	}
	if got["state"] != "MOBILE_DATA" || got["current_user"] != "Alice" {
		t.Errorf("snapshot = %v", got)
	}
}

// blockingBroker holds every publish until release is closed.
type blockingBroker struct {
	mockBroker
	release chan struct{}
}

func (b *blockingBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	<-b.release
	return b.mockBroker.Publish(topic, payload, qos, retained)
}

type stateSequence struct {
	mu    sync.Mutex
	state access.State
}

func (s *stateSequence) set(st access.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = st
}

func (s *stateSequence) Snapshot() access.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return access.Snapshot{State: s.state}
}

func TestStateReporter_SlowBrokerDoesNotBlock(t *testing.T) {
	broker := &blockingBroker{release: make(chan struct{})}
	source := &stateSequence{}
	r := NewStateReporter(broker, "accessnode/door1/state", source)
	r.Start(context.Background())

	returned := make(chan struct{})
	go func() {
		defer close(returned)
		for _, st := range []access.State{access.StateSensorConnect, access.StateSensorSync, access.StateSensorData, access.StateSensorDisconnect} {
			source.set(st)
			r.StateChanged(access.StateIdle, st)
		}
	}()

	select {
	case <-returned:
	case <-time.After(time.Second):
		t.Fatal("StateChanged blocked on a stalled broker")
	}

	close(broker.release)
	r.Stop()

	broker.mu.Lock()
	defer broker.mu.Unlock()
	if len(broker.messages) == 0 || len(broker.messages) > 2 {
		t.Fatalf("published %d messages, want the in-flight one and the newest", len(broker.messages))
	}
	var last map[string]any
	if err := json.Unmarshal(broker.messages[len(broker.messages)-1].payload, &last); err != nil {
		t.Fatal(err)
	}
	if last["state"] != "SENSOR_DISCONNECT" {
		t.Errorf("last published state = %v, want SENSOR_DISCONNECT", last["state"])
	}
}
