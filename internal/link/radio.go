package link

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
)

const radioQoS byte = 1

// MQTTClient is the subset of the MQTT client the radio uses.
type MQTTClient interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MQTTRadio drives a BLE gateway over MQTT and reports its events to a Bus.
type MQTTRadio struct {
	client MQTTClient
	topics mqtt.Topics
	bus    *Bus
	logger Logger
	now    func() time.Time
}

// NewMQTTRadio creates a radio for the node named in topics.
func NewMQTTRadio(client MQTTClient, topics mqtt.Topics, bus *Bus) *MQTTRadio {
	return &MQTTRadio{
		client: client,
		topics: topics,
		bus:    bus,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger.
func (r *MQTTRadio) SetLogger(logger Logger) {
	r.logger = logger
}

// Start subscribes to gateway events and data for every role.
func (r *MQTTRadio) Start() error {
	for _, role := range Roles() {
		if err := r.client.Subscribe(r.topics.LinkEvent(role.String()), radioQoS, r.eventHandler(role)); err != nil {
			return fmt.Errorf("subscribe to %s events: %w", role, err)
		}
		if err := r.client.Subscribe(r.topics.LinkData(role.String()), radioQoS, r.dataHandler(role)); err != nil {
			return fmt.Errorf("subscribe to %s data: %w", role, err)
		}
	}
	r.logger.Info("radio subscribed", "node", r.topics.Node)
	return nil
}

// BeginDiscovery asks the gateway to connect role to one of allow.
func (r *MQTTRadio) BeginDiscovery(ctx context.Context, role Role, allow []string) error {
	r.bus.Prepare(role)
	return r.control(ctx, role, ActionDiscover, allow)
}

// Teardown asks the gateway to drop role's link. The resulting disconnect
// is reported as requested.
func (r *MQTTRadio) Teardown(ctx context.Context, role Role) error {
	r.bus.ExpectTeardown(role)
	return r.control(ctx, role, ActionTeardown, nil)
}

// Send writes payload to role's connected peer.
func (r *MQTTRadio) Send(ctx context.Context, role Role, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := TxMessage{
		ID:        uuid.NewString(),
		Timestamp: r.now().UTC(),
		Data:      payload,
	}
	return r.publish(r.topics.LinkTx(role.String()), msg)
}

func (r *MQTTRadio) control(ctx context.Context, role Role, action string, allow []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := ControlMessage{
		ID:        uuid.NewString(),
		Timestamp: r.now().UTC(),
		Action:    action,
		Allow:     allow,
	}
	if err := r.publish(r.topics.LinkControl(role.String()), msg); err != nil {
		return fmt.Errorf("%s %s: %w", action, role, err)
	}
	r.logger.Debug("link request sent", "role", role, "action", action, "allow", len(allow))
	return nil
}

func (r *MQTTRadio) publish(topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return r.client.Publish(topic, payload, radioQoS, false)
}

func (r *MQTTRadio) eventHandler(role Role) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		var ev EventMessage
		if err := json.Unmarshal(payload, &ev); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		switch ev.Event {
		case EventConnected:
			r.bus.OnConnected(role, ev.Peer)
		case EventDisconnected:
			r.bus.OnDisconnected(role, ev.Reason)
		default:
			return fmt.Errorf("%w: unknown event %q", ErrInvalidEvent, ev.Event)
		}
		return nil
	}
}

func (r *MQTTRadio) dataHandler(role Role) mqtt.MessageHandler {
	return func(_ string, payload []byte) error {
		var msg DataMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidEvent, err)
		}
		r.bus.OnData(role, msg.Peer, []byte(msg.Payload))
		return nil
	}
}
