package peripheral

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Lock commands.
const (
	CommandToggle = "toggle"
)

// LockCommand drives the latch servo.
// Topic: accessnode/{node}/lock/command
type LockCommand struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Command   string    `json:"command"`
}

// Publisher publishes MQTT messages.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// MQTTLock flips the latch by publishing toggle commands.
type MQTTLock struct {
	pub    Publisher
	topic  string
	logger Logger
}

// NewMQTTLock creates a lock publishing to topic.
func NewMQTTLock(pub Publisher, topic string) *MQTTLock {
	return &MQTTLock{pub: pub, topic: topic, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (l *MQTTLock) SetLogger(logger Logger) {
	l.logger = logger
}

// Toggle flips the latch direction.
func (l *MQTTLock) Toggle(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	payload, err := json.Marshal(LockCommand{
		ID:        uuid.NewString(),
		Timestamp: time.Now().UTC(),
		Command:   CommandToggle,
	})
	if err != nil {
		return fmt.Errorf("marshal lock command: %w", err)
	}
	if err := l.pub.Publish(l.topic, payload, 1, false); err != nil {
		return fmt.Errorf("publish lock command: %w", err)
	}
	l.logger.Info("lock toggled")
	return nil
}
