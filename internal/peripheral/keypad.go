package peripheral

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"unicode/utf8"

	"github.com/nerrad567/gray-logic-access/internal/infrastructure/mqtt"
)

// DefaultKeyBuffer is the number of key presses held between scans.
const DefaultKeyBuffer = 16

// ErrInvalidKey is returned for a keypad message that is not one key.
var ErrInvalidKey = errors.New("peripheral: invalid key")

// keypadLayout is the 4x4 matrix on the door panel.
//
//	1 2 3 A
//	4 5 6 B
//	7 8 9 C
//	0 F E D
const keypadLayout = "123A456B789C0FED"

// KeyMessage is one key press.
// Topic: accessnode/{node}/keypad
type KeyMessage struct {
	Key string `json:"key"`
}

// Subscriber registers MQTT handlers.
type Subscriber interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// MQTTKeypad buffers key presses published by the keypad controller.
type MQTTKeypad struct {
	keys    chan rune
	dropped atomic.Uint64
	logger  Logger
}

// NewMQTTKeypad creates a keypad holding up to size unread presses.
func NewMQTTKeypad(size int) *MQTTKeypad {
	if size <= 0 {
		size = DefaultKeyBuffer
	}
	return &MQTTKeypad{
		keys:   make(chan rune, size),
		logger: noopLogger{},
	}
}

// SetLogger sets the logger.
func (k *MQTTKeypad) SetLogger(logger Logger) {
	k.logger = logger
}

// Subscribe starts receiving presses from topic.
func (k *MQTTKeypad) Subscribe(sub Subscriber, topic string) error {
	if err := sub.Subscribe(topic, 1, k.HandleMessage); err != nil {
		return fmt.Errorf("subscribe to keypad: %w", err)
	}
	return nil
}

// HandleMessage decodes one key press and buffers it. When the buffer is
// full the press is dropped.
func (k *MQTTKeypad) HandleMessage(_ string, payload []byte) error {
	var msg KeyMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidKey, err)
	}
	key, size := utf8.DecodeRuneInString(strings.ToUpper(msg.Key))
	if size == 0 || size != len(msg.Key) || !strings.ContainsRune(keypadLayout, key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, msg.Key)
	}

	select {
	case k.keys <- key:
	default:
		n := k.dropped.Add(1)
		k.logger.Warn("keypad buffer full, dropping key", "dropped_total", n)
	}
	return nil
}

// Drain discards every buffered key and returns how many were dropped.
func (k *MQTTKeypad) Drain() int {
	n := 0
	for {
		select {
		case <-k.keys:
			n++
		default:
			return n
		}
	}
}

// ScanOnce returns the oldest buffered key, if any. It never blocks.
func (k *MQTTKeypad) ScanOnce() (rune, bool) {
	select {
	case key := <-k.keys:
		return key, true
	default:
		return 0, false
	}
}
