package threshold

import (
	"context"
	"encoding/json"
	"fmt"
)

// MessagePublisher publishes a retained message. Implemented by the MQTT client.
type MessagePublisher interface {
	PublishRetained(topic string, payload []byte) error
}

// Publisher republishes the thresholds whenever they change and forwards
// each change to registered listeners.
type Publisher struct {
	store     *Store
	pub       MessagePublisher
	topic     string
	listeners []func(map[Kind]string)
	logger    Logger
}

// NewPublisher creates a Publisher. pub may be nil when no broker is used.
func NewPublisher(store *Store, pub MessagePublisher, topic string) *Publisher {
	return &Publisher{store: store, pub: pub, topic: topic, logger: noopLogger{}}
}

// SetLogger sets the logger.
func (p *Publisher) SetLogger(logger Logger) {
	p.logger = logger
}

// OnChange registers a listener. Must be called before Run.
func (p *Publisher) OnChange(fn func(map[Kind]string)) {
	p.listeners = append(p.listeners, fn)
}

// Run publishes the current thresholds, then republishes after every
// change until ctx is cancelled.
func (p *Publisher) Run(ctx context.Context) {
	p.publish()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.store.Changes():
			values := p.publish()
			for _, fn := range p.listeners {
				fn(values)
			}
		}
	}
}

func (p *Publisher) publish() map[Kind]string {
	values := p.store.All()
	if p.pub == nil {
		return values
	}
	payload, err := encodeValues(values)
	if err != nil {
		p.logger.Error("encoding thresholds", "error", err)
		return values
	}
	if err := p.pub.PublishRetained(p.topic, payload); err != nil {
		p.logger.Warn("publishing thresholds", "topic", p.topic, "error", err)
	}
	return values
}

func encodeValues(values map[Kind]string) ([]byte, error) {
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[string(k)] = v
	}
	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("marshalling thresholds: %w", err)
	}
	return data, nil
}
