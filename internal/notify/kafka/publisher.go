// Package kafka publishes contact events to a Kafka topic.
package kafka

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	"folio/internal/notify"
)

// DefaultTopic receives contact events when no topic is configured.
const DefaultTopic = "contact-events"

type producer interface {
	ProduceSync(ctx context.Context, rs ...*kgo.Record) kgo.ProduceResults
	Close()
}

// Publisher produces one JSON record per event, keyed by submitter email so
// events from one person stay ordered within a partition.
type Publisher struct {
	client producer
	topic  string
}

// New connects a franz-go client to brokers.
func New(brokers []string, topic string) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers are required")
	}
	if topic == "" {
		topic = DefaultTopic
	}
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.AllowAutoTopicCreation(),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &Publisher{client: client, topic: topic}, nil
}

func (p *Publisher) Notify(ctx context.Context, ev notify.Event) error {
	value, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode contact event: %w", err)
	}
	rec := &kgo.Record{Topic: p.topic, Key: []byte(ev.Email), Value: value}
	if err := p.client.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("produce contact event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.client.Close()
}
