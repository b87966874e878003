package publisher

import (
	"context"
	"encoding/json"
	"fmt"

	audit "eventgate/pkg/platform/audit"
)

// Producer is satisfied by internal/platform/kafka.Producer.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// KafkaSink publishes events as JSON keyed by token, so a token's history
// lands on one partition in order.
type KafkaSink struct {
	producer Producer
	topic    string
}

func NewKafkaSink(producer Producer, topic string) *KafkaSink {
	return &KafkaSink{producer: producer, topic: topic}
}

func (s *KafkaSink) Send(ctx context.Context, event audit.Event) error {
	value, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	key := event.Token
	if key == "" {
		key = event.Actor
	}
	return s.producer.Produce(ctx, s.topic, []byte(key), value)
}
