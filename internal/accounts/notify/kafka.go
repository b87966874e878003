package notify

import (
	"context"
	"encoding/json"
	"fmt"
)

// Producer is satisfied by internal/platform/kafka.Producer.
type Producer interface {
	Produce(ctx context.Context, topic string, key, value []byte) error
}

// KafkaNotifier hands messages to a downstream mailer via a topic.
type KafkaNotifier struct {
	producer Producer
	topic    string
}

func NewKafkaNotifier(producer Producer, topic string) *KafkaNotifier {
	return &KafkaNotifier{producer: producer, topic: topic}
}

func (n *KafkaNotifier) Notify(ctx context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}
	value, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}
	return n.producer.Produce(ctx, n.topic, []byte(msg.Kind), value)
}
