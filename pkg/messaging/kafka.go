package messaging

import (
	"context"
	"log/slog"

	"github.com/segmentio/kafka-go"
)

// KafkaConsumer wraps a consumer-group reader for one topic.
type KafkaConsumer struct {
	reader *kafka.Reader
	log    *slog.Logger
}

func NewKafkaConsumer(brokers []string, topic, groupID string, log *slog.Logger) *KafkaConsumer {
	return &KafkaConsumer{
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:  brokers,
			Topic:    topic,
			GroupID:  groupID,
			MinBytes: 10e3,
			MaxBytes: 10e6,
		}),
		log: log,
	}
}

// Consume reads messages until the context is cancelled. Handler errors are
// logged and the offset still advances; poison messages must not wedge the
// whole group.
func (c *KafkaConsumer) Consume(ctx context.Context, handler func(key string, value []byte) error) {
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			c.log.Error("failed to read from kafka", "error", err)
			continue
		}
		if err := handler(string(m.Key), m.Value); err != nil {
			c.log.Error("failed to handle kafka message", "key", string(m.Key), "error", err)
		}
	}
}

func (c *KafkaConsumer) Close() error {
	return c.reader.Close()
}
