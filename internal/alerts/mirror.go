package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Publisher is the slice of the messaging client the mirror needs.
type Publisher interface {
	Publish(ctx context.Context, queueName string, body []byte) error
}

// QueueMirror cross-posts alerts to a broker queue where the review tooling
// picks them up.
type QueueMirror struct {
	publisher Publisher
	queueName string
}

func NewQueueMirror(publisher Publisher, queueName string) *QueueMirror {
	return &QueueMirror{publisher: publisher, queueName: queueName}
}

func (m *QueueMirror) Publish(ctx context.Context, a *Alert) error {
	body, err := json.Marshal(struct {
		*Alert
		ObservedAt time.Time `json:"observed_at"`
	}{Alert: a, ObservedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode alert: %w", err)
	}
	return m.publisher.Publish(ctx, m.queueName, body)
}
