// Package channel abstracts the external chat transport the dispatcher
// hands messages to.
package channel

import (
	"context"
	"errors"

	"github.com/sroepkeee/orderhub-notify/internal/queue"
)

// ErrChannelDown marks a transport-level outage rather than a per-message
// failure. The dispatcher aborts its cycle on it instead of burning message
// attempts.
var ErrChannelDown = errors.New("channel unavailable")

// Result is the provider's hand-off acknowledgment. It does not imply the
// recipient ever saw the message.
type Result struct {
	ProviderMessageID string `json:"provider_message_id,omitempty"`
}

// Adapter sends one message. Implementations must be safe to retry with the
// same message; at-least-once delivery is accepted.
type Adapter interface {
	Send(ctx context.Context, address, content string, media *queue.MediaPayload) (*Result, error)
}
