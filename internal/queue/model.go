package queue

import (
	"time"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// Priority orders messages within the queue. Lower is more urgent.
const (
	PriorityCritical = 1
	PriorityHigh     = 2
	PriorityNormal   = 3
)

const DefaultMaxAttempts = 3

// MessageType tags the origin of a queued message.
const (
	TypePhaseManagerAlert = "phase_manager_alert"
	TypeScheduledReport   = "scheduled_report"
	TypeManual            = "manual"
)

// SmartAlertType builds the message type tag for a generated alert kind.
func SmartAlertType(kind string) string {
	return "smart_alert_" + kind
}

// MediaPayload is an optional attachment sent alongside the message text.
type MediaPayload struct {
	Data    []byte `json:"data,omitempty"`
	Caption string `json:"caption,omitempty"`
}

// Message is one unit of outbound communication tracked through the
// retry-capable state machine.
type Message struct {
	ID               string            `json:"id"`
	RecipientAddress string            `json:"recipient_address"`
	RecipientName    string            `json:"recipient_name,omitempty"`
	MessageType      string            `json:"message_type"`
	Content          string            `json:"content"`
	Media            *MediaPayload     `json:"media,omitempty"`
	Priority         int               `json:"priority"`
	Status           Status            `json:"status"`
	ScheduledFor     *time.Time        `json:"scheduled_for,omitempty"`
	Attempts         int               `json:"attempts"`
	MaxAttempts      int               `json:"max_attempts"`
	SentAt           *time.Time        `json:"sent_at,omitempty"`
	ErrorMessage     string            `json:"error_message,omitempty"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}

// Due reports whether the message is eligible for dispatch at the given time.
func (m *Message) Due(now time.Time) bool {
	return m.Status == StatusPending && (m.ScheduledFor == nil || !m.ScheduledFor.After(now))
}

// Terminal reports whether the message can no longer change state automatically.
func (m *Message) Terminal() bool {
	switch m.Status {
	case StatusSent, StatusCancelled:
		return true
	case StatusFailed:
		return m.Attempts >= m.MaxAttempts
	}
	return false
}

// CanTransition enforces the message state machine:
// pending -> processing -> sent|failed, failed -> pending (retry),
// any non-terminal -> cancelled.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusProcessing || to == StatusCancelled
	case StatusProcessing:
		return to == StatusSent || to == StatusFailed || to == StatusCancelled
	case StatusFailed:
		return to == StatusPending || to == StatusCancelled
	}
	return false
}
