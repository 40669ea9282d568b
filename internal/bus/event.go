// ABOUTME: Lifecycle event type published by sessions and fanned out to subscribers
// ABOUTME: Events are ephemeral: forwarded to listeners and webhooks, never persisted

package bus

import (
	"time"

	"github.com/google/uuid"

	"github.com/2389/zap-gateway/internal/driver"
)

// Event is a single session lifecycle or message notification. It is also the
// webhook delivery payload, marshaled as JSON.
type Event struct {
	ID        string           `json:"id"`
	SessionID string           `json:"sessionId"`
	Kind      driver.EventKind `json:"kind"`
	Payload   any              `json:"payload,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
}

// NewEvent builds an event with a fresh id and the current time.
func NewEvent(sessionID string, kind driver.EventKind, payload any) *Event {
	return &Event{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Kind:      kind,
		Payload:   payload,
		Timestamp: time.Now().UTC(),
	}
}
