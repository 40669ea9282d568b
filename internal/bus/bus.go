// ABOUTME: Event bus combining real-time broadcast and webhook dispatch
// ABOUTME: Publish is non-blocking from the session's point of view

package bus

import (
	"context"
	"log/slog"
	"time"
)

// Bus fans session events out to real-time subscribers and to the webhook
// URLs registered per session. Publish never blocks on a subscriber: channel
// sends are non-blocking and webhook deliveries run detached, so a stalled
// consumer cannot apply backpressure to session processing.
type Bus struct {
	broadcaster *Broadcaster
	webhooks    *WebhookDispatcher
}

// New creates a bus with the given webhook delivery timeout.
func New(webhookTimeout time.Duration, logger *slog.Logger) *Bus {
	return &Bus{
		broadcaster: NewBroadcaster(logger),
		webhooks:    NewWebhookDispatcher(webhookTimeout, logger),
	}
}

// Publish hands the event to both fan-out paths and returns immediately.
func (b *Bus) Publish(event *Event) {
	b.broadcaster.Publish(event)
	b.webhooks.Dispatch(event)
}

// Subscribe registers a real-time subscriber for a session key (or KeyAll).
func (b *Bus) Subscribe(ctx context.Context, key string) (<-chan *Event, string) {
	return b.broadcaster.Subscribe(ctx, key)
}

// Unsubscribe removes a real-time subscription.
func (b *Bus) Unsubscribe(key, subID string) {
	b.broadcaster.Unsubscribe(key, subID)
}

// SetWebhooks registers the webhook URLs for a session.
func (b *Bus) SetWebhooks(sessionID string, urls []string) {
	b.webhooks.SetEndpoints(sessionID, urls)
}

// DropSession removes webhook registrations for a deleted session.
func (b *Bus) DropSession(sessionID string) {
	b.webhooks.RemoveSession(sessionID)
}

// Close shuts down both fan-out paths, draining in-flight webhook deliveries.
func (b *Bus) Close() {
	b.broadcaster.Close()
	b.webhooks.Close()
}
