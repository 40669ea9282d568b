// ABOUTME: Fire-and-forget webhook delivery of session events to registered URLs
// ABOUTME: Each delivery runs detached; a failing endpoint never stalls anything else

package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultWebhookTimeout = 10 * time.Second

// WebhookDispatcher posts session events to the webhook URLs registered for
// each session. Delivery is at-most-once: failures are logged and dropped,
// never retried and never propagated to the publishing session.
type WebhookDispatcher struct {
	mu        sync.RWMutex
	endpoints map[string][]string // session id -> urls

	client *http.Client
	logger *slog.Logger

	// wg tracks in-flight deliveries so Close can drain them.
	wg sync.WaitGroup
}

// NewWebhookDispatcher creates a dispatcher with the given per-delivery
// timeout. Pass zero for the default, nil logger for default.
func NewWebhookDispatcher(timeout time.Duration, logger *slog.Logger) *WebhookDispatcher {
	if timeout <= 0 {
		timeout = defaultWebhookTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookDispatcher{
		endpoints: make(map[string][]string),
		client:    &http.Client{Timeout: timeout},
		logger:    logger.With("component", "webhooks"),
	}
}

// SetEndpoints registers the webhook URLs for a session, replacing any
// previous set.
func (d *WebhookDispatcher) SetEndpoints(sessionID string, urls []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(urls) == 0 {
		delete(d.endpoints, sessionID)
		return
	}
	d.endpoints[sessionID] = append([]string(nil), urls...)
}

// RemoveSession drops all webhook registrations for a session.
func (d *WebhookDispatcher) RemoveSession(sessionID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.endpoints, sessionID)
}

// endpointsFor returns the registered URLs for a session.
func (d *WebhookDispatcher) endpointsFor(sessionID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.endpoints[sessionID]...)
}

// Dispatch delivers the event to every webhook registered for its session.
// Returns immediately; each URL gets an independent detached delivery.
func (d *WebhookDispatcher) Dispatch(event *Event) {
	d.mu.RLock()
	urls := d.endpoints[event.SessionID]
	d.mu.RUnlock()

	if len(urls) == 0 {
		return
	}

	body, err := json.Marshal(event)
	if err != nil {
		d.logger.Error("marshaling webhook payload",
			"session_id", event.SessionID,
			"event_id", event.ID,
			"error", err)
		return
	}

	for _, url := range urls {
		url := url
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.deliver(url, body, event)
		}()
	}
}

func (d *WebhookDispatcher) deliver(url string, body []byte, event *Event) {
	req, err := http.NewRequestWithContext(context.Background(), http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		d.logger.Warn("building webhook request",
			"url", url, "event_id", event.ID, "error", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		d.logger.Warn("webhook delivery failed",
			"url", url,
			"session_id", event.SessionID,
			"event_id", event.ID,
			"error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		d.logger.Warn("webhook endpoint rejected event",
			"url", url,
			"session_id", event.SessionID,
			"event_id", event.ID,
			"status", resp.StatusCode)
		return
	}

	d.logger.Debug("webhook delivered",
		"url", url, "event_id", event.ID, "status", resp.StatusCode)
}

// Close waits for in-flight deliveries to finish.
func (d *WebhookDispatcher) Close() {
	d.wg.Wait()
}
