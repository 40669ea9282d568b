// ABOUTME: Concurrency-safe directory of all live sessions and sole mutation entry point
// ABOUTME: Create/Delete/Get/List/SendMessage plus startup restore from the store

package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/2389/zap-gateway/internal/bus"
	"github.com/2389/zap-gateway/internal/driver"
	"github.com/2389/zap-gateway/internal/store"
)

// ErrEmptySessionID indicates a create request without a session id.
var ErrEmptySessionID = errors.New("session id is required")

// ErrDuplicateSession indicates a session with the same id already exists.
var ErrDuplicateSession = errors.New("session already exists")

// ErrSessionNotFound indicates the specified session was not found.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionNotReady indicates the session exists but has not completed pairing.
var ErrSessionNotReady = errors.New("session not ready")

// ErrRecipientNotRegistered indicates the recipient is not a network participant.
var ErrRecipientNotRegistered = errors.New("recipient not registered")

// ErrDriverFailure wraps an underlying driver error.
var ErrDriverFailure = errors.New("driver failure")

// ErrNoPairingCode indicates no pairing code is currently available.
var ErrNoPairingCode = errors.New("no pairing code available")

// EventSink receives session lifecycle events and webhook registrations.
// Satisfied by *bus.Bus.
type EventSink interface {
	Publish(event *bus.Event)
	SetWebhooks(sessionID string, urls []string)
	DropSession(sessionID string)
}

// Config carries the registry's dependencies.
type Config struct {
	Factory driver.Factory
	Store   store.Store
	Bus     EventSink
	Logger  *slog.Logger
	Retry   RetryPolicy
}

// Registry coordinates all live sessions. The directory map is guarded by a
// mutex held only for map mutation; driver, store, and webhook I/O always
// happens outside the lock.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	factory driver.Factory
	store   store.Store
	bus     EventSink
	retry   RetryPolicy
	logger  *slog.Logger
}

// NewRegistry creates a registry. Retry policy fields left at zero get
// conservative defaults.
func NewRegistry(cfg Config) *Registry {
	retry := cfg.Retry
	if retry.MaxAttempts == 0 {
		retry.MaxAttempts = 5
	}
	if retry.Backoff <= 0 {
		retry.Backoff = time.Second
	}
	if retry.BackoffMax <= 0 {
		retry.BackoffMax = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		sessions: make(map[string]*Session),
		factory:  cfg.Factory,
		store:    cfg.Store,
		bus:      cfg.Bus,
		retry:    retry,
		logger:   logger.With("component", "registry"),
	}
}

// Create allocates a session, persists its record, and starts its driver.
// Pairing proceeds asynchronously; the returned view is a Created/AwaitingQR
// snapshot. Fails with ErrDuplicateSession if the id exists live or persisted.
func (r *Registry) Create(ctx context.Context, id, description string, webhooks []string) (View, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return View{}, ErrEmptySessionID
	}

	sess := newSession(id, description, webhooks, time.Now().UTC(),
		r.factory, r.store, r.bus, r.retry, r.logger)

	// Reserve the id under the lock so two concurrent creates cannot race,
	// then do all I/O with the lock released.
	r.mu.Lock()
	if _, exists := r.sessions[id]; exists {
		r.mu.Unlock()
		return View{}, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	}
	r.sessions[id] = sess
	r.mu.Unlock()

	// The live map is rebuilt from the store at startup, but a record can
	// still exist without a live session if a previous restore was cut short.
	if _, err := r.store.Get(ctx, id); err == nil {
		r.evict(id)
		return View{}, fmt.Errorf("%w: %s", ErrDuplicateSession, id)
	} else if !errors.Is(err, store.ErrNotFound) {
		r.evict(id)
		return View{}, fmt.Errorf("checking persisted sessions: %w", err)
	}

	// A failed metadata write is logged, not fatal: in-memory state is
	// authoritative and the write is retried on the next state change.
	if err := r.store.Upsert(ctx, sess.record(false)); err != nil {
		r.logger.Warn("persisting new session failed", "session_id", id, "error", err)
	}

	r.bus.SetWebhooks(id, webhooks)

	if err := sess.start(); err != nil {
		r.evict(id)
		r.bus.DropSession(id)
		if rmErr := r.store.Remove(context.WithoutCancel(ctx), id); rmErr != nil && !errors.Is(rmErr, store.ErrNotFound) {
			r.logger.Warn("removing record for failed session", "session_id", id, "error", rmErr)
		}
		return View{}, err
	}

	r.logger.Info("session created", "session_id", id, "webhook_count", len(webhooks))
	return sess.View(), nil
}

// Delete stops the session's driver, removes its record and webhook
// registrations, and drops it from the directory. From the caller's
// perspective the removal is atomic: once Delete returns, no further events
// for the id reach any subscriber and no partial state is observable.
func (r *Registry) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}

	// Waits for the event loop to exit, so nothing publishes after this.
	sess.stop()

	if err := r.store.Remove(ctx, id); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("removing persisted session", "session_id", id, "error", err)
	}
	r.bus.DropSession(id)

	r.logger.Info("session deleted", "session_id", id)
	return nil
}

// Get returns a read-only snapshot of one session.
func (r *Registry) Get(id string) (View, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return View{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.View(), nil
}

// List returns a point-in-time snapshot of all sessions. It never blocks on
// driver activity.
func (r *Registry) List() []View {
	r.mu.RLock()
	sessions := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		sessions = append(sessions, sess)
	}
	r.mu.RUnlock()

	views := make([]View, 0, len(sessions))
	for _, sess := range sessions {
		views = append(views, sess.View())
	}
	return views
}

// SendMessage sends a message through the identified session. The recipient
// is normalized and checked against the network before delegation.
func (r *Registry) SendMessage(ctx context.Context, id, recipient, body string) (*driver.Receipt, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.Send(ctx, recipient, body)
}

// PairingCode returns the session's current pairing code, available only
// while it awaits pairing.
func (r *Registry) PairingCode(id string) ([]byte, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return sess.PairingCode()
}

// Restore reloads persisted session records and reconstitutes each into a
// live session awaiting pairing. Persisted readiness is never trusted across
// a restart: the driver handle and pairing state live only in the driver
// process, so every restored session must re-pair.
func (r *Registry) Restore(ctx context.Context) (int, error) {
	records, err := r.store.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("loading persisted sessions: %w", err)
	}

	restored := 0
	for _, rec := range records {
		sess := newSession(rec.ID, rec.Description, rec.Webhooks, rec.CreatedAt,
			r.factory, r.store, r.bus, r.retry, r.logger)

		r.mu.Lock()
		if _, exists := r.sessions[rec.ID]; exists {
			r.mu.Unlock()
			continue
		}
		r.sessions[rec.ID] = sess
		r.mu.Unlock()

		rec.Ready = false
		rec.UpdatedAt = time.Now().UTC()
		if err := r.store.Upsert(ctx, rec); err != nil {
			r.logger.Warn("resetting persisted readiness", "session_id", rec.ID, "error", err)
		}

		r.bus.SetWebhooks(rec.ID, rec.Webhooks)

		if err := sess.start(); err != nil {
			// Keep the session visible in a terminal state so the caller can
			// delete and re-create it.
			sess.fail(err.Error())
			r.logger.Error("restoring session", "session_id", rec.ID, "error", err)
			continue
		}

		restored++
		r.logger.Info("session restored, awaiting pairing", "session_id", rec.ID)
	}
	return restored, nil
}

// Close stops every session. Used during gateway shutdown; persisted records
// are left in place for the next startup.
func (r *Registry) Close() {
	r.mu.Lock()
	sessions := make([]*Session, 0, len(r.sessions))
	for id, sess := range r.sessions {
		sessions = append(sessions, sess)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, sess := range sessions {
		sess.stop()
	}
}

func (r *Registry) evict(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}
