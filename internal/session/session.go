// ABOUTME: One tenant connection: owns a driver handle and runs the pairing state machine
// ABOUTME: A single goroutine consumes driver events in FIFO order and republishes them

package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/2389/zap-gateway/internal/bus"
	"github.com/2389/zap-gateway/internal/driver"
	"github.com/2389/zap-gateway/internal/phone"
	"github.com/2389/zap-gateway/internal/store"
)

// persistTimeout bounds metadata writes so a wedged store cannot stall the
// session's event loop indefinitely.
const persistTimeout = 5 * time.Second

// RetryPolicy bounds driver reinitialization after a disconnect or a failed
// pairing attempt. Exceeding MaxAttempts moves the session to StateFailed.
type RetryPolicy struct {
	MaxAttempts int
	Backoff     time.Duration
	BackoffMax  time.Duration
}

// View is a read-only snapshot of a session.
type View struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	State       State      `json:"state"`
	CreatedAt   time.Time  `json:"createdAt"`
	ReadyAt     *time.Time `json:"readyAt,omitempty"`
}

// Session is one tenant's connection lifecycle. All driver events are applied
// by a single goroutine, so transitions happen strictly in arrival order. The
// driver handle is exclusively owned: no other component calls it directly.
type Session struct {
	id          string
	description string
	webhooks    []string
	createdAt   time.Time

	factory driver.Factory
	store   store.Store
	sink    EventSink
	retry   RetryPolicy
	logger  *slog.Logger

	mu              sync.Mutex
	state           State
	readyAt         *time.Time
	lastPairingCode []byte
	drv             driver.Driver
	attempts        int

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed atomic.Bool
}

func newSession(id, description string, webhooks []string, createdAt time.Time,
	factory driver.Factory, st store.Store, sink EventSink, retry RetryPolicy, logger *slog.Logger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:          id,
		description: description,
		webhooks:    append([]string(nil), webhooks...),
		createdAt:   createdAt,
		factory:     factory,
		store:       st,
		sink:        sink,
		retry:       retry,
		logger:      logger.With("session_id", id),
		state:       StateCreated,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// start creates and starts the driver and launches the event loop.
func (s *Session) start() error {
	drv, err := s.factory(s.id)
	if err != nil {
		return fmt.Errorf("creating driver for session %s: %w", s.id, err)
	}
	if err := drv.Start(s.ctx); err != nil {
		_ = drv.Stop()
		return fmt.Errorf("starting driver for session %s: %w", s.id, err)
	}

	s.mu.Lock()
	s.drv = drv
	s.state = StateAwaitingQR
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(drv)
	}()
	return nil
}

// run is the session's event loop. It exits when the session is stopped or
// when the reconnect budget is exhausted.
func (s *Session) run(drv driver.Driver) {
	for {
		select {
		case <-s.ctx.Done():
			return
		case ev, ok := <-drv.Events():
			if !ok {
				if s.ctx.Err() != nil {
					return
				}
				// Stream ended without a Disconnected event; treat it as one.
				drv = s.reconnect("driver event stream closed")
				if drv == nil {
					return
				}
				continue
			}

			next := s.apply(drv, ev)
			if next == nil {
				return
			}
			drv = next
		}
	}
}

// apply handles one driver event. It returns the driver to keep consuming
// from (a fresh one after a reconnect), or nil when the loop must exit.
func (s *Session) apply(drv driver.Driver, ev driver.Event) driver.Driver {
	switch ev.Kind {
	case driver.KindPairingCode:
		s.mu.Lock()
		s.lastPairingCode = append([]byte(nil), ev.PairingCode...)
		s.mu.Unlock()
		s.logger.Info("pairing code ready")
		s.publish(driver.KindPairingCode, pairingCodePayload{Code: ev.PairingCode})

	case driver.KindAuthenticated:
		s.mu.Lock()
		s.state = StateAuthenticated
		s.lastPairingCode = nil
		s.mu.Unlock()
		s.logger.Info("session authenticated")
		s.publish(driver.KindAuthenticated, nil)

	case driver.KindReady:
		now := time.Now().UTC()
		s.mu.Lock()
		s.state = StateReady
		if s.readyAt == nil {
			s.readyAt = &now
		}
		s.attempts = 0
		s.mu.Unlock()
		s.persist(true)
		s.logger.Info("session ready")
		s.publish(driver.KindReady, nil)

	case driver.KindAuthFailed:
		s.logger.Warn("pairing failed", "reason", ev.Reason)
		s.publish(driver.KindAuthFailed, reasonPayload{Reason: ev.Reason})
		return s.reconnect("auth failed: " + ev.Reason)

	case driver.KindDisconnected:
		s.discardDriver()
		s.persist(false)
		s.logger.Warn("session disconnected", "reason", ev.Reason)
		s.publish(driver.KindDisconnected, reasonPayload{Reason: ev.Reason})
		return s.reconnect("disconnected: " + ev.Reason)

	case driver.KindMessageReceived:
		s.publish(driver.KindMessageReceived, ev.Message)

	default:
		s.logger.Warn("ignoring unknown driver event", "kind", ev.Kind)
	}
	return drv
}

// reconnect discards the current driver and initializes a fresh one after a
// backoff, counting against the retry budget. Returns the new driver, or nil
// if the session went terminal or was stopped.
func (s *Session) reconnect(reason string) driver.Driver {
	s.discardDriver()

	for {
		s.mu.Lock()
		s.attempts++
		attempt := s.attempts
		s.mu.Unlock()

		if s.retry.MaxAttempts > 0 && attempt > s.retry.MaxAttempts {
			s.fail(reason)
			return nil
		}

		delay := backoffDelay(s.retry, attempt)
		s.logger.Info("reinitializing driver",
			"reason", reason, "attempt", attempt, "backoff", delay)

		select {
		case <-time.After(delay):
		case <-s.ctx.Done():
			return nil
		}
		if s.closed.Load() {
			return nil
		}

		drv, err := s.factory(s.id)
		if err != nil {
			s.logger.Warn("creating driver failed", "attempt", attempt, "error", err)
			reason = err.Error()
			continue
		}
		if err := drv.Start(s.ctx); err != nil {
			_ = drv.Stop()
			s.logger.Warn("starting driver failed", "attempt", attempt, "error", err)
			reason = err.Error()
			continue
		}

		// A delete may have landed while the driver was starting; the stop()
		// that ran then never saw this handle, so it must be torn down here.
		s.mu.Lock()
		if s.closed.Load() {
			s.mu.Unlock()
			_ = drv.Stop()
			return nil
		}
		s.drv = drv
		s.state = StateAwaitingQR
		s.lastPairingCode = nil
		s.mu.Unlock()
		return drv
	}
}

// discardDriver stops and drops the dead driver handle and re-enters the
// pairing state, so no caller observes a ready session holding a stopped
// driver while the reconnect backoff runs.
func (s *Session) discardDriver() {
	s.stopDriver()
	s.mu.Lock()
	s.drv = nil
	s.state = StateAwaitingQR
	s.lastPairingCode = nil
	s.mu.Unlock()
}

// fail moves the session to the terminal Failed state. Surfaced to
// subscribers as a lifecycle event, never as an error to an API caller.
func (s *Session) fail(reason string) {
	s.mu.Lock()
	s.state = StateFailed
	s.mu.Unlock()
	s.persist(false)
	s.logger.Error("session failed permanently; delete and re-create it", "reason", reason)
	s.publish(driver.KindFailed, reasonPayload{Reason: reason})
}

// backoffDelay computes the exponential backoff for the given attempt.
func backoffDelay(p RetryPolicy, attempt int) time.Duration {
	delay := p.Backoff
	if delay <= 0 {
		delay = time.Second
	}
	for i := 1; i < attempt; i++ {
		delay *= 2
		if p.BackoffMax > 0 && delay >= p.BackoffMax {
			return p.BackoffMax
		}
	}
	if p.BackoffMax > 0 && delay > p.BackoffMax {
		delay = p.BackoffMax
	}
	return delay
}

// persist writes the session's durable record through to the store.
// Persistence failures never block the session: in-memory state stays
// authoritative and the write is retried on the next state change.
func (s *Session) persist(ready bool) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()

	if err := s.store.Upsert(ctx, s.record(ready)); err != nil {
		s.logger.Warn("persisting session metadata failed; in-memory state remains authoritative",
			"error", err)
	}
}

// record builds the durable projection of this session.
func (s *Session) record(ready bool) *store.SessionRecord {
	return &store.SessionRecord{
		ID:          s.id,
		Description: s.description,
		Ready:       ready,
		Webhooks:    s.webhooks,
		CreatedAt:   s.createdAt,
		UpdatedAt:   time.Now().UTC(),
	}
}

func (s *Session) publish(kind driver.EventKind, payload any) {
	s.sink.Publish(bus.NewEvent(s.id, kind, payload))
}

// Send validates preconditions and delegates the message to the driver.
func (s *Session) Send(ctx context.Context, recipient, body string) (*driver.Receipt, error) {
	if s.closed.Load() {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	state := s.state
	drv := s.drv
	s.mu.Unlock()

	if state != StateReady || drv == nil {
		return nil, fmt.Errorf("%w: session %s is %s", ErrSessionNotReady, s.id, state)
	}

	to := phone.Normalize(recipient)

	registered, err := drv.IsRegistered(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("%w: checking recipient %s: %w", ErrDriverFailure, to, err)
	}
	if !registered {
		return nil, fmt.Errorf("%w: %s", ErrRecipientNotRegistered, to)
	}

	receipt, err := drv.Send(ctx, to, body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDriverFailure, err)
	}

	s.logger.Debug("message sent", "recipient", to, "message_id", receipt.MessageID)
	return receipt, nil
}

// PairingCode returns the last pairing code, present only while the session
// awaits pairing.
func (s *Session) PairingCode() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingQR || len(s.lastPairingCode) == 0 {
		return nil, ErrNoPairingCode
	}
	return append([]byte(nil), s.lastPairingCode...), nil
}

// View returns a read-only snapshot.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return View{
		ID:          s.id,
		Description: s.description,
		State:       s.state,
		CreatedAt:   s.createdAt,
		ReadyAt:     s.readyAt,
	}
}

// stop tears the session down and waits for the event loop to exit, after
// which no further events for this session reach the sink. Idempotent.
func (s *Session) stop() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.cancel()
	s.stopDriver()
	s.wg.Wait()
}

func (s *Session) stopDriver() {
	s.mu.Lock()
	drv := s.drv
	s.mu.Unlock()
	if drv != nil {
		if err := drv.Stop(); err != nil {
			s.logger.Warn("stopping driver", "error", err)
		}
	}
}

type pairingCodePayload struct {
	Code []byte `json:"code"`
}

type reasonPayload struct {
	Reason string `json:"reason"`
}
