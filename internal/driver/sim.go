// ABOUTME: Simulated driver for local development and integration tests
// ABOUTME: Walks the pairing ceremony on timers and accepts a scripted recipient list

package driver

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SimConfig controls the simulated pairing ceremony.
type SimConfig struct {
	// PairingDelay is how long after Start the pairing code is emitted.
	PairingDelay time.Duration

	// ReadyDelay is how long after the pairing code the session authenticates
	// and becomes ready.
	ReadyDelay time.Duration

	// Registered lists canonical recipient addresses the simulated network
	// knows about. Empty means every recipient is registered.
	Registered []string
}

// SimDriver fakes a network connection: it emits a pairing code, then
// authenticates and becomes ready on a timer. Sends succeed against the
// scripted recipient list.
type SimDriver struct {
	sessionID string
	cfg       SimConfig
	logger    *slog.Logger

	events chan Event
	stop   chan struct{}
	once   sync.Once

	mu    sync.Mutex
	ready bool
}

// NewSimFactory returns a Factory producing simulated drivers.
func NewSimFactory(cfg SimConfig, logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PairingDelay <= 0 {
		cfg.PairingDelay = 100 * time.Millisecond
	}
	if cfg.ReadyDelay <= 0 {
		cfg.ReadyDelay = 100 * time.Millisecond
	}
	return func(sessionID string) (Driver, error) {
		return &SimDriver{
			sessionID: sessionID,
			cfg:       cfg,
			logger:    logger.With("component", "sim-driver", "session_id", sessionID),
			events:    make(chan Event, 16),
			stop:      make(chan struct{}),
		}, nil
	}
}

// Start kicks off the simulated pairing ceremony.
func (d *SimDriver) Start(ctx context.Context) error {
	go d.run(ctx)
	return nil
}

func (d *SimDriver) run(ctx context.Context) {
	defer close(d.events)

	if !d.sleep(ctx, d.cfg.PairingDelay) {
		return
	}

	code := make([]byte, 32)
	if _, err := rand.Read(code); err != nil {
		d.emit(ctx, Event{Kind: KindAuthFailed, Reason: "generating pairing code: " + err.Error()})
		return
	}
	encoded := []byte(base64.StdEncoding.EncodeToString(code))
	if !d.emit(ctx, Event{Kind: KindPairingCode, PairingCode: encoded}) {
		return
	}
	d.logger.Debug("pairing code emitted")

	if !d.sleep(ctx, d.cfg.ReadyDelay) {
		return
	}
	if !d.emit(ctx, Event{Kind: KindAuthenticated}) {
		return
	}

	d.mu.Lock()
	d.ready = true
	d.mu.Unlock()
	if !d.emit(ctx, Event{Kind: KindReady}) {
		return
	}

	// Hold the stream open; closing it early would read as a lost connection.
	select {
	case <-d.stop:
	case <-ctx.Done():
	}
}

// sleep waits for the duration, returning false if the driver was stopped.
func (d *SimDriver) sleep(ctx context.Context, dur time.Duration) bool {
	t := time.NewTimer(dur)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-d.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

func (d *SimDriver) emit(ctx context.Context, ev Event) bool {
	select {
	case d.events <- ev:
		return true
	case <-d.stop:
		return false
	case <-ctx.Done():
		return false
	}
}

// Events returns the lifecycle event stream.
func (d *SimDriver) Events() <-chan Event {
	return d.events
}

// IsRegistered reports whether the recipient exists on the simulated network.
func (d *SimDriver) IsRegistered(_ context.Context, recipient string) (bool, error) {
	if len(d.cfg.Registered) == 0 {
		return true, nil
	}
	for _, r := range d.cfg.Registered {
		if r == recipient {
			return true, nil
		}
	}
	return false, nil
}

// Send delivers a message on the simulated network.
func (d *SimDriver) Send(_ context.Context, recipient, _ string) (*Receipt, error) {
	d.mu.Lock()
	ready := d.ready
	d.mu.Unlock()
	if !ready {
		return nil, fmt.Errorf("simulated connection to %s not established", recipient)
	}
	return &Receipt{
		MessageID: uuid.New().String(),
		Timestamp: time.Now().UTC(),
	}, nil
}

// Stop tears down the simulated connection. Idempotent.
func (d *SimDriver) Stop() error {
	d.once.Do(func() {
		close(d.stop)
	})
	return nil
}
