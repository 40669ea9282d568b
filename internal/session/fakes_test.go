// ABOUTME: Test doubles for the session package
// ABOUTME: Controllable fake driver/factory and a recording event sink

package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/2389/zap-gateway/internal/bus"
	"github.com/2389/zap-gateway/internal/driver"
)

// fakeDriver is a hand-operated driver: tests push events into emit.
type fakeDriver struct {
	sessionID string
	events    chan driver.Event

	mu         sync.Mutex
	stopped    bool
	sent       []string
	registered []string // nil means every recipient is registered
	sendErr    error
}

func (d *fakeDriver) Start(context.Context) error { return nil }

func (d *fakeDriver) Events() <-chan driver.Event { return d.events }

func (d *fakeDriver) IsRegistered(_ context.Context, recipient string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.registered == nil {
		return true, nil
	}
	for _, r := range d.registered {
		if r == recipient {
			return true, nil
		}
	}
	return false, nil
}

func (d *fakeDriver) Send(_ context.Context, recipient, _ string) (*driver.Receipt, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.sendErr != nil {
		return nil, d.sendErr
	}
	if d.stopped {
		return nil, fmt.Errorf("driver stopped")
	}
	d.sent = append(d.sent, recipient)
	return &driver.Receipt{MessageID: "receipt-" + recipient, Timestamp: time.Now().UTC()}, nil
}

func (d *fakeDriver) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	return nil
}

func (d *fakeDriver) isStopped() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stopped
}

func (d *fakeDriver) emit(ev driver.Event) {
	d.events <- ev
}

// fakeFactory hands out fake drivers and remembers them in creation order.
type fakeFactory struct {
	mu         sync.Mutex
	created    []*fakeDriver
	newErr     error
	registered []string
	sendErr    error
}

func (f *fakeFactory) new(sessionID string) (driver.Driver, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.newErr != nil {
		return nil, f.newErr
	}
	d := &fakeDriver{
		sessionID:  sessionID,
		events:     make(chan driver.Event, 16),
		registered: f.registered,
		sendErr:    f.sendErr,
	}
	f.created = append(f.created, d)
	return d, nil
}

func (f *fakeFactory) latest() *fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.created) == 0 {
		return nil
	}
	return f.created[len(f.created)-1]
}

func (f *fakeFactory) all() []*fakeDriver {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeDriver(nil), f.created...)
}

func (f *fakeFactory) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.created)
}

// recordingSink captures published events in order.
type recordingSink struct {
	mu     sync.Mutex
	events []*bus.Event
}

func (s *recordingSink) Publish(event *bus.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
}

func (s *recordingSink) SetWebhooks(string, []string) {}
func (s *recordingSink) DropSession(string)           {}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

func (s *recordingSink) kinds() []driver.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	kinds := make([]driver.EventKind, 0, len(s.events))
	for _, ev := range s.events {
		kinds = append(kinds, ev.Kind)
	}
	return kinds
}

func (s *recordingSink) lastKind() driver.EventKind {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return ""
	}
	return s.events[len(s.events)-1].Kind
}
