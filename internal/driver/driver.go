// ABOUTME: Contract for the connection driver that pairs with and talks to the chat network
// ABOUTME: Defines the lifecycle event vocabulary pushed to the owning session over a channel

package driver

import (
	"context"
	"time"
)

// EventKind identifies a driver lifecycle event.
type EventKind string

const (
	// KindPairingCode carries a fresh machine-generated pairing code that a
	// human must present to the network to authorize the session.
	KindPairingCode EventKind = "pairing_code"

	// KindAuthenticated means the pairing code was accepted.
	KindAuthenticated EventKind = "authenticated"

	// KindReady means the connection is fully established and can send.
	KindReady EventKind = "ready"

	// KindAuthFailed means the pairing attempt was rejected or timed out.
	KindAuthFailed EventKind = "auth_failed"

	// KindDisconnected means an established connection was lost.
	KindDisconnected EventKind = "disconnected"

	// KindMessageReceived carries an inbound message from the network.
	KindMessageReceived EventKind = "message_received"

	// KindFailed is emitted by the session supervisor, never by a driver,
	// when the reconnect budget is exhausted and the session goes terminal.
	KindFailed EventKind = "failed"
)

// Event is a single lifecycle notification from a driver. Exactly one of the
// payload fields is meaningful depending on Kind.
type Event struct {
	Kind        EventKind
	PairingCode []byte          // KindPairingCode: opaque, forwarded as-is
	Reason      string          // KindAuthFailed, KindDisconnected
	Message     *InboundMessage // KindMessageReceived
}

// InboundMessage is a message received from the network.
type InboundMessage struct {
	From      string    `json:"from"`
	Body      string    `json:"body"`
	Timestamp time.Time `json:"timestamp"`
}

// Receipt acknowledges a successfully delivered outbound message.
type Receipt struct {
	MessageID string    `json:"messageId"`
	Timestamp time.Time `json:"timestamp"`
}

// Driver is one connection handle to the external chat network. A driver is
// exclusively owned by a single session; the session is the only reader of
// Events and the only caller of the other methods.
//
// Start begins the pairing ceremony asynchronously. Events delivers lifecycle
// notifications in emission order until Stop is called or the driver gives up,
// after which the channel is closed. Stop is idempotent.
type Driver interface {
	Start(ctx context.Context) error
	Events() <-chan Event
	IsRegistered(ctx context.Context, recipient string) (bool, error)
	Send(ctx context.Context, recipient, body string) (*Receipt, error)
	Stop() error
}

// Factory creates a fresh driver for a session. The registry calls it on
// session creation and again on every reconnect attempt, since a driver
// handle is single-use: once stopped or disconnected it is discarded.
type Factory func(sessionID string) (Driver, error)
