// ABOUTME: Session lifecycle states and their allowed progression
// ABOUTME: Created -> AwaitingQR -> Authenticated -> Ready, with bounded-retry re-entry

package session

// State is a session's position in the pairing lifecycle.
type State int

const (
	// StateCreated is the initial state before the driver has started.
	StateCreated State = iota

	// StateAwaitingQR means the driver is running and a pairing code is (or
	// will shortly be) available for a human to scan.
	StateAwaitingQR

	// StateAuthenticated means the pairing code was accepted by the network.
	StateAuthenticated

	// StateReady means the session can send and receive messages.
	StateReady

	// StateFailed is terminal: the reconnect budget was exhausted. The
	// session must be deleted and re-created by the caller.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateAwaitingQR:
		return "awaiting_qr"
	case StateAuthenticated:
		return "authenticated"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the state as its string name in API responses.
func (s State) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}
