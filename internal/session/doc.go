// Package session implements the session lifecycle orchestrator.
//
// A Session is one tenant's connection to the chat network. It owns its
// driver handle exclusively and advances a state machine driven by driver
// events:
//
//	Created -> AwaitingQR -> Authenticated -> Ready
//
// Disconnected (from Authenticated/Ready) and AuthFailed (from AwaitingQR)
// re-enter AwaitingQR through driver reinitialization with exponential
// backoff, bounded by a retry budget. Exhausting the budget moves the
// session to the terminal Failed state, which requires explicit deletion and
// re-creation.
//
// Each session processes driver events on a single goroutine, so transitions
// within one session are strictly ordered; nothing is guaranteed across
// sessions. State changes that affect readiness are written through to the
// store; persistence failures are logged and retried on the next change,
// with in-memory state staying authoritative.
//
// The Registry is the sole entry point for session mutation. Its directory
// lock covers only map access: driver calls, store writes, and webhook
// dispatch always run with the lock released.
package session
