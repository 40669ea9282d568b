// ABOUTME: Store interface and data types for session metadata persistence
// ABOUTME: Defines SessionRecord and the Store interface reloaded at startup

package store

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist
var ErrNotFound = errors.New("not found")

// SessionRecord is the durable projection of a session. It carries metadata
// only: the live pairing state exists solely inside the driver process, so a
// reloaded record always reconstitutes into an unpaired session regardless of
// the persisted Ready flag.
type SessionRecord struct {
	ID          string
	Description string
	Ready       bool
	Webhooks    []string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store defines the interface for session metadata persistence.
// A write either fully succeeds or leaves the prior durable state intact.
type Store interface {
	// Load returns every persisted record, oldest first.
	Load(ctx context.Context) ([]*SessionRecord, error)

	// Get returns the record with the given id, or ErrNotFound.
	Get(ctx context.Context, id string) (*SessionRecord, error)

	// Upsert inserts or replaces the record for rec.ID.
	Upsert(ctx context.Context, rec *SessionRecord) error

	// Remove deletes the record with the given id. Returns ErrNotFound if
	// no such record exists.
	Remove(ctx context.Context, id string) error

	// Close releases any resources held by the store
	Close() error
}
