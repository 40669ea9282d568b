// Package store provides durable persistence for session metadata using SQLite.
//
// The store is the source of truth for metadata only: id, description, the
// last known readiness flag, and the registered webhook URLs. Pairing state
// lives inside the live driver process and is never persisted, which is why
// reloaded records always reconstitute into unpaired sessions at startup.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode and a single write connection:
//
//	PRAGMA journal_mode=WAL;
//
// A write either fully succeeds or leaves the prior durable state intact;
// there is never a half-written record.
//
// Use NewSQLiteStore(":memory:") for tests.
package store
