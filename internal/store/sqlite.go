// ABOUTME: SQLite implementation of the Store interface using modernc.org/sqlite
// ABOUTME: Provides session record persistence with automatic schema creation

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewSQLiteStore creates a new SQLite store at the given path.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Serialize writers through a single connection so a failed write can
	// never leave a half-applied record visible alongside a good one.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{
		db:     db,
		logger: logger,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS sessions (
			id          TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			ready       INTEGER NOT NULL DEFAULT 0,
			webhooks    TEXT,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return nil
}

// Load returns all persisted session records, oldest first.
func (s *SQLiteStore) Load(ctx context.Context) ([]*SessionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, description, ready, webhooks, created_at, updated_at
		FROM sessions ORDER BY created_at
	`)
	if err != nil {
		return nil, fmt.Errorf("querying sessions: %w", err)
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get returns the record with the given id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (*SessionRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, description, ready, webhooks, created_at, updated_at
		FROM sessions WHERE id = ?
	`, id)

	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Upsert inserts or replaces the record for rec.ID.
func (s *SQLiteStore) Upsert(ctx context.Context, rec *SessionRecord) error {
	webhooksJSON, err := marshalWebhooks(rec.Webhooks)
	if err != nil {
		return err
	}

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	updatedAt := rec.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, description, ready, webhooks, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			description = excluded.description,
			ready       = excluded.ready,
			webhooks    = excluded.webhooks,
			updated_at  = excluded.updated_at
	`, rec.ID, rec.Description, boolToInt(rec.Ready), webhooksJSON,
		createdAt.Format(time.RFC3339Nano), updatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upserting session %s: %w", rec.ID, err)
	}
	return nil
}

// Remove deletes the record with the given id.
func (s *SQLiteStore) Remove(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting session %s: %w", id, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*SessionRecord, error) {
	var rec SessionRecord
	var ready int
	var webhooksJSON sql.NullString
	var createdAt, updatedAt string

	if err := row.Scan(&rec.ID, &rec.Description, &ready, &webhooksJSON, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		return nil, fmt.Errorf("scanning session record: %w", err)
	}

	rec.Ready = ready != 0

	if webhooksJSON.Valid && webhooksJSON.String != "" {
		if err := json.Unmarshal([]byte(webhooksJSON.String), &rec.Webhooks); err != nil {
			return nil, fmt.Errorf("unmarshaling webhooks for %s: %w", rec.ID, err)
		}
	}

	var err error
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at for %s: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at for %s: %w", rec.ID, err)
	}

	return &rec, nil
}

func marshalWebhooks(webhooks []string) (*string, error) {
	if len(webhooks) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(webhooks)
	if err != nil {
		return nil, fmt.Errorf("marshaling webhooks: %w", err)
	}
	str := string(b)
	return &str, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
