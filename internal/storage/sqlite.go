package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/hammamikhairi/souschef/internal/domain"
	"github.com/hammamikhairi/souschef/internal/logger"
)

// Compile-time interface check.
var _ domain.SessionStore = (*SQLiteStore)(nil)

// SQLiteStore persists session snapshots in a single-file SQLite
// database. Each session is one row holding the full JSON snapshot;
// indexed columns exist only for listing.
type SQLiteStore struct {
	db  *sql.DB
	log *logger.Logger
}

// OpenSQLite opens (or creates) the session database at path.
func OpenSQLite(path string, log *logger.Logger) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, fmt.Errorf("storage: create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage: open session db: %w", err)
	}
	if _, err := db.Exec(`PRAGMA journal_mode = WAL`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: set journal mode: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout = 5000`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: set busy timeout: %w", err)
	}
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS sessions (
	id TEXT PRIMARY KEY,
	recipe_id TEXT NOT NULL,
	payload TEXT NOT NULL,
	updated_at TEXT NOT NULL
)`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("storage: initialize schema: %w", err)
	}

	log.Debug("session db open at %s", path)
	return &SQLiteStore{db: db, log: log}, nil
}

// Close releases the database handle.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Save persists a session snapshot, overwriting any previous row.
func (s *SQLiteStore) Save(ctx context.Context, session *domain.Session) error {
	payload, err := encodeSession(session)
	if err != nil {
		return fmt.Errorf("storage: encode session %s: %w", session.ID, err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, recipe_id, payload, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		 recipe_id = excluded.recipe_id,
		 payload = excluded.payload,
		 updated_at = excluded.updated_at`,
		session.ID,
		session.RecipeID,
		string(payload),
		session.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("storage: save session %s: %w", session.ID, err)
	}
	s.log.Debug("saved session %s (recipe=%s, state=%s)", session.ID, session.RecipeID, session.State)
	return nil
}

// Load retrieves a session by ID.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT payload FROM sessions WHERE id = ?`, id).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("storage: query session %s: %w", id, err)
	}
	return decodeSession([]byte(payload))
}

// Delete removes a session by ID.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("storage: delete session %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("storage: delete session %s: %w", id, err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns all stored sessions, most recently updated first.
func (s *SQLiteStore) List(ctx context.Context) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT payload FROM sessions ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("storage: list sessions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Session
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("storage: scan session row: %w", err)
		}
		session, err := decodeSession([]byte(payload))
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage: iterate session rows: %w", err)
	}
	return out, nil
}
