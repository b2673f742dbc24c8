// Package lists keeps users and their named note lists in SQLite.
package lists

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/avdivo/dev-organizer/internal/domain"
	domcol "github.com/avdivo/dev-organizer/internal/domain/collection"
)

// openDB is a package-level var to allow test injection.
var openDB = sql.Open

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	name        TEXT NOT NULL,
	external_id TEXT NOT NULL UNIQUE,
	created_at  INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS user_lists (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id    INTEGER NOT NULL REFERENCES users (id) ON DELETE CASCADE,
	list_name  TEXT NOT NULL,
	config     TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL,
	UNIQUE (user_id, list_name)
);`

// Store is the SQLite-backed user and list store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) the database at path and applies the schema.
// Use ":memory:" for an ephemeral store.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := openDB("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps ":memory:" databases shared and serializes writers
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close() //nolint:wrapcheck // passthrough
}

// Ping checks the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping sqlite: %w", err)
	}
	return nil
}

// EnsureUser returns the user with externalID, creating it when missing.
func (s *Store) EnsureUser(ctx context.Context, externalID, name string) (domcol.User, error) {
	externalID = strings.TrimSpace(externalID)
	if externalID == "" {
		return domcol.User{}, fmt.Errorf("user id is required: %w", domain.ErrInvalidRequest)
	}
	if name == "" {
		name = externalID
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (name, external_id, created_at) VALUES (?, ?, ?)
		 ON CONFLICT (external_id) DO NOTHING`,
		name, externalID, s.now().Unix())
	if err != nil {
		return domcol.User{}, fmt.Errorf("insert user %s: %w", externalID, err)
	}
	return s.user(ctx, externalID)
}

func (s *Store) user(ctx context.Context, externalID string) (domcol.User, error) {
	var u domcol.User
	var created int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, external_id, created_at FROM users WHERE external_id = ?`, externalID,
	).Scan(&u.ID, &u.Name, &u.ExternalID, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return domcol.User{}, fmt.Errorf("user %s: %w", externalID, domain.ErrNotFound)
	}
	if err != nil {
		return domcol.User{}, fmt.Errorf("select user %s: %w", externalID, err)
	}
	u.CreatedAt = time.Unix(created, 0).UTC()
	return u, nil
}

// Lists returns the lists of a user ordered by creation. Unknown users have none.
func (s *Store) Lists(ctx context.Context, externalID string) ([]domcol.List, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT l.list_name, l.config, l.created_at
		 FROM user_lists l JOIN users u ON u.id = l.user_id
		 WHERE u.external_id = ?
		 ORDER BY l.id`, externalID)
	if err != nil {
		return nil, fmt.Errorf("select lists of %s: %w", externalID, err)
	}
	defer rows.Close()

	var out []domcol.List
	for rows.Next() {
		var name, config string
		var created int64
		if err := rows.Scan(&name, &config, &created); err != nil {
			return nil, fmt.Errorf("scan list: %w", err)
		}
		out = append(out, domcol.Reconstruct(name, config, time.Unix(created, 0).UTC()))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate lists: %w", err)
	}
	return out, nil
}

// CreateList adds a list for the user. A duplicate name yields domain.ErrAlreadyExists,
// an unknown user domain.ErrNotFound.
func (s *Store) CreateList(ctx context.Context, externalID string, l domcol.List) error {
	name := l.Name()
	if name == "" {
		return fmt.Errorf("list name is required: %w", domain.ErrInvalidRequest)
	}

	u, err := s.user(ctx, externalID)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO user_lists (user_id, list_name, config, created_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (user_id, list_name) DO NOTHING`,
		u.ID, name, l.Config(), s.now().Unix())
	if err != nil {
		return fmt.Errorf("insert list %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("list %q: %w", name, domain.ErrAlreadyExists)
	}
	return nil
}
