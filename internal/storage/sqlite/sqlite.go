// Package sqlite provides a SQLite-backed implementation of the
// storage.Storage interface using Go's standard database/sql package.
//
// The blank import below registers the sqlite3 driver with database/sql.
// The driver's init() function does this automatically when the package
// is loaded; we never call anything from it directly.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/aanand-mishra/todo-api/internal/config"
	"github.com/aanand-mishra/todo-api/internal/storage"
	"github.com/aanand-mishra/todo-api/internal/types"

	// Blank import: side-effect only (registers the "sqlite3" driver).
	_ "github.com/mattn/go-sqlite3"
)

// SQLite is the concrete implementation of storage.Storage.
// It holds a *sql.DB which is a connection pool managed by database/sql.
// A single *sql.DB is safe for concurrent use by multiple goroutines.
type SQLite struct {
	Db *sql.DB
}

var _ storage.Storage = (*SQLite)(nil)

// New opens the SQLite database at cfg.StoragePath, creates the todos
// table if it does not already exist, and returns a ready-to-use *SQLite.
func New(cfg *config.Config) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn(cfg.StoragePath))
	if err != nil {
		return nil, fmt.Errorf("sqlite.New: open db: %w", err)
	}

	// CREATE TABLE IF NOT EXISTS is idempotent, safe to run on every startup.
	//
	// Schema:
	//   id        — integer primary key, auto-incremented by SQLite
	//   name      — the todo text
	//   completed — 0 or 1
	//   version   — optimistic-concurrency token, bumped on every update
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS todos (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			name      TEXT    NOT NULL,
			completed INTEGER NOT NULL DEFAULT 0,
			version   INTEGER NOT NULL DEFAULT 1
		)
	`)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("sqlite.New: create table: %w", err)
	}

	return &SQLite{Db: db}, nil
}

// dsn appends the driver options we always want: a busy timeout so
// parallel writers wait instead of failing with SQLITE_BUSY, and WAL so
// readers do not block the writer.
func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_busy_timeout=5000&_journal_mode=WAL"
}

// Close closes the underlying connection pool.
func (s *SQLite) Close() error {
	return s.Db.Close()
}

// List returns all todo rows ordered by id.
func (s *SQLite) List(ctx context.Context) ([]types.Todo, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"SELECT id, name, completed, version FROM todos ORDER BY id",
	)
	if err != nil {
		return nil, fmt.Errorf("List: prepare: %w", err)
	}
	defer stmt.Close()

	rows, err := stmt.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("List: query: %w", err)
	}
	defer rows.Close()

	todos := make([]types.Todo, 0)
	for rows.Next() {
		var todo types.Todo
		if err := rows.Scan(&todo.ID, &todo.Name, &todo.Completed, &todo.Version); err != nil {
			return nil, fmt.Errorf("List: scan row: %w", err)
		}
		todos = append(todos, todo)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("List: rows iteration: %w", err)
	}

	return todos, nil
}

// Find fetches exactly one todo row matched by primary key.
// A miss is (nil, nil), not an error.
func (s *SQLite) Find(ctx context.Context, id int64) (*types.Todo, error) {
	stmt, err := s.Db.PrepareContext(ctx,
		"SELECT id, name, completed, version FROM todos WHERE id = ? LIMIT 1",
	)
	if err != nil {
		return nil, fmt.Errorf("Find: prepare: %w", err)
	}
	defer stmt.Close()

	var todo types.Todo
	err = stmt.QueryRowContext(ctx, id).Scan(&todo.ID, &todo.Name, &todo.Completed, &todo.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("Find: scan: %w", err)
	}

	return &todo, nil
}

// Insert adds a new row. Whatever ID the caller set is ignored; SQLite
// assigns one and it is written back into todo along with the version.
func (s *SQLite) Insert(ctx context.Context, todo *types.Todo) error {
	stmt, err := s.Db.PrepareContext(ctx,
		"INSERT INTO todos (name, completed, version) VALUES (?, ?, 1)",
	)
	if err != nil {
		return fmt.Errorf("Insert: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, todo.Name, todo.Completed)
	if err != nil {
		return fmt.Errorf("Insert: exec: %w", err)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("Insert: last insert id: %w", err)
	}

	todo.ID = lastID
	todo.Version = 1
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Update replaces name and completed of the row with todo.ID and bumps its
// version.
//
// With a non-zero todo.Version the WHERE clause also pins the version, so a
// writer holding a stale copy updates nothing. Either way, zero affected
// rows is reported as storage.ErrConcurrencyConflict; the caller decides
// whether that means "gone" or "changed" by calling Exists.
// ─────────────────────────────────────────────────────────────────────────────
func (s *SQLite) Update(ctx context.Context, todo *types.Todo) error {
	query := "UPDATE todos SET name = ?, completed = ?, version = version + 1 WHERE id = ?"
	args := []any{todo.Name, todo.Completed, todo.ID}
	if todo.Version != 0 {
		query += " AND version = ?"
		args = append(args, todo.Version)
	}
	query += " RETURNING version"

	stmt, err := s.Db.PrepareContext(ctx, query)
	if err != nil {
		return fmt.Errorf("Update: prepare: %w", err)
	}
	defer stmt.Close()

	var version int64
	if err := stmt.QueryRowContext(ctx, args...).Scan(&version); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrConcurrencyConflict
		}
		return fmt.Errorf("Update: exec: %w", err)
	}

	todo.Version = version
	return nil
}

// Delete removes a todo row by primary key.
func (s *SQLite) Delete(ctx context.Context, todo *types.Todo) error {
	stmt, err := s.Db.PrepareContext(ctx, "DELETE FROM todos WHERE id = ?")
	if err != nil {
		return fmt.Errorf("Delete: prepare: %w", err)
	}
	defer stmt.Close()

	result, err := stmt.ExecContext(ctx, todo.ID)
	if err != nil {
		return fmt.Errorf("Delete: exec: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("Delete: rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// Exists reports whether a row with id is stored.
func (s *SQLite) Exists(ctx context.Context, id int64) (bool, error) {
	var exists bool
	err := s.Db.QueryRowContext(ctx,
		"SELECT EXISTS(SELECT 1 FROM todos WHERE id = ?)", id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("Exists: scan: %w", err)
	}
	return exists, nil
}
