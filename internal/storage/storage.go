// Package storage defines the persistence gateway every backend must
// satisfy. Handlers depend only on this interface, so the SQLite, Neo4j
// and in-memory backends are interchangeable and tests can pass a fake.
//
// The gateway is the single source of truth for what "not found" and
// "conflict" mean: backends report those as the sentinel errors below and
// handlers compare with errors.Is.
package storage

import (
	"context"
	"errors"

	"github.com/aanand-mishra/todo-api/internal/types"
)

var (
	// ErrNotFound means no row with the addressed Id exists.
	ErrNotFound = errors.New("todo not found")

	// ErrConcurrencyConflict means the row was modified or removed since it
	// was read, so the update affected nothing.
	ErrConcurrencyConflict = errors.New("concurrency conflict: the todo was modified or deleted since it was read")
)

// Storage is the persistence contract for Todo items.
type Storage interface {
	// List returns every stored Todo. An empty slice is not an error.
	List(ctx context.Context) ([]types.Todo, error)

	// Find looks a Todo up by primary key. It returns (nil, nil) when absent.
	Find(ctx context.Context, id int64) (*types.Todo, error)

	// Insert stores a new Todo. The store assigns ID and Version and writes
	// them back into todo.
	Insert(ctx context.Context, todo *types.Todo) error

	// Update fully replaces the row with todo.ID. A zero Version replaces
	// unconditionally; a non-zero Version must match the stored one.
	// Returns ErrConcurrencyConflict when nothing was updated.
	Update(ctx context.Context, todo *types.Todo) error

	// Delete removes the row with todo.ID. Returns ErrNotFound when absent.
	Delete(ctx context.Context, todo *types.Todo) error

	// Exists reports whether a row with id is stored.
	Exists(ctx context.Context, id int64) (bool, error)

	// Close releases the backend's resources.
	Close() error
}
