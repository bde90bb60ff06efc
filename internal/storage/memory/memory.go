// Package memory is an in-process storage.Storage backed by a map.
// It is used by tests and by the "memory" storage driver for local runs.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/aanand-mishra/todo-api/internal/storage"
	"github.com/aanand-mishra/todo-api/internal/types"
)

// Memory keeps todos keyed by id behind a mutex.
type Memory struct {
	mu     sync.Mutex
	nextID int64
	todos  map[int64]types.Todo
}

var _ storage.Storage = (*Memory)(nil)

// New returns an empty store whose first assigned id is 1.
func New() *Memory {
	return &Memory{
		nextID: 1, // start at 1 so a zero id always means "unassigned"
		todos:  make(map[int64]types.Todo),
	}
}

// List returns a copy of every todo ordered by id.
func (m *Memory) List(ctx context.Context) ([]types.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]types.Todo, 0, len(m.todos))
	for _, todo := range m.todos {
		out = append(out, todo)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Find returns a copy of the todo with id, or nil, nil when absent.
func (m *Memory) Find(ctx context.Context, id int64) (*types.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	todo, ok := m.todos[id]
	if !ok {
		return nil, nil
	}
	return &todo, nil
}

// Insert assigns the next id and version 1, writing both back into todo.
// Any id already set on todo is ignored.
func (m *Memory) Insert(ctx context.Context, todo *types.Todo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	todo.ID = m.nextID
	todo.Version = 1
	m.nextID++
	m.todos[todo.ID] = *todo
	return nil
}

// Update replaces the stored todo and bumps its version. A missing id, or a
// non-zero version that no longer matches, is storage.ErrConcurrencyConflict.
func (m *Memory) Update(ctx context.Context, todo *types.Todo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current, ok := m.todos[todo.ID]
	if !ok || (todo.Version != 0 && todo.Version != current.Version) {
		return storage.ErrConcurrencyConflict
	}
	todo.Version = current.Version + 1
	m.todos[todo.ID] = *todo
	return nil
}

// Delete removes the todo with todo.ID, or returns storage.ErrNotFound.
func (m *Memory) Delete(ctx context.Context, todo *types.Todo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.todos[todo.ID]; !ok {
		return storage.ErrNotFound
	}
	delete(m.todos, todo.ID)
	return nil
}

// Exists reports whether a todo with id is stored.
func (m *Memory) Exists(ctx context.Context, id int64) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.todos[id]
	return ok, nil
}

// Close is a no-op; there is nothing to release.
func (m *Memory) Close() error { return nil }
