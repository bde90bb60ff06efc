// Package neo4jstore implements storage.Storage on top of a Neo4j database.
//
// Each todo is a (:Todo {id, name, completed, version}) node. Integer ids
// come from a single (:TodoSequence) counter node that is incremented in
// the same write transaction that creates the todo.
package neo4jstore

import (
	"context"
	"fmt"

	"github.com/aanand-mishra/todo-api/internal/config"
	"github.com/aanand-mishra/todo-api/internal/storage"
	"github.com/aanand-mishra/todo-api/internal/types"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

const (
	returnTodo = "RETURN t.id AS id, t.name AS name, t.completed AS completed, t.version AS version"

	listQuery = "MATCH (t:Todo) " + returnTodo + " ORDER BY t.id"
	findQuery = "MATCH (t:Todo {id: $id}) " + returnTodo

	insertQuery = "MERGE (s:TodoSequence {name: 'todo'}) " +
		"ON CREATE SET s.next = 0 " +
		"SET s.next = s.next + 1 " +
		"WITH s.next AS id " +
		"CREATE (t:Todo {id: id, name: $name, completed: $completed, version: 1}) " +
		"RETURN t.id AS id"

	updateQuery = "MATCH (t:Todo {id: $id}) " +
		"WHERE $version = 0 OR t.version = $version " +
		"SET t.name = $name, t.completed = $completed, t.version = t.version + 1 " +
		"RETURN t.version AS version"

	deleteQuery = "MATCH (t:Todo {id: $id}) DETACH DELETE t"
	existsQuery = "MATCH (t:Todo {id: $id}) RETURN count(t) > 0 AS found"

)

// schemaQueries run once per New, each in its own transaction. The sequence
// constraint makes concurrent first inserts agree on a single counter node
// instead of each MERGE creating one.
var schemaQueries = []string{
	"CREATE CONSTRAINT todo_id IF NOT EXISTS FOR (t:Todo) REQUIRE t.id IS UNIQUE",
	"CREATE CONSTRAINT todo_sequence_name IF NOT EXISTS FOR (s:TodoSequence) REQUIRE s.name IS UNIQUE",
}

// Store is a Neo4j-backed storage.Storage.
type Store struct {
	driver   neo4j.DriverWithContext
	database string
}

var _ storage.Storage = (*Store)(nil)

// New connects to the Neo4j instance described by cfg.Neo4j, verifies
// connectivity and makes sure the uniqueness constraints exist.
func New(ctx context.Context, cfg *config.Config) (*Store, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.Neo4j.URI,
		neo4j.BasicAuth(cfg.Neo4j.Username, cfg.Neo4j.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("neo4jstore.New: driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jstore.New: verify connectivity: %w", err)
	}

	s := &Store{driver: driver, database: cfg.Neo4j.Database}

	if err := s.ensureSchema(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4jstore.New: %w", err)
	}

	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	for _, query := range schemaQueries {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, query, nil)
			if err != nil {
				return nil, err
			}
			return res.Consume(ctx)
		})
		if err != nil {
			return fmt.Errorf("create constraint: %w", err)
		}
	}
	return nil
}

func (s *Store) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{
		AccessMode:   mode,
		DatabaseName: s.database,
	})
}

// Close shuts the driver down.
func (s *Store) Close() error {
	return s.driver.Close(context.Background())
}

// List retrieves all todos ordered by id.
func (s *Store) List(ctx context.Context) ([]types.Todo, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, listQuery, nil)
		if err != nil {
			return nil, err
		}

		todos := make([]types.Todo, 0)
		for res.Next(ctx) {
			todo, err := recordToTodo(res.Record())
			if err != nil {
				return nil, err
			}
			todos = append(todos, todo)
		}
		if err := res.Err(); err != nil {
			return nil, err
		}
		return todos, nil
	})
	if err != nil {
		return nil, fmt.Errorf("List: %w", err)
	}

	return result.([]types.Todo), nil
}

// Find retrieves a single todo by id, or nil when absent.
func (s *Store) Find(ctx context.Context, id int64) (*types.Todo, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, findQuery, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		todo, err := recordToTodo(res.Record())
		if err != nil {
			return nil, err
		}
		return &todo, nil
	})
	if err != nil {
		return nil, fmt.Errorf("Find: %w", err)
	}
	if result == nil {
		return nil, nil
	}

	return result.(*types.Todo), nil
}

// Insert creates the todo node and writes the assigned id and version back.
func (s *Store) Insert(ctx context.Context, todo *types.Todo) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, insertQuery, map[string]any{
			"name":      todo.Name,
			"completed": todo.Completed,
		})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		id, _, err := neo4j.GetRecordValue[int64](record, "id")
		return id, err
	})
	if err != nil {
		return fmt.Errorf("Insert: %w", err)
	}

	todo.ID = result.(int64)
	todo.Version = 1
	return nil
}

// Update replaces name and completed, pinning the version when one is known.
// No matched node means storage.ErrConcurrencyConflict.
func (s *Store) Update(ctx context.Context, todo *types.Todo) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, updateQuery, map[string]any{
			"id":        todo.ID,
			"version":   todo.Version,
			"name":      todo.Name,
			"completed": todo.Completed,
		})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		version, _, err := neo4j.GetRecordValue[int64](res.Record(), "version")
		return version, err
	})
	if err != nil {
		return fmt.Errorf("Update: %w", err)
	}
	if result == nil {
		return storage.ErrConcurrencyConflict
	}

	todo.Version = result.(int64)
	return nil
}

// Delete removes the todo node. storage.ErrNotFound when nothing matched.
func (s *Store) Delete(ctx context.Context, todo *types.Todo) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, deleteQuery, map[string]any{"id": todo.ID})
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesDeleted(), nil
	})
	if err != nil {
		return fmt.Errorf("Delete: %w", err)
	}
	if result.(int) == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// Exists reports whether a todo node with id exists.
func (s *Store) Exists(ctx context.Context, id int64) (bool, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, existsQuery, map[string]any{"id": id})
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		found, _, err := neo4j.GetRecordValue[bool](record, "found")
		return found, err
	})
	if err != nil {
		return false, fmt.Errorf("Exists: %w", err)
	}

	return result.(bool), nil
}

func recordToTodo(record *neo4j.Record) (types.Todo, error) {
	var (
		todo types.Todo
		err  error
	)
	if todo.ID, _, err = neo4j.GetRecordValue[int64](record, "id"); err != nil {
		return types.Todo{}, err
	}
	if todo.Name, _, err = neo4j.GetRecordValue[string](record, "name"); err != nil {
		return types.Todo{}, err
	}
	if todo.Completed, _, err = neo4j.GetRecordValue[bool](record, "completed"); err != nil {
		return types.Todo{}, err
	}
	if todo.Version, _, err = neo4j.GetRecordValue[int64](record, "version"); err != nil {
		return types.Todo{}, err
	}
	return todo, nil
}
