// Package todo contains all HTTP handlers for the Todo resource.
//
// Handlers are built with the closure / factory pattern: each exported
// function receives the storage dependency once at startup and returns the
// http.HandlerFunc the router calls on every request.
//
//	mux.HandleFunc("GET /api/Todo/{id}", todo.GetByID(store))
//
// Every response, success or failure, is a JSON envelope whose Status
// mirrors the HTTP status code (see package response).
package todo

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/aanand-mishra/todo-api/internal/storage"
	"github.com/aanand-mishra/todo-api/internal/types"
	"github.com/aanand-mishra/todo-api/internal/utils/response"
	"github.com/go-playground/validator/v10"
)

const (
	msgListOK    = "Got list of todos successfully"
	msgListEmpty = "No todos found"
	msgGetOK     = "Got todo successfully"
	msgNotFound  = "No todo found at the entered Id"
	msgCreated   = "Created todo successfully"
	msgUpdated   = "Updated todo successfully"
	msgDeleted   = "Deleted todo successfully"

	// createdLocation is sent as the Location header on 201. Existing
	// clients expect this literal collection name, not a URL.
	createdLocation = "TodoDB"
)

const (
	collectionPath = "/api/Todo"
	itemPrefix     = collectionPath + "/"

	msgRouteNotFound    = "No route matches the requested path"
	msgMethodNotAllowed = "Method not allowed"
)

var errInvalidID = errors.New("invalid id: must be an integer")

// validate is safe for concurrent use and caches struct metadata.
var validate = types.NewValidator()

// Register binds the CRUD routes on mux.
//
// Route table:
//
//	GET    /api/Todo        → list all todos
//	GET    /api/Todo/{id}   → get one todo by ID
//	POST   /api/Todo        → create a new todo
//	PUT    /api/Todo/{id}   → replace a todo
//	DELETE /api/Todo/{id}   → delete a todo
func Register(mux *http.ServeMux, store storage.Storage) {
	mux.HandleFunc("GET /api/Todo", GetList(store))
	mux.HandleFunc("GET /api/Todo/{id}", GetByID(store))
	mux.HandleFunc("POST /api/Todo", New(store))
	mux.HandleFunc("PUT /api/Todo/{id}", Update(store))
	mux.HandleFunc("DELETE /api/Todo/{id}", Delete(store))
	mux.HandleFunc("/", fallback(mux))
}

// fallback receives every request no CRUD route matched.
//
// Paths are matched case-insensitively, so "/api/todo/1" is rewritten to
// "/api/Todo/1" and dispatched again. A request that still lands here gets
// a 405 envelope when its path names the resource, and a 404 envelope
// otherwise.
func fallback(mux *http.ServeMux) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if canonical := canonicalPath(path); canonical != path {
			r2 := r.Clone(r.Context())
			r2.URL.Path = canonical
			r2.URL.RawPath = ""
			mux.ServeHTTP(w, r2)
			return
		}

		switch {
		case path == collectionPath:
			methodNotAllowed(w, r, "GET, POST")
		case isItemPath(path):
			methodNotAllowed(w, r, "GET, PUT, DELETE")
		default:
			slog.Info("no route matched",
				slog.String("method", r.Method),
				slog.String("path", path))
			response.WriteJSON(w, http.StatusNotFound, response.NotFound(msgRouteNotFound))
		}
	}
}

// canonicalPath restores the resource segment's casing. Anything that is
// not under /api/Todo is returned unchanged.
func canonicalPath(path string) string {
	switch {
	case strings.EqualFold(path, collectionPath):
		return collectionPath
	case len(path) >= len(itemPrefix) && strings.EqualFold(path[:len(itemPrefix)], itemPrefix):
		return itemPrefix + path[len(itemPrefix):]
	}
	return path
}

// isItemPath reports whether path is /api/Todo/{id} with a single
// non-empty segment.
func isItemPath(path string) bool {
	id, ok := strings.CutPrefix(path, itemPrefix)
	return ok && id != "" && !strings.Contains(id, "/")
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allow string) {
	slog.Info("method not allowed",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path))
	w.Header().Set("Allow", allow)
	response.WriteJSON(w, http.StatusMethodNotAllowed, response.Response{
		Message: msgMethodNotAllowed,
		Status:  http.StatusMethodNotAllowed,
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// GetList handles GET /api/Todo
//
//	200 — { "Message": "Got list of todos successfully", "Status": 200, "Response": [...] }
//	404 — the store holds no todos
//	400 — any storage failure
//
// ─────────────────────────────────────────────────────────────────────────────
func GetList(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("getting all todos")

		todos, err := store.List(r.Context())
		if err != nil {
			badRequest(w, "error getting todos", err)
			return
		}

		if len(todos) == 0 {
			response.WriteJSON(w, http.StatusNotFound, response.NotFound(msgListEmpty))
			return
		}

		response.WriteJSON(w, http.StatusOK,
			response.OKList(http.StatusOK, msgListOK, todos))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID handles GET /api/Todo/{id}
//
//	200 — the todo
//	404 — no todo with that id
//	400 — id is not an integer, or storage failure
//
// ─────────────────────────────────────────────────────────────────────────────
func GetByID(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		slog.Info("getting a todo", slog.Int64("id", id))

		todo, err := store.Find(r.Context(), id)
		if err != nil {
			badRequest(w, "error getting todo", err, slog.Int64("id", id))
			return
		}
		if todo == nil {
			response.WriteJSON(w, http.StatusNotFound, response.NotFound(msgNotFound))
			return
		}

		response.WriteJSON(w, http.StatusOK,
			response.OK(http.StatusOK, msgGetOK, *todo))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// New handles POST /api/Todo
//
// Request body:
//
//	{ "Name": "buy milk", "Completed": false }
//
// Success (201 Created, Location: TodoDB):
//
//	{ "Message": "Created todo successfully", "Status": 201,
//	  "Response": { "Id": 1, "Name": "buy milk", "Completed": false } }
//
// ─────────────────────────────────────────────────────────────────────────────
func New(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		slog.Info("creating a todo")

		dto, ok := decodeDTO(w, r)
		if !ok {
			return
		}

		todo := types.DTOToModel(dto, 0)
		if err := store.Insert(r.Context(), &todo); err != nil {
			badRequest(w, "error creating todo", err)
			return
		}

		slog.Info("todo created", slog.Int64("id", todo.ID))

		w.Header().Set("Location", createdLocation)
		response.WriteJSON(w, http.StatusCreated,
			response.OK(http.StatusCreated, msgCreated, todo))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Update handles PUT /api/Todo/{id}
// Replaces Name and Completed of the todo addressed by the URL. The path
// id always wins; the body has no Id field to smuggle one in.
//
// When the store reports a concurrency conflict we ask whether the row
// still exists: if it is gone the client gets 404, otherwise the conflict
// is reported like any other failure (400).
// ─────────────────────────────────────────────────────────────────────────────
func Update(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		slog.Info("updating a todo", slog.Int64("id", id))

		dto, ok := decodeDTO(w, r)
		if !ok {
			return
		}

		todo := types.DTOToModel(dto, id)
		err := store.Update(r.Context(), &todo)
		if errors.Is(err, storage.ErrConcurrencyConflict) {
			exists, existsErr := store.Exists(r.Context(), id)
			switch {
			case existsErr != nil:
				err = existsErr
			case !exists:
				err = storage.ErrNotFound
			}
		}
		if errors.Is(err, storage.ErrNotFound) {
			response.WriteJSON(w, http.StatusNotFound, response.NotFound(msgNotFound))
			return
		}
		if err != nil {
			badRequest(w, "error updating todo", err, slog.Int64("id", id))
			return
		}

		slog.Info("todo updated", slog.Int64("id", id))
		response.WriteJSON(w, http.StatusOK,
			response.OK(http.StatusOK, msgUpdated, todo))
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete handles DELETE /api/Todo/{id}
// Permanently removes the todo and echoes the removed representation back
// so the client can confirm what was deleted.
// ─────────────────────────────────────────────────────────────────────────────
func Delete(store storage.Storage) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r)
		if !ok {
			return
		}
		slog.Info("deleting a todo", slog.Int64("id", id))

		todo, err := store.Find(r.Context(), id)
		if err != nil {
			badRequest(w, "error deleting todo", err, slog.Int64("id", id))
			return
		}
		if todo == nil {
			response.WriteJSON(w, http.StatusNotFound, response.NotFound(msgNotFound))
			return
		}

		err = store.Delete(r.Context(), todo)
		if errors.Is(err, storage.ErrNotFound) {
			response.WriteJSON(w, http.StatusNotFound, response.NotFound(msgNotFound))
			return
		}
		if err != nil {
			badRequest(w, "error deleting todo", err, slog.Int64("id", id))
			return
		}

		slog.Info("todo deleted", slog.Int64("id", id))
		response.WriteJSON(w, http.StatusOK,
			response.OK(http.StatusOK, msgDeleted, *todo))
	}
}

// pathID parses the {id} segment. On failure it writes the 400 envelope and
// returns ok=false.
func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(http.StatusBadRequest, errInvalidID))
		return 0, false
	}
	return id, true
}

// decodeDTO reads and validates the request body. On failure it writes the
// 400 envelope and returns ok=false.
func decodeDTO(w http.ResponseWriter, r *http.Request) (types.TodoDTO, bool) {
	var dto types.TodoDTO
	if err := response.DecodeJSON(r, &dto); err != nil {
		response.WriteJSON(w, http.StatusBadRequest,
			response.GeneralError(http.StatusBadRequest, err))
		return dto, false
	}

	if err := validate.Struct(dto); err != nil {
		var validateErrs validator.ValidationErrors
		if errors.As(err, &validateErrs) {
			response.WriteJSON(w, http.StatusBadRequest,
				response.ValidationError(http.StatusBadRequest, validateErrs))
		} else {
			response.WriteJSON(w, http.StatusBadRequest,
				response.GeneralError(http.StatusBadRequest, err))
		}
		return dto, false
	}

	return dto, true
}

// badRequest logs err and writes it as a 400 envelope. Backend faults are
// not distinguished from bad input; clients always get 400 for both.
func badRequest(w http.ResponseWriter, msg string, err error, attrs ...any) {
	attrs = append(attrs, slog.String("error", err.Error()))
	slog.Error(msg, attrs...)
	response.WriteJSON(w, http.StatusBadRequest,
		response.GeneralError(http.StatusBadRequest, err))
}
