// Package response provides the JSON envelope every endpoint answers with
// and helpers for reading and writing JSON bodies.
//
// Every non-empty body looks like:
//
//	{ "Message": "Got todo successfully", "Status": 200, "Response": {...} }
//
// Status always mirrors the HTTP status code so a logged body is
// self-describing. Response is only present on success.
package response

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/aanand-mishra/todo-api/internal/types"
	"github.com/bytedance/sonic"
	"github.com/go-playground/validator/v10"
)

// maxBodyBytes caps how much of a request body DecodeJSON will read.
const maxBodyBytes = 1 << 20

// ErrEmptyBody is returned by DecodeJSON when the client sent nothing.
var ErrEmptyBody = errors.New("request body is empty")

// Response is the base envelope, also used on its own for error replies.
type Response struct {
	Message string `json:"Message"`
	Status  int    `json:"Status"`
}

// TodoResponse carries a single Todo.
type TodoResponse struct {
	Response
	Todo *types.Todo `json:"Response,omitempty"`
}

// TodoListResponse carries a list of Todos.
type TodoListResponse struct {
	Response
	Todos []types.Todo `json:"Response,omitempty"`
}

// ─────────────────────────────────────────────────────────────────────────────
// WriteJSON writes data as JSON with the given HTTP status code.
//
// IMPORTANT ORDER: Header() → WriteHeader() → body writes.
// Once WriteHeader is called (or the first Write), headers are locked.
// ─────────────────────────────────────────────────────────────────────────────
func WriteJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	return sonic.ConfigStd.NewEncoder(w).Encode(data)
}

// OK builds a success envelope for a single Todo.
func OK(status int, message string, todo types.Todo) TodoResponse {
	return TodoResponse{
		Response: Response{Message: message, Status: status},
		Todo:     &todo,
	}
}

// OKList builds a success envelope for a list of Todos.
func OKList(status int, message string, todos []types.Todo) TodoListResponse {
	return TodoListResponse{
		Response: Response{Message: message, Status: status},
		Todos:    todos,
	}
}

// NotFound builds a 404 envelope with no payload.
func NotFound(message string) Response {
	return Response{Message: message, Status: http.StatusNotFound}
}

// GeneralError wraps any Go error into an envelope for the given status.
// Use this for unexpected errors (DB failures, decode errors, etc.)
func GeneralError(status int, err error) Response {
	return Response{
		Message: err.Error(),
		Status:  status,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ValidationError converts the validator's per-field errors into a single
// human-readable envelope.
//
// Example output:
//
//	{ "Message": "field Name is required", "Status": 400 }
//
// ─────────────────────────────────────────────────────────────────────────────
func ValidationError(status int, errs validator.ValidationErrors) Response {
	var errMessages []string

	for _, e := range errs {
		switch e.ActualTag() {
		case "required":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is required", e.Field()))
		case "notblank":
			errMessages = append(errMessages,
				fmt.Sprintf("field %s must not be blank", e.Field()))
		default:
			errMessages = append(errMessages,
				fmt.Sprintf("field %s is invalid", e.Field()))
		}
	}

	return Response{
		Message: strings.Join(errMessages, ", "),
		Status:  status,
	}
}

// DecodeJSON reads at most maxBodyBytes from r's body into v.
// Unknown fields are ignored.
func DecodeJSON(r *http.Request, v any) error {
	if r.Body == nil {
		return ErrEmptyBody
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return fmt.Errorf("read body: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return ErrEmptyBody
	}
	return sonic.ConfigStd.Unmarshal(data, v)
}
