// Package types holds the shared data structures (models) used across
// the application. Keeping them in one place prevents import cycles:
// handlers, storage, and utils can all import types without depending
// on each other.
package types

import (
	"github.com/go-playground/validator/v10"
	"github.com/go-playground/validator/v10/non-standard/validators"
)

// Todo is the canonical stored form of a todo item.
//
// JSON keys are PascalCase because existing clients of this API parse
// {"Id": 1, "Name": "...", "Completed": false}.
//
// Version is the optimistic-concurrency token maintained by the store.
// It never leaves the server (json:"-").
type Todo struct {
	ID        int64  `json:"Id"`
	Name      string `json:"Name"`
	Completed bool   `json:"Completed"`
	Version   int64  `json:"-"`
}

// TodoDTO is the client write shape. It has no Id field, so an "Id" sent
// in a request body is silently dropped by the decoder and can never
// reach the store (overposting protection).
//
// Name must be present and not only whitespace. The "notblank" rule is not
// built into the validator, so validate DTOs with NewValidator.
type TodoDTO struct {
	Name      string `json:"Name" validate:"required,notblank"`
	Completed bool   `json:"Completed"`
}

// DTOToModel is the only way a request body becomes a Todo.
// id is 0 on create (the store assigns the real one) and the URL id on update.
func DTOToModel(dto TodoDTO, id int64) Todo {
	return Todo{
		ID:        id,
		Name:      dto.Name,
		Completed: dto.Completed,
	}
}

// NewValidator returns a validator that knows every rule used by the tags
// in this package.
func NewValidator() *validator.Validate {
	v := validator.New()
	if err := v.RegisterValidation("notblank", validators.NotBlank); err != nil {
		panic(err)
	}
	return v
}
