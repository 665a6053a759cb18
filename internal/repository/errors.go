// Package repository defines error types that are reused across multiple
// repositories. These sentinel values allow higher layers such as the
// bid pipeline and the handlers to distinguish between different failure
// scenarios without inspecting driver errors.
package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist.
// Handlers should translate this into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrConflict is returned when a status update cannot be performed
// because the row is not in an allowed source state, for example
// activating an auction that already ended. Handlers should
// translate this into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrEmailExists is returned when a user is created with an email that
// is already registered.
var ErrEmailExists = errors.New("email already exists")

// ErrInvalidData is returned when the server refuses a write because a
// value is out of range for its column or a foreign key has no parent.
// The same write will be refused again.
var ErrInvalidData = errors.New("invalid data")
