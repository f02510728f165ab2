package core

import (
	"errors"
	"fmt"
)

// Messages of these errors are shown to clients as is.
var (
	ErrValidation         = errors.New("validation failed")
	ErrUnknownMessageType = errors.New("unknown message type")
	ErrNotInRoom          = errors.New("Not joined to any room")
	ErrAlreadyJoined      = errors.New("Already joined to another room")
	ErrRoomFull           = errors.New("Room is full")
	ErrRoomClosed         = errors.New("Room is closed")
	ErrAlreadyExists      = errors.New("Room already exists")
	ErrCapacityExceeded   = errors.New("Maximum number of rooms reached")
	ErrResourceNotFound   = errors.New("resource not found")
	ErrCannotConsume      = errors.New("Cannot consume this producer")
	ErrRateLimited        = errors.New("Too many messages")
	ErrEngineFailure      = errors.New("media engine failure")
)

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string { return e.Msg }

func (e *ValidationError) Unwrap() error { return ErrValidation }

func Invalid(field, msg string) error {
	return &ValidationError{Field: field, Msg: msg}
}

type UnknownTypeError struct {
	Type string
}

func (e *UnknownTypeError) Error() string { return "Unknown message type: " + e.Type }

func (e *UnknownTypeError) Unwrap() error { return ErrUnknownMessageType }

// NotFoundError names the kind of the missing resource ("Transport", "Producer").
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string { return e.Kind + " not found" }

func (e *NotFoundError) Unwrap() error { return ErrResourceNotFound }

// EngineError hides the engine's error text from clients: Error() carries
// the detail for logs, Public() is what the client sees.
type EngineError struct {
	Op  string
	Err error
}

func (e *EngineError) Error() string { return fmt.Sprintf("failed to %s: %v", e.Op, e.Err) }

func (e *EngineError) Public() string { return "Failed to " + e.Op }

func (e *EngineError) Unwrap() []error { return []error{ErrEngineFailure, e.Err} }

func EngineFailure(op string, err error) error {
	return &EngineError{Op: op, Err: err}
}

// PublicMessage converts a handler error into the text sent in an error reply.
func PublicMessage(err error) string {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Public()
	}
	return err.Error()
}
