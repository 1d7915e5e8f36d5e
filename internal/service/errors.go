package service

import (
	"errors"
	"fmt"

	"actpath-backend/internal/repository"
)

// Kind classifies a service failure so callers can map it to a response.
type Kind string

const (
	KindNotFound     Kind = "NotFound"
	KindValidation   Kind = "ValidationError"
	KindStorage      Kind = "StorageError"
	KindConflict     Kind = "Conflict"
	KindUnauthorized Kind = "Unauthorized"
)

// Error is returned by every service operation.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare sentinels below by kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Message == "" && t.Kind == e.Kind
}

var (
	ErrNotFound     = &Error{Kind: KindNotFound}
	ErrValidation   = &Error{Kind: KindValidation}
	ErrStorage      = &Error{Kind: KindStorage}
	ErrConflict     = &Error{Kind: KindConflict}
	ErrUnauthorized = &Error{Kind: KindUnauthorized}
)

// KindOf returns the kind of err, or KindStorage for foreign errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func notFound(format string, args ...any) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func invalid(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func storage(msg string, err error) *Error {
	return &Error{Kind: KindStorage, Message: msg, Err: err}
}

// classify turns a repository error into a service error. Service errors
// raised inside a transaction pass through untouched.
func classify(err error, what, op string) error {
	var e *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &e):
		return e
	case errors.Is(err, repository.ErrNotFound):
		return notFound("%s not found", what)
	case errors.Is(err, repository.ErrDuplicate):
		return conflict(what + " already exists")
	}
	return storage("failed to "+op, err)
}
