package service

import (
	"errors"
	"fmt"

	"tapkind/internal/repo"
)

type Kind string

const (
	KindValidation   Kind = "validation"
	KindNotFound     Kind = "not_found"
	KindInconsistent Kind = "inconsistent_state"
	KindTransport    Kind = "transport"
	KindSchema       Kind = "schema_missing"
	KindUnauthorized Kind = "unauthorized"
	KindConflict     Kind = "conflict"
	KindRateLimited  Kind = "rate_limited"
)

// Error is a classified failure with a message fit for the end user.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return fmt.Sprintf("%s: %v", e.Message, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the kind of the first *Error in err's chain, or KindTransport.
func KindOf(err error) Kind {
	var se *Error
	if errors.As(err, &se) {
		return se.Kind
	}
	return KindTransport
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func validation(msg string) *Error { return newError(KindValidation, msg) }

func notFound(msg string) *Error { return newError(KindNotFound, msg) }

func unauthorized(msg string) *Error { return newError(KindUnauthorized, msg) }

const schemaMissingMessage = "database tables are missing; run `tapkind migrate` first"

// fromStore classifies a store error for the operation op.
func fromStore(op string, err error) error {
	var se *Error
	switch {
	case err == nil:
		return nil
	case errors.As(err, &se):
		return err
	case errors.Is(err, repo.ErrNotFound):
		return &Error{Kind: KindNotFound, Message: op + ": not found", Err: err}
	case errors.Is(err, repo.ErrConflict):
		return &Error{Kind: KindConflict, Message: op + ": already exists", Err: err}
	case errors.Is(err, repo.ErrInvalid):
		return &Error{Kind: KindValidation, Message: op + ": rejected by the database", Err: err}
	case repo.IsSchemaMissing(err):
		return &Error{Kind: KindSchema, Message: schemaMissingMessage, Err: err}
	default:
		return &Error{Kind: KindTransport, Message: op + " failed", Err: err}
	}
}
