package repo

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("constraint violated")
	ErrExpired  = errors.New("expired")
	ErrUsed     = errors.New("already used")
)

const (
	codeUniqueViolation = "23505"
	codeCheckViolation  = "23514"
	codeFKViolation     = "23503"
	codeInvalidText     = "22P02"
)

// mapError turns constraint violations into repo sentinels and leaves other errors intact.
func mapError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return errors.Join(ErrConflict, err)
		case codeCheckViolation, codeFKViolation:
			return errors.Join(ErrInvalid, err)
		case codeInvalidText:
			// a malformed uuid cannot name an existing row
			return errors.Join(ErrNotFound, err)
		}
	}
	return err
}

// IsSchemaMissing reports whether err looks like the database has not been migrated:
// an undefined table, schema or column, or a driver message saying so.
func IsSchemaMissing(err error) bool {
	if err == nil {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "42P01", "3F000", "42703":
			return true
		}
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "relation") && strings.Contains(msg, "does not exist") {
		return true
	}
	return strings.Contains(msg, "schema cache")
}
