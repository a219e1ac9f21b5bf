package db

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
)

// pgUniqueViolation is the Postgres SQLSTATE for unique_violation.
const pgUniqueViolation = "23505"

// DuplicateKeyError represents a database constraint violation error
type DuplicateKeyError struct {
	Field string // The field that caused the constraint violation
	err   error  // The underlying database error
}

func (e *DuplicateKeyError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("duplicate key violation: %s already exists", e.Field)
	}
	return "duplicate key violation"
}

// Unwrap returns the underlying error for error chain support
func (e *DuplicateKeyError) Unwrap() error {
	return e.err
}

// NewDuplicateKeyError creates a new DuplicateKeyError
func NewDuplicateKeyError(field string, err error) error {
	return &DuplicateKeyError{
		Field: field,
		err:   err,
	}
}

// WrapIfDuplicateConstraint reports whether err is a unique-constraint
// violation from either backend, returning it as a *DuplicateKeyError if so.
func WrapIfDuplicateConstraint(err error) (bool, error) {
	var sqliteErr sqlite3.Error
	var pgErr *pgconn.PgError
	switch {
	case errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique:
		return true, NewDuplicateKeyError(fieldFromMessage(sqliteUniqueRegex, err.Error()), err)
	case errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation:
		field := fieldFromMessage(pgKeyDetailRegex, pgErr.Detail)
		return true, NewDuplicateKeyError(field, err)
	default:
		return false, err
	}
}

var (
	// "UNIQUE constraint failed: users.email"
	sqliteUniqueRegex = regexp.MustCompile(`UNIQUE constraint failed: \w+\.(\w+)`)
	// "Key (email)=(a@b.c) already exists."
	pgKeyDetailRegex = regexp.MustCompile(`Key \((\w+)\)=`)
)

func fieldFromMessage(re *regexp.Regexp, msg string) string {
	if m := re.FindStringSubmatch(msg); len(m) > 1 {
		return m[1]
	}
	return "unknown"
}
