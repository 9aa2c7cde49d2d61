package registry

import (
	"errors"
	"fmt"
	"strings"

	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when an active session does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict is the parent of every uniqueness violation.
	ErrConflict = errors.New("conflict")

	// ErrSessionExists means an active session with the same id already
	// exists in the project.
	ErrSessionExists = fmt.Errorf("%w: session already exists", ErrConflict)

	// ErrPortTaken means another session (or a reservation) already holds
	// the port.
	ErrPortTaken = fmt.Errorf("%w: port already allocated", ErrConflict)

	// ErrInPlaceExists means the project already has an active in-place
	// session.
	ErrInPlaceExists = fmt.Errorf("%w: project already has an active in-place session", ErrConflict)

	// ErrPortReserved means the port is already reserved.
	ErrPortReserved = fmt.Errorf("%w: port already reserved", ErrConflict)
)

// ConflictError is a uniqueness violation reported by the store.
type ConflictError struct {
	// Kind is one of ErrSessionExists, ErrInPlaceExists, ErrPortTaken,
	// ErrPortReserved or ErrConflict.
	Kind   error
	Detail string
	Err    error
}

func (e *ConflictError) Error() string {
	if e.Detail == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%v (%s)", e.Kind, e.Detail)
}

func (e *ConflictError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// isUniqueViolation reports whether err is a SQLite UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

// violatesPortColumn reports whether a unique violation was on a port column.
func violatesPortColumn(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "port_allocations.port") || strings.Contains(msg, "reservations.port")
}

// violatesSessionID reports whether a unique violation on sessions was the
// per-project id index rather than the in-place index.
func violatesSessionID(err error) bool {
	return strings.Contains(err.Error(), "sessions.session_id")
}
