// Package session identifies sessions and resolves which one, if any, the
// current directory belongs to.
package session

import (
	"errors"
	"fmt"
	"strconv"
)

const (
	minID = 1
	maxID = 999
)

// ErrNoIDsAvailable is returned when every id from 001 to 999 is in use.
var ErrNoIDsAvailable = errors.New("no session ids available (001-999 all in use)")

// ValidationError reports bad user input, detected before any state is read
// or written.
type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Msg)
}

// NormalizeID pads a numeric id to three digits, so "7" becomes "007".
func NormalizeID(s string) (string, error) {
	n, err := strconv.Atoi(s)
	if err != nil || n < minID || n > maxID {
		return "", &ValidationError{Field: "session id", Msg: fmt.Sprintf("%q is not a number between 1 and 999", s)}
	}
	return FormatID(n), nil
}

// FormatID renders n as a session id.
func FormatID(n int) string {
	return fmt.Sprintf("%03d", n)
}

// NextFreeID returns the smallest id not in used.
func NextFreeID(used []string) (string, error) {
	taken := make(map[int]bool, len(used))
	for _, id := range used {
		if n, err := strconv.Atoi(id); err == nil {
			taken[n] = true
		}
	}
	for n := minID; n <= maxID; n++ {
		if !taken[n] {
			return FormatID(n), nil
		}
	}
	return "", ErrNoIDsAvailable
}
