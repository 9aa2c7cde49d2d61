package registry

import (
	"fmt"
	"time"
)

// Mode is how a session runs its services
type Mode string

const (
	ModeDocker Mode = "docker"
	ModeNative Mode = "native"
)

// Valid reports whether m is a known mode.
func (m Mode) Valid() bool {
	return m == ModeDocker || m == ModeNative
}

// ParseMode converts a string into a Mode.
func ParseMode(s string) (Mode, error) {
	m := Mode(s)
	if !m.Valid() {
		return "", fmt.Errorf("invalid mode %q (valid: docker, native)", s)
	}
	return m, nil
}

// Session represents one isolated working context
type Session struct {
	// Row is the internal row key. Zero until the session is inserted.
	Row         int64
	ID          string
	ProjectRoot string
	Dir         string
	Branch      string
	Mode        Mode
	InPlace     bool
	CreatedAt   time.Time
	DestroyedAt *time.Time
}

// Active reports whether the session has not been destroyed.
func (s *Session) Active() bool {
	return s.DestroyedAt == nil
}

// PortAllocation is one service's port within a session
type PortAllocation struct {
	Service string
	Port    int
}

// Reservation is a port excluded from allocation by policy
type Reservation struct {
	Port      int
	Reason    string
	CreatedAt time.Time
}
