package ports

import (
	"fmt"
	"strconv"
)

const (
	// SessionStride is the port distance between consecutive sessions.
	SessionStride = 100

	maxPort = 65535
)

// Derive computes a session's ports from a base and per-service offsets:
// base + index*SessionStride + offset, where index is the numeric value of
// the session id. Identical inputs always give identical ports.
func Derive(base int, sessionID string, offsets map[string]int) (map[string]int, error) {
	index, err := strconv.Atoi(sessionID)
	if err != nil || index < 1 {
		return nil, fmt.Errorf("session id %q is not numeric", sessionID)
	}
	if base <= 0 {
		return nil, fmt.Errorf("port base must be positive, got %d", base)
	}

	ports := make(map[string]int, len(offsets))
	for service, offset := range offsets {
		if offset < 0 || offset >= SessionStride {
			return nil, fmt.Errorf("offset %d for %s must be in 0-%d", offset, service, SessionStride-1)
		}
		port := base + index*SessionStride + offset
		if port > maxPort {
			return nil, fmt.Errorf("port for %s in session %s would be %d, above %d", service, sessionID, port, maxPort)
		}
		ports[service] = port
	}

	return ports, nil
}
