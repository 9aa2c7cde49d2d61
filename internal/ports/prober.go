package ports

import (
	"fmt"
	"net"
)

// defaultProbeAttempts bounds how many kernel-assigned ports FreePort will
// look at before giving up.
const defaultProbeAttempts = 64

// Prober asks the operating system for currently-unbound TCP ports. It keeps
// no state between calls; every answer reflects the socket table at probe
// time.
type Prober struct {
	// Attempts is the number of candidate ports inspected per call.
	Attempts int
}

// NewProber creates a Prober with the default attempt budget.
func NewProber() *Prober {
	return &Prober{Attempts: defaultProbeAttempts}
}

// FreePort returns a port that is unbound right now and not in exclude.
//
// Candidates come from the kernel's ephemeral range. An excluded candidate
// stays bound until the call returns so the kernel cannot hand it out again.
func (p *Prober) FreePort(exclude map[int]struct{}) (int, error) {
	attempts := p.Attempts
	if attempts <= 0 {
		attempts = defaultProbeAttempts
	}

	var held []net.Listener
	defer func() {
		for _, l := range held {
			_ = l.Close()
		}
	}()

	for i := 0; i < attempts; i++ {
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return 0, fmt.Errorf("failed to probe for a free port: %w", err)
		}

		port := listener.Addr().(*net.TCPAddr).Port
		if _, excluded := exclude[port]; excluded {
			held = append(held, listener)
			continue
		}
		_ = listener.Close()

		// Loopback being free says nothing about 0.0.0.0, which is where
		// published container ports land.
		if IsAvailable(port) {
			return port, nil
		}
	}

	return 0, fmt.Errorf("no free port found after %d attempts", attempts)
}

// IsAvailable checks if a port is available by attempting to listen on it
func IsAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	_ = listener.Close()
	return true
}
