package ports

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/thatjpcsguy/lanes/internal/logging"
	"github.com/thatjpcsguy/lanes/internal/registry"
)

// allocateAttempts is the first try plus exactly one retry after losing a
// race. A second loss is reported to the caller.
const allocateAttempts = 2

// Store is the part of the registry the Allocator needs.
type Store interface {
	ExcludedPorts(ctx context.Context) (map[int]struct{}, error)
	AssignPorts(ctx context.Context, s *registry.Session, allocs []registry.PortAllocation) error
}

// PortSource yields a free port outside an exclusion set.
type PortSource interface {
	FreePort(exclude map[int]struct{}) (int, error)
}

// Allocator assigns registry-backed ports to sessions.
type Allocator struct {
	store  Store
	source PortSource
	log    logrus.FieldLogger
}

// NewAllocator creates an Allocator. A nil source uses the OS prober.
func NewAllocator(store Store, source PortSource) *Allocator {
	if source == nil {
		source = NewProber()
	}
	return &Allocator{
		store:  store,
		source: source,
		log:    logging.Logger(),
	}
}

// Allocate probes one free port per service and commits them for s in a
// single transaction, together with s itself when it is not yet stored. Probing happens outside the transaction, so a
// concurrent allocator may commit the same port first; in that case the
// exclusion set is rebuilt and the batch is probed and committed once more.
func (a *Allocator) Allocate(ctx context.Context, s *registry.Session, services []string) (map[string]int, error) {
	if len(services) == 0 {
		return map[string]int{}, nil
	}
	if err := checkServices(services); err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 1; attempt <= allocateAttempts; attempt++ {
		allocs, err := a.probe(ctx, services)
		if err != nil {
			return nil, err
		}

		err = a.store.AssignPorts(ctx, s, allocs)
		if err == nil {
			return toMap(allocs), nil
		}
		if !errors.Is(err, registry.ErrPortTaken) {
			return nil, fmt.Errorf("failed to commit ports: %w", err)
		}

		lastErr = err
		a.log.WithFields(logrus.Fields{
			"session": s.ID,
			"attempt": attempt,
		}).Debugf("port allocation raced another session: %v", err)
	}

	return nil, fmt.Errorf("failed to allocate ports after retry: %w", lastErr)
}

// probe picks one port per service against a freshly read exclusion set.
func (a *Allocator) probe(ctx context.Context, services []string) ([]registry.PortAllocation, error) {
	exclude, err := a.store.ExcludedPorts(ctx)
	if err != nil {
		return nil, err
	}

	allocs := make([]registry.PortAllocation, 0, len(services))
	for _, service := range services {
		port, err := a.source.FreePort(exclude)
		if err != nil {
			return nil, fmt.Errorf("failed to find a port for %s: %w", service, err)
		}
		// Later services in this batch must not get the same port.
		exclude[port] = struct{}{}
		allocs = append(allocs, registry.PortAllocation{Service: service, Port: port})
	}

	return allocs, nil
}

func checkServices(services []string) error {
	seen := make(map[string]bool, len(services))
	for _, s := range services {
		if s == "" {
			return fmt.Errorf("empty service name")
		}
		if seen[s] {
			return fmt.Errorf("service %q requested twice", s)
		}
		seen[s] = true
	}
	return nil
}

func toMap(allocs []registry.PortAllocation) map[string]int {
	m := make(map[string]int, len(allocs))
	for _, a := range allocs {
		m[a.Service] = a.Port
	}
	return m
}
