package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"

	"github.com/thatjpcsguy/lanes/internal/dotenv"
	"github.com/thatjpcsguy/lanes/internal/git"
	"github.com/thatjpcsguy/lanes/internal/hooks"
	"github.com/thatjpcsguy/lanes/internal/ports"
	"github.com/thatjpcsguy/lanes/internal/registry"
	"github.com/thatjpcsguy/lanes/internal/session"
)

// ErrNotRepo is returned when a worktree session is requested outside a git
// repository.
var ErrNotRepo = errors.New("project root is not a git repository")

// CreateOptions contains options for creating a session
type CreateOptions struct {
	// ID is optional; the smallest free id is used when empty.
	ID      string
	Branch  string
	InPlace bool
	// Mode defaults to the configured mode.
	Mode registry.Mode
}

// Created describes a new session.
type Created struct {
	Session *registry.Session
	Ports   map[string]int
	Env     map[string]string
}

// undo records which create steps completed, newest last.
type undo struct {
	worktree  bool
	committed bool
	started   bool
}

// Create provisions a session: worktree, registry row with its ports, .env,
// setup commands and containers, in that order.
func (m *Manager) Create(ctx context.Context, opts CreateOptions) (*Created, error) {
	mode := opts.Mode
	if mode == "" {
		mode = m.cfg.Mode
	}
	if !mode.Valid() {
		return nil, &session.ValidationError{Field: "mode", Msg: fmt.Sprintf("%q is not one of docker, native", mode)}
	}

	id := opts.ID
	if id != "" {
		normalized, err := session.NormalizeID(id)
		if err != nil {
			return nil, err
		}
		id = normalized
	}

	active, err := m.reg.ListActive(ctx, m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	used := make([]string, 0, len(active))
	for _, s := range active {
		used = append(used, s.ID)
		if opts.InPlace && s.InPlace {
			return nil, &registry.ConflictError{Kind: registry.ErrInPlaceExists, Detail: "session " + s.ID}
		}
		if s.ID == id {
			return nil, &registry.ConflictError{Kind: registry.ErrSessionExists, Detail: "session " + id}
		}
	}
	if id == "" {
		if id, err = session.NextFreeID(used); err != nil {
			return nil, err
		}
	}

	s := &registry.Session{
		ID:          id,
		ProjectRoot: m.root,
		Branch:      opts.Branch,
		Mode:        mode,
		InPlace:     opts.InPlace,
	}
	if opts.InPlace {
		s.Dir = m.root
		if s.Branch == "" {
			s.Branch, _ = git.CurrentBranch(ctx, m.root)
		}
	} else {
		s.Dir = m.sessionDir(id)
		if s.Branch == "" {
			s.Branch = m.cfg.DefaultBranch(id)
		}
		if dirExists(s.Dir) {
			return nil, fmt.Errorf("session directory %s already exists", s.Dir)
		}
		if !m.worktrees.IsRepo(ctx) {
			return nil, fmt.Errorf("%w: %s", ErrNotRepo, m.root)
		}
	}

	log := m.log(s)
	var done undo

	created, err := m.create(ctx, s, &done)
	if err != nil {
		log.WithError(err).Debug("create failed, rolling back")
		m.compensate(ctx, s, created, done)
		return nil, err
	}

	log.WithField("dir", s.Dir).Debug("session created")
	return created, nil
}

func (m *Manager) create(ctx context.Context, s *registry.Session, done *undo) (*Created, error) {
	if !s.InPlace {
		if err := m.worktrees.AddWorktree(ctx, s.Dir, s.Branch); err != nil {
			return nil, fmt.Errorf("failed to create worktree: %w", err)
		}
		done.worktree = true
	}

	sessionPorts, err := m.register(ctx, s)
	if err != nil {
		return nil, err
	}
	done.committed = true

	env, err := session.BuildEnv(m.cfg, s, sessionPorts, "")
	if err != nil {
		return nil, err
	}
	created := &Created{Session: s, Ports: sessionPorts, Env: env}

	if err := dotenv.Merge(filepath.Join(s.Dir, dotenv.FileName), env); err != nil {
		return created, err
	}

	if err := m.hooks.Run(ctx, hooks.Setup, s.Dir, m.cfg.Setup, env); err != nil {
		return created, err
	}

	if s.Mode == registry.ModeDocker {
		done.started = true
		if err := m.services.Up(ctx, s, env); err != nil {
			return created, err
		}
	}

	return created, nil
}

// register commits the session row together with its ports. Derived ports
// are recorded too, so they count against every other session's allocation.
func (m *Manager) register(ctx context.Context, s *registry.Session) (map[string]int, error) {
	if m.cfg.Arithmetic() {
		derived, err := ports.Derive(m.cfg.PortBase, s.ID, m.cfg.Ports.Offsets)
		if err != nil {
			return nil, fmt.Errorf("failed to derive ports: %w", err)
		}
		if err := m.reg.AssignPorts(ctx, s, allocations(derived)); err != nil {
			return nil, fmt.Errorf("failed to register session: %w", err)
		}
		return derived, nil
	}

	if len(m.cfg.Ports.Names) == 0 {
		if err := m.reg.Insert(ctx, s); err != nil {
			return nil, fmt.Errorf("failed to register session: %w", err)
		}
		return map[string]int{}, nil
	}

	allocated, err := m.allocator.Allocate(ctx, s, m.cfg.Ports.Names)
	if err != nil {
		return nil, fmt.Errorf("failed to allocate ports: %w", err)
	}
	return allocated, nil
}

func allocations(p map[string]int) []registry.PortAllocation {
	names := make([]string, 0, len(p))
	for name := range p {
		names = append(names, name)
	}
	sort.Strings(names)

	allocs := make([]registry.PortAllocation, 0, len(names))
	for _, name := range names {
		allocs = append(allocs, registry.PortAllocation{Service: name, Port: p[name]})
	}
	return allocs
}

// compensate undoes completed create steps in reverse order. Failures are
// logged; the caller returns the original error.
func (m *Manager) compensate(ctx context.Context, s *registry.Session, created *Created, done undo) {
	log := m.log(s)
	ctx = context.WithoutCancel(ctx)

	if done.started {
		var env map[string]string
		if created != nil {
			env = created.Env
		}
		if err := m.services.Down(ctx, s, env); err != nil {
			log.Warnf("failed to stop containers: %v", err)
		}
	}

	if done.committed {
		if _, err := m.reg.Remove(ctx, s.ProjectRoot, s.ID); err != nil {
			log.Warnf("failed to remove session from registry: %v", err)
		}
	}

	if done.worktree {
		if err := m.worktrees.RemoveWorktree(ctx, s.Dir); err != nil {
			log.Warnf("failed to remove worktree: %v", err)
		}
	}
}
