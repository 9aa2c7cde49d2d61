// Package lifecycle creates, starts, stops and destroys sessions. Creation
// is compensated: a failure after the worktree exists undoes every step
// already taken before the error is returned.
package lifecycle

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"

	"github.com/thatjpcsguy/lanes/internal/config"
	"github.com/thatjpcsguy/lanes/internal/git"
	"github.com/thatjpcsguy/lanes/internal/hooks"
	"github.com/thatjpcsguy/lanes/internal/logging"
	"github.com/thatjpcsguy/lanes/internal/ports"
	"github.com/thatjpcsguy/lanes/internal/registry"
	"github.com/thatjpcsguy/lanes/internal/session"
)

// Worktrees manages the git checkouts sessions live in.
type Worktrees interface {
	AddWorktree(ctx context.Context, dir, branch string) error
	RemoveWorktree(ctx context.Context, dir string) error
	PruneWorktrees(ctx context.Context) error
	IsRepo(ctx context.Context) bool
}

// Services starts and stops a session's containers.
type Services interface {
	Up(ctx context.Context, s *registry.Session, env map[string]string) error
	Down(ctx context.Context, s *registry.Session, env map[string]string) error
}

// HookRunner runs setup and teardown commands.
type HookRunner interface {
	Run(ctx context.Context, hookType hooks.HookType, dir string, scripts []string, env map[string]string) error
}

// PortAllocator assigns registry-backed ports to a session.
type PortAllocator interface {
	Allocate(ctx context.Context, s *registry.Session, services []string) (map[string]int, error)
}

// Options overrides the collaborators of a Manager. Nil fields use the
// git, docker compose and shell implementations.
type Options struct {
	Worktrees Worktrees
	Services  Services
	Hooks     HookRunner
	Allocator PortAllocator
}

// Manager runs session lifecycle operations for one project.
type Manager struct {
	cfg  *config.Config
	reg  *registry.Registry
	root string

	worktrees Worktrees
	services  Services
	hooks     HookRunner
	allocator PortAllocator
}

// New creates a Manager for the project described by cfg.
func New(cfg *config.Config, reg *registry.Registry, opts Options) *Manager {
	root := session.Canonical(cfg.Root)
	cfg.Root = root

	m := &Manager{
		cfg:       cfg,
		reg:       reg,
		root:      root,
		worktrees: opts.Worktrees,
		services:  opts.Services,
		hooks:     opts.Hooks,
		allocator: opts.Allocator,
	}
	if m.worktrees == nil {
		m.worktrees = git.NewRunner(root)
	}
	if m.services == nil {
		m.services = NewComposeServices(cfg.ComposeFile)
	}
	if m.hooks == nil {
		m.hooks = hooks.NewRunner()
	}
	if m.allocator == nil {
		m.allocator = ports.NewAllocator(reg, nil)
	}
	return m
}

// ProjectRoot returns the canonical project root.
func (m *Manager) ProjectRoot() string {
	return m.root
}

// Config returns the project configuration.
func (m *Manager) Config() *config.Config {
	return m.cfg
}

// Get returns the active session with id.
func (m *Manager) Get(ctx context.Context, id string) (*registry.Session, error) {
	s, err := m.reg.FindActive(ctx, m.root, id)
	if err != nil {
		return nil, fmt.Errorf("session %s: %w", id, err)
	}
	return s, nil
}

// Ports returns the session's ports.
func (m *Manager) Ports(ctx context.Context, s *registry.Session) (map[string]int, error) {
	return session.Ports(ctx, m.cfg, m.reg, s)
}

// Env renders the session's environment, with app's env layered on top when
// app is set.
func (m *Manager) Env(ctx context.Context, s *registry.Session, app string) (map[string]string, error) {
	p, err := m.Ports(ctx, s)
	if err != nil {
		return nil, err
	}
	return session.BuildEnv(m.cfg, s, p, app)
}

// Start brings up the containers of a docker-mode session.
func (m *Manager) Start(ctx context.Context, id string) error {
	s, env, err := m.dockerSession(ctx, id)
	if err != nil {
		return err
	}
	return m.services.Up(ctx, s, env)
}

// Stop takes down the containers of a docker-mode session.
func (m *Manager) Stop(ctx context.Context, id string) error {
	s, env, err := m.dockerSession(ctx, id)
	if err != nil {
		return err
	}
	return m.services.Down(ctx, s, env)
}

func (m *Manager) dockerSession(ctx context.Context, id string) (*registry.Session, map[string]string, error) {
	s, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if s.Mode != registry.ModeDocker {
		return nil, nil, fmt.Errorf("session %s runs in %s mode and has no containers", s.ID, s.Mode)
	}
	env, err := m.Env(ctx, s, "")
	if err != nil {
		return nil, nil, err
	}
	return s, env, nil
}

func (m *Manager) log(s *registry.Session) *logrus.Entry {
	return logging.ForSession(s.ProjectRoot, s.ID)
}

func logFor(projectRoot string) *logrus.Entry {
	return logging.Logger().WithField("project", projectRoot)
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func (m *Manager) sessionDir(id string) string {
	return m.cfg.SessionDir(id)
}
