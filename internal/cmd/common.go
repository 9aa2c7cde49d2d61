package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/fatih/color"

	"github.com/thatjpcsguy/lanes/internal/config"
	"github.com/thatjpcsguy/lanes/internal/lifecycle"
	"github.com/thatjpcsguy/lanes/internal/registry"
	"github.com/thatjpcsguy/lanes/internal/session"
)

// ExitError ends the process with Code. Err, when set, is printed first.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit status %d", e.Code)
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
	red    = color.New(color.FgRed).SprintFunc()
	bold   = color.New(color.Bold).SprintFunc()
)

// project is the state every session command starts from.
type project struct {
	res     *session.Resolution
	cfg     *config.Config
	reg     *registry.Registry
	manager *lifecycle.Manager
}

// openProject resolves the working directory to a project, opening the
// registry only once a marker file has been found.
func openProject(ctx context.Context) (*project, error) {
	cwd, err := session.Getwd()
	if err != nil {
		return nil, err
	}
	if _, err := session.FindProjectRoot(cwd); err != nil {
		return nil, err
	}

	reg, err := registry.OpenDefault()
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}

	res, err := session.NewResolver(reg).Resolve(ctx, cwd)
	if err != nil {
		_ = reg.Close()
		return nil, err
	}

	cfg, err := config.Load(res.ProjectRoot)
	if err != nil {
		_ = reg.Close()
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return &project{
		res:     res,
		cfg:     cfg,
		reg:     reg,
		manager: lifecycle.New(cfg, reg, lifecycle.Options{}),
	}, nil
}

func (p *project) Close() error {
	return p.reg.Close()
}

// sessionID returns the id named in args, or the id of the session the
// working directory is in.
func (p *project) sessionID(args []string) (string, error) {
	if len(args) > 0 {
		return session.NormalizeID(args[0])
	}
	s, err := p.res.RequireSession()
	if err != nil {
		return "", fmt.Errorf("%w; pass a session id", err)
	}
	return s.ID, nil
}

// current returns the active session named in args or containing the
// working directory.
func (p *project) current(ctx context.Context, args []string) (*registry.Session, error) {
	id, err := p.sessionID(args)
	if err != nil {
		return nil, err
	}
	return p.manager.Get(ctx, id)
}

// Describe adds a hint to errors users commonly hit.
func Describe(err error) error {
	switch {
	case errors.Is(err, session.ErrNoProjectRoot):
		return fmt.Errorf("%w (no %s found in this directory or its parents)", err, config.MarkerFiles[0])
	case errors.Is(err, registry.ErrNotFound):
		return fmt.Errorf("%w; run 'lanes list' to see active sessions", err)
	}
	return err
}

// checkID validates an optional session id argument before anything is
// opened.
func checkID(args []string) error {
	if len(args) == 0 {
		return nil
	}
	_, err := session.NormalizeID(args[0])
	return err
}
