package lifecycle

import (
	"context"
	"io"

	"github.com/thatjpcsguy/lanes/internal/docker"
	"github.com/thatjpcsguy/lanes/internal/logging"
	"github.com/thatjpcsguy/lanes/internal/registry"
)

// ComposeServices runs docker compose in the session directory.
type ComposeServices struct {
	File   string
	Stdout io.Writer
	Stderr io.Writer
}

// NewComposeServices creates a Services backed by docker compose.
func NewComposeServices(file string) *ComposeServices {
	return &ComposeServices{File: file}
}

func (c *ComposeServices) compose(s *registry.Session, env map[string]string) *docker.Compose {
	return &docker.Compose{
		Project: docker.ProjectName(s.ProjectRoot, s.ID),
		Dir:     s.Dir,
		File:    c.File,
		Env:     env,
		Stdout:  c.Stdout,
		Stderr:  c.Stderr,
	}
}

// Up starts containers when the session has a compose file.
func (c *ComposeServices) Up(ctx context.Context, s *registry.Session, env map[string]string) error {
	if !docker.HasComposeFile(s.Dir, c.File) {
		logging.ForSession(s.ProjectRoot, s.ID).Debugf("no %s, skipping compose up", c.File)
		return nil
	}
	return c.compose(s, env).Up(ctx)
}

// Down stops containers when the session has a compose file.
func (c *ComposeServices) Down(ctx context.Context, s *registry.Session, env map[string]string) error {
	if !docker.HasComposeFile(s.Dir, c.File) {
		return nil
	}
	return c.compose(s, env).Down(ctx, false)
}

// Logs streams the session's container logs.
func (c *ComposeServices) Logs(ctx context.Context, s *registry.Session, follow bool) error {
	return c.compose(s, nil).Logs(ctx, follow)
}
