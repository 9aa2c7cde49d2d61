// Package inject runs a child command with a session's rendered environment
// merged over the inherited one.
package inject

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/thatjpcsguy/lanes/internal/config"
	"github.com/thatjpcsguy/lanes/internal/dotenv"
	"github.com/thatjpcsguy/lanes/internal/logging"
	"github.com/thatjpcsguy/lanes/internal/registry"
	"github.com/thatjpcsguy/lanes/internal/session"
)

// ExitNotRunnable is the exit code reported when the child cannot start.
const ExitNotRunnable = 127

// Injector resolves the session for Dir and runs commands in its env.
type Injector struct {
	// Dir is the directory used to resolve the project and session.
	Dir string
	// RegistryPath is read only if the file already exists.
	RegistryPath string

	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer

	// Environ returns the inherited environment.
	Environ func() []string
}

// New creates an Injector for dir using the process's stdio and environment.
func New(dir, registryPath string) *Injector {
	return &Injector{
		Dir:          dir,
		RegistryPath: registryPath,
		Stdin:        os.Stdin,
		Stdout:       os.Stdout,
		Stderr:       os.Stderr,
		Environ:      os.Environ,
	}
}

// SessionEnv returns the rendered env for the session at Dir, or nil when
// Dir is not inside a project or not inside a session. The project config is
// only loaded once a session is found, so a broken config never blocks a
// pass-through run.
func (i *Injector) SessionEnv(ctx context.Context, app string) (map[string]string, error) {
	if _, err := session.FindProjectRoot(i.Dir); err != nil {
		if errors.Is(err, session.ErrNoProjectRoot) {
			logging.Logger().WithField("dir", i.Dir).Debug("no project, passing environment through")
			return nil, nil
		}
		return nil, err
	}

	if i.RegistryPath == "" || !registry.Exists(i.RegistryPath) {
		return nil, nil
	}
	reg, err := registry.Open(i.RegistryPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry: %w", err)
	}
	defer func() { _ = reg.Close() }()

	res, err := session.NewResolver(reg).Resolve(ctx, i.Dir)
	if err != nil {
		return nil, err
	}
	if res.Session == nil {
		logging.Logger().WithField("project", res.ProjectRoot).Debug("no session, passing environment through")
		return nil, nil
	}

	cfg, err := config.Load(res.ProjectRoot)
	if err != nil {
		return nil, err
	}
	ports, err := session.Ports(ctx, cfg, reg, res.Session)
	if err != nil {
		return nil, err
	}
	return session.BuildEnv(cfg, res.Session, ports, app)
}

// Run executes command with args and returns its exit code. A command that
// cannot be started returns ExitNotRunnable and an error.
func (i *Injector) Run(ctx context.Context, command string, args []string, app string) (int, error) {
	env, err := i.SessionEnv(ctx, app)
	if err != nil {
		return 1, err
	}

	environ := os.Environ
	if i.Environ != nil {
		environ = i.Environ
	}

	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Env = dotenv.Overlay(environ(), env)
	cmd.Stdin = i.Stdin
	cmd.Stdout = i.Stdout
	cmd.Stderr = i.Stderr

	if err := cmd.Start(); err != nil {
		return ExitNotRunnable, fmt.Errorf("failed to start %s: %w", command, err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	done := make(chan struct{})
	defer func() {
		signal.Stop(signals)
		close(done)
	}()
	go func() {
		for {
			select {
			case sig := <-signals:
				_ = cmd.Process.Signal(sig)
			case <-done:
				return
			}
		}
	}()

	return exitCode(cmd.Wait())
}

func exitCode(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1, err
	}
	if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
		return 128 + int(status.Signal()), nil
	}
	return exitErr.ExitCode(), nil
}
