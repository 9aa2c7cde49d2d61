package hooks

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"github.com/thatjpcsguy/lanes/internal/dotenv"
	"github.com/thatjpcsguy/lanes/internal/logging"
)

// HookType represents the type of hook
type HookType string

const (
	// Setup runs in a new session after its ports are committed.
	Setup HookType = "setup"
	// Teardown runs before a session is destroyed.
	Teardown HookType = "teardown"
)

// Dir is where file-based hooks live, relative to the session directory.
const Dir = ".lanes-hooks"

// Runner executes hooks inside a session directory.
type Runner struct {
	Stdout io.Writer
	Stderr io.Writer
}

// NewRunner creates a Runner writing to the process's stdout and stderr.
func NewRunner() *Runner {
	return &Runner{Stdout: os.Stdout, Stderr: os.Stderr}
}

// Run executes a hook in dir with env layered over the inherited environment.
// Priority: file-based hook > scripts from config
func (r *Runner) Run(ctx context.Context, hookType HookType, dir string, scripts []string, env map[string]string) error {
	log := logging.Logger().WithField("hook", hookType)

	hookPath := filepath.Join(dir, Dir, string(hookType)+".sh")
	if _, err := os.Stat(hookPath); err == nil {
		log.WithField("path", hookPath).Debug("running file-based hook")
		if err := r.exec(ctx, dir, env, "bash", hookPath); err != nil {
			return fmt.Errorf("%s hook failed: %w", hookType, err)
		}
		return nil
	}

	for _, script := range scripts {
		log.WithField("script", script).Debug("running hook script")
		if err := r.exec(ctx, dir, env, "bash", "-c", script); err != nil {
			return fmt.Errorf("%s script %q failed: %w", hookType, script, err)
		}
	}

	return nil
}

func (r *Runner) exec(ctx context.Context, dir string, env map[string]string, name string, args ...string) error {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	cmd.Env = dotenv.Overlay(os.Environ(), env)
	cmd.Stdout = r.Stdout
	cmd.Stderr = r.Stderr
	return cmd.Run()
}
