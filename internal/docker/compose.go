package docker

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/thatjpcsguy/lanes/internal/dotenv"
)

var invalidProjectChars = regexp.MustCompile(`[^a-z0-9_-]+`)

// ProjectName returns the compose project name for a session, unique per
// project root and session id.
func ProjectName(projectRoot, sessionID string) string {
	base := strings.ToLower(filepath.Base(projectRoot))
	base = strings.Trim(invalidProjectChars.ReplaceAllString(base, "-"), "-_")
	if base == "" {
		base = "project"
	}
	return fmt.Sprintf("lanes-%s-%s", base, sessionID)
}

// Compose runs docker compose for one session.
type Compose struct {
	Project string
	Dir     string
	File    string
	// Env is added to the compose process environment.
	Env map[string]string

	Stdout io.Writer
	Stderr io.Writer
}

func (c *Compose) command(ctx context.Context, args ...string) *exec.Cmd {
	full := []string{"compose", "-p", c.Project}
	if c.File != "" {
		full = append(full, "-f", c.File)
	}
	full = append(full, args...)

	cmd := exec.CommandContext(ctx, "docker", full...)
	cmd.Dir = c.Dir
	cmd.Env = dotenv.Overlay(os.Environ(), c.Env)
	cmd.Stdout = c.Stdout
	cmd.Stderr = c.Stderr
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd
}

// Up starts the session's containers in the background
func (c *Compose) Up(ctx context.Context) error {
	if err := c.command(ctx, "up", "-d").Run(); err != nil {
		return fmt.Errorf("failed to start containers: %w", err)
	}
	return nil
}

// Down stops and removes the session's containers
func (c *Compose) Down(ctx context.Context, removeVolumes bool) error {
	args := []string{"down"}
	if removeVolumes {
		args = append(args, "-v")
	}

	if err := c.command(ctx, args...).Run(); err != nil {
		return fmt.Errorf("failed to stop containers: %w", err)
	}
	return nil
}

// Logs streams container logs
func (c *Compose) Logs(ctx context.Context, follow bool) error {
	args := []string{"logs"}
	if follow {
		args = append(args, "-f")
	}
	return c.command(ctx, args...).Run()
}

// HasComposeFile reports whether the compose file exists in dir.
func HasComposeFile(dir, file string) bool {
	if file == "" {
		return false
	}
	if !filepath.IsAbs(file) {
		file = filepath.Join(dir, file)
	}
	_, err := os.Stat(file)
	return err == nil
}
