package session

import (
	"context"
	"fmt"

	"github.com/thatjpcsguy/lanes/internal/config"
	"github.com/thatjpcsguy/lanes/internal/ports"
	"github.com/thatjpcsguy/lanes/internal/registry"
	"github.com/thatjpcsguy/lanes/internal/render"
)

// Variables every session exposes to templates and child processes.
const (
	VarSessionID   = "SESSION_ID"
	VarSessionDir  = "SESSION_DIR"
	VarProjectRoot = "PROJECT_ROOT"
	VarBranch      = "BRANCH"
	VarMode        = "MODE"
)

// PortReader reads a session's committed ports.
type PortReader interface {
	Ports(ctx context.Context, s *registry.Session) (map[string]int, error)
}

// Vars returns the string variables for s.
func Vars(s *registry.Session) map[string]string {
	return map[string]string{
		VarSessionID:   s.ID,
		VarSessionDir:  s.Dir,
		VarProjectRoot: s.ProjectRoot,
		VarBranch:      s.Branch,
		VarMode:        string(s.Mode),
	}
}

// Ports returns the session's ports: derived from port_base in arithmetic
// mode, read from the registry otherwise.
func Ports(ctx context.Context, cfg *config.Config, reader PortReader, s *registry.Session) (map[string]int, error) {
	if cfg.Arithmetic() {
		return ports.Derive(cfg.PortBase, s.ID, cfg.Ports.Offsets)
	}
	if reader == nil {
		return map[string]int{}, nil
	}
	p, err := reader.Ports(ctx, s)
	if err != nil {
		return nil, fmt.Errorf("failed to read ports for session %s: %w", s.ID, err)
	}
	return p, nil
}

// BuildEnv renders the global env, with app's env layered on top when app is
// set, against the session's ports and variables. The session variables are
// included in the result unless a template sets the same key.
func BuildEnv(cfg *config.Config, s *registry.Session, sessionPorts map[string]int, app string) (map[string]string, error) {
	templates, err := cfg.AppEnv(app)
	if err != nil {
		return nil, &ValidationError{Field: "app", Msg: err.Error()}
	}

	vars := Vars(s)
	env := render.RenderWith(templates, sessionPorts, vars)
	for k, v := range vars {
		if _, set := env[k]; !set {
			env[k] = v
		}
	}
	return env, nil
}
