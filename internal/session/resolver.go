package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/thatjpcsguy/lanes/internal/config"
	"github.com/thatjpcsguy/lanes/internal/logging"
	"github.com/thatjpcsguy/lanes/internal/registry"
)

var (
	// ErrNoProjectRoot means no marker file exists at or above the directory.
	ErrNoProjectRoot = errors.New("not inside a lanes project")

	// ErrNoSession means the directory is in a project but not in a session.
	ErrNoSession = errors.New("not inside a lanes session")
)

// SessionFinder looks up an active session by its directory.
type SessionFinder interface {
	FindActiveByDir(ctx context.Context, dir string) (*registry.Session, error)
}

// Resolution is where a directory sits: always a project, maybe a session.
type Resolution struct {
	ProjectRoot string
	Session     *registry.Session
}

// RequireSession returns the session or ErrNoSession.
func (r *Resolution) RequireSession() (*registry.Session, error) {
	if r.Session == nil {
		return nil, ErrNoSession
	}
	return r.Session, nil
}

// Resolver maps a working directory to its project and session.
type Resolver struct {
	// Finder may be nil, in which case no session is ever found.
	Finder SessionFinder
}

// NewResolver creates a Resolver backed by finder.
func NewResolver(finder SessionFinder) *Resolver {
	return &Resolver{Finder: finder}
}

// FindProjectRoot returns the nearest directory at or above startDir that
// holds a marker file.
func FindProjectRoot(startDir string) (string, error) {
	marker, err := config.FindMarker(canonical(startDir))
	if err != nil {
		if errors.Is(err, config.ErrNoMarker) {
			return "", ErrNoProjectRoot
		}
		return "", err
	}
	return filepath.Dir(marker), nil
}

// Resolve finds the project root, then checks startDir and each of its
// ancestors up to that root for an active session directory. A worktree carries its own copy
// of the marker file, so a session hit overrides the marker's directory with
// the session's recorded project root.
func (r *Resolver) Resolve(ctx context.Context, startDir string) (*Resolution, error) {
	dir := canonical(startDir)

	root, err := FindProjectRoot(dir)
	if err != nil {
		return nil, err
	}

	if r.Finder != nil {
		for d := dir; ; {
			s, err := r.Finder.FindActiveByDir(ctx, d)
			if err == nil {
				logging.ForSession(s.ProjectRoot, s.ID).WithField("dir", d).Debug("resolved session")
				return &Resolution{ProjectRoot: s.ProjectRoot, Session: s}, nil
			}
			if !errors.Is(err, registry.ErrNotFound) {
				return nil, fmt.Errorf("failed to look up session for %s: %w", d, err)
			}

			parent := filepath.Dir(d)
			if d == root || parent == d {
				break
			}
			d = parent
		}
	}

	return &Resolution{ProjectRoot: root}, nil
}

// canonical makes dir absolute and resolves symlinks so it compares equal to
// directories recorded in the registry.
func canonical(dir string) string {
	if abs, err := filepath.Abs(dir); err == nil {
		dir = abs
	}
	if resolved, err := filepath.EvalSymlinks(dir); err == nil {
		dir = resolved
	}
	return dir
}

// Canonical is canonical for callers that record directories.
func Canonical(dir string) string {
	return canonical(dir)
}

// Getwd returns the canonical working directory.
func Getwd() (string, error) {
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	return canonical(wd), nil
}
