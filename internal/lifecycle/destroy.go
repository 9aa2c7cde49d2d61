package lifecycle

import (
	"context"
	"fmt"

	"github.com/thatjpcsguy/lanes/internal/hooks"
	"github.com/thatjpcsguy/lanes/internal/registry"
)

// Destroy tears a session down and marks it destroyed. Teardown hooks,
// containers and the worktree are best-effort: failures are logged and
// cleanup continues.
func (m *Manager) Destroy(ctx context.Context, id string) error {
	s, err := m.Get(ctx, id)
	if err != nil {
		return err
	}
	return m.destroy(ctx, s)
}

// DestroyAll destroys every active session of the project and returns the
// ids that were destroyed.
func (m *Manager) DestroyAll(ctx context.Context) ([]string, error) {
	active, err := m.reg.ListActive(ctx, m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var destroyed []string
	for i := range active {
		if err := m.destroy(ctx, &active[i]); err != nil {
			return destroyed, err
		}
		destroyed = append(destroyed, active[i].ID)
	}
	return destroyed, nil
}

func (m *Manager) destroy(ctx context.Context, s *registry.Session) error {
	log := m.log(s)

	env, err := m.Env(ctx, s, "")
	if err != nil {
		log.Warnf("failed to render session env: %v", err)
	}

	if dirExists(s.Dir) {
		if err := m.hooks.Run(ctx, hooks.Teardown, s.Dir, m.cfg.Teardown, env); err != nil {
			log.Warnf("teardown failed: %v", err)
		}

		if s.Mode == registry.ModeDocker {
			if err := m.services.Down(ctx, s, env); err != nil {
				log.Warnf("failed to stop containers: %v", err)
			}
		}
	}

	if !s.InPlace {
		if err := m.worktrees.RemoveWorktree(ctx, s.Dir); err != nil {
			log.Warnf("failed to remove worktree: %v", err)
		}
	}

	if _, err := m.reg.MarkDestroyed(ctx, s.ProjectRoot, s.ID); err != nil {
		return fmt.Errorf("failed to mark session %s destroyed: %w", s.ID, err)
	}

	log.Debug("session destroyed")
	return nil
}

// PruneResult reports what Prune cleaned up.
type PruneResult struct {
	// Orphaned are active sessions whose directory was gone.
	Orphaned []string
	// Purged is the number of destroyed rows deleted.
	Purged int
}

// Orphans returns active sessions whose directory no longer exists.
func (m *Manager) Orphans(ctx context.Context) ([]registry.Session, error) {
	active, err := m.reg.ListActive(ctx, m.root)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	var orphans []registry.Session
	for _, s := range active {
		if !dirExists(s.Dir) {
			orphans = append(orphans, s)
		}
	}
	return orphans, nil
}

// Prune marks orphaned sessions destroyed, deletes destroyed rows and asks
// git to forget missing worktrees.
func (m *Manager) Prune(ctx context.Context) (*PruneResult, error) {
	orphans, err := m.Orphans(ctx)
	if err != nil {
		return nil, err
	}

	result := &PruneResult{}
	for _, s := range orphans {
		if _, err := m.reg.MarkDestroyed(ctx, s.ProjectRoot, s.ID); err != nil {
			return result, fmt.Errorf("failed to mark session %s destroyed: %w", s.ID, err)
		}
		result.Orphaned = append(result.Orphaned, s.ID)
	}

	result.Purged, err = m.reg.PurgeDestroyed(ctx, m.root)
	if err != nil {
		return result, fmt.Errorf("failed to purge destroyed sessions: %w", err)
	}

	if err := m.worktrees.PruneWorktrees(ctx); err != nil {
		logFor(m.root).Warnf("git worktree prune failed: %v", err)
	}

	return result, nil
}
