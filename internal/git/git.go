package git

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// Error is a failed git invocation with its captured stderr.
type Error struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("git %s failed", strings.Join(e.Args, " "))
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Runner runs git against one repository.
type Runner struct {
	// Repo is the main checkout, passed to git as -C.
	Repo string
}

// NewRunner creates a Runner for the repository at repo.
func NewRunner(repo string) *Runner {
	return &Runner{Repo: repo}
}

func (r *Runner) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, "git", append([]string{"-C", r.Repo}, args...)...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", &Error{Args: args, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	return strings.TrimSpace(stdout.String()), nil
}

// AddWorktree checks out branch at dir, creating the branch from HEAD when it
// does not exist yet.
func (r *Runner) AddWorktree(ctx context.Context, dir, branch string) error {
	if branch == "" {
		_, err := r.run(ctx, "worktree", "add", "--detach", dir)
		return err
	}

	exists, err := r.BranchExists(ctx, branch)
	if err != nil {
		return err
	}
	if exists {
		_, err = r.run(ctx, "worktree", "add", dir, branch)
		return err
	}

	_, err = r.run(ctx, "worktree", "add", "-b", branch, dir)
	return err
}

// RemoveWorktree removes the worktree at dir, discarding local changes.
func (r *Runner) RemoveWorktree(ctx context.Context, dir string) error {
	_, err := r.run(ctx, "worktree", "remove", "--force", dir)
	return err
}

// PruneWorktrees drops git's records of worktrees whose directories are gone.
func (r *Runner) PruneWorktrees(ctx context.Context) error {
	_, err := r.run(ctx, "worktree", "prune")
	return err
}

// BranchExists reports whether a local branch exists.
func (r *Runner) BranchExists(ctx context.Context, branch string) (bool, error) {
	_, err := r.run(ctx, "rev-parse", "--verify", "--quiet", "refs/heads/"+branch)
	if err == nil {
		return true, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// CurrentBranch returns the branch checked out in dir.
func CurrentBranch(ctx context.Context, dir string) (string, error) {
	branch, err := NewRunner(dir).run(ctx, "branch", "--show-current")
	if err != nil {
		return "", fmt.Errorf("failed to get current branch: %w", err)
	}
	if branch == "" {
		return "", fmt.Errorf("not on a branch")
	}
	return branch, nil
}

// IsRepo reports whether the runner's repository is a git checkout.
func (r *Runner) IsRepo(ctx context.Context) bool {
	_, err := r.run(ctx, "rev-parse", "--git-dir")
	return err == nil
}
