package mirror

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

// Repository runs git commands against one local clone. Every command is
// issued as "git -C <dir> ...".
type Repository struct {
	dir string
}

func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Run executes git in the repository and returns trimmed stdout. Stderr is
// folded into the error on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	return runGit(ctx, append([]string{"-C", r.dir}, args...)...)
}

func runGit(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// never block on credential prompts
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("git %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return strings.TrimSpace(stdout.String()), nil
}

// Clone makes a history-only clone of a single branch of url into dest. No
// files are checked out; trees are materialized through worktrees.
func Clone(ctx context.Context, url, branch, dest string) (*Repository, error) {
	if _, err := runGit(ctx, "clone", "--quiet", "--no-checkout", "--single-branch",
		"--branch", branch, url, dest); err != nil {
		return nil, err
	}
	return NewRepository(dest), nil
}

func (r *Repository) SetRemoteURL(ctx context.Context, remote, url string) error {
	_, err := r.Run(ctx, "remote", "set-url", remote, url)
	return err
}

// Fetch fetches one branch of remote; the fetched commit is left in FETCH_HEAD.
func (r *Repository) Fetch(ctx context.Context, remote, branch string) error {
	_, err := r.Run(ctx, "fetch", "--quiet", remote, branch)
	return err
}

// ResolveCommit resolves rev to a full commit hash.
func (r *Repository) ResolveCommit(ctx context.Context, rev string) (string, error) {
	return r.Run(ctx, "rev-parse", "--verify", "--quiet", rev+"^{commit}")
}

// IsAncestor reports whether ancestor is reachable from descendant.
func (r *Repository) IsAncestor(ctx context.Context, ancestor, descendant string) (bool, error) {
	_, err := r.Run(ctx, "merge-base", "--is-ancestor", ancestor, descendant)
	if err == nil {
		return true, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 1 {
		return false, nil
	}
	return false, err
}

// UpdateRef moves ref to newValue only if it still points at oldValue.
func (r *Repository) UpdateRef(ctx context.Context, ref, newValue, oldValue, reason string) error {
	_, err := r.Run(ctx, "update-ref", "-m", reason, ref, newValue, oldValue)
	return err
}

// AddWorktree checks commit out into a new detached worktree at dir.
func (r *Repository) AddWorktree(ctx context.Context, dir, commit string) error {
	_, err := r.Run(ctx, "worktree", "add", "--quiet", "--detach", dir, commit)
	return err
}

// RemoveWorktree deletes the worktree at dir and its administrative files.
func (r *Repository) RemoveWorktree(ctx context.Context, dir string) error {
	if _, err := r.Run(ctx, "worktree", "remove", "--force", dir); err != nil {
		if rmErr := os.RemoveAll(dir); rmErr != nil {
			return fmt.Errorf("remove worktree %s: %w", dir, rmErr)
		}
		_, err = r.Run(ctx, "worktree", "prune")
		return err
	}
	return nil
}
