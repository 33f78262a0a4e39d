package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/byte4ever/image_updater/gitops/exec"
)

const defaultRemote = "origin"

var errNotWorkTree = errors.New("not inside a git work tree")

// Repo is a local checkout of a git repository holding the
// documents an update run rewrites. Create with Open.
type Repo struct {
	// Dir is the top-level directory of the work tree.
	Dir string
	// RemoteName is the name of the upstream remote.
	RemoteName string
}

// Open returns the Repo whose work tree contains dir.
func Open(ctx context.Context, dir string) (*Repo, error) {
	const errCtx = "opening repository"

	out, err := exec.Ex(ctx, dir, "git", "rev-parse", "--show-toplevel")
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w: %w", errCtx, dir, errNotWorkTree, err)
	}

	top := strings.TrimSpace(out)
	if top == "" {
		return nil, fmt.Errorf("%s %s: %w", errCtx, dir, errNotWorkTree)
	}

	if resolved, err := filepath.EvalSymlinks(top); err == nil {
		top = resolved
	}

	return &Repo{Dir: top, RemoteName: defaultRemote}, nil
}

// CurrentBranch returns the checked out branch name.
func (r *Repo) CurrentBranch(ctx context.Context) (string, error) {
	const errCtx = "reading current branch"

	out, err := r.git(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", fmt.Errorf("%s: %w", errCtx, err)
	}

	return strings.TrimSpace(out), nil
}

// RecreateBranch points branch at the current HEAD and checks
// it out, discarding whatever the branch held before.
// Uncommitted changes are carried over.
func (r *Repo) RecreateBranch(ctx context.Context, branch string) error {
	const errCtx = "recreating branch"

	if _, err := r.git(ctx, "checkout", "-B", branch); err != nil {
		return fmt.Errorf("%s %s: %w", errCtx, branch, err)
	}

	return nil
}

// Commit stages paths (absolute, or relative to the process
// working directory) and commits them with message. Further paragraphs in body are
// appended to the message. It returns false without
// committing when none of the paths changed.
func (r *Repo) Commit(
	ctx context.Context,
	message string,
	body string,
	paths ...string,
) (bool, error) {
	const errCtx = "committing changes"

	rel, err := r.Relative(paths...)
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if _, err := r.git(ctx, append([]string{"add", "--"}, rel...)...); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	staged, err := r.git(ctx, "diff", "--cached", "--name-only")
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	if len(exec.Lines(staged)) == 0 {
		slog.Info("nothing to commit", "dir", r.Dir)

		return false, nil
	}

	args := []string{"commit", "-m", message}
	if body != "" {
		args = append(args, "-m", body)
	}

	if _, err := r.git(ctx, args...); err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return true, nil
}

// GetChangedFiles returns tracked file paths, relative to Dir,
// that differ from the index.
func (r *Repo) GetChangedFiles(ctx context.Context) ([]string, error) {
	const errCtx = "listing changed files"

	out, err := r.git(ctx, "diff", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", errCtx, err)
	}

	return exec.Lines(out), nil
}

// IsClean reports whether the work tree has no uncommitted
// changes, untracked files included.
func (r *Repo) IsClean(ctx context.Context) (bool, error) {
	const errCtx = "checking repository status"

	out, err := r.git(ctx, "status", "--porcelain")
	if err != nil {
		return false, fmt.Errorf("%s: %w", errCtx, err)
	}

	return strings.TrimSpace(out) == "", nil
}

// Push force-pushes branches to the remote and sets their
// upstream. All changes should be committed before calling
// Push.
func (r *Repo) Push(ctx context.Context, branches ...string) error {
	const errCtx = "pushing branches"

	args := append(
		[]string{"push", r.RemoteName, "-f", "--set-upstream"},
		branches...,
	)

	if _, err := r.git(ctx, args...); err != nil {
		return fmt.Errorf("%s: %w", errCtx, err)
	}

	return nil
}

func (r *Repo) git(ctx context.Context, args ...string) (string, error) {
	return exec.Ex(ctx, r.Dir, "git", args...)
}

// Relative converts paths to slash-separated paths relative to
// the work tree, the form git prints and accepts regardless of
// the directory it runs in. Relative inputs are taken against
// the process working directory. No paths yield ".".
func (r *Repo) Relative(paths ...string) ([]string, error) {
	rel := make([]string, 0, len(paths))

	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, err
		}

		if resolved, err := filepath.EvalSymlinks(abs); err == nil {
			abs = resolved
		}

		rp, err := filepath.Rel(r.Dir, abs)
		if err != nil {
			return nil, err
		}

		rel = append(rel, filepath.ToSlash(rp))
	}

	if len(rel) == 0 {
		rel = append(rel, ".")
	}

	return rel, nil
}
