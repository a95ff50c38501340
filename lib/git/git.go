// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package git provides typed access to the git CLI for the release
// train's working tree. All commands target a specific repository
// directory via the -C flag, which is automatically injected by all
// Repository methods. There is no default directory — callers must
// always specify which repository they mean.
package git

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Repository represents a git working tree at a specific directory.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting the given directory.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is captured separately and included in error messages
// on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{"-C", r.dir}, args...)
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", fullArgs...)
	command.Stdout = &stdout
	command.Stderr = &stderr

	if err := command.Run(); err != nil {
		return "", fmt.Errorf("git %s in %s: %w (stderr: %s)",
			strings.Join(args, " "), r.dir, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// CurrentBranch returns the name of the checked-out branch.
func (r *Repository) CurrentBranch(ctx context.Context) (string, error) {
	output, err := r.Run(ctx, "rev-parse", "--abbrev-ref", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(output), nil
}

// Fetch updates remote-tracking branches from the given remote.
func (r *Repository) Fetch(ctx context.Context, remote string) error {
	_, err := r.Run(ctx, "fetch", remote)
	return err
}

// Checkout switches the working tree to the given branch.
func (r *Repository) Checkout(ctx context.Context, branch string) error {
	_, err := r.Run(ctx, "checkout", branch)
	return err
}

// CheckoutBranchAt creates or resets a local branch to startPoint and
// switches the working tree to it. Used to materialize a remote branch
// at its current remote state regardless of any stale local copy.
func (r *Repository) CheckoutBranchAt(ctx context.Context, branch, startPoint string) error {
	_, err := r.Run(ctx, "checkout", "-B", branch, startPoint)
	return err
}

// Merge merges ref into the current branch with the default merge
// message. Returns conflicted=true when the merge stopped on content
// conflicts (the working tree is left mid-merge for resolution). Any
// other merge failure is returned as an error.
func (r *Repository) Merge(ctx context.Context, ref string) (conflicted bool, err error) {
	_, runErr := r.Run(ctx, "merge", "--no-edit", ref)
	if runErr == nil {
		return false, nil
	}

	// Distinguish a conflict stop from a real failure: a conflicted
	// merge leaves unmerged paths in the index.
	paths, listErr := r.ConflictedFiles(ctx)
	if listErr == nil && len(paths) > 0 {
		return true, nil
	}
	return false, runErr
}

// ConflictedFiles returns the paths with unmerged index entries,
// relative to the repository root.
func (r *Repository) ConflictedFiles(ctx context.Context) ([]string, error) {
	output, err := r.Run(ctx, "diff", "--name-only", "--diff-filter=U")
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(output, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			paths = append(paths, trimmed)
		}
	}
	return paths, nil
}

// CheckoutOurs replaces a conflicted path with the current branch's
// side ("ours").
func (r *Repository) CheckoutOurs(ctx context.Context, path string) error {
	_, err := r.Run(ctx, "checkout", "--ours", "--", path)
	return err
}

// CheckoutTheirs replaces a conflicted path with the incoming side
// ("theirs").
func (r *Repository) CheckoutTheirs(ctx context.Context, path string) error {
	_, err := r.Run(ctx, "checkout", "--theirs", "--", path)
	return err
}

// Stage adds the given paths to the index.
func (r *Repository) Stage(ctx context.Context, paths ...string) error {
	args := append([]string{"add", "--"}, paths...)
	_, err := r.Run(ctx, args...)
	return err
}

// CommitMerge concludes an in-progress merge with the unedited default
// merge message.
func (r *Repository) CommitMerge(ctx context.Context) error {
	_, err := r.Run(ctx, "commit", "--no-edit")
	return err
}

// MergeAbort abandons an in-progress merge and restores the pre-merge
// working tree.
func (r *Repository) MergeAbort(ctx context.Context) error {
	_, err := r.Run(ctx, "merge", "--abort")
	return err
}

// Push pushes a branch to the given remote.
func (r *Repository) Push(ctx context.Context, remote, branch string) error {
	_, err := r.Run(ctx, "push", remote, branch)
	return err
}

// ShowFile returns the content of path as committed on ref. Works
// regardless of which branch is checked out.
func (r *Repository) ShowFile(ctx context.Context, ref, path string) (string, error) {
	return r.Run(ctx, "show", ref+":"+path)
}
