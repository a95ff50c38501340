// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package workspace owns the single local working-tree checkout that
// every git side effect of a release train run flows through. It
// enforces two disciplines the orchestrator and resolver rely on:
//
//   - Dry-run purity: when dry-run is enabled, mutating operations
//     (checkout-for-write, merge, resolve, write, stage, commit, push)
//     are logged and skipped; read operations still execute, so a dry
//     run reports an accurate plan.
//   - Branch restoration: RestoreIntegration returns the tree to the
//     integration branch on every exit path, aborting an in-progress
//     merge if one is blocking the checkout.
//
// The workspace is not safe for concurrent use; the train processes
// packages strictly sequentially.
package workspace

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/releasetrain/releasetrain/lib/git"
)

// Workspace is a handle on the local monorepo checkout.
type Workspace struct {
	repo              *git.Repository
	remote            string
	integrationBranch string
	dryRun            bool
	logger            *slog.Logger
}

// New returns a Workspace over the given repository. The integration
// branch is where the tree is restored to between packages and on
// failure exits.
func New(repo *git.Repository, remote, integrationBranch string, dryRun bool, logger *slog.Logger) *Workspace {
	return &Workspace{
		repo:              repo,
		remote:            remote,
		integrationBranch: integrationBranch,
		dryRun:            dryRun,
		logger:            logger,
	}
}

// DryRun reports whether mutating operations are being skipped.
func (w *Workspace) DryRun() bool {
	return w.dryRun
}

// IntegrationBranch returns the configured integration branch name.
func (w *Workspace) IntegrationBranch() string {
	return w.integrationBranch
}

// Fetch updates remote-tracking refs. Read-only with respect to the
// working tree, so it executes in dry-run mode too.
func (w *Workspace) Fetch(ctx context.Context) error {
	return w.repo.Fetch(ctx, w.remote)
}

// FileFromBranch returns the content of path as committed on the
// remote-tracking ref of branch. Read-only.
func (w *Workspace) FileFromBranch(ctx context.Context, branch, path string) (string, error) {
	return w.repo.ShowFile(ctx, w.remote+"/"+branch, path)
}

// ConflictedFiles lists the paths with unmerged index entries. Read-only.
func (w *Workspace) ConflictedFiles(ctx context.Context) ([]string, error) {
	return w.repo.ConflictedFiles(ctx)
}

// ReadFile returns the content of a working-tree file. Read-only.
func (w *Workspace) ReadFile(path string) (string, error) {
	content, err := os.ReadFile(filepath.Join(w.repo.Dir(), path))
	if err != nil {
		return "", err
	}
	return string(content), nil
}

// CheckoutForWrite materializes branch at its current remote state and
// switches the tree to it. Skipped in dry-run mode.
func (w *Workspace) CheckoutForWrite(ctx context.Context, branch string) error {
	if w.dryRun {
		w.logger.Info("dry-run: skipping checkout", "branch", branch)
		return nil
	}
	return w.repo.CheckoutBranchAt(ctx, branch, w.remote+"/"+branch)
}

// MergeIntegration merges the remote integration branch into the
// current branch. Returns conflicted=true when the merge stopped on
// content conflicts. Skipped in dry-run mode (reports no conflicts).
func (w *Workspace) MergeIntegration(ctx context.Context) (conflicted bool, err error) {
	if w.dryRun {
		w.logger.Info("dry-run: skipping merge", "ref", w.remote+"/"+w.integrationBranch)
		return false, nil
	}
	return w.repo.Merge(ctx, w.remote+"/"+w.integrationBranch)
}

// ResolveOurs resolves a conflicted path to the current branch's side.
// Skipped in dry-run mode.
func (w *Workspace) ResolveOurs(ctx context.Context, path string) error {
	if w.dryRun {
		w.logger.Info("dry-run: skipping resolve ours", "path", path)
		return nil
	}
	return w.repo.CheckoutOurs(ctx, path)
}

// ResolveTheirs resolves a conflicted path to the incoming side.
// Skipped in dry-run mode.
func (w *Workspace) ResolveTheirs(ctx context.Context, path string) error {
	if w.dryRun {
		w.logger.Info("dry-run: skipping resolve theirs", "path", path)
		return nil
	}
	return w.repo.CheckoutTheirs(ctx, path)
}

// WriteFile replaces the content of a working-tree file. Skipped in
// dry-run mode.
func (w *Workspace) WriteFile(path, content string) error {
	if w.dryRun {
		w.logger.Info("dry-run: skipping file write", "path", path)
		return nil
	}
	return os.WriteFile(filepath.Join(w.repo.Dir(), path), []byte(content), 0644)
}

// Stage adds paths to the index. Skipped in dry-run mode.
func (w *Workspace) Stage(ctx context.Context, paths ...string) error {
	if w.dryRun {
		w.logger.Info("dry-run: skipping stage", "paths", paths)
		return nil
	}
	return w.repo.Stage(ctx, paths...)
}

// CommitMerge concludes an in-progress merge with the default message.
// Skipped in dry-run mode.
func (w *Workspace) CommitMerge(ctx context.Context) error {
	if w.dryRun {
		w.logger.Info("dry-run: skipping merge commit")
		return nil
	}
	return w.repo.CommitMerge(ctx)
}

// Push pushes branch to the remote. Skipped in dry-run mode.
func (w *Workspace) Push(ctx context.Context, branch string) error {
	if w.dryRun {
		w.logger.Info("dry-run: skipping push", "branch", branch)
		return nil
	}
	return w.repo.Push(ctx, w.remote, branch)
}

// RestoreIntegration returns the working tree to the integration
// branch. If a conflicted merge is blocking the checkout, the merge is
// aborted first. In dry-run mode the tree never left the integration
// branch, so this is a no-op.
func (w *Workspace) RestoreIntegration(ctx context.Context) error {
	if w.dryRun {
		return nil
	}

	if err := w.repo.Checkout(ctx, w.integrationBranch); err == nil {
		return nil
	}

	// A mid-merge index blocks checkout. Abort and retry; the abort
	// error is irrelevant if the retry succeeds.
	if err := w.repo.MergeAbort(ctx); err != nil {
		w.logger.Warn("merge abort during branch restore failed", "error", err)
	}
	return w.repo.Checkout(ctx, w.integrationBranch)
}
