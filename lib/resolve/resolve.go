// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package resolve reconciles a package's release branch with the
// integration branch after an earlier package's release has merged
// ahead of it.
//
// Resolution is deliberately narrow: only the four generated release
// artifacts (package manifest, lock file, release-manifest registry,
// changelog) have resolution rules, expressed as a static strategy
// table keyed by path. A conflict anywhere else is fatal; this package
// never attempts generic merge resolution.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"regexp"

	"github.com/releasetrain/releasetrain/lib/config"
	"github.com/releasetrain/releasetrain/lib/discovery"
	"github.com/releasetrain/releasetrain/lib/registry"
)

// Worktree is the slice of the workspace the resolver drives. Satisfied
// by *workspace.Workspace.
type Worktree interface {
	DryRun() bool
	FileFromBranch(ctx context.Context, branch, path string) (string, error)
	CheckoutForWrite(ctx context.Context, branch string) error
	MergeIntegration(ctx context.Context) (conflicted bool, err error)
	ConflictedFiles(ctx context.Context) ([]string, error)
	ResolveOurs(ctx context.Context, path string) error
	ResolveTheirs(ctx context.Context, path string) error
	ReadFile(path string) (string, error)
	WriteFile(path, content string) error
	Stage(ctx context.Context, paths ...string) error
	CommitMerge(ctx context.Context) error
	Push(ctx context.Context, branch string) error
	RestoreIntegration(ctx context.Context) error
}

// UnresolvableConflictError reports a merge conflict in a file outside
// the fixed set of generated release artifacts.
type UnresolvableConflictError struct {
	Path string
}

func (err *UnresolvableConflictError) Error() string {
	return fmt.Sprintf("merge conflict in %q is outside the known release artifacts and cannot be auto-resolved", err.Path)
}

// strategy is a conflict resolution rule for one artifact.
type strategy int

const (
	// takeTheirs accepts the incoming integration-branch side in full.
	takeTheirs strategy = iota

	// takeTheirsPatchVersion accepts the incoming side, then restores
	// the manifest's version field to the pre-merge value.
	takeTheirsPatchVersion

	// takeTheirsPatchRegistryEntry accepts the incoming side, then
	// restores this package's entry in the release-manifest registry.
	takeTheirsPatchRegistryEntry

	// takeOurs keeps the release branch's side unchanged.
	takeOurs
)

// Resolver applies the artifact strategy table to a conflicted release
// branch.
type Resolver struct {
	worktree  Worktree
	artifacts config.ArtifactsConfig
	logger    *slog.Logger
}

// New creates a Resolver over the given worktree and artifact layout.
func New(worktree Worktree, artifacts config.ArtifactsConfig, logger *slog.Logger) *Resolver {
	return &Resolver{worktree: worktree, artifacts: artifacts, logger: logger}
}

// strategyTable maps each artifact path for one package to its
// resolution rule. The manifest and changelog live under the package
// directory; the lock file and release-manifest registry are
// repository-wide, at the root.
func (resolver *Resolver) strategyTable(pkg registry.Package) map[string]strategy {
	return map[string]strategy{
		path.Join(pkg.Path, resolver.artifacts.Manifest):  takeTheirsPatchVersion,
		path.Join(pkg.Path, resolver.artifacts.Changelog): takeOurs,
		resolver.artifacts.LockFile:                       takeTheirs,
		resolver.artifacts.ReleaseManifest:                takeTheirsPatchRegistryEntry,
	}
}

// Resolve brings the release branch for request up to date with the
// integration branch, resolving artifact conflicts by the strategy
// table and pushing the result. No-op when the host already reports
// the branch mergeable. The working tree is returned to the
// integration branch on every exit path.
func (resolver *Resolver) Resolve(ctx context.Context, request *discovery.ReleaseRequest) (err error) {
	if request.State == discovery.StateMergeable {
		resolver.logger.Info("branch already mergeable, skipping resolution",
			"package", request.Package.Name,
			"pull_request", request.Number,
		)
		return nil
	}
	if resolver.worktree.DryRun() {
		resolver.logger.Info("dry-run: would resolve release branch conflicts",
			"package", request.Package.Name,
			"branch", request.SourceBranch,
		)
		return nil
	}

	// The version this release is publishing must survive the merge;
	// capture it from the branch before touching the tree.
	manifestPath := path.Join(request.Package.Path, resolver.artifacts.Manifest)
	preMergeManifest, err := resolver.worktree.FileFromBranch(ctx, request.SourceBranch, manifestPath)
	if err != nil {
		return fmt.Errorf("reading %s from branch %s: %w", manifestPath, request.SourceBranch, err)
	}
	version, err := manifestVersion(preMergeManifest)
	if err != nil {
		return fmt.Errorf("package %s: %w", request.Package.Name, err)
	}

	if err := resolver.worktree.CheckoutForWrite(ctx, request.SourceBranch); err != nil {
		return err
	}
	defer func() {
		if restoreErr := resolver.worktree.RestoreIntegration(ctx); restoreErr != nil && err == nil {
			err = restoreErr
		}
	}()

	conflicted, err := resolver.worktree.MergeIntegration(ctx)
	if err != nil {
		return err
	}
	if !conflicted {
		// The host's mergeability report was stale; nothing to fix.
		resolver.logger.Info("integration branch merged cleanly",
			"package", request.Package.Name,
			"branch", request.SourceBranch,
		)
		return nil
	}

	table := resolver.strategyTable(request.Package)
	conflictedPaths, err := resolver.worktree.ConflictedFiles(ctx)
	if err != nil {
		return err
	}
	for _, conflictedPath := range conflictedPaths {
		rule, known := table[conflictedPath]
		if !known {
			return &UnresolvableConflictError{Path: conflictedPath}
		}
		if err := resolver.applyStrategy(ctx, conflictedPath, rule, request.Package, version); err != nil {
			return err
		}
		resolver.logger.Info("resolved artifact conflict",
			"package", request.Package.Name,
			"path", conflictedPath,
		)
	}

	if err := resolver.worktree.CommitMerge(ctx); err != nil {
		return err
	}
	if err := resolver.worktree.Push(ctx, request.SourceBranch); err != nil {
		return err
	}
	resolver.logger.Info("pushed resolved release branch",
		"package", request.Package.Name,
		"branch", request.SourceBranch,
		"version", version,
	)
	return nil
}

// applyStrategy resolves one conflicted artifact and stages the result.
func (resolver *Resolver) applyStrategy(ctx context.Context, conflictedPath string, rule strategy, pkg registry.Package, version string) error {
	switch rule {
	case takeOurs:
		if err := resolver.worktree.ResolveOurs(ctx, conflictedPath); err != nil {
			return err
		}

	case takeTheirs:
		if err := resolver.worktree.ResolveTheirs(ctx, conflictedPath); err != nil {
			return err
		}

	case takeTheirsPatchVersion:
		if err := resolver.worktree.ResolveTheirs(ctx, conflictedPath); err != nil {
			return err
		}
		content, err := resolver.worktree.ReadFile(conflictedPath)
		if err != nil {
			return err
		}
		patched, err := setManifestVersion(content, version)
		if err != nil {
			return fmt.Errorf("%s: %w", conflictedPath, err)
		}
		if err := resolver.worktree.WriteFile(conflictedPath, patched); err != nil {
			return err
		}

	case takeTheirsPatchRegistryEntry:
		if err := resolver.worktree.ResolveTheirs(ctx, conflictedPath); err != nil {
			return err
		}
		content, err := resolver.worktree.ReadFile(conflictedPath)
		if err != nil {
			return err
		}
		patched, err := setRegistryEntry(content, pkg.Path, version)
		if err != nil {
			return fmt.Errorf("%s: %w", conflictedPath, err)
		}
		if err := resolver.worktree.WriteFile(conflictedPath, patched); err != nil {
			return err
		}
	}
	return resolver.worktree.Stage(ctx, conflictedPath)
}

var manifestVersionPattern = regexp.MustCompile(`("version"\s*:\s*")([^"]*)(")`)

// manifestVersion extracts the version field from a package manifest.
func manifestVersion(content string) (string, error) {
	match := manifestVersionPattern.FindStringSubmatch(content)
	if match == nil {
		return "", fmt.Errorf("manifest has no version field")
	}
	return match[2], nil
}

// setManifestVersion rewrites the manifest's version field to version,
// leaving every other field as-is.
func setManifestVersion(content, version string) (string, error) {
	if !manifestVersionPattern.MatchString(content) {
		return "", fmt.Errorf("manifest has no version field to patch")
	}
	return manifestVersionPattern.ReplaceAllString(content, "${1}"+version+"${3}"), nil
}

// setRegistryEntry rewrites the release-manifest registry's entry for
// packagePath to version, leaving every other package's entry as-is.
func setRegistryEntry(content, packagePath, version string) (string, error) {
	pattern := regexp.MustCompile(`("` + regexp.QuoteMeta(packagePath) + `"\s*:\s*")([^"]*)(")`)
	if !pattern.MatchString(content) {
		return "", fmt.Errorf("release-manifest registry has no entry for %q", packagePath)
	}
	return pattern.ReplaceAllString(content, "${1}"+version+"${3}"), nil
}
