// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package train drives the release run end to end: discover pending
// release pull requests, then walk the packages in dependency rank
// order, resolving conflicts, merging, and waiting for each package's
// publish workflow before the next package boards.
package train

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/releasetrain/releasetrain/lib/clock"
	"github.com/releasetrain/releasetrain/lib/discovery"
	"github.com/releasetrain/releasetrain/lib/github"
	"github.com/releasetrain/releasetrain/lib/registry"
)

// clockSkewAllowance pads the merge watermark so a workflow run
// stamped by a CI clock slightly behind ours is still accepted.
const clockSkewAllowance = time.Minute

// MergeError reports that a release pull request could not be merged.
type MergeError struct {
	Package string
	Number  int
	Err     error
}

func (err *MergeError) Error() string {
	return fmt.Sprintf("merging release pull request #%d for %s: %v", err.Number, err.Package, err.Err)
}

func (err *MergeError) Unwrap() error { return err.Err }

// PlanSource builds the run plan. Satisfied by *discovery.Discoverer.
type PlanSource interface {
	Discover(ctx context.Context, reg *registry.Registry) (*discovery.RunPlan, error)
}

// Resolver reconciles a release branch with the integration branch.
// Satisfied by *resolve.Resolver.
type Resolver interface {
	Resolve(ctx context.Context, request *discovery.ReleaseRequest) error
}

// MergeService is the slice of the pull request host API that merges
// and cleans up release pull requests. Satisfied by *github.Client.
type MergeService interface {
	MergePullRequest(ctx context.Context, owner, repo string, number int) (*github.MergeResult, error)
	DeleteBranch(ctx context.Context, owner, repo, branch string) error
}

// WorkflowWaiter blocks until the publish workflow triggered after
// since completes. Satisfied by *Waiter.
type WorkflowWaiter interface {
	Wait(ctx context.Context, since time.Time) error
}

// Fetcher updates the local checkout's view of the remote before
// discovery. Satisfied by *workspace.Workspace.
type Fetcher interface {
	Fetch(ctx context.Context) error
}

// outcome records what happened to one package during a run.
type outcome struct {
	pkg    registry.Package
	merged bool
	number int
}

// Train is the orchestrator for one release run.
type Train struct {
	registry  *registry.Registry
	workspace Fetcher
	plans     PlanSource
	resolver  Resolver
	merges    MergeService
	waiter    WorkflowWaiter
	owner     string
	repo      string
	dryRun    bool
	clock     clock.Clock
	logger    *slog.Logger
	out       io.Writer
}

// Config wires a Train's collaborators.
type Config struct {
	Registry  *registry.Registry
	Workspace Fetcher
	Plans     PlanSource
	Resolver  Resolver
	Merges    MergeService
	Waiter    WorkflowWaiter
	Owner     string
	Repo      string
	DryRun    bool
	Clock     clock.Clock
	Logger    *slog.Logger
	Out       io.Writer
}

// New creates a Train.
func New(config Config) *Train {
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Train{
		registry:  config.Registry,
		workspace: config.Workspace,
		plans:     config.Plans,
		resolver:  config.Resolver,
		merges:    config.Merges,
		waiter:    config.Waiter,
		owner:     config.Owner,
		repo:      config.Repo,
		dryRun:    config.DryRun,
		clock:     clk,
		logger:    logger,
		out:       config.Out,
	}
}

// Run executes one release run. Packages are processed strictly in
// ascending rank order; the first unrecovered failure aborts the run.
// Packages already merged stay merged; their workflows can be
// re-triggered on a future run.
func (train *Train) Run(ctx context.Context) error {
	if err := train.workspace.Fetch(ctx); err != nil {
		return fmt.Errorf("fetching remote state: %w", err)
	}

	plan, err := train.plans.Discover(ctx, train.registry)
	if err != nil {
		return err
	}
	train.logger.Info("run plan assembled", "pending", plan.Len(), "packages", train.registry.Len())

	var outcomes []outcome
	releasedThisRun := false
	for _, pkg := range train.registry.Packages() {
		request := plan.Request(pkg.Name)
		if request == nil {
			train.logger.Info("nothing to release, skipping", "package", pkg.Name)
			outcomes = append(outcomes, outcome{pkg: pkg})
			continue
		}

		// A lower-rank release merged earlier in this run may have
		// left this branch behind the integration branch.
		if releasedThisRun {
			if err := train.resolver.Resolve(ctx, request); err != nil {
				return err
			}
		}

		mergedAt, err := train.merge(ctx, request)
		if err != nil {
			return err
		}
		if !train.dryRun {
			if err := train.waiter.Wait(ctx, mergedAt); err != nil {
				return err
			}
		}

		outcomes = append(outcomes, outcome{pkg: pkg, merged: true, number: request.Number})
		releasedThisRun = true
	}

	train.printSummary(outcomes)
	return nil
}

// merge squash-merges the release pull request and deletes its source
// branch. Returns the watermark instant for workflow polling. In
// dry-run mode the merge is logged and skipped.
func (train *Train) merge(ctx context.Context, request *discovery.ReleaseRequest) (time.Time, error) {
	if train.dryRun {
		train.logger.Info("dry-run: would squash-merge release pull request",
			"package", request.Package.Name,
			"pull_request", request.Number,
			"branch", request.SourceBranch,
		)
		return time.Time{}, nil
	}

	watermark := train.clock.Now().Add(-clockSkewAllowance)

	result, err := train.merges.MergePullRequest(ctx, train.owner, train.repo, request.Number)
	if err != nil {
		return time.Time{}, &MergeError{Package: request.Package.Name, Number: request.Number, Err: err}
	}
	if !result.Merged {
		return time.Time{}, &MergeError{
			Package: request.Package.Name,
			Number:  request.Number,
			Err:     fmt.Errorf("host refused the merge: %s", result.Message),
		}
	}
	train.logger.Info("merged release pull request",
		"package", request.Package.Name,
		"pull_request", request.Number,
		"sha", result.SHA,
	)

	// Branch deletion is cleanup; the merge is already durable. The
	// host may have auto-deleted the branch, so 404 is fine.
	if err := train.merges.DeleteBranch(ctx, train.owner, train.repo, request.SourceBranch); err != nil && !github.IsNotFound(err) {
		train.logger.Warn("deleting release branch failed",
			"branch", request.SourceBranch,
			"error", err,
		)
	}
	return watermark, nil
}

// printSummary writes the per-package merged/skipped table in rank
// order.
func (train *Train) printSummary(outcomes []outcome) {
	width := 0
	for _, result := range outcomes {
		if len(result.pkg.Name) > width {
			width = len(result.pkg.Name)
		}
	}

	fmt.Fprintln(train.out, "release train summary:")
	for _, result := range outcomes {
		if result.merged {
			fmt.Fprintf(train.out, "  %-*s  merged (#%d)\n", width, result.pkg.Name, result.number)
		} else {
			fmt.Fprintf(train.out, "  %-*s  skipped\n", width, result.pkg.Name)
		}
	}
}
