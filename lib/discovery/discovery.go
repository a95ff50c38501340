// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package discovery locates the pending release pull request for each
// registered package and assembles them into the run plan that drives
// the rest of the release train.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/releasetrain/releasetrain/lib/github"
	"github.com/releasetrain/releasetrain/lib/registry"
)

// MergeableState classifies whether a release branch can merge into
// the integration branch without conflicts, as reported by the pull
// request host.
type MergeableState string

const (
	// StateMergeable means the host reports a clean merge.
	StateMergeable MergeableState = "mergeable"

	// StateConflicting means the host reports merge conflicts.
	StateConflicting MergeableState = "conflicting"

	// StateUnknown means the host has not finished computing
	// mergeability. Treated pessimistically, like conflicting.
	StateUnknown MergeableState = "unknown"
)

// stateOf maps the host's tri-state mergeable field onto a
// MergeableState.
func stateOf(pullRequest *github.PullRequest) MergeableState {
	switch {
	case pullRequest.Mergeable == nil:
		return StateUnknown
	case *pullRequest.Mergeable:
		return StateMergeable
	default:
		return StateConflicting
	}
}

// ReleaseRequest is one pending release pull request, bound to the
// package it releases. Discovered fresh each run; never persisted.
type ReleaseRequest struct {
	Package      registry.Package
	Number       int
	Title        string
	SourceBranch string
	URL          string
	State        MergeableState
}

// RunPlan maps package names to their pending release requests.
// Absence of an entry means the package has nothing to release this
// run. Built once at the start of a run and read-only thereafter.
type RunPlan struct {
	requests map[string]*ReleaseRequest
}

// NewRunPlan assembles a plan directly from release requests. Discover
// is the normal constructor.
func NewRunPlan(requests ...*ReleaseRequest) *RunPlan {
	plan := &RunPlan{requests: make(map[string]*ReleaseRequest, len(requests))}
	for _, request := range requests {
		plan.requests[request.Package.Name] = request
	}
	return plan
}

// Request returns the pending release request for the named package,
// or nil if the package has nothing to release.
func (plan *RunPlan) Request(packageName string) *ReleaseRequest {
	return plan.requests[packageName]
}

// Pending reports whether the named package has a pending release.
func (plan *RunPlan) Pending(packageName string) bool {
	return plan.requests[packageName] != nil
}

// Len returns the number of packages with pending releases.
func (plan *RunPlan) Len() int {
	return len(plan.requests)
}

// DiscoveryError indicates the pull request query itself failed.
// An empty result is not an error; it means nothing to release.
type DiscoveryError struct {
	Err error
}

func (err *DiscoveryError) Error() string {
	return fmt.Sprintf("discovering release pull requests: %v", err.Err)
}

func (err *DiscoveryError) Unwrap() error { return err.Err }

// PullService is the slice of the pull request host API that discovery
// consumes.
type PullService interface {
	ListPullRequests(ctx context.Context, owner, repo, base string) ([]github.PullRequest, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
}

// Discoverer finds pending release pull requests. A pull request
// belongs to a package when it carries the pending label and its title
// contains "release <package-name>" case-insensitively.
type Discoverer struct {
	pulls             PullService
	owner             string
	repo              string
	integrationBranch string
	pendingLabel      string
	logger            *slog.Logger
}

// New creates a Discoverer.
func New(pulls PullService, owner, repo, integrationBranch, pendingLabel string, logger *slog.Logger) *Discoverer {
	return &Discoverer{
		pulls:             pulls,
		owner:             owner,
		repo:              repo,
		integrationBranch: integrationBranch,
		pendingLabel:      pendingLabel,
		logger:            logger,
	}
}

// titlePattern matches "release <name>" as whole words anywhere in a
// pull request title, case-insensitively.
func titlePattern(packageName string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)(^|\s)release\s+` + regexp.QuoteMeta(packageName) + `($|\s|:)`)
}

// Discover queries the host once for all open pull requests against
// the integration branch, then matches them to packages. At most one
// request per package; the first listed match wins. Each match is
// re-fetched individually because the list endpoint omits the
// mergeability field.
func (discoverer *Discoverer) Discover(ctx context.Context, reg *registry.Registry) (*RunPlan, error) {
	open, err := discoverer.pulls.ListPullRequests(ctx, discoverer.owner, discoverer.repo, discoverer.integrationBranch)
	if err != nil {
		return nil, &DiscoveryError{Err: err}
	}

	plan := &RunPlan{requests: make(map[string]*ReleaseRequest)}
	for _, pkg := range reg.Packages() {
		pattern := titlePattern(pkg.Name)

		var match *github.PullRequest
		for index := range open {
			candidate := &open[index]
			if !candidate.HasLabel(discoverer.pendingLabel) {
				continue
			}
			if !pattern.MatchString(candidate.Title) {
				continue
			}
			match = candidate
			break
		}
		if match == nil {
			discoverer.logger.Info("no pending release", "package", pkg.Name)
			continue
		}

		// The list endpoint omits mergeability; fetch the pull
		// request individually to populate it.
		detailed, err := discoverer.pulls.GetPullRequest(ctx, discoverer.owner, discoverer.repo, match.Number)
		if err != nil {
			return nil, &DiscoveryError{Err: err}
		}

		request := &ReleaseRequest{
			Package:      pkg,
			Number:       detailed.Number,
			Title:        detailed.Title,
			SourceBranch: detailed.Head.Ref,
			URL:          detailed.HTMLURL,
			State:        stateOf(detailed),
		}
		plan.requests[pkg.Name] = request
		discoverer.logger.Info("found pending release",
			"package", pkg.Name,
			"pull_request", request.Number,
			"branch", request.SourceBranch,
			"mergeable", string(request.State),
		)
	}
	return plan, nil
}
