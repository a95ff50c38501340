// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

package train

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/releasetrain/releasetrain/lib/clock"
	"github.com/releasetrain/releasetrain/lib/github"
)

// WorkflowFailedError reports a publish workflow run that completed
// with a non-success conclusion.
type WorkflowFailedError struct {
	Conclusion string
	URL        string
}

func (err *WorkflowFailedError) Error() string {
	return fmt.Sprintf("publish workflow completed with conclusion %q (%s)", err.Conclusion, err.URL)
}

// WorkflowTimeoutError reports that the publish workflow did not reach
// a terminal state within the configured timeout.
type WorkflowTimeoutError struct {
	Timeout time.Duration
}

func (err *WorkflowTimeoutError) Error() string {
	return fmt.Sprintf("publish workflow did not complete within %s", err.Timeout)
}

// RunSource is the slice of the CI API the waiter polls. Satisfied by
// *github.Client.
type RunSource interface {
	LatestWorkflowRun(ctx context.Context, owner, repo, workflowFile, branch string) (*github.WorkflowRun, error)
}

// Waiter polls for the most recent run of the publish workflow until
// it completes or the timeout passes. An initial grace delay lets the
// CI system schedule the run after a merge before the first poll.
type Waiter struct {
	source       RunSource
	owner        string
	repo         string
	workflowFile string
	branch       string
	grace        time.Duration
	interval     time.Duration
	timeout      time.Duration
	clock        clock.Clock
	logger       *slog.Logger
}

// NewWaiter creates a Waiter polling the given workflow file on branch.
func NewWaiter(source RunSource, owner, repo, workflowFile, branch string, grace, interval, timeout time.Duration, clk clock.Clock, logger *slog.Logger) *Waiter {
	return &Waiter{
		source:       source,
		owner:        owner,
		repo:         repo,
		workflowFile: workflowFile,
		branch:       branch,
		grace:        grace,
		interval:     interval,
		timeout:      timeout,
		clock:        clk,
		logger:       logger,
	}
}

// errDeadline signals that pollUntil gave up because its deadline
// passed before the condition held.
var errDeadline = errors.New("poll deadline exceeded")

// pollUntil invokes check, then repeats every interval until check
// reports done, the deadline passes, or ctx is cancelled. The deadline
// is evaluated after each check, so a condition that becomes true on
// the final poll still wins.
func pollUntil(ctx context.Context, clk clock.Clock, interval time.Duration, deadline time.Time, check func() (bool, error)) error {
	for {
		done, err := check()
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		if clk.Now().After(deadline) {
			return errDeadline
		}
		select {
		case <-clk.After(interval):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Wait blocks until the most recent publish workflow run created after
// since completes. Returns nil on a success conclusion, a
// *WorkflowFailedError on any other conclusion, and a
// *WorkflowTimeoutError if the timeout passes first. Runs created at
// or before since are older than the merge that should have triggered
// one and are ignored, as is seeing no run at all: both mean "keep
// polling".
func (waiter *Waiter) Wait(ctx context.Context, since time.Time) error {
	deadline := waiter.clock.Now().Add(waiter.timeout)

	waiter.logger.Info("waiting for publish workflow",
		"workflow", waiter.workflowFile,
		"branch", waiter.branch,
		"grace", waiter.grace,
		"timeout", waiter.timeout,
	)
	select {
	case <-waiter.clock.After(waiter.grace):
	case <-ctx.Done():
		return ctx.Err()
	}

	var terminal error
	err := pollUntil(ctx, waiter.clock, waiter.interval, deadline, func() (bool, error) {
		run, err := waiter.source.LatestWorkflowRun(ctx, waiter.owner, waiter.repo, waiter.workflowFile, waiter.branch)
		if err != nil {
			return false, err
		}
		switch {
		case run == nil:
			waiter.logger.Info("no workflow run observed yet", "workflow", waiter.workflowFile)
			return false, nil
		case !run.CreatedAt.After(since):
			waiter.logger.Info("latest workflow run predates the merge",
				"workflow", waiter.workflowFile,
				"run_created_at", run.CreatedAt,
			)
			return false, nil
		case !run.Completed():
			waiter.logger.Info("workflow run in progress",
				"workflow", waiter.workflowFile,
				"status", run.Status,
			)
			return false, nil
		case run.Succeeded():
			waiter.logger.Info("workflow run succeeded", "workflow", waiter.workflowFile, "url", run.HTMLURL)
			return true, nil
		default:
			terminal = &WorkflowFailedError{Conclusion: run.Conclusion, URL: run.HTMLURL}
			return true, nil
		}
	})
	if errors.Is(err, errDeadline) {
		return &WorkflowTimeoutError{Timeout: waiter.timeout}
	}
	if err != nil {
		return err
	}
	return terminal
}
