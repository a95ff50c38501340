// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

package github

import "time"

// User is a GitHub user reference.
type User struct {
	Login string `json:"login"`
	ID    int64  `json:"id"`
}

// Label is a GitHub issue/PR label.
type Label struct {
	Name string `json:"name"`
}

// Branch is a git branch reference on a pull request.
type Branch struct {
	Ref string `json:"ref"` // branch name
	SHA string `json:"sha"` // head commit SHA
}

// PullRequest is a GitHub pull request. Mergeable is GitHub's
// tri-state conflict classification: true (clean), false (conflicting),
// or null while the background mergeability check is still running.
// The list endpoint omits it; fetch the individual pull request to
// populate it.
type PullRequest struct {
	Number    int        `json:"number"`
	Title     string     `json:"title"`
	State     string     `json:"state"` // "open" or "closed"
	HTMLURL   string     `json:"html_url"`
	User      User       `json:"user"`
	Head      Branch     `json:"head"`
	Base      Branch     `json:"base"`
	Draft     bool       `json:"draft"`
	Merged    bool       `json:"merged"`
	Mergeable *bool      `json:"mergeable"`
	Labels    []Label    `json:"labels"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	MergedAt  *time.Time `json:"merged_at"`
}

// HasLabel reports whether the pull request carries the given label.
func (pr *PullRequest) HasLabel(name string) bool {
	for _, label := range pr.Labels {
		if label.Name == name {
			return true
		}
	}
	return false
}

// MergeResult is GitHub's response to a pull request merge.
type MergeResult struct {
	SHA     string `json:"sha"`
	Merged  bool   `json:"merged"`
	Message string `json:"message"`
}

// WorkflowRun is a GitHub Actions workflow run.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	Status     string    `json:"status"`     // "queued", "in_progress", "completed"
	Conclusion string    `json:"conclusion"` // "success", "failure", "cancelled", ""
	HeadSHA    string    `json:"head_sha"`
	HeadBranch string    `json:"head_branch"`
	HTMLURL    string    `json:"html_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Completed reports whether the run has reached a terminal status.
func (run *WorkflowRun) Completed() bool {
	return run.Status == "completed"
}

// Succeeded reports whether the run completed with a success conclusion.
func (run *WorkflowRun) Succeeded() bool {
	return run.Completed() && run.Conclusion == "success"
}
