// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
)

// ListPullRequests returns every open pull request targeting the given
// base branch, following pagination until exhausted.
func (client *Client) ListPullRequests(ctx context.Context, owner, repo, base string) ([]PullRequest, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls?state=open&base=%s&per_page=100",
		owner, repo, url.QueryEscape(base))
	return getPaged[PullRequest](ctx, client, path)
}

// GetPullRequest fetches a single pull request. Unlike the list
// endpoint, this populates the Mergeable field; GitHub computes it
// lazily, so Mergeable may still be nil on the first fetch.
func (client *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*PullRequest, error) {
	var pullRequest PullRequest
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", owner, repo, number)
	if err := client.get(ctx, path, &pullRequest); err != nil {
		return nil, err
	}
	return &pullRequest, nil
}

// MergePullRequest squash-merges a pull request. GitHub responds 405
// when the pull request is not in a mergeable state; use IsMergeBlocked
// to detect that case.
func (client *Client) MergePullRequest(ctx context.Context, owner, repo string, number int) (*MergeResult, error) {
	var result MergeResult
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", owner, repo, number)
	request := struct {
		MergeMethod string `json:"merge_method"`
	}{MergeMethod: "squash"}
	if err := client.put(ctx, path, request, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// DeleteBranch deletes a branch from the repository. Used to clean up a
// release branch after its pull request merges.
func (client *Client) DeleteBranch(ctx context.Context, owner, repo, branch string) error {
	path := fmt.Sprintf("/repos/%s/%s/git/refs/heads/%s", owner, repo, url.PathEscape(branch))
	return client.delete(ctx, path)
}
