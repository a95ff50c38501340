// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"fmt"
	"net/url"
)

// LatestWorkflowRun returns the most recent run of a workflow file on
// the given branch, or nil if the workflow has no runs there yet.
// GitHub orders runs newest-first, so a single-item page is enough.
func (client *Client) LatestWorkflowRun(ctx context.Context, owner, repo, workflowFile, branch string) (*WorkflowRun, error) {
	var page struct {
		TotalCount   int           `json:"total_count"`
		WorkflowRuns []WorkflowRun `json:"workflow_runs"`
	}
	path := fmt.Sprintf("/repos/%s/%s/actions/workflows/%s/runs?branch=%s&per_page=1",
		owner, repo, url.PathEscape(workflowFile), url.QueryEscape(branch))
	if err := client.get(ctx, path, &page); err != nil {
		return nil, err
	}
	if len(page.WorkflowRuns) == 0 {
		return nil, nil
	}
	run := page.WorkflowRuns[0]
	return &run, nil
}
