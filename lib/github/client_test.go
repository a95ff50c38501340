// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/releasetrain/releasetrain/lib/clock"
)

// newTestClient starts a TLS test server backed by the given handler
// and returns a client pointed at it. The server is shut down when the
// test finishes.
func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	server := httptest.NewTLSServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return client
}

func TestNewClient_RequiresHTTPS(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{BaseURL: "http://api.github.com", Token: "x"})
	if err == nil {
		t.Fatal("expected error for non-HTTPS base URL")
	}
}

func TestNewClient_RequiresToken(t *testing.T) {
	t.Parallel()
	_, err := NewClient(Config{})
	if err == nil {
		t.Fatal("expected error for missing token")
	}
}

func TestClient_SendsStandardHeaders(t *testing.T) {
	t.Parallel()

	var gotAuthorization, gotAccept, gotVersion string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthorization = r.Header.Get("Authorization")
		gotAccept = r.Header.Get("Accept")
		gotVersion = r.Header.Get("X-GitHub-Api-Version")
		fmt.Fprint(w, `{"number": 1}`)
	}))

	if _, err := client.GetPullRequest(context.Background(), "acme", "widgets", 1); err != nil {
		t.Fatalf("GetPullRequest: %v", err)
	}
	if gotAuthorization != "Bearer test-token" {
		t.Errorf("Authorization = %q, want bearer token", gotAuthorization)
	}
	if gotAccept != "application/vnd.github+json" {
		t.Errorf("Accept = %q", gotAccept)
	}
	if gotVersion != apiVersion {
		t.Errorf("X-GitHub-Api-Version = %q, want %q", gotVersion, apiVersion)
	}
}

func TestListPullRequests_FollowsPagination(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	var serverURL string
	mux.HandleFunc("/repos/acme/widgets/pulls", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("base") != "main" {
			t.Errorf("base = %q, want main", r.URL.Query().Get("base"))
		}
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"number": 3, "title": "release widgets-c"}]`)
			return
		}
		w.Header().Set("Link", fmt.Sprintf(`<%s/repos/acme/widgets/pulls?page=2>; rel="next"`, serverURL))
		fmt.Fprint(w, `[{"number": 1, "title": "release widgets-a"}, {"number": 2, "title": "release widgets-b"}]`)
	})

	server := httptest.NewTLSServer(mux)
	t.Cleanup(server.Close)
	serverURL = server.URL

	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	pulls, err := client.ListPullRequests(context.Background(), "acme", "widgets", "main")
	if err != nil {
		t.Fatalf("ListPullRequests: %v", err)
	}
	if len(pulls) != 3 {
		t.Fatalf("got %d pull requests, want 3 across two pages", len(pulls))
	}
	if pulls[2].Number != 3 {
		t.Errorf("last pull = #%d, want #3 from the second page", pulls[2].Number)
	}
}

func TestGetPullRequest_MergeableTriState(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 7, "mergeable": false, "labels": [{"name": "autorelease: pending"}]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/pulls/8", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"number": 8, "mergeable": null}`)
	})
	client := newTestClient(t, mux)

	conflicting, err := client.GetPullRequest(context.Background(), "acme", "widgets", 7)
	if err != nil {
		t.Fatalf("GetPullRequest: %v", err)
	}
	if conflicting.Mergeable == nil || *conflicting.Mergeable {
		t.Errorf("Mergeable = %v, want false", conflicting.Mergeable)
	}
	if !conflicting.HasLabel("autorelease: pending") {
		t.Error("HasLabel missed the pending label")
	}

	unknown, err := client.GetPullRequest(context.Background(), "acme", "widgets", 8)
	if err != nil {
		t.Fatalf("GetPullRequest: %v", err)
	}
	if unknown.Mergeable != nil {
		t.Errorf("Mergeable = %v, want nil while GitHub is still computing", *unknown.Mergeable)
	}
}

func TestMergePullRequest_SquashMethod(t *testing.T) {
	t.Parallel()

	var gotMethod string
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7/merge", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.NotFound(w, r)
			return
		}
		var request struct {
			MergeMethod string `json:"merge_method"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("decoding merge request: %v", err)
		}
		gotMethod = request.MergeMethod
		fmt.Fprint(w, `{"sha": "abc123", "merged": true, "message": "Pull Request successfully merged"}`)
	})
	client := newTestClient(t, mux)

	result, err := client.MergePullRequest(context.Background(), "acme", "widgets", 7)
	if err != nil {
		t.Fatalf("MergePullRequest: %v", err)
	}
	if gotMethod != "squash" {
		t.Errorf("merge_method = %q, want squash", gotMethod)
	}
	if !result.Merged || result.SHA != "abc123" {
		t.Errorf("result = %+v", result)
	}
}

func TestMergePullRequest_BlockedIs405(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/7/merge", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusMethodNotAllowed)
		fmt.Fprint(w, `{"message": "Pull Request is not mergeable"}`)
	})
	client := newTestClient(t, mux)

	_, err := client.MergePullRequest(context.Background(), "acme", "widgets", 7)
	if !IsMergeBlocked(err) {
		t.Fatalf("IsMergeBlocked(%v) = false, want true", err)
	}
}

func TestDeleteBranch(t *testing.T) {
	t.Parallel()

	var gotPath string
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete {
			http.NotFound(w, r)
			return
		}
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	})
	client := newTestClient(t, mux)

	if err := client.DeleteBranch(context.Background(), "acme", "widgets", "release-widgets-a"); err != nil {
		t.Fatalf("DeleteBranch: %v", err)
	}
	want := "/repos/acme/widgets/git/refs/heads/release-widgets-a"
	if gotPath != want {
		t.Errorf("path = %q, want %q", gotPath, want)
	}
}

func TestLatestWorkflowRun(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/actions/workflows/publish.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("branch") != "main" {
			t.Errorf("branch = %q, want main", r.URL.Query().Get("branch"))
		}
		fmt.Fprint(w, `{"total_count": 12, "workflow_runs": [{"id": 99, "status": "completed", "conclusion": "success"}]}`)
	})
	mux.HandleFunc("/repos/acme/widgets/actions/workflows/empty.yml/runs", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"total_count": 0, "workflow_runs": []}`)
	})
	client := newTestClient(t, mux)

	run, err := client.LatestWorkflowRun(context.Background(), "acme", "widgets", "publish.yml", "main")
	if err != nil {
		t.Fatalf("LatestWorkflowRun: %v", err)
	}
	if run == nil || run.ID != 99 || !run.Succeeded() {
		t.Errorf("run = %+v, want completed success with ID 99", run)
	}

	none, err := client.LatestWorkflowRun(context.Background(), "acme", "widgets", "empty.yml", "main")
	if err != nil {
		t.Fatalf("LatestWorkflowRun: %v", err)
	}
	if none != nil {
		t.Errorf("run = %+v, want nil when the workflow has no runs", none)
	}
}

func TestClient_APIErrorParsing(t *testing.T) {
	t.Parallel()

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"message": "Not Found", "documentation_url": "https://docs.github.com/rest"}`)
	}))

	_, err := client.GetPullRequest(context.Background(), "acme", "widgets", 1)
	var apiError *APIError
	if !errors.As(err, &apiError) {
		t.Fatalf("error = %v, want *APIError", err)
	}
	if apiError.StatusCode != 404 || apiError.Message != "Not Found" {
		t.Errorf("APIError = %+v", apiError)
	}
	if !IsNotFound(err) {
		t.Error("IsNotFound = false, want true")
	}
}

func TestClient_RetriesAfterRateLimit(t *testing.T) {
	t.Parallel()

	var requests int
	mux := http.NewServeMux()
	mux.HandleFunc("/repos/acme/widgets/pulls/1", func(w http.ResponseWriter, r *http.Request) {
		requests++
		if requests == 1 {
			w.Header().Set("Retry-After", "30")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprint(w, `{"message": "API rate limit exceeded"}`)
			return
		}
		fmt.Fprint(w, `{"number": 1}`)
	})

	server := httptest.NewTLSServer(mux)
	t.Cleanup(server.Close)

	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	client, err := NewClient(Config{
		BaseURL:    server.URL,
		Token:      "test-token",
		HTTPClient: server.Client(),
		Clock:      fake,
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	go func() {
		fake.WaitForWaiters(1)
		fake.Advance(30 * time.Second)
	}()

	pull, err := client.GetPullRequest(context.Background(), "acme", "widgets", 1)
	if err != nil {
		t.Fatalf("GetPullRequest after rate limit: %v", err)
	}
	if pull.Number != 1 {
		t.Errorf("pull = %+v", pull)
	}
	if requests != 2 {
		t.Errorf("server saw %d requests, want 2 (original plus one retry)", requests)
	}
}

func TestParseLinkNext(t *testing.T) {
	t.Parallel()

	cases := []struct {
		header string
		want   string
	}{
		{"", ""},
		{`<https://api.github.com/x?page=2>; rel="next", <https://api.github.com/x?page=5>; rel="last"`, "https://api.github.com/x?page=2"},
		{`<https://api.github.com/x?page=5>; rel="last"`, ""},
	}
	for _, tc := range cases {
		if got := parseLinkNext(tc.header); got != tc.want {
			t.Errorf("parseLinkNext(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
