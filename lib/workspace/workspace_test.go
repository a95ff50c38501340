// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

package workspace

import (
	"context"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/releasetrain/releasetrain/lib/git"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func mustGit(t *testing.T, dir string, args ...string) {
	t.Helper()
	command := exec.Command("git", append([]string{"-C", dir}, args...)...)
	if output, err := command.CombinedOutput(); err != nil {
		t.Fatalf("git %s: %v\n%s", strings.Join(args, " "), err, output)
	}
}

func writeFile(t *testing.T, dir, path, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, path), []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}

// setupRemote builds a bare "origin" with:
//   - main at version 2.0.0 (the just-released upstream state)
//   - release-core at version 1.1.0, diverged from main at 1.0.0
//
// and returns the bare path plus a fresh clone to use as the workspace
// checkout.
func setupRemote(t *testing.T) (bareDir, workDir string) {
	t.Helper()
	base := t.TempDir()

	bareDir = filepath.Join(base, "origin.git")
	if err := os.MkdirAll(bareDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	mustGit(t, bareDir, "init", "--bare", "-b", "main")

	seedDir := filepath.Join(base, "seed")
	if err := os.MkdirAll(seedDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	mustGit(t, seedDir, "init", "-b", "main")
	mustGit(t, seedDir, "config", "user.name", "Test")
	mustGit(t, seedDir, "config", "user.email", "test@test.local")
	mustGit(t, seedDir, "remote", "add", "origin", bareDir)

	writeFile(t, seedDir, "package.json", "{\n  \"version\": \"1.0.0\"\n}\n")
	mustGit(t, seedDir, "add", "-A")
	mustGit(t, seedDir, "commit", "-m", "initial")

	mustGit(t, seedDir, "checkout", "-b", "release-core")
	writeFile(t, seedDir, "package.json", "{\n  \"version\": \"1.1.0\"\n}\n")
	mustGit(t, seedDir, "add", "-A")
	mustGit(t, seedDir, "commit", "-m", "release core 1.1.0")
	mustGit(t, seedDir, "push", "origin", "release-core")

	mustGit(t, seedDir, "checkout", "main")
	writeFile(t, seedDir, "package.json", "{\n  \"version\": \"2.0.0\"\n}\n")
	mustGit(t, seedDir, "add", "-A")
	mustGit(t, seedDir, "commit", "-m", "upstream release 2.0.0")
	mustGit(t, seedDir, "push", "origin", "main")

	workDir = filepath.Join(base, "work")
	command := exec.Command("git", "clone", bareDir, workDir)
	if output, err := command.CombinedOutput(); err != nil {
		t.Fatalf("git clone: %v\n%s", err, output)
	}
	mustGit(t, workDir, "config", "user.name", "Test")
	mustGit(t, workDir, "config", "user.email", "test@test.local")

	return bareDir, workDir
}

func TestWorkspace_ResolveAndPushRoundTrip(t *testing.T) {
	t.Parallel()

	bareDir, workDir := setupRemote(t)
	ctx := context.Background()
	ws := New(git.NewRepository(workDir), "origin", "main", false, discardLogger())

	if err := ws.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	content, err := ws.FileFromBranch(ctx, "release-core", "package.json")
	if err != nil {
		t.Fatalf("FileFromBranch: %v", err)
	}
	if !strings.Contains(content, "1.1.0") {
		t.Fatalf("FileFromBranch = %q, want release branch content", content)
	}

	if err := ws.CheckoutForWrite(ctx, "release-core"); err != nil {
		t.Fatalf("CheckoutForWrite: %v", err)
	}
	conflicted, err := ws.MergeIntegration(ctx)
	if err != nil {
		t.Fatalf("MergeIntegration: %v", err)
	}
	if !conflicted {
		t.Fatal("MergeIntegration did not report the expected conflict")
	}

	paths, err := ws.ConflictedFiles(ctx)
	if err != nil {
		t.Fatalf("ConflictedFiles: %v", err)
	}
	if len(paths) != 1 || paths[0] != "package.json" {
		t.Fatalf("ConflictedFiles = %v, want [package.json]", paths)
	}

	if err := ws.ResolveTheirs(ctx, "package.json"); err != nil {
		t.Fatalf("ResolveTheirs: %v", err)
	}
	if err := ws.WriteFile("package.json", "{\n  \"version\": \"1.1.0\"\n}\n"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := ws.Stage(ctx, "package.json"); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if err := ws.CommitMerge(ctx); err != nil {
		t.Fatalf("CommitMerge: %v", err)
	}
	if err := ws.Push(ctx, "release-core"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := ws.RestoreIntegration(ctx); err != nil {
		t.Fatalf("RestoreIntegration: %v", err)
	}

	branch, err := git.NewRepository(workDir).CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch = %q, want main", branch)
	}

	pushed, err := git.NewRepository(bareDir).ShowFile(ctx, "release-core", "package.json")
	if err != nil {
		t.Fatalf("ShowFile on remote: %v", err)
	}
	if !strings.Contains(pushed, "1.1.0") {
		t.Errorf("remote release-core package.json = %q, want preserved 1.1.0", pushed)
	}
}

func TestWorkspace_RestoreIntegrationAbortsConflictedMerge(t *testing.T) {
	t.Parallel()

	_, workDir := setupRemote(t)
	ctx := context.Background()
	ws := New(git.NewRepository(workDir), "origin", "main", false, discardLogger())

	if err := ws.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := ws.CheckoutForWrite(ctx, "release-core"); err != nil {
		t.Fatalf("CheckoutForWrite: %v", err)
	}
	if _, err := ws.MergeIntegration(ctx); err != nil {
		t.Fatalf("MergeIntegration: %v", err)
	}

	// The tree is mid-conflict; restore must abort and return to main.
	if err := ws.RestoreIntegration(ctx); err != nil {
		t.Fatalf("RestoreIntegration: %v", err)
	}
	branch, err := git.NewRepository(workDir).CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch = %q, want main", branch)
	}
	paths, err := ws.ConflictedFiles(ctx)
	if err != nil {
		t.Fatalf("ConflictedFiles: %v", err)
	}
	if len(paths) != 0 {
		t.Errorf("ConflictedFiles = %v, want none after restore", paths)
	}
}

func TestWorkspace_DryRunSkipsMutations(t *testing.T) {
	t.Parallel()

	bareDir, workDir := setupRemote(t)
	ctx := context.Background()
	ws := New(git.NewRepository(workDir), "origin", "main", true, discardLogger())

	if err := ws.Fetch(ctx); err != nil {
		t.Fatalf("Fetch: %v", err)
	}

	// Reads still work.
	content, err := ws.FileFromBranch(ctx, "release-core", "package.json")
	if err != nil {
		t.Fatalf("FileFromBranch: %v", err)
	}
	if !strings.Contains(content, "1.1.0") {
		t.Errorf("FileFromBranch = %q, want release branch content", content)
	}

	// Mutations are skipped without error.
	if err := ws.CheckoutForWrite(ctx, "release-core"); err != nil {
		t.Fatalf("CheckoutForWrite: %v", err)
	}
	conflicted, err := ws.MergeIntegration(ctx)
	if err != nil || conflicted {
		t.Fatalf("MergeIntegration = (%v, %v), want (false, nil)", conflicted, err)
	}
	if err := ws.WriteFile("package.json", "overwritten"); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	if err := ws.Push(ctx, "release-core"); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if err := ws.RestoreIntegration(ctx); err != nil {
		t.Fatalf("RestoreIntegration: %v", err)
	}

	// The tree never moved and the remote never changed.
	branch, err := git.NewRepository(workDir).CurrentBranch(ctx)
	if err != nil {
		t.Fatalf("CurrentBranch: %v", err)
	}
	if branch != "main" {
		t.Errorf("CurrentBranch = %q, want main (checkout should be skipped)", branch)
	}
	local, err := ws.ReadFile("package.json")
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if local == "overwritten" {
		t.Error("WriteFile mutated the tree in dry-run mode")
	}
	remote, err := git.NewRepository(bareDir).ShowFile(ctx, "release-core", "package.json")
	if err != nil {
		t.Fatalf("ShowFile on remote: %v", err)
	}
	if !strings.Contains(remote, "1.1.0") {
		t.Errorf("remote content = %q, want untouched 1.1.0", remote)
	}
}
