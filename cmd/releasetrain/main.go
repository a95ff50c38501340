// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Releasetrain merges a monorepo's pending release pull requests in
// dependency order, waiting for each package's publish workflow to
// succeed before the next package's release boards, and automatically
// reconciling release branches that fall behind the integration branch
// when an earlier package in the train merges.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/releasetrain/releasetrain/lib/clock"
	"github.com/releasetrain/releasetrain/lib/config"
	"github.com/releasetrain/releasetrain/lib/discovery"
	"github.com/releasetrain/releasetrain/lib/git"
	"github.com/releasetrain/releasetrain/lib/github"
	"github.com/releasetrain/releasetrain/lib/process"
	"github.com/releasetrain/releasetrain/lib/registry"
	"github.com/releasetrain/releasetrain/lib/resolve"
	"github.com/releasetrain/releasetrain/lib/train"
	"github.com/releasetrain/releasetrain/lib/version"
	"github.com/releasetrain/releasetrain/lib/workspace"
)

func main() {
	if err := run(); err != nil {
		process.Fatal(err)
	}
}

// newLogger builds the process logger. Text output when stderr is a
// terminal, JSON when piped or redirected (CI, scripts).
func newLogger() *slog.Logger {
	var handler slog.Handler
	options := &slog.HandlerOptions{Level: slog.LevelInfo}
	if term.IsTerminal(int(os.Stderr.Fd())) {
		handler = slog.NewTextHandler(os.Stderr, options)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, options)
	}
	return slog.New(handler)
}

func run() error {
	var configPath string
	var dryRun bool
	var timeout time.Duration
	var showVersion bool

	flagSet := pflag.NewFlagSet("releasetrain", pflag.ContinueOnError)
	flagSet.StringVar(&configPath, "config", "", "path to config file (default: $RELEASETRAIN_CONFIG)")
	flagSet.BoolVar(&dryRun, "dry-run", false, "log mutating operations instead of executing them")
	flagSet.DurationVar(&timeout, "timeout", 0, "publish workflow timeout (overrides the configured value)")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Printf("releasetrain %s\n", version.Info())
		return nil
	}

	// The API credential is required for every non-trivial code path;
	// fail before any other work begins.
	token, err := config.Token()
	if err != nil {
		return err
	}

	var cfg *config.Config
	if configPath != "" {
		cfg, err = config.LoadFile(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if timeout > 0 {
		cfg.Waiter.Timeout = timeout.String()
	}

	logger := newLogger()
	slog.SetDefault(logger)
	logger.Info("starting releasetrain",
		"version", version.Info(),
		"repository", cfg.Repository.Owner+"/"+cfg.Repository.Name,
		"packages", len(cfg.Packages),
		"dry_run", dryRun,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	reg, err := registry.New(cfg.Packages)
	if err != nil {
		return err
	}

	client, err := github.NewClient(github.Config{
		Token:  token,
		Logger: logger,
	})
	if err != nil {
		return err
	}

	worktree := workspace.New(
		git.NewRepository(cfg.Repository.Checkout),
		cfg.Repository.Remote,
		cfg.Repository.IntegrationBranch,
		dryRun,
		logger,
	)

	discoverer := discovery.New(
		client,
		cfg.Repository.Owner,
		cfg.Repository.Name,
		cfg.Repository.IntegrationBranch,
		cfg.Release.PendingLabel,
		logger,
	)

	resolver := resolve.New(worktree, cfg.Artifacts, logger)

	waiter := train.NewWaiter(
		client,
		cfg.Repository.Owner,
		cfg.Repository.Name,
		cfg.Release.WorkflowFile,
		cfg.Repository.IntegrationBranch,
		cfg.Waiter.GraceDelayDuration(),
		cfg.Waiter.PollIntervalDuration(),
		cfg.Waiter.TimeoutDuration(),
		clock.Real(),
		logger,
	)

	return train.New(train.Config{
		Registry:  reg,
		Workspace: worktree,
		Plans:     discoverer,
		Resolver:  resolver,
		Merges:    client,
		Waiter:    waiter,
		Owner:     cfg.Repository.Owner,
		Repo:      cfg.Repository.Name,
		DryRun:    dryRun,
		Clock:     clock.Real(),
		Logger:    logger,
		Out:       os.Stdout,
	}).Run(ctx)
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Print(`releasetrain - dependency-ordered release pull request merging

Merges each package's pending release pull request into the integration
branch in dependency rank order, waits for the publish workflow after
each merge, and auto-resolves the generated-artifact conflicts that
appear on later release branches as earlier packages land.

Usage:
  releasetrain [flags]

Environment:
  GITHUB_TOKEN          GitHub API token (required)
  RELEASETRAIN_CONFIG   config file path when --config is not given

Flags:
`)
	fmt.Print(flagSet.FlagUsages())
}
