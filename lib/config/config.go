// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for releasetrain.
//
// Configuration is loaded from a single YAML file specified by:
//   - the --config flag passed to the command, or
//   - the RELEASETRAIN_CONFIG environment variable.
//
// There are no fallbacks or automatic discovery. The config file is the
// single source of truth; environment variables do not override config
// values. The only expansion performed is ${HOME} and similar path
// variables for portability.
package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the master configuration for a release train run.
type Config struct {
	// Repository identifies the monorepo being released.
	Repository RepositoryConfig `yaml:"repository"`

	// Release configures release pull request discovery and the
	// publish workflow.
	Release ReleaseConfig `yaml:"release"`

	// Artifacts names the generated release artifacts that conflict
	// resolution is allowed to touch.
	Artifacts ArtifactsConfig `yaml:"artifacts"`

	// Waiter configures the publish workflow polling loop.
	Waiter WaiterConfig `yaml:"waiter"`

	// Packages is the release order: each package may depend only on
	// packages listed before it.
	Packages []PackageConfig `yaml:"packages"`
}

// RepositoryConfig identifies the repository on the forge and its local
// checkout.
type RepositoryConfig struct {
	// Owner is the GitHub organization or user.
	Owner string `yaml:"owner"`

	// Name is the repository name.
	Name string `yaml:"name"`

	// IntegrationBranch is the trunk branch release PRs merge into.
	// Default: main
	IntegrationBranch string `yaml:"integration_branch"`

	// Remote is the git remote for fetch and push operations.
	// Default: origin
	Remote string `yaml:"remote"`

	// Checkout is the path to the local working tree.
	// Default: the current directory.
	Checkout string `yaml:"checkout"`
}

// ReleaseConfig configures release PR discovery and the publish workflow.
type ReleaseConfig struct {
	// PendingLabel is the label carried by pending release PRs.
	// Default: "autorelease: pending"
	PendingLabel string `yaml:"pending_label"`

	// WorkflowFile is the publish workflow file name polled after each
	// merge. Default: publish.yml
	WorkflowFile string `yaml:"workflow_file"`
}

// ArtifactsConfig names the generated files conflict resolution may
// resolve. Manifest and Changelog are per-package file names; LockFile
// and ReleaseManifest are repository-root paths.
type ArtifactsConfig struct {
	// Manifest is the package manifest file name within each package
	// directory. Default: package.json
	Manifest string `yaml:"manifest"`

	// LockFile is the repository-root lock file path.
	// Default: package-lock.json
	LockFile string `yaml:"lock_file"`

	// ReleaseManifest is the repository-root file mapping package paths
	// to their released versions. Default: .release-please-manifest.json
	ReleaseManifest string `yaml:"release_manifest"`

	// Changelog is the changelog file name within each package
	// directory. Default: CHANGELOG.md
	Changelog string `yaml:"changelog"`
}

// WaiterConfig configures publish workflow polling. Durations are Go
// duration strings ("30s", "10m").
type WaiterConfig struct {
	// GraceDelay is how long to wait after a merge before the first
	// poll, allowing the workflow run to be scheduled. Default: 30s
	GraceDelay string `yaml:"grace_delay"`

	// PollInterval is the delay between status polls. Default: 15s
	PollInterval string `yaml:"poll_interval"`

	// Timeout is the ceiling on total wait time for one workflow run.
	// Default: 600s
	Timeout string `yaml:"timeout"`
}

// PackageConfig is one package in the release order.
type PackageConfig struct {
	// Name is the package name as it appears in release PR titles.
	Name string `yaml:"name"`

	// Path is the package directory relative to the repository root.
	Path string `yaml:"path"`
}

// Default returns the default configuration. These defaults ensure all
// fields have sensible zero-values before the config file is merged in;
// the config file itself is required.
func Default() *Config {
	return &Config{
		Repository: RepositoryConfig{
			IntegrationBranch: "main",
			Remote:            "origin",
			Checkout:          ".",
		},
		Release: ReleaseConfig{
			PendingLabel: "autorelease: pending",
			WorkflowFile: "publish.yml",
		},
		Artifacts: ArtifactsConfig{
			Manifest:        "package.json",
			LockFile:        "package-lock.json",
			ReleaseManifest: ".release-please-manifest.json",
			Changelog:       "CHANGELOG.md",
		},
		Waiter: WaiterConfig{
			GraceDelay:   "30s",
			PollInterval: "15s",
			Timeout:      "600s",
		},
	}
}

// Load loads configuration from the RELEASETRAIN_CONFIG environment
// variable. This is the only way to load configuration without an
// explicit path — there are no discovery fallbacks.
func Load() (*Config, error) {
	configPath := os.Getenv("RELEASETRAIN_CONFIG")
	if configPath == "" {
		return nil, fmt.Errorf("RELEASETRAIN_CONFIG environment variable not set; " +
			"set it to the path of your releasetrain.yaml config file, or use --config")
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from a specific file path, merging it
// over the defaults and expanding path variables.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	cfg.Repository.Checkout = expandVars(cfg.Repository.Checkout, map[string]string{
		"HOME": os.Getenv("HOME"),
	})

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []error

	if c.Repository.Owner == "" {
		errs = append(errs, fmt.Errorf("repository.owner is required"))
	}
	if c.Repository.Name == "" {
		errs = append(errs, fmt.Errorf("repository.name is required"))
	}
	if c.Repository.IntegrationBranch == "" {
		errs = append(errs, fmt.Errorf("repository.integration_branch is required"))
	}
	if c.Release.PendingLabel == "" {
		errs = append(errs, fmt.Errorf("release.pending_label is required"))
	}
	if c.Release.WorkflowFile == "" {
		errs = append(errs, fmt.Errorf("release.workflow_file is required"))
	}
	if len(c.Packages) == 0 {
		errs = append(errs, fmt.Errorf("at least one package is required"))
	}
	for index, pkg := range c.Packages {
		if pkg.Name == "" {
			errs = append(errs, fmt.Errorf("packages[%d].name is required", index))
		}
		if pkg.Path == "" {
			errs = append(errs, fmt.Errorf("packages[%d].path is required", index))
		}
	}

	for _, field := range []struct {
		name  string
		value string
	}{
		{"waiter.grace_delay", c.Waiter.GraceDelay},
		{"waiter.poll_interval", c.Waiter.PollInterval},
		{"waiter.timeout", c.Waiter.Timeout},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", field.name, err))
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// GraceDelayDuration returns the parsed waiter grace delay. Call
// Validate first; an unparseable value falls back to the default.
func (w WaiterConfig) GraceDelayDuration() time.Duration {
	return parseDurationOr(w.GraceDelay, 30*time.Second)
}

// PollIntervalDuration returns the parsed waiter poll interval.
func (w WaiterConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(w.PollInterval, 15*time.Second)
}

// TimeoutDuration returns the parsed waiter timeout.
func (w WaiterConfig) TimeoutDuration() time.Duration {
	return parseDurationOr(w.Timeout, 600*time.Second)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}

// expandVars expands ${VAR} and ${VAR:-default} patterns.
var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string, vars map[string]string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		name := parts[1]
		defaultValue := ""
		if len(parts) >= 3 {
			defaultValue = parts[2]
		}

		if value, ok := vars[name]; ok && value != "" {
			return value
		}
		if value := os.Getenv(name); value != "" {
			return value
		}
		return defaultValue
	})
}
