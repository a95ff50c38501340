// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package registry holds the fixed, ordered set of packages in the
// release train. The order encodes the dependency chain: each package
// may depend only on packages of strictly lower rank, so lower-rank
// packages must be released first.
package registry

import (
	"fmt"

	"github.com/releasetrain/releasetrain/lib/config"
)

// Package is one releasable package in the monorepo. Created from static
// configuration; never mutated during a run.
type Package struct {
	// Name is the package name as it appears in release PR titles.
	Name string

	// Path is the package directory relative to the repository root.
	Path string

	// Rank is the package's position in the release order. Ranks are
	// unique and stable for the lifetime of a run.
	Rank int
}

// Registry is the fixed ordered sequence of packages. Pure: no side
// effects, no failure modes after construction.
type Registry struct {
	packages []Package
}

// New builds a Registry from ordered package configuration. Rank is the
// position in the slice. Names and paths must be unique and non-empty.
func New(packages []config.PackageConfig) (*Registry, error) {
	if len(packages) == 0 {
		return nil, fmt.Errorf("registry: no packages configured")
	}

	seenNames := make(map[string]bool, len(packages))
	seenPaths := make(map[string]bool, len(packages))
	ordered := make([]Package, 0, len(packages))

	for rank, pkg := range packages {
		if pkg.Name == "" {
			return nil, fmt.Errorf("registry: package at rank %d has no name", rank)
		}
		if pkg.Path == "" {
			return nil, fmt.Errorf("registry: package %q has no path", pkg.Name)
		}
		if seenNames[pkg.Name] {
			return nil, fmt.Errorf("registry: duplicate package name %q", pkg.Name)
		}
		if seenPaths[pkg.Path] {
			return nil, fmt.Errorf("registry: duplicate package path %q", pkg.Path)
		}
		seenNames[pkg.Name] = true
		seenPaths[pkg.Path] = true

		ordered = append(ordered, Package{
			Name: pkg.Name,
			Path: pkg.Path,
			Rank: rank,
		})
	}

	return &Registry{packages: ordered}, nil
}

// Packages returns the packages in ascending rank order. The returned
// slice is a copy; callers may not mutate registry state through it.
func (r *Registry) Packages() []Package {
	ordered := make([]Package, len(r.packages))
	copy(ordered, r.packages)
	return ordered
}

// Len returns the number of packages in the train.
func (r *Registry) Len() int {
	return len(r.packages)
}
