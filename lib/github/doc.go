// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

// Package github is a typed GitHub REST API client covering the
// endpoints the release train needs: listing and inspecting pull
// requests, squash-merging them, deleting source branches, and reading
// the most recent run of a workflow.
//
// Authentication is token-based; the token travels only in the HTTP
// Authorization header. Time is injected via lib/clock so that rate
// limit backoff is testable.
package github
