// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
)

// tokenVariable is the environment variable holding the GitHub API
// credential. The token is read once at startup and passed only via the
// process environment and the HTTP Authorization header — it never
// appears in command text or log output.
const tokenVariable = "GITHUB_TOKEN"

// CredentialError reports a missing API credential. This is a pre-flight
// configuration failure: the run aborts before any other work begins.
type CredentialError struct {
	// Variable is the environment variable that was not set.
	Variable string
}

func (e *CredentialError) Error() string {
	return fmt.Sprintf("%s is not set; export a GitHub token with repo and actions scopes", e.Variable)
}

// Token returns the GitHub API credential from the environment, or a
// *CredentialError if it is absent.
func Token() (string, error) {
	token := os.Getenv(tokenVariable)
	if token == "" {
		return "", &CredentialError{Variable: tokenVariable}
	}
	return token, nil
}
