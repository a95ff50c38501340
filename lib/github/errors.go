// Copyright 2026 The Releasetrain Authors
// SPDX-License-Identifier: Apache-2.0

package github

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// APIError represents a non-2xx response from the GitHub REST API.
type APIError struct {
	// StatusCode is the HTTP response status code.
	StatusCode int

	// Message is the top-level error description from GitHub.
	Message string

	// DocumentationURL points to the relevant API documentation.
	DocumentationURL string
}

func (err *APIError) Error() string {
	return fmt.Sprintf("github: HTTP %d: %s", err.StatusCode, err.Message)
}

// IsNotFound reports whether err is a GitHub API 404 Not Found response.
func IsNotFound(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == 404
}

// IsMergeBlocked reports whether err is a 405 Method Not Allowed
// response, which GitHub returns when a pull request cannot be merged
// in its current state.
func IsMergeBlocked(err error) bool {
	var apiError *APIError
	return errors.As(err, &apiError) && apiError.StatusCode == 405
}

// IsRateLimited reports whether err is a GitHub API rate limit
// response. GitHub returns 403 when the primary rate limit is exceeded
// and 429 for secondary (abuse) rate limits.
func IsRateLimited(err error) bool {
	var apiError *APIError
	if !errors.As(err, &apiError) {
		return false
	}
	return apiError.StatusCode == 429 ||
		(apiError.StatusCode == 403 && isRateLimitMessage(apiError.Message))
}

// isRateLimitMessage checks whether a 403 error message indicates a
// rate limit rather than a permission issue.
func isRateLimitMessage(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "rate limit") ||
		strings.Contains(lower, "abuse detection")
}

// parseAPIError parses a GitHub API error from a status code and
// response body.
func parseAPIError(statusCode int, body []byte) *APIError {
	apiError := &APIError{StatusCode: statusCode}

	var wireError struct {
		Message          string `json:"message"`
		DocumentationURL string `json:"documentation_url"`
	}
	if json.Unmarshal(body, &wireError) == nil && wireError.Message != "" {
		apiError.Message = wireError.Message
		apiError.DocumentationURL = wireError.DocumentationURL
	} else {
		apiError.Message = string(body)
	}
	return apiError
}
