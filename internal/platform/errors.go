// Visey Recommender - Hybrid Content Recommendation Service
// SPDX-License-Identifier: AGPL-3.0-or-later

package platform

import (
	"errors"
	"fmt"
)

// ErrRateLimited is returned when the platform kept responding with HTTP 429
// after the retry budget was exhausted. Before this error is returned the
// client has already backed off per the Retry-After header.
var ErrRateLimited = errors.New("platform rate limit exceeded")

// AuthError reports a credential failure (HTTP 401/403). Auth errors are
// never retried: retrying with the same credentials cannot succeed.
type AuthError struct {
	StatusCode int
	Endpoint   string
	Message    string
}

func (e *AuthError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("platform authentication failed (%d) on %s: %s", e.StatusCode, e.Endpoint, e.Message)
	}
	return fmt.Sprintf("platform authentication failed (%d) on %s", e.StatusCode, e.Endpoint)
}

// NotFoundError reports a missing entity (HTTP 404). Not retried.
type NotFoundError struct {
	Kind string
	ID   int
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("platform %s %d not found", e.Kind, e.ID)
}

// NetworkError wraps transport failures and server-side errors (5xx). These
// are transient and retried with exponential backoff up to the configured
// attempt bound.
type NetworkError struct {
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("platform request to %s failed: %v", e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// IsAuthError reports whether err is (or wraps) an AuthError.
func IsAuthError(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// IsNotFound reports whether err is (or wraps) a NotFoundError.
func IsNotFound(err error) bool {
	var nfe *NotFoundError
	return errors.As(err, &nfe)
}

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var ne *NetworkError
	return errors.As(err, &ne)
}
