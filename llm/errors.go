package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrConfig is returned when a provider cannot be built from its
	// configuration.
	ErrConfig = errors.New("llm: invalid provider configuration")

	// ErrAuth is returned when the endpoint rejects the credentials.
	ErrAuth = errors.New("llm: authentication failed")

	// ErrBadRequest is returned for client errors other than auth, such as an
	// unknown model or deployment.
	ErrBadRequest = errors.New("llm: request rejected")

	// ErrRateLimited is returned when the endpoint keeps answering 429.
	ErrRateLimited = errors.New("llm: rate limited")

	// ErrUnavailable is returned for network failures, timeouts and 5xx
	// responses.
	ErrUnavailable = errors.New("llm: provider unavailable")

	// ErrEmptyResponse is returned when a completion has no choices.
	ErrEmptyResponse = errors.New("llm: empty response")
)

// IsRetryable reports whether err is transient: another attempt later may
// succeed.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUnavailable)
}

// IsFatal reports whether err means no further request can succeed with the
// current configuration or context.
func IsFatal(err error) bool {
	return errors.Is(err, ErrAuth) ||
		errors.Is(err, ErrBadRequest) ||
		errors.Is(err, ErrConfig) ||
		errors.Is(err, context.Canceled)
}

// statusError classifies a non-200 HTTP status.
func statusError(code int, err error) error {
	switch {
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return fmt.Errorf("%w: %w", ErrAuth, err)
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", ErrRateLimited, err)
	case code == http.StatusRequestTimeout || code >= 500:
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	default:
		return fmt.Errorf("%w: %w", ErrBadRequest, err)
	}
}
