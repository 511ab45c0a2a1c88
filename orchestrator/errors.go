package orchestrator

import (
	"errors"
	"fmt"

	"finassist/provider"
)

var (
	// ErrModelUnavailable means the backend could not be reached or refused
	// the request. The caller may retry later.
	ErrModelUnavailable = errors.New("orchestrator: model unavailable")

	// ErrModelProtocol means the model produced a tool call that cannot be
	// used (no name, or arguments that are not a JSON object).
	ErrModelProtocol = errors.New("orchestrator: malformed tool call")
)

// UnavailableError wraps a backend failure. It matches ErrModelUnavailable
// and unwraps to the provider error.
type UnavailableError struct {
	Err error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("model unavailable: %v", e.Err)
}

func (e *UnavailableError) Unwrap() []error {
	return []error{ErrModelUnavailable, e.Err}
}

// RateLimited reports whether the backend answered 429.
func (e *UnavailableError) RateLimited() bool {
	return provider.IsRateLimited(e.Err)
}

// Retryable is false only for failures that will repeat as is, such as
// rejected credentials or a bad request.
func (e *UnavailableError) Retryable() bool {
	var apiErr *provider.APIError
	if errors.As(e.Err, &apiErr) {
		return apiErr.IsRetryable()
	}
	return true
}
