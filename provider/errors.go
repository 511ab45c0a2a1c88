package provider

import (
	"errors"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"
	"github.com/openai/openai-go/v3"
)

var (
	// ErrNoAPIKey is returned when a cloud provider is created without a key.
	ErrNoAPIKey = errors.New("provider: API key required")

	// ErrUnknownProvider is returned for a provider ID the factory cannot build.
	ErrUnknownProvider = errors.New("provider: unknown provider")

	// ErrProviderNotEnabled is returned when the configured provider is missing or disabled.
	ErrProviderNotEnabled = errors.New("provider: not enabled")
)

// APIError is a backend failure with its HTTP status, normalized across SDKs.
type APIError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("provider [%s]: %s", e.Provider, e.Message)
	}
	return fmt.Sprintf("provider [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if the backend rejected the credentials.
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable reports whether trying the same request later may succeed.
// Transport failures without a status are retryable.
func (e *APIError) IsRetryable() bool {
	return e.StatusCode == 0 || e.IsRateLimited() || e.IsServerError()
}

// WrapError classifies an SDK error into an *APIError for the named provider.
func WrapError(providerID string, err error) error {
	if err == nil {
		return nil
	}
	var existing *APIError
	if errors.As(err, &existing) {
		return err
	}
	return &APIError{
		Provider:   providerID,
		StatusCode: StatusCode(err),
		Message:    err.Error(),
		Err:        err,
	}
}

// StatusCode extracts the HTTP status from any of the supported SDK errors.
// Returns 0 when the error carries no status (network failure, cancellation).
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}

	var openaiErr *openai.Error
	if errors.As(err, &openaiErr) {
		return openaiErr.StatusCode
	}

	var anthropicErr *anthropic.Error
	if errors.As(err, &anthropicErr) {
		return anthropicErr.StatusCode
	}

	var ollamaErr api.StatusError
	if errors.As(err, &ollamaErr) {
		return ollamaErr.StatusCode
	}
	var ollamaErrPtr *api.StatusError
	if errors.As(err, &ollamaErrPtr) {
		return ollamaErrPtr.StatusCode
	}

	return 0
}

// IsRateLimited reports whether err is a backend rate-limit response.
func IsRateLimited(err error) bool {
	return StatusCode(err) == 429
}
