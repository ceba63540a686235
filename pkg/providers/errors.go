package providers

import (
	"errors"
	"fmt"
	"time"
)

// ErrEmptyResponse is returned when a provider answers without content.
var ErrEmptyResponse = errors.New("provider returned no content")

// ProviderError represents a general provider error.
// It includes the provider name, HTTP status code, and underlying error.
type ProviderError struct {
	// Provider is the id of the provider that returned the error
	Provider string

	// StatusCode is the HTTP status code (0 if not applicable)
	StatusCode int

	// Message is the error message
	Message string

	// Cause is the underlying error (if any)
	Cause error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

// Unwrap returns the underlying error for error chain support.
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// AuthError represents an authentication failure (HTTP 401 or 403).
type AuthError struct {
	// Provider is the id of the provider that rejected authentication
	Provider string

	// Message is the error message from the provider
	Message string
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q authentication failed: %s", e.Provider, e.Message)
}

// Is matches any *AuthError.
func (e *AuthError) Is(target error) bool {
	_, ok := target.(*AuthError)
	return ok
}

// RateLimitError represents a rate limit exceeded error (HTTP 429).
// It includes the retry-after duration if provided by the provider.
type RateLimitError struct {
	// Provider is the id of the provider that rate limited the request
	Provider string

	// RetryAfter is the duration to wait before retrying (if provided)
	RetryAfter time.Duration

	// Message is the error message from the provider
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limit exceeded (retry after %s): %s",
			e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limit exceeded: %s", e.Provider, e.Message)
}

// Is matches any *RateLimitError.
func (e *RateLimitError) Is(target error) bool {
	_, ok := target.(*RateLimitError)
	return ok
}

// TimeoutError represents a call that exceeded its deadline.
type TimeoutError struct {
	// Provider is the id of the provider where the timeout occurred
	Provider string

	// Timeout is the configured timeout duration
	Timeout time.Duration
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q request timeout after %s", e.Provider, e.Timeout)
}

// Is matches any *TimeoutError.
func (e *TimeoutError) Is(target error) bool {
	_, ok := target.(*TimeoutError)
	return ok
}

// InvalidRequestError represents a request the provider refused as
// malformed or unsupported (HTTP 400, 404, 422), such as an unknown model.
type InvalidRequestError struct {
	// Provider is the id of the provider
	Provider string

	// Model is the requested model, if relevant
	Model string

	// Message describes what is invalid
	Message string
}

// Error implements the error interface.
func (e *InvalidRequestError) Error() string {
	if e.Model != "" {
		return fmt.Sprintf("provider %q rejected request for model %q: %s", e.Provider, e.Model, e.Message)
	}
	return fmt.Sprintf("provider %q rejected request: %s", e.Provider, e.Message)
}

// Is matches any *InvalidRequestError.
func (e *InvalidRequestError) Is(target error) bool {
	_, ok := target.(*InvalidRequestError)
	return ok
}

// ConfigError represents a provider configuration error found while
// building a client.
type ConfigError struct {
	// Provider is the id of the provider with invalid configuration
	Provider string

	// Field is the configuration field that is invalid
	Field string

	// Message describes the configuration error
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q configuration error for field %q: %s",
		e.Provider, e.Field, e.Message)
}

// StatusError builds the typed error for an HTTP status returned by a
// provider API. retryAfter is only used for 429.
func StatusError(provider, model string, status int, message string, retryAfter time.Duration, cause error) error {
	switch ClassifyStatus(status) {
	case FailureAuth:
		return &AuthError{Provider: provider, Message: message}
	case FailureRateLimited:
		return &RateLimitError{Provider: provider, RetryAfter: retryAfter, Message: message}
	case FailureInvalidRequest:
		return &InvalidRequestError{Provider: provider, Model: model, Message: message}
	default:
		return &ProviderError{Provider: provider, StatusCode: status, Message: message, Cause: cause}
	}
}

// RetryAfter returns the delay a provider asked for, or zero.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
