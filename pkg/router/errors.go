package router

import (
	"errors"
	"fmt"
	"strings"
)

// Routing errors that can be checked with errors.Is().
var (
	// ErrRouterDisabled is returned when router.enabled is false.
	ErrRouterDisabled = errors.New("router is disabled")

	// ErrConfigInvalid is returned when the configuration failed validation.
	ErrConfigInvalid = errors.New("router configuration is invalid")

	// ErrRedactionFailed is returned when the request could not be redacted.
	// The request is not dispatched.
	ErrRedactionFailed = errors.New("redaction failed")

	// ErrNoProviderAvailable is returned when every candidate was skipped
	// or failed.
	ErrNoProviderAvailable = errors.New("no provider available")
)

// ConfigError carries the validation problems recorded at construction.
type ConfigError struct {
	Problems []string

	// NoProviders is set when no provider is enabled. The error then also
	// matches ErrNoProviderAvailable.
	NoProviders bool
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("%s: %s", ErrConfigInvalid, strings.Join(e.Problems, "; "))
}

// Is implements error matching for errors.Is().
func (e *ConfigError) Is(target error) bool {
	return target == ErrConfigInvalid || (e.NoProviders && target == ErrNoProviderAvailable)
}

// ExhaustedError is returned when no candidate produced a response.
type ExhaustedError struct {
	// Attempted lists the providers that were called.
	Attempted []string

	// Skipped maps provider id to its admission skip reason.
	Skipped map[string]string

	// LastErr is the error of the last failed call, if any call was made.
	LastErr error
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	var b strings.Builder
	b.WriteString(ErrNoProviderAvailable.Error())
	if len(e.Attempted) > 0 {
		fmt.Fprintf(&b, " (attempted: %s)", strings.Join(e.Attempted, ", "))
	}
	if len(e.Skipped) > 0 {
		b.WriteString(" (skipped:")
		for _, id := range sortedKeys(e.Skipped) {
			fmt.Fprintf(&b, " %s=%s", id, e.Skipped[id])
		}
		b.WriteString(")")
	}
	if e.LastErr != nil {
		fmt.Fprintf(&b, ": last error: %v", e.LastErr)
	}
	return b.String()
}

// Is implements error matching for errors.Is().
func (e *ExhaustedError) Is(target error) bool {
	return target == ErrNoProviderAvailable
}

// Unwrap returns the last call error.
func (e *ExhaustedError) Unwrap() error {
	return e.LastErr
}
