package providers

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"
)

// FailureKind classifies a failed provider call.
type FailureKind string

const (
	FailureTransient      FailureKind = "transient"
	FailureTimeout        FailureKind = "timeout"
	FailureRateLimited    FailureKind = "rate_limited"
	FailureAuth           FailureKind = "auth"
	FailureInvalidRequest FailureKind = "invalid_request"
	FailureCanceled       FailureKind = "canceled"
	FailureUnknown        FailureKind = "unknown"
)

// Retryable reports whether a failure of this kind may be retried against
// the same provider.
func (k FailureKind) Retryable() bool {
	switch k {
	case FailureTransient, FailureTimeout, FailureRateLimited:
		return true
	default:
		return false
	}
}

// String implements fmt.Stringer.
func (k FailureKind) String() string {
	return string(k)
}

// Classify maps an error to a FailureKind using context errors, network
// errors, the typed errors of this package and HTTP status codes.
func Classify(err error) FailureKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return FailureTimeout
	}
	if errors.Is(err, context.Canceled) {
		return FailureCanceled
	}

	var (
		authErr    *AuthError
		rateErr    *RateLimitError
		timeoutErr *TimeoutError
		invalidErr *InvalidRequestError
		configErr  *ConfigError
		provErr    *ProviderError
	)
	switch {
	case errors.As(err, &authErr):
		return FailureAuth
	case errors.As(err, &rateErr):
		return FailureRateLimited
	case errors.As(err, &timeoutErr):
		return FailureTimeout
	case errors.As(err, &invalidErr), errors.As(err, &configErr):
		return FailureInvalidRequest
	case errors.As(err, &provErr):
		if provErr.StatusCode > 0 {
			return ClassifyStatus(provErr.StatusCode)
		}
		if provErr.Cause != nil {
			if kind := Classify(provErr.Cause); kind != FailureUnknown {
				return kind
			}
		}
		return FailureTransient
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return FailureTimeout
		}
		return FailureTransient
	}
	if errors.Is(err, ErrEmptyResponse) {
		return FailureTransient
	}

	return FailureUnknown
}

// ClassifyStatus maps an HTTP status code to a FailureKind.
func ClassifyStatus(status int) FailureKind {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return FailureAuth
	case status == http.StatusRequestTimeout, status == http.StatusGatewayTimeout:
		return FailureTimeout
	case status == http.StatusTooManyRequests:
		return FailureRateLimited
	case status == http.StatusBadRequest, status == http.StatusNotFound,
		status == http.StatusUnprocessableEntity, status == http.StatusRequestEntityTooLarge:
		return FailureInvalidRequest
	case status >= 500 && status <= 599:
		return FailureTransient
	case status == http.StatusConflict:
		return FailureTransient
	default:
		return FailureUnknown
	}
}

// ParseRetryAfter parses a Retry-After header given in seconds or as an
// HTTP date. Unparseable or past values yield zero.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil && at.After(now) {
		return at.Sub(now)
	}
	return 0
}
