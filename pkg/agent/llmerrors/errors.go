// Package llmerrors classifies model-service failures so middleware can decide whether to retry.
package llmerrors

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrorType is the category of a model-service failure.
type ErrorType int8

const (
	// ErrorTypeRateLimit is a 429 or quota error.
	ErrorTypeRateLimit ErrorType = iota
	// ErrorTypeTransient is a 5xx, connection reset, EOF or timeout.
	ErrorTypeTransient
	// ErrorTypeEmptyResponse is a successful call that returned neither text nor tool calls.
	ErrorTypeEmptyResponse
	// ErrorTypeAuth is a 401/403 or bad API key.
	ErrorTypeAuth
	// ErrorTypeBadPrompt is a malformed or oversized request.
	ErrorTypeBadPrompt
	// ErrorTypeUnknown is anything unclassified.
	ErrorTypeUnknown
	// ErrorTypeServiceUnavailable is emitted once retries are exhausted.
	ErrorTypeServiceUnavailable
)

// String returns the label used in logs and metrics.
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeRateLimit:
		return "rate_limit"
	case ErrorTypeTransient:
		return "transient"
	case ErrorTypeEmptyResponse:
		return "empty_response"
	case ErrorTypeAuth:
		return "auth"
	case ErrorTypeBadPrompt:
		return "bad_prompt"
	case ErrorTypeUnknown:
		return "unknown"
	case ErrorTypeServiceUnavailable:
		return "service_unavailable"
	default:
		return "invalid"
	}
}

// RetryConfig is the exponential backoff policy for one error type.
type RetryConfig struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	Jitter        bool
}

// DefaultRetryConfigs maps each error type to its backoff policy.
//
//nolint:gochecknoglobals // package defaults
var DefaultRetryConfigs = map[ErrorType]RetryConfig{
	ErrorTypeEmptyResponse:      {MaxRetries: 3, InitialDelay: 2 * time.Second, MaxDelay: 30 * time.Second, BackoffFactor: 2.0, Jitter: true},
	ErrorTypeRateLimit:          {MaxRetries: 6, InitialDelay: 1 * time.Second, MaxDelay: 60 * time.Second, BackoffFactor: 2.0, Jitter: true},
	ErrorTypeTransient:          {MaxRetries: 4, InitialDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second, BackoffFactor: 2.0, Jitter: true},
	ErrorTypeAuth:               {BackoffFactor: 1.0},
	ErrorTypeBadPrompt:          {BackoffFactor: 1.0},
	ErrorTypeUnknown:            {MaxRetries: 1, InitialDelay: 1 * time.Second, MaxDelay: 5 * time.Second, BackoffFactor: 2.0, Jitter: true},
	ErrorTypeServiceUnavailable: {BackoffFactor: 1.0},
}

// Error is a classified model-service error.
type Error struct {
	Err        error
	Message    string
	Type       ErrorType
	StatusCode int
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Message != "" && e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %s: %v", e.Type, e.Message, e.Err)
	}
	if e.Message != "" {
		return fmt.Sprintf("LLM error (%s): %s", e.Type, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("LLM error (%s): %v", e.Type, e.Err)
	}
	return fmt.Sprintf("LLM error (%s): status %d", e.Type, e.StatusCode)
}

// Unwrap returns the wrapped cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the error type may be retried.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable:
		return false
	default:
		return true
	}
}

// RetryConfig returns the backoff policy for the error's type.
func (e *Error) RetryConfig() RetryConfig {
	if cfg, ok := DefaultRetryConfigs[e.Type]; ok {
		return cfg
	}
	return DefaultRetryConfigs[ErrorTypeUnknown]
}

// Is reports whether err is a classified error of errorType.
func Is(err error, errorType ErrorType) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type == errorType
	}
	return false
}

// TypeOf returns err's classification, or ErrorTypeUnknown.
func TypeOf(err error) ErrorType {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.Type
	}
	return ErrorTypeUnknown
}

// IsRetryable reports whether err may be retried. Unclassified errors are retryable.
func IsRetryable(err error) bool {
	var llmErr *Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}
	return err != nil
}

// NewError creates a classified error.
func NewError(errorType ErrorType, message string) *Error {
	return &Error{Type: errorType, Message: message}
}

// NewErrorWithStatus creates a classified error carrying an HTTP status.
func NewErrorWithStatus(errorType ErrorType, statusCode int, message string) *Error {
	return &Error{Type: errorType, StatusCode: statusCode, Message: message}
}

// NewErrorWithCause creates a classified error wrapping cause.
func NewErrorWithCause(errorType ErrorType, cause error, message string) *Error {
	return &Error{Type: errorType, Err: cause, Message: message}
}

// NewServiceUnavailableError wraps the last error after retries are exhausted.
func NewServiceUnavailableError(cause error, attempts int) *Error {
	return &Error{
		Type:    ErrorTypeServiceUnavailable,
		Err:     cause,
		Message: fmt.Sprintf("service unavailable after %d attempts", attempts),
	}
}

// SanitizePrompt shortens a large prompt for logging, keeping both ends and a hash of the whole.
func SanitizePrompt(prompt string, maxChars int) string {
	if len(prompt) <= maxChars {
		return prompt
	}
	half := maxChars / 2
	if half < 100 {
		half = 100
	}
	if 2*half >= len(prompt) {
		return prompt
	}
	sum := sha256.Sum256([]byte(prompt))
	return fmt.Sprintf("%s...[%d chars, hash:%x]...%s", prompt[:half], len(prompt), sum[:8], prompt[len(prompt)-half:])
}

// Classify maps a provider failure to a classified error. statusCode is the HTTP status when the
// SDK exposes one, or 0 to classify from the message alone.
func Classify(err error, statusCode int) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewErrorWithCause(ErrorTypeTransient, err, "request timeout")
	}
	if errors.Is(err, context.Canceled) {
		return NewErrorWithCause(ErrorTypeUnknown, err, "request canceled")
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return &Error{Type: ErrorTypeAuth, StatusCode: statusCode, Err: err, Message: "authentication failed, check API key"}
	case statusCode == http.StatusTooManyRequests:
		return &Error{Type: ErrorTypeRateLimit, StatusCode: statusCode, Err: err, Message: "rate limit exceeded"}
	case statusCode == http.StatusRequestTimeout || statusCode >= 500:
		return &Error{Type: ErrorTypeTransient, StatusCode: statusCode, Err: err, Message: "server error"}
	case statusCode >= 400:
		return &Error{Type: ErrorTypeBadPrompt, StatusCode: statusCode, Err: err, Message: "request rejected"}
	}

	msg := strings.ToLower(err.Error())
	switch {
	case containsAny(msg, "timeout", "connection", "network", "temporary", "eof", "reset", "overloaded"):
		return NewErrorWithCause(ErrorTypeTransient, err, "network or connection error")
	case containsAny(msg, "rate limit", "quota", "too many requests"):
		return NewErrorWithCause(ErrorTypeRateLimit, err, "rate limiting detected")
	case containsAny(msg, "unauthorized", "api key", "authentication"):
		return NewErrorWithCause(ErrorTypeAuth, err, "authentication error")
	case containsAny(msg, "invalid", "malformed", "too large", "too long"):
		return NewErrorWithCause(ErrorTypeBadPrompt, err, "prompt or request error")
	}
	return NewErrorWithCause(ErrorTypeUnknown, err, "unclassified error")
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
