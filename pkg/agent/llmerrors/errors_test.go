package llmerrors

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestClassifyByStatus(t *testing.T) {
	cause := errors.New("upstream said no")
	tests := []struct {
		status int
		want   ErrorType
	}{
		{401, ErrorTypeAuth},
		{403, ErrorTypeAuth},
		{429, ErrorTypeRateLimit},
		{400, ErrorTypeBadPrompt},
		{413, ErrorTypeBadPrompt},
		{408, ErrorTypeTransient},
		{500, ErrorTypeTransient},
		{529, ErrorTypeTransient},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			got := Classify(cause, tt.status)
			if got.Type != tt.want {
				t.Errorf("status %d: expected %s, got %s", tt.status, tt.want, got.Type)
			}
			if got.StatusCode != tt.status {
				t.Errorf("expected status %d to be kept, got %d", tt.status, got.StatusCode)
			}
			if !errors.Is(got, cause) {
				t.Error("expected cause to be wrapped")
			}
		})
	}
}

func TestClassifyByMessage(t *testing.T) {
	tests := []struct {
		msg  string
		want ErrorType
	}{
		{"read tcp: connection reset by peer", ErrorTypeTransient},
		{"unexpected EOF", ErrorTypeTransient},
		{"Overloaded", ErrorTypeTransient},
		{"quota exhausted for project", ErrorTypeRateLimit},
		{"invalid x-api-key", ErrorTypeBadPrompt},
		{"missing API key", ErrorTypeAuth},
		{"prompt is too long", ErrorTypeBadPrompt},
		{"something odd", ErrorTypeUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			if got := Classify(errors.New(tt.msg), 0).Type; got != tt.want {
				t.Errorf("%q: expected %s, got %s", tt.msg, tt.want, got)
			}
		})
	}
}

func TestClassifyKeepsClassifiedErrors(t *testing.T) {
	original := NewError(ErrorTypeEmptyResponse, "nothing")
	if got := Classify(fmt.Errorf("wrapped: %w", original), 500); got != original {
		t.Errorf("expected the existing classification to be kept, got %v", got)
	}
	if Classify(nil, 500) != nil {
		t.Error("expected nil for nil error")
	}
}

func TestClassifyContext(t *testing.T) {
	if got := Classify(context.DeadlineExceeded, 0).Type; got != ErrorTypeTransient {
		t.Errorf("expected deadline to be transient, got %s", got)
	}
	if !errors.Is(Classify(context.Canceled, 0), context.Canceled) {
		t.Error("expected cancellation to stay detectable")
	}
}

func TestIsAndTypeOf(t *testing.T) {
	err := fmt.Errorf("call failed: %w", NewErrorWithStatus(ErrorTypeRateLimit, 429, "slow down"))

	if !Is(err, ErrorTypeRateLimit) || Is(err, ErrorTypeAuth) {
		t.Error("Is did not match the wrapped classification")
	}
	if TypeOf(err) != ErrorTypeRateLimit {
		t.Errorf("expected rate_limit, got %s", TypeOf(err))
	}
	if TypeOf(errors.New("plain")) != ErrorTypeUnknown {
		t.Error("expected unclassified errors to be unknown")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NewError(ErrorTypeTransient, "")) || !IsRetryable(errors.New("plain")) {
		t.Error("expected transient and unclassified errors to be retryable")
	}
	for _, et := range []ErrorType{ErrorTypeAuth, ErrorTypeBadPrompt, ErrorTypeServiceUnavailable} {
		if IsRetryable(NewError(et, "")) {
			t.Errorf("expected %s not to be retryable", et)
		}
	}
	if IsRetryable(nil) {
		t.Error("expected nil not to be retryable")
	}
}

func TestErrorMessage(t *testing.T) {
	err := NewErrorWithCause(ErrorTypeTransient, errors.New("reset"), "network error")
	if err.Error() != "LLM error (transient): network error: reset" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if NewErrorWithStatus(ErrorTypeAuth, 401, "").Error() != "LLM error (auth): status 401" {
		t.Errorf("unexpected status message %q", NewErrorWithStatus(ErrorTypeAuth, 401, "").Error())
	}
	if NewServiceUnavailableError(err, 3).RetryConfig().MaxRetries != 0 {
		t.Error("expected no retries for service unavailable")
	}
}

func TestSanitizePrompt(t *testing.T) {
	if SanitizePrompt("short", 400) != "short" {
		t.Error("expected short prompt unchanged")
	}

	long := strings.Repeat("a", 300) + strings.Repeat("b", 300)
	got := SanitizePrompt(long, 200)
	if !strings.HasPrefix(got, strings.Repeat("a", 100)+"...[600 chars, hash:") || !strings.HasSuffix(got, "]..."+strings.Repeat("b", 100)) {
		t.Errorf("unexpected sanitized prompt %q", got)
	}
}
