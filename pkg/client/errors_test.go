package client

import (
	"errors"
	"fmt"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		errorClass ErrorClass
		expected   bool
	}{
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{ErrorClassServer, true},
		{ErrorClassNotFound, false},
		{ErrorClassMalformed, false},
		{ErrorClassClient, false},
		{ErrorClassFatal, false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.errorClass), func(t *testing.T) {
			if got := shouldRetry(tt.errorClass); got != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, got, tt.expected)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		err      *APIError
		expected string
	}{
		{
			name:     "status and wrapped error",
			err:      &APIError{StatusCode: 500, ErrorClass: ErrorClassServer, Message: "500 Internal Server Error", Err: errors.New("boom")},
			expected: "API server error (status 500): 500 Internal Server Error: boom",
		},
		{
			name:     "no status",
			err:      &APIError{ErrorClass: ErrorClassNetwork, Message: "request failed"},
			expected: "API network error: request failed",
		},
		{
			name:     "page context",
			err:      &APIError{StatusCode: 503, ErrorClass: ErrorClassFatal, Message: "failed", Resource: "locations", Page: 3},
			expected: "API fatal error (status 503) [locations page 3]: failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestWrapPage(t *testing.T) {
	if WrapPage(nil, "characters", 2) != nil {
		t.Error("WrapPage(nil) should be nil")
	}

	inner := NewNotFoundError("Character not found")
	err := WrapPage(fmt.Errorf("fetch: %w", inner), "characters", 4)

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("error type = %T", err)
	}
	if apiErr.Resource != "characters" || apiErr.Page != 4 {
		t.Errorf("Resource/Page = %q/%d", apiErr.Resource, apiErr.Page)
	}
	if !IsNotFound(err) || StatusCode(err) != 404 {
		t.Error("classification of the inner error should be kept")
	}
	if !errors.Is(err, inner) {
		t.Error("wrapped error should unwrap to the inner error")
	}

	plain := WrapPage(errors.New("boom"), "locations", 2)
	if ClassOf(plain) != ErrorClassFatal {
		t.Errorf("ClassOf(plain) = %q, want fatal", ClassOf(plain))
	}
}

func TestErrorHelpers(t *testing.T) {
	malformed := NewMalformedError("missing results", errors.New("no key"))
	if ClassOf(malformed) != ErrorClassMalformed || IsRetryable(malformed) {
		t.Error("malformed error should not be retryable")
	}
	if ClassOf(errors.New("x")) != "" || StatusCode(errors.New("x")) != 0 {
		t.Error("plain errors have no class or status")
	}
	if !IsRetryable(&APIError{ErrorClass: ErrorClassRateLimit}) {
		t.Error("rate limit should be retryable")
	}
	if !IsRateLimited(&APIError{ErrorClass: ErrorClassRateLimit, StatusCode: 429}) {
		t.Error("IsRateLimited() = false")
	}
}
