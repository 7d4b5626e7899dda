package client

import (
	"errors"
	"fmt"
	"time"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")

	// ErrClosed is returned by any operation on a closed client.
	ErrClosed = errors.New("client is closed")
)

// ErrorClass represents a classification of upstream failures.
type ErrorClass string

const (
	// ErrorClassRateLimit represents 429 Too Many Requests.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents timeouts and connection failures.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNotFound represents a 404 for a specific resource.
	ErrorClassNotFound ErrorClass = "not_found"

	// ErrorClassMalformed represents a payload that failed shape validation.
	ErrorClassMalformed ErrorClass = "malformed"

	// ErrorClassClient represents 4xx client errors other than 404 and 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassFatal represents exhausted retries.
	ErrorClassFatal ErrorClass = "fatal"
)

// APIError is the error type surfaced by every fetch operation.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass
	Message    string

	// Resource and Page are set when the failure happened while paginating.
	Resource string
	Page     int

	// RetryAfter is the server-supplied delay of a 429 response, if any.
	RetryAfter time.Duration

	// Body holds the start of the upstream response body for diagnostics.
	Body string

	Err error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	prefix := fmt.Sprintf("API %s error", e.ErrorClass)
	if e.StatusCode != 0 {
		prefix = fmt.Sprintf("%s (status %d)", prefix, e.StatusCode)
	}
	if e.Resource != "" && e.Page > 0 {
		prefix = fmt.Sprintf("%s [%s page %d]", prefix, e.Resource, e.Page)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", prefix, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", prefix, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// NewMalformedError reports a payload that does not have the expected shape.
func NewMalformedError(message string, err error) *APIError {
	return &APIError{
		ErrorClass: ErrorClassMalformed,
		Message:    message,
		Err:        err,
	}
}

// NewNotFoundError reports a resource ID absent upstream.
func NewNotFoundError(message string) *APIError {
	return &APIError{
		StatusCode: 404,
		ErrorClass: ErrorClassNotFound,
		Message:    message,
	}
}

// WrapPage attaches the paginated resource and page number to err.
// The classification and status code of the underlying APIError are kept so
// callers can still tell a not-found from a transport failure.
func WrapPage(err error, resource string, page int) error {
	if err == nil {
		return nil
	}
	wrapped := &APIError{
		ErrorClass: ErrorClassFatal,
		Message:    fmt.Sprintf("failed to fetch %s page %d", resource, page),
		Resource:   resource,
		Page:       page,
		Err:        err,
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		wrapped.ErrorClass = apiErr.ErrorClass
		wrapped.StatusCode = apiErr.StatusCode
	}
	return wrapped
}

// ClassOf returns the classification of err, or "" if it is not an APIError.
func ClassOf(err error) ErrorClass {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorClass
	}
	return ""
}

// StatusCode returns the upstream status code carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// IsNotFound reports whether err means the requested record does not exist.
func IsNotFound(err error) bool {
	return ClassOf(err) == ErrorClassNotFound
}

// IsRateLimited reports whether err originated from a 429 response.
func IsRateLimited(err error) bool {
	return ClassOf(err) == ErrorClassRateLimit || StatusCode(err) == 429
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassRateLimit, ErrorClassNetwork, ErrorClassServer:
		return true
	default:
		// not found, malformed and other 4xx fail immediately
		return false
	}
}

// IsRetryable reports whether the retry policy would retry err.
func IsRetryable(err error) bool {
	return shouldRetry(ClassOf(err))
}
