package tieba

import (
	"fmt"
	"net/http"
)

// StatusError is returned for any non-2xx HTTP response.
type StatusError struct {
	Code       int
	Body       string
	RetryAfter string
}

func (e *StatusError) Error() string {
	if e.Code == http.StatusTooManyRequests {
		return fmt.Sprintf("rate limited (429), retry after: %q", e.RetryAfter)
	}
	return fmt.Sprintf("http %d: %s", e.Code, e.Body)
}

// StatusCode exposes the HTTP status for retry classification.
func (e *StatusError) StatusCode() int {
	return e.Code
}

// APIError is a well-formed response that reports a failure. Retrying the
// same request will not change the answer.
type APIError struct {
	Op      string
	Code    int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s (code %d)", e.Op, e.Message, e.Code)
}

// Terminal marks the error as non-retryable.
func (e *APIError) Terminal() bool {
	return true
}
