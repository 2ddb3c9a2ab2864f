package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/custodia-labs/sercha-ingest/internal/core/domain"
)

// StatusError is a non-2xx HTTP response from a remote service.
type StatusError struct {
	StatusCode int
	Message    string
	URL        string

	// RetryAfter is the server's requested wait, zero when absent.
	RetryAfter time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d: %s (URL: %s)", e.StatusCode, e.Message, e.URL)
}

// Is maps 429 to domain.ErrRateLimited and 5xx to domain.ErrTransient.
func (e *StatusError) Is(target error) bool {
	switch target {
	case domain.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	case domain.ErrTransient:
		return e.StatusCode >= 500
	}
	return false
}

// NewStatusError builds a StatusError from a response, reading Retry-After.
func NewStatusError(resp *http.Response, message string) *StatusError {
	err := &StatusError{
		StatusCode: resp.StatusCode,
		Message:    message,
	}
	if resp.Request != nil && resp.Request.URL != nil {
		err.URL = resp.Request.URL.Redacted()
	}
	if v := resp.Header.Get("Retry-After"); v != "" {
		if seconds, convErr := strconv.Atoi(v); convErr == nil && seconds > 0 {
			err.RetryAfter = time.Duration(seconds) * time.Second
		} else if at, parseErr := http.ParseTime(v); parseErr == nil {
			err.RetryAfter = time.Until(at)
		}
	}
	return err
}

// Retryable reports whether err is worth another attempt: rate limits,
// server errors, timeouts and connection failures. Cancellation never is.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, domain.ErrRateLimited) || errors.Is(err, domain.ErrTransient) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// RetryAfter returns the wait requested by the server, if any.
func RetryAfter(err error) time.Duration {
	var statusErr *StatusError
	if errors.As(err, &statusErr) && statusErr.RetryAfter > 0 {
		return statusErr.RetryAfter
	}
	return 0
}
