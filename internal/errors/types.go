package errors

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// TransientError marks an error that can be retried.
type TransientError struct {
	Err        error
	StatusCode int // HTTP status code if applicable
	RetryAfter int // Seconds to wait before retry (from Retry-After header)
	Message    string
}

func (e *TransientError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("transient error: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps err as retryable with a human-readable message.
func NewTransientError(err error, message string) *TransientError {
	return &TransientError{Err: err, Message: message}
}

// PermanentError marks an error that should not be retried.
type PermanentError struct {
	Err        error
	StatusCode int
	Message    string
}

func (e *PermanentError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("permanent error: %v", e.Err)
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err as non-retryable with a human-readable message.
func NewPermanentError(err error, message string) *PermanentError {
	return &PermanentError{Err: err, Message: message}
}

// IsTransient reports whether an error is retryable.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return true
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) {
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	if isNetworkError(err) {
		return true
	}
	if status := extractHTTPStatus(err); status > 0 {
		return isTransientHTTPStatus(status)
	}
	return false
}

// IsPermanent reports whether an error is explicitly non-retryable.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var permanentErr *PermanentError
	return errors.As(err, &permanentErr)
}

// RetryAfterSeconds returns the server-advised wait, or 0 when absent.
func RetryAfterSeconds(err error) int {
	var transientErr *TransientError
	if errors.As(err, &transientErr) {
		return transientErr.RetryAfter
	}
	return 0
}

func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, fragment := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"no such host",
		"timeout",
		"deadline exceeded",
	} {
		if strings.Contains(msg, fragment) {
			return true
		}
	}
	return false
}

func extractHTTPStatus(err error) int {
	var transientErr *TransientError
	if errors.As(err, &transientErr) && transientErr.StatusCode > 0 {
		return transientErr.StatusCode
	}
	var permanentErr *PermanentError
	if errors.As(err, &permanentErr) && permanentErr.StatusCode > 0 {
		return permanentErr.StatusCode
	}

	// Fallback: scan the message for a bare "HTTP <code>".
	msg := err.Error()
	if idx := strings.Index(msg, "HTTP "); idx >= 0 && len(msg) >= idx+8 {
		if code, convErr := strconv.Atoi(msg[idx+5 : idx+8]); convErr == nil {
			return code
		}
	}
	return 0
}

func isTransientHTTPStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	}
	return false
}
