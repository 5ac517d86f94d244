package resilience

import (
	"context"
	"errors"
	"net"
	"strings"
	"syscall"
)

// TransientError wraps an error that is safe to retry (429, 5xx, network timeout).
type TransientError struct {
	Err        error
	StatusCode int
}

func (e *TransientError) Error() string {
	return e.Err.Error()
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// NewTransientError wraps an error as transient with an optional HTTP status code.
func NewTransientError(err error, statusCode int) *TransientError {
	return &TransientError{Err: err, StatusCode: statusCode}
}

// MalformedError marks a structured response that could not be decoded or
// failed validation. It is treated like a transport failure.
type MalformedError struct {
	Err error
	Raw string
}

func (e *MalformedError) Error() string {
	return "malformed response: " + e.Err.Error()
}

func (e *MalformedError) Unwrap() error {
	return e.Err
}

// NewMalformedError wraps a decode or validation error together with the raw
// text that produced it.
func NewMalformedError(err error, raw string) *MalformedError {
	const maxRaw = 500
	if len(raw) > maxRaw {
		raw = raw[:maxRaw]
	}
	return &MalformedError{Err: err, Raw: raw}
}

// IsMalformed reports whether err carries a MalformedError.
func IsMalformed(err error) bool {
	var me *MalformedError
	return errors.As(err, &me)
}

// IsTransient returns true if the error (or any error in its chain) is a
// TransientError, or matches common network failure patterns.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range []string{
		"connection reset by peer",
		"broken pipe",
		"tls handshake timeout",
		"i/o timeout",
		"server closed idle connection",
	} {
		if strings.Contains(msg, p) {
			return true
		}
	}

	return false
}

// IsRetryable reports whether a stage attempt that failed with err may be
// tried again. Cancellation of the caller's context is never retryable; an
// attempt deadline is.
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	return IsTransient(err) || IsMalformed(err)
}

// IsTransientHTTPStatus returns true if the HTTP status code indicates a
// transient server-side issue that is safe to retry.
func IsTransientHTTPStatus(statusCode int) bool {
	switch statusCode {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
