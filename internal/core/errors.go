package core

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/google/go-github/v73/github"
)

var (
	// ErrParse is returned when an inbound payload cannot be understood.
	ErrParse = errors.New("malformed payload")
	// ErrCredentialMissing means no token exists for the user that owns the run.
	ErrCredentialMissing = errors.New("no github access token found")
	// ErrQuotaExceeded is returned when a usage counter is already at its limit.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrModelPolicy is returned when the model refuses a prompt on policy grounds.
	ErrModelPolicy = errors.New("model refused the request")
	// ErrNotFound is returned by stores when a record does not exist.
	ErrNotFound = errors.New("not found")
)

// ParseError describes a payload that could not be parsed.
type ParseError struct {
	Reason string
}

// NewParseError returns a ParseError with the given reason.
func NewParseError(reason string) *ParseError {
	return &ParseError{Reason: reason}
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("%s: %s", ErrParse, e.Reason)
}

func (e *ParseError) Unwrap() error {
	return ErrParse
}

type classifiedError struct {
	err       error
	retryable bool
}

func (e *classifiedError) Error() string { return e.err.Error() }
func (e *classifiedError) Unwrap() error { return e.err }

// Transient marks err as worth retrying.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, retryable: true}
}

// Permanent marks err as fatal; retrying it will not help.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &classifiedError{err: err, retryable: false}
}

// IsRetryable reports whether a failed step should be attempted again.
// Explicit Transient/Permanent marks win. Timeouts, network errors, GitHub
// 5xx and rate limits are retryable. Quota, credential, policy and parse
// failures are not. Anything else is treated as a transient failure.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	var classified *classifiedError
	if errors.As(err, &classified) {
		return classified.retryable
	}

	switch {
	case errors.Is(err, ErrParse),
		errors.Is(err, ErrCredentialMissing),
		errors.Is(err, ErrQuotaExceeded),
		errors.Is(err, ErrModelPolicy),
		errors.Is(err, ErrNotFound),
		errors.Is(err, context.Canceled):
		return false
	case errors.Is(err, context.DeadlineExceeded):
		return true
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return true
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return true
	}

	var ghErr *github.ErrorResponse
	if errors.As(err, &ghErr) && ghErr.Response != nil {
		code := ghErr.Response.StatusCode
		return code >= http.StatusInternalServerError || code == http.StatusTooManyRequests
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	return true
}
