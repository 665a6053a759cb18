// Package bidding admits bids at submission time and resolves queued
// bid attempts into a single, totally ordered history per auction.
package bidding

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                  = errors.New("not found")
	ErrInvalidState              = errors.New("invalid state")
	ErrInvalidBid                = errors.New("invalid bid")
	ErrConcurrencyConflict       = errors.New("concurrency conflict")
	ErrInfrastructureUnavailable = errors.New("infrastructure unavailable")
	ErrAuthFailure               = errors.New("authentication failure")
)

// RejectionError is a failure of one of the kinds above with a reason
// suitable for showing to the bidder.
type RejectionError struct {
	Kind   error
	Reason string
}

func (e *RejectionError) Error() string { return e.Reason }

func (e *RejectionError) Unwrap() error { return e.Kind }

func reject(kind error, format string, args ...any) error {
	return &RejectionError{Kind: kind, Reason: fmt.Sprintf(format, args...)}
}

// unavailable wraps a dependency failure.
func unavailable(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrInfrastructureUnavailable, op, err)
}

// IsPermanent reports whether retrying err can never succeed.  Only
// infrastructure failures are transient.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrInvalidState),
		errors.Is(err, ErrInvalidBid),
		errors.Is(err, ErrConcurrencyConflict),
		errors.Is(err, ErrAuthFailure):
		return true
	}
	return false
}

// Reason returns the bidder-facing message of err.
func Reason(err error) string {
	var re *RejectionError
	if errors.As(err, &re) {
		return re.Reason
	}
	if errors.Is(err, ErrInfrastructureUnavailable) {
		return "Service temporarily unavailable"
	}
	return err.Error()
}

// Kind returns a short label for err, used in metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, ErrInvalidBid):
		return "invalid_bid"
	case errors.Is(err, ErrConcurrencyConflict):
		return "concurrency_conflict"
	case errors.Is(err, ErrAuthFailure):
		return "auth_failure"
	case errors.Is(err, ErrInfrastructureUnavailable):
		return "unavailable"
	}
	return "unknown"
}
