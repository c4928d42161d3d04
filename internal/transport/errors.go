package transport

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// FailureKind classifies a delivery failure for retry decisions.
type FailureKind int

const (
	// FailureUnknown is anything outside the classified set; callers treat it as fatal.
	FailureUnknown FailureKind = iota
	// FailureForbidden: the recipient blocked the bot or never started it.
	FailureForbidden
	// FailureNotFound: the chat does not exist (anymore).
	FailureNotFound
	// FailureBadRequest: the platform rejected the request itself.
	FailureBadRequest
	// FailureRateLimited: flood control; RetryAfter carries the requested wait.
	FailureRateLimited
	// FailureNetwork: connection-level failure; the request may be retried.
	FailureNetwork
)

func (k FailureKind) String() string {
	switch k {
	case FailureForbidden:
		return "forbidden"
	case FailureNotFound:
		return "not_found"
	case FailureBadRequest:
		return "bad_request"
	case FailureRateLimited:
		return "rate_limited"
	case FailureNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Retryable reports whether a failure of this kind may succeed on a later attempt.
func (k FailureKind) Retryable() bool {
	return k == FailureRateLimited || k == FailureNetwork
}

// DeliveryError is a classified transport failure.
type DeliveryError struct {
	Kind       FailureKind
	RetryAfter time.Duration
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err == nil {
		return "delivery failed: " + e.Kind.String()
	}
	return fmt.Sprintf("delivery failed (%s): %v", e.Kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// Classify wraps err into a DeliveryError of the given kind.
func Classify(kind FailureKind, retryAfter time.Duration, err error) error {
	if err == nil {
		return nil
	}
	return &DeliveryError{Kind: kind, RetryAfter: retryAfter, Err: err}
}

// KindOf returns the classification of err, FailureUnknown when err was not classified.
func KindOf(err error) FailureKind {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Kind
	}
	return FailureUnknown
}

// RetryAfterOf returns the server-requested wait carried by a rate-limit failure.
func RetryAfterOf(err error) time.Duration {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.RetryAfter
	}
	return 0
}

// IsContextDone reports cancellation or deadline errors.
func IsContextDone(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
