package api

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the transport or the local policy checks can
// produce. Callers branch on Kind rather than on status codes or error text.
type Kind string

const (
	// KindAuthorization marks a 401 from any call. Terminal for the
	// session: the credential is cleared and the cache flushed globally,
	// so individual callers do not need their own handling.
	KindAuthorization Kind = "authorization"
	// KindPolicy marks a local quota or channel-type check that failed
	// before any network call was attempted.
	KindPolicy Kind = "policy"
	// KindValidation marks a server-reported 4xx with a detail message,
	// for example a duplicate channel.
	KindValidation Kind = "validation"
	// KindNetwork marks a transport-level failure where no response was
	// received.
	KindNetwork Kind = "network"
	// KindServer marks a 5xx or a response the client could not decode.
	KindServer Kind = "server"
)

// Error is the normalized failure surfaced by the transport, the cache, and
// the mutation pipeline. Status is zero when no HTTP response was involved.
type Error struct {
	Kind    Kind
	Message string
	Status  int
}

func (e *Error) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// PolicyViolation builds the error returned by local quota and channel-type
// checks. It never corresponds to a network exchange.
func PolicyViolation(message string) *Error {
	return &Error{Kind: KindPolicy, Message: message}
}

// KindOf extracts the normalized kind from an error chain. Unclassified
// errors report KindServer so callers always have a branch to take.
func KindOf(err error) Kind {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Kind
	}
	return KindServer
}

// IsAuthorization reports whether the error chain carries a 401
// classification.
func IsAuthorization(err error) bool {
	return KindOf(err) == KindAuthorization
}

// retryable reports whether a read may be reattempted. Writes never retry;
// reads retry only transient transport and server failures.
func retryable(err error) bool {
	switch KindOf(err) {
	case KindNetwork, KindServer:
		return true
	default:
		return false
	}
}
