package fetch

import (
	"errors"
	"fmt"
)

// Kind classifies fetch failures for retry policy and cache recording.
type Kind string

const (
	// KindTransient covers timeouts, 5xx, and network resets. Transient
	// failures are retried with backoff and surface as stale-with-warning
	// when the retry budget runs out.
	KindTransient Kind = "transient"
	// KindDefunct marks a source confirmed permanently gone: a redirect
	// landing on a different host, a non-JSON body, or a schema mismatch.
	KindDefunct Kind = "defunct"
	// KindUpstreamRateLimited marks a 429 or GitHub's hard rate-limit
	// response (403 with the remaining budget at zero). Retried like a
	// transient failure but with a longer backoff floor, never defunct.
	KindUpstreamRateLimited Kind = "upstream_rate_limited"
	// KindMalformed marks a response that parsed as JSON but is missing
	// required fields at the batch level.
	KindMalformed Kind = "malformed"
)

// Error is a classified fetch failure.
type Error struct {
	Kind       Kind
	SourceID   string
	StatusCode int
	Cause      error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (HTTP %d) for source %s", e.Kind, e.Cause, e.StatusCode, e.SourceID)
	}
	return fmt.Sprintf("fetch %s: %s for source %s", e.Kind, e.Cause, e.SourceID)
}

func (e *Error) Unwrap() error { return e.Cause }

// Retryable reports whether the failure should be retried.
func (e *Error) Retryable() bool {
	return e.Kind == KindTransient || e.Kind == KindUpstreamRateLimited
}

// newError builds a classified fetch error.
func newError(kind Kind, sourceID string, statusCode int, cause error) *Error {
	return &Error{Kind: kind, SourceID: sourceID, StatusCode: statusCode, Cause: cause}
}

// KindOf extracts the failure kind from err, defaulting to transient for
// unclassified errors (network-level failures arrive unwrapped).
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransient
}

// StatusOf extracts the HTTP status from err, or zero.
func StatusOf(err error) int {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.StatusCode
	}
	return 0
}
