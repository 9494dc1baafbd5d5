package transport

import (
	"fmt"
	"net/http"
	"time"
)

// Kind classifies a terminal transport failure.
type Kind int

const (
	// KindNetwork covers connection failures, timeouts, and anything that
	// never produced an HTTP status from the server.
	KindNetwork Kind = iota
	// KindAuth is an authentication or authorization rejection (401, 403).
	KindAuth
	// KindNotFound is a missing resource (404).
	KindNotFound
	// KindValidation is a request rejected by server-side validation (400, 422).
	KindValidation
	// KindRateLimited means retries against a rate-limited endpoint were exhausted.
	KindRateLimited
	// KindServer is a persistent server-side failure (5xx after retries).
	KindServer
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindAuth:
		return "authentication"
	case KindNotFound:
		return "not-found"
	case KindValidation:
		return "validation-rejected"
	case KindRateLimited:
		return "rate-limit-exhausted"
	case KindServer:
		return "server-error"
	default:
		return "unknown"
	}
}

// Error is the typed failure surfaced to callers once a logical operation
// has no attempts left.
type Error struct {
	Kind       Kind
	Op         string // e.g. "GET /api/v1/dashboard"
	StatusCode int    // zero when no response was received
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Op, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// kindForStatus maps an HTTP status code to an error kind.
func kindForStatus(status int) Kind {
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return KindAuth
	case status == http.StatusNotFound:
		return KindNotFound
	case status == http.StatusBadRequest || status == http.StatusUnprocessableEntity || status == http.StatusConflict:
		return KindValidation
	case status == http.StatusTooManyRequests:
		return KindRateLimited
	case status >= 500:
		return KindServer
	default:
		return KindValidation
	}
}

// retryableStatus reports whether a status code is worth another attempt.
func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}
