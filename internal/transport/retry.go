package transport

import (
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// DefaultRetryMax is the default number of additional attempts after the first.
const DefaultRetryMax = 3

// RetryPolicy defines retry behavior for transient API failures.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
}

// DefaultRetryPolicy returns a sensible default retry policy.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: DefaultRetryMax,
		BaseDelay:  1 * time.Second,
		MaxDelay:   60 * time.Second,
	}
}

// backoff returns exponential backoff with full jitter for the given attempt.
func (p RetryPolicy) backoff(attempt int) time.Duration {
	d := float64(p.BaseDelay) * math.Pow(2, float64(attempt))
	if d > float64(p.MaxDelay) {
		d = float64(p.MaxDelay)
	}
	return time.Duration(rand.Float64() * d)
}

// parseRetryAfter extracts a server-provided retry delay from a response.
// Returns zero when the header is absent or unparseable. Both the
// delay-seconds and HTTP-date forms are accepted.
func parseRetryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		v = resp.Header.Get("X-RateLimit-Reset")
	}
	if v == "" {
		return 0
	}
	if secs, err := strconv.ParseFloat(v, 64); err == nil && secs >= 0 {
		return time.Duration(secs * float64(time.Second))
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
