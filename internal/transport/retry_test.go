package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_BackoffStaysWithinExponentialBounds(t *testing.T) {
	p := RetryPolicy{BaseDelay: 100 * time.Millisecond, MaxDelay: 800 * time.Millisecond}

	for attempt := 0; attempt < 6; attempt++ {
		ceiling := p.BaseDelay << attempt
		if ceiling > p.MaxDelay {
			ceiling = p.MaxDelay
		}
		for i := 0; i < 200; i++ {
			d := p.backoff(attempt)
			require.GreaterOrEqual(t, d, time.Duration(0))
			require.LessOrEqual(t, d, ceiling, "attempt %d exceeded its ceiling", attempt)
		}
	}
}

func TestRetryPolicy_BackoffGrowsAcrossAttempts(t *testing.T) {
	p := RetryPolicy{BaseDelay: time.Millisecond, MaxDelay: time.Hour}

	maxAt := func(attempt int) time.Duration {
		var m time.Duration
		for i := 0; i < 200; i++ {
			if d := p.backoff(attempt); d > m {
				m = d
			}
		}
		return m
	}

	// The maximum of 200 jittered draws tracks the per-attempt ceiling, so
	// attempt 5 (32x the base) must dominate attempt 0 by a wide margin.
	assert.Greater(t, maxAt(5), 4*maxAt(0))
}
