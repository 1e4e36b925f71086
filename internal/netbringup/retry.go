package netbringup

import (
	"fmt"
	"time"

	"github.com/subtrace-labs/tlscore/internal/clock"
)

// RetryConfig is the shared retry-loop contract spec.md §4.1 describes:
// attempt; on success stop; on expiry stop with error; otherwise sleep
// RetryWait and continue while within RetryTotal.
type RetryConfig struct {
	RetryTotal time.Duration
	RetryWait  time.Duration
	Expiry     time.Time
}

// attemptFunc performs one bring-up attempt (connect, resolve+connect, etc).
// A retryable error (connection refused, resolver failure — spec.md §9.3)
// should be returned as a plain error; attemptFunc is re-invoked until
// success or the retry window closes.
type attemptFunc func() (any, error)

// retryLoop implements the shared retry contract of spec.md §4.1: "Let t0 =
// now. Repeat: attempt; if success, break; if now >= expiry, break with
// error; sleep retry_wait seconds; continue while now - t0 < retry_total."
func retryLoop(cl clock.Clock, cfg RetryConfig, attempt attemptFunc) (any, error) {
	t0 := cl.Now()
	var lastErr error

	for {
		result, err := attempt()
		if err == nil {
			return result, nil
		}
		lastErr = err

		now := cl.Now()
		if !cfg.Expiry.IsZero() && !now.Before(cfg.Expiry) {
			return nil, fmt.Errorf("netbringup: session expired during retry: %w", lastErr)
		}

		cl.Sleep(cfg.RetryWait)
		if cl.Now().Sub(t0) >= cfg.RetryTotal {
			return nil, fmt.Errorf("netbringup: retry window (%s) exhausted: %w", cfg.RetryTotal, lastErr)
		}
	}
}
