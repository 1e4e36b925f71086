package netbringup

import (
	"errors"
	"testing"
	"time"

	"github.com/subtrace-labs/tlscore/internal/clock"
)

func TestRetryLoopSucceedsAfterFailures(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))
	attempts := 0

	v, err := retryLoop(cl, RetryConfig{RetryTotal: time.Minute, RetryWait: time.Second}, func() (any, error) {
		attempts++
		if attempts < 3 {
			return nil, errors.New("not yet")
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("retryLoop: %v", err)
	}
	if v.(string) != "ok" {
		t.Errorf("got %v, want ok", v)
	}
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestRetryLoopGivesUpAfterRetryTotal(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))

	_, err := retryLoop(cl, RetryConfig{RetryTotal: 5 * time.Second, RetryWait: 2 * time.Second}, func() (any, error) {
		return nil, errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected retry window to be exhausted")
	}
}

func TestRetryLoopRespectsExpiry(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))
	expiry := cl.Now().Add(3 * time.Second)

	_, err := retryLoop(cl, RetryConfig{RetryTotal: time.Hour, RetryWait: 2 * time.Second, Expiry: expiry}, func() (any, error) {
		return nil, errors.New("always fails")
	})
	if err == nil {
		t.Fatal("expected expiry to end the retry loop")
	}
}
