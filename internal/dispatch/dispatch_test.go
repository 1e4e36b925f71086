package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/subtrace-labs/tlscore/internal/clock"
	"github.com/subtrace-labs/tlscore/internal/frame"
	"github.com/subtrace-labs/tlscore/internal/metrics"
)

// fakePoller replays a scripted sequence of Poll outcomes, advancing a fake
// clock by one pollInterval per call so idle/expiry checks see real elapsed
// time.
type fakePoller struct {
	cl    *clock.Fake
	steps []pollStep
	i     int
}

type pollStep struct {
	pkt frame.Packet
	err error
}

func (f *fakePoller) Poll(deadline time.Time) (frame.Packet, error) {
	f.cl.Advance(pollInterval)
	if f.i >= len(f.steps) {
		return frame.Packet{}, ErrPollTimeout
	}
	s := f.steps[f.i]
	f.i++
	return s.pkt, s.err
}

type fakeScheduler struct {
	initialized, destroyed, waited bool
	initErr                        error
}

func (s *fakeScheduler) Initialize() error { s.initialized = true; return s.initErr }
func (s *fakeScheduler) Destroy()          { s.destroyed = true }
func (s *fakeScheduler) Wait()             { s.waited = true }

type stopAfterOneHandler struct{ calls int }

func (h *stopAfterOneHandler) Handle(pkt frame.Packet) (Action, error) {
	h.calls++
	return ActionStop, nil
}

func TestRunStopsOnCommandRequest(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))
	poller := &fakePoller{cl: cl, steps: []pollStep{{pkt: frame.New(1, nil)}}}
	sched := &fakeScheduler{}
	handler := &stopAfterOneHandler{}

	outcome, err := Run(context.Background(), poller, handler, sched, cl, Timeouts{Comms: time.Hour}, time.Time{}, metrics.NoOp{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeCommandStop {
		t.Errorf("outcome = %v, want %v", outcome, OutcomeCommandStop)
	}
	if handler.calls != 1 {
		t.Errorf("handler called %d times, want 1", handler.calls)
	}
	if !sched.initialized || !sched.destroyed || !sched.waited {
		t.Error("scheduler lifecycle not fully exercised")
	}
}

func TestRunIdleTimeout(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))
	poller := &fakePoller{cl: cl} // every Poll times out
	sched := &fakeScheduler{}
	handler := &stopAfterOneHandler{}

	outcome, err := Run(context.Background(), poller, handler, sched, cl, Timeouts{Comms: 200 * time.Millisecond}, time.Time{}, metrics.NoOp{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeIdleTimeout {
		t.Errorf("outcome = %v, want %v", outcome, OutcomeIdleTimeout)
	}
}

func TestRunExpiryDominatesIdle(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))
	poller := &fakePoller{cl: cl}
	sched := &fakeScheduler{}
	handler := &stopAfterOneHandler{}

	// Expiry fires before the (much longer) idle timeout would.
	expiry := cl.Now().Add(120 * time.Millisecond)
	outcome, err := Run(context.Background(), poller, handler, sched, cl, Timeouts{Comms: time.Hour}, expiry, metrics.NoOp{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeExpired {
		t.Errorf("outcome = %v, want %v", outcome, OutcomeExpired)
	}
}

func TestRunPeerClosed(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))
	poller := &fakePoller{cl: cl, steps: []pollStep{{err: frame.ErrPeerClosed}}}
	sched := &fakeScheduler{}
	handler := &stopAfterOneHandler{}

	outcome, err := Run(context.Background(), poller, handler, sched, cl, Timeouts{Comms: time.Hour}, time.Time{}, metrics.NoOp{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomePeerClosed {
		t.Errorf("outcome = %v, want %v", outcome, OutcomePeerClosed)
	}
}

func TestRunTerminatesOnContextCancel(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))
	poller := &fakePoller{cl: cl}
	sched := &fakeScheduler{}
	handler := &stopAfterOneHandler{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcome, err := Run(ctx, poller, handler, sched, cl, Timeouts{Comms: time.Hour}, time.Time{}, metrics.NoOp{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if outcome != OutcomeTerminated {
		t.Errorf("outcome = %v, want %v", outcome, OutcomeTerminated)
	}
}

func TestRunSchedulerInitFailure(t *testing.T) {
	cl := clock.NewFake(time.Unix(0, 0))
	poller := &fakePoller{cl: cl}
	sched := &fakeScheduler{initErr: errors.New("boom")}
	handler := &stopAfterOneHandler{}

	_, err := Run(context.Background(), poller, handler, sched, cl, Timeouts{Comms: time.Hour}, time.Time{}, metrics.NoOp{})
	if err == nil {
		t.Error("expected error when scheduler initialization fails")
	}
}
