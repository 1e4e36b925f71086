// Package dispatch implements the poll/receive/dispatch loop of spec.md
// §4.5: read packets off the session, hand them to a command handler, and
// tear the session down on idle timeout, expiry, termination, or error.
//
// The read/dispatch loop shape follows
// c1338ebc_iatsiuk-r-cli__internal-conn-conn.go.go's connection dispatcher
// (a goroutine looping on reads, routing by request-id/type to waiting
// callers) and the idle-handling style of
// abe9fd51_gravitational-teleport__lib-resumption-client.go.go.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/subtrace-labs/tlscore/internal/clock"
	"github.com/subtrace-labs/tlscore/internal/frame"
	"github.com/subtrace-labs/tlscore/internal/metrics"
)

// pollInterval is the dispatch loop's poll cadence (spec.md §4.5: "50 ms
// (50 000 µs) timeout"), bounding termination/signal latency.
const pollInterval = 50 * time.Millisecond

// Outcome is a typed reason for Run returning, used for both the error
// return and metrics.Sink.DispatchExit labeling.
type Outcome string

const (
	OutcomeIdleTimeout Outcome = "idle_timeout"
	OutcomeExpired     Outcome = "expired"
	OutcomePeerClosed  Outcome = "peer_closed"
	OutcomeError       Outcome = "error"
	OutcomeTerminated  Outcome = "terminated"
	OutcomeCommandStop Outcome = "command_stop"
)

// Action is what a CommandHandler tells the loop to do after handling a
// packet.
type Action int

const (
	ActionContinue Action = iota
	ActionStop
)

// CommandHandler is the external collaborator (out of scope per spec.md
// §1) that processes a received packet.
type CommandHandler interface {
	Handle(pkt frame.Packet) (Action, error)
}

// Scheduler is the external collaborator (out of scope per spec.md §1)
// that the dispatch loop initializes before the loop starts and destroys
// after it ends.
type Scheduler interface {
	Initialize() error
	Destroy()
	Wait()
}

// ErrPollTimeout is returned by Poller.Poll when no packet arrived before
// deadline — the loop's "poll == 0" case (spec.md §4.5 step 3d).
var ErrPollTimeout = errors.New("dispatch: poll timeout")

// Poller is what the Transport provides the loop: one locked
// poll-then-maybe-receive attempt, bounded by deadline. This keeps the
// remote lock and cipher entirely inside the transport, matching spec.md
// §5 ("every public transport operation acquires the remote lock for its
// full duration") without dispatch needing to know about either.
type Poller interface {
	Poll(deadline time.Time) (frame.Packet, error)
}

// Timeouts are the session's idle bound (spec.md §3 Timeouts, restricted to
// the field the dispatch loop itself consults; expiry is passed separately
// since it's an absolute deadline fixed at session creation).
type Timeouts struct {
	Comms time.Duration
}

// Run drives the dispatch loop until termination, timeout, expiry, a
// command-requested stop, or an error (spec.md §4.5).
func Run(
	ctx context.Context,
	poller Poller,
	handler CommandHandler,
	sched Scheduler,
	cl clock.Clock,
	timeouts Timeouts,
	expirationEnd time.Time,
	sink metrics.Sink,
) (Outcome, error) {
	if err := sched.Initialize(); err != nil {
		return OutcomeError, fmt.Errorf("dispatch: initialize scheduler: %w", err)
	}
	defer func() {
		sched.Destroy()
		sched.Wait()
	}()

	lastPacket := cl.Now()

	for {
		select {
		case <-ctx.Done():
			sink.DispatchExit(string(OutcomeTerminated))
			return OutcomeTerminated, nil
		default:
		}

		pkt, err := poller.Poll(cl.Now().Add(pollInterval))
		switch {
		case err == nil:
			sink.PacketTransferred("rx")
			action, herr := handler.Handle(pkt)
			if herr != nil {
				sink.DispatchExit(string(OutcomeError))
				return OutcomeError, fmt.Errorf("dispatch: command handler: %w", herr)
			}
			if action == ActionStop {
				sink.DispatchExit(string(OutcomeCommandStop))
				return OutcomeCommandStop, nil
			}
			lastPacket = cl.Now()

		case errors.Is(err, frame.ErrPeerClosed):
			sink.DispatchExit(string(OutcomePeerClosed))
			return OutcomePeerClosed, nil

		case errors.Is(err, ErrPollTimeout):
			now := cl.Now()
			if !expirationEnd.IsZero() && now.After(expirationEnd) {
				sink.DispatchExit(string(OutcomeExpired))
				return OutcomeExpired, nil
			}
			if now.Sub(lastPacket) > timeouts.Comms {
				sink.DispatchExit(string(OutcomeIdleTimeout))
				return OutcomeIdleTimeout, nil
			}
			// Idle tick with neither timeout reached: keep polling.

		default:
			sink.DispatchExit(string(OutcomeError))
			return OutcomeError, fmt.Errorf("dispatch: receive packet: %w", err)
		}
	}
}
