// Package tlscore implements the TCP-over-TLS transport core described in
// spec.md: establishing a long-lived command channel under three
// topologies (reverse connect, bind listen, adopted socket), wrapping it in
// TLS, framing a TLV packet protocol with optional payload encryption, and
// driving a dispatch loop that reads packets, hands them to a command
// handler, and tears the session down on timeout or expiry.
package tlscore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/subtrace-labs/tlscore/internal/clock"
	"github.com/subtrace-labs/tlscore/internal/dispatch"
	"github.com/subtrace-labs/tlscore/internal/frame"
	"github.com/subtrace-labs/tlscore/internal/metrics"
	"github.com/subtrace-labs/tlscore/internal/netbringup"
	"github.com/subtrace-labs/tlscore/internal/stage"
	"github.com/subtrace-labs/tlscore/internal/tlssession"
)

// Kind fixes the transport to TCP/TLS (spec.md §3: "kind tag (fixed to
// TCP/TLS)"); the type exists so a multi-transport switcher (out of scope)
// can branch on it without type-asserting the concrete Transport.
const Kind = "tcp/tls"

// Sentinel errors named after spec.md §7's error taxonomy. ErrPeerClosed,
// ErrHandshakeFailed and ErrNotConnected are returned by this package;
// ErrExpired, ErrIdleTimeout and ErrDecryptFailed are declared but no code
// path returns them (expiry and idle timeout are reported as
// dispatch.Outcome values with a nil error).
var (
	ErrPeerClosed      = frame.ErrPeerClosed
	ErrHandshakeFailed = errors.New("tlscore: tls handshake failed")
	ErrExpired         = errors.New("tlscore: session expired")
	ErrIdleTimeout     = errors.New("tlscore: idle timeout")
	ErrDecryptFailed   = errors.New("tlscore: payload decryption failed")
	ErrNotConnected    = errors.New("tlscore: transport has no active connection")
)

// Timeouts are the session's timing bounds, spec.md §3/§6.
type Timeouts struct {
	Comms      time.Duration // idle timeout: end session if no packet arrives for this long
	RetryTotal time.Duration // outer retry window for connect/bind
	RetryWait  time.Duration // sleep between connect attempts
	Expiry     time.Duration // hard session deadline, measured from creation
}

// Ops is the seven-method capability interface spec.md §9 design notes
// describe ("transport_init, transport_deinit, transport_destroy,
// transport_reset, server_dispatch, packet_transmit, get_socket"), letting
// a multi-transport switcher (out of scope) hold any transport behind one
// interface.
type Ops interface {
	Init(ctx context.Context, inherited net.Conn) error
	Deinit() error
	Destroy()
	Reset()
	Dispatch(ctx context.Context, handler dispatch.CommandHandler, sched dispatch.Scheduler) (dispatch.Outcome, error)
	Transmit(pkt frame.Packet) error
	GetSocket() int
}

// Transport is one active channel (spec.md §3). It is created when a URL is
// first parsed and destroyed at agent shutdown; only the owning session
// goroutine mutates its connection state (plus the Transmit path, which
// holds the Remote lock).
type Transport struct {
	Kind   string
	URL    string
	parsed ParsedURL

	Timeouts Timeouts
	Remote   *Remote

	startTime       time.Time
	expirationEnd   time.Time
	commsLastPacket time.Time

	conn    netbringup.ConnInfo
	session *tlssession.Session

	clock   clock.Clock
	metrics metrics.Sink
}

var _ Ops = (*Transport)(nil)

// New parses rawURL and returns a Transport ready for Init. Passing a nil
// clock or sink uses the production clock.System and metrics.NoOp
// respectively.
func New(rawURL string, timeouts Timeouts, remote *Remote, cl clock.Clock, sink metrics.Sink) (*Transport, error) {
	parsed, err := ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("tlscore: new transport: %w", err)
	}
	if cl == nil {
		cl = clock.Default
	}
	if sink == nil {
		sink = metrics.NoOp{}
	}
	if remote == nil {
		remote = NewRemote()
	}

	return &Transport{
		Kind:     Kind,
		URL:      rawURL,
		parsed:   parsed,
		Timeouts: timeouts,
		Remote:   remote,
		clock:    cl,
		metrics:  sink,
	}, nil
}

// connFD returns the raw file descriptor backing the active connection, or
// (0, false) if there is none or it doesn't expose one (spec.md §4.6
// GetSocket).
func (t *Transport) connFD() (int, bool) {
	if t.conn.Conn == nil {
		return 0, false
	}
	return connFDOf(t.conn.Conn)
}

// stageInfer is overridable in tests to avoid depending on real socket
// forensic state.
var stageInfer = stage.Infer
