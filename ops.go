package tlscore

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"syscall"
	"time"

	"github.com/subtrace-labs/tlscore/internal/dispatch"
	"github.com/subtrace-labs/tlscore/internal/frame"
	"github.com/subtrace-labs/tlscore/internal/netbringup"
	"github.com/subtrace-labs/tlscore/internal/tlssession"
)

// retryConfig builds the shared retry-loop bound from t's timeouts and
// start time (spec.md §4.1: retry_total/retry_wait measured from bring-up,
// expiry measured from session creation).
func (t *Transport) retryConfig() netbringup.RetryConfig {
	cfg := netbringup.RetryConfig{
		RetryTotal: t.Timeouts.RetryTotal,
		RetryWait:  t.Timeouts.RetryWait,
	}
	if t.Timeouts.Expiry > 0 {
		cfg.Expiry = t.startTime.Add(t.Timeouts.Expiry)
	}
	return cfg
}

// bringUp establishes the raw stream socket for a fresh Init: adopting an
// inherited descriptor if one is given, reconnecting via a remembered
// sock_desc if this transport has run before, or dialing/binding fresh from
// the parsed URL (spec.md §4.6 step 2, §4.1).
func (t *Transport) bringUp(inherited net.Conn) (netbringup.ConnInfo, error) {
	if inherited != nil {
		return netbringup.Adopt(inherited, stageInfer)
	}

	if t.conn.HasSockDesc() {
		return t.reconnect()
	}

	if t.parsed.IsBind() {
		conn, err := netbringup.BindListen(t.parsed.Port)
		if err != nil {
			return netbringup.ConnInfo{}, err
		}
		return netbringup.ConnInfo{Conn: conn, Bound: true}, nil
	}

	if t.parsed.Scheme == "tcp6" {
		conn, err := netbringup.ReverseV6(t.clock, t.parsed.Host, strconv.Itoa(t.parsed.Port), t.parsed.ScopeID, t.retryConfig())
		if err != nil {
			return netbringup.ConnInfo{}, err
		}
		return netbringup.ConnInfo{Conn: conn, Bound: false}, nil
	}

	conn, err := netbringup.ReverseV4(t.clock, t.parsed.Host, t.parsed.Port, t.retryConfig())
	if err != nil {
		return netbringup.ConnInfo{}, err
	}
	return netbringup.ConnInfo{Conn: conn, Bound: false}, nil
}

// reconnect re-establishes a connection using the sock_desc remembered from
// a previous bring-up (spec.md §4.6 step 3: "if ctx->sock_desc_size > 0,
// reconnect/rebind using the stored address instead of re-parsing the
// URL"), taking the bind-vs-reverse branch from the remembered Bound flag.
func (t *Transport) reconnect() (netbringup.ConnInfo, error) {
	addr := t.conn.SockDesc

	if t.conn.Bound {
		conn, err := netbringup.BindListen(int(addr.Port()))
		if err != nil {
			return netbringup.ConnInfo{}, err
		}
		return netbringup.ConnInfo{Conn: conn, Bound: true, SockDesc: addr}, nil
	}

	if addr.Addr().Is4() {
		conn, err := netbringup.ReverseV4(t.clock, addr.Addr().String(), int(addr.Port()), t.retryConfig())
		if err != nil {
			return netbringup.ConnInfo{}, err
		}
		return netbringup.ConnInfo{Conn: conn, Bound: false, SockDesc: addr}, nil
	}

	conn, err := netbringup.ReverseV6(t.clock, addr.Addr().String(), strconv.Itoa(int(addr.Port())), t.parsed.ScopeID, t.retryConfig())
	if err != nil {
		return netbringup.ConnInfo{}, err
	}
	return netbringup.ConnInfo{Conn: conn, Bound: false, SockDesc: addr}, nil
}

// Init brings up the socket (adopt/reconnect/fresh-dial), clears the
// socket's inherit-to-children flag, flushes any stager leftovers, and
// negotiates TLS (spec.md §4.6 transport_init).
func (t *Transport) Init(ctx context.Context, inherited net.Conn) error {
	t.startTime = t.clock.Now()
	t.commsLastPacket = t.startTime
	if t.Timeouts.Expiry > 0 {
		t.expirationEnd = t.startTime.Add(t.Timeouts.Expiry)
	}

	mode := t.bringUpMode(inherited)

	info, err := t.bringUp(inherited)
	if err != nil {
		t.metrics.ConnectAttempt(mode, "error")
		return fmt.Errorf("tlscore: init: bring up socket: %w", err)
	}
	t.metrics.ConnectAttempt(mode, "ok")

	if fd, ok := connFDOf(info.Conn); ok {
		syscall.CloseOnExec(fd) // spec.md §5: handle_inherit = false
	}

	if err := netbringup.Flush(info.Conn); err != nil {
		info.Conn.Close()
		return fmt.Errorf("tlscore: init: flush: %w", err)
	}

	tlssession.Initialize()
	session, err := tlssession.Negotiate(ctx, info.Conn)
	if err != nil {
		tlssession.Destroy()
		info.Conn.Close()
		return fmt.Errorf("tlscore: init: %w: %w", ErrHandshakeFailed, err)
	}

	t.conn = info
	t.session = session
	return nil
}

func (t *Transport) bringUpMode(inherited net.Conn) string {
	switch {
	case inherited != nil:
		return "adopt"
	case t.conn.HasSockDesc() && t.conn.Bound:
		return "bind"
	case t.conn.HasSockDesc():
		return "reverse"
	case t.parsed.IsBind():
		return "bind"
	case t.parsed.Scheme == "tcp6":
		return "reverse_v6"
	default:
		return "reverse_v4"
	}
}

// Deinit tears down the TLS session and underlying socket but preserves the
// remembered sock_desc/Bound for a future Init to reconnect with (spec.md
// §4.6 transport_deinit).
func (t *Transport) Deinit() error {
	var sessErr, connErr error
	if t.session != nil {
		sessErr = t.session.Close()
		tlssession.Destroy()
		t.session = nil
	}
	if t.conn.Conn != nil {
		connErr = t.conn.Conn.Close()
		t.conn.Conn = nil
	}
	if sessErr != nil {
		return fmt.Errorf("tlscore: deinit: close session: %w", sessErr)
	}
	if connErr != nil {
		return fmt.Errorf("tlscore: deinit: close socket: %w", connErr)
	}
	return nil
}

// Destroy fully tears the transport down: it deinitializes, then forgets
// the remembered sock_desc so a future Init must re-parse the URL (spec.md
// §4.6 transport_destroy).
func (t *Transport) Destroy() {
	_ = t.Deinit()
	t.conn = netbringup.ConnInfo{}
	t.session = nil
}

// Reset closes the active session and socket in place, applying DESIGN.md
// decision 2: it operates on the transport's *existing* context rather than
// allocating a throwaway one, and — unlike Destroy — keeps the remembered
// sock_desc/Bound so the next Init reconnects to the same address (spec.md
// §4.6 transport_reset).
func (t *Transport) Reset() {
	if t.session != nil {
		t.session.Close()
		tlssession.Destroy()
		t.session = nil
	}
	if t.conn.Conn != nil {
		t.conn.Conn.Close()
		t.conn.Conn = nil
	}
}

// Dispatch runs the poll/receive/dispatch loop over this transport until
// termination, timeout, expiry, a command-requested stop, or an error
// (spec.md §4.5), using t itself as the dispatch.Poller.
func (t *Transport) Dispatch(ctx context.Context, handler dispatch.CommandHandler, sched dispatch.Scheduler) (dispatch.Outcome, error) {
	if t.conn.Conn == nil || t.session == nil {
		return dispatch.OutcomeError, ErrNotConnected
	}
	timeouts := dispatch.Timeouts{Comms: t.Timeouts.Comms}
	return dispatch.Run(ctx, t, handler, sched, t.clock, timeouts, t.expirationEnd, t.metrics)
}

// Poll implements dispatch.Poller: one locked attempt to read a packet
// before deadline (spec.md §5: "every public transport operation acquires
// the remote lock for its full duration").
func (t *Transport) Poll(deadline time.Time) (frame.Packet, error) {
	t.Remote.Lock()
	defer t.Remote.Unlock()

	if err := t.conn.Conn.SetReadDeadline(deadline); err != nil {
		return frame.Packet{}, fmt.Errorf("tlscore: poll: set read deadline: %w", err)
	}

	pkt, err := frame.Read(t.session.Conn(), t.Remote.cipherLocked())
	if err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return frame.Packet{}, dispatch.ErrPollTimeout
		}
		return frame.Packet{}, err
	}

	t.commsLastPacket = t.clock.Now()
	return pkt, nil
}

// Transmit writes pkt to the session, encrypting it with the remote's
// current cipher unless pkt's type is one of the plain types (spec.md §4.4
// transmit_packet, §5 remote-lock invariant).
func (t *Transport) Transmit(pkt frame.Packet) error {
	t.Remote.Lock()
	defer t.Remote.Unlock()

	if t.conn.Conn == nil || t.session == nil {
		return ErrNotConnected
	}

	if err := frame.Write(t.session.Conn(), pkt, t.Remote.cipherLocked()); err != nil {
		return fmt.Errorf("tlscore: transmit: %w", err)
	}
	t.metrics.PacketTransferred("tx")
	return nil
}

// GetSocket returns the raw file descriptor backing the active connection,
// or -1 if there is none (spec.md §4.6 get_socket).
func (t *Transport) GetSocket() int {
	fd, ok := t.connFD()
	if !ok {
		return -1
	}
	return fd
}

// connFDOf is connFD generalized to an arbitrary net.Conn, used for the
// freshly-established connection inside bringUp before it's stored on t.
func connFDOf(conn net.Conn) (int, bool) {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return 0, false
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return 0, false
	}
	var fd int
	if err := raw.Control(func(f uintptr) { fd = int(f) }); err != nil {
		return 0, false
	}
	return fd, true
}
