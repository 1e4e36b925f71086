// Package netbringup establishes the connected stream socket a session runs
// over, under the three topologies spec.md §4.1 describes: outbound connect
// ("reverse"), inbound listen ("bind"), and adoption of an inherited socket.
//
// The low-level socket creation style (raw golang.org/x/sys/unix calls,
// wrapped into a net.Conn via os.NewFile/net.FileConn) follows
// cmd/run/socket/socket.go's CreateSocket/bindEphemeral/getsockname helpers
// in the teacher repo, which build sockets the same way for the same reason:
// the address-family/inference logic downstream (internal/stage) needs
// getsockname/getpeername access that net.Dialer/net.Listener don't expose
// directly once a connection is established.
package netbringup

import (
	"fmt"
	"net"
	"net/netip"
	"os"
)

// ConnInfo is the mutable per-connection state a Transport holds once a
// socket has been established — spec.md §3's TcpTransportContext, minus the
// TLS fields (owned by internal/tlssession) which are layered on top of
// Conn.
type ConnInfo struct {
	// Conn is the connected stream socket.
	Conn net.Conn

	// Bound records whether the previous establishment was bind-mode, used
	// when reconnecting after an inherited socket was adopted (spec.md §3).
	Bound bool

	// SockDesc is the stored address for reconnection: the remote peer
	// address in reverse mode, or the local bound address in bind mode.
	SockDesc netip.AddrPort
}

// HasSockDesc reports whether SockDesc was ever populated (spec.md §4.6
// step 3's "ctx->sock_desc_size > 0").
func (c ConnInfo) HasSockDesc() bool {
	return c.SockDesc.IsValid()
}

// fileConnToNetConn wraps a raw fd (already set up with the right
// socket/connect/bind syscalls) as a net.Conn. net.FileConn dup(2)s the fd
// internally, so the original f is always closed afterwards regardless of
// outcome.
func fileConnToNetConn(name string, fd int) (net.Conn, error) {
	f := os.NewFile(uintptr(fd), name)
	conn, err := net.FileConn(f)
	closeErr := f.Close()
	if err != nil {
		return nil, fmt.Errorf("netbringup: file conn from fd %d: %w", fd, err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("netbringup: close duplicated file for fd %d: %w", fd, closeErr)
	}
	return conn, nil
}
