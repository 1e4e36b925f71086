// Package stage infers how an inherited (staged) socket was originally
// created: a bind-mode listener that has since accepted a connection, or an
// outbound reverse-mode connect. It's the forensic step spec.md §4.2 calls
// "staged-connection inference" and is grounded on the teacher's own
// getsockname/getpeername helpers in cmd/run/socket/socket.go
// (getsockname, (*Socket).PeerAddr, (*Socket).BindAddr), generalized from
// "inspect this one socket" to "scan a small set of candidate siblings".
package stage

import (
	"errors"
	"fmt"
	"net"
	"net/netip"
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/subtrace-labs/tlscore/internal/netbringup"
)

// MaxCandidates bounds the candidate-descriptor scan (spec.md §4.2: "a
// small constant K (K=16 in the reference)").
const MaxCandidates = 16

// ipv6BoundWhenPortsDiffer preserves the reference implementation's IPv6
// port-comparison inversion bug-for-bug (spec.md §9 open question 1, DESIGN.md
// decision 1): IPv4 declares "bound" when the candidate's port *matches* the
// adopted socket's local port; IPv6 declares "bound" when the ports
// *differ*. This is almost certainly a defect in the reference, preserved
// here only for compatibility with already-deployed stagers that depend on
// it, per the spec's explicit "do not silently fix" instruction.
const ipv6BoundWhenPortsDiffer = true

// Infer decides ConnInfo.Bound and ConnInfo.SockDesc for an adopted
// connection whose origin is unknown (spec.md §4.2).
func Infer(conn net.Conn) (netbringup.ConnInfo, error) {
	localAddr, err := getsockname(conn)
	if err != nil {
		return netbringup.ConnInfo{}, fmt.Errorf("stage: getsockname on adopted socket: %w", err)
	}

	for _, candFD := range candidateDescriptors(conn) {
		candAddr, isListening, ok := inspectCandidate(candFD, localAddr.Addr().Is4())
		if !ok {
			continue
		}

		portsEqual := candAddr.Port() == localAddr.Port()
		var matches bool
		if localAddr.Addr().Is4() {
			matches = portsEqual
		} else {
			// IPv6 branch: declare bound when ports differ, not when they
			// match — preserved bug-for-bug, see ipv6BoundWhenPortsDiffer.
			matches = !portsEqual == ipv6BoundWhenPortsDiffer
		}

		if isListening && matches {
			unix.Close(candFD)
			return netbringup.ConnInfo{
				Conn:     conn,
				Bound:    true,
				SockDesc: candAddr,
			}, nil
		}
	}

	peerAddr, err := getpeername(conn)
	if err != nil {
		// No listener found and no peer address either: silently conclude
		// reverse-mode with no remembered address (spec.md §4.2 edge case:
		// "if no candidate is a valid socket, silently conclude
		// reverse-mode").
		return netbringup.ConnInfo{Conn: conn, Bound: false}, nil
	}

	return netbringup.ConnInfo{
		Conn:     conn,
		Bound:    false,
		SockDesc: peerAddr,
	}, nil
}

// inspectCandidate queries candFD's listening state and address family; it
// returns ok=false if candFD isn't a usable listening socket of the right
// family.
func inspectCandidate(candFD int, wantV4 bool) (addr netip.AddrPort, isListening bool, ok bool) {
	accepting, err := unix.GetsockoptInt(candFD, unix.SOL_SOCKET, unix.SO_ACCEPTCONN)
	if err != nil || accepting == 0 {
		return netip.AddrPort{}, false, false
	}

	sa, err := unix.Getsockname(candFD)
	if err != nil {
		return netip.AddrPort{}, false, false
	}

	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		if !wantV4 {
			return netip.AddrPort{}, false, false
		}
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port)), true, true
	case *unix.SockaddrInet6:
		if wantV4 {
			return netip.AddrPort{}, false, false
		}
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port)), true, true
	default:
		return netip.AddrPort{}, false, false
	}
}

func getsockname(conn net.Conn) (netip.AddrPort, error) {
	var addr netip.AddrPort
	err := controlFD(conn, func(fd int) error {
		sa, err := unix.Getsockname(fd)
		if err != nil {
			return err
		}
		addr = sockaddrToAddrPort(sa)
		return nil
	})
	return addr, err
}

func getpeername(conn net.Conn) (netip.AddrPort, error) {
	var addr netip.AddrPort
	err := controlFD(conn, func(fd int) error {
		sa, err := unix.Getpeername(fd)
		if err != nil {
			return err
		}
		addr = sockaddrToAddrPort(sa)
		return nil
	})
	return addr, err
}

func sockaddrToAddrPort(sa unix.Sockaddr) netip.AddrPort {
	switch sa := sa.(type) {
	case *unix.SockaddrInet4:
		return netip.AddrPortFrom(netip.AddrFrom4(sa.Addr), uint16(sa.Port))
	case *unix.SockaddrInet6:
		return netip.AddrPortFrom(netip.AddrFrom16(sa.Addr), uint16(sa.Port))
	default:
		return netip.AddrPort{}
	}
}

// controlFD runs fn with the raw file descriptor backing conn.
func controlFD(conn net.Conn, fn func(fd int) error) error {
	sc, ok := conn.(syscall.Conn)
	if !ok {
		return errors.New("stage: connection does not expose a raw file descriptor")
	}
	raw, err := sc.SyscallConn()
	if err != nil {
		return fmt.Errorf("stage: syscall conn: %w", err)
	}

	var innerErr error
	if err := raw.Control(func(fd uintptr) {
		innerErr = fn(int(fd))
	}); err != nil {
		return fmt.Errorf("stage: control: %w", err)
	}
	return innerErr
}
