package netbringup

import (
	"fmt"
	"net"

	"golang.org/x/sys/unix"
)

// BindListen prefers a dual-stack IPv6 listener (clearing IPV6_V6ONLY); if
// either the socket or the V6ONLY clear fails, it falls back to a pure IPv4
// listener. It binds to the wildcard address on port, listens with a
// backlog of 1, accepts exactly one connection, closes the listener, and
// returns the accepted socket (spec.md §4.1 bind_listen).
func BindListen(port int) (net.Conn, error) {
	fd, err := dualStackListenSocket(port)
	if err != nil {
		fd, err = ipv4ListenSocket(port)
		if err != nil {
			return nil, fmt.Errorf("netbringup: bind_listen: %w", err)
		}
	}

	if err := unix.Listen(fd, 1); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netbringup: listen: %w", err)
	}

	connFD, _, err := unix.Accept4(fd, unix.SOCK_CLOEXEC)
	closeErr := unix.Close(fd) // close the listener immediately after accept
	if err != nil {
		if connFD > 0 {
			unix.Close(connFD)
		}
		return nil, fmt.Errorf("netbringup: accept: %w", err)
	}
	if closeErr != nil {
		unix.Close(connFD)
		return nil, fmt.Errorf("netbringup: close listener: %w", closeErr)
	}

	return fileConnToNetConn(fmt.Sprintf("bind-listen:%d", port), connFD)
}

func dualStackListenSocket(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET6, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return 0, fmt.Errorf("socket af_inet6: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("set so_reuseaddr: %w", err)
	}
	if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("clear ipv6_v6only: %w", err)
	}

	sa := &unix.SockaddrInet6{Addr: [16]byte{}, Port: port} // in6addr_any
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("bind [::]:%d: %w", port, err)
	}

	return fd, nil
}

func ipv4ListenSocket(port int) (int, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		return 0, fmt.Errorf("socket af_inet: %w", err)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("set so_reuseaddr: %w", err)
	}

	sa := &unix.SockaddrInet4{Addr: [4]byte{}, Port: port} // INADDR_ANY
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return 0, fmt.Errorf("bind 0.0.0.0:%d: %w", port, err)
	}

	return fd, nil
}
