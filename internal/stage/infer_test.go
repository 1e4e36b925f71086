package stage

import (
	"net"
	"net/netip"
	"os"
	"testing"

	"golang.org/x/sys/unix"
)

// TestInferReverseModeOnOutboundConnect exercises the common case: a
// connection that was dialed outward, not accepted off a listener. Even
// though a real listening socket exists in the same process (and may land
// within the candidate scan window), its bound port never matches the
// dialed connection's ephemeral local port, so Infer falls through to
// concluding reverse-mode with the remote peer's address remembered.
func TestInferReverseModeOnOutboundConnect(t *testing.T) {
	ln, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	client, err := net.Dial("tcp4", ln.Addr().String())
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer client.Close()
	defer (<-accepted).Close()

	info, err := Infer(client)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if info.Bound {
		t.Error("an outbound connect must not be inferred as bound-mode")
	}
	if !info.HasSockDesc() {
		t.Fatal("expected the remote peer address to be remembered")
	}
	if info.SockDesc.String() != ln.Addr().String() {
		t.Errorf("SockDesc = %v, want %v", info.SockDesc, ln.Addr())
	}
}

// TestInferBindModeOnAcceptedConnection exercises scenario S5 ("adopt bind
// socket"): a connection accepted off a live listener in the same process.
// The listener is built with raw golang.org/x/sys/unix calls, the same way
// internal/netbringup.BindListen builds one, so its fd lands adjacent to the
// accepted connection's fd in the process's descriptor table and falls
// within candidateDescriptors' scan window — net.Listen/net.Dial's own
// internal bookkeeping fds would make that adjacency far less reliable.
func TestInferBindModeOnAcceptedConnection(t *testing.T) {
	listenFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		t.Fatalf("socket: %v", err)
	}
	if err := unix.SetsockoptInt(listenFD, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(listenFD)
		t.Fatalf("setsockopt: %v", err)
	}

	loopback := [4]byte{127, 0, 0, 1}
	if err := unix.Bind(listenFD, &unix.SockaddrInet4{Addr: loopback, Port: 0}); err != nil {
		unix.Close(listenFD)
		t.Fatalf("bind: %v", err)
	}
	if err := unix.Listen(listenFD, 1); err != nil {
		unix.Close(listenFD)
		t.Fatalf("listen: %v", err)
	}

	sa, err := unix.Getsockname(listenFD)
	if err != nil {
		unix.Close(listenFD)
		t.Fatalf("getsockname: %v", err)
	}
	port := sa.(*unix.SockaddrInet4).Port

	clientFD, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM, unix.IPPROTO_TCP)
	if err != nil {
		unix.Close(listenFD)
		t.Fatalf("client socket: %v", err)
	}
	defer unix.Close(clientFD)
	if err := unix.Connect(clientFD, &unix.SockaddrInet4{Addr: loopback, Port: port}); err != nil {
		unix.Close(listenFD)
		t.Fatalf("connect: %v", err)
	}

	acceptedFD, _, err := unix.Accept4(listenFD, unix.SOCK_CLOEXEC)
	if err != nil {
		unix.Close(listenFD)
		t.Fatalf("accept: %v", err)
	}

	f := os.NewFile(uintptr(acceptedFD), "accepted")
	accepted, err := net.FileConn(f)
	f.Close()
	if err != nil {
		unix.Close(listenFD)
		t.Fatalf("file conn: %v", err)
	}
	defer accepted.Close()

	info, err := Infer(accepted)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if !info.Bound {
		t.Fatal("an accepted connection off a live listener must be inferred as bound-mode")
	}

	wantAddr := netip.AddrPortFrom(netip.AddrFrom4(loopback), uint16(port))
	if info.SockDesc != wantAddr {
		t.Errorf("SockDesc = %v, want %v", info.SockDesc, wantAddr)
	}

	// Infer must have closed the listener itself (spec.md S5: "listener is
	// closed"): a further accept attempt on it now fails with a bad-fd error
	// rather than blocking or succeeding.
	if _, _, err := unix.Accept4(listenFD, 0); err == nil {
		t.Error("expected the listener fd to have been closed by Infer")
	}
}
