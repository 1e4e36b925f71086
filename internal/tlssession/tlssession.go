// Package tlssession implements the TLS client handshake and cover-request
// behavior of spec.md §4.3, using crypto/tls instead of a process-wide
// OpenSSL binding (see DESIGN.md for why no cgo OpenSSL library is wired:
// nothing in the example corpus vendors one, and crypto/tls is what every
// TLS-using file in the corpus actually imports, e.g.
// c1338ebc_iatsiuk-r-cli__internal-conn-conn.go.go and
// 3b276c03_gravitational-teleport__lib-relaytunnel-tunnel_client.go.go).
//
// spec.md §4.3's "process-wide library init + N locks allocated once per
// session bring-up, freed on teardown" has no direct analogue once the TLS
// library itself (crypto/tls) is already safe for concurrent use. What
// remains is a sync.Once whose body is empty (crypto/tls needs no global
// setup; each Negotiate builds its own tls.Config) and an atomic reference
// count of live sessions.
package tlssession

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
)

// coverRequest is the fixed traffic-shaping decoy sent immediately after
// the handshake completes (spec.md §4.3): 27 bytes, response not consumed.
const coverRequest = "GET /123456789 HTTP/1.0\r\n\r\n"

var (
	initOnce sync.Once
	refCount int64
)

// Initialize performs the one-time process-wide setup spec.md §4.3
// describes, then increments the reference count. Must be paired with a
// Destroy call per session bring-up (spec.md §3 invariant: "allocated
// exactly once per session bring-up and freed on teardown").
func Initialize() {
	initOnce.Do(func() {
		// crypto/tls handles its own internal concurrency; the reference's
		// lock-callback registration has no work to do here beyond marking
		// that global setup has run once, which is what initOnce already
		// guarantees.
	})
	atomic.AddInt64(&refCount, 1)
}

// Destroy decrements the reference count established by Initialize.
func Destroy() {
	atomic.AddInt64(&refCount, -1)
}

// RefCount reports the current number of live sessions, for tests.
func RefCount() int64 {
	return atomic.LoadInt64(&refCount)
}

// Session wraps a *tls.Conn established over an already-connected socket.
type Session struct {
	conn *tls.Conn
}

// Negotiate creates a TLS 1.0-minimum client context with peer verification
// disabled, performs the handshake over conn, and sends the fixed cover
// request as a single write (spec.md §4.3 negotiate_ssl).
//
// MaxVersion is left unset so the handshake negotiates up to whatever the
// peer supports, honoring the §9 redesign note ("SHOULD negotiate the
// highest version the peer supports") while MinVersion still matches the
// reference's TLS 1.0 floor.
func Negotiate(ctx context.Context, conn net.Conn) (*Session, error) {
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS10,
		InsecureSkipVerify: true, // spec.md §4.3: "disable peer verification"
	}

	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("tlssession: handshake: %w", err)
	}

	if _, err := tlsConn.Write([]byte(coverRequest)); err != nil {
		return nil, fmt.Errorf("tlssession: send cover request: %w", err)
	}

	return &Session{conn: tlsConn}, nil
}

// Conn returns the underlying *tls.Conn for frame I/O.
func (s *Session) Conn() *tls.Conn {
	return s.conn
}

// Close tears down the session (spec.md §4.3 destroy_ssl): sends
// close-notify and releases the connection.
func (s *Session) Close() error {
	if s == nil || s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
