package tlssession

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"net"
	"testing"
	"time"
)

// selfSignedCert generates an ephemeral ECDSA certificate for the "server"
// end of a test handshake. Negotiate runs with InsecureSkipVerify, so the
// client never needs to trust it.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "tlscore-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("create certificate: %v", err)
	}

	return tls.Certificate{Certificate: [][]byte{der}, PrivateKey: key}
}

func TestNegotiateHandshakeAndCoverRequest(t *testing.T) {
	cert := selfSignedCert(t)
	clientConn, serverConn := net.Pipe()

	serverDone := make(chan []byte, 1)
	go func() {
		srv := tls.Server(serverConn, &tls.Config{Certificates: []tls.Certificate{cert}})
		if err := srv.Handshake(); err != nil {
			serverDone <- nil
			return
		}
		buf := make([]byte, len(coverRequest))
		if _, err := srv.Read(buf); err != nil {
			serverDone <- nil
			return
		}
		serverDone <- buf
	}()

	before := RefCount()
	Initialize()
	if RefCount() != before+1 {
		t.Fatalf("RefCount after Initialize = %d, want %d", RefCount(), before+1)
	}

	session, err := Negotiate(context.Background(), clientConn)
	if err != nil {
		t.Fatalf("Negotiate: %v", err)
	}
	defer func() {
		session.Close()
		Destroy()
	}()

	got := <-serverDone
	if string(got) != coverRequest {
		t.Errorf("server received %q, want cover request %q", got, coverRequest)
	}
	if session.Conn() == nil {
		t.Error("Session.Conn() returned nil after successful negotiate")
	}
}

func TestDestroyDecrementsRefCount(t *testing.T) {
	Initialize()
	before := RefCount()
	Destroy()
	if RefCount() != before-1 {
		t.Errorf("RefCount after Destroy = %d, want %d", RefCount(), before-1)
	}
}

func TestSessionCloseOnNilIsSafe(t *testing.T) {
	var s *Session
	if err := s.Close(); err != nil {
		t.Errorf("Close on nil session: %v", err)
	}
}
