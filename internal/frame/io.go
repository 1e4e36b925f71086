package frame

import (
	"errors"
	"fmt"
	"io"

	"github.com/subtrace-labs/tlscore/internal/cipher"
)

// ErrPeerClosed indicates the peer closed the channel (spec.md §7: "channel
// read returns 0" / "peer-closed").
var ErrPeerClosed = errors.New("frame: peer closed connection")

// Read reads one packet off conn, applying dec to the payload unless the
// packet's type is one of the plain types or dec is nil (spec.md §4.4 step
// 4, §8 law 3).
func Read(conn io.Reader, dec cipher.Cipher) (Packet, error) {
	var hdrBuf [HeaderSize]byte
	if err := readFull(conn, hdrBuf[:]); err != nil {
		return Packet{}, err
	}

	hdr, err := DecodeHeader(hdrBuf[:])
	if err != nil {
		return Packet{}, fmt.Errorf("frame: decode header: %w", err)
	}

	payloadLen, err := hdr.PayloadLength()
	if err != nil {
		return Packet{}, err
	}

	payload := make([]byte, payloadLen)
	if payloadLen > 0 {
		if err := readFull(conn, payload); err != nil {
			return Packet{}, err
		}
	}

	if dec != nil && !IsPlain(hdr.Type) {
		plain, err := dec.Decrypt(payload)
		if err != nil {
			return Packet{}, fmt.Errorf("frame: decrypt payload: %w", err)
		}
		payload = plain
	}

	return Packet{Header: hdr, Payload: payload}, nil
}

// Write transmits p on conn, encrypting the payload with enc unless p's type
// is one of the plain types or enc is nil (spec.md §4.4).
//
// If p has no request-id TLV yet, one is generated and attached before the
// header length is finalized — mirroring transmit_packet step 1.
func Write(conn io.Writer, p Packet, enc cipher.Cipher) error {
	p, err := WithRequestID(p)
	if err != nil {
		return err
	}

	payload := p.Payload
	if enc != nil && !IsPlain(p.Header.Type) {
		cipherText, err := enc.Encrypt(payload)
		if err != nil {
			return fmt.Errorf("frame: encrypt payload: %w", err)
		}
		payload = cipherText
	}

	hdr := Header{Length: uint32(HeaderSize + len(payload)), Type: p.Header.Type}
	hdrBuf := hdr.Encode()

	if err := writeFull(conn, hdrBuf[:]); err != nil {
		return fmt.Errorf("frame: write header: %w", err)
	}
	if len(payload) > 0 {
		if err := writeFull(conn, payload); err != nil {
			return fmt.Errorf("frame: write payload: %w", err)
		}
	}
	return nil
}

// readFull reads exactly len(buf) bytes, tolerating short reads the way a
// loop around SSL_read would (spec.md §4.4 step 1/3), and translating a
// clean EOF into ErrPeerClosed.
func readFull(r io.Reader, buf []byte) error {
	n, err := io.ReadFull(r, buf)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrPeerClosed
		}
		return fmt.Errorf("frame: short read (%d/%d bytes): %w", n, len(buf), err)
	}
	return nil
}

// writeFull writes exactly len(buf) bytes, tolerating short writes the way a
// loop around SSL_write would (spec.md §4.4 step 4).
func writeFull(w io.Writer, buf []byte) error {
	total := 0
	for total < len(buf) {
		n, err := w.Write(buf[total:])
		if err != nil {
			return fmt.Errorf("frame: short write (%d/%d bytes): %w", total, len(buf), err)
		}
		total += n
	}
	return nil
}
