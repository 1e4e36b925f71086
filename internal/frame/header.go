// Package frame implements the 8-byte length/type/value header that frames
// every packet on top of TLS (spec.md §3, §4.4, §6), plus request-id TLV
// injection. The manual big-endian header codec follows the style of
// tools/uping's raw-socket header encode/decode
// (408ed90b_malbeclabs-doublezero__tools-uping-pkg-uping-sender.go.go),
// which hand-rolls fixed-width wire headers with encoding/binary rather than
// reaching for a generic serialization library — appropriate here too, since
// the wire format is eight fixed bytes, not a general document format.
package frame

import (
	"encoding/binary"
	"fmt"
)

// HeaderSize is the fixed, on-wire size of a TlvHeader: a uint32 length
// followed by a uint32 type.
const HeaderSize = 8

// Well-known packet types that bypass cipher encryption (spec.md §3, §4.4).
const (
	PlainRequest  uint32 = 0x00000001
	PlainResponse uint32 = 0x00000002
)

// Header is the wire header for one packet.
//
// Length is always big-endian on the wire (htonl'd) and counts HeaderSize
// plus the payload length — see spec.md invariant "length >= sizeof(header)".
//
// Type is transmitted in whatever byte order it's stored in memory: the
// reference implementation assigns it without byte-swapping and compares it
// raw, so the wire format is effectively host-endian for this field. This is
// documented, not "fixed" (spec.md §9 design note 4) — Type is encoded with
// the same raw byte order it's read with, so round-tripping through this
// package is consistent even though it doesn't match Length's big-endian
// convention.
type Header struct {
	Length uint32
	Type   uint32
}

// PayloadLength returns Length - HeaderSize, the number of payload bytes
// that follow the header on the wire.
func (h Header) PayloadLength() (uint32, error) {
	if h.Length < HeaderSize {
		return 0, fmt.Errorf("frame: header length %d is smaller than header size %d", h.Length, HeaderSize)
	}
	return h.Length - HeaderSize, nil
}

// Encode writes h onto the wire: Length big-endian, Type raw (host-order, as
// documented above).
func (h Header) Encode() [HeaderSize]byte {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], h.Length)
	binary.NativeEndian.PutUint32(buf[4:8], h.Type)
	return buf
}

// DecodeHeader parses the fixed 8-byte wire header.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) != HeaderSize {
		return Header{}, fmt.Errorf("frame: header buffer must be %d bytes, got %d", HeaderSize, len(buf))
	}
	return Header{
		Length: binary.BigEndian.Uint32(buf[0:4]),
		Type:   binary.NativeEndian.Uint32(buf[4:8]),
	}, nil
}

// IsPlain reports whether typ is one of the well-known types that must
// traverse the wire unencrypted even when a cipher is attached (spec.md §8
// law 3).
func IsPlain(typ uint32) bool {
	return typ == PlainRequest || typ == PlainResponse
}
