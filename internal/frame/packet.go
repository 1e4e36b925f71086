package frame

import (
	"crypto/rand"
	"fmt"
)

// RequestIDLen is the fixed length of a generated request-id TLV value:
// 31 printable-ASCII characters, spec.md §4.4/§6.
const RequestIDLen = 31

// requestIDTag is this package's own tag for the nested request-id TLV
// inside a packet's payload. The outer Packet.Payload is, per spec.md §3,
// "payload bytes... tlv index (opaque to this spec)" — nested TLV framing
// beyond the request-id is the command subsystem's concern and is not
// interpreted here. This tag value is a convention private to this
// implementation, not a wire contract imposed by spec.md.
const requestIDTag uint32 = 0x00000001

// Packet is one TLV packet: its header plus payload bytes.
type Packet struct {
	Header  Header
	Payload []byte
}

// NewPlain builds a packet of one of the well-known plaintext types. It's an
// alias for New: plain types are distinguished by frame.IsPlain(typ) at
// read/write time, not by any difference in how the packet is constructed.
func NewPlain(typ uint32, payload []byte) Packet {
	return New(typ, payload)
}

// New builds a packet with the given type and payload, header length
// computed from the payload.
func New(typ uint32, payload []byte) Packet {
	return Packet{
		Header:  Header{Length: uint32(HeaderSize + len(payload)), Type: typ},
		Payload: payload,
	}
}

// RequestID scans the packet's payload for the nested request-id TLV and
// returns its value, or ("", false) if none is present.
func (p Packet) RequestID() (string, bool) {
	tag, val, ok := findTLV(p.Payload, requestIDTag)
	if ok && tag == requestIDTag {
		return string(val), true
	}
	// WithRequestID appends its record after whatever payload was already
	// there, which need not itself be TLV-framed, so also check the tail.
	const recLen = 8 + RequestIDLen
	if n := len(p.Payload); n >= recLen {
		rec := p.Payload[n-recLen:]
		if getUint32(rec[0:4]) == requestIDTag && getUint32(rec[4:8]) == RequestIDLen {
			return string(rec[8:]), true
		}
	}
	return "", false
}

// WithRequestID returns a copy of p with a freshly generated 31-character
// printable-ASCII request-id TLV appended to its payload, unless one is
// already present (spec.md §8 law 8: transmitting the same packet twice must
// not add a second id).
func WithRequestID(p Packet) (Packet, error) {
	if _, ok := p.RequestID(); ok {
		return p, nil
	}

	id, err := GenerateRequestID()
	if err != nil {
		return Packet{}, fmt.Errorf("frame: generate request id: %w", err)
	}

	payload := appendTLV(p.Payload, requestIDTag, []byte(id))
	return Packet{
		Header:  Header{Length: uint32(HeaderSize + len(payload)), Type: p.Header.Type},
		Payload: payload,
	}, nil
}

// GenerateRequestID returns a 31-character string drawn from the printable
// ASCII range [0x21, 0x7E], per spec.md §4.4/§6.
func GenerateRequestID() (string, error) {
	const lo, hi = 0x21, 0x7E
	const span = hi - lo + 1

	raw := make([]byte, RequestIDLen)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}

	out := make([]byte, RequestIDLen)
	for i, b := range raw {
		out[i] = byte(lo + int(b)%span)
	}
	return string(out), nil
}

// appendTLV appends a tag/length/value record (uint32 tag, uint32 length,
// value bytes) to payload.
func appendTLV(payload []byte, tag uint32, value []byte) []byte {
	rec := make([]byte, 8+len(value))
	putUint32(rec[0:4], tag)
	putUint32(rec[4:8], uint32(len(value)))
	copy(rec[8:], value)
	return append(payload, rec...)
}

// findTLV scans payload for the first TLV record matching tag.
func findTLV(payload []byte, tag uint32) (uint32, []byte, bool) {
	i := 0
	for i+8 <= len(payload) {
		t := getUint32(payload[i : i+4])
		l := getUint32(payload[i+4 : i+8])
		start := i + 8
		end := start + int(l)
		if end > len(payload) {
			return 0, nil, false
		}
		if t == tag {
			return t, payload[start:end], true
		}
		i = end
	}
	return 0, nil, false
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}

func getUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
