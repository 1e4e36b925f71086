package frame

import "testing"

func TestHeaderEncodeDecodeRoundTrip(t *testing.T) {
	h := Header{Length: HeaderSize + 5, Type: 0xDEADBEEF}
	buf := h.Encode()

	got, err := DecodeHeader(buf[:])
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if got != h {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, h)
	}
}

func TestHeaderEncodeLengthBigEndian(t *testing.T) {
	h := Header{Length: 0x01020304, Type: 0}
	buf := h.Encode()
	want := [4]byte{0x01, 0x02, 0x03, 0x04}
	if [4]byte{buf[0], buf[1], buf[2], buf[3]} != want {
		t.Errorf("length not big-endian: got %v, want %v", buf[:4], want)
	}
}

func TestPayloadLength(t *testing.T) {
	h := Header{Length: HeaderSize + 10}
	n, err := h.PayloadLength()
	if err != nil {
		t.Fatalf("PayloadLength: %v", err)
	}
	if n != 10 {
		t.Errorf("got %d, want 10", n)
	}
}

func TestPayloadLengthTooSmall(t *testing.T) {
	h := Header{Length: HeaderSize - 1}
	if _, err := h.PayloadLength(); err == nil {
		t.Error("expected error for length smaller than header size")
	}
}

func TestDecodeHeaderWrongSize(t *testing.T) {
	if _, err := DecodeHeader([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for short buffer")
	}
}

func TestIsPlain(t *testing.T) {
	if !IsPlain(PlainRequest) || !IsPlain(PlainResponse) {
		t.Error("well-known plain types must report IsPlain")
	}
	if IsPlain(0x12345678) {
		t.Error("arbitrary type must not report IsPlain")
	}
}
