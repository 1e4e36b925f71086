package frame

import "testing"

func TestGenerateRequestIDLengthAndCharset(t *testing.T) {
	id, err := GenerateRequestID()
	if err != nil {
		t.Fatalf("GenerateRequestID: %v", err)
	}
	if len(id) != RequestIDLen {
		t.Fatalf("len(id) = %d, want %d", len(id), RequestIDLen)
	}
	for _, b := range []byte(id) {
		if b < 0x21 || b > 0x7E {
			t.Fatalf("byte %#x out of printable-ASCII range", b)
		}
	}
}

func TestWithRequestIDIsIdempotent(t *testing.T) {
	p := New(0x10, []byte("hello"))

	once, err := WithRequestID(p)
	if err != nil {
		t.Fatalf("WithRequestID: %v", err)
	}
	id1, ok := once.RequestID()
	if !ok {
		t.Fatal("expected request id to be present after first injection")
	}

	twice, err := WithRequestID(once)
	if err != nil {
		t.Fatalf("WithRequestID (second call): %v", err)
	}
	id2, ok := twice.RequestID()
	if !ok {
		t.Fatal("expected request id to survive a second call")
	}

	if id1 != id2 {
		t.Errorf("request id changed across idempotent calls: %q != %q", id1, id2)
	}
	if len(twice.Payload) != len(once.Payload) {
		t.Errorf("payload grew on second WithRequestID call: %d != %d", len(twice.Payload), len(once.Payload))
	}
}

func TestRequestIDAbsentByDefault(t *testing.T) {
	p := New(0x10, []byte("no id yet"))
	if _, ok := p.RequestID(); ok {
		t.Error("expected no request id on a freshly built packet")
	}
}
