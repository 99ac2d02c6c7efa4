package gas

import "testing"

func TestGlobPtrNull(t *testing.T) {
	if !NullPtr().IsNull() {
		t.Fatal("NullPtr must be null")
	}
	p := GlobPtr{Unit: 1}
	if p.IsNull() {
		t.Fatal("pointer with non-zero unit must not be null")
	}
	if (GlobPtr{Offset: 1}).IsNull() {
		t.Fatal("pointer with non-zero offset must not be null")
	}
}

func TestGlobPtrArithmetic(t *testing.T) {
	p := GlobPtr{Unit: 2, Team: 1, Segment: 3, Offset: 16}
	q := p.Inc(24)
	if q.Offset != 40 {
		t.Fatalf("Inc: offset = %d, want 40", q.Offset)
	}
	if q.Unit != p.Unit || q.Team != p.Team || q.Segment != p.Segment {
		t.Fatalf("Inc must only change the offset: %v -> %v", p, q)
	}
	r := p.WithUnit(7)
	if r.Unit != 7 || r.Offset != p.Offset {
		t.Fatalf("WithUnit: got %v", r)
	}
}

func TestGlobPtrWireFormat(t *testing.T) {
	p := GlobPtr{Unit: 0x0102, Team: 0x0304, Segment: 0x0506, Flags: 0x0708, Offset: 0x1122334455667788}
	buf := make([]byte, GlobPtrSize)
	p.Encode(buf)

	// Little-endian field order: unit, team, segment, flags, offset.
	want := []byte{
		0x02, 0x01,
		0x04, 0x03,
		0x06, 0x05,
		0x08, 0x07,
		0x88, 0x77, 0x66, 0x55, 0x44, 0x33, 0x22, 0x11,
	}
	for i := range want {
		if buf[i] != want[i] {
			t.Fatalf("byte %d: got 0x%02x, want 0x%02x", i, buf[i], want[i])
		}
	}
	if got := DecodeGlobPtr(buf); got != p {
		t.Fatalf("decode: got %v, want %v", got, p)
	}
}

func TestAllocatorReuse(t *testing.T) {
	a := newAllocator(128)
	off1, err := a.alloc(40)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	off2, err := a.alloc(40)
	if err != nil {
		t.Fatalf("alloc: %v", err)
	}
	if off1 == off2 {
		t.Fatal("allocations must not alias")
	}
	if _, err := a.alloc(64); err == nil {
		t.Fatal("expected exhaustion")
	}
	if err := a.release(off1); err != nil {
		t.Fatalf("release: %v", err)
	}
	if err := a.release(off2); err != nil {
		t.Fatalf("release: %v", err)
	}
	// Coalesced free list serves the full capacity again.
	if _, err := a.alloc(128); err != nil {
		t.Fatalf("alloc after coalesce: %v", err)
	}
	if err := a.release(999); err == nil {
		t.Fatal("expected error for unknown offset")
	}
}
