package descriptor

import (
	"bytes"
	"testing"

	"lsa/internal/page"
)

func TestNewRejectsZeroSize(t *testing.T) {
	if _, err := New(0); err != ErrZeroSize {
		t.Fatalf("expected ErrZeroSize; got %v", err)
	}
}

func TestRoundTrip(t *testing.T) {
	d, err := New(8192)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Destroy()

	in := []byte("hello")
	if err := d.Write(0, len(in), in); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := make([]byte, len(in))
	if err := d.Read(0, len(out), out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(in, out) {
		t.Fatalf("expected round trip %q; got %q", in, out)
	}
}

func TestOutOfRange(t *testing.T) {
	d, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Destroy()

	buf := make([]byte, 1)
	if err := d.Read(16, 1, buf); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange for off+len == size+1; got %v", err)
	}
	if err := d.Read(15, 1, buf); err != nil {
		t.Fatalf("expected off+len == size to succeed; got %v", err)
	}
	// overflow-safety: a huge length must not wrap around the check.
	if err := d.Read(1, int(^uint(0)>>1), buf); err != ErrOutOfRange {
		t.Fatalf("expected ErrOutOfRange for overflowing length; got %v", err)
	}
}

func TestCloneIdentityAndDivergence(t *testing.T) {
	src, err := New(4096)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer src.Destroy()

	if err := src.Write(0, 4, []byte("ABCD")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	clone := Clone(src)
	defer clone.Destroy()

	out := make([]byte, 4)
	if err := clone.Read(0, 4, out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(out) != "ABCD" {
		t.Fatalf("expected clone to see identical bytes at birth; got %q", out)
	}

	if err := clone.Write(0, 1, []byte("X")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var out1, out2 [4]byte
	if err := src.Read(0, 4, out1[:]); err != nil {
		t.Fatalf("Read src: %v", err)
	}
	if err := clone.Read(0, 4, out2[:]); err != nil {
		t.Fatalf("Read clone: %v", err)
	}
	if string(out1[:]) != "ABCD" {
		t.Errorf("expected src unaffected by clone's write; got %q", out1[:])
	}
	if string(out2[:]) != "XBCD" {
		t.Errorf("expected clone's write to stick; got %q", out2[:])
	}
}

func TestCoWLocality(t *testing.T) {
	d, err := New(page.Size * 2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Destroy()

	if err := d.Write(0, 1, []byte("A")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := d.Write(page.Size, 1, []byte("B")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	clone := Clone(d)
	defer clone.Destroy()

	if err := clone.Write(0, 1, []byte("Z")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	out := make([]byte, 1)
	if err := d.Read(page.Size, 1, out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out[0] != 'B' {
		t.Fatalf("expected page 1 untouched by page 0's split; got %q", out)
	}

	// Page 1 must still be shared: both descriptors reference the same
	// Page object, so its refcount should still be 2.
	if got := d.pages[1].RefCount(); got != 2 {
		t.Errorf("expected page 1 still shared (refcount 2); got %d", got)
	}
	// Page 0 must have split: refcounts of 1 on each side.
	if got := d.pages[0].RefCount(); got != 1 {
		t.Errorf("expected page 0 exclusive on src after split; got %d", got)
	}
	if got := clone.pages[0].RefCount(); got != 1 {
		t.Errorf("expected page 0 exclusive on clone after split; got %d", got)
	}

	// d's own page 0 dropped out of clone's pages slice when it split,
	// so clone.Write's final reprotectAll never touches it again; the
	// split itself must have left it fully protected.
	if !d.pages[0].Protected() {
		t.Errorf("expected src's old page 0 to be reprotected after clone's split; it was left open")
	}
}

func TestWriteNoSplitWhenExclusive(t *testing.T) {
	d, err := New(page.Size)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer d.Destroy()

	before := d.pages[0]
	if err := d.Write(0, 4, []byte("data")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if d.pages[0] != before {
		t.Errorf("expected no split on an exclusively-owned page")
	}
}
