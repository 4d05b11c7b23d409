package encoder

import (
	"bytes"
	"math/rand"
	"testing"
)

func TestAlignerPassesAlignedInputThrough(t *testing.T) {
	a := newAligner(4)
	in := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	out := a.push(in)
	if !bytes.Equal(out, in) {
		t.Fatalf("aligned input changed: %v", out)
	}
	if a.pending() != 0 {
		t.Fatalf("unexpected remainder: %d", a.pending())
	}
}

func TestAlignerCarriesRemainder(t *testing.T) {
	a := newAligner(4)

	out := a.push([]byte{1, 2, 3, 4, 5, 6})
	if !bytes.Equal(out, []byte{1, 2, 3, 4}) {
		t.Fatalf("first push: %v", out)
	}
	if a.pending() != 2 {
		t.Fatalf("pending = %d, want 2", a.pending())
	}

	out = a.push([]byte{7, 8, 9})
	if !bytes.Equal(out, []byte{5, 6, 7, 8}) {
		t.Fatalf("second push: %v", out)
	}
	if a.pending() != 1 {
		t.Fatalf("pending = %d, want 1", a.pending())
	}
}

func TestAlignerFlushZeroPads(t *testing.T) {
	a := newAligner(4)
	a.push([]byte{1, 2, 3})
	tail := a.flush()
	if !bytes.Equal(tail, []byte{1, 2, 3, 0}) {
		t.Fatalf("flush: %v", tail)
	}
	if a.flush() != nil {
		t.Fatal("second flush must return nil")
	}
}

// Property from the design: regardless of chunk boundaries, every push
// yields an aligned payload, and pushes plus the padded flush equal the
// input total rounded up to the next alignment multiple.
func TestAlignerArbitraryBoundaries(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for _, align := range []int{2, 4, 6, 8} {
		a := newAligner(align)
		total := 0
		delivered := 0

		for i := 0; i < 200; i++ {
			n := rng.Intn(3 * align)
			chunk := make([]byte, n)
			total += n

			out := a.push(chunk)
			if len(out)%align != 0 {
				t.Fatalf("align %d: push returned %d bytes", align, len(out))
			}
			delivered += len(out)
		}

		if tail := a.flush(); tail != nil {
			if len(tail) != align {
				t.Fatalf("align %d: flush returned %d bytes", align, len(tail))
			}
			delivered += len(tail)
		}

		want := (total + align - 1) / align * align
		if delivered != want {
			t.Fatalf("align %d: delivered %d, want %d (input %d)", align, delivered, want, total)
		}
	}
}
