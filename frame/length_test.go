package frame

import (
	"bytes"
	"errors"
	"testing"
)

func TestNumLengthOctets(t *testing.T) {
	tests := []struct {
		n    uint
		want int
	}{
		{0, 1},
		{1, 1},
		{127, 1},
		{128, 2},
		{16383, 2},
		{16384, 3},
	}
	for _, test := range tests {
		if got := numLengthOctets(test.n); got != test.want {
			t.Errorf("numLengthOctets(%d) = %d, want %d", test.n, got, test.want)
		}
	}
}

func TestLengthRoundTrip(t *testing.T) {
	for _, n := range []uint{0, 1, 63, 127, 128, 129, 300, 16383, 16384, 1 << 20} {
		buf := appendLength(nil, n)
		if len(buf) != numLengthOctets(n) {
			t.Errorf("encoded %d in %d octets, want %d", n, len(buf), numLengthOctets(n))
		}
		got, consumed, err := decodeLength(buf)
		if err != nil {
			t.Fatalf("decodeLength(% x): %v", buf, err)
		}
		if got != n || consumed != len(buf) {
			t.Errorf("decodeLength(% x) = (%d, %d), want (%d, %d)", buf, got, consumed, n, len(buf))
		}
	}
}

func TestLengthFinalOctetMarker(t *testing.T) {
	buf := appendLength(nil, 300)
	for i, octet := range buf {
		final := octet&0x01 != 0
		if final != (i == len(buf)-1) {
			t.Errorf("octet %d of % x: EA bit %v", i, buf, final)
		}
	}
}

func TestLengthTruncated(t *testing.T) {
	// Every octet claims a continuation, but the buffer ends.
	if _, _, err := decodeLength([]byte{0x00, 0x00}); !errors.Is(err, errLengthTruncated) {
		t.Errorf("expected truncation error, got %v", err)
	}
}

func TestLengthOverflowGuard(t *testing.T) {
	// A peer claiming more 7-bit groups than fit in a machine word must
	// produce a decode error, not wrap around.
	hostile := bytes.Repeat([]byte{0xFE}, maxLengthOctets+2)
	if _, _, err := decodeLength(hostile); !errors.Is(err, errLengthOverflow) {
		t.Errorf("expected overflow error, got %v", err)
	}

	// The last permissible octet may only carry the bits that still fit.
	tooWide := bytes.Repeat([]byte{0xFE}, maxLengthOctets-1)
	tooWide = append(tooWide, 0xFF)
	if _, _, err := decodeLength(tooWide); !errors.Is(err, errLengthOverflow) {
		t.Errorf("expected overflow error for % x, got %v", tooWide, err)
	}
}
