package buf

import (
	"fmt"
	"math"
)

// AddOverflowSafe64 adds a and b, returning ok = false when the result would
// wrap past math.MaxUint64.
func AddOverflowSafe64(a, b uint64) (uint64, bool) {
	if a > math.MaxUint64-b {
		return 0, false
	}
	return a + b, true
}

// CheckRange validates that [start, start+length) fits inside [lo, hi).
// Returns the exclusive end if valid, or an error describing the specific
// failure (overflow or out of bounds).
//
//	end, err := buf.CheckRange(base, top, start, n)
//	if err != nil {
//	    return fmt.Errorf("mem: %w", err)
//	}
func CheckRange(lo, hi, start, length uint64) (uint64, error) {
	end, ok := AddOverflowSafe64(start, length)
	if !ok {
		return 0, fmt.Errorf("overflow: start=%#x + len=%#x", start, length)
	}
	if start < lo {
		return 0, fmt.Errorf("bounds: start=%#x < low=%#x", start, lo)
	}
	if end > hi {
		return 0, fmt.Errorf("bounds: end=%#x > high=%#x", end, hi)
	}
	return end, nil
}

// Slice returns the sub-slice [off:off+n] if it fits within len(b).
func Slice(b []byte, off, n int) ([]byte, bool) {
	if off < 0 || n < 0 || off > len(b) {
		return nil, false
	}
	if n > math.MaxInt-off {
		return nil, false
	}
	end := off + n
	if end > len(b) {
		return nil, false
	}
	return b[off:end], true
}
