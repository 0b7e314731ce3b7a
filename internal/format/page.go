// Package format holds the low-level layout constants shared by the physical
// memory packages: page geometry, alignment helpers and the debug fill bytes
// written into pages as they change state.
package format

const (
	// PageShift is log2(PageSize).
	PageShift = 12

	// PageSize is the size of one physical page in bytes. It is the sole
	// allocation granularity.
	PageSize = 1 << PageShift

	// PageMask is the bitmask used for aligning to page boundaries (PageSize - 1).
	PageMask = PageSize - 1

	// LinkWordSize is the number of leading bytes of a free page that hold
	// the free-list link.
	LinkWordSize = 8
)

const (
	// AllocFill is written over every byte of a page when it is handed out,
	// so callers that assume zeroed memory fail loudly.
	AllocFill byte = 0x05

	// FreeFill is written over every byte of a page when it is reclaimed,
	// so reads through a dangling reference return junk.
	FreeFill byte = 0x01
)

// AlignPage returns n aligned up to the next page boundary.
//
// Example:
//
//	AlignPage(1)    = 4096
//	AlignPage(4096) = 4096
//	AlignPage(4097) = 8192
func AlignPage(n uint64) uint64 {
	return (n + PageMask) &^ PageMask
}

// TruncPage returns n aligned down to a page boundary.
//
// Example:
//
//	TruncPage(4095) = 0
//	TruncPage(4097) = 4096
func TruncPage(n uint64) uint64 {
	return n &^ PageMask
}

// IsPageAligned reports whether n sits on a page boundary.
func IsPageAligned(n uint64) bool {
	return n&PageMask == 0
}

// Fill sets every byte of b to v.
func Fill(b []byte, v byte) {
	if len(b) == 0 {
		return
	}
	b[0] = v
	for filled := 1; filled < len(b); filled *= 2 {
		copy(b[filled:], b[:filled])
	}
}
