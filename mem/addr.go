package mem

import (
	"fmt"

	"github.com/joshuapare/kmemkit/internal/format"
)

// PageSize is the size of one physical page in bytes.
const PageSize = format.PageSize

// DefaultBase is the physical address where RAM starts in the default
// machine layout.
const DefaultBase PhysAddr = 0x80000000

// PhysAddr is a physical memory address. A page is identified by the
// address of its first byte.
type PhysAddr uint64

// PageRoundUp returns pa rounded up to the next page boundary.
func PageRoundUp(pa PhysAddr) PhysAddr {
	return PhysAddr(format.AlignPage(uint64(pa)))
}

// PageRoundDown returns pa rounded down to a page boundary.
func PageRoundDown(pa PhysAddr) PhysAddr {
	return PhysAddr(format.TruncPage(uint64(pa)))
}

// Aligned reports whether pa is page-aligned.
func (pa PhysAddr) Aligned() bool {
	return format.IsPageAligned(uint64(pa))
}

// Index returns the page number of pa relative to base. It reports false
// when pa lies below base.
func (pa PhysAddr) Index(base PhysAddr) (int, bool) {
	if pa < base {
		return 0, false
	}
	return int((pa - base) >> format.PageShift), true
}

func (pa PhysAddr) String() string {
	return fmt.Sprintf("%#x", uint64(pa))
}
