package mem

import (
	"errors"
	"fmt"
	"math"

	"github.com/joshuapare/kmemkit/internal/buf"
	"github.com/joshuapare/kmemkit/internal/format"
	"github.com/joshuapare/kmemkit/internal/physmem"
)

// ErrBadLayout indicates a base or size that cannot describe whole pages.
var ErrBadLayout = errors.New("mem: bad memory layout")

// Memory is the simulated physical RAM [Base, Top), backed by one host mapping.
// The backing bytes never move; a page slice stays valid until Close.
type Memory struct {
	base    PhysAddr
	top     PhysAddr
	data    []byte
	release func() error
}

// New reserves size bytes of physical memory starting at base.
// base must be page-aligned and size a positive multiple of PageSize.
func New(base PhysAddr, size int) (*Memory, error) {
	if !base.Aligned() {
		return nil, fmt.Errorf("%w: base %s not page-aligned", ErrBadLayout, base)
	}
	if size <= 0 || size%PageSize != 0 {
		return nil, fmt.Errorf("%w: size %d is not a whole number of pages", ErrBadLayout, size)
	}
	top, ok := buf.AddOverflowSafe64(uint64(base), uint64(size))
	if !ok || top > math.MaxInt64 {
		return nil, fmt.Errorf("%w: base %s + size %d overflows", ErrBadLayout, base, size)
	}

	data, release, err := physmem.Map(size)
	if err != nil {
		return nil, err
	}

	return &Memory{
		base:    base,
		top:     PhysAddr(top),
		data:    data,
		release: release,
	}, nil
}

// Base returns the first physical address.
func (m *Memory) Base() PhysAddr { return m.base }

// Top returns the first physical address past the end of memory.
func (m *Memory) Top() PhysAddr { return m.top }

// Size returns the number of bytes of physical memory.
func (m *Memory) Size() int { return len(m.data) }

// NumPages returns the number of whole pages in [Base, Top).
func (m *Memory) NumPages() int { return len(m.data) >> format.PageShift }

// Contains reports whether the whole page at pa lies inside memory.
func (m *Memory) Contains(pa PhysAddr) bool {
	return pa >= m.base && pa < m.top && m.top-pa >= PageSize
}

// Page returns the bytes of the page at pa, or nil when pa is misaligned,
// out of range, or the memory has been closed.
func (m *Memory) Page(pa PhysAddr) []byte {
	if m.data == nil || !pa.Aligned() || !m.Contains(pa) {
		return nil
	}
	page, ok := buf.Slice(m.data, int(pa-m.base), PageSize)
	if !ok {
		return nil
	}
	return page[:PageSize:PageSize]
}

// Close releases the backing mapping. Subsequent Page calls return nil.
func (m *Memory) Close() error {
	if m == nil || m.data == nil {
		return nil
	}
	m.data = nil
	return m.release()
}
