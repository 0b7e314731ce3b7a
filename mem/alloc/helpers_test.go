package alloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmemkit/mem"
)

// reservedBytes mimics a kernel image occupying the start of memory: the
// managed range starts at the next page boundary after it.
const reservedBytes = mem.PageSize + 100

// newTestAllocator creates memory with two reserved pages, pages managed
// pages and one trailing page, and returns an initialized allocator over it.
func newTestAllocator(t testing.TB, pages int) *Allocator {
	t.Helper()
	return newTestAllocatorWithConfig(t, pages, nil)
}

func newTestAllocatorWithConfig(t testing.TB, pages int, cfg *Config) *Allocator {
	t.Helper()

	m, err := mem.New(mem.DefaultBase, (pages+3)*mem.PageSize)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, m.Close()) })

	a, err := New(m, cfg)
	require.NoError(t, err)

	// Reserve the first page (plus a partial one) and leave a partial page
	// at the top so both rounding rules are exercised.
	start := m.Base() + reservedBytes
	end := m.Top() - mem.PageSize + 1
	require.NoError(t, a.Init(start, end))

	lo, hi := a.ManagedRange()
	require.Equal(t, m.Base()+2*mem.PageSize, lo)
	require.Equal(t, pages, int((hi-lo)/mem.PageSize))
	return a
}

// requireHalts runs fn and asserts it raised an *InvariantViolation.
func requireHalts(t *testing.T, fn func()) *InvariantViolation {
	t.Helper()

	var v *InvariantViolation
	func() {
		defer func() {
			r := recover()
			require.NotNil(t, r, "expected fatal halt")
			var ok bool
			v, ok = r.(*InvariantViolation)
			require.True(t, ok, "panic value %T is not *InvariantViolation", r)
		}()
		fn()
	}()
	return v
}

// drain allocates until the free list is empty and returns the pages.
func drain(t testing.TB, a *Allocator) []mem.PhysAddr {
	t.Helper()
	var pages []mem.PhysAddr
	for {
		pa, err := a.Alloc()
		if err != nil {
			require.ErrorIs(t, err, ErrOutOfMemory)
			return pages
		}
		pages = append(pages, pa)
	}
}

// requireFilled asserts every byte of b from off onward equals v.
func requireFilled(t *testing.T, b []byte, off int, v byte) {
	t.Helper()
	for i := off; i < len(b); i++ {
		if b[i] != v {
			t.Fatalf("byte %d = %#x, want %#x", i, b[i], v)
		}
	}
}
