package alloc

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmemkit/internal/buf"
	"github.com/joshuapare/kmemkit/internal/format"
	"github.com/joshuapare/kmemkit/mem"
)

// Test_AllocFreeRoundTrip verifies a fresh page has one owner and that a
// freed page is the next one handed out (LIFO reuse).
func Test_AllocFreeRoundTrip(t *testing.T) {
	a := newTestAllocator(t, 8)

	pa, err := a.Alloc()
	require.NoError(t, err)
	require.True(t, pa.Aligned())
	require.Equal(t, 1, a.RefCount(pa))

	a.Free(pa)
	require.Zero(t, a.RefCount(pa))

	again, err := a.Alloc()
	require.NoError(t, err)
	require.Equal(t, pa, again, "free list must be LIFO")
}

// Test_ThreePageScenario walks a pool of exactly three pages to exhaustion
// and back.
func Test_ThreePageScenario(t *testing.T) {
	a := newTestAllocator(t, 3)
	lo, _ := a.ManagedRange()

	seen := map[mem.PhysAddr]bool{}
	var pages []mem.PhysAddr
	for range 3 {
		pa, err := a.Alloc()
		require.NoError(t, err)
		require.False(t, seen[pa], "page %s handed out twice", pa)
		seen[pa] = true
		pages = append(pages, pa)
		require.Equal(t, 1, a.RefCount(pa))
	}

	_, err := a.Alloc()
	require.ErrorIs(t, err, ErrOutOfMemory)

	a.Free(pages[1])
	pa, err := a.Alloc()
	require.NoError(t, err)
	require.Equal(t, pages[1], pa)

	require.Zero(t, a.RefCount(lo-mem.PageSize), "below managed range")
	require.Zero(t, a.RefCount(a.Memory().Base()-mem.PageSize), "below physical memory")
}

// Test_SharedPageRetention verifies a page with two owners survives the
// first Free and is reclaimed by the second.
func Test_SharedPageRetention(t *testing.T) {
	a := newTestAllocator(t, 1)

	pa, err := a.Alloc()
	require.NoError(t, err)
	require.True(t, a.IncRef(pa))
	require.Equal(t, 2, a.RefCount(pa))

	a.Free(pa)
	require.Equal(t, 1, a.RefCount(pa))
	require.Zero(t, a.FreeBytes())
	_, err = a.Alloc()
	require.ErrorIs(t, err, ErrOutOfMemory, "shared page must not return to the pool")

	a.Free(pa)
	require.Zero(t, a.RefCount(pa))
	require.Equal(t, uint64(mem.PageSize), a.FreeBytes())

	again, err := a.Alloc()
	require.NoError(t, err)
	require.Equal(t, pa, again)
}

func Test_ManyOwners(t *testing.T) {
	a := newTestAllocator(t, 2)

	pa, err := a.Alloc()
	require.NoError(t, err)
	const owners = 6
	for range owners - 1 {
		a.IncRef(pa)
	}
	for i := owners; i > 1; i-- {
		require.Equal(t, i, a.RefCount(pa))
		a.Free(pa)
		require.Equal(t, uint64(mem.PageSize), a.FreeBytes(), "only the other page is free")
	}
	a.Free(pa)
	require.Equal(t, uint64(2*mem.PageSize), a.FreeBytes())
}

// Test_DecRefThenFree covers a caller that drops its reference with DecRef
// and then frees: the count is already zero, so Free reclaims.
func Test_DecRefThenFree(t *testing.T) {
	a := newTestAllocator(t, 2)

	pa, err := a.Alloc()
	require.NoError(t, err)
	require.True(t, a.DecRef(pa))
	require.Zero(t, a.RefCount(pa))
	require.True(t, a.DecRef(pa), "decrement at zero is a tracked no-op")
	require.Zero(t, a.RefCount(pa))

	a.Free(pa)
	require.Equal(t, uint64(2*mem.PageSize), a.FreeBytes())
}

func Test_FreeRejectsBadAddresses(t *testing.T) {
	a := newTestAllocator(t, 4)
	lo, hi := a.ManagedRange()

	pa, err := a.Alloc()
	require.NoError(t, err)
	before := a.FreeBytes()

	tests := []struct {
		name   string
		pa     mem.PhysAddr
		reason string
	}{
		{"misaligned", pa + 8, "page-aligned"},
		{"misaligned by one", pa + 1, "page-aligned"},
		{"below managed range", lo - mem.PageSize, "outside managed range"},
		{"below memory", a.Memory().Base() - mem.PageSize, "outside managed range"},
		{"at managed top", hi, "outside managed range"},
		{"above memory", a.Memory().Top() + mem.PageSize, "outside managed range"},
		{"zero", 0, "outside managed range"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := requireHalts(t, func() { a.Free(tt.pa) })
			require.Equal(t, "free", v.Op)
			require.Equal(t, tt.pa, v.Addr)
			require.Contains(t, v.Reason, tt.reason)
			require.ErrorIs(t, v, ErrInvariant)
		})
	}

	require.Equal(t, before, a.FreeBytes(), "rejected frees must not touch the pool")
	require.Equal(t, 1, a.RefCount(pa))
	require.Len(t, drain(t, a), 3)
}

func Test_FreeBeforeInitHalts(t *testing.T) {
	m, err := mem.New(mem.DefaultBase, 4*mem.PageSize)
	require.NoError(t, err)
	defer m.Close()

	a, err := New(m, nil)
	require.NoError(t, err)

	requireHalts(t, func() { a.Free(mem.DefaultBase) })

	_, err = a.Alloc()
	require.ErrorIs(t, err, ErrOutOfMemory)
}

func Test_FillPatterns(t *testing.T) {
	a := newTestAllocator(t, 2)

	pa, err := a.Alloc()
	require.NoError(t, err)
	page := a.Page(pa)
	requireFilled(t, page, 0, format.AllocFill)

	copy(page, "payload")
	a.Free(pa)

	// The link word is free-list bookkeeping; everything after it is junk.
	requireFilled(t, page, format.LinkWordSize, format.FreeFill)
}

func Test_CustomFillPatterns(t *testing.T) {
	a := newTestAllocatorWithConfig(t, 1, &Config{AllocFill: 0xAA, FreeFill: 0xDD})

	pa, err := a.Alloc()
	require.NoError(t, err)
	requireFilled(t, a.Page(pa), 0, 0xAA)

	a.Free(pa)
	requireFilled(t, a.Page(pa), format.LinkWordSize, 0xDD)
}

func Test_NewRejectsEqualFills(t *testing.T) {
	m, err := mem.New(mem.DefaultBase, mem.PageSize)
	require.NoError(t, err)
	defer m.Close()

	_, err = New(m, &Config{AllocFill: 0x07, FreeFill: 0x07})
	require.ErrorIs(t, err, ErrBadConfig)

	_, err = New(m, &Config{FreeFill: format.AllocFill})
	require.ErrorIs(t, err, ErrBadConfig, "zero AllocFill defaults and then collides")
}

// Test_CorruptedFreeListHalts writes through a dangling reference into a
// free page's link word; the next Alloc that reaches it must halt instead
// of handing out an arbitrary address.
func Test_CorruptedFreeListHalts(t *testing.T) {
	a := newTestAllocator(t, 3)

	pa, err := a.Alloc()
	require.NoError(t, err)
	a.Free(pa)

	buf.PutU64LE(a.Page(pa), 0xdeadbeef)

	v := requireHalts(t, func() { _, _ = a.Alloc() })
	require.Equal(t, "alloc", v.Op)
	require.Equal(t, pa, v.Addr)
}

func Test_RefCountOutOfRange(t *testing.T) {
	a := newTestAllocator(t, 2)
	outside := a.Memory().Top() + 10*mem.PageSize

	require.False(t, a.IncRef(outside))
	require.False(t, a.DecRef(outside))
	require.Zero(t, a.RefCount(outside))
	require.Zero(t, a.RefCount(0))
}

func Test_RefsTableCoversMemory(t *testing.T) {
	a := newTestAllocator(t, 2)

	require.Equal(t, a.Memory().Base(), a.Refs().Base())
	require.Equal(t, a.Memory().NumPages(), a.Refs().Len())
}

func Test_TraceLogging(t *testing.T) {
	var out bytes.Buffer
	log := slog.New(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}))
	a := newTestAllocatorWithConfig(t, 1, &Config{Logger: log, Trace: true})

	require.Contains(t, out.String(), "physical memory initialized")

	pa, err := a.Alloc()
	require.NoError(t, err)
	_, err = a.Alloc()
	require.Error(t, err)
	a.Free(pa)

	logged := out.String()
	require.Contains(t, logged, "msg=alloc ")
	require.Contains(t, logged, "alloc failed")
	require.Contains(t, logged, "msg=free ")
	require.Contains(t, logged, "pa="+pa.String())
}

func Test_InvariantViolationError(t *testing.T) {
	v := &InvariantViolation{Op: "free", Addr: 0x80000008, Reason: "address not page-aligned"}
	require.Equal(t, "alloc: free 0x80000008: address not page-aligned", v.Error())
	require.True(t, errors.Is(v, ErrInvariant))
}
