package alloc

import (
	"github.com/joshuapare/kmemkit/internal/format"
	"github.com/joshuapare/kmemkit/mem"
)

// FreeBytes returns the number of free bytes. It takes no lock: the value is
// a momentary snapshot for reporting and must not drive allocation decisions.
func (a *Allocator) FreeBytes() uint64 {
	return a.nfree.Load() << format.PageShift
}

// Stats is a point-in-time view of allocator counters. Fields are read
// independently, so under concurrent use they need not add up exactly.
type Stats struct {
	TotalPages    uint64 `json:"total_pages"`    // Pages in the managed range
	FreePages     uint64 `json:"free_pages"`     // Pages on the free list
	AllocCalls    uint64 `json:"alloc_calls"`    // Total Alloc() calls
	AllocFailures uint64 `json:"alloc_failures"` // Alloc() calls that returned ErrOutOfMemory
	FreeCalls     uint64 `json:"free_calls"`     // Free() calls after Init
	Reclaims      uint64 `json:"reclaims"`       // Frees that returned a page to the list
	Retained      uint64 `json:"retained"`       // Frees that left a shared page allocated
}

// AllocatedPages returns TotalPages - FreePages.
func (s Stats) AllocatedPages() uint64 {
	if s.FreePages > s.TotalPages {
		return 0
	}
	return s.TotalPages - s.FreePages
}

// Stats returns the current counters.
func (a *Allocator) Stats() Stats {
	lo, hi := a.ManagedRange()
	return Stats{
		TotalPages:    uint64(hi-lo) >> format.PageShift,
		FreePages:     a.nfree.Load(),
		AllocCalls:    a.stats.allocCalls.Load(),
		AllocFailures: a.stats.allocFailures.Load(),
		FreeCalls:     a.stats.freeCalls.Load(),
		Reclaims:      a.stats.reclaims.Load(),
		Retained:      a.stats.retained.Load(),
	}
}

// ManagedRange returns the managed range [lo, hi) set by Init.
// Both are zero before Init.
func (a *Allocator) ManagedRange() (lo, hi mem.PhysAddr) {
	if !a.Initialized() {
		return 0, 0
	}
	return a.lo, a.hi
}
