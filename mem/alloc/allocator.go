package alloc

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/kmemkit/internal/format"
	"github.com/joshuapare/kmemkit/mem"
	"github.com/joshuapare/kmemkit/mem/refcnt"
)

const (
	stateNew int32 = iota
	stateInitializing
	stateReady
)

// Allocator hands out and reclaims physical pages.
//
// Two locks, never held together:
//   - mu guards the free list head and the free page count
//   - the refcount table guards its own counts
type Allocator struct {
	mem  *mem.Memory
	refs *refcnt.Table
	cfg  Config

	state atomic.Int32

	// Managed range [lo, hi). Written once by Init.
	lo mem.PhysAddr
	hi mem.PhysAddr

	mu   sync.Mutex
	head freeLink

	// nfree is only modified under mu, but read without it by FreeBytes.
	nfree atomic.Uint64

	stats allocatorStats
}

// allocatorStats holds internal allocator counters.
type allocatorStats struct {
	allocCalls    atomic.Uint64 // Total Alloc() calls
	allocFailures atomic.Uint64 // Alloc() calls that found the list empty
	freeCalls     atomic.Uint64 // Total Free() calls after Init
	reclaims      atomic.Uint64 // Frees that returned a page to the list
	retained      atomic.Uint64 // Frees that left the page with other owners
}

// New creates an allocator over m with an empty free list and a refcount
// table covering all of m. Call Init before anything else.
//
// Parameters:
//   - m: physical memory to manage
//   - cfg: fill patterns and logging (use nil for DefaultConfig)
func New(m *mem.Memory, cfg *Config) (*Allocator, error) {
	if cfg == nil {
		cfg = &DefaultConfig
	}
	c, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Allocator{
		mem:  m,
		refs: refcnt.New(m.Base(), m.Top()),
		cfg:  c,
	}, nil
}

// Alloc removes a page from the free list, fills it with Config.AllocFill
// and sets its owner count to 1. It returns ErrOutOfMemory when no page is
// free.
func (a *Allocator) Alloc() (mem.PhysAddr, error) {
	a.stats.allocCalls.Add(1)

	a.mu.Lock()
	pa, err := a.pop()
	if err == nil {
		a.nfree.Add(^uint64(0))
	}
	a.mu.Unlock()

	if errors.Is(err, errCorruptLink) {
		a.halt("alloc", pa, "free list link overwritten while page was free")
	}
	if err != nil {
		a.stats.allocFailures.Add(1)
		if a.cfg.Trace {
			a.logger().Debug("alloc failed", "err", ErrOutOfMemory)
		}
		return 0, ErrOutOfMemory
	}

	format.Fill(a.mem.Page(pa), a.cfg.AllocFill)
	a.refs.Claim(pa)

	if a.cfg.Trace {
		a.logger().Debug("alloc", "pa", pa, "free_pages", a.nfree.Load())
	}
	return pa, nil
}

// Free releases one owner of the page at pa. The page is filled with
// Config.FreeFill and returned to the free list only when no owner remains.
//
// Free panics with *InvariantViolation if pa is not page-aligned or not a
// page of the managed range. Callers must only free pages they got from
// Alloc, or an owner reference they added with IncRef.
func (a *Allocator) Free(pa mem.PhysAddr) {
	if !pa.Aligned() {
		a.halt("free", pa, "address not page-aligned")
	}
	if !a.managed(pa) {
		a.halt("free", pa, "address outside managed range")
	}
	a.stats.freeCalls.Add(1)
	if a.free(pa) {
		a.stats.reclaims.Add(1)
	} else {
		a.stats.retained.Add(1)
	}
}

// free drops one owner and reclaims the page if none remain.
// It reports whether the page went back on the free list.
func (a *Allocator) free(pa mem.PhysAddr) bool {
	if remaining, _ := a.refs.Release(pa); remaining > 0 {
		if a.cfg.Trace {
			a.logger().Debug("free retained", "pa", pa, "refs", remaining)
		}
		return false
	}

	page := a.mem.Page(pa)
	format.Fill(page, a.cfg.FreeFill)

	a.mu.Lock()
	a.push(pa, page)
	a.nfree.Add(1)
	a.mu.Unlock()

	if a.cfg.Trace {
		a.logger().Debug("free", "pa", pa, "free_pages", a.nfree.Load())
	}
	return true
}

// managed reports whether the whole page at pa lies in [lo, hi).
func (a *Allocator) managed(pa mem.PhysAddr) bool {
	return pa >= a.lo && pa < a.hi && a.hi-pa >= format.PageSize
}

// IncRef adds an owner to the page at pa. Call it before mapping an already
// allocated page into a second address space. Reports false, and does
// nothing, when pa is outside physical memory.
func (a *Allocator) IncRef(pa mem.PhysAddr) bool { return a.refs.Inc(pa) }

// DecRef drops an owner from the page at pa without reclaiming it.
// A zero count is left alone.
func (a *Allocator) DecRef(pa mem.PhysAddr) bool { return a.refs.Dec(pa) }

// RefCount returns the owner count of the page at pa, or 0 if untracked.
func (a *Allocator) RefCount(pa mem.PhysAddr) int { return a.refs.Get(pa) }

// Refs returns the refcount table.
func (a *Allocator) Refs() *refcnt.Table { return a.refs }

// Page returns the bytes of the page at pa (nil if pa is not a page of memory).
func (a *Allocator) Page(pa mem.PhysAddr) []byte { return a.mem.Page(pa) }

// Memory returns the physical memory this allocator manages.
func (a *Allocator) Memory() *mem.Memory { return a.mem }
