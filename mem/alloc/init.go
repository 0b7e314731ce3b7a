package alloc

import (
	"fmt"

	"github.com/joshuapare/kmemkit/internal/buf"
	"github.com/joshuapare/kmemkit/internal/format"
	"github.com/joshuapare/kmemkit/mem"
)

// Init seeds the free list with every whole page in [start, end). start is
// rounded up to a page boundary and a trailing partial page is skipped. The
// seeded pages become the managed range that Free validates against.
//
// Init must be called exactly once, before any other method.
func (a *Allocator) Init(start, end mem.PhysAddr) error {
	if end < start {
		return fmt.Errorf("%w: end %s before start %s", ErrBadRange, end, start)
	}
	if _, err := buf.CheckRange(uint64(a.mem.Base()), uint64(a.mem.Top()), uint64(start), uint64(end-start)); err != nil {
		return fmt.Errorf("%w: [%s, %s) outside memory [%s, %s): %v",
			ErrBadRange, start, end, a.mem.Base(), a.mem.Top(), err)
	}
	if !a.state.CompareAndSwap(stateNew, stateInitializing) {
		return ErrAlreadyInitialized
	}

	lo := mem.PageRoundUp(start)
	hi := lo
	if end > lo {
		hi = lo + mem.PageRoundDown(end-lo)
	}
	a.lo, a.hi = lo, hi

	a.freeRange(lo, hi)
	a.state.Store(stateReady)

	a.logger().Info("physical memory initialized",
		"start", start,
		"end", end,
		"managed_lo", lo,
		"managed_hi", hi,
		"pages", a.nfree.Load(),
		"free_bytes", a.FreeBytes(),
	)
	return nil
}

// freeRange runs every page of [lo, hi) through the normal free path so the
// fill pattern and free count are uniform from the first page on.
func (a *Allocator) freeRange(lo, hi mem.PhysAddr) {
	for pa := lo; pa < hi && hi-pa >= format.PageSize; pa += format.PageSize {
		a.free(pa)
	}
}

// Initialized reports whether Init has completed.
func (a *Allocator) Initialized() bool {
	return a.state.Load() == stateReady
}
