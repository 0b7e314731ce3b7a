package refcnt

import (
	"sync"

	"github.com/joshuapare/kmemkit/mem"
)

// Table maps each page in [base, top) to its owner count.
type Table struct {
	base mem.PhysAddr
	top  mem.PhysAddr

	mu     sync.Mutex
	counts []int32
}

// New creates a table covering every whole page in [base, top).
// base is rounded down to a page boundary.
func New(base, top mem.PhysAddr) *Table {
	base = mem.PageRoundDown(base)
	n := 0
	if top > base {
		n = int((top - base) / mem.PageSize)
	}
	return &Table{
		base:   base,
		top:    base + mem.PhysAddr(n)*mem.PageSize,
		counts: make([]int32, n),
	}
}

// index returns the table slot for pa. Caller need not hold mu; the slice
// header never changes after New.
func (t *Table) index(pa mem.PhysAddr) (int, bool) {
	idx, ok := pa.Index(t.base)
	if !ok || idx >= len(t.counts) {
		return 0, false
	}
	return idx, true
}

// Inc adds one owner to the page at pa.
func (t *Table) Inc(pa mem.PhysAddr) bool {
	idx, ok := t.index(pa)
	if !ok {
		return false
	}
	t.mu.Lock()
	t.counts[idx]++
	t.mu.Unlock()
	return true
}

// Dec removes one owner from the page at pa. A count already at zero is left
// alone, so a double release cannot drive it negative.
func (t *Table) Dec(pa mem.PhysAddr) bool {
	idx, ok := t.index(pa)
	if !ok {
		return false
	}
	t.mu.Lock()
	if t.counts[idx] > 0 {
		t.counts[idx]--
	}
	t.mu.Unlock()
	return true
}

// Get returns the owner count of the page at pa, or 0 if pa is not tracked.
func (t *Table) Get(pa mem.PhysAddr) int {
	idx, ok := t.index(pa)
	if !ok {
		return 0
	}
	t.mu.Lock()
	n := t.counts[idx]
	t.mu.Unlock()
	return int(n)
}

// Claim sets the page's count to exactly one. The allocator calls it when
// handing out a page.
func (t *Table) Claim(pa mem.PhysAddr) bool {
	idx, ok := t.index(pa)
	if !ok {
		return false
	}
	t.mu.Lock()
	t.counts[idx] = 1
	t.mu.Unlock()
	return true
}

// Release drops one owner (only if the count is positive) and returns the
// count that remains, in a single critical section.
func (t *Table) Release(pa mem.PhysAddr) (remaining int, tracked bool) {
	idx, ok := t.index(pa)
	if !ok {
		return 0, false
	}
	t.mu.Lock()
	if t.counts[idx] > 0 {
		t.counts[idx]--
	}
	remaining = int(t.counts[idx])
	t.mu.Unlock()
	return remaining, true
}

// Base returns the address of the first tracked page.
func (t *Table) Base() mem.PhysAddr { return t.base }

// Top returns the first address past the last tracked page.
func (t *Table) Top() mem.PhysAddr { return t.top }

// Len returns the number of tracked pages.
func (t *Table) Len() int { return len(t.counts) }

// Snapshot returns a copy of every count, indexed by page number from Base.
func (t *Table) Snapshot() []int {
	out := make([]int, len(t.counts))
	t.mu.Lock()
	for i, c := range t.counts {
		out[i] = int(c)
	}
	t.mu.Unlock()
	return out
}
