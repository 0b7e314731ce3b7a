package alloc

import (
	"errors"

	"github.com/joshuapare/kmemkit/internal/buf"
	"github.com/joshuapare/kmemkit/internal/format"
	"github.com/joshuapare/kmemkit/mem"
)

// freeLink is the word stored in the first LinkWordSize bytes of a free page.
// Zero terminates the list; any other value is the next free page's index
// (relative to the memory base) plus one.
type freeLink uint64

const endOfList freeLink = 0

// errCorruptLink means a free page's link word was overwritten.
var errCorruptLink = errors.New("alloc: free list link corrupted")

func (a *Allocator) linkTo(pa mem.PhysAddr) freeLink {
	idx, _ := pa.Index(a.mem.Base())
	return freeLink(idx) + 1
}

// target decodes l into the page it points at.
func (a *Allocator) target(l freeLink) mem.PhysAddr {
	return a.mem.Base() + mem.PhysAddr(l-1)*format.PageSize
}

// push links pa in front of the current head. Caller holds a.mu.
func (a *Allocator) push(pa mem.PhysAddr, page []byte) {
	buf.PutU64LE(page[:format.LinkWordSize], uint64(a.head))
	a.head = a.linkTo(pa)
}

// pop unlinks the head page. Caller holds a.mu.
// A head whose link does not name a managed page is left in place.
func (a *Allocator) pop() (mem.PhysAddr, error) {
	if a.head == endOfList {
		return 0, ErrOutOfMemory
	}
	pa := a.target(a.head)
	next := freeLink(buf.U64LE(a.mem.Page(pa)))
	if next != endOfList && !a.managed(a.target(next)) {
		return pa, errCorruptLink
	}
	a.head = next
	return pa, nil
}
