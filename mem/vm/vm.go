package vm

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/joshuapare/kmemkit/mem"
)

var (
	// ErrNotMapped indicates an access to a virtual page with no mapping.
	ErrNotMapped = errors.New("vm: address not mapped")

	// ErrReadOnly indicates a write to a read-only page that is not COW.
	ErrReadOnly = errors.New("vm: write to read-only page")

	// ErrMisaligned indicates a mapping request for an unaligned address.
	ErrMisaligned = errors.New("vm: address not page-aligned")

	// ErrMapped indicates a mapping request for a page already mapped.
	ErrMapped = errors.New("vm: address already mapped")

	// ErrUntracked indicates a page whose owner count could not be raised.
	ErrUntracked = errors.New("vm: page has no owner count")
)

// PageAllocator is the subset of *alloc.Allocator an address space needs.
type PageAllocator interface {
	Alloc() (mem.PhysAddr, error)
	Free(pa mem.PhysAddr)
	IncRef(pa mem.PhysAddr) bool
	RefCount(pa mem.PhysAddr) int
	Page(pa mem.PhysAddr) []byte
}

// Flags are page table entry permission bits.
type Flags uint8

const (
	FlagValid Flags = 1 << iota
	FlagWrite
	FlagUser
	FlagCOW // write-protected because the page is shared
)

// PTE maps one virtual page to a physical page.
type PTE struct {
	PA    mem.PhysAddr
	Flags Flags
}

// Writable reports whether stores go straight through.
func (p PTE) Writable() bool { return p.Flags&FlagWrite != 0 }

// COW reports whether the page is shared and write-protected.
func (p PTE) COW() bool { return p.Flags&FlagCOW != 0 }

// AddressSpace is one process's page table.
type AddressSpace struct {
	pages PageAllocator

	mu sync.Mutex
	pt map[uint64]PTE // virtual page number -> entry
}

// New creates an empty address space backed by pages.
func New(pages PageAllocator) *AddressSpace {
	return &AddressSpace{
		pages: pages,
		pt:    make(map[uint64]PTE),
	}
}

func vpn(va uint64) uint64 { return va / mem.PageSize }

// MapNew allocates a zeroed page and maps it at va.
func (as *AddressSpace) MapNew(va uint64, writable bool) error {
	if va%mem.PageSize != 0 {
		return fmt.Errorf("%w: %#x", ErrMisaligned, va)
	}

	as.mu.Lock()
	defer as.mu.Unlock()

	if _, ok := as.pt[vpn(va)]; ok {
		return fmt.Errorf("%w: %#x", ErrMapped, va)
	}
	pa, err := as.pages.Alloc()
	if err != nil {
		return fmt.Errorf("vm: map %#x: %w", va, err)
	}
	clear(as.pages.Page(pa))

	flags := FlagValid | FlagUser
	if writable {
		flags |= FlagWrite
	}
	as.pt[vpn(va)] = PTE{PA: pa, Flags: flags}
	return nil
}

// Fork returns a child address space sharing every page of as.
// Writable pages become read-only COW in both parent and child.
func (as *AddressSpace) Fork() (*AddressSpace, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	child := New(as.pages)
	for _, n := range as.sortedVPNs() {
		pte := as.pt[n]
		if pte.Writable() {
			pte.Flags = (pte.Flags &^ FlagWrite) | FlagCOW
			as.pt[n] = pte
		}
		if !as.pages.IncRef(pte.PA) {
			child.destroyLocked()
			return nil, fmt.Errorf("%w: %s", ErrUntracked, pte.PA)
		}
		child.pt[n] = pte
	}
	return child, nil
}

// Store copies data into the address space starting at va, resolving
// copy-on-write faults page by page.
func (as *AddressSpace) Store(va uint64, data []byte) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	for len(data) > 0 {
		n := vpn(va)
		pte, ok := as.pt[n]
		if !ok {
			return fmt.Errorf("%w: %#x", ErrNotMapped, va)
		}
		if !pte.Writable() {
			if !pte.COW() {
				return fmt.Errorf("%w: %#x", ErrReadOnly, va)
			}
			var err error
			if pte, err = as.resolveCOW(n, pte); err != nil {
				return fmt.Errorf("vm: cow fault at %#x: %w", va, err)
			}
		}

		off := va % mem.PageSize
		c := copy(as.pages.Page(pte.PA)[off:], data)
		data = data[c:]
		va += uint64(c)
	}
	return nil
}

// resolveCOW makes the page at n privately writable. Caller holds as.mu.
func (as *AddressSpace) resolveCOW(n uint64, pte PTE) (PTE, error) {
	writable := (pte.Flags | FlagWrite) &^ FlagCOW

	if as.pages.RefCount(pte.PA) == 1 {
		// Last owner: nobody else can observe the write.
		pte.Flags = writable
		as.pt[n] = pte
		return pte, nil
	}

	npa, err := as.pages.Alloc()
	if err != nil {
		return pte, err
	}
	copy(as.pages.Page(npa), as.pages.Page(pte.PA))
	as.pages.Free(pte.PA)

	pte = PTE{PA: npa, Flags: writable}
	as.pt[n] = pte
	return pte, nil
}

// Load reads n bytes starting at va.
func (as *AddressSpace) Load(va uint64, n int) ([]byte, error) {
	as.mu.Lock()
	defer as.mu.Unlock()

	out := make([]byte, 0, n)
	for len(out) < n {
		pte, ok := as.pt[vpn(va)]
		if !ok {
			return nil, fmt.Errorf("%w: %#x", ErrNotMapped, va)
		}
		off := va % mem.PageSize
		chunk := as.pages.Page(pte.PA)[off:]
		if rem := n - len(out); len(chunk) > rem {
			chunk = chunk[:rem]
		}
		out = append(out, chunk...)
		va += uint64(len(chunk))
	}
	return out, nil
}

// Unmap removes the mapping at va and releases this address space's
// reference to the page.
func (as *AddressSpace) Unmap(va uint64) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	pte, ok := as.pt[vpn(va)]
	if !ok {
		return fmt.Errorf("%w: %#x", ErrNotMapped, va)
	}
	delete(as.pt, vpn(va))
	as.pages.Free(pte.PA)
	return nil
}

// Destroy unmaps every page.
func (as *AddressSpace) Destroy() {
	as.mu.Lock()
	defer as.mu.Unlock()
	as.destroyLocked()
}

func (as *AddressSpace) destroyLocked() {
	for n, pte := range as.pt {
		as.pages.Free(pte.PA)
		delete(as.pt, n)
	}
}

// Translate returns the entry mapping va.
func (as *AddressSpace) Translate(va uint64) (PTE, bool) {
	as.mu.Lock()
	defer as.mu.Unlock()
	pte, ok := as.pt[vpn(va)]
	return pte, ok
}

// Len returns the number of mapped pages.
func (as *AddressSpace) Len() int {
	as.mu.Lock()
	defer as.mu.Unlock()
	return len(as.pt)
}

// sortedVPNs returns the mapped page numbers in ascending order. Caller holds as.mu.
func (as *AddressSpace) sortedVPNs() []uint64 {
	vpns := make([]uint64, 0, len(as.pt))
	for n := range as.pt {
		vpns = append(vpns, n)
	}
	sort.Slice(vpns, func(i, j int) bool { return vpns[i] < vpns[j] })
	return vpns
}
