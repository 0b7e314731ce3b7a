// Package vm is a minimal model of process address spaces that share
// physical pages copy-on-write. It exercises the allocator's ownership
// contract end to end; it is a caller of mem/alloc, not part of it.
//
// # Overview
//
// An AddressSpace is a page table from virtual page numbers to physical
// pages. Fork shares every page with the child instead of copying it:
// writable pages are write-protected and marked COW in both tables, and the
// page's owner count is raised before the child's mapping is installed.
//
// A later Store to a COW page resolves the write fault:
//
//   - owner count 1: the page is unprotected in place
//   - otherwise: a new page is allocated, the contents copied, this address
//     space's reference to the old page released, and the mapping replaced
//
// Every unmap (Unmap, Destroy, or replacing a COW mapping) releases exactly
// one owner, so counts and mappings stay balanced.
//
//	parent := vm.New(a)
//	_ = parent.MapNew(0x1000, true)
//	_ = parent.Store(0x1000, []byte("A"))
//
//	child, _ := parent.Fork()        // page count 2, both read-only COW
//	_ = child.Store(0x1000, []byte("X")) // child gets its own copy
//	child.Destroy()
//
// # Thread Safety
//
// Each AddressSpace has its own lock; different address spaces may be used
// from different goroutines concurrently.
package vm
