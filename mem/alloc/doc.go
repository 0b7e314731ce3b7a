// Package alloc provides the physical page allocator: a lock-guarded free
// list of 4096-byte pages, with per-page owner counts that let one page be
// shared copy-on-write between address spaces.
//
// # Overview
//
// An Allocator is constructed once at startup over a mem.Memory and seeded
// with Init. After that every subsystem calls Alloc and Free, and the
// copy-on-write machinery calls IncRef, DecRef and RefCount, concurrently.
//
//	m, err := mem.New(mem.DefaultBase, 8<<20)
//	if err != nil {
//	    return err
//	}
//	a, err := alloc.New(m, nil)
//	if err != nil {
//	    return err
//	}
//	// Everything below kernelEnd belongs to the kernel image.
//	if err := a.Init(kernelEnd, m.Top()); err != nil {
//	    return err
//	}
//
//	pa, err := a.Alloc() // count(pa) == 1
//	if errors.Is(err, alloc.ErrOutOfMemory) {
//	    // recoverable: fail the request
//	}
//	a.IncRef(pa) // shared with a second owner, count == 2
//	a.Free(pa)   // count == 1, page stays allocated
//	a.Free(pa)   // count == 0, page returns to the free list
//
// # Page States
//
// Every page in the managed range is either free (on the free list, count 0)
// or allocated (off the list, count >= 1), however many owners share it.
// A page only becomes allocated through Alloc and only returns to the free
// list when a Free observes its count reaching zero.
//
// # Debug Fill Patterns
//
// Alloc fills a page with Config.AllocFill (0x05) before returning it and
// Free fills it with Config.FreeFill (0x01) when reclaiming it. Code that
// relies on zeroed memory, or reads a page after freeing it, sees junk.
//
// # Errors
//
// Running out of pages is normal: Alloc returns ErrOutOfMemory. Passing Free
// a misaligned address or one outside the managed range is a caller bug: Free
// panics with *InvariantViolation and the process is expected to halt.
// Refcount operations on untracked addresses are ignored.
//
// # Thread Safety
//
// All methods except Init are safe for concurrent use. Two independent locks
// guard the free list and the refcount table; no operation holds both.
//
// # Logging
//
// Set KMEM_LOG_ALLOC=1 to trace every Alloc and Free at debug level through
// the configured logger.
package alloc
