// Package physmem provides platform-specific helpers for reserving the
// memory that backs a simulated physical address space.
//
// On Unix the region is an anonymous private mapping, on Windows it is
// committed with VirtualAlloc; other platforms fall back to a heap slice.
// Keeping the region outside the Go heap means page contents are never
// scanned by the garbage collector.
package physmem
