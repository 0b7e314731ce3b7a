// Package refcnt tracks how many owners each physical page has.
//
// # Overview
//
// A Table holds one counter per page in a fixed physical range. A count of
// zero means the page is free; one means a single owner; anything higher
// means the page is shared copy-on-write between address spaces.
//
// The table has its own lock, independent of the allocator's, so a
// copy-on-write fault that only inspects or bumps a count never contends
// with allocation traffic.
//
// # Out-of-range Addresses
//
// Addresses outside the table are not an error here. Inc and Dec ignore
// them and report tracked=false; Get returns 0.
//
// # Contract With Callers
//
// Any caller that maps one physical page into a second owner instead of
// copying it must call Inc before installing that mapping, and every later
// unmap by any owner must be paired with exactly one release. Nothing
// corrects drift between counts and mappings.
//
// # Thread Safety
//
// All methods are safe for concurrent use.
package refcnt
