// Package mem models the physical memory a kernel page allocator manages.
//
// # Overview
//
// Physical memory is a contiguous range of addresses [Base, Top) backed by a
// single host mapping. Pages are fixed 4096-byte, naturally aligned units
// identified by their physical address (PhysAddr).
//
//	m, err := mem.New(mem.DefaultBase, 8<<20)
//	if err != nil {
//	    return err
//	}
//	defer m.Close()
//
//	page := m.Page(mem.DefaultBase + 0x3000) // 4096-byte slice
//
// # Related Packages
//
//   - github.com/joshuapare/kmemkit/mem/refcnt: per-page owner counts
//   - github.com/joshuapare/kmemkit/mem/alloc: free-list page allocator
//   - github.com/joshuapare/kmemkit/mem/vm: copy-on-write address spaces built on the allocator
package mem
