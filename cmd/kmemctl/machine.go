package main

import (
	"fmt"

	"github.com/joshuapare/kmemkit/internal/logger"
	"github.com/joshuapare/kmemkit/mem"
	"github.com/joshuapare/kmemkit/mem/alloc"
)

const (
	defaultMemMB = 8

	// defaultReserve stands in for the kernel image: the managed range
	// starts at the first page boundary after it.
	defaultReserve = 1<<20 + 100
)

// machine is booted physical memory plus the allocator managing it.
type machine struct {
	mem   *mem.Memory
	pages *alloc.Allocator
}

// bootMachine builds memory from the global flags and initializes the
// allocator over [base+reserve, top).
func bootMachine() (*machine, error) {
	if memMB <= 0 {
		return nil, fmt.Errorf("--mem must be positive, got %d", memMB)
	}
	if reserve < 0 || reserve >= memMB<<20 {
		return nil, fmt.Errorf("--reserve %d must lie inside %d MiB of memory", reserve, memMB)
	}

	m, err := mem.New(mem.DefaultBase, memMB<<20)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve memory: %w", err)
	}

	a, err := alloc.New(m, &alloc.Config{Logger: logger.L, Trace: trace})
	if err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to create allocator: %w", err)
	}

	kernelEnd := m.Base() + mem.PhysAddr(reserve)
	if err := a.Init(kernelEnd, m.Top()); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("failed to initialize allocator: %w", err)
	}

	printVerbose("Booted %s of memory at %s, kernel end %s\n",
		formatBytes(int64(m.Size())), m.Base(), kernelEnd)
	return &machine{mem: m, pages: a}, nil
}

// checkConservation verifies every managed page is either free with no
// owners or allocated with at least one.
func (mc *machine) checkConservation() error {
	lo, hi := mc.pages.ManagedRange()
	base := mc.pages.Refs().Base()
	counts := mc.pages.Refs().Snapshot()

	var owned uint64
	for pa := lo; pa < hi; pa += mem.PageSize {
		idx, _ := pa.Index(base)
		switch c := counts[idx]; {
		case c < 0:
			return fmt.Errorf("page %s has negative count %d", pa, c)
		case c > 0:
			owned++
		}
	}

	s := mc.pages.Stats()
	if owned+s.FreePages != s.TotalPages {
		return fmt.Errorf("conservation violated: %d owned + %d free != %d total",
			owned, s.FreePages, s.TotalPages)
	}
	return nil
}

func (mc *machine) Close() error {
	return mc.mem.Close()
}
