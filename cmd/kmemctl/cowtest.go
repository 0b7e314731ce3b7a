package main

import (
	"bytes"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/kmemkit/mem"
	"github.com/joshuapare/kmemkit/mem/alloc"
	"github.com/joshuapare/kmemkit/mem/vm"
)

const heapVA = 0x10000

func init() {
	rootCmd.AddCommand(newCOWTestCmd())
}

func newCOWTestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cowtest",
		Short: "Run copy-on-write fork scenarios",
		Long: `The cowtest command runs fork scenarios against simulated address
spaces sharing pages copy-on-write, and checks that every page returns to
the allocator afterwards.

Example:
  kmemctl cowtest
  kmemctl cowtest --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCOWTest()
		},
	}
}

type cowScenario struct {
	name string
	run  func(a *alloc.Allocator) error
}

var cowScenarios = []cowScenario{
	{"Basic COW", cowBasic},
	{"Multiple pages COW", cowMultiplePages},
	{"Parent modifies after fork", cowParentModify},
	{"Multiple forks", cowManyForks},
	{"COW with fork+exec pattern", cowForkExec},
}

// COWResult is the outcome of one scenario.
type COWResult struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Error  string `json:"error,omitempty"`
}

func runCOWTest() error {
	mc, err := bootMachine()
	if err != nil {
		return err
	}
	defer mc.Close()

	results := make([]COWResult, 0, len(cowScenarios))
	failed := 0
	for i, sc := range cowScenarios {
		if !jsonOut {
			printInfo("%s\n", headerStyle.Render(fmt.Sprintf("Test %d: %s", i+1, sc.name)))
		}
		res := COWResult{Name: sc.name, Passed: true}
		if err := runScenario(mc, sc); err != nil {
			res.Passed = false
			res.Error = err.Error()
			failed++
		}
		results = append(results, res)

		if !jsonOut {
			if res.Passed {
				printInfo("  %s\n\n", passStyle.Render("PASS"))
			} else {
				printInfo("  %s: %s\n\n", failStyle.Render("FAIL"), res.Error)
			}
		}
	}

	if jsonOut {
		if err := printJSON(results); err != nil {
			return err
		}
	} else if failed == 0 {
		printInfo("%s\n", passStyle.Render(fmt.Sprintf("All COW tests passed (%d scenarios)", len(results))))
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d COW scenarios failed", failed, len(results))
	}
	return nil
}

// runScenario runs sc and checks it left the allocator as it found it.
func runScenario(mc *machine, sc cowScenario) error {
	before := mc.pages.FreeBytes()
	if err := sc.run(mc.pages); err != nil {
		return err
	}
	if after := mc.pages.FreeBytes(); after != before {
		return fmt.Errorf("leaked %d bytes (free before %d, after %d)", int64(before)-int64(after), before, after)
	}
	return mc.checkConservation()
}

// newFilledSpace maps n writable pages at heapVA filled with b.
func newFilledSpace(a *alloc.Allocator, n int, b byte) (*vm.AddressSpace, error) {
	as := vm.New(a)
	for i := range n {
		if err := as.MapNew(heapVA+uint64(i)*mem.PageSize, true); err != nil {
			as.Destroy()
			return nil, err
		}
	}
	if err := as.Store(heapVA, bytes.Repeat([]byte{b}, n*mem.PageSize)); err != nil {
		as.Destroy()
		return nil, err
	}
	return as, nil
}

func expectByte(as *vm.AddressSpace, who string, va uint64, want byte) error {
	got, err := as.Load(va, 1)
	if err != nil {
		return err
	}
	if got[0] != want {
		return fmt.Errorf("%s: byte at %#x is %q, want %q", who, va, got[0], want)
	}
	return nil
}

func cowBasic(a *alloc.Allocator) error {
	parent, err := newFilledSpace(a, 1, 'A')
	if err != nil {
		return err
	}
	defer parent.Destroy()

	child, err := parent.Fork()
	if err != nil {
		return err
	}
	defer child.Destroy()

	last := uint64(heapVA + mem.PageSize - 1)
	if err := child.Store(heapVA, []byte{'X'}); err != nil {
		return err
	}
	if err := child.Store(last, []byte{'Y'}); err != nil {
		return err
	}
	if err := expectByte(child, "child", heapVA, 'X'); err != nil {
		return err
	}
	if err := expectByte(child, "child", last, 'Y'); err != nil {
		return err
	}
	printVerbose("  Child: modification OK\n")

	if err := expectByte(parent, "parent", heapVA, 'A'); err != nil {
		return err
	}
	if err := expectByte(parent, "parent", last, 'A'); err != nil {
		return err
	}
	printVerbose("  Parent: data unchanged\n")
	return nil
}

func cowMultiplePages(a *alloc.Allocator) error {
	const pages = 10
	parent, err := newFilledSpace(a, pages, 'B')
	if err != nil {
		return err
	}
	defer parent.Destroy()

	child, err := parent.Fork()
	if err != nil {
		return err
	}
	for i := range pages {
		if err := child.Store(heapVA+uint64(i)*mem.PageSize, []byte{byte('C' + i)}); err != nil {
			child.Destroy()
			return err
		}
	}
	child.Destroy()

	for i := range pages {
		if err := expectByte(parent, "parent", heapVA+uint64(i)*mem.PageSize, 'B'); err != nil {
			return err
		}
	}
	return nil
}

func cowParentModify(a *alloc.Allocator) error {
	parent, err := newFilledSpace(a, 1, 'P')
	if err != nil {
		return err
	}
	defer parent.Destroy()

	child, err := parent.Fork()
	if err != nil {
		return err
	}
	defer child.Destroy()

	if err := parent.Store(heapVA, []byte{'Q'}); err != nil {
		return err
	}
	if err := expectByte(parent, "parent", heapVA, 'Q'); err != nil {
		return err
	}
	return expectByte(child, "child", heapVA, 'P')
}

func cowManyForks(a *alloc.Allocator) error {
	const children = 5
	parent, err := newFilledSpace(a, 1, 'M')
	if err != nil {
		return err
	}
	defer parent.Destroy()

	for i := range children {
		child, err := parent.Fork()
		if err != nil {
			return err
		}
		err = child.Store(heapVA, []byte{byte('0' + i)})
		if err == nil {
			err = expectByte(child, fmt.Sprintf("child %d", i), heapVA, byte('0'+i))
		}
		child.Destroy()
		if err != nil {
			return err
		}
		printVerbose(".")
	}
	printVerbose("\n")
	return expectByte(parent, "parent", heapVA, 'M')
}

func cowForkExec(a *alloc.Allocator) error {
	const pages = 10
	parent, err := newFilledSpace(a, pages, 'X')
	if err != nil {
		return err
	}
	defer parent.Destroy()

	before := a.FreeBytes()
	child, err := parent.Fork()
	if err != nil {
		return err
	}
	if after := a.FreeBytes(); after != before {
		child.Destroy()
		return fmt.Errorf("fork copied %d bytes", int64(before)-int64(after))
	}
	// The child would exec here and drop its address space without writing.
	child.Destroy()
	return nil
}
