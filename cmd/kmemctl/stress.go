package main

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/joshuapare/kmemkit/mem"
	"github.com/joshuapare/kmemkit/mem/alloc"
)

var (
	stressWorkers int
	stressRounds  int
	stressHold    int
	stressShare   bool
)

func init() {
	cmd := newStressCmd()
	cmd.Flags().IntVar(&stressWorkers, "workers", runtime.GOMAXPROCS(0), "Concurrent workers")
	cmd.Flags().IntVar(&stressRounds, "rounds", 10000, "Alloc/free rounds per worker")
	cmd.Flags().IntVar(&stressHold, "hold", 8, "Pages each worker holds before releasing")
	cmd.Flags().BoolVar(&stressShare, "share", true, "Share every page with a second owner before releasing it")
	rootCmd.AddCommand(cmd)
}

func newStressCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stress",
		Short: "Hammer the allocator from concurrent workers",
		Long: `The stress command runs concurrent workers that allocate pages, stamp
them, optionally share them with a second owner, verify the stamp and free
them. Afterwards it checks that every page is back on the free list with
no owners.

Example:
  kmemctl stress
  kmemctl stress --workers 16 --rounds 100000 --hold 32
  kmemctl stress --mem 1 --share=false --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStress(cmd.Context())
		},
	}
}

// StressReport summarizes a stress run.
type StressReport struct {
	Workers      int           `json:"workers"`
	Rounds       int           `json:"rounds"`
	Allocations  uint64        `json:"allocations"`
	OutOfMemory  uint64        `json:"out_of_memory"`
	Duration     time.Duration `json:"duration_ns"`
	FreeBytes    uint64        `json:"free_bytes"`
	Allocator    alloc.Stats   `json:"allocator"`
	Conservation bool          `json:"conservation"`
}

func runStress(ctx context.Context) error {
	if stressWorkers <= 0 || stressRounds <= 0 || stressHold <= 0 {
		return errors.New("--workers, --rounds and --hold must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	mc, err := bootMachine()
	if err != nil {
		return err
	}
	defer mc.Close()

	var allocs, ooms atomic.Uint64
	start := time.Now()

	g, ctx := errgroup.WithContext(ctx)
	for w := range stressWorkers {
		g.Go(func() error {
			return stressWorker(ctx, mc.pages, uint64(w+1), &allocs, &ooms)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	report := StressReport{
		Workers:     stressWorkers,
		Rounds:      stressRounds,
		Allocations: allocs.Load(),
		OutOfMemory: ooms.Load(),
		Duration:    time.Since(start),
		FreeBytes:   mc.pages.FreeBytes(),
		Allocator:   mc.pages.Stats(),
	}
	consErr := mc.checkConservation()
	if consErr == nil && report.Allocator.FreePages != report.Allocator.TotalPages {
		consErr = fmt.Errorf("%d pages still allocated after all workers released",
			report.Allocator.AllocatedPages())
	}
	report.Conservation = consErr == nil

	if jsonOut {
		if err := printJSON(report); err != nil {
			return err
		}
	} else {
		printInfo("\n%s\n", headerStyle.Render("Stress Results:"))
		printInfo("  Workers: %d x %s rounds\n", report.Workers, formatNumber(report.Rounds))
		printInfo("  Allocations: %s\n", formatNumber(report.Allocations))
		printInfo("  Out of memory: %s\n", formatNumber(report.OutOfMemory))
		printInfo("  Shared frees retained: %s\n", formatNumber(report.Allocator.Retained))
		printInfo("  Duration: %s\n", report.Duration.Round(time.Millisecond))
		printInfo("  Free Bytes: %s\n", formatNumber(report.FreeBytes))
		if report.Conservation {
			printInfo("  Conservation: %s\n", passStyle.Render("OK"))
		}
	}
	if consErr != nil {
		return fmt.Errorf("stress: %w", consErr)
	}
	return nil
}

func stressWorker(ctx context.Context, pages *alloc.Allocator, stamp uint64, allocs, ooms *atomic.Uint64) error {
	held := make([]mem.PhysAddr, 0, stressHold)
	release := func() error {
		for _, pa := range held {
			if got := binary.LittleEndian.Uint64(pages.Page(pa)); got != stamp {
				return fmt.Errorf("worker %d: page %s overwritten with stamp %d", stamp, pa, got)
			}
			if stressShare {
				// A second owner maps the page, then both unmap.
				pages.IncRef(pa)
				pages.Free(pa)
				if n := pages.RefCount(pa); n != 1 {
					return fmt.Errorf("worker %d: page %s has %d owners after shared release", stamp, pa, n)
				}
			}
			pages.Free(pa)
		}
		held = held[:0]
		return nil
	}

	for range stressRounds {
		if err := ctx.Err(); err != nil {
			_ = release()
			return err
		}

		pa, err := pages.Alloc()
		if errors.Is(err, alloc.ErrOutOfMemory) {
			ooms.Add(1)
			if err := release(); err != nil {
				return err
			}
			runtime.Gosched()
			continue
		}
		allocs.Add(1)
		binary.LittleEndian.PutUint64(pages.Page(pa), stamp)
		held = append(held, pa)

		if len(held) == stressHold {
			if err := release(); err != nil {
				return err
			}
		}
	}
	return release()
}
