package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/joshuapare/kmemkit/mem"
)

func TestStatsCommand(t *testing.T) {
	tests := []struct {
		name        string
		memMB       int
		reserve     int
		alloc       int
		wantErr     bool
		wantContain []string
	}{
		{
			name:        "defaults",
			memMB:       defaultMemMB,
			reserve:     defaultReserve,
			wantContain: []string{"Managed: [0x80101000, 0x80800000)", "Total Pages: 1,791", "Free Bytes: 7,335,936"},
		},
		{
			name:        "after allocations",
			memMB:       1,
			reserve:     0,
			alloc:       10,
			wantContain: []string{"Total Pages: 256", "Free Pages: 246", "Allocated Pages: 10"},
		},
		{
			name:        "exhausted",
			memMB:       1,
			reserve:     0,
			alloc:       300,
			wantContain: []string{"Free Pages: 0", "Alloc Failures: 1"},
		},
		{
			name:    "reserve beyond memory",
			memMB:   1,
			reserve: 2 << 20,
			wantErr: true,
		},
		{
			name:    "no memory",
			memMB:   0,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetFlags(t)
			memMB, reserve, statsAlloc = tt.memMB, tt.reserve, tt.alloc

			output, err := captureOutput(t, runStats)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assertContains(t, output, tt.wantContain)
		})
	}
}

func TestStatsCommandJSON(t *testing.T) {
	resetFlags(t)
	jsonOut = true
	memMB, reserve, statsAlloc = 1, 100, 3

	output, err := captureOutput(t, runStats)
	require.NoError(t, err)

	var st MemoryStats
	decodeJSON(t, output, &st)
	require.Equal(t, "0x80000000", st.MemoryBase)
	require.Equal(t, "0x80001000", st.ManagedLow)
	require.Equal(t, mem.PageSize, st.PageSize)
	require.Equal(t, uint64(255), st.Allocator.TotalPages)
	require.Equal(t, uint64(252), st.Allocator.FreePages)
	require.Equal(t, uint64(252*mem.PageSize), st.FreeBytes)
}

func TestCOWTestCommand(t *testing.T) {
	resetFlags(t)
	verbose = true

	output, err := captureOutput(t, runCOWTest)
	require.NoError(t, err)
	assertContains(t, output, []string{
		"Test 1: Basic COW",
		"Child: modification OK",
		"Test 5: COW with fork+exec pattern",
		"All COW tests passed (5 scenarios)",
	})
	require.NotContains(t, output, "FAIL")
}

func TestCOWTestCommandJSON(t *testing.T) {
	resetFlags(t)
	jsonOut = true

	output, err := captureOutput(t, runCOWTest)
	require.NoError(t, err)

	var results []COWResult
	decodeJSON(t, output, &results)
	require.Len(t, results, len(cowScenarios))
	for _, r := range results {
		require.True(t, r.Passed, "%s: %s", r.Name, r.Error)
	}
}

func TestCOWTestCommandOutOfMemory(t *testing.T) {
	resetFlags(t)
	// Eight managed pages cannot hold the ten-page scenarios.
	memMB = 1
	reserve = (1 << 20) - 8*mem.PageSize

	output, err := captureOutput(t, runCOWTest)
	require.ErrorContains(t, err, "COW scenarios failed")
	assertContains(t, output, []string{"Test 1: Basic COW\n  PASS", "FAIL", "out of memory"})
}

func TestStressCommand(t *testing.T) {
	for _, share := range []bool{true, false} {
		resetFlags(t)
		jsonOut = true
		memMB, reserve = 1, 0
		stressWorkers, stressRounds, stressHold, stressShare = 8, 500, 16, share

		output, err := captureOutput(t, func() error { return runStress(context.Background()) })
		require.NoError(t, err)

		var report StressReport
		decodeJSON(t, output, &report)
		require.True(t, report.Conservation)
		require.Equal(t, report.Allocator.TotalPages, report.Allocator.FreePages)
		require.Equal(t, report.Allocations, report.Allocator.Reclaims)
		if share {
			require.Equal(t, report.Allocations, report.Allocator.Retained)
		} else {
			require.Zero(t, report.Allocator.Retained)
		}
	}
}

func TestStressCommandTinyPool(t *testing.T) {
	resetFlags(t)
	// Four pages for eight workers holding sixteen each: constant exhaustion.
	memMB = 1
	reserve = (1 << 20) - 4*mem.PageSize
	stressWorkers, stressRounds, stressHold = 8, 300, 16

	output, err := captureOutput(t, func() error { return runStress(context.Background()) })
	require.NoError(t, err)
	assertContains(t, output, []string{"Conservation: OK", "Free Bytes: 16,384"})
}

func TestStressCommandRejectsBadFlags(t *testing.T) {
	resetFlags(t)
	stressWorkers = 0
	require.Error(t, runStress(context.Background()))
}

func TestFormatHelpers(t *testing.T) {
	require.Equal(t, "1,234,567", formatNumber(1234567))
	require.Equal(t, "42", formatNumber(uint64(42)))
	require.Equal(t, "512 B", formatBytes(512))
	require.Equal(t, "8.0 MiB", formatBytes(8<<20))
}
