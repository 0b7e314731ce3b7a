package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/kmemkit/internal/logger"
)

var (
	// Global flags
	verbose  bool
	quiet    bool
	jsonOut  bool
	logLevel string
	memMB    int
	reserve  int
	trace    bool
)

var rootCmd = &cobra.Command{
	Use:   "kmemctl",
	Short: "Exercise a copy-on-write physical page allocator",
	Long: `kmemctl boots a simulated physical memory, seeds the page allocator
from the end of a reserved "kernel image" region to the top of memory, and
runs diagnostics, copy-on-write scenarios and concurrent stress tests
against it.`,
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setupLogging()
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().
		BoolVarP(&quiet, "quiet", "q", false, "Suppress all output except errors")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log to stderr at this level (debug, info, warn, error)")
	rootCmd.PersistentFlags().IntVar(&memMB, "mem", defaultMemMB, "Physical memory size in MiB")
	rootCmd.PersistentFlags().IntVar(&reserve, "reserve", defaultReserve, "Bytes reserved below the managed range")
	rootCmd.PersistentFlags().BoolVar(&trace, "trace", false, "Log every alloc and free at debug level")
}

func execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setupLogging enables the global logger when --log-level, --verbose or --trace is set.
func setupLogging() error {
	if logLevel == "" && !verbose && !trace {
		logger.Init(logger.Options{Enabled: false})
		return nil
	}
	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return err
	}
	if trace || (verbose && logLevel == "") {
		level = slog.LevelDebug
	}
	logger.Init(logger.Options{Enabled: true, Output: os.Stderr, Level: level, JSON: jsonOut})
	return nil
}

// Helper functions for output

// printInfo prints an info message if not in quiet mode
func printInfo(format string, args ...interface{}) {
	if !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printVerbose prints a verbose message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if verbose && !quiet {
		fmt.Fprintf(os.Stdout, format, args...)
	}
}

// printJSON outputs data as JSON
func printJSON(v interface{}) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
