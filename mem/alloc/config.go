package alloc

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joshuapare/kmemkit/internal/format"
	"github.com/joshuapare/kmemkit/internal/logger"
)

// Runtime debug flag for allocation logging - controlled by KMEM_LOG_ALLOC env var.
var logAlloc = os.Getenv("KMEM_LOG_ALLOC") != ""

// Config tunes an Allocator. Zero fields take the DefaultConfig value.
type Config struct {
	// AllocFill is written over a page when Alloc hands it out.
	AllocFill byte

	// FreeFill is written over a page when Free reclaims it.
	// Must differ from AllocFill.
	FreeFill byte

	// Logger receives allocator events. Nil means logger.L.
	Logger *slog.Logger

	// Trace logs every Alloc and Free at debug level. Also enabled by
	// KMEM_LOG_ALLOC.
	Trace bool
}

// DefaultConfig is used when New is passed a nil config.
var DefaultConfig = Config{
	AllocFill: format.AllocFill,
	FreeFill:  format.FreeFill,
}

func (c Config) withDefaults() (Config, error) {
	if c.AllocFill == 0 {
		c.AllocFill = DefaultConfig.AllocFill
	}
	if c.FreeFill == 0 {
		c.FreeFill = DefaultConfig.FreeFill
	}
	if c.AllocFill == c.FreeFill {
		return c, fmt.Errorf("%w: alloc and free fill are both %#x", ErrBadConfig, c.AllocFill)
	}
	c.Trace = c.Trace || logAlloc
	return c, nil
}

func (a *Allocator) logger() *slog.Logger {
	if a.cfg.Logger != nil {
		return a.cfg.Logger
	}
	return logger.L
}
