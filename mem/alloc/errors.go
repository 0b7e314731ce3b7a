package alloc

import (
	"errors"
	"fmt"

	"github.com/joshuapare/kmemkit/mem"
)

var (
	// ErrOutOfMemory indicates that the free list is empty.
	ErrOutOfMemory = errors.New("alloc: out of memory")

	// ErrAlreadyInitialized indicates a second call to Init.
	ErrAlreadyInitialized = errors.New("alloc: already initialized")

	// ErrBadRange indicates an Init range that is inverted or outside physical memory.
	ErrBadRange = errors.New("alloc: bad range")

	// ErrBadConfig indicates unusable fill patterns.
	ErrBadConfig = errors.New("alloc: bad config")

	// ErrInvariant is wrapped by every InvariantViolation.
	ErrInvariant = errors.New("alloc: invariant violation")
)

// InvariantViolation is the panic value raised when a caller breaks the
// allocator's contract. It is not meant to be recovered outside tests.
type InvariantViolation struct {
	Op     string
	Addr   mem.PhysAddr
	Reason string
}

func (v *InvariantViolation) Error() string {
	return fmt.Sprintf("alloc: %s %s: %s", v.Op, v.Addr, v.Reason)
}

func (v *InvariantViolation) Unwrap() error { return ErrInvariant }

// halt logs the violation and panics with it.
func (a *Allocator) halt(op string, pa mem.PhysAddr, reason string) {
	v := &InvariantViolation{Op: op, Addr: pa, Reason: reason}
	a.logger().Error("invariant violation", "op", op, "pa", pa, "reason", reason)
	panic(v)
}
