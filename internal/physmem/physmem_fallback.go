//go:build !unix && !windows

package physmem

import "fmt"

// Map allocates size bytes on the Go heap when no OS mapping is available.
func Map(size int) ([]byte, func() error, error) {
	if size <= 0 {
		return nil, nil, fmt.Errorf("physmem: invalid size %d", size)
	}
	return make([]byte, size), func() error { return nil }, nil
}
