//go:build !(linux || darwin)

package sysmem

import "fmt"

// Alloc reserves a zero-filled region of size bytes. On platforms without
// an anonymous-mmap syscall wired up here, this falls back to a plain
// heap allocation; callers only rely on it being zero-filled and
// contiguous, which make([]byte, n) already satisfies.
func Alloc(size uint64) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("sysmem: cannot allocate zero-size region")
	}
	return make([]byte, size), nil
}

// Free is a no-op on this platform; the GC reclaims the slice.
func Free(mem []byte) error { return nil }
