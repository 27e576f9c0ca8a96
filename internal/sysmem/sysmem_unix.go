//go:build linux || darwin

// Package sysmem allocates the flat backing store DummyMemory (and any
// other in-process PhysicalMemory provider) reads and writes over.
package sysmem

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Alloc reserves an anonymous, zero-filled region of size bytes, backed by
// a real mmap mapping the way internal/hv/kvm/kvm.go allocates guest RAM
// (unix.Mmap with MAP_ANONYMOUS|MAP_PRIVATE, MADV_MERGEABLE hinted so the
// kernel can dedupe pages across multiple dummy instances in tests).
func Alloc(size uint64) ([]byte, error) {
	if size == 0 {
		return nil, fmt.Errorf("sysmem: cannot allocate zero-size region")
	}
	mem, err := unix.Mmap(
		-1, 0, int(size),
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_ANONYMOUS|unix.MAP_PRIVATE,
	)
	if err != nil {
		return nil, fmt.Errorf("sysmem: mmap %d bytes: %w", size, err)
	}
	_ = unix.Madvise(mem, unix.MADV_MERGEABLE)
	return mem, nil
}

// Free releases a region returned by Alloc.
func Free(mem []byte) error {
	if mem == nil {
		return nil
	}
	if err := unix.Munmap(mem); err != nil {
		return fmt.Errorf("sysmem: munmap: %w", err)
	}
	return nil
}
