// Package dynload loads shared libraries and resolves symbols without
// cgo, generalizing the per-OS purego binding pattern of hypervisor
// backends that load Hypervisor.framework or winhv.dll. Unlike those,
// purego's own Dlopen/Dlsym already abstract over darwin/linux/
// windows, so one Loader implementation covers every connector host
// platform instead of one per OS.
package dynload

import (
	"fmt"

	"github.com/ebitengine/purego"
)

// Loader opens shared libraries and resolves exported symbols. It is an
// interface so the connector inventory's loading contract (version gate,
// name matching, refcounting) can be unit tested against a fake
// implementation without a real .so/.dylib/.dll on disk.
type Loader interface {
	// Dlopen opens path and returns an opaque library handle.
	Dlopen(path string) (uintptr, error)

	// Dlsym resolves symbol within the library identified by handle,
	// returning the address of the symbol (for a data symbol, the address
	// of the variable itself).
	Dlsym(handle uintptr, symbol string) (uintptr, error)

	// Dlclose unloads the library. Callers must not use handle, nor any
	// address obtained from it, afterward.
	Dlclose(handle uintptr) error

	// Call invokes the function at fn with the given arguments using the
	// platform C calling convention, returning its two return registers
	// (most ABIs used here return a status in the first and a pointer in
	// the second).
	Call(fn uintptr, args ...uintptr) (r1, r2 uintptr, err error)
}

// Purego is the production Loader, backed by github.com/ebitengine/purego.
type Purego struct{}

func (Purego) Dlopen(path string) (uintptr, error) {
	h, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return 0, fmt.Errorf("dynload: dlopen %s: %w", path, err)
	}
	return h, nil
}

func (Purego) Dlsym(handle uintptr, symbol string) (uintptr, error) {
	addr, err := purego.Dlsym(handle, symbol)
	if err != nil {
		return 0, fmt.Errorf("dynload: dlsym %s: %w", symbol, err)
	}
	return addr, nil
}

func (Purego) Dlclose(handle uintptr) error {
	if err := purego.Dlclose(handle); err != nil {
		return fmt.Errorf("dynload: dlclose: %w", err)
	}
	return nil
}

func (Purego) Call(fn uintptr, args ...uintptr) (uintptr, uintptr, error) {
	r1, r2, errno := purego.SyscallN(fn, args...)
	if errno != 0 {
		return r1, r2, fmt.Errorf("dynload: call failed: errno %d", errno)
	}
	return r1, r2, nil
}

var _ Loader = Purego{}
