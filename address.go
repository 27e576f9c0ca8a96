package memflow

import "fmt"

// Address is an unsigned 64-bit value identifying a byte of either physical
// or virtual memory. The wire representation of a physical and a virtual
// address is identical; call sites distinguish them by context (the
// function signature they appear in), not by a runtime tag.
type Address uint64

// NULL is the zero address.
const NULL Address = 0

// IsNull reports whether a is the zero address.
func (a Address) IsNull() bool { return a == NULL }

// Add returns a+l. Arithmetic wraps on overflow rather than saturating or
// panicking, matching the effect of the plain u64 arithmetic in
// original_source/memflow/src/types/pointer64.rs (see SPEC_FULL.md's Open
// Question resolution).
func (a Address) Add(l Length) Address { return Address(uint64(a) + uint64(l)) }

// Sub returns a-l, wrapping on underflow.
func (a Address) Sub(l Length) Address { return Address(uint64(a) - uint64(l)) }

// Diff returns the distance from b to a (a-b) as a Length; wraps the same
// way Add/Sub do if b > a.
func (a Address) Diff(b Address) Length { return Length(uint64(a) - uint64(b)) }

// AlignDown rounds a down to the nearest multiple of size. size must be a
// power of two.
func (a Address) AlignDown(size Length) Address {
	return Address(uint64(a) &^ (uint64(size) - 1))
}

// AlignUp rounds a up to the nearest multiple of size. size must be a power
// of two.
func (a Address) AlignUp(size Length) Address {
	return Address(uint64(a)+uint64(size)-1) &^ Address(uint64(size)-1)
}

// PageBase returns a truncated to the start of its containing page.
func (a Address) PageBase(pageSize Length) Address { return a.AlignDown(pageSize) }

// PageOffset returns a's offset within its containing page.
func (a Address) PageOffset(pageSize Length) uint64 {
	return uint64(a) & (uint64(pageSize) - 1)
}

func (a Address) String() string { return fmt.Sprintf("0x%x", uint64(a)) }
