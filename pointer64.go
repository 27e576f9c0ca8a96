package memflow

import "unsafe"

// Pointer64 is an Address tagged with the type it points to. The tag T is a
// phantom type parameter: it carries no runtime storage, and equality
// (Eq/IsNull) ignores it entirely — only At's stride depends on T.
//
// Arithmetic wraps on overflow, matching Address.Add/Sub; see SPEC_FULL.md's
// Open Question resolution. Property tests assert wrapping.
type Pointer64[T any] struct {
	addr Address
}

// NewPointer64 builds a Pointer64[T] from a raw Address.
func NewPointer64[T any](a Address) Pointer64[T] { return Pointer64[T]{addr: a} }

// Pointer64Null returns the null Pointer64[T].
func Pointer64Null[T any]() Pointer64[T] { return Pointer64[T]{addr: NULL} }

// Address returns the underlying Address, discarding the type tag.
func (p Pointer64[T]) Address() Address { return p.addr }

// IsNull reports whether p points at address zero.
func (p Pointer64[T]) IsNull() bool { return p.addr.IsNull() }

// sizeofT returns sizeof(T) via a zero value; T must be a fixed-layout
// ("Pod") type for this to be meaningful, which is this package's implicit
// constraint on T (spec.md §3/§4.6 call this out explicitly for typed reads).
func sizeofT[T any]() uint64 {
	var zero T
	return uint64(unsafe.Sizeof(zero))
}

// At returns a pointer advanced by i elements of T, i.e. addr + i*sizeof(T).
// Matches spec.md §3: Pointer64::at(i).address == a + i·sizeof(T).
func (p Pointer64[T]) At(i int64) Pointer64[T] {
	stride := sizeofT[T]()
	var delta uint64
	if i < 0 {
		delta = uint64(-i) * stride
		return Pointer64[T]{addr: Address(uint64(p.addr) - delta)}
	}
	delta = uint64(i) * stride
	return Pointer64[T]{addr: Address(uint64(p.addr) + delta)}
}

// Eq reports whether p and q point at the same address, ignoring T (which
// is already identical for both operands at compile time) and ignoring any
// phantom state — there is none.
func (p Pointer64[T]) Eq(q Pointer64[T]) bool { return p.addr == q.addr }

// ArrayPointer64 tags an Address as pointing at a contiguous array of T.
// Decay converts it to a Pointer64[T] addressing the first element, the
// conversion spec.md §3 calls out as "decay() converts an array pointer to
// an element pointer".
type ArrayPointer64[T any] struct {
	addr Address
}

// NewArrayPointer64 builds an ArrayPointer64[T] from a raw Address.
func NewArrayPointer64[T any](a Address) ArrayPointer64[T] { return ArrayPointer64[T]{addr: a} }

// Address returns the underlying Address.
func (p ArrayPointer64[T]) Address() Address { return p.addr }

// IsNull reports whether p points at address zero.
func (p ArrayPointer64[T]) IsNull() bool { return p.addr.IsNull() }

// Decay returns a Pointer64[T] addressing the first element of the array.
func (p ArrayPointer64[T]) Decay() Pointer64[T] { return Pointer64[T]{addr: p.addr} }
