package memflow

import (
	"github.com/google/btree"
)

// MemoryMapping is one remap entry: the half-open virtual range
// [Base, Base+Size) maps to the half-open real range
// [RealBase, RealBase+Size) (spec.md §3).
type MemoryMapping struct {
	Base     Address
	Size     Length
	RealBase Address
}

func (m MemoryMapping) end() Address { return m.Base.Add(m.Size) }

func mappingLess(a, b MemoryMapping) bool { return a.Base < b.Base }

// ResolvedRange is one piece of an address resolved against a MemoryMap:
// Real is where the underlying device should be addressed, Len is how many
// bytes of the request this piece covers.
type ResolvedRange struct {
	Real Address
	Len  Length
}

// MemoryMap is an ordered, non-overlapping list of MemoryMapping entries. It
// backs PhysicalMemory.SetMemMap (spec.md §4.2) and is also usable directly
// by a connector that wants the same split/overlap logic.
//
// Entries are kept in a github.com/google/btree ordered index so
// PushRemap's overlap check and Resolve's walk are both O(log n + k)
// instead of a linear scan, which matters once a provider's memory map
// holds thousands of guest-physical remap windows.
type MemoryMap struct {
	tree *btree.BTreeG[MemoryMapping]
}

// NewMemoryMap returns an empty MemoryMap.
func NewMemoryMap() *MemoryMap {
	return &MemoryMap{tree: btree.NewG(32, mappingLess)}
}

// PushRemap inserts a new mapping, maintaining order and rejecting a remap
// that would overlap an existing one's [base, base+size) range.
func (mm *MemoryMap) PushRemap(base Address, size Length, realBase Address) error {
	if size == 0 {
		return newErr(KindConfiguration, "cannot push zero-size remap at %s", base)
	}
	newEnd := base.Add(size)

	overlap := false
	mm.tree.DescendLessOrEqual(MemoryMapping{Base: base}, func(item MemoryMapping) bool {
		if item.end() > base {
			overlap = true
		}
		return false
	})
	if !overlap {
		mm.tree.AscendGreaterOrEqual(MemoryMapping{Base: base}, func(item MemoryMapping) bool {
			if item.Base < newEnd {
				overlap = true
			}
			return false
		})
	}
	if overlap {
		return newErr(KindConfiguration, "remap [%s-%s) overlaps an existing mapping", base, newEnd)
	}

	mm.tree.ReplaceOrInsert(MemoryMapping{Base: base, Size: size, RealBase: realBase})
	return nil
}

// Len reports the number of mapping entries.
func (mm *MemoryMap) Len() int { return mm.tree.Len() }

// Resolve splits [addr, addr+length) across the map's entries, returning
// one ResolvedRange per covered entry in ascending address order. Any byte
// of the request that falls outside every mapping aborts the whole resolve
// with ErrKind(KindOutOfBounds) — spec.md §4.2 requires no partial resolve.
func (mm *MemoryMap) Resolve(addr Address, length Length) ([]ResolvedRange, error) {
	if length == 0 {
		return nil, nil
	}
	end := addr.Add(length)
	cur := addr
	var out []ResolvedRange

	for uint64(cur) < uint64(end) {
		var pred MemoryMapping
		found := false
		mm.tree.DescendLessOrEqual(MemoryMapping{Base: cur}, func(item MemoryMapping) bool {
			pred = item
			found = true
			return false
		})
		if !found || uint64(cur) >= uint64(pred.end()) {
			return nil, newErr(KindOutOfBounds, "address %s not covered by any memory mapping", cur)
		}

		segEnd := pred.end()
		if uint64(segEnd) > uint64(end) {
			segEnd = end
		}
		realAddr := pred.RealBase.Add(cur.Diff(pred.Base))
		out = append(out, ResolvedRange{Real: realAddr, Len: segEnd.Diff(cur)})
		cur = segEnd
	}
	return out, nil
}
