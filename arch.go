package memflow

import "math/bits"

// ArchKind names one of the supported CPU paging schemes (spec.md §3's
// tagged union {X86{bits, pae}, AArch64{page_size}}).
type ArchKind int

const (
	ArchX86 ArchKind = iota
	ArchX86PAE
	ArchX86_64
	ArchAArch64
)

func (k ArchKind) String() string {
	switch k {
	case ArchX86:
		return "x86"
	case ArchX86PAE:
		return "x86_pae"
	case ArchX86_64:
		return "x86_64"
	case ArchAArch64:
		return "aarch64"
	default:
		return "unknown"
	}
}

// Architecture is a tagged union over the supported paging schemes plus the
// small "walk" vtable spec.md §9's Design Notes call for: page size, address
// width and per-level index extraction, kept as plain fields/funcs rather
// than an interface hierarchy so adding an architecture never requires a new
// type, only a new constructor.
type Architecture struct {
	Kind ArchKind

	// PointerBits is the guest pointer width (32 or 64).
	PointerBits int

	// PageSize is the architecture's default (smallest) page size.
	PageSize Length

	// EntrySize is the byte width of one page-table entry (4 or 8).
	EntrySize int

	// levelShift[i]/levelMask[i] extract the index for paging level i (0 =
	// top level, closest to the DTB) from a virtual address:
	//   index = (vaddr >> levelShift[i]) & levelMask[i]
	levelShift []uint
	levelMask  []uint64

	// frameMask isolates the physical frame bits of a page-table entry,
	// i.e. spec.md §3's "physical-address mask".
	frameMask uint64

	// presentBit and largePageBit classify one raw PTE value.
	presentBit   func(entry uint64) bool
	largePageBit func(entry uint64, level int) bool

	// largePageSize reports the region size an entry at level covers when
	// its large-page bit is set; level counts 0 (top) upward.
	largePageSize func(level int) Length
}

// Levels returns the number of paging levels walked from the DTB to a leaf
// PTE.
func (a Architecture) Levels() int { return len(a.levelShift) }

// LevelIndex extracts the table index for vaddr at the given paging level
// (0 = top level).
func (a Architecture) LevelIndex(vaddr Address, level int) uint64 {
	return (uint64(vaddr) >> a.levelShift[level]) & a.levelMask[level]
}

// FrameAddress isolates the physical frame bits from a raw page-table entry.
func (a Architecture) FrameAddress(entry uint64) Address {
	return Address(entry & a.frameMask)
}

// IsPresent reports whether entry's present bit is set.
func (a Architecture) IsPresent(entry uint64) bool { return a.presentBit(entry) }

// IsLargePage reports whether entry at the given level is a large-page
// (leaf-before-the-last-level) entry.
func (a Architecture) IsLargePage(entry uint64, level int) bool {
	return a.largePageBit(entry, level)
}

// LargePageSize reports the mapped region size when an entry at level is a
// large page.
func (a Architecture) LargePageSize(level int) Length { return a.largePageSize(level) }

// buildLevels derives per-level shift/mask tables from the page offset bit
// count and a top-to-bottom list of per-level index bit widths.
func buildLevels(offsetBits int, indexBits []int) ([]uint, []uint64) {
	n := len(indexBits)
	shift := make([]uint, n)
	mask := make([]uint64, n)
	acc := offsetBits
	for i := n - 1; i >= 0; i-- {
		shift[i] = uint(acc)
		mask[i] = (1 << uint(indexBits[i])) - 1
		acc += indexBits[i]
	}
	return shift, mask
}

const x86x64FrameMask = 0x000F_FFFF_FFFF_F000

func x86PresentBit(entry uint64) bool { return entry&0x1 != 0 }

// NewX86 returns the legacy 32-bit non-PAE paging descriptor: 2 levels
// (page directory, page table), 4-byte entries, 10-bit indices, 4KB pages,
// with 4MB large pages selectable at the directory level via the PS bit
// (bit 7).
func NewX86() Architecture {
	shift, mask := buildLevels(12, []int{10, 10})
	return Architecture{
		Kind:         ArchX86,
		PointerBits:  32,
		PageSize:     kb(4),
		EntrySize:    4,
		levelShift:   shift,
		levelMask:    mask,
		frameMask:    0xFFFF_F000,
		presentBit:   x86PresentBit,
		largePageBit: func(entry uint64, level int) bool { return level == 0 && entry&0x80 != 0 },
		largePageSize: func(level int) Length {
			if level == 0 {
				return mb(4)
			}
			return 0
		},
	}
}

// NewX86PAE returns the 32-bit PAE paging descriptor: 3 levels (a 4-entry
// PDPT, page directory, page table), 8-byte entries, 9-bit indices below
// the 2-bit PDPT index, 4KB pages, with 2MB large pages selectable at the
// page-directory level.
func NewX86PAE() Architecture {
	shift, mask := buildLevels(12, []int{2, 9, 9})
	return Architecture{
		Kind:         ArchX86PAE,
		PointerBits:  32,
		PageSize:     kb(4),
		EntrySize:    8,
		levelShift:   shift,
		levelMask:    mask,
		frameMask:    x86x64FrameMask,
		presentBit:   x86PresentBit,
		largePageBit: func(entry uint64, level int) bool { return level == 1 && entry&0x80 != 0 },
		largePageSize: func(level int) Length {
			if level == 1 {
				return mb(2)
			}
			return 0
		},
	}
}

// NewX86_64 returns the long-mode 4-level paging descriptor (PML4, PDPT, PD,
// PT), 8-byte entries, 9-bit indices, 4KB pages, with 1GB large pages at the
// PDPT level and 2MB large pages at the PD level.
func NewX86_64() Architecture {
	shift, mask := buildLevels(12, []int{9, 9, 9, 9})
	return Architecture{
		Kind:         ArchX86_64,
		PointerBits:  64,
		PageSize:     kb(4),
		EntrySize:    8,
		levelShift:   shift,
		levelMask:    mask,
		frameMask:    x86x64FrameMask,
		presentBit:   x86PresentBit,
		largePageBit: func(entry uint64, level int) bool { return (level == 1 || level == 2) && entry&0x80 != 0 },
		largePageSize: func(level int) Length {
			switch level {
			case 1:
				return gb(1)
			case 2:
				return mb(2)
			default:
				return 0
			}
		},
	}
}

// NewAArch64 returns the VMSAv8-64 paging descriptor for the given granule
// (translation page) size: 4KB, 16KB or 64KB. Index width is derived as
// log2(pageSize/entrySize), matching the real hardware's per-granule index
// width; level count is fixed at 4 for all granules, a simplification (real
// 16KB/64KB granules use an abbreviated top level).
// Block (large-page) entries are selectable at any level above the last.
func NewAArch64(pageSize Length) Architecture {
	offsetBits := bits.Len64(uint64(pageSize)) - 1
	indexBits := offsetBits - 3 // log2(pageSize/8)
	levels := 4
	idx := make([]int, levels)
	for i := range idx {
		idx[i] = indexBits
	}
	shift, mask := buildLevels(offsetBits, idx)
	return Architecture{
		Kind:        ArchAArch64,
		PointerBits: 64,
		PageSize:    pageSize,
		EntrySize:   8,
		levelShift:  shift,
		levelMask:   mask,
		frameMask:   x86x64FrameMask,
		// Descriptor bit 0 is "valid"; present means non-zero and valid.
		presentBit: func(entry uint64) bool { return entry&0x1 != 0 },
		// At a non-last level, bit 1 set means "table" (walk continues);
		// bit 1 clear means "block" (large page). The last level is never
		// a large page itself since it has no further level below it.
		largePageBit: func(entry uint64, level int) bool {
			return level != levels-1 && entry&0x2 == 0
		},
		largePageSize: func(level int) Length {
			if level == levels-1 {
				return 0
			}
			remaining := levels - 1 - level
			return Length(uint64(pageSize) << uint(remaining*indexBits))
		},
	}
}
