package memflow

import (
	"encoding/binary"
	"testing"
)

// buildIdentityPageTables writes a 4-level x86-64 page table at dtb that
// identity-maps the first 2 MiB of address space (one PML4 entry, one PDPT
// entry, one PD entry, and a single leaf PT with 512 identity entries),
// matching the literal layout in spec.md §8 scenario 1: PML4 at dtb, PDPT
// at dtb+0x1000, PD at dtb+0x2000, PT at dtb+0x3000.
func buildIdentityPageTables(t *testing.T, mem *DummyMemory, dtb Address) {
	t.Helper()
	buf := mem.Bytes()

	const present = 0x3 // present | writable
	pml4 := uint64(dtb)
	pdpt := uint64(dtb) + 0x1000
	pd := uint64(dtb) + 0x2000
	pt := uint64(dtb) + 0x3000

	putEntry := func(tableBase uint64, index int, value uint64) {
		off := tableBase + uint64(index)*8
		binary.LittleEndian.PutUint64(buf[off:off+8], value)
	}

	putEntry(pml4, 0, pdpt|present)
	putEntry(pdpt, 0, pd|present)
	putEntry(pd, 0, pt|present)
	for i := 0; i < 512; i++ {
		frame := uint64(i) * 0x1000
		putEntry(pt, i, frame|present)
	}
}

// clearPresentBit flips the present bit off for the PT entry covering
// vaddr, assuming tables built by buildIdentityPageTables at dtb.
func clearPresentBit(t *testing.T, mem *DummyMemory, dtb, vaddr Address) {
	t.Helper()
	buf := mem.Bytes()
	pt := uint64(dtb) + 0x3000
	index := (uint64(vaddr) >> 12) & 0x1FF
	off := pt + index*8
	entry := binary.LittleEndian.Uint64(buf[off : off+8])
	binary.LittleEndian.PutUint64(buf[off:off+8], entry&^0x1)
}
