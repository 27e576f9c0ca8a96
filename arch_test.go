package memflow

import "testing"

func TestArchitectureLevelCounts(t *testing.T) {
	cases := []struct {
		name   string
		arch   Architecture
		levels int
		size   int
	}{
		{"x86", NewX86(), 2, 4},
		{"x86_pae", NewX86PAE(), 3, 8},
		{"x86_64", NewX86_64(), 4, 8},
		{"aarch64_4k", NewAArch64(KB(4)), 4, 8},
	}
	for _, c := range cases {
		if got := c.arch.Levels(); got != c.levels {
			t.Errorf("%s: Levels() = %d, want %d", c.name, got, c.levels)
		}
		if c.arch.EntrySize != c.size {
			t.Errorf("%s: EntrySize = %d, want %d", c.name, c.arch.EntrySize, c.size)
		}
	}
}

func TestArchitectureLevelIndexX86_64(t *testing.T) {
	arch := NewX86_64()
	vaddr := Address(0x0000_7F00_0020_3000)
	idx0 := arch.LevelIndex(vaddr, 0)
	idx3 := arch.LevelIndex(vaddr, 3)
	if idx3 != 3 { // bits 20:12 = 0x203000 >> 12 & 0x1FF = 3
		t.Errorf("level 3 index = %d, want 3", idx3)
	}
	if idx0 > 0x1FF {
		t.Errorf("level 0 index %d exceeds 9-bit range", idx0)
	}
}

func TestArchitectureFrameMaskAndPresence(t *testing.T) {
	arch := NewX86_64()
	entry := uint64(0x1234_000) | 0x1 // present, frame 0x1234000
	if !arch.IsPresent(entry) {
		t.Fatal("IsPresent(entry with bit0 set) = false")
	}
	if got := arch.FrameAddress(entry); got != 0x1234000 {
		t.Fatalf("FrameAddress = %s, want 0x1234000", got)
	}
	if arch.IsPresent(entry &^ 0x1) {
		t.Fatal("IsPresent(entry with bit0 clear) = true")
	}
}

func TestArchitectureLargePages(t *testing.T) {
	arch := NewX86_64()
	pdEntry := uint64(0x200000) | 0x1 | 0x80 // present + PS, level 2 (PD)
	if !arch.IsLargePage(pdEntry, 2) {
		t.Fatal("IsLargePage at PD level with PS bit set = false")
	}
	if got := arch.LargePageSize(2); got != MB(2) {
		t.Fatalf("LargePageSize(2) = %s, want 2MB", got)
	}
	pdptEntry := uint64(0x40000000) | 0x1 | 0x80 // level 1 (PDPT), 1GB page
	if !arch.IsLargePage(pdptEntry, 1) {
		t.Fatal("IsLargePage at PDPT level with PS bit set = false")
	}
	if got := arch.LargePageSize(1); got != GB(1) {
		t.Fatalf("LargePageSize(1) = %s, want 1GB", got)
	}
}

func TestNewAArch64GranuleSizes(t *testing.T) {
	for _, pageSize := range []Length{KB(4), KB(16), KB(64)} {
		arch := NewAArch64(pageSize)
		if arch.PageSize != pageSize {
			t.Errorf("granule %s: PageSize = %s", pageSize, arch.PageSize)
		}
		if arch.Levels() != 4 {
			t.Errorf("granule %s: Levels() = %d, want 4", pageSize, arch.Levels())
		}
	}
}
