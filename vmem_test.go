package memflow

import (
	"errors"
	"testing"
)

// TestVirtualMemoryPartialResult builds a 2-page read where the first page
// is mapped and the second page's PT entry has its present bit cleared,
// expecting a *PartialResult reporting the first page's worth of bytes
// succeeded before the failure.
func TestVirtualMemoryPartialResult(t *testing.T) {
	mem, err := NewDummyMemory(MB(16))
	if err != nil {
		t.Fatalf("NewDummyMemory: %v", err)
	}
	defer mem.Close()

	dtb := Address(0x1000)
	buildIdentityPageTables(t, mem, dtb)
	clearPresentBit(t, mem, dtb, Address(0x6000))

	arch := NewX86_64()
	vm := NewVirtualMemory(NewTranslator(mem), mem, arch, dtb)

	buf := make([]byte, int(arch.PageSize)*2)
	err = vm.ReadRaw(Address(0x5000), buf)
	if err == nil {
		t.Fatal("ReadRaw across an unmapped second page returned nil error")
	}

	var partial *PartialResult
	if !errors.As(err, &partial) {
		t.Fatalf("err = %v (%T), want *PartialResult", err, err)
	}
	if partial.BytesSucceeded != int(arch.PageSize) {
		t.Fatalf("BytesSucceeded = %d, want %d", partial.BytesSucceeded, arch.PageSize)
	}
	if !errors.Is(partial.Err, ErrKind(KindPageNotPresent)) {
		t.Fatalf("partial.Err = %v, want KindPageNotPresent", partial.Err)
	}
}

func TestVirtualMemoryReadWriteWithinOnePage(t *testing.T) {
	mem, err := NewDummyMemory(MB(16))
	if err != nil {
		t.Fatalf("NewDummyMemory: %v", err)
	}
	defer mem.Close()

	dtb := Address(0x1000)
	buildIdentityPageTables(t, mem, dtb)
	arch := NewX86_64()
	vm := NewVirtualMemory(NewTranslator(mem), mem, arch, dtb)

	want := []byte{0xAA, 0xBB, 0xCC, 0xDD}
	if err := vm.WriteRaw(Address(0x5100), want); err != nil {
		t.Fatalf("WriteRaw: %v", err)
	}
	got := make([]byte, len(want))
	if err := vm.ReadRaw(Address(0x5100), got); err != nil {
		t.Fatalf("ReadRaw: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestVirtualMemoryCrossPageSplit(t *testing.T) {
	mem, err := NewDummyMemory(MB(16))
	if err != nil {
		t.Fatalf("NewDummyMemory: %v", err)
	}
	defer mem.Close()

	dtb := Address(0x1000)
	buildIdentityPageTables(t, mem, dtb)
	arch := NewX86_64()
	vm := NewVirtualMemory(NewTranslator(mem), mem, arch, dtb)

	// Straddles the 0x6000 page boundary.
	addr := Address(0x5FFE)
	want := []byte{1, 2, 3, 4}
	if err := vm.WriteRaw(addr, want); err != nil {
		t.Fatalf("WriteRaw across page boundary: %v", err)
	}
	got := make([]byte, len(want))
	if err := vm.ReadRaw(addr, got); err != nil {
		t.Fatalf("ReadRaw across page boundary: %v", err)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
