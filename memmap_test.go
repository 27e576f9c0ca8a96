package memflow

import (
	"errors"
	"testing"
)

func TestMemoryMapResolveSplitAndOutOfBounds(t *testing.T) {
	mm := NewMemoryMap()
	if err := mm.PushRemap(Address(0), Length(0x1000), Address(0x10000)); err != nil {
		t.Fatalf("PushRemap: %v", err)
	}

	ranges, err := mm.Resolve(Address(0x0800), Length(0x400))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(ranges) != 1 || ranges[0].Real != 0x10800 || ranges[0].Len != 0x400 {
		t.Fatalf("Resolve(0x800, 0x400) = %+v, want one range at 0x10800 len 0x400", ranges)
	}

	_, err = mm.Resolve(Address(0x0F00), Length(0x200))
	if !errors.Is(err, ErrKind(KindOutOfBounds)) {
		t.Fatalf("Resolve spanning the mapping's end: err = %v, want KindOutOfBounds", err)
	}
}

func TestMemoryMapRejectsOverlap(t *testing.T) {
	mm := NewMemoryMap()
	if err := mm.PushRemap(Address(0x1000), Length(0x1000), Address(0)); err != nil {
		t.Fatalf("first PushRemap: %v", err)
	}
	err := mm.PushRemap(Address(0x1800), Length(0x1000), Address(0x4000))
	if !errors.Is(err, ErrKind(KindConfiguration)) {
		t.Fatalf("overlapping PushRemap: err = %v, want KindConfiguration", err)
	}
}

func TestMemoryMapRejectsZeroSize(t *testing.T) {
	mm := NewMemoryMap()
	err := mm.PushRemap(Address(0), Length(0), Address(0))
	if !errors.Is(err, ErrKind(KindConfiguration)) {
		t.Fatalf("zero-size PushRemap: err = %v, want KindConfiguration", err)
	}
}

func TestMemoryMapMultiEntrySplit(t *testing.T) {
	mm := NewMemoryMap()
	if err := mm.PushRemap(Address(0), Length(0x1000), Address(0x10000)); err != nil {
		t.Fatalf("PushRemap 1: %v", err)
	}
	if err := mm.PushRemap(Address(0x1000), Length(0x1000), Address(0x20000)); err != nil {
		t.Fatalf("PushRemap 2: %v", err)
	}

	ranges, err := mm.Resolve(Address(0x0800), Length(0x1000))
	if err != nil {
		t.Fatalf("Resolve across two entries: %v", err)
	}
	if len(ranges) != 2 {
		t.Fatalf("Resolve across two entries returned %d ranges, want 2", len(ranges))
	}
	if ranges[0].Real != 0x10800 || ranges[0].Len != 0x800 {
		t.Errorf("ranges[0] = %+v, want Real=0x10800 Len=0x800", ranges[0])
	}
	if ranges[1].Real != 0x20000 || ranges[1].Len != 0x800 {
		t.Errorf("ranges[1] = %+v, want Real=0x20000 Len=0x800", ranges[1])
	}
}

func TestMemoryMapLen(t *testing.T) {
	mm := NewMemoryMap()
	if mm.Len() != 0 {
		t.Fatalf("Len() on empty map = %d, want 0", mm.Len())
	}
	_ = mm.PushRemap(Address(0), Length(0x1000), Address(0))
	if mm.Len() != 1 {
		t.Fatalf("Len() after one PushRemap = %d, want 1", mm.Len())
	}
}
