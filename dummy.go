package memflow

import (
	"sync"

	"github.com/memflow-go/memflow/internal/sysmem"
)

// DummyMemory is an in-process PhysicalMemory provider backed by a flat,
// mmap-allocated buffer (internal/sysmem). It is this package's test and
// demonstration harness — spec.md §8's end-to-end scenarios all start by
// building one — not a connector in its own right.
type DummyMemory struct {
	mu       sync.Mutex
	buf      []byte
	readonly bool
	memMap   *MemoryMap
}

// NewDummyMemory allocates a DummyMemory of the given size, zero-filled.
func NewDummyMemory(size Length) (*DummyMemory, error) {
	buf, err := sysmem.Alloc(uint64(size))
	if err != nil {
		return nil, wrapErr(KindIO, err, "allocating dummy memory")
	}
	return &DummyMemory{buf: buf}, nil
}

// Close releases the backing allocation.
func (d *DummyMemory) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	buf := d.buf
	d.buf = nil
	return sysmem.Free(buf)
}

// SetReadonly marks the provider read-only; WriteList then always fails.
func (d *DummyMemory) SetReadonly(ro bool) { d.readonly = ro }

// Bytes exposes the raw backing buffer for test setup (e.g. writing a
// synthetic page table directly rather than through WriteList).
func (d *DummyMemory) Bytes() []byte { return d.buf }

func (d *DummyMemory) resolve(addr Address, n int) (Address, error) {
	if d.memMap == nil {
		if uint64(addr)+uint64(n) > uint64(len(d.buf)) {
			return 0, newErr(KindOutOfBounds, "address %s+%d beyond dummy memory size %d", addr, n, len(d.buf))
		}
		return addr, nil
	}
	ranges, err := d.memMap.Resolve(addr, Length(n))
	if err != nil {
		return 0, err
	}
	// DummyMemory's resolve is only used with single-range, non-split test
	// setups; a caller wanting real scatter across entries should use
	// PhysicalReadData per resolved range instead.
	if len(ranges) != 1 {
		return 0, newErr(KindOutOfBounds, "remap split across %d ranges not supported by DummyMemory.resolve", len(ranges))
	}
	real := ranges[0].Real
	if uint64(real)+uint64(n) > uint64(len(d.buf)) {
		return 0, newErr(KindOutOfBounds, "remapped address %s+%d beyond dummy memory size %d", real, n, len(d.buf))
	}
	return real, nil
}

func (d *DummyMemory) ReadList(batch []PhysicalReadData) ([]error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	errs := make([]error, len(batch))
	for i, e := range batch {
		real, err := d.resolve(e.Addr, len(e.Buf))
		if err != nil {
			errs[i] = err
			continue
		}
		copy(e.Buf, d.buf[real:uint64(real)+uint64(len(e.Buf))])
	}
	return errs, nil
}

func (d *DummyMemory) WriteList(batch []PhysicalWriteData) ([]error, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	errs := make([]error, len(batch))
	if d.readonly {
		for i := range batch {
			errs[i] = newErr(KindIO, "dummy memory is read-only")
		}
		return errs, nil
	}
	for i, e := range batch {
		real, err := d.resolve(e.Addr, len(e.Buf))
		if err != nil {
			errs[i] = err
			continue
		}
		copy(d.buf[real:uint64(real)+uint64(len(e.Buf))], e.Buf)
	}
	return errs, nil
}

func (d *DummyMemory) Metadata() MemoryInfo {
	return MemoryInfo{Size: Length(len(d.buf)), Readonly: d.readonly}
}

func (d *DummyMemory) SetMemMap(m *MemoryMap) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.memMap = m
}

var _ PhysicalMemory = (*DummyMemory)(nil)
