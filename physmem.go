package memflow

// PhysicalAddress is a physical-memory Address, used in function
// signatures where the distinction from a virtual Address matters to a
// reader even though the wire representation is identical (spec.md §3).
type PhysicalAddress = Address

// PhysicalReadData is one scatter/gather read unit: fill Buf with the bytes
// at Addr. A batch is an ordered []PhysicalReadData; completion order
// within the batch is not observable, but result order must match input
// order (spec.md §3, §4.1).
type PhysicalReadData struct {
	Addr PhysicalAddress
	Buf  []byte
}

// PhysicalWriteData is one scatter/gather write unit: write Buf's bytes at
// Addr.
type PhysicalWriteData struct {
	Addr PhysicalAddress
	Buf  []byte
}

// NewPhysicalReadData builds a PhysicalReadData, rejecting a zero-length
// buffer with ErrKind(KindBounds) before it can reach a provider.
func NewPhysicalReadData(addr PhysicalAddress, buf []byte) (PhysicalReadData, error) {
	if len(buf) == 0 {
		return PhysicalReadData{}, newErr(KindBounds, "zero-length read buffer at %s", addr)
	}
	return PhysicalReadData{Addr: addr, Buf: buf}, nil
}

// NewPhysicalWriteData builds a PhysicalWriteData, rejecting a zero-length
// buffer for the same reason as NewPhysicalReadData.
func NewPhysicalWriteData(addr PhysicalAddress, buf []byte) (PhysicalWriteData, error) {
	if len(buf) == 0 {
		return PhysicalWriteData{}, newErr(KindBounds, "zero-length write buffer at %s", addr)
	}
	return PhysicalWriteData{Addr: addr, Buf: buf}, nil
}

// MemoryInfo describes the static properties of a PhysicalMemory provider.
type MemoryInfo struct {
	Size     Length
	Readonly bool
}

// PhysicalMemory is the capability to read and write contiguous ranges of a
// target's physical memory in batched scatter/gather lists (spec.md §4.1).
// Individual batch entries are independent; a provider may service them in
// any internal order but must report results positionally. A provider is
// not required to be safe for concurrent use — callers serialize, per
// spec.md §5.
type PhysicalMemory interface {
	// ReadList fills every entry's Buf. A per-entry failure is recorded in
	// errs[i] (nil on success) and does not abort the rest of the batch.
	ReadList(batch []PhysicalReadData) (errs []error, err error)

	// WriteList writes every entry's Buf. Same partial-success discipline
	// as ReadList.
	WriteList(batch []PhysicalWriteData) (errs []error, err error)

	// Metadata returns the provider's static properties.
	Metadata() MemoryInfo

	// SetMemMap installs a remapping applied before dispatch to the
	// underlying device. Addresses outside the map fail with
	// ErrKind(KindOutOfBounds).
	SetMemMap(m *MemoryMap)
}
