package memflow

import "unsafe"

// VirtualTranslator is anything that resolves virtual addresses the way
// Translator and TranslationCache both do, letting VirtualMemory be built
// over either (or over a TranslationCache itself layered over a Translator).
type VirtualTranslator interface {
	Translate(arch Architecture, dtb, vaddr Address) (PhysicalAddress, error)
	TranslateBatch(arch Architecture, reqs []TranslateRequest) []TranslateResult
}

var (
	_ VirtualTranslator = (*Translator)(nil)
	_ VirtualTranslator = (*TranslationCache)(nil)
)

// VirtualMemory composes a VirtualTranslator and a PhysicalMemory provider
// into the typed-read/write façade described in spec.md §4.6. The provider
// is typically a PageCache wrapping the real backend, and the translator is
// typically a TranslationCache wrapping a Translator, but VirtualMemory
// does not care which concrete stack it was handed.
type VirtualMemory struct {
	vt   VirtualTranslator
	mem  PhysicalMemory
	arch Architecture
	dtb  Address
}

// NewVirtualMemory returns a VirtualMemory resolving addresses in the
// address space rooted at dtb, for the given architecture.
func NewVirtualMemory(vt VirtualTranslator, mem PhysicalMemory, arch Architecture, dtb Address) *VirtualMemory {
	return &VirtualMemory{vt: vt, mem: mem, arch: arch, dtb: dtb}
}

type vchunk struct {
	vaddr Address
	off   int
	n     int
}

// splitPages decomposes [addr, addr+n) into page-aligned sub-ranges, per
// spec.md §4.6's split policy: a request crossing a page boundary becomes
// several requests, each translated independently.
func (v *VirtualMemory) splitPages(addr Address, n int) []vchunk {
	var chunks []vchunk
	pos := 0
	for pos < n {
		cur := addr.Add(Length(pos))
		pageOff := cur.PageOffset(v.arch.PageSize)
		remaining := n - pos
		if avail := int(uint64(v.arch.PageSize) - pageOff); remaining > avail {
			remaining = avail
		}
		chunks = append(chunks, vchunk{vaddr: cur, off: pos, n: remaining})
		pos += remaining
	}
	return chunks
}

// ReadRaw fills buf with bytes starting at addr. A failure partway through
// (a sub-range's translation or physical read fails) returns a
// *PartialResult reporting how many leading bytes of buf are valid.
func (v *VirtualMemory) ReadRaw(addr Address, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	chunks := v.splitPages(addr, len(buf))

	treqs := make([]TranslateRequest, len(chunks))
	for i, ch := range chunks {
		treqs[i] = TranslateRequest{DTB: v.dtb, Vaddr: ch.vaddr}
	}
	tres := v.vt.TranslateBatch(v.arch, treqs)

	ok := chunks
	var failErr error
	for i, ch := range chunks {
		if tres[i].Err != nil {
			ok = chunks[:i]
			failErr = tres[i].Err
			break
		}
		_ = ch
	}

	if len(ok) > 0 {
		preads := make([]PhysicalReadData, len(ok))
		for i, ch := range ok {
			preads[i] = PhysicalReadData{Addr: tres[i].Paddr, Buf: buf[ch.off : ch.off+ch.n]}
		}
		perrs, err := v.mem.ReadList(preads)
		if err != nil {
			return newPartial(0, wrapErr(KindIO, err, "physical read batch failed"))
		}
		for i, ch := range ok {
			if len(perrs) > i && perrs[i] != nil {
				return newPartial(ch.off, perrs[i])
			}
		}
	}

	if failErr != nil {
		bytesDone := 0
		if len(ok) > 0 {
			last := ok[len(ok)-1]
			bytesDone = last.off + last.n
		}
		return newPartial(bytesDone, failErr)
	}
	return nil
}

// WriteRaw writes buf's bytes starting at addr, with the same partial-
// failure semantics as ReadRaw.
func (v *VirtualMemory) WriteRaw(addr Address, buf []byte) error {
	if len(buf) == 0 {
		return nil
	}
	chunks := v.splitPages(addr, len(buf))

	treqs := make([]TranslateRequest, len(chunks))
	for i, ch := range chunks {
		treqs[i] = TranslateRequest{DTB: v.dtb, Vaddr: ch.vaddr}
	}
	tres := v.vt.TranslateBatch(v.arch, treqs)

	ok := chunks
	var failErr error
	for i := range chunks {
		if tres[i].Err != nil {
			ok = chunks[:i]
			failErr = tres[i].Err
			break
		}
	}

	if len(ok) > 0 {
		pwrites := make([]PhysicalWriteData, len(ok))
		for i, ch := range ok {
			pwrites[i] = PhysicalWriteData{Addr: tres[i].Paddr, Buf: buf[ch.off : ch.off+ch.n]}
		}
		perrs, err := v.mem.WriteList(pwrites)
		if err != nil {
			return newPartial(0, wrapErr(KindIO, err, "physical write batch failed"))
		}
		for i, ch := range ok {
			if len(perrs) > i && perrs[i] != nil {
				return newPartial(ch.off, perrs[i])
			}
		}
	}

	if failErr != nil {
		bytesDone := 0
		if len(ok) > 0 {
			last := ok[len(ok)-1]
			bytesDone = last.off + last.n
		}
		return newPartial(bytesDone, failErr)
	}
	return nil
}

// Read reads a single Pod value T at addr. T must have a non-zero, fixed
// size; a zero-sized T is rejected with ErrKind(KindBounds) rather than
// silently succeeding with no bytes transferred.
func Read[T any](v *VirtualMemory, addr Address) (T, error) {
	var out T
	size := sizeofT[T]()
	if size == 0 {
		return out, newErr(KindBounds, "cannot read zero-sized type")
	}
	buf := make([]byte, size)
	if err := v.ReadRaw(addr, buf); err != nil {
		return out, err
	}
	out = *(*T)(unsafe.Pointer(&buf[0]))
	return out, nil
}

// Write writes a single Pod value T at addr.
func Write[T any](v *VirtualMemory, addr Address, val T) error {
	size := sizeofT[T]()
	if size == 0 {
		return newErr(KindBounds, "cannot write zero-sized type")
	}
	buf := make([]byte, size)
	*(*T)(unsafe.Pointer(&buf[0])) = val
	return v.WriteRaw(addr, buf)
}

// ReadPtr64 dereferences a Pointer64[T], reading one T from the address it
// holds.
func ReadPtr64[T any](v *VirtualMemory, p Pointer64[T]) (T, error) {
	return Read[T](v, p.Address())
}

// ReadIntoList performs a batch of reads, each independently split and
// translated; per-request errors are returned positionally and do not
// abort the rest of the batch, matching spec.md §4.6's batched operations.
func (v *VirtualMemory) ReadIntoList(reqs []PhysicalReadData) []error {
	errs := make([]error, len(reqs))
	for i, r := range reqs {
		errs[i] = v.ReadRaw(r.Addr, r.Buf)
	}
	return errs
}

// WriteFromList performs a batch of writes with the same discipline as
// ReadIntoList.
func (v *VirtualMemory) WriteFromList(reqs []PhysicalWriteData) []error {
	errs := make([]error, len(reqs))
	for i, r := range reqs {
		errs[i] = v.WriteRaw(r.Addr, r.Buf)
	}
	return errs
}
