package memflow

// tlbKey identifies one TranslationCacheEntry: (dtb, virtual_page_number),
// per spec.md §3.
type tlbKey struct {
	dtb Address
	vpn uint64
}

func (k tlbKey) hash() uint64 {
	h := uint64(k.dtb)*0x9E3779B97F4A7C15 ^ k.vpn*0xC2B2AE3D27D4EB4F
	return h
}

type tlbLine struct {
	valid bool
	key   tlbKey
	ppn   uint64
	token ValidityToken
}

// TranslationCache sits above a Translator, caching (dtb, virtual page) ->
// physical page resolutions so a hit avoids page-table reads entirely
// (spec.md §4.5). It is direct-mapped, the same discipline as PageCache.
//
// Correctness caveat (spec.md §4.5): if the guest mutates its page tables,
// a stale entry here persists until the validator expires it. The
// validator window is the only knob a caller has to trade staleness risk
// against page-table read volume.
type TranslationCache struct {
	translator *Translator
	validator  Validator
	lines      []tlbLine
}

// NewTranslationCache returns a TranslationCache with room for capacity
// entries, resolving misses through translator.
func NewTranslationCache(translator *Translator, capacity int, validator Validator) *TranslationCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &TranslationCache{
		translator: translator,
		validator:  validator,
		lines:      make([]tlbLine, capacity),
	}
}

func (c *TranslationCache) lineFor(key tlbKey) *tlbLine {
	return &c.lines[key.hash()%uint64(len(c.lines))]
}

// Translate resolves a single virtual address, consulting the cache first.
func (c *TranslationCache) Translate(arch Architecture, dtb, vaddr Address) (PhysicalAddress, error) {
	res := c.TranslateBatch(arch, []TranslateRequest{{DTB: dtb, Vaddr: vaddr}})
	return res[0].Paddr, res[0].Err
}

// TranslateBatch resolves every request, serving cache hits locally and
// grouping every miss into a single batched call into the wrapped
// Translator.
func (c *TranslationCache) TranslateBatch(arch Architecture, reqs []TranslateRequest) []TranslateResult {
	results := make([]TranslateResult, len(reqs))
	var missIdx []int

	for i, r := range reqs {
		vpn := uint64(r.Vaddr) / uint64(arch.PageSize)
		key := tlbKey{dtb: r.DTB, vpn: vpn}
		line := c.lineFor(key)
		if line.valid && line.key == key && c.validator.IsValid(line.token) {
			offset := uint64(r.Vaddr) & (uint64(arch.PageSize) - 1)
			results[i] = TranslateResult{Paddr: Address(line.ppn*uint64(arch.PageSize) + offset)}
			continue
		}
		missIdx = append(missIdx, i)
	}

	if len(missIdx) == 0 {
		return results
	}

	missReqs := make([]TranslateRequest, len(missIdx))
	for j, idx := range missIdx {
		missReqs[j] = reqs[idx]
	}
	missResults := c.translator.TranslateBatch(arch, missReqs)

	for j, idx := range missIdx {
		res := missResults[j]
		results[idx] = res
		if res.Err != nil {
			continue
		}
		vpn := uint64(reqs[idx].Vaddr) / uint64(arch.PageSize)
		key := tlbKey{dtb: reqs[idx].DTB, vpn: vpn}
		ppn := uint64(res.Paddr) / uint64(arch.PageSize)
		*c.lineFor(key) = tlbLine{valid: true, key: key, ppn: ppn, token: c.validator.NewToken()}
	}
	return results
}
