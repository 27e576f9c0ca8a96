package memflow

// pageCacheLine is one direct-mapped cache line: PageCacheEntry from
// spec.md §3, keyed by physical page number modulo capacity.
type pageCacheLine struct {
	valid   bool
	pageNum uint64
	buf     []byte
	token   ValidityToken
}

// PageCache is a fixed-capacity, direct-mapped write-through cache over a
// PhysicalMemory provider, keyed by physical page number (spec.md §4.4). It
// implements PhysicalMemory itself, so it can sit in front of any other
// provider (including another cache) transparently.
//
// Writes are never cached as dirty: every write goes to the wrapped
// provider in the same call, and only an already-resident, now-stale line
// is refreshed in place. A writeback mode is deliberately not offered — the
// guest OS can mutate memory between writes, so caching a write would risk
// serving a write that was superseded by the guest before this cache's
// validator next expired it.
type PageCache struct {
	mem       PhysicalMemory
	pageSize  Length
	validator Validator
	lines     []pageCacheLine
}

// NewPageCache returns a PageCache with the given line size, capacity (in
// lines) and validator, wrapping mem.
func NewPageCache(mem PhysicalMemory, pageSize Length, capacity int, validator Validator) *PageCache {
	if capacity <= 0 {
		capacity = 1
	}
	return &PageCache{
		mem:       mem,
		pageSize:  pageSize,
		validator: validator,
		lines:     make([]pageCacheLine, capacity),
	}
}

func (c *PageCache) lineFor(pageNum uint64) *pageCacheLine {
	return &c.lines[pageNum%uint64(len(c.lines))]
}

// load serves (or refreshes) the cache line for pageNum, consulting the
// validator on every access per spec.md §4.4's invariant that a hit never
// returns bytes older than now-validator.window.
func (c *PageCache) load(pageNum uint64) (*pageCacheLine, error) {
	line := c.lineFor(pageNum)
	if line.valid && line.pageNum == pageNum && c.validator.IsValid(line.token) {
		return line, nil
	}

	buf := make([]byte, c.pageSize)
	pageAddr := Address(pageNum * uint64(c.pageSize))
	errs, err := c.mem.ReadList([]PhysicalReadData{{Addr: pageAddr, Buf: buf}})
	if err != nil {
		return nil, wrapErr(KindIO, err, "loading page %d into cache", pageNum)
	}
	if len(errs) > 0 && errs[0] != nil {
		return nil, errs[0]
	}

	line.valid = true
	line.pageNum = pageNum
	line.buf = buf
	line.token = c.validator.NewToken()
	return line, nil
}

func (c *PageCache) pageNum(addr Address) uint64 { return uint64(addr) / uint64(c.pageSize) }

// ReadList implements PhysicalMemory, serving each entry from cached pages,
// reloading on a miss or an expired validator token.
func (c *PageCache) ReadList(batch []PhysicalReadData) ([]error, error) {
	errs := make([]error, len(batch))
	for i, entry := range batch {
		errs[i] = c.readOne(entry.Addr, entry.Buf)
	}
	return errs, nil
}

func (c *PageCache) readOne(addr Address, dst []byte) error {
	pos := 0
	for pos < len(dst) {
		cur := addr.Add(Length(pos))
		pageNum := c.pageNum(cur)
		pageOff := cur.PageOffset(c.pageSize)

		line, err := c.load(pageNum)
		if err != nil {
			return err
		}

		n := len(dst) - pos
		if avail := int(uint64(c.pageSize) - pageOff); n > avail {
			n = avail
		}
		copy(dst[pos:pos+n], line.buf[pageOff:pageOff+uint64(n)])
		pos += n
	}
	return nil
}

// WriteList implements PhysicalMemory. Every chunk is written through to
// the wrapped provider in one underlying batch call; chunks that land on a
// currently resident line refresh that line in place instead of evicting
// it, so a read following a write is served from that line while its
// install-time token is still valid. The token is not re-stamped.
func (c *PageCache) WriteList(batch []PhysicalWriteData) ([]error, error) {
	type chunk struct {
		outerIdx int
		pageNum  uint64
		pageOff  uint64
		data     []byte
	}
	var chunks []chunk
	under := make([]PhysicalWriteData, 0, len(batch))

	for i, entry := range batch {
		pos := 0
		for pos < len(entry.Buf) {
			cur := entry.Addr.Add(Length(pos))
			pageNum := c.pageNum(cur)
			pageOff := cur.PageOffset(c.pageSize)
			n := len(entry.Buf) - pos
			if avail := int(uint64(c.pageSize) - pageOff); n > avail {
				n = avail
			}
			data := entry.Buf[pos : pos+n]
			chunks = append(chunks, chunk{outerIdx: i, pageNum: pageNum, pageOff: pageOff, data: data})
			under = append(under, PhysicalWriteData{Addr: cur, Buf: data})
			pos += n
		}
	}

	underErrs, err := c.mem.WriteList(under)
	if err != nil {
		return nil, wrapErr(KindIO, err, "write-through batch failed")
	}

	errs := make([]error, len(batch))
	for ci, ch := range chunks {
		var chunkErr error
		if len(underErrs) > ci {
			chunkErr = underErrs[ci]
		}
		if chunkErr != nil {
			if errs[ch.outerIdx] == nil {
				errs[ch.outerIdx] = chunkErr
			}
			continue
		}
		line := c.lineFor(ch.pageNum)
		if line.valid && line.pageNum == ch.pageNum {
			copy(line.buf[ch.pageOff:ch.pageOff+uint64(len(ch.data))], ch.data)
		}
	}
	return errs, nil
}

// Metadata passes through to the wrapped provider.
func (c *PageCache) Metadata() MemoryInfo { return c.mem.Metadata() }

// SetMemMap passes the remap through and drops every cache line, since a
// remap changes what underlying bytes a given physical address denotes.
func (c *PageCache) SetMemMap(m *MemoryMap) {
	c.mem.SetMemMap(m)
	for i := range c.lines {
		c.lines[i] = pageCacheLine{}
	}
}

var _ PhysicalMemory = (*PageCache)(nil)
