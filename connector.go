package memflow

import (
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/memflow-go/memflow/internal/dynload"
	"golang.org/x/sync/errgroup"
)

// library is one loaded shared object, refcounted so it is never unloaded
// while any ConnectorInstance still holds a provider it produced (spec.md
// §4.7's lifetime invariant).
type library struct {
	loader dynload.Loader
	handle uintptr
	path   string
	refs   int32
}

func (l *library) acquire() { atomic.AddInt32(&l.refs, 1) }

func (l *library) release() error {
	if atomic.AddInt32(&l.refs, -1) == 0 {
		return l.loader.Dlclose(l.handle)
	}
	return nil
}

// Descriptor is the decoded form of a library's exported MEMFLOW_CONNECTOR
// symbol (spec.md §4.7).
type Descriptor struct {
	Name     string
	Version  int32
	TargetOS string

	lib        *library
	factoryPtr uintptr
}

// Inventory loads connector plugins from directories and instantiates
// PhysicalMemory providers by name (spec.md §4.7). The zero value is not
// usable; construct with NewInventory.
type Inventory struct {
	loader dynload.Loader

	mu          sync.Mutex
	loaded      map[string]*library // by absolute path; avoids reloading the same .so twice
	descriptors []*Descriptor
	manifest    *ConnectorManifest
}

// NewInventory returns an empty Inventory using the real dynamic loader.
func NewInventory() *Inventory {
	return &Inventory{loader: dynload.Purego{}, loaded: map[string]*library{}}
}

// WithManifest restricts which library file names WithPath/TryNew will even
// attempt to dlopen, per SPEC_FULL.md's ambient-config section.
func (inv *Inventory) WithManifest(m *ConnectorManifest) *Inventory {
	inv.manifest = m
	return inv
}

// WithPath scans one directory for connector libraries. Subdirectories are
// skipped silently; every other entry is attempted, and one that fails to
// load (not a shared object, missing MEMFLOW_CONNECTOR symbol, version
// mismatch) is logged and skipped — WithPath itself only fails if dir cannot be read at all.
func (inv *Inventory) WithPath(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return wrapErr(KindIO, err, "reading connector directory %s", dir)
	}

	var g errgroup.Group
	var mu sync.Mutex
	for _, entry := range entries {
		entry := entry
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if inv.manifest != nil && !inv.manifest.Allows(entry.Name()) {
			continue
		}
		g.Go(func() error {
			desc, err := inv.scanOne(path)
			if err != nil {
				slog.Debug("memflow: connector candidate rejected", "path", path, "error", err)
				return nil
			}
			mu.Lock()
			inv.descriptors = append(inv.descriptors, desc)
			mu.Unlock()
			return nil
		})
	}
	return g.Wait()
}

// TryNew scans every PATH entry with a "memflow" subdirectory appended, per
// spec.md §4.7.
func (inv *Inventory) TryNew() error {
	pathEnv := os.Getenv("PATH")
	if pathEnv == "" {
		return newErr(KindConfiguration, "PATH is not set")
	}
	for _, p := range filepath.SplitList(pathEnv) {
		_ = inv.WithPath(filepath.Join(p, "memflow"))
	}
	return nil
}

// scanOne attempts to load path as a connector library.
func (inv *Inventory) scanOne(path string) (*Descriptor, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, wrapErr(KindConnector, err, "resolving %s", path)
	}

	inv.mu.Lock()
	lib, cached := inv.loaded[abs]
	inv.mu.Unlock()

	if !cached {
		handle, err := inv.loader.Dlopen(abs)
		if err != nil {
			return nil, wrapErr(KindConnector, err, "loading %s", abs)
		}
		lib = &library{loader: inv.loader, handle: handle, path: abs}
	}

	symAddr, err := inv.loader.Dlsym(lib.handle, "MEMFLOW_CONNECTOR")
	if err != nil {
		if !cached {
			_ = lib.loader.Dlclose(lib.handle)
		}
		return nil, wrapErr(KindConnector, err, "no MEMFLOW_CONNECTOR symbol in %s", abs)
	}

	raw := (*rawDescriptor)(unsafe.Pointer(symAddr))
	if raw.Version != ConnectorVersion {
		if !cached {
			_ = lib.loader.Dlclose(lib.handle)
		}
		return nil, newErr(KindConnector, "connector %s version %d does not match %d", abs, raw.Version, ConnectorVersion)
	}

	targetOS := readCString(raw.TargetOS)
	if targetOS != "" && targetOS != runtime.GOOS {
		if !cached {
			_ = lib.loader.Dlclose(lib.handle)
		}
		return nil, newErr(KindConnector, "connector %s targets %s, not %s", abs, targetOS, runtime.GOOS)
	}

	desc := &Descriptor{
		Name:       readCString(raw.Name),
		Version:    raw.Version,
		TargetOS:   targetOS,
		lib:        lib,
		factoryPtr: raw.Factory,
	}

	if !cached {
		inv.mu.Lock()
		inv.loaded[abs] = lib
		inv.mu.Unlock()
	}
	return desc, nil
}

// Descriptors returns every successfully loaded connector descriptor.
func (inv *Inventory) Descriptors() []*Descriptor {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	out := make([]*Descriptor, len(inv.descriptors))
	copy(out, inv.descriptors)
	return out
}

// Create instantiates the named connector with the given Args. A failure
// inside the plugin's factory is mapped to ErrKind(KindConnector); the
// plugin's own error string, if any, is never retained past this call,
// since it may reference memory in a library that could be unloaded later
// (spec.md §4.7, §9's plugin-safety note).
func (inv *Inventory) Create(name string, args *Args) (*ConnectorInstance, error) {
	inv.mu.Lock()
	var desc *Descriptor
	for _, d := range inv.descriptors {
		if d.Name == name {
			desc = d
			break
		}
	}
	inv.mu.Unlock()
	if desc == nil {
		return nil, newErr(KindConnector, "no connector named %q loaded", name)
	}

	argsStr := ""
	if args != nil {
		argsStr = args.raw
	}
	argsBytes := cString(argsStr)

	var vtable providerVTable
	r1, _, err := desc.lib.loader.Call(
		desc.factoryPtr,
		uintptr(unsafe.Pointer(&argsBytes[0])),
		uintptr(unsafe.Pointer(&vtable)),
	)
	if err != nil {
		return nil, wrapErr(KindConnector, err, "connector %q factory call failed", name)
	}
	if int32(r1) != 0 {
		return nil, newErr(KindConnector, "connector %q factory returned status %d", name, int32(r1))
	}

	desc.lib.acquire()
	return &ConnectorInstance{
		provider: &pluginProvider{loader: desc.lib.loader, vtable: vtable},
		lib:      desc.lib,
	}, nil
}

// ConnectorInstance bundles a PhysicalMemory provider produced by a plugin
// with a shared reference to the library that produced it (spec.md §3).
// The library cannot be unloaded while any ConnectorInstance (or a clone of
// one) still exists.
type ConnectorInstance struct {
	provider *pluginProvider
	lib      *library
	closed   bool
}

// Provider returns the underlying PhysicalMemory.
func (ci *ConnectorInstance) Provider() PhysicalMemory { return ci.provider }

// Clone returns a new ConnectorInstance sharing the same library reference
// count, for a caller that wants a second, independently-serialized handle
// onto the same connector (spec.md §5: clones carry no ordering guarantee
// relative to each other).
func (ci *ConnectorInstance) Clone() (*ConnectorInstance, error) {
	r1, _, err := ci.provider.loader.Call(ci.provider.vtable.Clone, ci.provider.vtable.Handle)
	if err != nil {
		return nil, wrapErr(KindConnector, err, "cloning connector instance")
	}
	cloned := ci.provider.vtable
	cloned.Handle = r1
	ci.lib.acquire()
	return &ConnectorInstance{provider: &pluginProvider{loader: ci.provider.loader, vtable: cloned}, lib: ci.lib}, nil
}

// Close drops the plugin-side instance and releases this instance's share
// of the library's reference count.
func (ci *ConnectorInstance) Close() error {
	if ci.closed {
		return nil
	}
	ci.closed = true
	if ci.provider.vtable.Drop != 0 {
		_, _, _ = ci.provider.loader.Call(ci.provider.vtable.Drop, ci.provider.vtable.Handle)
	}
	return ci.lib.release()
}

// pluginProvider implements PhysicalMemory by calling through a
// providerVTable obtained from a connector's factory.
type pluginProvider struct {
	loader dynload.Loader
	vtable providerVTable
}

func (p *pluginProvider) ReadList(batch []PhysicalReadData) ([]error, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	entries := make([]rawReadEntry, len(batch))
	for i, e := range batch {
		var bufPtr uintptr
		if len(e.Buf) > 0 {
			bufPtr = uintptr(unsafe.Pointer(&e.Buf[0]))
		}
		entries[i] = rawReadEntry{Addr: uint64(e.Addr), Buf: bufPtr, Len: uint64(len(e.Buf))}
	}
	errOut := make([]int32, len(batch))

	r1, _, err := p.loader.Call(
		p.vtable.ReadList,
		p.vtable.Handle,
		uintptr(unsafe.Pointer(&entries[0])),
		uintptr(len(entries)),
		uintptr(unsafe.Pointer(&errOut[0])),
	)
	if err != nil {
		return nil, wrapErr(KindIO, err, "connector read_list call failed")
	}
	if int32(r1) != 0 {
		return nil, newErr(KindIO, "connector read_list returned status %d", int32(r1))
	}

	errs := make([]error, len(batch))
	for i, code := range errOut {
		if code != 0 {
			errs[i] = newErr(kindFromCode(code), "connector read failed at %s", batch[i].Addr)
		}
	}
	return errs, nil
}

func (p *pluginProvider) WriteList(batch []PhysicalWriteData) ([]error, error) {
	if len(batch) == 0 {
		return nil, nil
	}
	entries := make([]rawWriteEntry, len(batch))
	for i, e := range batch {
		var bufPtr uintptr
		if len(e.Buf) > 0 {
			bufPtr = uintptr(unsafe.Pointer(&e.Buf[0]))
		}
		entries[i] = rawWriteEntry{Addr: uint64(e.Addr), Buf: bufPtr, Len: uint64(len(e.Buf))}
	}
	errOut := make([]int32, len(batch))

	r1, _, err := p.loader.Call(
		p.vtable.WriteList,
		p.vtable.Handle,
		uintptr(unsafe.Pointer(&entries[0])),
		uintptr(len(entries)),
		uintptr(unsafe.Pointer(&errOut[0])),
	)
	if err != nil {
		return nil, wrapErr(KindIO, err, "connector write_list call failed")
	}
	if int32(r1) != 0 {
		return nil, newErr(KindIO, "connector write_list returned status %d", int32(r1))
	}

	errs := make([]error, len(batch))
	for i, code := range errOut {
		if code != 0 {
			errs[i] = newErr(kindFromCode(code), "connector write failed at %s", batch[i].Addr)
		}
	}
	return errs, nil
}

func (p *pluginProvider) Metadata() MemoryInfo {
	var size uint64
	var readonly int32
	_, _, _ = p.loader.Call(
		p.vtable.Metadata,
		p.vtable.Handle,
		uintptr(unsafe.Pointer(&size)),
		uintptr(unsafe.Pointer(&readonly)),
	)
	return MemoryInfo{Size: Length(size), Readonly: readonly != 0}
}

func (p *pluginProvider) SetMemMap(m *MemoryMap) {
	if m == nil {
		_, _, _ = p.loader.Call(p.vtable.SetMemMap, p.vtable.Handle, 0, 0)
		return
	}
	var rows []rawMapping
	m.tree.Ascend(func(item MemoryMapping) bool {
		rows = append(rows, rawMapping{Base: uint64(item.Base), Size: uint64(item.Size), RealBase: uint64(item.RealBase)})
		return true
	})
	if len(rows) == 0 {
		_, _, _ = p.loader.Call(p.vtable.SetMemMap, p.vtable.Handle, 0, 0)
		return
	}
	_, _, _ = p.loader.Call(
		p.vtable.SetMemMap,
		p.vtable.Handle,
		uintptr(unsafe.Pointer(&rows[0])),
		uintptr(len(rows)),
	)
}

var _ PhysicalMemory = (*pluginProvider)(nil)

// kindFromCode maps a plugin's per-entry status code to our Kind
// taxonomy; codes beyond the known range collapse to KindIO, the most
// conservative choice for an unrecognized transport failure.
func kindFromCode(code int32) Kind {
	switch code {
	case -1:
		return KindIO
	case -2:
		return KindOutOfBounds
	default:
		return KindIO
	}
}
