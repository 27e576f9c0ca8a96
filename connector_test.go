package memflow

import (
	"os"
	"path/filepath"
	"testing"
	"unsafe"

	"github.com/memflow-go/memflow/internal/dynload"
)

// fakeLib is one library a fakeLoader can hand back, with its
// MEMFLOW_CONNECTOR descriptor already laid out in memory.
type fakeLib struct {
	desc    rawDescriptor
	nameBuf []byte
	osBuf   []byte
	factory byte // its address stands in for a real function pointer
	status  int32
}

func newFakeLib(version int32, name, targetOS string, status int32) *fakeLib {
	lib := &fakeLib{status: status}
	lib.nameBuf = cString(name)
	lib.osBuf = cString(targetOS)
	lib.desc = rawDescriptor{
		Version:  version,
		Name:     uintptr(unsafe.Pointer(&lib.nameBuf[0])),
		TargetOS: uintptr(unsafe.Pointer(&lib.osBuf[0])),
		Factory:  uintptr(unsafe.Pointer(&lib.factory)),
	}
	return lib
}

// fakeLoader implements dynload.Loader over a fixed set of fakeLib values
// keyed by absolute path, so the inventory's scanning/gating/refcounting
// logic is testable without a real shared object on disk.
type fakeLoader struct {
	byPath      map[string]*fakeLib
	byFactory   map[uintptr]*fakeLib
	byHandle    map[uintptr]*fakeLib
	nextHandle  uintptr
	closedCount int
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		byPath:    map[string]*fakeLib{},
		byFactory: map[uintptr]*fakeLib{},
		byHandle:  map[uintptr]*fakeLib{},
	}
}

func (f *fakeLoader) register(path string, lib *fakeLib) {
	f.byPath[path] = lib
	f.byFactory[lib.desc.Factory] = lib
}

func (f *fakeLoader) Dlopen(path string) (uintptr, error) {
	lib, ok := f.byPath[path]
	if !ok {
		return 0, newErr(KindConnector, "fakeLoader: no library registered for %s", path)
	}
	f.nextHandle++
	f.byHandle[f.nextHandle] = lib
	return f.nextHandle, nil
}

func (f *fakeLoader) Dlsym(handle uintptr, symbol string) (uintptr, error) {
	lib, ok := f.byHandle[handle]
	if !ok {
		return 0, newErr(KindConnector, "fakeLoader: unknown handle")
	}
	if symbol != "MEMFLOW_CONNECTOR" {
		return 0, newErr(KindConnector, "fakeLoader: unknown symbol %s", symbol)
	}
	return uintptr(unsafe.Pointer(&lib.desc)), nil
}

func (f *fakeLoader) Dlclose(handle uintptr) error {
	f.closedCount++
	delete(f.byHandle, handle)
	return nil
}

func (f *fakeLoader) Call(fn uintptr, args ...uintptr) (uintptr, uintptr, error) {
	lib, ok := f.byFactory[fn]
	if !ok {
		return 0, 0, newErr(KindConnector, "fakeLoader: unknown factory")
	}
	if len(args) >= 2 && args[1] != 0 {
		vt := (*providerVTable)(unsafe.Pointer(args[1]))
		vt.Handle = 0xBEEF
	}
	return uintptr(uint32(lib.status)), 0, nil
}

var _ dynload.Loader = (*fakeLoader)(nil)

func TestInventoryEmptyDirectoryYieldsNoConnectors(t *testing.T) {
	dir := t.TempDir()
	inv := &Inventory{loader: newFakeLoader(), loaded: map[string]*library{}}
	if err := inv.WithPath(dir); err != nil {
		t.Fatalf("WithPath on empty dir: %v", err)
	}
	if got := inv.Descriptors(); len(got) != 0 {
		t.Fatalf("Descriptors() = %d, want 0", len(got))
	}
}

func TestInventoryVersionGateRejectsMismatch(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libbad.so")
	if err := os.WriteFile(path, []byte("not a real library"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	absPath, _ := filepath.Abs(path)

	loader := newFakeLoader()
	loader.register(absPath, newFakeLib(ConnectorVersion+1, "bad", "", 0))

	inv := &Inventory{loader: loader, loaded: map[string]*library{}}
	if err := inv.WithPath(dir); err != nil {
		t.Fatalf("WithPath: %v", err)
	}
	if got := inv.Descriptors(); len(got) != 0 {
		t.Fatalf("Descriptors() after version mismatch = %d, want 0", len(got))
	}
}

func TestInventoryLoadsMatchingVersion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libgood.so")
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	absPath, _ := filepath.Abs(path)

	loader := newFakeLoader()
	loader.register(absPath, newFakeLib(ConnectorVersion, "goodconn", "", 0))

	inv := &Inventory{loader: loader, loaded: map[string]*library{}}
	if err := inv.WithPath(dir); err != nil {
		t.Fatalf("WithPath: %v", err)
	}
	descs := inv.Descriptors()
	if len(descs) != 1 || descs[0].Name != "goodconn" {
		t.Fatalf("Descriptors() = %+v, want one descriptor named goodconn", descs)
	}
}

func TestInventoryTargetOSFilter(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libwrongos.so")
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	absPath, _ := filepath.Abs(path)

	loader := newFakeLoader()
	loader.register(absPath, newFakeLib(ConnectorVersion, "wrongos", "not-a-real-os", 0))

	inv := &Inventory{loader: loader, loaded: map[string]*library{}}
	if err := inv.WithPath(dir); err != nil {
		t.Fatalf("WithPath: %v", err)
	}
	if got := inv.Descriptors(); len(got) != 0 {
		t.Fatalf("Descriptors() with mismatched target OS = %d, want 0", len(got))
	}
}

func TestInventoryCreateAndClose(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libgood.so")
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	absPath, _ := filepath.Abs(path)

	loader := newFakeLoader()
	loader.register(absPath, newFakeLib(ConnectorVersion, "goodconn", "", 0))

	inv := &Inventory{loader: loader, loaded: map[string]*library{}}
	if err := inv.WithPath(dir); err != nil {
		t.Fatalf("WithPath: %v", err)
	}

	args, _ := ParseArgs("dtb=1000")
	inst, err := inv.Create("goodconn", args)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := inst.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if loader.closedCount != 1 {
		t.Fatalf("closedCount = %d, want 1 after the only instance closed", loader.closedCount)
	}
}

func TestInventoryCreateUnknownName(t *testing.T) {
	inv := &Inventory{loader: newFakeLoader(), loaded: map[string]*library{}}
	_, err := inv.Create("nonexistent", nil)
	if err == nil {
		t.Fatal("Create with unknown name returned nil error")
	}
}

func TestInventoryCreateFactoryFailure(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "libfails.so")
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	absPath, _ := filepath.Abs(path)

	loader := newFakeLoader()
	loader.register(absPath, newFakeLib(ConnectorVersion, "failconn", "", -1))

	inv := &Inventory{loader: loader, loaded: map[string]*library{}}
	if err := inv.WithPath(dir); err != nil {
		t.Fatalf("WithPath: %v", err)
	}

	_, err := inv.Create("failconn", nil)
	if err == nil {
		t.Fatal("Create with a failing factory returned nil error")
	}
}
