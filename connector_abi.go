package memflow

import "unsafe"

// ConnectorVersion is the ABI version this build understands. A connector
// library compiled against a different MEMFLOW_CONNECTOR_VERSION is
// rejected outright (spec.md §4.7, §8's plugin-version-gate property).
const ConnectorVersion int32 = 1

// rawDescriptor mirrors the C layout of the MEMFLOW_CONNECTOR symbol
// (spec.md §6):
//
//	struct {
//	    int32_t version;
//	    // 4 bytes padding to 8-byte align the pointers that follow
//	    const char *name;
//	    const char *target_os; // supplemental: see SPEC_FULL.md
//	    void       *factory;   // extern "C" fn(const char*, ProviderVTable*) -> int32
//	}
//
// target_os is this port's own addition, checked against runtime.GOOS once
// the descriptor has been read; it may be a null pointer, meaning "any OS".
type rawDescriptor struct {
	Version  int32
	_        int32
	Name     uintptr
	TargetOS uintptr
	Factory  uintptr
}

// rawReadEntry/rawWriteEntry mirror the C layout of one PhysicalReadData/
// PhysicalWriteData batch entry passed across the ABI boundary.
type rawReadEntry struct {
	Addr uint64
	Buf  uintptr
	Len  uint64
}

type rawWriteEntry struct {
	Addr uint64
	Buf  uintptr
	Len  uint64
}

// providerVTable mirrors the C "ProviderBox": an opaque handle plus a
// vtable of function pointers (spec.md §6). Every *uintptr field here is a
// function pointer; Handle is the plugin's private instance state.
type providerVTable struct {
	Handle    uintptr
	ReadList  uintptr // fn(handle, *rawReadEntry, count, *int32 errOut) int32
	WriteList uintptr // fn(handle, *rawWriteEntry, count, *int32 errOut) int32
	Metadata  uintptr // fn(handle, *uint64 sizeOut, *int32 readonlyOut)
	SetMemMap uintptr // fn(handle, *rawMapping, count)
	Clone     uintptr // fn(handle) uintptr (new handle, shares the vtable)
	Drop      uintptr // fn(handle)
}

// rawMapping mirrors one MemoryMapping passed to a plugin's set_mem_map.
type rawMapping struct {
	Base     uint64
	Size     uint64
	RealBase uint64
}

func cString(s string) []byte {
	b := make([]byte, len(s)+1)
	copy(b, s)
	return b
}

func readCString(addr uintptr) string {
	if addr == 0 {
		return ""
	}
	var b []byte
	for i := 0; ; i++ {
		c := *(*byte)(unsafe.Pointer(addr + uintptr(i)))
		if c == 0 {
			break
		}
		b = append(b, c)
	}
	return string(b)
}
