package injector

import "unsafe"

// funcInfo mirrors runtime.funcInfo. Only datap is used here.
type funcInfo struct {
	_func unsafe.Pointer
	datap *moduledata
}

// moduledata mirrors the head of runtime.moduledata, up to the text bounds.
// Any changes to the runtime's layout of these fields must be matched here.
type moduledata struct {
	pcHeader     unsafe.Pointer
	funcnametab  []byte
	cutab        []uint32
	filetab      []byte
	pctab        []byte
	pclntable    []byte
	ftab         []functab
	findfunctab  uintptr
	minpc, maxpc uintptr

	text, etext uintptr

	// Struct continues, omitting unused fields.
}

type functab struct {
	entryoff uint32 // relative to runtime.text
	funcoff  uint32
}

//go:linkname findfunc runtime.findfunc
func findfunc(pc uintptr) funcInfo

// funcSize returns the number of bytes between entry and the start of the
// next function in the same module, including the padding after it. It
// returns 0 if entry isn't in a known module.
func funcSize(entry uintptr) uintptr {
	info := findfunc(entry)
	if info.datap == nil {
		return 0
	}

	// Find the closest function that starts after this one. ftab is
	// ordered but the search is cheap enough not to rely on it.
	offset := uint32(entry - info.datap.text)
	size := uint32(info.datap.etext - entry)
	for _, ft := range info.datap.ftab {
		if ft.entryoff <= offset {
			continue
		}
		if d := ft.entryoff - offset; d < size {
			size = d
		}
	}

	return uintptr(size)
}
