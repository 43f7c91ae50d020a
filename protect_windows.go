//go:build windows

package injector

import (
	"fmt"
	"syscall"
	"unsafe"

	"golang.org/x/sys/windows"
)

type systemProtector struct {
	pageSize int
}

// SystemProtector returns the protector for the running OS. On Windows the
// current protection comes from VirtualQuery.
func SystemProtector() Protector {
	return &systemProtector{pageSize: syscall.Getpagesize()}
}

func (sp *systemProtector) Protection(addr, size uintptr) ([]Region, error) {
	start, end := pageBounds(addr, size, sp.pageSize)

	var regions []Region
	for next := start; next < end; {
		var info windows.MemoryBasicInformation
		err := windows.VirtualQuery(next, &info, unsafe.Sizeof(info))
		if err != nil {
			return nil, err
		}
		if info.State != windows.MEM_COMMIT {
			return nil, fmt.Errorf("%w: %#x", ErrNotMapped, next)
		}

		regionEnd := min(info.BaseAddress+info.RegionSize, end)
		regions = append(regions, Region{
			Start: next,
			Size:  regionEnd - next,
			Prot:  pageProtection(info.Protect),
			sys:   info.Protect,
		})
		next = regionEnd
	}

	return regions, nil
}

func (sp *systemProtector) SetProtection(r Region) error {
	var oldFlags uint32
	return windows.VirtualProtect(r.Start, r.Size, nativeProtection(r), &oldFlags)
}

// nativeProtection returns the flags to restore r with. Flags read by
// Protection are used as is so write-copy and the modifier bits survive.
func nativeProtection(r Region) uint32 {
	if r.sys != 0 {
		return r.sys
	}
	return windowsProtection(r.Prot)
}

func pageProtection(flags uint32) Protection {
	// Modifier bits (guard, nocache, writecombine) are only kept in
	// Region.sys.
	switch flags & 0xff {
	case windows.PAGE_READONLY:
		return ProtRead
	case windows.PAGE_READWRITE, windows.PAGE_WRITECOPY:
		return ProtRead | ProtWrite
	case windows.PAGE_EXECUTE:
		return ProtExec
	case windows.PAGE_EXECUTE_READ:
		return ProtRead | ProtExec
	case windows.PAGE_EXECUTE_READWRITE, windows.PAGE_EXECUTE_WRITECOPY:
		return ProtRWX
	}
	return ProtNone
}

func windowsProtection(p Protection) uint32 {
	switch p {
	case ProtRead:
		return windows.PAGE_READONLY
	case ProtRead | ProtWrite, ProtWrite:
		return windows.PAGE_READWRITE
	case ProtExec:
		return windows.PAGE_EXECUTE
	case ProtRead | ProtExec:
		return windows.PAGE_EXECUTE_READ
	case ProtRWX, ProtWrite | ProtExec:
		return windows.PAGE_EXECUTE_READWRITE
	}
	return windows.PAGE_NOACCESS
}
