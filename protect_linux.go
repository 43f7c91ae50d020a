package injector

import (
	"fmt"
	"slices"
	"unsafe"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"
)

type systemProtector struct {
	pageSize int
}

// SystemProtector returns the protector for the running OS. On Linux the
// current protection is read from /proc/self/maps.
func SystemProtector() Protector {
	return &systemProtector{pageSize: unix.Getpagesize()}
}

func (sp *systemProtector) Protection(addr, size uintptr) ([]Region, error) {
	start, end := pageBounds(addr, size, sp.pageSize)

	self, err := procfs.Self()
	if err != nil {
		return nil, fmt.Errorf("unable to open /proc/self: %w", err)
	}
	maps, err := self.ProcMaps()
	if err != nil {
		return nil, fmt.Errorf("unable to read memory maps: %w", err)
	}

	slices.SortFunc(maps, func(a, b *procfs.ProcMap) int {
		switch {
		case a.StartAddr < b.StartAddr:
			return -1
		case a.StartAddr > b.StartAddr:
			return 1
		}
		return 0
	})

	var regions []Region
	next := start
	for _, m := range maps {
		if m.EndAddr <= next {
			continue
		}
		if m.StartAddr > next || next >= end {
			break
		}

		regionEnd := min(m.EndAddr, end)
		regions = append(regions, Region{
			Start: next,
			Size:  regionEnd - next,
			Prot:  mapProtection(m.Perms),
		})
		next = regionEnd
	}

	if next < end {
		return nil, fmt.Errorf("%w: %#x", ErrNotMapped, next)
	}

	return regions, nil
}

func (sp *systemProtector) SetProtection(r Region) error {
	region := unsafe.Slice((*byte)(unsafe.Pointer(r.Start)), r.Size)
	return unix.Mprotect(region, unixProtection(r.Prot))
}

func mapProtection(perms *procfs.ProcMapPermissions) Protection {
	if perms == nil {
		return ProtNone
	}

	var p Protection
	if perms.Read {
		p |= ProtRead
	}
	if perms.Write {
		p |= ProtWrite
	}
	if perms.Execute {
		p |= ProtExec
	}
	return p
}

func unixProtection(p Protection) int {
	prot := unix.PROT_NONE
	if p&ProtRead != 0 {
		prot |= unix.PROT_READ
	}
	if p&ProtWrite != 0 {
		prot |= unix.PROT_WRITE
	}
	if p&ProtExec != 0 {
		prot |= unix.PROT_EXEC
	}
	return prot
}
