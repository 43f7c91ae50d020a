package injector

import (
	"errors"
	"fmt"
	"strings"
)

// Protection is a set of page access flags.
type Protection uint8

const (
	ProtRead Protection = 1 << iota
	ProtWrite
	ProtExec

	ProtNone Protection = 0
	ProtRWX             = ProtRead | ProtWrite | ProtExec
)

func (p Protection) String() string {
	var sb strings.Builder
	for _, f := range []struct {
		flag Protection
		c    byte
	}{{ProtRead, 'r'}, {ProtWrite, 'w'}, {ProtExec, 'x'}} {
		if p&f.flag != 0 {
			sb.WriteByte(f.c)
		} else {
			sb.WriteByte('-')
		}
	}
	return sb.String()
}

// Region is a page-aligned memory range with a single protection.
type Region struct {
	Start uintptr
	Size  uintptr
	Prot  Protection

	// OS protection flags when Prot can't express them exactly. Zero
	// means use Prot.
	sys uint32
}

func (r Region) End() uintptr {
	return r.Start + r.Size
}

// Protector reads and changes page protections.
type Protector interface {
	// Protection returns the regions covering [addr, addr+size) with their
	// current protection. The regions are page aligned, sorted and
	// contiguous. ErrNotMapped is returned if any part of the range is not
	// mapped.
	Protection(addr, size uintptr) ([]Region, error)

	// SetProtection changes the protection of r.
	SetProtection(r Region) error
}

var (
	// ErrAccess matches every protection failure with errors.Is.
	ErrAccess = errors.New("memory access failed")

	ErrNotMapped   = errors.New("address not mapped")
	ErrUnsupported = errors.New("memory protection is not supported on this platform")
)

// AccessError is returned when the protection of a region could not be read,
// lifted or restored.
type AccessError struct {
	Op   string
	Addr uintptr
	Size uintptr
	Err  error
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%s %#x+%d: %v", e.Op, e.Addr, e.Size, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

func (e *AccessError) Is(target error) bool {
	return target == ErrAccess
}

// unprotected is an open protection scope.
type unprotected struct {
	pr    Protector
	addr  uintptr
	size  uintptr
	saved []Region
}

// unprotect makes [addr, addr+size) readable, writable and executable. The
// caller must call restore when it is done. Nothing is left changed if an
// error is returned.
func unprotect(pr Protector, addr, size uintptr) (*unprotected, error) {
	saved, err := pr.Protection(addr, size)
	if err != nil {
		return nil, &AccessError{Op: "query", Addr: addr, Size: size, Err: err}
	}

	for i, r := range saved {
		if r.Prot == ProtRWX {
			continue
		}

		err := pr.SetProtection(Region{Start: r.Start, Size: r.Size, Prot: ProtRWX})
		if err != nil {
			// Put back whatever was already changed.
			rollback := &unprotected{pr: pr, addr: addr, size: size, saved: saved[:i]}
			return nil, errors.Join(
				&AccessError{Op: "unprotect", Addr: addr, Size: size, Err: err},
				rollback.restore(),
			)
		}
	}

	return &unprotected{pr: pr, addr: addr, size: size, saved: saved}, nil
}

// restore sets every region back to the protection it had when the scope
// was opened.
func (u *unprotected) restore() error {
	var errs []error
	for i := len(u.saved) - 1; i >= 0; i-- {
		r := u.saved[i]
		if r.Prot == ProtRWX {
			continue
		}
		if err := u.pr.SetProtection(r); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	return &AccessError{Op: "reprotect", Addr: u.addr, Size: u.size, Err: errors.Join(errs...)}
}

// withUnprotected runs fn with [addr, addr+size) unprotected. fn is not
// called if the protection could not be lifted. When enabled is false or
// size is zero fn is called directly.
func withUnprotected(pr Protector, addr, size uintptr, enabled bool, fn func()) (err error) {
	if !enabled || size == 0 {
		fn()
		return nil
	}

	scope, err := unprotect(pr, addr, size)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, scope.restore())
	}()

	fn()
	return nil
}

// pageBounds rounds [addr, addr+size) out to whole pages.
func pageBounds(addr, size uintptr, pageSize int) (start, end uintptr) {
	ps := uintptr(pageSize)
	start = addr &^ (ps - 1)
	end = (addr + size + ps - 1) &^ (ps - 1)
	return start, end
}
