package injector

import "unsafe"

// Read returns the T stored at a. If unprotect is true the page protection is
// lifted for the read and restored afterwards.
//
// T must be a fixed-size type without pointers.
func Read[T any](p *Patcher, a Addr, unprotect bool) (T, error) {
	return readAt[T](p, p.Resolve(a), unprotect)
}

// Write stores v at a and returns the address just past it, so consecutive
// writes can be chained. If unprotect is true the page protection is lifted
// for the write and restored afterwards.
func Write[T any](p *Patcher, a Addr, v T, unprotect bool) (Addr, error) {
	err := writeAt(p, p.Resolve(a), v, unprotect)
	if err != nil {
		return Nil, err
	}
	return a.Add(unsafe.Sizeof(v)), nil
}

// ReadBytes returns n bytes starting at a.
func ReadBytes(p *Patcher, a Addr, n int, unprotect bool) ([]byte, error) {
	return readBytesAt(p, p.Resolve(a), n, unprotect)
}

// WriteBytes copies b to a and returns the address after the last byte
// written.
func WriteBytes(p *Patcher, a Addr, b []byte, unprotect bool) (Addr, error) {
	err := writeBytesAt(p, p.Resolve(a), b, unprotect)
	if err != nil {
		return Nil, err
	}
	return a.Add(uintptr(len(b))), nil
}

// The *At functions take an effective address that has already been
// translated.

func readAt[T any](p *Patcher, addr uintptr, unprotect bool) (T, error) {
	var v T
	err := withUnprotected(p.protector, addr, unsafe.Sizeof(v), unprotect, func() {
		v = *(*T)(unsafe.Pointer(addr))
	})
	return v, err
}

func writeAt[T any](p *Patcher, addr uintptr, v T, unprotect bool) error {
	return withUnprotected(p.protector, addr, unsafe.Sizeof(v), unprotect, func() {
		*(*T)(unsafe.Pointer(addr)) = v
	})
}

func readBytesAt(p *Patcher, addr uintptr, n int, unprotect bool) ([]byte, error) {
	buf := make([]byte, n)
	err := withUnprotected(p.protector, addr, uintptr(n), unprotect, func() {
		copy(buf, unsafe.Slice((*byte)(unsafe.Pointer(addr)), n))
	})
	if err != nil {
		return nil, err
	}
	return buf, nil
}

func writeBytesAt(p *Patcher, addr uintptr, b []byte, unprotect bool) error {
	return withUnprotected(p.protector, addr, uintptr(len(b)), unprotect, func() {
		copy(unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(b)), b)
	})
}
