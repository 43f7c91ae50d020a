package injector

import (
	"errors"
	"fmt"
	"math"
)

// ErrOutOfRange is returned when a displacement does not fit the field it
// has to be stored in.
var ErrOutOfRange = errors.New("displacement out of range")

// Width is the size in bytes of a relative offset field.
type Width int

const (
	Width8  Width = 1
	Width16 Width = 2
	Width32 Width = 4
)

func (w Width) valid() bool {
	return w == Width8 || w == Width16 || w == Width32
}

func (w Width) fits(rel int64) bool {
	switch w {
	case Width8:
		return rel >= math.MinInt8 && rel <= math.MaxInt8
	case Width16:
		return rel >= math.MinInt16 && rel <= math.MaxInt16
	case Width32:
		return FitsRel32(rel)
	}
	return false
}

// RelativeOffset returns the displacement an instruction ending at end
// needs to reach target. The result can exceed 32 bits.
func RelativeOffset(target, end Addr) int64 {
	return target.Diff(end)
}

// AbsoluteOffset returns the address a displacement of rel reaches from an
// instruction ending at end. It is the inverse of RelativeOffset.
func AbsoluteOffset(rel int64, end Addr) Addr {
	return Addr{Value: end.Value + uintptr(rel), Domain: end.Domain}
}

// FitsRel32 reports whether rel can be encoded as a signed 32-bit
// displacement.
func FitsRel32(rel int64) bool {
	return rel >= math.MinInt32 && rel <= math.MaxInt32
}

// ReadRelativeOffset reads a signed displacement of width w at at and
// returns the address it points to. The displacement is relative to the end
// of the field.
func (p *Patcher) ReadRelativeOffset(at Addr, w Width) (Addr, error) {
	return p.readRelativeOffset(p.Resolve(at), w)
}

func (p *Patcher) readRelativeOffset(addr uintptr, w Width) (Addr, error) {
	var (
		rel int64
		err error
	)
	switch w {
	case Width8:
		var v int8
		v, err = readAt[int8](p, addr, p.unprotect)
		rel = int64(v)
	case Width16:
		var v int16
		v, err = readAt[int16](p, addr, p.unprotect)
		rel = int64(v)
	case Width32:
		var v int32
		v, err = readAt[int32](p, addr, p.unprotect)
		rel = int64(v)
	default:
		return Nil, fmt.Errorf("unsupported offset width %d", w)
	}
	if err != nil {
		return Nil, err
	}

	return AbsoluteOffset(rel, RawAddr(addr+uintptr(w))), nil
}

// MakeRelativeOffset writes the displacement from the end of a w wide field
// at at to dest. It returns the address after the field.
func (p *Patcher) MakeRelativeOffset(at, dest Addr, w Width) (Addr, error) {
	if !w.valid() {
		return Nil, fmt.Errorf("unsupported offset width %d", w)
	}

	addr := p.Resolve(at)
	rel := RelativeOffset(RawAddr(p.Resolve(dest)), RawAddr(addr+uintptr(w)))
	if !w.fits(rel) {
		return Nil, fmt.Errorf("%w: %#x does not fit in %d bytes", ErrOutOfRange, rel, w)
	}

	var err error
	switch w {
	case Width8:
		err = writeAt(p, addr, int8(rel), p.unprotect)
	case Width16:
		err = writeAt(p, addr, int16(rel), p.unprotect)
	case Width32:
		err = writeAt(p, addr, int32(rel), p.unprotect)
	}
	if err != nil {
		return Nil, err
	}
	return at.Add(uintptr(w)), nil
}
