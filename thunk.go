package injector

import (
	"errors"
	"fmt"
)

// JumpThunk writes an absolute jump to dest into executable memory allocated
// in the low 2GB of the address space and returns its address. A 5-byte
// relative jump to the thunk can then reach a destination that is too far
// for one directly.
func (p *Patcher) JumpThunk(dest Addr) (Addr, error) {
	target := p.Resolve(dest)
	code := farJump(target)

	addr, err := thunkAllocator.place(code[:])
	if err != nil {
		return Nil, fmt.Errorf("unable to allocate thunk: %w", err)
	}

	p.logPatch("thunk", addr, target, code[:], 6)
	return RawAddr(addr), nil
}

// FreeThunk releases a thunk returned by JumpThunk. Nothing may still jump
// to it.
func (p *Patcher) FreeThunk(thunk Addr) error {
	return thunkAllocator.release(thunk.Value)
}

// MakeNearJMP is like MakeJMP but never writes more than 5 bytes. If dest is
// out of rel32 range a thunk is allocated and the jump goes through it.
// ErrOutOfRange is returned if the thunk isn't in range either.
//
// The returned thunk is Nil if none was needed.
func (p *Patcher) MakeNearJMP(at, dest Addr) (prev, thunk Addr, err error) {
	addr := p.Resolve(at)
	target := p.Resolve(dest)

	if p.isNear(addr, target) {
		prev, err = p.MakeJMP(RawAddr(addr), RawAddr(target))
		return prev, Nil, err
	}

	thunk, err = p.JumpThunk(RawAddr(target))
	if err != nil {
		return Nil, Nil, err
	}
	if !p.isNear(addr, thunk.Value) {
		return Nil, Nil, errors.Join(
			fmt.Errorf("%w: thunk %s is too far from %#x", ErrOutOfRange, thunk, addr),
			p.FreeThunk(thunk),
		)
	}

	prev, err = p.MakeJMP(RawAddr(addr), thunk)
	if err != nil {
		return Nil, Nil, errors.Join(err, p.FreeThunk(thunk))
	}
	return prev, thunk, nil
}
