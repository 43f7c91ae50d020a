//go:build !(linux && amd64)

package injector

import "errors"

var errNoArena = errors.New("jump thunks are only supported on linux/amd64")

type allocator struct{}

var thunkAllocator = &allocator{}

func (a *allocator) place(code []byte) (uintptr, error) {
	return 0, errNoArena
}

func (a *allocator) release(addr uintptr) error {
	return errNoArena
}
