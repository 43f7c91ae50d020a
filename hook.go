package injector

import (
	"errors"
	"fmt"
	"reflect"
	"runtime"
)

// ErrNotHooked is returned by UnhookFunc for a function HookFunc hasn't
// touched.
var ErrNotHooked = errors.New("function is not hooked")

type hook struct {
	// Entry bytes before the first hook.
	saved []byte
}

// HookFunc redirects fn to newFn by writing a jump at the entry of fn. It
// returns the previous branch destination at the entry, which is the
// previous replacement if fn was already hooked.
//
// An error is returned if fn or newFn are not functions, if their signatures
// do not match, or if fn is too small to hold the jump.
//
// Note that if fn has been inlined this will silently fail. If possible, add
// a noinline directive to work-around this problem:
//
//	//go:noinline
//	func myfunc() {
//		...
//	}
func (p *Patcher) HookFunc(fn, newFn any) (Addr, error) {
	if runtime.GOARCH != "amd64" {
		return Nil, fmt.Errorf("function hooks are not supported on %s", runtime.GOARCH)
	}

	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return Nil, fmt.Errorf("not a function, kind: %v", fnv.Kind())
	}
	newFnv := reflect.ValueOf(newFn)
	if newFnv.Kind() != reflect.Func {
		return Nil, fmt.Errorf("not a function, kind: %v", newFnv.Kind())
	}
	if err := compareSignatures(fnv.Type(), newFnv.Type()); err != nil {
		return Nil, fmt.Errorf("function signatures do not match: %w", err)
	}

	entry := RawAddr(fnv.Pointer())
	dest := RawAddr(newFnv.Pointer())

	size := funcSize(entry.Value)
	if need := p.JumpSize(entry, dest); size < uintptr(need) {
		return Nil, fmt.Errorf("function at %s is %d bytes, need %d", entry, size, need)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, hooked := p.hooks[entry.Value]
	if !hooked {
		saved, err := readBytesAt(p, entry.Value, int(min(size, farJumpSize)), p.unprotect)
		if err != nil {
			return Nil, err
		}
		p.hooks[entry.Value] = &hook{saved: saved}
	}

	prev, err := p.MakeJMP(entry, dest)
	if err != nil {
		if !hooked {
			delete(p.hooks, entry.Value)
		}
		return Nil, err
	}
	return prev, nil
}

// UnhookFunc restores the original entry of a function hooked by HookFunc.
func (p *Patcher) UnhookFunc(fn any) error {
	fnv := reflect.ValueOf(fn)
	if fnv.Kind() != reflect.Func {
		return fmt.Errorf("not a function, kind: %v", fnv.Kind())
	}
	entry := fnv.Pointer()

	p.mu.Lock()
	defer p.mu.Unlock()

	h, ok := p.hooks[entry]
	if !ok {
		return ErrNotHooked
	}

	err := writeBytesAt(p, entry, h.saved, p.unprotect)
	if err != nil {
		return err
	}
	delete(p.hooks, entry)
	return nil
}
