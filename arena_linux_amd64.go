package injector

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/pboyd/malloc"
	"golang.org/x/sys/unix"
)

const (
	arenaRX  = unix.PROT_READ | unix.PROT_EXEC
	arenaRWX = unix.PROT_READ | unix.PROT_WRITE | unix.PROT_EXEC

	arenaStartSize = 4096
)

// allocator hands out executable memory for thunks.
type allocator struct {
	*malloc.Arena
	mprotect func(int) error
	mu       sync.Mutex
	initOnce sync.Once
	initErr  error
	mutable  bool

	// Live allocations by start address.
	blocks map[uintptr][]byte
}

var thunkAllocator = &allocator{}

func (a *allocator) init() error {
	a.initOnce.Do(func() {
		// The backend maps read/write plus these. MAP_32BIT keeps thunks in
		// rel32 range of the executable's text.
		be := malloc.MmapBackend(malloc.MmapProt(unix.PROT_EXEC), malloc.MmapFlags(unix.MAP_32BIT))
		if protBE, ok := be.(malloc.ProtectedArenaBackend); ok {
			a.mprotect = protBE.Protect
		} else {
			a.mprotect = func(int) error {
				return nil
			}
		}

		a.Arena = malloc.NewArena(arenaStartSize, malloc.Backend(be))
		if a.Arena == nil {
			a.initErr = errors.New("unable to initialize arena")
			return
		}
		a.mutable = true
		a.blocks = map[uintptr][]byte{}
	})
	return a.initErr
}

func (a *allocator) beginMutate() error {
	if a.mutable {
		return nil
	}

	err := a.mprotect(arenaRWX)
	if err == nil {
		a.mutable = true
	}
	return err
}

func (a *allocator) endMutate() error {
	if !a.mutable {
		return nil
	}

	err := a.mprotect(arenaRX)
	if err == nil {
		a.mutable = false
	}
	return err
}

// place copies code into the arena and returns its address.
func (a *allocator) place(code []byte) (uintptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.init(); err != nil {
		return 0, fmt.Errorf("error initializing allocator: %w", err)
	}

	if err := a.beginMutate(); err != nil {
		return 0, err
	}
	defer a.endMutate()

	buf, err := malloc.MallocSlice[byte](a.Arena, len(code))
	if err != nil {
		return 0, err
	}
	copy(buf, code)

	addr := uintptr(unsafe.Pointer(unsafe.SliceData(buf)))
	a.blocks[addr] = buf
	return addr, nil
}

// release frees the block at addr.
func (a *allocator) release(addr uintptr) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	buf, ok := a.blocks[addr]
	if !ok {
		return fmt.Errorf("no thunk at %#x", addr)
	}

	if err := a.beginMutate(); err != nil {
		return err
	}
	defer a.endMutate()

	malloc.FreeSlice(a.Arena, buf)
	delete(a.blocks, addr)
	return nil
}
