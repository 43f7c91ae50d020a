package injector

import (
	"errors"
	"sync"
	"unsafe"
)

const fakePageSize = 4096

// fakeProtector tracks protections in a map instead of changing them. It
// works on ordinary Go memory.
type fakeProtector struct {
	mu sync.Mutex

	// Protection for pages not in prots.
	initial Protection
	prots   map[uintptr]Protection

	queryErr error
	// Fail the SetProtection call with this index (0-based), -1 for never.
	failSet int
	// Fail every SetProtection call after the first failure.
	failRest bool
	// Report ranges matching deny as unmapped.
	deny func(addr, size uintptr) bool

	queries int
	sets    []Region
}

var errFakeDenied = errors.New("fake: permission denied")

func newFakeProtector() *fakeProtector {
	return &fakeProtector{
		initial: ProtRead | ProtExec,
		prots:   map[uintptr]Protection{},
		failSet: -1,
	}
}

func (f *fakeProtector) prot(page uintptr) Protection {
	if p, ok := f.prots[page]; ok {
		return p
	}
	return f.initial
}

func (f *fakeProtector) Protection(addr, size uintptr) ([]Region, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries++
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	if f.deny != nil && f.deny(addr, size) {
		return nil, ErrNotMapped
	}

	start, end := pageBounds(addr, size, fakePageSize)
	var regions []Region
	for page := start; page < end; page += fakePageSize {
		regions = append(regions, Region{Start: page, Size: fakePageSize, Prot: f.prot(page)})
	}
	return regions, nil
}

func (f *fakeProtector) SetProtection(r Region) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	idx := len(f.sets)
	f.sets = append(f.sets, r)
	if f.failSet >= 0 && (idx == f.failSet || (f.failRest && idx > f.failSet)) {
		return errFakeDenied
	}

	for page := r.Start; page < r.End(); page += fakePageSize {
		f.prots[page] = r.Prot
	}
	return nil
}

// snapshot returns the protection of every page in [addr, addr+size).
func (f *fakeProtector) snapshot(addr, size uintptr) []Protection {
	f.mu.Lock()
	defer f.mu.Unlock()

	start, end := pageBounds(addr, size, fakePageSize)
	var prots []Protection
	for page := start; page < end; page += fakePageSize {
		prots = append(prots, f.prot(page))
	}
	return prots
}

type countingTranslator struct {
	mu    sync.Mutex
	calls int
	delta uintptr
}

func (c *countingTranslator) Translate(addr uintptr) uintptr {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return addr + c.delta
}

func (c *countingTranslator) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// testBuffers holds every buffer handed out by testBuffer. Keeping them
// reachable from a global puts them on the heap, where they don't move when
// a goroutine stack grows, so the uintptr stays valid.
var (
	testBuffersMu sync.Mutex
	testBuffers   [][]byte
)

// testBuffer returns n bytes of Go memory and its address. The buffer is
// padded with INT3 so stray decodes are obvious.
func testBuffer(n int) ([]byte, Addr) {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = opcodeINT3
	}

	testBuffersMu.Lock()
	testBuffers = append(testBuffers, buf)
	testBuffersMu.Unlock()

	return buf, PtrAddr(unsafe.Pointer(unsafe.SliceData(buf)))
}

// newTestPatcher returns a Patcher with a fake protector.
func newTestPatcher(opts ...Option) (*Patcher, *fakeProtector) {
	fp := newFakeProtector()
	return New(append([]Option{WithProtector(fp)}, opts...)...), fp
}
