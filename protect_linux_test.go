package injector

import (
	"errors"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// mapPages maps n anonymous pages with prot and unmaps them when the test
// ends.
func mapPages(t *testing.T, n int, prot int, flags int) ([]byte, Addr) {
	t.Helper()

	mem, err := unix.Mmap(-1, 0, n*unix.Getpagesize(), prot, unix.MAP_PRIVATE|unix.MAP_ANON|flags)
	require.NoError(t, err)
	t.Cleanup(func() {
		unix.Munmap(mem)
	})
	return mem, PtrAddr(unsafe.Pointer(unsafe.SliceData(mem)))
}

func currentProtection(t *testing.T, addr Addr, size uintptr) []Protection {
	t.Helper()

	regions, err := SystemProtector().Protection(addr.Value, size)
	require.NoError(t, err)

	var prots []Protection
	for _, r := range regions {
		prots = append(prots, r.Prot)
	}
	return prots
}

func TestSystemProtectorProtection(t *testing.T) {
	pageSize := uintptr(unix.Getpagesize())
	_, base := mapPages(t, 2, unix.PROT_READ|unix.PROT_EXEC, 0)

	regions, err := SystemProtector().Protection(base.Value+10, 20)
	require.NoError(t, err)
	assert.Equal(t, []Region{{Start: base.Value, Size: pageSize, Prot: ProtRead | ProtExec}}, regions)

	require.NoError(t, unix.Mprotect(unsafe.Slice((*byte)(unsafe.Pointer(base.Value+pageSize)), pageSize), unix.PROT_READ))

	regions, err = SystemProtector().Protection(base.Value+pageSize-2, 4)
	require.NoError(t, err)
	assert.Equal(t, []Region{
		{Start: base.Value, Size: pageSize, Prot: ProtRead | ProtExec},
		{Start: base.Value + pageSize, Size: pageSize, Prot: ProtRead},
	}, regions)
}

func TestSystemWriteRestoresProtection(t *testing.T) {
	mem, base := mapPages(t, 1, unix.PROT_READ|unix.PROT_EXEC, 0)
	p := New()

	_, err := Write(p, base.Add(8), uint32(0xdeadbeef), true)
	require.NoError(t, err)
	assert.Equal(t, []byte{0xef, 0xbe, 0xad, 0xde}, mem[8:12])
	assert.Equal(t, []Protection{ProtRead | ProtExec}, currentProtection(t, base, 1))
}

func TestSystemReadNoAccessPage(t *testing.T) {
	mem, base := mapPages(t, 1, unix.PROT_READ|unix.PROT_WRITE, 0)
	mem[0] = 0x42
	require.NoError(t, unix.Mprotect(mem, unix.PROT_NONE))

	p := New()
	v, err := Read[uint8](p, base, true)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), v)
	assert.Equal(t, []Protection{ProtNone}, currentProtection(t, base, 1))
}

func TestSystemWriteAcrossMixedPages(t *testing.T) {
	pageSize := uintptr(unix.Getpagesize())
	mem, base := mapPages(t, 2, unix.PROT_READ|unix.PROT_EXEC, 0)
	require.NoError(t, unix.Mprotect(mem[pageSize:], unix.PROT_READ))

	site := base.Add(pageSize - 2)
	_, err := Write(New(), site, uint32(0x04030201), true)
	require.NoError(t, err)

	assert.Equal(t, []byte{1, 2, 3, 4}, mem[pageSize-2:pageSize+2])
	assert.Equal(t, []Protection{ProtRead | ProtExec, ProtRead}, currentProtection(t, site, 4))
}

func TestSystemWriteUnmapped(t *testing.T) {
	mem, base := mapPages(t, 1, unix.PROT_READ, 0)
	require.NoError(t, unix.Munmap(mem))

	_, err := Write(New(), base, uint8(1), true)
	assert.True(t, errors.Is(err, ErrAccess))
	assert.True(t, errors.Is(err, ErrNotMapped))
}

func TestSystemMakeJMP(t *testing.T) {
	mem, base := mapPages(t, 1, unix.PROT_READ|unix.PROT_EXEC, 0)
	pp := New()

	prev, err := pp.MakeJMP(base, base.Add(0x80))
	require.NoError(t, err)
	assert.True(t, prev.IsNil())
	assert.Equal(t, byte(opcodeJMP), mem[0])

	prev, err = pp.MakeJMP(base, base.Add(1<<40))
	require.NoError(t, err)
	assert.Equal(t, base.Add(0x80), prev)

	dest, err := pp.BranchDestination(base)
	require.NoError(t, err)
	assert.Equal(t, base.Add(1<<40), dest)

	assert.Equal(t, []Protection{ProtRead | ProtExec}, currentProtection(t, base, 1))
}
