package injector_test

import (
	"fmt"
	"strings"
	"unsafe"

	"github.com/pboyd/injector"
)

// Code patched through an Addr must not move, so keep it on the heap.
var exampleCode []byte

func ExamplePatcher_MakeJMP() {
	// A JMP rel32 to 0x10 bytes past its end.
	exampleCode = []byte{0xe9, 0x10, 0x00, 0x00, 0x00, 0xcc, 0xcc, 0xcc}
	site := injector.PtrAddr(unsafe.Pointer(&exampleCode[0]))

	// The buffer is ordinary Go memory, so there's no need to change its
	// protection.
	p := injector.New(injector.WithUnprotect(false))

	dest, _ := p.BranchDestination(site)
	fmt.Printf("jumps to site+%#x\n", dest.Diff(site))

	prev, _ := p.MakeJMP(site, site.Add(0x100))
	dest, _ = p.BranchDestination(site)
	fmt.Printf("was site+%#x, now site+%#x\n", prev.Diff(site), dest.Diff(site))
	// Output:
	// jumps to site+0x15
	// was site+0x15, now site+0x100
}

func ExampleLoadTable() {
	table, err := injector.LoadTable(strings.NewReader(`
segments:
  - name: .text
    from: 0x401000
    to: 0x7ff6a1001000
    size: 0x100000
`))
	if err != nil {
		panic(err)
	}

	p := injector.New(injector.WithTranslator(table))
	fmt.Printf("%#x\n", p.Resolve(injector.TranslatedAddr(0x4a1234)))
	fmt.Printf("%#x\n", p.Resolve(injector.RawAddr(0x4a1234)))
	// Output:
	// 0x7ff6a10a1234
	// 0x4a1234
}
