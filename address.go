package injector

import (
	"fmt"
	"unsafe"
)

// Domain says whether an address must be translated before it is used.
type Domain uint8

const (
	// Raw addresses are used exactly as given.
	Raw Domain = iota

	// Translated addresses pass through the Patcher's Translator when they
	// are dereferenced.
	Translated
)

func (d Domain) String() string {
	switch d {
	case Raw:
		return "raw"
	case Translated:
		return "translated"
	}
	return fmt.Sprintf("Domain(%d)", uint8(d))
}

// Addr is a machine address tagged with its domain.
//
// Arithmetic and comparisons always work on the untranslated Value.
// Translation only happens when the address is read from, written to or
// decoded, and only once.
type Addr struct {
	Value  uintptr
	Domain Domain
}

// Nil is the zero address. BranchDestination and MakeJMP return it when
// there's no recognized destination.
var Nil Addr

// RawAddr returns an address that is never translated.
func RawAddr(v uintptr) Addr {
	return Addr{Value: v, Domain: Raw}
}

// TranslatedAddr returns an address that will be translated on access.
func TranslatedAddr(v uintptr) Addr {
	return Addr{Value: v, Domain: Translated}
}

// PtrAddr returns the raw address of p.
func PtrAddr(p unsafe.Pointer) Addr {
	return RawAddr(uintptr(p))
}

func (a Addr) IsNil() bool {
	return a.Value == 0
}

// AsRaw returns the same value in the raw domain. It does not translate.
func (a Addr) AsRaw() Addr {
	return RawAddr(a.Value)
}

// AsTranslated returns the same value in the translated domain.
func (a Addr) AsTranslated() Addr {
	return TranslatedAddr(a.Value)
}

func (a Addr) Add(n uintptr) Addr {
	return Addr{Value: a.Value + n, Domain: a.Domain}
}

func (a Addr) Sub(n uintptr) Addr {
	return Addr{Value: a.Value - n, Domain: a.Domain}
}

func (a Addr) Mul(n uintptr) Addr {
	return Addr{Value: a.Value * n, Domain: a.Domain}
}

// Div panics if n is zero, like integer division.
func (a Addr) Div(n uintptr) Addr {
	return Addr{Value: a.Value / n, Domain: a.Domain}
}

// Diff returns a-b as a signed distance.
func (a Addr) Diff(b Addr) int64 {
	return int64(a.Value - b.Value)
}

// Equal compares values only. A raw and a translated address with the same
// value are equal, the same as the arithmetic ignoring the domain.
func (a Addr) Equal(b Addr) bool {
	return a.Value == b.Value
}

func (a Addr) Less(b Addr) bool {
	return a.Value < b.Value
}

// Compare returns -1, 0 or +1 as a is less than, equal to or greater than b.
func (a Addr) Compare(b Addr) int {
	switch {
	case a.Value < b.Value:
		return -1
	case a.Value > b.Value:
		return 1
	}
	return 0
}

func (a Addr) String() string {
	if a.Domain == Translated {
		return fmt.Sprintf("tr:%#x", a.Value)
	}
	return fmt.Sprintf("%#x", a.Value)
}
