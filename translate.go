package injector

// Translator maps an address from the layout patch offsets were written
// against to the address in the running process. Translate must be pure and
// total: an address it doesn't know about should be returned unchanged.
type Translator interface {
	Translate(addr uintptr) uintptr
}

// TranslatorFunc adapts a function to the Translator interface.
type TranslatorFunc func(uintptr) uintptr

func (f TranslatorFunc) Translate(addr uintptr) uintptr {
	return f(addr)
}

// Identity is the translator used when none is configured.
var Identity Translator = TranslatorFunc(func(addr uintptr) uintptr { return addr })

// Resolve returns the effective address for a. Translated addresses go
// through the translator, raw addresses are returned as is.
func (p *Patcher) Resolve(a Addr) uintptr {
	if a.Domain != Translated || p.translator == nil {
		return a.Value
	}
	return p.translator.Translate(a.Value)
}
