//go:build !linux && !windows

package injector

type systemProtector struct{}

// SystemProtector returns the protector for the running OS. This platform
// has no way to read the current protection of a page, so every protected
// access fails with ErrUnsupported. Accesses with unprotect set to false
// still work.
func SystemProtector() Protector {
	return systemProtector{}
}

func (systemProtector) Protection(addr, size uintptr) ([]Region, error) {
	return nil, ErrUnsupported
}

func (systemProtector) SetProtection(r Region) error {
	return ErrUnsupported
}
