package injector

import (
	"errors"
	"fmt"
	"reflect"
)

// compareSignatures returns nil if a and b are the same function type, or an
// error listing every argument and result that differs.
func compareSignatures(a, b reflect.Type) error {
	errs := []error{}

	for i := 0; i < max(a.NumIn(), b.NumIn()); i++ {
		at, bt := argType(a.In, a.NumIn(), i), argType(b.In, b.NumIn(), i)
		if at != bt {
			errs = append(errs, fmt.Errorf("argument %d: %v != %v", i, at, bt))
		}
	}

	for i := 0; i < max(a.NumOut(), b.NumOut()); i++ {
		at, bt := argType(a.Out, a.NumOut(), i), argType(b.Out, b.NumOut(), i)
		if at != bt {
			errs = append(errs, fmt.Errorf("output %d: %v != %v", i, at, bt))
		}
	}

	if a.IsVariadic() != b.IsVariadic() {
		errs = append(errs, errors.New("variadic mismatch"))
	}

	return errors.Join(errs...)
}

// argType returns get(i), or nil if i is past n.
func argType(get func(int) reflect.Type, n, i int) reflect.Type {
	if i >= n {
		return nil
	}
	return get(i)
}
