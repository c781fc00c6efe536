package hwutils

import (
	"github.com/pkg/errors"

	"github.com/holoverse/holoworld/engine/hwlog"
)

// RunPanicless calls a function panic-freely
func RunPanicless(f func()) (paniced bool) {
	defer func() {
		err := recover()
		if err != nil {
			hwlog.TraceError("%s panic: %s", f, err)
			paniced = true
		}
	}()

	f()
	return
}

// RepeatUntilPanicless runs the function repeatedly until there is no panic
func RepeatUntilPanicless(f func()) {
	for !RunPanicless(f) {
	}
}

// CatchPanic calls a function and returns the panic as an error
func CatchPanic(f func()) (err error) {
	defer func() {
		_err := recover()
		if _err != nil {
			hwlog.TraceError("CatchPanic: %s panic: %s", f, _err)
			err = errors.Errorf("panic: %v", _err)
		}
	}()

	f()
	return
}

// NextLargerKey returns the next string that is larger than key,
// but smaller than any other string larger than key
func NextLargerKey(key string) string {
	return key + "\x00"
}
