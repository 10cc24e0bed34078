package kernel

import (
	"fmt"
	"runtime/debug"
)

// SafeExecute runs fn and turns a panic into an error, so a bug in one
// operation never takes down the control plane. The operation name is used
// for logging context.
func SafeExecute(logger Logger, operation string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, "panic_recovered", operation, r)
			err = fmt.Errorf("panic in %s: %v", operation, r)
		}
	}()
	return fn()
}

// SafeExecuteWithResult is SafeExecute for operations that return a value.
// On panic the zero value is returned with the error.
func SafeExecuteWithResult[T any](logger Logger, operation string, fn func() (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			logPanic(logger, "panic_recovered", operation, r)
			var zero T
			result = zero
			err = fmt.Errorf("panic in %s: %v", operation, r)
		}
	}()
	return fn()
}

// SafeGo runs fn in a goroutine. A panic is logged and handed to onPanic.
func SafeGo(logger Logger, operation string, fn func(), onPanic func(recovered any)) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logPanic(logger, "goroutine_panic_recovered", operation, r)
				if onPanic != nil {
					onPanic(r)
				}
			}
		}()
		fn()
	}()
}

func logPanic(logger Logger, event, operation string, recovered any) {
	if logger == nil {
		return
	}
	logger.Error(event,
		"operation", operation,
		"panic", recovered,
		"stack", string(debug.Stack()),
	)
}
