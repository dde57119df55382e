package concurrency

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// SafeGo runs a function in a goroutine with panic recovery.
func SafeGo(fn func(), onPanic func(interface{})) {
	go func() {
		_ = SafeCall(fn, onPanic)
	}()
}

// SafeCall runs fn on the current goroutine and turns a panic into an error.
func SafeCall(fn func(), onPanic func(interface{})) (err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Panic recovered", "panic", r, "stack", string(debug.Stack()))
			err = fmt.Errorf("panic: %v", r)
			if onPanic != nil {
				onPanic(r)
			}
		}
	}()
	fn()
	return nil
}
