// Package recovery converts panics in probe code paths into errors.
package recovery

import (
	"fmt"
	"log/slog"
	"runtime/debug"
)

// PanicError carries a recovered panic value and the stack it was raised on.
type PanicError struct {
	Name  string
	Value any
	Stack []byte
}

// Error implements error.
func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in %s: %v", e.Name, e.Value)
}

// Unwrap returns the panic value when it is itself an error.
func (e *PanicError) Unwrap() error {
	if err, ok := e.Value.(error); ok {
		return err
	}
	return nil
}

// RecoverWithLog recovers from panics and logs them with the provided logger.
// Use this with defer at the start of goroutines to keep a server alive.
//
// Example:
//
//	go func() {
//	    defer recovery.RecoverWithLog(logger, "metricsServer")
//	    // ... goroutine work
//	}()
func RecoverWithLog(logger *slog.Logger, name string) {
	if r := recover(); r != nil {
		logPanic(logger, newPanicError(name, r))
	}
}

// RecoverWithCallback recovers from panics, logs them, and hands the
// resulting *PanicError to onPanic. Functions with named results use the
// callback to turn the panic into a returned error.
func RecoverWithCallback(logger *slog.Logger, name string, onPanic func(err *PanicError)) {
	if r := recover(); r != nil {
		pe := newPanicError(name, r)
		logPanic(logger, pe)
		if onPanic != nil {
			onPanic(pe)
		}
	}
}

func newPanicError(name string, r any) *PanicError {
	return &PanicError{Name: name, Value: r, Stack: debug.Stack()}
}

func logPanic(logger *slog.Logger, pe *PanicError) {
	if logger == nil {
		return
	}
	logger.Error("panic recovered",
		"goroutine", pe.Name,
		"panic", fmt.Sprintf("%v", pe.Value),
		"stack", string(pe.Stack))
}
