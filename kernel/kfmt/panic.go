package kfmt

import (
	"github.com/Sparkpin/spinel/kernel"
	"github.com/Sparkpin/spinel/kernel/cpu"
)

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	// panicking is set once the first panic starts reporting. A fault
	// raised while the report is being printed skips straight to the halt
	// loop instead of recursing into the formatting code.
	panicking bool

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic)
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	PanicAt("", 0, e)
}

// PanicAt behaves like Panic but also reports the source location that
// triggered the panic. The location is omitted from the report if file is
// empty.
func PanicAt(file string, line int, e interface{}) {
	if !panicking {
		panicking = true
		report(file, line, e)
	}

	for {
		cpuHaltFn()
	}
}

// panicString serves as a redirect target for runtime.throw
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	Panic(msg)
}

// report formats the panic record for e to the active output sink.
func report(file string, line int, e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		errRuntimePanic.Message = t
		err = errRuntimePanic
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	if file != "" {
		Printf(" at %s:%d\n", file, line)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")
}
