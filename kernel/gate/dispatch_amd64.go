package gate

import (
	"github.com/Sparkpin/spinel/kernel"
	"github.com/Sparkpin/spinel/kernel/cpu"
	"github.com/Sparkpin/spinel/kernel/kfmt"
)

// Handler is a Go function that services an interrupt. Changes to the
// supplied registers are propagated back to the interrupted code when the
// handler returns.
type Handler func(*Registers)

// Page fault error code bits.
const (
	pfPresent     = 1 << 0
	pfWrite       = 1 << 1
	pfUser        = 1 << 2
	pfReserved    = 1 << 3
	pfInstruction = 1 << 4
)

var (
	handlers [EntryCount]Handler

	// The following functions are mocked by tests.
	panicFn   = kfmt.Panic
	readCR2Fn = cpu.ReadCR2

	errUnhandledInterrupt = &kernel.Error{Module: "gate", Message: "unhandled interrupt"}
)

// HandleInterrupt registers handler as the service routine for num. Passing
// a nil handler restores the default behavior for num, which is to report
// the interrupt and panic.
//
// Handlers are meant to be registered while the kernel boots; registering a
// handler for a vector that may fire concurrently is not supported.
func HandleInterrupt(num InterruptNumber, handler Handler) {
	handlers[num] = handler
}

// Dispatch is invoked by the interrupt entry stubs with a pointer to the
// register snapshot they saved on the stack. It routes the interrupt to the
// registered handler or to the default handler if none is registered.
func Dispatch(regs *Registers) {
	if h := handlers[uint8(regs.Info)]; h != nil {
		h(regs)
		return
	}

	defaultHandler(regs)
}

// defaultHandler reports an interrupt that has no registered handler and
// panics. Unhandled exceptions are always fatal at this stage of the boot
// process and so are unexpected external interrupts.
func defaultHandler(regs *Registers) {
	num := InterruptNumber(regs.Info)

	if num.IsException() {
		kfmt.Printf("\nunhandled exception %d (%s), code 0x%x\n", uint8(num), num.Name(), regs.ErrorCode)
	} else {
		kfmt.Printf("\nunhandled interrupt %d\n", uint8(num))
	}

	if num == PageFaultException {
		reportPageFault(regs.ErrorCode)
	}

	kfmt.Printf("faulting instruction at 0x%x\n", regs.RIP)
	regs.DumpTo(kfmt.GetOutputSink())

	panicFn(errUnhandledInterrupt)
}

// reportPageFault prints the faulting address and the decoded page fault
// error code.
func reportPageFault(code uint64) {
	kfmt.Printf("page fault address: 0x%x\n", readCR2Fn())
	kfmt.Printf(
		"present: %t, write: %t, user: %t, reserved bit: %t, instruction fetch: %t\n",
		code&pfPresent != 0,
		code&pfWrite != 0,
		code&pfUser != 0,
		code&pfReserved != 0,
		code&pfInstruction != 0,
	)
}
