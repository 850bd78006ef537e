// Package kmain contains the kernel entry point.
package kmain

import (
	"io"

	"github.com/Sparkpin/spinel/kernel"
	"github.com/Sparkpin/spinel/kernel/arch"
	"github.com/Sparkpin/spinel/kernel/cpu"
	"github.com/Sparkpin/spinel/kernel/hal"
	"github.com/Sparkpin/spinel/kernel/kfmt"
	"github.com/Sparkpin/spinel/kernel/version"
)

// Kernel holds the state that is set up while the kernel comes up. A single
// statically allocated instance exists and is passed by pointer to the code
// that needs it.
type Kernel struct {
	// Out receives the boot diagnostics.
	Out io.Writer

	// Arch owns the interrupt descriptor table.
	Arch arch.BringUp

	// Info holds the strings printed by the boot banner.
	Info version.Info
}

var (
	kernelCtx Kernel

	// The following functions are mocked by tests.
	initTerminalFn = hal.InitTerminal
	idleFn         = cpu.WaitForInterrupt
	panicFn        = kfmt.Panic

	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}
)

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT and a minimal g0 struct that allows Go code to
// run on the stack allocated by the assembly code.
//
// Kmain is not expected to return. If it does, the rt0 code will halt the CPU.
//
//go:noinline
func Kmain() {
	kernelCtx.Info = version.Current()

	// The terminal probes VGA and COM1 ports before the IDT is loaded so
	// that arch boot-fatal errors have somewhere to go. A fault while
	// probing resets the machine without a message.
	kernelCtx.Out = initTerminalFn()

	run(&kernelCtx)

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating kfmt.Panic as dead-code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// run brings up the CPU, prints the banner and enters the idle loop. The
// banner is printed only after interrupts are routed to the interrupt
// table.
func run(k *Kernel) {
	if err := k.Arch.Init(k.Out); err != nil {
		panicFn(err)
		return
	}

	printBanner(k.Out, k.Info)
	idle()
}

// printBanner writes the identification banner followed by the boot status
// line.
func printBanner(w io.Writer, info version.Info) {
	kfmt.Fprintf(w, "%s %s on %s %s\n", info.OSName, info.Version, info.Processor, info.Machine)
	kfmt.Fprintf(w, "The system is coming up.\n")
}

// idle parks the CPU until the next interrupt, forever. Interrupt handlers
// run and return to this loop.
func idle() {
	for {
		idleFn()
	}
}
