// Package gate models the x86_64 interrupt descriptor table and routes
// interrupts and CPU exceptions to Go handlers.
package gate

import (
	"encoding/binary"
	"io"
	"unsafe"

	"github.com/Sparkpin/spinel/kernel"
	"github.com/Sparkpin/spinel/kernel/cpu"
	"github.com/Sparkpin/spinel/kernel/kfmt"
)

// Registers contains a snapshot of all register values when an exception
// or interrupt occurs. Its layout matches the stack frame built by the
// interrupt entry stubs.
type Registers struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64

	// Info contains the vector number of the interrupt.
	Info uint64

	// ErrorCode holds the error code pushed by the CPU for exceptions
	// that report one and zero for everything else.
	ErrorCode uint64

	// The return frame used by IRETQ
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Registers) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", r.RIP, r.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", r.RSP, r.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", r.RFlags)
}

// InterruptNumber describes an x86 interrupt/exception/trap slot.
type InterruptNumber uint8

const (
	// DivideByZero occurs when dividing any number by 0 using the DIV or
	// IDIV instruction.
	DivideByZero = InterruptNumber(0)

	// Debug is raised by debug registers and single-stepping.
	Debug = InterruptNumber(1)

	// NMI (non-maskable-interrupt) is a hardware interrupt that indicates
	// issues with RAM or unrecoverable hardware problems. It may also be
	// raised by the CPU when a watchdog timer is enabled.
	NMI = InterruptNumber(2)

	// Breakpoint is raised by the INT3 instruction.
	Breakpoint = InterruptNumber(3)

	// Overflow is raised by the INTO instruction when the overflow flag
	// is set.
	Overflow = InterruptNumber(4)

	// BoundRangeExceeded occurs when the BOUND instruction is invoked with
	// an index out of range.
	BoundRangeExceeded = InterruptNumber(5)

	// InvalidOpcode occurs when the CPU attempts to execute an invalid or
	// undefined instruction opcode.
	InvalidOpcode = InterruptNumber(6)

	// DeviceNotAvailable occurs when the CPU attempts to execute an
	// FPU/MMX/SSE instruction while no FPU is available or while
	// FPU/MMX/SSE support has been disabled by manipulating the CR0
	// register.
	DeviceNotAvailable = InterruptNumber(7)

	// DoubleFault occurs when an exception is raised while the CPU is
	// trying to deliver another exception.
	DoubleFault = InterruptNumber(8)

	// InvalidTSS occurs when the TSS points to an invalid task segment
	// selector.
	InvalidTSS = InterruptNumber(10)

	// SegmentNotPresent occurs when the CPU attempts to load a segment
	// whose present bit is cleared.
	SegmentNotPresent = InterruptNumber(11)

	// StackSegmentFault occurs when attempting to push/pop from a
	// non-canonical stack address or when the stack base/limit (set in
	// GDT) checks fail.
	StackSegmentFault = InterruptNumber(12)

	// GPFException occurs when a general protection fault occurs.
	GPFException = InterruptNumber(13)

	// PageFaultException occurs when a page directory table (PDT) or one
	// of its entries is not present or when a privilege and/or RW
	// protection check fails.
	PageFaultException = InterruptNumber(14)

	// FloatingPointException occurs while invoking an FP instruction while:
	//  - CR0.NE = 1 OR
	//  - an unmasked FP exception is pending
	FloatingPointException = InterruptNumber(16)

	// AlignmentCheck occurs when alignment checks are enabled and an
	// unaligned memory access is performed.
	AlignmentCheck = InterruptNumber(17)

	// MachineCheck occurs when the CPU detects internal errors such as
	// memory-, bus- or cache-related errors.
	MachineCheck = InterruptNumber(18)

	// SIMDFloatingPointException occurs when an unmasked SSE exception
	// occurs while CR4.OSXMMEXCPT is set to 1. If the OSXMMEXCPT bit is
	// not set, SIMD FP exceptions cause InvalidOpcode exceptions instead.
	SIMDFloatingPointException = InterruptNumber(19)

	// FirstExternal is the first vector that is not reserved for CPU
	// exceptions. The legacy PICs are remapped to start here.
	FirstExternal = InterruptNumber(32)
)

// EntryCount is the number of vectors in the interrupt descriptor table.
const EntryCount = 256

// exceptionNames maps the architecturally defined exception vectors to a
// human-readable name. Reserved vectors have an empty name.
var exceptionNames = [FirstExternal]string{
	0:  "divide error",
	1:  "debug",
	2:  "non-maskable interrupt",
	3:  "breakpoint",
	4:  "overflow",
	5:  "bound range exceeded",
	6:  "invalid opcode",
	7:  "device not available",
	8:  "double fault",
	9:  "coprocessor segment overrun",
	10: "invalid TSS",
	11: "segment not present",
	12: "stack-segment fault",
	13: "general protection fault",
	14: "page fault",
	16: "x87 floating-point exception",
	17: "alignment check",
	18: "machine check",
	19: "SIMD floating-point exception",
	20: "virtualization exception",
	21: "control protection exception",
	28: "hypervisor injection exception",
	29: "VMM communication exception",
	30: "security exception",
}

// IsException returns true if num is one of the vectors reserved for CPU
// exceptions.
func (num InterruptNumber) IsException() bool {
	return num < FirstExternal
}

// Name returns a human-readable name for the vector.
func (num InterruptNumber) Name() string {
	if !num.IsException() {
		return "external interrupt"
	}

	if name := exceptionNames[num]; name != "" {
		return name
	}

	return "reserved"
}

// GateType selects how the CPU treats the IF flag when entering a handler.
type GateType uint8

const (
	// InterruptGate clears IF on entry so handlers run with interrupts
	// disabled.
	InterruptGate GateType = 0xe

	// TrapGate leaves IF unchanged on entry.
	TrapGate GateType = 0xf
)

// KernelCodeSelector is the GDT selector of the 64-bit kernel code segment
// set up by the bootloader.
const KernelCodeSelector uint16 = 0x08

// Entry is the decoded form of an interrupt descriptor.
type Entry struct {
	Handler  uintptr
	Selector uint16
	IST      uint8
	Type     GateType
	DPL      uint8
	Present  bool
}

// Descriptor holds the 16-byte hardware encoding of an interrupt descriptor.
//
// Layout of the low quad word:
//   - bits  0-15: handler offset bits 0-15
//   - bits 16-31: code segment selector
//   - bits 32-34: interrupt stack table index
//   - bits 40-43: gate type
//   - bits 45-46: descriptor privilege level
//   - bit     47: present
//   - bits 48-63: handler offset bits 16-31
//
// The high quad word holds handler offset bits 32-63.
type Descriptor [2]uint64

const (
	descSelectorShift  = 16
	descISTShift       = 32
	descTypeShift      = 40
	descDPLShift       = 45
	descPresentBit     = 1 << 47
	descOffsetMidShift = 48
)

// EncodeEntry returns the hardware encoding of e.
func EncodeEntry(e Entry) Descriptor {
	handler := uint64(e.Handler)

	low := handler&0xffff |
		uint64(e.Selector)<<descSelectorShift |
		uint64(e.IST&0x7)<<descISTShift |
		uint64(e.Type&0xf)<<descTypeShift |
		uint64(e.DPL&0x3)<<descDPLShift |
		(handler>>16&0xffff)<<descOffsetMidShift

	if e.Present {
		low |= descPresentBit
	}

	return Descriptor{low, handler >> 32}
}

// Decode returns the decoded form of the descriptor.
func (d Descriptor) Decode() Entry {
	return Entry{
		Handler:  uintptr(d[0]&0xffff | (d[0]>>descOffsetMidShift&0xffff)<<16 | d[1]<<32),
		Selector: uint16(d[0] >> descSelectorShift),
		IST:      uint8(d[0]>>descISTShift) & 0x7,
		Type:     GateType(d[0]>>descTypeShift) & 0xf,
		DPL:      uint8(d[0]>>descDPLShift) & 0x3,
		Present:  d[0]&descPresentBit != 0,
	}
}

// Table is an interrupt descriptor table.
type Table [EntryCount]Descriptor

// StubTable holds the address of the entry stub for each vector.
type StubTable [EntryCount]uintptr

var (
	errMissingDescriptor = &kernel.Error{Module: "gate", Message: "interrupt descriptor not present"}
	errNullHandler       = &kernel.Error{Module: "gate", Message: "interrupt descriptor has a null handler"}
)

// BuildTable points every vector in t to its entry stub. Vectors are
// installed as present DPL 0 gates for the kernel code segment without an
// IST stack. The breakpoint and overflow vectors use trap gates; all other
// vectors use interrupt gates so that fault handlers run with interrupts
// disabled. The resulting table only depends on stubs.
func BuildTable(t *Table, stubs StubTable) {
	for vec := 0; vec < EntryCount; vec++ {
		gateType := InterruptGate
		if num := InterruptNumber(vec); num == Breakpoint || num == Overflow {
			gateType = TrapGate
		}

		t[vec] = EncodeEntry(Entry{
			Handler:  stubs[vec],
			Selector: KernelCodeSelector,
			Type:     gateType,
			Present:  true,
		})
	}
}

// Validate checks that every vector in the table has a present descriptor
// with a non-null handler. If not, Validate returns the first offending
// vector together with an error describing the problem.
func (t *Table) Validate() (InterruptNumber, *kernel.Error) {
	for vec := 0; vec < EntryCount; vec++ {
		e := t[vec].Decode()
		switch {
		case !e.Present:
			return InterruptNumber(vec), errMissingDescriptor
		case e.Handler == 0:
			return InterruptNumber(vec), errNullHandler
		}
	}

	return 0, nil
}

var (
	// loadIDTFn is mocked by tests.
	loadIDTFn = cpu.LoadIDT

	// idtr is the pseudo-descriptor passed to LIDT: a 16-bit limit
	// followed by the 64-bit table base.
	idtr [10]byte
)

// Load makes t the active interrupt descriptor table. The table must remain
// at the same address for as long as it is active.
func Load(t *Table) {
	binary.LittleEndian.PutUint16(idtr[0:], uint16(unsafe.Sizeof(*t)-1))
	binary.LittleEndian.PutUint64(idtr[2:], uint64(uintptr(unsafe.Pointer(t))))
	loadIDTFn(uintptr(unsafe.Pointer(&idtr[0])))
}

// StubAddresses fills out with the addresses of the assembly entry stubs.
func StubAddresses(out *StubTable) {
	loadStubAddresses(out)
}

// loadStubAddresses is implemented in assembly.
func loadStubAddresses(table *StubTable)
