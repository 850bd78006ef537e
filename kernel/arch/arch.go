// Package arch performs the one-time CPU bring-up that makes faults and
// interrupts observable: it builds the interrupt descriptor table, loads it
// and enables interrupt delivery.
package arch

import (
	"io"

	"github.com/Sparkpin/spinel/kernel"
	"github.com/Sparkpin/spinel/kernel/cpu"
	"github.com/Sparkpin/spinel/kernel/gate"
	"github.com/Sparkpin/spinel/kernel/kfmt"
)

// State describes the progress of the bring-up sequence.
type State uint8

const (
	// StateRaw is the state handed over by the bootloader.
	StateRaw State = iota

	// StateTableBuilt indicates that every vector in the interrupt
	// table has a handler but the table is not yet in use.
	StateTableBuilt

	// StateTableActive indicates that the table is loaded and that
	// faults and interrupts now trap into it.
	StateTableActive

	// StateReady indicates that bring-up is complete.
	StateReady
)

// String implements fmt.Stringer for State.
func (s State) String() string {
	switch s {
	case StateRaw:
		return "raw"
	case StateTableBuilt:
		return "table built"
	case StateTableActive:
		return "table active"
	case StateReady:
		return "ready"
	default:
		return "unknown"
	}
}

// Hardware groups the privileged operations performed by the bring-up
// sequence. Nil fields are replaced with the real CPU primitives.
type Hardware struct {
	DisableInterrupts func()
	EnableInterrupts  func()
	LoadTable         func(*gate.Table)
	PortWriteByte     func(port uint16, val uint8)
	StubAddresses     func(*gate.StubTable)
	Vendor            func() [12]byte
}

func (hw *Hardware) setDefaults() {
	if hw.DisableInterrupts == nil {
		hw.DisableInterrupts = cpu.DisableInterrupts
	}
	if hw.EnableInterrupts == nil {
		hw.EnableInterrupts = cpu.EnableInterrupts
	}
	if hw.LoadTable == nil {
		hw.LoadTable = gate.Load
	}
	if hw.PortWriteByte == nil {
		hw.PortWriteByte = cpu.PortWriteByte
	}
	if hw.StubAddresses == nil {
		hw.StubAddresses = gate.StubAddresses
	}
	if hw.Vendor == nil {
		hw.Vendor = cpu.Vendor
	}
}

var (
	// panicFn is mocked by tests.
	panicFn = kfmt.Panic

	errAlreadyInitialized = &kernel.Error{Module: "arch", Message: "bring-up already performed"}
)

// BringUp owns the interrupt descriptor table and tracks the bring-up
// state. A BringUp value must not be copied or moved once Init has loaded
// its table into the CPU.
type BringUp struct {
	HW Hardware

	state State
	stubs gate.StubTable
	table gate.Table
}

// State returns the current bring-up state.
func (b *BringUp) State() State {
	return b.state
}

// Table returns the interrupt descriptor table owned by b.
func (b *BringUp) Table() *gate.Table {
	return &b.table
}

// Init runs the bring-up sequence and reports its progress to w. It must
// be called exactly once per boot.
//
// Errors during bring-up are boot-fatal. As the interrupt table may not be
// active when they are detected, the diagnostic is written straight to w
// before the error is passed to kfmt.Panic.
func (b *BringUp) Init(w io.Writer) *kernel.Error {
	if b.state != StateRaw {
		return b.fatal(w, errAlreadyInitialized)
	}

	b.HW.setDefaults()
	b.HW.DisableInterrupts()

	vendor := b.HW.Vendor()
	kfmt.Fprintf(w, "[arch] cpu vendor: %s\n", vendor[:])

	// RAW -> TABLE_BUILT
	b.HW.StubAddresses(&b.stubs)
	gate.BuildTable(&b.table, b.stubs)
	if vec, err := b.table.Validate(); err != nil {
		kfmt.Fprintf(w, "[arch] boot-fatal: vector %d: %s\n", uint8(vec), err.Message)
		panicFn(err)
		return err
	}
	b.state = StateTableBuilt
	kfmt.Fprintf(w, "[arch] interrupt table built (%d vectors)\n", gate.EntryCount)

	// TABLE_BUILT -> TABLE_ACTIVE
	b.HW.LoadTable(&b.table)
	remapAndMaskPIC(b.HW.PortWriteByte)
	b.HW.EnableInterrupts()
	b.state = StateTableActive
	kfmt.Fprintf(w, "[arch] interrupt table active, legacy PIC masked (irq base 0x%x)\n", PICMasterOffset)

	// TABLE_ACTIVE -> READY
	b.state = StateReady
	kfmt.Fprintf(w, "[arch] ready\n")
	return nil
}

func (b *BringUp) fatal(w io.Writer, err *kernel.Error) *kernel.Error {
	kfmt.Fprintf(w, "[arch] boot-fatal: %s\n", err.Message)
	panicFn(err)
	return err
}
