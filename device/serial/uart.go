// Package serial implements an output-only driver for 16550-compatible UARTs.
package serial

import (
	"io"

	"github.com/Sparkpin/spinel/device"
	"github.com/Sparkpin/spinel/kernel"
	"github.com/Sparkpin/spinel/kernel/cpu"
	"github.com/Sparkpin/spinel/kernel/kfmt"
)

// COM1 is the I/O port base of the first serial port on PC compatibles.
const COM1 uint16 = 0x3f8

// UART register offsets relative to the port base.
const (
	regData       = 0 // THR (write) / RBR (read); divisor low byte when DLAB=1
	regIntEnable  = 1 // IER; divisor high byte when DLAB=1
	regFifoCtrl   = 2
	regLineCtrl   = 3
	regModemCtrl  = 4
	regLineStatus = 5
)

const (
	lineCtrlDLAB = 0x80
	lineCtrl8N1  = 0x03

	// enable FIFOs, clear them and use a 14-byte trigger level
	fifoCtrlEnable = 0xc7

	// DTR + RTS + OUT2
	modemCtrlNormal = 0x0b

	// RTS + OUT1 + OUT2 + loopback
	modemCtrlLoopback = 0x1e

	// Transmitter holding register empty.
	lineStatusTHRE = 0x20

	// 115200 / divisor gives the baud rate.
	baudDivisor = 1

	// loopbackProbe is the byte sent while the UART is in loopback mode to
	// check that a device is actually present.
	loopbackProbe = 0xae

	// txSpinLimit bounds the busy-wait for the transmitter. A missing or
	// wedged UART must not hang the panic path.
	txSpinLimit = 1 << 16
)

var (
	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte

	// earlyCOM1 is the port instance returned by the probe.
	earlyCOM1 Port

	errLoopbackFailed = &kernel.Error{Module: "serial", Message: "loopback self-test failed"}

	// DriverInfo registers the COM1 serial port with the hal package.
	DriverInfo = device.DriverInfo{
		Order: device.DetectOrderNormal,
		Probe: probeForCOM1,
	}
)

// Port is a 16550 UART used as a write-only diagnostic channel. Port
// implements io.Writer and io.ByteWriter; \n is sent as \r\n.
type Port struct {
	base  uint16
	ready bool
}

// Init sets the I/O port base for this UART. The hardware is programmed by
// DriverInit.
func (p *Port) Init(base uint16) {
	p.base = base
	p.ready = false
}

// WriteByte transmits b. Writes to a port that failed to initialize are
// silently discarded.
func (p *Port) WriteByte(b byte) error {
	if !p.ready {
		return nil
	}

	if b == '\n' {
		p.transmit('\r')
	}
	p.transmit(b)
	return nil
}

// Write transmits p and always reports len(p) bytes as written.
func (p *Port) Write(data []byte) (int, error) {
	for _, b := range data {
		p.WriteByte(b)
	}

	return len(data), nil
}

// transmit waits (for a bounded number of iterations) until the transmitter
// holding register is empty and then sends b.
func (p *Port) transmit(b byte) {
	for spin := 0; spin < txSpinLimit; spin++ {
		if portReadByteFn(p.base+regLineStatus)&lineStatusTHRE != 0 {
			break
		}
	}

	portWriteByteFn(p.base+regData, b)
}

// DriverName returns the name of this driver.
func (p *Port) DriverName() string {
	return "uart_16550"
}

// DriverVersion returns the version of this driver.
func (p *Port) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit programs the UART for 115200 baud, 8 data bits, no parity and
// one stop bit, then runs a loopback self-test to detect whether the port
// exists.
func (p *Port) DriverInit(w io.Writer) *kernel.Error {
	// disable UART interrupts; the port is polled
	portWriteByteFn(p.base+regIntEnable, 0)

	portWriteByteFn(p.base+regLineCtrl, lineCtrlDLAB)
	portWriteByteFn(p.base+regData, baudDivisor&0xff)
	portWriteByteFn(p.base+regIntEnable, baudDivisor>>8)
	portWriteByteFn(p.base+regLineCtrl, lineCtrl8N1)

	portWriteByteFn(p.base+regFifoCtrl, fifoCtrlEnable)

	portWriteByteFn(p.base+regModemCtrl, modemCtrlLoopback)
	portWriteByteFn(p.base+regData, loopbackProbe)
	loopbackOK := portReadByteFn(p.base+regData) == loopbackProbe

	portWriteByteFn(p.base+regModemCtrl, modemCtrlNormal)
	if !loopbackOK {
		return errLoopbackFailed
	}

	p.ready = true

	kfmt.Fprintf(w, "port 0x%x, %d baud\n", p.base, 115200/baudDivisor)
	return nil
}

// probeForCOM1 returns a driver for the first serial port. Whether the port
// really exists is only known after the loopback test in DriverInit.
func probeForCOM1() device.Driver {
	earlyCOM1.Init(COM1)
	return &earlyCOM1
}
