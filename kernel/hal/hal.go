// Package hal brings up the devices that the kernel uses for diagnostic
// output while it boots.
package hal

import (
	"io"

	"github.com/Sparkpin/spinel/device"
	"github.com/Sparkpin/spinel/device/serial"
	"github.com/Sparkpin/spinel/device/tty"
	"github.com/Sparkpin/spinel/device/video/console"
	"github.com/Sparkpin/spinel/kernel/kfmt"
)

// maxPrefixLen bounds the length of the "[hal] driver(x.y.z): " prefix.
const maxPrefixLen = 64

var (
	// driverList holds the drivers probed by InitTerminal. It is a fixed
	// array as package init functions do not run before the kernel entry
	// point.
	driverList = [...]*device.DriverInfo{
		&serial.DriverInfo,
		&tty.DriverInfo,
		&console.VgaTextDriverInfo,
	}

	// terminal fans out kernel output to every initialized output device.
	terminal kfmt.MultiWriter

	prefix prefixBuffer
)

// InitTerminal probes the early output devices, initializes their drivers
// and registers the ones that accept output as the kfmt output sink. Output
// generated before this point, including the driver init messages, is
// replayed to every registered device. InitTerminal returns the writer that
// fans out to the registered devices.
func InitTerminal() io.Writer {
	drivers := device.DriverInfoList(driverList[:])
	drivers.SortByOrder()
	probe(drivers)

	if terminal.Len() != 0 {
		kfmt.SetOutputSink(&terminal)
	}

	return &terminal
}

// probe executes the probe function for each driver and invokes
// onDriverInit for each successfully initialized driver.
func probe(driverInfoList device.DriverInfoList) {
	var w = kfmt.PrefixWriter{Sink: kfmt.Output()}

	for _, info := range driverInfoList {
		drv := info.Probe()
		if drv == nil {
			continue
		}

		prefix.Reset()
		major, minor, patch := drv.DriverVersion()
		kfmt.Fprintf(&prefix, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)
		w.Prefix = prefix.Bytes()
		w.Reset()

		if err := drv.DriverInit(&w); err != nil {
			kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
			continue
		}

		kfmt.Fprintf(&w, "initialized\n")
		onDriverInit(drv)
	}
}

// onDriverInit is invoked by probe() whenever a piece of hardware is detected
// and successfully initialized. Drivers that accept a byte stream (terminals
// and serial ports) become kernel output devices; consoles are rendered
// through a terminal.
func onDriverInit(drv device.Driver) {
	if out, ok := drv.(io.Writer); ok {
		if !terminal.Attach(out) {
			kfmt.Printf("[hal] no free output slot for %s\n", drv.DriverName())
		}
	}
}

// prefixBuffer is a fixed-size io.Writer used for building the per-driver
// output prefix. Writes past its capacity are truncated.
type prefixBuffer struct {
	buf [maxPrefixLen]byte
	n   int
}

func (b *prefixBuffer) Write(p []byte) (int, error) {
	n := copy(b.buf[b.n:], p)
	b.n += n
	return len(p), nil
}

func (b *prefixBuffer) Bytes() []byte {
	return b.buf[:b.n]
}

func (b *prefixBuffer) Reset() {
	b.n = 0
}
