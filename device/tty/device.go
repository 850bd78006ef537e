// Package tty implements the terminal that sits between the kernel's
// formatted output and a text console.
package tty

import (
	"io"

	"github.com/Sparkpin/spinel/device/video/console"
)

// DefaultTabWidth defines the tab stop interval in characters.
const DefaultTabWidth = 4

// Device is implemented by objects that can be used as a terminal device.
// Writes to a Device never fail; bytes sent to a terminal without an
// attached console are discarded.
type Device interface {
	io.Writer
	io.ByteWriter

	// AttachTo connects a TTY to a console instance.
	AttachTo(console.Device)

	// CursorPosition returns the current cursor x,y coordinates. Both
	// coordinates are 1-based (top-left corner has coordinates 1,1).
	CursorPosition() (uint32, uint32)

	// SetCursorPosition sets the current cursor position to (x,y). Both
	// coordinates are 1-based. Implementations clip the cursor position
	// to the console dimensions.
	SetCursorPosition(x, y uint32)

	// Clear blanks the console and moves the cursor to the top-left corner.
	Clear()
}
