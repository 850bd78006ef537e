package tty

import (
	"io"

	"github.com/Sparkpin/spinel/device"
	"github.com/Sparkpin/spinel/device/video/console"
	"github.com/Sparkpin/spinel/kernel"
)

var (
	// earlyVt is the terminal instance returned by the probe. It is
	// attached to the console that was detected before it.
	earlyVt Vt

	// consoleFn returns the console the probed terminal attaches to.
	consoleFn = console.Early

	errNoConsole = &kernel.Error{Module: "tty", Message: "no console available"}

	// DriverInfo registers the VT with the hal package. Its probe runs
	// after the early console probes so that a console is available.
	DriverInfo = device.DriverInfo{
		Order: device.DetectOrderEarly + 1,
		Probe: probeForVt,
	}
)

// Vt implements a terminal without scrollback that renders directly to the
// attached console. The terminal interprets the following special
// characters:
//   - \r (carriage-return)
//   - \n (line-feed; also returns the carriage)
//   - \b (backspace)
//   - \t (tab; advances to the next multiple of the tab width)
type Vt struct {
	cons   console.Device
	cursor console.CursorSetter

	width, height uint32
	tabWidth      uint32
	fg, bg        uint8

	cursorX, cursorY uint32
}

// Init resets the terminal state and sets the tab width. A zero tabWidth
// selects DefaultTabWidth.
func (t *Vt) Init(tabWidth uint32) {
	if tabWidth == 0 {
		tabWidth = DefaultTabWidth
	}

	*t = Vt{
		tabWidth: tabWidth,
		cursorX:  1,
		cursorY:  1,
	}
}

// AttachTo connects the terminal to a console instance. If the console
// supports a hardware cursor, the terminal keeps it in sync with the output
// position.
func (t *Vt) AttachTo(cons console.Device) {
	if cons == nil {
		return
	}

	if t.tabWidth == 0 {
		t.tabWidth = DefaultTabWidth
	}

	t.cons = cons
	t.cursor, _ = cons.(console.CursorSetter)
	t.width, t.height = cons.Dimensions(console.Characters)
	t.fg, t.bg = cons.DefaultColors()
	t.cursorX, t.cursorY = 1, 1
	t.syncCursor()
}

// CursorPosition returns the current cursor position.
func (t *Vt) CursorPosition() (uint32, uint32) {
	return t.cursorX, t.cursorY
}

// SetCursorPosition sets the current cursor position to (x,y).
func (t *Vt) SetCursorPosition(x, y uint32) {
	if t.cons == nil {
		return
	}

	if x < 1 {
		x = 1
	} else if x > t.width {
		x = t.width
	}

	if y < 1 {
		y = 1
	} else if y > t.height {
		y = t.height
	}

	t.cursorX, t.cursorY = x, y
	t.syncCursor()
}

// Clear blanks the attached console using its default colors.
func (t *Vt) Clear() {
	if t.cons == nil {
		return
	}

	t.cons.Fill(1, 1, t.width, t.height, t.fg, t.bg)
	t.cursorX, t.cursorY = 1, 1
	t.syncCursor()
}

// Write implements io.Writer. It always reports len(data) bytes written.
func (t *Vt) Write(data []byte) (int, error) {
	for _, b := range data {
		t.WriteByte(b)
	}

	return len(data), nil
}

// WriteByte implements io.ByteWriter.
func (t *Vt) WriteByte(b byte) error {
	if t.cons == nil {
		return nil
	}

	switch b {
	case '\r':
		t.cursorX = 1
	case '\n':
		t.lf()
	case '\b':
		if t.cursorX > 1 {
			t.cursorX--
			t.cons.Write(' ', t.fg, t.bg, t.cursorX, t.cursorY)
		}
	case '\t':
		// tab stops are at columns 1, 1+tabWidth, 1+2*tabWidth, ...
		for next := ((t.cursorX-1)/t.tabWidth+1)*t.tabWidth + 1; t.cursorX < next; {
			t.put(' ')
			if t.cursorX == 1 {
				break
			}
		}
	default:
		t.put(b)
	}

	t.syncCursor()
	return nil
}

// put renders b at the cursor and advances it, wrapping to the next line
// when the end of the current line is reached.
func (t *Vt) put(b byte) {
	t.cons.Write(b, t.fg, t.bg, t.cursorX, t.cursorY)

	t.cursorX++
	if t.cursorX > t.width {
		t.lf()
	}
}

// lf moves the cursor to the start of the next line. When the cursor is
// already on the last line the console is scrolled up by one line and the
// bottom line is cleared.
func (t *Vt) lf() {
	t.cursorX = 1

	if t.cursorY < t.height {
		t.cursorY++
		return
	}

	t.cons.Scroll(console.ScrollDirUp, 1)
	t.cons.Fill(1, t.height, t.width, 1, t.fg, t.bg)
}

func (t *Vt) syncCursor() {
	if t.cursor != nil {
		t.cursor.SetCursor(t.cursorX, t.cursorY)
	}
}

// DriverName returns the name of this driver.
func (t *Vt) DriverName() string {
	return "vt"
}

// DriverVersion returns the version of this driver.
func (t *Vt) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit attaches the terminal to the early console.
func (t *Vt) DriverInit(w io.Writer) *kernel.Error {
	cons := consoleFn()
	if cons == nil {
		return errNoConsole
	}

	t.AttachTo(cons)
	return nil
}

func probeForVt() device.Driver {
	earlyVt.Init(DefaultTabWidth)
	return &earlyVt
}
