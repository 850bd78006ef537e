package tty

import (
	"bytes"
	"testing"

	"github.com/Sparkpin/spinel/device"
	"github.com/Sparkpin/spinel/device/video/console"
)

func TestVtPosition(t *testing.T) {
	specs := []struct {
		inX, inY   uint32
		expX, expY uint32
	}{
		{20, 20, 20, 20},
		{100, 20, 80, 20},
		{10, 200, 10, 25},
		{0, 0, 1, 1},
		{100, 100, 80, 25},
	}

	var (
		vt   Vt
		term Device = &vt
	)
	vt.Init(DefaultTabWidth)

	// SetCursorPosition without an attached console is a no-op
	term.SetCursorPosition(2, 2)

	if curX, curY := term.CursorPosition(); curX != 1 || curY != 1 {
		t.Fatalf("expected terminal initial position to be (1, 1); got (%d, %d)", curX, curY)
	}

	cons := newMockConsole(80, 25)
	term.AttachTo(cons)

	for specIndex, spec := range specs {
		term.SetCursorPosition(spec.inX, spec.inY)
		if x, y := term.CursorPosition(); x != spec.expX || y != spec.expY {
			t.Errorf("[spec %d] expected setting position to (%d, %d) to update the position to (%d, %d); got (%d, %d)", specIndex, spec.inX, spec.inY, spec.expX, spec.expY, x, y)
		}

		if cons.cursorX != spec.expX || cons.cursorY != spec.expY {
			t.Errorf("[spec %d] expected hardware cursor at (%d, %d); got (%d, %d)", specIndex, spec.expX, spec.expY, cons.cursorX, cons.cursorY)
		}
	}
}

func TestVtWrite(t *testing.T) {
	t.Run("detached terminal", func(t *testing.T) {
		var vt Vt
		vt.Init(DefaultTabWidth)

		n, err := vt.Write([]byte("dropped"))
		if err != nil {
			t.Fatal(err)
		}

		if n != 7 {
			t.Fatalf("expected Write to report 7 bytes; got %d", n)
		}
	})

	t.Run("control characters", func(t *testing.T) {
		cons := newMockConsole(80, 25)

		var vt Vt
		vt.Init(DefaultTabWidth)
		vt.AttachTo(cons)

		data := []byte("\b123\b4\t5\n67\r68")
		count, err := vt.Write(data)
		if err != nil {
			t.Fatal(err)
		}

		if count != len(data) {
			t.Fatalf("expected to write %d bytes; wrote %d", len(data), count)
		}

		specs := []struct {
			x, y    uint32
			expByte uint8
		}{
			{1, 1, '1'},
			{2, 1, '2'},
			{3, 1, '4'},
			{5, 1, '5'}, // next tab stop after column 3
			{1, 2, '6'},
			{2, 2, '8'},
		}

		for specIndex, spec := range specs {
			if got := cons.charAt(spec.x, spec.y); got != spec.expByte {
				t.Errorf("[spec %d] expected char at (%d, %d) to be %q; got %q", specIndex, spec.x, spec.y, spec.expByte, got)
			}
		}

		if x, y := vt.CursorPosition(); x != 3 || y != 2 {
			t.Errorf("expected cursor at (3, 2); got (%d, %d)", x, y)
		}

		if cons.cursorX != 3 || cons.cursorY != 2 {
			t.Errorf("expected hardware cursor at (3, 2); got (%d, %d)", cons.cursorX, cons.cursorY)
		}
	})

	t.Run("tab stops", func(t *testing.T) {
		specs := []struct {
			input string
			expX  uint32
		}{
			{"\t", 5},
			{"a\t", 5},
			{"abc\t", 5},
			{"abcd\t", 9},
			{"abcde\t", 9},
			{"\t\t", 9},
		}

		for specIndex, spec := range specs {
			var vt Vt
			vt.Init(DefaultTabWidth)
			vt.AttachTo(newMockConsole(80, 25))

			vt.Write([]byte(spec.input))
			if x, y := vt.CursorPosition(); x != spec.expX || y != 1 {
				t.Errorf("[spec %d] expected cursor at (%d, 1) after writing %q; got (%d, %d)", specIndex, spec.expX, spec.input, x, y)
			}
		}
	})

	t.Run("tab at end of line", func(t *testing.T) {
		var vt Vt
		vt.Init(DefaultTabWidth)
		vt.AttachTo(newMockConsole(10, 3))

		vt.Write([]byte("0123456789"))
		if x, y := vt.CursorPosition(); x != 1 || y != 2 {
			t.Fatalf("expected cursor to wrap to (1, 2); got (%d, %d)", x, y)
		}

		vt.Write([]byte("01234567\t"))
		if x, y := vt.CursorPosition(); x != 1 || y != 3 {
			t.Fatalf("expected tab to stop at the line wrap; got (%d, %d)", x, y)
		}
	})

	t.Run("tab without Init", func(t *testing.T) {
		var vt Vt
		vt.AttachTo(newMockConsole(80, 25))

		vt.Write([]byte("ab\t"))
		if x, y := vt.CursorPosition(); x != 1+DefaultTabWidth || y != 1 {
			t.Fatalf("expected cursor at (%d, 1); got (%d, %d)", 1+DefaultTabWidth, x, y)
		}
	})

	t.Run("wrap and scroll", func(t *testing.T) {
		cons := newMockConsole(4, 2)

		var vt Vt
		vt.Init(DefaultTabWidth)
		vt.AttachTo(cons)

		vt.Write([]byte("abcdefgh"))
		if cons.scrollUpCount != 1 {
			t.Fatalf("expected reaching the end of the last line to scroll once; got %d", cons.scrollUpCount)
		}

		if exp, got := "efgh    ", cons.String(); got != exp {
			t.Fatalf("expected console contents %q; got %q", exp, got)
		}

		vt.Write([]byte("ij\n"))
		if exp, got := "ij      ", cons.String(); got != exp {
			t.Fatalf("expected console contents %q; got %q", exp, got)
		}

		if x, y := vt.CursorPosition(); x != 1 || y != 2 {
			t.Fatalf("expected cursor at (1, 2); got (%d, %d)", x, y)
		}
	})
}

func TestVtClear(t *testing.T) {
	cons := newMockConsole(10, 2)

	var vt Vt
	vt.Init(DefaultTabWidth)

	// no-op without a console
	vt.Clear()

	vt.AttachTo(cons)
	vt.Write([]byte("hello\nworld"))
	vt.Clear()

	if exp, got := string(bytes.Repeat([]byte{' '}, 20)), cons.String(); got != exp {
		t.Fatalf("expected cleared console; got %q", got)
	}

	if x, y := vt.CursorPosition(); x != 1 || y != 1 {
		t.Fatalf("expected cursor at (1, 1); got (%d, %d)", x, y)
	}
}

func TestVtDriverInterface(t *testing.T) {
	defer func() {
		consoleFn = console.Early
	}()

	var dev device.Driver = probeForVt()
	if dev.DriverName() == "" {
		t.Fatal("DriverName() returned an empty string")
	}

	if major, minor, patch := dev.DriverVersion(); major+minor+patch == 0 {
		t.Fatal("DriverVersion() returned an invalid version number")
	}

	t.Run("no console", func(t *testing.T) {
		consoleFn = func() console.Device { return nil }

		if err := dev.DriverInit(&bytes.Buffer{}); err != errNoConsole {
			t.Fatalf("expected error: %v; got %v", errNoConsole, err)
		}
	})

	t.Run("attach to early console", func(t *testing.T) {
		cons := newMockConsole(80, 25)
		consoleFn = func() console.Device { return cons }

		if err := dev.DriverInit(&bytes.Buffer{}); err != nil {
			t.Fatal(err)
		}

		earlyVt.Write([]byte("ok"))
		if cons.charAt(1, 1) != 'o' || cons.charAt(2, 1) != 'k' {
			t.Fatal("expected the probed terminal to render to the early console")
		}
	})

	if DriverInfo.Order <= device.DetectOrderEarly {
		t.Fatal("expected the terminal to be probed after the early console")
	}
}

type mockConsole struct {
	width, height    uint32
	fg, bg           uint8
	chars            []uint8
	bytesWritten     int
	scrollUpCount    int
	cursorX, cursorY uint32
}

func newMockConsole(w, h uint32) *mockConsole {
	cons := &mockConsole{
		width:  w,
		height: h,
		fg:     7,
		bg:     0,
		chars:  make([]uint8, w*h),
	}
	cons.Fill(1, 1, w, h, cons.fg, cons.bg)
	return cons
}

func (cons *mockConsole) Dimensions(_ console.Dimension) (uint32, uint32) {
	return cons.width, cons.height
}

func (cons *mockConsole) DefaultColors() (uint8, uint8) {
	return cons.fg, cons.bg
}

func (cons *mockConsole) Fill(x, y, width, height uint32, _, _ uint8) {
	for fy := y; fy < y+height; fy++ {
		for fx := x; fx < x+width; fx++ {
			cons.chars[(fy-1)*cons.width+(fx-1)] = ' '
		}
	}
}

func (cons *mockConsole) Scroll(dir console.ScrollDir, lines uint32) {
	if dir != console.ScrollDirUp {
		return
	}

	cons.scrollUpCount++
	offset := lines * cons.width
	copy(cons.chars, cons.chars[offset:])
}

func (cons *mockConsole) Write(b byte, _, _ uint8, x, y uint32) {
	cons.chars[(y-1)*cons.width+(x-1)] = b
	cons.bytesWritten++
}

func (cons *mockConsole) SetCursor(x, y uint32) {
	cons.cursorX, cons.cursorY = x, y
}

func (cons *mockConsole) charAt(x, y uint32) uint8 {
	return cons.chars[(y-1)*cons.width+(x-1)]
}

func (cons *mockConsole) String() string {
	return string(cons.chars)
}
