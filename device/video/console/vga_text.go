package console

import (
	"io"
	"unsafe"

	"github.com/Sparkpin/spinel/device"
	"github.com/Sparkpin/spinel/kernel"
	"github.com/Sparkpin/spinel/kernel/kfmt"
)

const (
	// VGA CRT controller registers.
	crtcAddrPort      = 0x3d4
	crtcDataPort      = 0x3d5
	crtcCursorStart   = 0x0a
	crtcCursorEnd     = 0x0b
	crtcCursorLocHigh = 0x0e
	crtcCursorLocLow  = 0x0f

	// Setting this bit in the cursor start register hides the cursor.
	cursorDisableBit = 0x20

	// Number of colors supported by the text mode attribute byte.
	vgaTextColors = 16
)

var (
	// earlyVgaText is the console instance returned by the probe. It is
	// statically allocated as no allocator is available while probing.
	earlyVgaText VgaTextConsole

	// vgaTextFbAddr is the (identity-mapped) physical address of the
	// framebuffer for VGA mode 0x3.
	vgaTextFbAddr uintptr = 0xb8000

	errNoFramebuffer = &kernel.Error{Module: "vga_text_console", Message: "framebuffer address not set"}

	// VgaTextDriverInfo registers the VGA text console with the hal
	// package. It is probed before any other driver so that their init
	// output is visible.
	VgaTextDriverInfo = device.DriverInfo{
		Order: device.DetectOrderEarly,
		Probe: probeForVgaTextConsole,
	}
)

// VgaTextConsole implements an EGA-compatible text console using VGA mode
// 0x3 (80x25 by default).
//
// Each character in the console framebuffer is represented using two bytes,
// a byte for the character ASCII code and a byte that encodes the foreground
// and background colors (4 bits for each).
//
// The default settings for the console are:
//   - light gray text (color 7) on black background (color 0).
//   - space as the clear character
type VgaTextConsole struct {
	width  uint32
	height uint32

	fbAddr uintptr
	fb     []uint16

	defaultFg uint8
	defaultBg uint8
	clearChar uint16
}

// Init sets up the console dimensions and the address of its framebuffer.
// The framebuffer is not touched until DriverInit is called.
func (cons *VgaTextConsole) Init(columns, rows uint32, fbAddr uintptr) {
	cons.width = columns
	cons.height = rows
	cons.fbAddr = fbAddr
	cons.fb = nil
	cons.clearChar = uint16(' ')

	// light gray text on black background
	cons.defaultFg = 7
	cons.defaultBg = 0
}

// Dimensions returns the console width and height in the specified dimension.
func (cons *VgaTextConsole) Dimensions(dim Dimension) (uint32, uint32) {
	switch dim {
	case Characters:
		return cons.width, cons.height
	default:
		return cons.width * 8, cons.height * 16
	}
}

// DefaultColors returns the default foreground and background colors
// used by this console.
func (cons *VgaTextConsole) DefaultColors() (fg uint8, bg uint8) {
	return cons.defaultFg, cons.defaultBg
}

// Fill sets the contents of the specified rectangular region to the requested
// color. Both x and y coordinates are 1-based.
func (cons *VgaTextConsole) Fill(x, y, width, height uint32, fg, bg uint8) {
	var (
		clr                  = (((uint16(bg) << 4) | uint16(fg)) << 8) | cons.clearChar
		rowOffset, colOffset uint32
	)

	// clip rectangle
	if x == 0 {
		x = 1
	} else if x >= cons.width {
		x = cons.width
	}

	if y == 0 {
		y = 1
	} else if y >= cons.height {
		y = cons.height
	}

	if x+width-1 > cons.width {
		width = cons.width - x + 1
	}

	if y+height-1 > cons.height {
		height = cons.height - y + 1
	}

	rowOffset = ((y - 1) * cons.width) + (x - 1)
	for ; height > 0; height, rowOffset = height-1, rowOffset+cons.width {
		for colOffset = rowOffset; colOffset < rowOffset+width; colOffset++ {
			cons.fb[colOffset] = clr
		}
	}
}

// Scroll the console contents to the specified direction. The caller
// is responsible for updating (e.g. clear or replace) the contents of
// the region that was scrolled.
func (cons *VgaTextConsole) Scroll(dir ScrollDir, lines uint32) {
	if lines == 0 || lines > cons.height {
		return
	}

	var i uint32
	offset := lines * cons.width

	switch dir {
	case ScrollDirUp:
		for ; i < (cons.height-lines)*cons.width; i++ {
			cons.fb[i] = cons.fb[i+offset]
		}
	case ScrollDirDown:
		for i = cons.height*cons.width - 1; i >= lines*cons.width; i-- {
			cons.fb[i] = cons.fb[i-offset]
		}
	}
}

// Write a char to the specified location. If fg or bg exceed the supported
// colors for this console, they will be set to their default value. Both x and
// y coordinates are 1-based
func (cons *VgaTextConsole) Write(ch byte, fg, bg uint8, x, y uint32) {
	if x < 1 || x > cons.width || y < 1 || y > cons.height {
		return
	}

	if fg >= vgaTextColors {
		fg = cons.defaultFg
	}
	if bg >= vgaTextColors {
		bg = cons.defaultBg
	}

	cons.fb[((y-1)*cons.width)+(x-1)] = (((uint16(bg) << 4) | uint16(fg)) << 8) | uint16(ch)
}

// SetCursor moves the hardware cursor to (x, y). Both coordinates are
// 1-based and clipped to the console dimensions.
func (cons *VgaTextConsole) SetCursor(x, y uint32) {
	if x < 1 {
		x = 1
	} else if x > cons.width {
		x = cons.width
	}

	if y < 1 {
		y = 1
	} else if y > cons.height {
		y = cons.height
	}

	pos := uint16((y-1)*cons.width + (x - 1))
	portWriteByteFn(crtcAddrPort, crtcCursorLocLow)
	portWriteByteFn(crtcDataPort, uint8(pos&0xff))
	portWriteByteFn(crtcAddrPort, crtcCursorLocHigh)
	portWriteByteFn(crtcDataPort, uint8(pos>>8))
}

// EnableCursor shows the hardware cursor as an underline spanning scanlines
// 14 and 15 of the character cell.
func (cons *VgaTextConsole) EnableCursor() {
	portWriteByteFn(crtcAddrPort, crtcCursorStart)
	portWriteByteFn(crtcDataPort, (portReadByteFn(crtcDataPort)&0xc0)|0x0e)
	portWriteByteFn(crtcAddrPort, crtcCursorEnd)
	portWriteByteFn(crtcDataPort, (portReadByteFn(crtcDataPort)&0xc0)|0x0f)
}

// DisableCursor hides the hardware cursor.
func (cons *VgaTextConsole) DisableCursor() {
	portWriteByteFn(crtcAddrPort, crtcCursorStart)
	portWriteByteFn(crtcDataPort, cursorDisableBit)
}

// DriverName returns the name of this driver.
func (cons *VgaTextConsole) DriverName() string {
	return "vga_text_console"
}

// DriverVersion returns the version of this driver.
func (cons *VgaTextConsole) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit overlays the console framebuffer on top of its physical address,
// clears the screen and enables the hardware cursor. The bootloader hands
// over with the low 1M identity-mapped so no page mappings are needed.
func (cons *VgaTextConsole) DriverInit(w io.Writer) *kernel.Error {
	if cons.fbAddr == 0 {
		return errNoFramebuffer
	}

	cons.fb = unsafe.Slice((*uint16)(unsafe.Pointer(cons.fbAddr)), int(cons.width*cons.height))

	cons.Fill(1, 1, cons.width, cons.height, cons.defaultFg, cons.defaultBg)
	cons.EnableCursor()
	cons.SetCursor(1, 1)

	kfmt.Fprintf(w, "%dx%d text mode, framebuffer at 0x%x\n", cons.width, cons.height, cons.fbAddr)
	return nil
}

// probeForVgaTextConsole returns the early VGA text console. Its presence is
// part of the boot protocol: the bootloader leaves the display in mode 0x3.
func probeForVgaTextConsole() device.Driver {
	earlyVgaText.Init(80, 25, vgaTextFbAddr)
	return &earlyVgaText
}

// Early returns the console brought up by the early VGA text driver or nil
// if that driver has not been initialized.
func Early() Device {
	if earlyVgaText.fb == nil {
		return nil
	}

	return &earlyVgaText
}
