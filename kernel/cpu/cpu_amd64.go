// Package cpu exposes the privileged x86_64 instructions used by the kernel.
// All functions in this package are implemented in assembly.
package cpu

var (
	cpuidFn = ID
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt disables interrupts and stops instruction execution. Halt never
// returns; if the CPU is woken up by an NMI it halts again.
func Halt()

// WaitForInterrupt enables interrupts and idles the CPU until the next
// interrupt arrives. It returns after the interrupt handler completes.
func WaitForInterrupt()

// LoadIDT loads the interrupt descriptor table register from the 10-byte
// pseudo-descriptor (16-bit limit followed by a 64-bit base) at idtrAddr.
func LoadIDT(idtrAddr uintptr)

// ReadCR2 returns the value stored in the CR2 register.
func ReadCR2() uint64

// ID returns information about the CPU and its features. It
// is implemented as a CPUID instruction with EAX=leaf and
// returns the values in EAX, EBX, ECX and EDX.
func ID(leaf uint32) (uint32, uint32, uint32, uint32)

// Vendor returns the 12-character vendor identification string reported by
// CPUID leaf 0 (e.g. "GenuineIntel" or "AuthenticAMD").
func Vendor() [12]byte {
	var vendor [12]byte

	_, ebx, ecx, edx := cpuidFn(0)
	for i, reg := range [3]uint32{ebx, edx, ecx} {
		vendor[i*4+0] = byte(reg)
		vendor[i*4+1] = byte(reg >> 8)
		vendor[i*4+2] = byte(reg >> 16)
		vendor[i*4+3] = byte(reg >> 24)
	}

	return vendor
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8
