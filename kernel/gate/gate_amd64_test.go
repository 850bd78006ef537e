package gate

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"os"
	"strings"
	"testing"
	"unsafe"

	"github.com/Sparkpin/spinel/kernel/cpu"
)

func fakeStubs() StubTable {
	var stubs StubTable
	for i := range stubs {
		stubs[i] = 0xffffffff80100000 + uintptr(i)*16
	}
	return stubs
}

func TestEncodeEntry(t *testing.T) {
	specs := []struct {
		entry Entry
		exp   Descriptor
	}{
		{
			Entry{
				Handler:  0xffffffff80101234,
				Selector: KernelCodeSelector,
				Type:     InterruptGate,
				Present:  true,
			},
			Descriptor{0x80108e0000081234, 0xffffffff},
		},
		{
			Entry{
				Handler:  0x00000000001fabcd,
				Selector: KernelCodeSelector,
				Type:     TrapGate,
				Present:  true,
			},
			Descriptor{0x001f8f000008abcd, 0},
		},
		{
			Entry{
				Handler:  0x1122334455667788,
				Selector: 0x28,
				IST:      3,
				Type:     InterruptGate,
				DPL:      3,
				Present:  false,
			},
			Descriptor{0x55666e0300287788, 0x11223344},
		},
	}

	for specIndex, spec := range specs {
		got := EncodeEntry(spec.entry)
		if got != spec.exp {
			t.Errorf("[spec %d] expected encoding {0x%x, 0x%x}; got {0x%x, 0x%x}", specIndex, spec.exp[0], spec.exp[1], got[0], got[1])
			continue
		}

		if decoded := got.Decode(); decoded != spec.entry {
			t.Errorf("[spec %d] expected decoded entry %+v; got %+v", specIndex, spec.entry, decoded)
		}
	}
}

func TestEncodeEntryMasksFields(t *testing.T) {
	d := EncodeEntry(Entry{IST: 0xff, DPL: 0xff, Type: 0xff})
	e := d.Decode()

	if e.IST != 7 || e.DPL != 3 || e.Type != 0xf {
		t.Fatalf("expected out of range fields to be truncated; got %+v", e)
	}

	if e.Present || e.Handler != 0 || e.Selector != 0 {
		t.Fatalf("expected other fields to be unaffected; got %+v", e)
	}
}

func TestBuildTable(t *testing.T) {
	stubs := fakeStubs()

	var table Table
	BuildTable(&table, stubs)

	for vec := 0; vec < EntryCount; vec++ {
		e := table[vec].Decode()

		if !e.Present {
			t.Errorf("[vector %d] expected descriptor to be present", vec)
		}

		if e.Handler != stubs[vec] {
			t.Errorf("[vector %d] expected handler 0x%x; got 0x%x", vec, stubs[vec], e.Handler)
		}

		if e.Selector != KernelCodeSelector || e.DPL != 0 || e.IST != 0 {
			t.Errorf("[vector %d] expected kernel selector, DPL 0 and no IST; got %+v", vec, e)
		}

		expType := InterruptGate
		if vec == int(Breakpoint) || vec == int(Overflow) {
			expType = TrapGate
		}

		if e.Type != expType {
			t.Errorf("[vector %d] expected gate type 0x%x; got 0x%x", vec, expType, e.Type)
		}
	}

	if vec, err := table.Validate(); err != nil {
		t.Fatalf("expected built table to be valid; got %v at vector %d", err, vec)
	}
}

func TestBuildTableIsIdempotent(t *testing.T) {
	stubs := fakeStubs()

	var first, second Table
	BuildTable(&first, stubs)
	BuildTable(&second, stubs)
	BuildTable(&second, stubs)

	if first != second {
		t.Fatal("expected rebuilding the table to produce an identical result")
	}
}

func TestValidate(t *testing.T) {
	stubs := fakeStubs()

	t.Run("empty table", func(t *testing.T) {
		var table Table
		vec, err := table.Validate()
		if err != errMissingDescriptor || vec != 0 {
			t.Fatalf("expected errMissingDescriptor at vector 0; got %v at vector %d", err, vec)
		}
	})

	t.Run("missing descriptor", func(t *testing.T) {
		var table Table
		BuildTable(&table, stubs)
		table[77] = Descriptor{}
		table[200] = Descriptor{}

		vec, err := table.Validate()
		if err != errMissingDescriptor || vec != 77 {
			t.Fatalf("expected errMissingDescriptor at vector 77; got %v at vector %d", err, vec)
		}
	})

	t.Run("null handler", func(t *testing.T) {
		stubs := fakeStubs()
		stubs[PageFaultException] = 0

		var table Table
		BuildTable(&table, stubs)

		vec, err := table.Validate()
		if err != errNullHandler || vec != PageFaultException {
			t.Fatalf("expected errNullHandler at vector %d; got %v at vector %d", PageFaultException, err, vec)
		}
	})
}

func TestLoad(t *testing.T) {
	defer func() {
		loadIDTFn = cpu.LoadIDT
	}()

	var (
		table    Table
		loadCall int
		limit    uint16
		base     uint64
	)

	loadIDTFn = func(addr uintptr) {
		loadCall++
		pseudoDesc := (*[10]byte)(unsafe.Pointer(addr))
		limit = binary.LittleEndian.Uint16(pseudoDesc[0:])
		base = binary.LittleEndian.Uint64(pseudoDesc[2:])
	}

	Load(&table)

	if loadCall != 1 {
		t.Fatalf("expected LoadIDT to be called once; got %d", loadCall)
	}

	if exp := uint16(EntryCount*16 - 1); limit != exp {
		t.Errorf("expected IDT limit to be %d; got %d", exp, limit)
	}

	if exp := uint64(uintptr(unsafe.Pointer(&table))); base != exp {
		t.Errorf("expected IDT base to be 0x%x; got 0x%x", exp, base)
	}
}

func TestStubAddresses(t *testing.T) {
	var stubs StubTable
	StubAddresses(&stubs)

	seen := make(map[uintptr]int)
	for vec, addr := range stubs {
		if addr == 0 {
			t.Fatalf("[vector %d] expected a non-null stub address", vec)
		}

		if prev, dup := seen[addr]; dup {
			t.Fatalf("[vector %d] stub address 0x%x is shared with vector %d", vec, addr, prev)
		}
		seen[addr] = vec
	}

	var table Table
	BuildTable(&table, stubs)
	if vec, err := table.Validate(); err != nil {
		t.Fatalf("expected table built from the entry stubs to be valid; got %v at vector %d", err, vec)
	}
}

func TestInterruptNumberName(t *testing.T) {
	specs := []struct {
		num InterruptNumber
		exp string
	}{
		{DivideByZero, "divide error"},
		{Breakpoint, "breakpoint"},
		{DoubleFault, "double fault"},
		{GPFException, "general protection fault"},
		{PageFaultException, "page fault"},
		{15, "reserved"},
		{30, "security exception"},
		{31, "reserved"},
		{FirstExternal, "external interrupt"},
		{255, "external interrupt"},
	}

	for specIndex, spec := range specs {
		if got := spec.num.Name(); got != spec.exp {
			t.Errorf("[spec %d] expected name of vector %d to be %q; got %q", specIndex, spec.num, spec.exp, got)
		}
	}
}

func TestRegistersLayout(t *testing.T) {
	// The entry stubs push 15 general purpose registers, the vector number
	// and the error code on top of the 5 quad words pushed by the CPU.
	if exp, got := uintptr(22*8), unsafe.Sizeof(Registers{}); got != exp {
		t.Fatalf("expected Registers to be %d bytes; got %d", exp, got)
	}

	var regs Registers
	if off := unsafe.Offsetof(regs.Info); off != 15*8 {
		t.Fatalf("expected Info at offset %d; got %d", 15*8, off)
	}

	if off := unsafe.Offsetof(regs.RIP); off != 17*8 {
		t.Fatalf("expected RIP at offset %d; got %d", 17*8, off)
	}
}

func TestEntryStubSource(t *testing.T) {
	src, err := os.ReadFile("gate_amd64.s")
	if err != nil {
		t.Fatal(err)
	}

	start := bytes.Index(src, []byte("TEXT interruptCommon<>(SB)"))
	if start == -1 {
		t.Fatal("interruptCommon not found")
	}
	common := string(src[start:])
	common = common[:strings.Index(common, "IRETQ")]

	// The FPU/SSE state must be saved before Dispatch runs and restored
	// before the general purpose registers are popped.
	order := []string{"PUSHQ AX", "FXSAVE64", "CALL ·Dispatch(SB)", "FXRSTOR64", "POPQ AX"}
	last := -1
	for i, insn := range order {
		idx := strings.Index(common, insn)
		if idx == -1 {
			t.Fatalf("expected interruptCommon to contain %q", insn)
		}

		if idx < last {
			t.Fatalf("expected %q to appear after %q", insn, order[i-1])
		}
		last = idx
	}

	// Every vector has a stub; the CPU pushes an error code for
	// the vectors in errCodeVectors only.
	errCodeVectors := map[int]bool{8: true, 10: true, 11: true, 12: true, 13: true, 14: true, 17: true, 21: true, 29: true, 30: true}
	for vec := 0; vec < EntryCount; vec++ {
		header := fmt.Sprintf("TEXT entry%d<>(SB),NOSPLIT,$0\n", vec)
		idx := bytes.Index(src, []byte(header))
		if idx == -1 {
			t.Fatalf("[vector %d] missing entry stub", vec)
		}

		body := string(src[idx+len(header):])
		body = body[:strings.Index(body, "JMP interruptCommon<>(SB)")]

		expBody := fmt.Sprintf("\tPUSHQ $%d\n", vec)
		if !errCodeVectors[vec] {
			expBody = "\tPUSHQ $0\n" + expBody
		}

		if body != expBody {
			t.Errorf("[vector %d] expected stub body %q; got %q", vec, expBody, body)
		}
	}
}
