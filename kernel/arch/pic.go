package arch

// 8259 programmable interrupt controller ports.
const (
	picMasterCmd  uint16 = 0x20
	picMasterData uint16 = 0x21
	picSlaveCmd   uint16 = 0xa0
	picSlaveData  uint16 = 0xa1
)

// Initialization command words.
const (
	icw1ICW4Needed = 0x01
	icw1Init       = 0x10
	icw4x86Mode    = 0x01

	// The slave PIC is cascaded through IRQ2 of the master.
	icw3MasterSlaveAt  = 1 << 2
	icw3SlaveCascadeID = 2

	picMaskAll = 0xff
)

// Vector offsets for the legacy PICs. The BIOS maps IRQ 0-7 on top of the
// CPU exception vectors so they must be moved out of the way before
// interrupts are enabled.
const (
	PICMasterOffset uint8 = 0x20
	PICSlaveOffset  uint8 = 0x28
)

// remapAndMaskPIC reprograms the cascaded 8259 PICs to deliver IRQs at
// PICMasterOffset and PICSlaveOffset and then masks every IRQ line. No
// device interrupts are delivered until a driver unmasks its line.
func remapAndMaskPIC(out func(port uint16, val uint8)) {
	out(picMasterCmd, icw1Init|icw1ICW4Needed)
	out(picSlaveCmd, icw1Init|icw1ICW4Needed)

	out(picMasterData, PICMasterOffset)
	out(picSlaveData, PICSlaveOffset)

	out(picMasterData, icw3MasterSlaveAt)
	out(picSlaveData, icw3SlaveCascadeID)

	out(picMasterData, icw4x86Mode)
	out(picSlaveData, icw4x86Mode)

	out(picSlaveData, picMaskAll)
	out(picMasterData, picMaskAll)
}
