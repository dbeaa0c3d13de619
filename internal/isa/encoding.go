package isa

// Shared bit-field extraction for the 32-bit instruction formats
// (R, I, S, B, U, J) and the CSR/AMO variants built on top of I/R.

func opcode(raw uint32) uint32 { return raw & 0x7f }
func rdOf(raw uint32) uint8    { return uint8((raw >> 7) & 0x1f) }
func funct3(raw uint32) uint32 { return (raw >> 12) & 0x7 }
func rs1Of(raw uint32) uint8   { return uint8((raw >> 15) & 0x1f) }
func rs2Of(raw uint32) uint8   { return uint8((raw >> 20) & 0x1f) }
func funct7(raw uint32) uint32 { return (raw >> 25) & 0x7f }
func funct5(raw uint32) uint32 { return (raw >> 27) & 0x1f }

func signExtend(v uint32, bits int) int64 {
	shift := uint(32 - bits)
	return int64(int32(v<<shift) >> shift)
}

func immI(raw uint32) int64 {
	return int64(int32(raw)) >> 20
}

func immS(raw uint32) int64 {
	imm := ((raw >> 25) << 5) | ((raw >> 7) & 0x1f)
	return signExtend(imm, 12)
}

func immB(raw uint32) int64 {
	imm := ((raw>>31)&1)<<12 | ((raw>>7)&1)<<11 | ((raw>>25)&0x3f)<<5 | ((raw>>8)&0xf)<<1
	return signExtend(imm, 13)
}

func immU(raw uint32) int64 {
	return int64(int32(raw & 0xfffff000))
}

func immJ(raw uint32) int64 {
	imm := ((raw>>31)&1)<<20 | ((raw>>12)&0xff)<<12 | ((raw>>20)&1)<<11 | ((raw>>21)&0x3ff)<<1
	return signExtend(imm, 21)
}

func csrOf(raw uint32) uint16 { return uint16(raw >> 20) }

func regName(n uint8) string {
	names := [32]string{
		"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
		"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
		"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
		"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
	}
	if int(n) < len(names) {
		return names[n]
	}
	return "x?"
}
