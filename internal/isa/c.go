package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

const extC = "C"

// cExt implements the compressed 16-bit instruction extension. It is tried
// first by Standard() since it owns a disjoint 2-byte decode space: itab
// probes 2 bytes at a time and only widens to 4 when bits [1:0] read 11
// (spec.md §4.1), so a compressed instruction's raw value never collides
// with a 32-bit opcode.
type cExt struct{}

// NewCompressed returns the C extension module.
func NewCompressed() Extension { return cExt{} }

func (cExt) Name() string { return extC }

// cReg decodes a 3-bit compressed register field at bit offset shift into
// the x8-x15 window the compressed formats restrict themselves to.
func cReg(instr uint16, shift uint) uint8 {
	return uint8((instr>>shift)&0x7) + 8
}

func (cExt) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	if size != 2 {
		return Decoded{}, false
	}
	instr := uint16(raw)
	quadrant := instr & 0x3
	f3 := uint32((instr >> 13) & 0x7)

	switch quadrant {
	case 0b00:
		return decodeCQ0(instr, f3, pc, raw, width)
	case 0b01:
		return decodeCQ1(instr, f3, pc, raw, width)
	case 0b10:
		return decodeCQ2(instr, f3, pc, raw, width)
	}
	return Decoded{}, false // quadrant 11 is a 4-byte instruction
}

func cd(name string, shape ArgShape, pc uint64, raw uint32, a Args) Decoded {
	a.Shape = shape
	return Decoded{Op: OpID{Ext: extC, Name: name}, PC: pc, Size: 2, Raw: raw, Args: a}
}

func decodeCQ0(instr uint16, f3 uint32, pc uint64, raw uint32, width xlen.Width) (Decoded, bool) {
	switch f3 {
	case 0b000:
		nzuimm := decAddi4spnImm(instr)
		if nzuimm == 0 {
			return Decoded{}, false
		}
		rd := cReg(instr, 2)
		return cd("C.ADDI4SPN", ArgI, pc, raw, Args{Rd: rd, Rs1: 2, Imm: int64(nzuimm)}), true
	case 0b010:
		rd, rs1 := cReg(instr, 2), cReg(instr, 7)
		return cd("C.LW", ArgI, pc, raw, Args{Rd: rd, Rs1: rs1, Imm: int64(decClLwOffset(instr))}), true
	case 0b011:
		if width != xlen.W64 {
			return Decoded{}, false
		}
		rd, rs1 := cReg(instr, 2), cReg(instr, 7)
		return cd("C.LD", ArgI, pc, raw, Args{Rd: rd, Rs1: rs1, Imm: int64(decClLdOffset(instr))}), true
	case 0b110:
		rs2, rs1 := cReg(instr, 2), cReg(instr, 7)
		return cd("C.SW", ArgS, pc, raw, Args{Rs1: rs1, Rs2: rs2, Imm: int64(decClLwOffset(instr))}), true
	case 0b111:
		if width != xlen.W64 {
			return Decoded{}, false
		}
		rs2, rs1 := cReg(instr, 2), cReg(instr, 7)
		return cd("C.SD", ArgS, pc, raw, Args{Rs1: rs1, Rs2: rs2, Imm: int64(decClLdOffset(instr))}), true
	}
	return Decoded{}, false
}

func decodeCQ1(instr uint16, f3 uint32, pc uint64, raw uint32, width xlen.Width) (Decoded, bool) {
	rd5 := uint8((instr >> 7) & 0x1f)
	switch f3 {
	case 0b000:
		imm := decCiImm(instr)
		if rd5 == 0 && imm == 0 {
			return cd("C.NOP", ArgNone, pc, raw, Args{}), true
		}
		return cd("C.ADDI", ArgI, pc, raw, Args{Rd: rd5, Rs1: rd5, Imm: int64(imm)}), true
	case 0b001:
		if width == xlen.W64 {
			if rd5 == 0 {
				return Decoded{}, false
			}
			imm := decCiImm(instr)
			return cd("C.ADDIW", ArgI, pc, raw, Args{Rd: rd5, Rs1: rd5, Imm: int64(imm)}), true
		}
		return cd("C.JAL", ArgJ, pc, raw, Args{Rd: 1, Imm: int64(decCjImm(instr))}), true
	case 0b010:
		return cd("C.LI", ArgI, pc, raw, Args{Rd: rd5, Rs1: 0, Imm: int64(decCiImm(instr))}), true
	case 0b011:
		if rd5 == 2 {
			imm := decCi16spImm(instr)
			if imm == 0 {
				return Decoded{}, false
			}
			return cd("C.ADDI16SP", ArgI, pc, raw, Args{Rd: 2, Rs1: 2, Imm: int64(imm)}), true
		}
		imm := decCiLuiImm(instr)
		if imm == 0 || rd5 == 0 {
			return Decoded{}, false
		}
		return cd("C.LUI", ArgU, pc, raw, Args{Rd: rd5, Imm: int64(imm)}), true
	case 0b100:
		return decodeCMiscAlu(instr, pc, raw, width)
	case 0b101:
		return cd("C.J", ArgJ, pc, raw, Args{Rd: 0, Imm: int64(decCjImm(instr))}), true
	case 0b110:
		rs1 := cReg(instr, 7)
		return cd("C.BEQZ", ArgB, pc, raw, Args{Rs1: rs1, Rs2: 0, Imm: int64(decCbImm(instr))}), true
	case 0b111:
		rs1 := cReg(instr, 7)
		return cd("C.BNEZ", ArgB, pc, raw, Args{Rs1: rs1, Rs2: 0, Imm: int64(decCbImm(instr))}), true
	}
	return Decoded{}, false
}

func decodeCMiscAlu(instr uint16, pc uint64, raw uint32, width xlen.Width) (Decoded, bool) {
	funct2 := uint8((instr >> 10) & 0x3)
	rd := cReg(instr, 7)
	switch funct2 {
	case 0b00:
		return cd("C.SRLI", ArgI, pc, raw, Args{Rd: rd, Rs1: rd, Imm: int64(decCiShamt(instr))}), true
	case 0b01:
		return cd("C.SRAI", ArgI, pc, raw, Args{Rd: rd, Rs1: rd, Imm: int64(decCiShamt(instr))}), true
	case 0b10:
		return cd("C.ANDI", ArgI, pc, raw, Args{Rd: rd, Rs1: rd, Imm: int64(decCiImm(instr))}), true
	case 0b11:
		rs2 := cReg(instr, 2)
		funct6 := uint8((instr >> 12) & 0x1)
		funct2Low := uint8((instr >> 5) & 0x3)
		if funct6 == 0 {
			var name string
			switch funct2Low {
			case 0b00:
				name = "C.SUB"
			case 0b01:
				name = "C.XOR"
			case 0b10:
				name = "C.OR"
			case 0b11:
				name = "C.AND"
			default:
				return Decoded{}, false
			}
			return cd(name, ArgR, pc, raw, Args{Rd: rd, Rs1: rd, Rs2: rs2}), true
		}
		if width != xlen.W64 {
			return Decoded{}, false
		}
		var name string
		switch funct2Low {
		case 0b00:
			name = "C.SUBW"
		case 0b01:
			name = "C.ADDW"
		default:
			return Decoded{}, false
		}
		return cd(name, ArgR, pc, raw, Args{Rd: rd, Rs1: rd, Rs2: rs2}), true
	}
	return Decoded{}, false
}

func decodeCQ2(instr uint16, f3 uint32, pc uint64, raw uint32, width xlen.Width) (Decoded, bool) {
	rd5 := uint8((instr >> 7) & 0x1f)
	switch f3 {
	case 0b000:
		if rd5 == 0 {
			return Decoded{}, false
		}
		return cd("C.SLLI", ArgI, pc, raw, Args{Rd: rd5, Rs1: rd5, Imm: int64(decCiShamt(instr))}), true
	case 0b010:
		if rd5 == 0 {
			return Decoded{}, false
		}
		return cd("C.LWSP", ArgI, pc, raw, Args{Rd: rd5, Rs1: 2, Imm: int64(decCiLwspOffset(instr))}), true
	case 0b011:
		if width != xlen.W64 || rd5 == 0 {
			return Decoded{}, false
		}
		return cd("C.LDSP", ArgI, pc, raw, Args{Rd: rd5, Rs1: 2, Imm: int64(decCiLdspOffset(instr))}), true
	case 0b100:
		funct4 := uint8((instr >> 12) & 0x1)
		rs1 := uint8((instr >> 7) & 0x1f)
		rs2 := uint8((instr >> 2) & 0x1f)
		if funct4 == 0 {
			if rs2 == 0 {
				if rs1 == 0 {
					return Decoded{}, false
				}
				return cd("C.JR", ArgI, pc, raw, Args{Rd: 0, Rs1: rs1, Imm: 0}), true
			}
			return cd("C.MV", ArgR, pc, raw, Args{Rd: rs1, Rs1: 0, Rs2: rs2}), true
		}
		if rs1 == 0 && rs2 == 0 {
			return cd("C.EBREAK", ArgNone, pc, raw, Args{}), true
		}
		if rs2 == 0 {
			if rs1 == 0 {
				// c.jalr with rs1=0 is reserved, not ebreak's alias: decline.
				return Decoded{}, false
			}
			return cd("C.JALR", ArgI, pc, raw, Args{Rd: 1, Rs1: rs1, Imm: 0}), true
		}
		return cd("C.ADD", ArgR, pc, raw, Args{Rd: rs1, Rs1: rs1, Rs2: rs2}), true
	case 0b110:
		rs2 := uint8((instr >> 2) & 0x1f)
		return cd("C.SWSP", ArgS, pc, raw, Args{Rs1: 2, Rs2: rs2, Imm: int64(decCssSwspOffset(instr))}), true
	case 0b111:
		if width != xlen.W64 {
			return Decoded{}, false
		}
		rs2 := uint8((instr >> 2) & 0x1f)
		return cd("C.SDSP", ArgS, pc, raw, Args{Rs1: 2, Rs2: rs2, Imm: int64(decCssSdspOffset(instr))}), true
	}
	return Decoded{}, false
}

// Immediate decoders. Each packs scattered instruction bits into the
// field order the base ISA equivalent expects, then sign-extends where
// the format is signed.

func decAddi4spnImm(instr uint16) uint16 {
	return ((instr>>6)&0x1)<<2 | ((instr>>5)&0x1)<<3 | ((instr>>11)&0x3)<<4 | ((instr>>7)&0xf)<<6
}

func decClLwOffset(instr uint16) uint8 {
	return uint8((instr>>6)&0x1<<2 | (instr>>10)&0x7<<3 | (instr>>5)&0x1<<6)
}

func decClLdOffset(instr uint16) uint16 {
	return (instr>>10)&0x7<<3 | (instr>>5)&0x3<<6
}

func decCiImm(instr uint16) int8 {
	imm := uint8((instr>>2)&0x1f | (instr>>12)&0x1<<5)
	return int8(imm<<2) >> 2
}

func decCjImm(instr uint16) int16 {
	imm := (instr>>3)&0x7<<1 |
		(instr>>11)&0x1<<4 |
		(instr>>2)&0x1<<5 |
		(instr>>7)&0x1<<6 |
		(instr>>6)&0x1<<7 |
		(instr>>9)&0x3<<8 |
		(instr>>8)&0x1<<10 |
		(instr>>12)&0x1<<11
	return int16(imm<<4) >> 4
}

func decCi16spImm(instr uint16) int16 {
	imm := (instr>>6)&0x1<<4 |
		(instr>>2)&0x1<<5 |
		(instr>>5)&0x1<<6 |
		(instr>>3)&0x3<<7 |
		(instr>>12)&0x1<<9
	return int16(imm<<6) >> 6
}

func decCiLuiImm(instr uint16) int32 {
	imm := uint32((instr>>2)&0x1f | (instr>>12)&0x1<<5)
	imm <<= 12
	return int32(imm<<14) >> 14
}

func decCiShamt(instr uint16) uint8 {
	return uint8((instr>>2)&0x1f | (instr>>12)&0x1<<5)
}

func decCbImm(instr uint16) int16 {
	imm := (instr>>3)&0x3<<1 |
		(instr>>10)&0x3<<3 |
		(instr>>2)&0x1<<5 |
		(instr>>5)&0x3<<6 |
		(instr>>12)&0x1<<8
	return int16(imm<<7) >> 7
}

func decCiLwspOffset(instr uint16) uint8 {
	return uint8((instr>>4)&0x7<<2 | (instr>>12)&0x1<<5 | (instr>>2)&0x3<<6)
}

func decCssSwspOffset(instr uint16) uint8 {
	return uint8((instr>>9)&0xf<<2 | (instr>>7)&0x3<<6)
}

func decCiLdspOffset(instr uint16) uint16 {
	return (instr>>5)&0x3<<3 | (instr>>12)&0x1<<5 | (instr>>2)&0x7<<6
}

func decCssSdspOffset(instr uint16) uint16 {
	return (instr>>10)&0x7<<3 | (instr>>7)&0x7<<6
}

// Lift re-expresses every compressed form as its base-ISA equivalent
// (spec.md §4.3: "compressed instructions lift to exactly the IR their
// expansion would produce"), so the rest of the pipeline never special-
// cases instruction size beyond block layout.
func (cExt) Lift(d Decoded, width xlen.Width) rvir.Instruction {
	next := d.PC + uint64(d.Size)
	inst := rvir.Instruction{PC: d.PC, Size: d.Size, Raw: d.Raw, Terminator: rvir.Fall(next, true)}
	rs1, rs2 := rvir.Reg(d.Args.Rs1), rvir.Reg(d.Args.Rs2)

	write := func(rd uint8, e *rvir.Expr) {
		if rd == 0 {
			return
		}
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.RegTarget(rd), e)}
	}

	switch d.Op.Name {
	case "C.ADDI4SPN":
		write(d.Args.Rd, rvir.Binary(rvir.OpAdd, rvir.Reg(2), rvir.ImmI(d.Args.Imm)))
	case "C.LW":
		write(d.Args.Rd, rvir.Mem(rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm)), 0, rvir.Width32, true))
	case "C.LD":
		write(d.Args.Rd, rvir.Mem(rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm)), 0, rvir.Width64, true))
	case "C.SW":
		addr := rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm))
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.MemTarget(addr, 0, rvir.Width32), rs2)}
	case "C.SD":
		addr := rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm))
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.MemTarget(addr, 0, rvir.Width64), rs2)}
	case "C.NOP":
		// no-op
	case "C.ADDI", "C.ADDI16SP":
		write(d.Args.Rd, rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm)))
	case "C.ADDIW":
		write(d.Args.Rd, rvir.BinaryWord(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm)))
	case "C.JAL":
		target := uint64(int64(d.PC) + d.Args.Imm)
		write(1, rvir.ImmI(int64(next)))
		inst.Terminator = rvir.Jump(target)
	case "C.LI":
		write(d.Args.Rd, rvir.ImmI(d.Args.Imm))
	case "C.LUI":
		write(d.Args.Rd, rvir.ImmI(d.Args.Imm))
	case "C.SRLI":
		write(d.Args.Rd, rvir.Binary(rvir.OpSrl, rs1, rvir.ImmI(d.Args.Imm)))
	case "C.SRAI":
		write(d.Args.Rd, rvir.Binary(rvir.OpSra, rs1, rvir.ImmI(d.Args.Imm)))
	case "C.ANDI":
		write(d.Args.Rd, rvir.Binary(rvir.OpAnd, rs1, rvir.ImmI(d.Args.Imm)))
	case "C.SUB":
		write(d.Args.Rd, rvir.Binary(rvir.OpSub, rs1, rs2))
	case "C.XOR":
		write(d.Args.Rd, rvir.Binary(rvir.OpXor, rs1, rs2))
	case "C.OR":
		write(d.Args.Rd, rvir.Binary(rvir.OpOr, rs1, rs2))
	case "C.AND":
		write(d.Args.Rd, rvir.Binary(rvir.OpAnd, rs1, rs2))
	case "C.SUBW":
		write(d.Args.Rd, rvir.BinaryWord(rvir.OpSub, rs1, rs2))
	case "C.ADDW":
		write(d.Args.Rd, rvir.BinaryWord(rvir.OpAdd, rs1, rs2))
	case "C.J":
		inst.Terminator = rvir.Jump(uint64(int64(d.PC) + d.Args.Imm))
	case "C.BEQZ":
		target := uint64(int64(d.PC) + d.Args.Imm)
		cond := rvir.Binary(rvir.OpEq, rs1, rvir.Imm(0))
		inst.Terminator = rvir.Branch(cond, target, next, true)
	case "C.BNEZ":
		target := uint64(int64(d.PC) + d.Args.Imm)
		cond := rvir.Binary(rvir.OpNe, rs1, rvir.Imm(0))
		inst.Terminator = rvir.Branch(cond, target, next, true)
	case "C.SLLI":
		write(d.Args.Rd, rvir.Binary(rvir.OpSll, rs1, rvir.ImmI(d.Args.Imm)))
	case "C.LWSP":
		write(d.Args.Rd, rvir.Mem(rvir.Binary(rvir.OpAdd, rvir.Reg(2), rvir.ImmI(d.Args.Imm)), 0, rvir.Width32, true))
	case "C.LDSP":
		write(d.Args.Rd, rvir.Mem(rvir.Binary(rvir.OpAdd, rvir.Reg(2), rvir.ImmI(d.Args.Imm)), 0, rvir.Width64, true))
	case "C.JR":
		inst.Terminator = rvir.JumpDyn(rvir.Binary(rvir.OpAnd, rvir.Reg(d.Args.Rs1), rvir.ImmI(-2)))
	case "C.MV":
		write(d.Args.Rd, rs2)
	case "C.EBREAK":
		inst.Terminator = rvir.Trap("c.ebreak")
	case "C.JALR":
		addr := rvir.Binary(rvir.OpAnd, rvir.Reg(d.Args.Rs1), rvir.ImmI(-2))
		write(1, rvir.ImmI(int64(next)))
		inst.Terminator = rvir.JumpDyn(addr)
	case "C.ADD":
		write(d.Args.Rd, rvir.Binary(rvir.OpAdd, rs1, rs2))
	case "C.SWSP":
		addr := rvir.Binary(rvir.OpAdd, rvir.Reg(2), rvir.ImmI(d.Args.Imm))
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.MemTarget(addr, 0, rvir.Width32), rs2)}
	case "C.SDSP":
		addr := rvir.Binary(rvir.OpAdd, rvir.Reg(2), rvir.ImmI(d.Args.Imm))
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.MemTarget(addr, 0, rvir.Width64), rs2)}
	default:
		inst.Terminator = rvir.Trap(fmt.Sprintf("unhandled C opcode %s", d.Op.Name))
	}
	return inst
}

func (cExt) Disasm(d Decoded) string {
	switch d.Args.Shape {
	case ArgNone:
		return d.Op.Name
	case ArgR:
		return fmt.Sprintf("%s %s, %s", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs2))
	case ArgB, ArgJ:
		return fmt.Sprintf("%s %s, %d", d.Op.Name, regName(d.Args.Rs1), d.Args.Imm)
	case ArgS:
		return fmt.Sprintf("%s %s, %d(%s)", d.Op.Name, regName(d.Args.Rs2), d.Args.Imm, regName(d.Args.Rs1))
	default:
		return fmt.Sprintf("%s %s, %d", d.Op.Name, regName(d.Args.Rd), d.Args.Imm)
	}
}

var cOpInfo = map[string]OpInfo{
	"C.ADDI4SPN": {"c.addi4spn", ClassALU, 2}, "C.LW": {"c.lw", ClassLoad, 2}, "C.LD": {"c.ld", ClassLoad, 2},
	"C.SW": {"c.sw", ClassStore, 2}, "C.SD": {"c.sd", ClassStore, 2}, "C.NOP": {"c.nop", ClassALU, 2},
	"C.ADDI": {"c.addi", ClassALU, 2}, "C.ADDIW": {"c.addiw", ClassALU, 2}, "C.JAL": {"c.jal", ClassBranch, 2},
	"C.LI": {"c.li", ClassALU, 2}, "C.ADDI16SP": {"c.addi16sp", ClassALU, 2}, "C.LUI": {"c.lui", ClassALU, 2},
	"C.SRLI": {"c.srli", ClassALU, 2}, "C.SRAI": {"c.srai", ClassALU, 2}, "C.ANDI": {"c.andi", ClassALU, 2},
	"C.SUB": {"c.sub", ClassALU, 2}, "C.XOR": {"c.xor", ClassALU, 2}, "C.OR": {"c.or", ClassALU, 2}, "C.AND": {"c.and", ClassALU, 2},
	"C.SUBW": {"c.subw", ClassALU, 2}, "C.ADDW": {"c.addw", ClassALU, 2}, "C.J": {"c.j", ClassBranch, 2},
	"C.BEQZ": {"c.beqz", ClassBranch, 2}, "C.BNEZ": {"c.bnez", ClassBranch, 2}, "C.SLLI": {"c.slli", ClassALU, 2},
	"C.LWSP": {"c.lwsp", ClassLoad, 2}, "C.LDSP": {"c.ldsp", ClassLoad, 2}, "C.JR": {"c.jr", ClassBranch, 2},
	"C.MV": {"c.mv", ClassALU, 2}, "C.EBREAK": {"c.ebreak", ClassSystem, 2}, "C.JALR": {"c.jalr", ClassBranch, 2},
	"C.ADD": {"c.add", ClassALU, 2}, "C.SWSP": {"c.swsp", ClassStore, 2}, "C.SDSP": {"c.sdsp", ClassStore, 2},
}

func (cExt) OpInfo(op OpID) (OpInfo, bool) {
	info, ok := cOpInfo[op.Name]
	return info, ok
}
