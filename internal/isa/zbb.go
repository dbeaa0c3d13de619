package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

const extZbb = "Zbb"

// zbbExt implements the basic bit-manipulation extension: logic-with-
// negate, count/population, min/max, sign/zero extension, rotate, and the
// byte-oriented orc.b/rev8 ops (spec.md §4.2).
type zbbExt struct{}

// NewZbb returns the Zbb extension module.
func NewZbb() Extension { return zbbExt{} }

func (zbbExt) Name() string { return extZbb }

func (zbbExt) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	if size != 4 {
		return Decoded{}, false
	}
	op, f3, f7 := opcode(raw), funct3(raw), funct7(raw)
	rd, rs1, rs2 := rdOf(raw), rs1Of(raw), rs2Of(raw)

	switch op {
	case opOp:
		switch {
		case f7 == 0x20 && f3 == 0b111:
			return d2(extZbb, "ANDN", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x20 && f3 == 0b110:
			return d2(extZbb, "ORN", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x20 && f3 == 0b100:
			return d2(extZbb, "XNOR", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x05 && f3 == 0b110:
			return d2(extZbb, "MAX", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x05 && f3 == 0b111:
			return d2(extZbb, "MAXU", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x05 && f3 == 0b100:
			return d2(extZbb, "MIN", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x05 && f3 == 0b101:
			return d2(extZbb, "MINU", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x30 && f3 == 0b001:
			return d2(extZbb, "ROL", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x30 && f3 == 0b101:
			return d2(extZbb, "ROR", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x04 && f3 == 0b100 && rs2 == 0 && width == xlen.W32:
			return d2(extZbb, "ZEXT.H", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
		}
	case op32:
		if width != xlen.W64 {
			return Decoded{}, false
		}
		switch {
		case f7 == 0x30 && f3 == 0b001:
			return d2(extZbb, "ROLW", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x30 && f3 == 0b101:
			return d2(extZbb, "RORW", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x04 && f3 == 0b100 && rs2 == 0:
			return d2(extZbb, "ZEXT.H", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
		}
	case opImm:
		if f7 == 0x30 && f3 == 0b001 {
			switch rs2 {
			case 0b00000:
				return d2(extZbb, "CLZ", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			case 0b00001:
				return d2(extZbb, "CTZ", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			case 0b00010:
				return d2(extZbb, "CPOP", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			case 0b00100:
				return d2(extZbb, "SEXT.B", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			case 0b00101:
				return d2(extZbb, "SEXT.H", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			}
		}
		if f3 == 0b101 {
			shamtBits := 5
			if width == xlen.W64 {
				shamtBits = 6
			}
			top := uint32(raw>>20) >> uint(shamtBits)
			ronePattern := uint32(0x18)
			if shamtBits == 6 {
				ronePattern = 0x0c
			}
			if top == ronePattern {
				shamt := uint8(uint32(raw>>20) & (uint32(1<<uint(shamtBits)) - 1))
				return d2(extZbb, "RORI", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
			}
			if f7 == 0x14 && rs2 == 0b00111 {
				return d2(extZbb, "ORC.B", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			}
			if (f7 == 0x35 || f7 == 0x34) && rs2 == 0b11000 {
				return d2(extZbb, "REV8", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			}
		}
	case opImm32:
		if width != xlen.W64 {
			return Decoded{}, false
		}
		if f7 == 0x30 && f3 == 0b001 {
			switch rs2 {
			case 0b00000:
				return d2(extZbb, "CLZW", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			case 0b00001:
				return d2(extZbb, "CTZW", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			case 0b00010:
				return d2(extZbb, "CPOPW", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1}), true
			}
		}
		if f3 == 0b101 {
			top := uint32(raw>>20) >> 5
			if top == 0x18 {
				shamt := uint8(uint32(raw>>20) & 0x1f)
				return d2(extZbb, "RORIW", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
			}
		}
	}
	return Decoded{}, false
}

func d2(ext, name string, pc uint64, raw uint32, shape ArgShape, a Args) Decoded {
	a.Shape = shape
	return Decoded{Op: OpID{Ext: ext, Name: name}, PC: pc, Size: 4, Raw: raw, Args: a}
}

func (zbbExt) Lift(d Decoded, width xlen.Width) rvir.Instruction {
	next := d.PC + uint64(d.Size)
	inst := rvir.Instruction{PC: d.PC, Size: d.Size, Raw: d.Raw, Terminator: rvir.Fall(next, true)}
	rs1, rs2 := rvir.Reg(d.Args.Rs1), rvir.Reg(d.Args.Rs2)

	write := func(e *rvir.Expr) {
		if d.Args.Rd == 0 {
			return
		}
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.RegTarget(d.Args.Rd), e)}
	}

	switch d.Op.Name {
	case "ANDN":
		write(rvir.Binary(rvir.OpAnd, rs1, rvir.Unary(rvir.OpNot, rs2)))
	case "ORN":
		write(rvir.Binary(rvir.OpOr, rs1, rvir.Unary(rvir.OpNot, rs2)))
	case "XNOR":
		write(rvir.Unary(rvir.OpNot, rvir.Binary(rvir.OpXor, rs1, rs2)))
	case "MAX":
		write(rvir.Binary(rvir.OpMax, rs1, rs2))
	case "MAXU":
		write(rvir.Binary(rvir.OpMaxU, rs1, rs2))
	case "MIN":
		write(rvir.Binary(rvir.OpMin, rs1, rs2))
	case "MINU":
		write(rvir.Binary(rvir.OpMinU, rs1, rs2))
	case "ROL":
		write(rvir.Binary(rvir.OpRol, rs1, maskShift(rs2, width)))
	case "ROR":
		write(rvir.Binary(rvir.OpRor, rs1, maskShift(rs2, width)))
	case "ROLW":
		write(rvir.BinaryWord(rvir.OpRol, rs1, rvir.Binary(rvir.OpAnd, rs2, rvir.ImmI(0x1f))))
	case "RORW":
		write(rvir.BinaryWord(rvir.OpRor, rs1, rvir.Binary(rvir.OpAnd, rs2, rvir.ImmI(0x1f))))
	case "RORI":
		write(rvir.Binary(rvir.OpRor, rs1, rvir.ImmI(d.Args.Imm)))
	case "RORIW":
		write(rvir.BinaryWord(rvir.OpRor, rs1, rvir.ImmI(d.Args.Imm)))
	case "CLZ":
		write(rvir.Unary(rvir.OpClz, rs1))
	case "CTZ":
		write(rvir.Unary(rvir.OpCtz, rs1))
	case "CPOP":
		write(rvir.Unary(rvir.OpCpop, rs1))
	case "CLZW":
		write(rvir.Unary(rvir.OpClz, rvir.Binary(rvir.OpAnd, rs1, rvir.Imm(0xffffffff))))
	case "CTZW":
		write(rvir.Unary(rvir.OpCtz, rvir.Binary(rvir.OpOr, rs1, rvir.Imm(0x100000000))))
	case "CPOPW":
		write(rvir.Unary(rvir.OpCpop, rvir.Binary(rvir.OpAnd, rs1, rvir.Imm(0xffffffff))))
	case "SEXT.B":
		write(rvir.Unary(rvir.OpSextB, rs1))
	case "SEXT.H":
		write(rvir.Unary(rvir.OpSextH, rs1))
	case "ZEXT.H":
		write(rvir.Unary(rvir.OpZextH, rs1))
	case "ORC.B":
		write(rvir.Unary(rvir.OpOrcB, rs1))
	case "REV8":
		write(rvir.Unary(rvir.OpRev8, rs1))
	default:
		inst.Terminator = rvir.Trap(fmt.Sprintf("unhandled Zbb opcode %s", d.Op.Name))
	}
	return inst
}

func (zbbExt) Disasm(d Decoded) string {
	if d.Args.Shape == ArgR {
		return fmt.Sprintf("%s %s, %s, %s", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), regName(d.Args.Rs2))
	}
	if d.Args.Imm != 0 {
		return fmt.Sprintf("%s %s, %s, %d", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), d.Args.Imm)
	}
	return fmt.Sprintf("%s %s, %s", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1))
}

var zbbOpInfo = map[string]OpInfo{
	"ANDN": {"andn", ClassALU, 4}, "ORN": {"orn", ClassALU, 4}, "XNOR": {"xnor", ClassALU, 4},
	"MAX": {"max", ClassALU, 4}, "MAXU": {"maxu", ClassALU, 4}, "MIN": {"min", ClassALU, 4}, "MINU": {"minu", ClassALU, 4},
	"ROL": {"rol", ClassALU, 4}, "ROR": {"ror", ClassALU, 4}, "RORI": {"rori", ClassALU, 4},
	"ROLW": {"rolw", ClassALU, 4}, "RORW": {"rorw", ClassALU, 4}, "RORIW": {"roriw", ClassALU, 4},
	"CLZ": {"clz", ClassALU, 4}, "CTZ": {"ctz", ClassALU, 4}, "CPOP": {"cpop", ClassALU, 4},
	"CLZW": {"clzw", ClassALU, 4}, "CTZW": {"ctzw", ClassALU, 4}, "CPOPW": {"cpopw", ClassALU, 4},
	"SEXT.B": {"sext.b", ClassALU, 4}, "SEXT.H": {"sext.h", ClassALU, 4}, "ZEXT.H": {"zext.h", ClassALU, 4},
	"ORC.B": {"orc.b", ClassALU, 4}, "REV8": {"rev8", ClassALU, 4},
}

func (zbbExt) OpInfo(op OpID) (OpInfo, bool) {
	info, ok := zbbOpInfo[op.Name]
	return info, ok
}
