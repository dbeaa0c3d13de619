package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

const extZbs = "Zbs"

// zbsExt implements the single-bit extension: clear/set/invert/extract one
// bit named by a register or immediate index (spec.md §4.2). None of these
// need a dedicated BinaryOp — each is expressed as a mask built from a
// shifted 1, reusing OpAnd/OpOr/OpXor/OpSrl/OpSll.
type zbsExt struct{}

// NewZbs returns the Zbs extension module.
func NewZbs() Extension { return zbsExt{} }

func (zbsExt) Name() string { return extZbs }

func (zbsExt) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	if size != 4 {
		return Decoded{}, false
	}
	op, f3, f7 := opcode(raw), funct3(raw), funct7(raw)
	rd, rs1, rs2 := rdOf(raw), rs1Of(raw), rs2Of(raw)

	if op == opOp {
		switch {
		case f7 == 0x24 && f3 == 0b001:
			return d2(extZbs, "BCLR", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x24 && f3 == 0b101:
			return d2(extZbs, "BEXT", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x34 && f3 == 0b001:
			return d2(extZbs, "BINV", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x14 && f3 == 0b001:
			return d2(extZbs, "BSET", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		}
		return Decoded{}, false
	}
	if op == opImm {
		shamtBits := 5
		if width == xlen.W64 {
			shamtBits = 6
		}
		imm12 := uint32(raw>>20) & 0xfff
		mask := uint32(1<<uint(shamtBits)) - 1
		shamt := imm12 & mask
		top := imm12 >> uint(shamtBits)
		wide := shamtBits == 6
		match := func(pattern7, pattern6 uint32) bool {
			if wide {
				return top == pattern6
			}
			return top == pattern7
		}
		switch {
		case f3 == 0b001 && match(0x24, 0x12):
			return d2(extZbs, "BCLRI", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
		case f3 == 0b101 && match(0x24, 0x12):
			return d2(extZbs, "BEXTI", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
		case f3 == 0b001 && match(0x34, 0x1a):
			return d2(extZbs, "BINVI", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
		case f3 == 0b001 && match(0x14, 0x0a):
			return d2(extZbs, "BSETI", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
		}
	}
	return Decoded{}, false
}

func (zbsExt) Lift(d Decoded, width xlen.Width) rvir.Instruction {
	next := d.PC + uint64(d.Size)
	inst := rvir.Instruction{PC: d.PC, Size: d.Size, Raw: d.Raw, Terminator: rvir.Fall(next, true)}
	rs1 := rvir.Reg(d.Args.Rs1)

	var bitIdx *rvir.Expr
	switch d.Op.Name {
	case "BCLR", "BEXT", "BINV", "BSET":
		bitIdx = maskShift(rvir.Reg(d.Args.Rs2), width)
	default:
		bitIdx = rvir.ImmI(d.Args.Imm)
	}
	one := &rvir.Expr{Kind: rvir.ExprBinary, BOp: rvir.OpSll, L: rvir.Imm(1), R: bitIdx}

	write := func(e *rvir.Expr) {
		if d.Args.Rd == 0 {
			return
		}
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.RegTarget(d.Args.Rd), e)}
	}

	switch d.Op.Name {
	case "BCLR", "BCLRI":
		write(rvir.Binary(rvir.OpAnd, rs1, rvir.Unary(rvir.OpNot, one)))
	case "BSET", "BSETI":
		write(rvir.Binary(rvir.OpOr, rs1, one))
	case "BINV", "BINVI":
		write(rvir.Binary(rvir.OpXor, rs1, one))
	case "BEXT", "BEXTI":
		write(rvir.Binary(rvir.OpAnd, rvir.Binary(rvir.OpSrl, rs1, bitIdx), rvir.Imm(1)))
	default:
		inst.Terminator = rvir.Trap(fmt.Sprintf("unhandled Zbs opcode %s", d.Op.Name))
	}
	return inst
}

func (zbsExt) Disasm(d Decoded) string {
	if d.Args.Shape == ArgR {
		return fmt.Sprintf("%s %s, %s, %s", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), regName(d.Args.Rs2))
	}
	return fmt.Sprintf("%s %s, %s, %d", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), d.Args.Imm)
}

var zbsOpInfo = map[string]OpInfo{
	"BCLR": {"bclr", ClassALU, 4}, "BCLRI": {"bclri", ClassALU, 4},
	"BEXT": {"bext", ClassALU, 4}, "BEXTI": {"bexti", ClassALU, 4},
	"BINV": {"binv", ClassALU, 4}, "BINVI": {"binvi", ClassALU, 4},
	"BSET": {"bset", ClassALU, 4}, "BSETI": {"bseti", ClassALU, 4},
}

func (zbsExt) OpInfo(op OpID) (OpInfo, bool) {
	info, ok := zbsOpInfo[op.Name]
	return info, ok
}
