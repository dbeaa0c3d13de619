package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

const extZba = "Zba"

// zbaExt implements the address-generation extension: shift-and-add and
// the RV64 .uw (zero-extend-then-operate) forms (spec.md §4.2).
type zbaExt struct{}

// NewZba returns the Zba extension module.
func NewZba() Extension { return zbaExt{} }

func (zbaExt) Name() string { return extZba }

func (zbaExt) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	if size != 4 {
		return Decoded{}, false
	}
	op, f3, f7 := opcode(raw), funct3(raw), funct7(raw)
	rd, rs1, rs2 := rdOf(raw), rs1Of(raw), rs2Of(raw)

	if op == opOp && f7 == 0x10 {
		switch f3 {
		case 0b010:
			return d2(extZba, "SH1ADD", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case 0b100:
			return d2(extZba, "SH2ADD", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case 0b110:
			return d2(extZba, "SH3ADD", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		}
		return Decoded{}, false
	}
	if op == op32 && width == xlen.W64 {
		switch {
		case f7 == 0x04 && f3 == 0b000:
			return d2(extZba, "ADD.UW", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x10 && f3 == 0b010:
			return d2(extZba, "SH1ADD.UW", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x10 && f3 == 0b100:
			return d2(extZba, "SH2ADD.UW", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		case f7 == 0x10 && f3 == 0b110:
			return d2(extZba, "SH3ADD.UW", pc, raw, ArgR, Args{Rd: rd, Rs1: rs1, Rs2: rs2}), true
		}
		return Decoded{}, false
	}
	if op == opImm32 && width == xlen.W64 && f3 == 0b001 {
		funct6 := (raw >> 26) & 0x3f
		if funct6 == 0b000010 {
			shamt := uint8((raw >> 20) & 0x3f)
			return d2(extZba, "SLLI.UW", pc, raw, ArgI, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
		}
	}
	return Decoded{}, false
}

func (zbaExt) Lift(d Decoded, width xlen.Width) rvir.Instruction {
	next := d.PC + uint64(d.Size)
	inst := rvir.Instruction{PC: d.PC, Size: d.Size, Raw: d.Raw, Terminator: rvir.Fall(next, true)}
	rs1, rs2 := rvir.Reg(d.Args.Rs1), rvir.Reg(d.Args.Rs2)
	zext32 := func(e *rvir.Expr) *rvir.Expr { return rvir.Binary(rvir.OpAnd, e, rvir.Imm(0xffffffff)) }

	write := func(e *rvir.Expr) {
		if d.Args.Rd == 0 {
			return
		}
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.RegTarget(d.Args.Rd), e)}
	}

	switch d.Op.Name {
	case "SH1ADD":
		write(rvir.ShAdd(1, rs1, rs2))
	case "SH2ADD":
		write(rvir.ShAdd(2, rs1, rs2))
	case "SH3ADD":
		write(rvir.ShAdd(3, rs1, rs2))
	case "ADD.UW":
		write(rvir.Binary(rvir.OpAdd, zext32(rs1), rs2))
	case "SH1ADD.UW":
		write(rvir.ShAdd(1, zext32(rs1), rs2))
	case "SH2ADD.UW":
		write(rvir.ShAdd(2, zext32(rs1), rs2))
	case "SH3ADD.UW":
		write(rvir.ShAdd(3, zext32(rs1), rs2))
	case "SLLI.UW":
		write(rvir.Binary(rvir.OpSll, zext32(rs1), rvir.ImmI(d.Args.Imm)))
	default:
		inst.Terminator = rvir.Trap(fmt.Sprintf("unhandled Zba opcode %s", d.Op.Name))
	}
	return inst
}

func (zbaExt) Disasm(d Decoded) string {
	if d.Args.Shape == ArgR {
		return fmt.Sprintf("%s %s, %s, %s", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), regName(d.Args.Rs2))
	}
	return fmt.Sprintf("%s %s, %s, %d", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), d.Args.Imm)
}

var zbaOpInfo = map[string]OpInfo{
	"SH1ADD": {"sh1add", ClassALU, 4}, "SH2ADD": {"sh2add", ClassALU, 4}, "SH3ADD": {"sh3add", ClassALU, 4},
	"ADD.UW": {"add.uw", ClassALU, 4}, "SH1ADD.UW": {"sh1add.uw", ClassALU, 4},
	"SH2ADD.UW": {"sh2add.uw", ClassALU, 4}, "SH3ADD.UW": {"sh3add.uw", ClassALU, 4},
	"SLLI.UW": {"slli.uw", ClassALU, 4},
}

func (zbaExt) OpInfo(op OpID) (OpInfo, bool) {
	info, ok := zbaOpInfo[op.Name]
	return info, ok
}
