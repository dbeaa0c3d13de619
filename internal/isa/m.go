package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

const extM = "M"

// mExt implements the integer multiply/divide extension (spec.md §4.2/§4.3).
// It shares opcodes OP and OP-32 with the base extension, distinguished by
// funct7 == 0000001, so Decode must be tried only when baseExt has already
// declined those opcodes.
type mExt struct{}

// NewM returns the M (multiply/divide) extension module.
func NewM() Extension { return mExt{} }

func (mExt) Name() string { return extM }

func (mExt) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	if size != 4 || funct7(raw) != 0x01 {
		return Decoded{}, false
	}
	op := opcode(raw)
	f3 := funct3(raw)
	rd, rs1, rs2 := rdOf(raw), rs1Of(raw), rs2Of(raw)
	args := Args{Shape: ArgR, Rd: rd, Rs1: rs1, Rs2: rs2}

	switch op {
	case opOp:
		name, ok := mName(f3)
		if !ok {
			return Decoded{}, false
		}
		return Decoded{Op: OpID{Ext: extM, Name: name}, PC: pc, Size: size, Raw: raw, Args: args}, true
	case op32:
		if width != xlen.W64 {
			return Decoded{}, false
		}
		name, ok := mwName(f3)
		if !ok {
			return Decoded{}, false
		}
		return Decoded{Op: OpID{Ext: extM, Name: name}, PC: pc, Size: size, Raw: raw, Args: args}, true
	}
	return Decoded{}, false
}

func mName(f3 uint32) (string, bool) {
	switch f3 {
	case 0b000:
		return "MUL", true
	case 0b001:
		return "MULH", true
	case 0b010:
		return "MULHSU", true
	case 0b011:
		return "MULHU", true
	case 0b100:
		return "DIV", true
	case 0b101:
		return "DIVU", true
	case 0b110:
		return "REM", true
	case 0b111:
		return "REMU", true
	}
	return "", false
}

func mwName(f3 uint32) (string, bool) {
	switch f3 {
	case 0b000:
		return "MULW", true
	case 0b100:
		return "DIVW", true
	case 0b101:
		return "DIVUW", true
	case 0b110:
		return "REMW", true
	case 0b111:
		return "REMUW", true
	}
	return "", false
}

func (mExt) Lift(d Decoded, width xlen.Width) rvir.Instruction {
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
	case "MUL":
		write(rvir.Binary(rvir.OpMul, rs1, rs2))
	case "MULH":
		write(rvir.Binary(rvir.OpMulH, rs1, rs2))
	case "MULHSU":
		write(rvir.Binary(rvir.OpMulHSU, rs1, rs2))
	case "MULHU":
		write(rvir.Binary(rvir.OpMulHU, rs1, rs2))
	case "DIV":
		write(rvir.Binary(rvir.OpDiv, rs1, rs2))
	case "DIVU":
		write(rvir.Binary(rvir.OpDivU, rs1, rs2))
	case "REM":
		write(rvir.Binary(rvir.OpRem, rs1, rs2))
	case "REMU":
		write(rvir.Binary(rvir.OpRemU, rs1, rs2))
	case "MULW":
		write(rvir.BinaryWord(rvir.OpMul, rs1, rs2))
	case "DIVW":
		write(rvir.BinaryWord(rvir.OpDiv, rs1, rs2))
	case "DIVUW":
		write(rvir.BinaryWord(rvir.OpDivU, rs1, rs2))
	case "REMW":
		write(rvir.BinaryWord(rvir.OpRem, rs1, rs2))
	case "REMUW":
		write(rvir.BinaryWord(rvir.OpRemU, rs1, rs2))
	default:
		inst.Terminator = rvir.Trap(fmt.Sprintf("unhandled M opcode %s", d.Op.Name))
	}
	return inst
}

func (mExt) Disasm(d Decoded) string {
	return fmt.Sprintf("%s %s, %s, %s", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), regName(d.Args.Rs2))
}

var mOpInfo = map[string]OpInfo{
	"MUL": {"mul", ClassALU, 4}, "MULH": {"mulh", ClassALU, 4},
	"MULHSU": {"mulhsu", ClassALU, 4}, "MULHU": {"mulhu", ClassALU, 4},
	"DIV": {"div", ClassALU, 4}, "DIVU": {"divu", ClassALU, 4},
	"REM": {"rem", ClassALU, 4}, "REMU": {"remu", ClassALU, 4},
	"MULW": {"mulw", ClassALU, 4}, "DIVW": {"divw", ClassALU, 4},
	"DIVUW": {"divuw", ClassALU, 4}, "REMW": {"remw", ClassALU, 4}, "REMUW": {"remuw", ClassALU, 4},
}

func (mExt) OpInfo(op OpID) (OpInfo, bool) {
	info, ok := mOpInfo[op.Name]
	return info, ok
}
