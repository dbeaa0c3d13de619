package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

const (
	opLoad    = 0x03
	opMiscMem = 0x0F
	opImm     = 0x13
	opAuipc   = 0x17
	opImm32   = 0x1B
	opStore   = 0x23
	opAmo     = 0x2F
	opOp      = 0x33
	opLui     = 0x37
	op32      = 0x3B
	opBranch  = 0x63
	opJalr    = 0x67
	opJal     = 0x6F
	opSystem  = 0x73
)

const extBase = "I"

// baseExt implements RV32I/RV64I: the integer computational, control
// flow, and memory instructions (spec.md §4.2, "base I").
type baseExt struct{}

// NewBase returns the base-I extension module.
func NewBase() Extension { return baseExt{} }

func (baseExt) Name() string { return extBase }

func mk(name string, shape ArgShape, pc uint64, size uint8, raw uint32, a Args) Decoded {
	a.Shape = shape
	return Decoded{Op: OpID{Ext: extBase, Name: name}, PC: pc, Size: size, Raw: raw, Args: a}
}

func (baseExt) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	if size != 4 {
		return Decoded{}, false
	}
	op := opcode(raw)
	f3 := funct3(raw)
	f7 := funct7(raw)

	switch op {
	case opLui:
		return mk("LUI", ArgU, pc, size, raw, Args{Rd: rdOf(raw), Imm: immU(raw)}), true
	case opAuipc:
		return mk("AUIPC", ArgU, pc, size, raw, Args{Rd: rdOf(raw), Imm: immU(raw)}), true
	case opJal:
		return mk("JAL", ArgJ, pc, size, raw, Args{Rd: rdOf(raw), Imm: immJ(raw)}), true
	case opJalr:
		if f3 != 0 {
			return Decoded{}, false
		}
		return mk("JALR", ArgI, pc, size, raw, Args{Rd: rdOf(raw), Rs1: rs1Of(raw), Imm: immI(raw)}), true
	case opBranch:
		name, ok := branchName(f3)
		if !ok {
			return Decoded{}, false
		}
		return mk(name, ArgB, pc, size, raw, Args{Rs1: rs1Of(raw), Rs2: rs2Of(raw), Imm: immB(raw)}), true
	case opLoad:
		name, ok := loadName(f3, width)
		if !ok {
			return Decoded{}, false
		}
		return mk(name, ArgI, pc, size, raw, Args{Rd: rdOf(raw), Rs1: rs1Of(raw), Imm: immI(raw)}), true
	case opStore:
		name, ok := storeName(f3, width)
		if !ok {
			return Decoded{}, false
		}
		return mk(name, ArgS, pc, size, raw, Args{Rs1: rs1Of(raw), Rs2: rs2Of(raw), Imm: immS(raw)}), true
	case opImm:
		return decodeOpImm(raw, pc, size, width)
	case opImm32:
		if width != xlen.W64 {
			return Decoded{}, false
		}
		return decodeOpImm32(raw, pc, size)
	case opOp:
		if f7 == 0x01 {
			return Decoded{}, false // M extension owns this funct7
		}
		return decodeOp(raw, pc, size)
	case op32:
		if width != xlen.W64 || f7 == 0x01 {
			return Decoded{}, false
		}
		return decodeOp32(raw, pc, size)
	case opMiscMem:
		if f3 == 0 {
			return mk("FENCE", ArgNone, pc, size, raw, Args{}), true
		}
		if f3 == 1 {
			return mk("FENCE.I", ArgNone, pc, size, raw, Args{}), true
		}
		return Decoded{}, false
	case opSystem:
		if f3 != 0 {
			return Decoded{}, false // Zicsr owns CSR ops
		}
		imm := uint32(raw) >> 20
		if imm == 0 {
			return mk("ECALL", ArgNone, pc, size, raw, Args{}), true
		}
		if imm == 1 {
			return mk("EBREAK", ArgNone, pc, size, raw, Args{}), true
		}
		return Decoded{}, false
	}
	return Decoded{}, false
}

func branchName(f3 uint32) (string, bool) {
	switch f3 {
	case 0b000:
		return "BEQ", true
	case 0b001:
		return "BNE", true
	case 0b100:
		return "BLT", true
	case 0b101:
		return "BGE", true
	case 0b110:
		return "BLTU", true
	case 0b111:
		return "BGEU", true
	}
	return "", false
}

func loadName(f3 uint32, width xlen.Width) (string, bool) {
	switch f3 {
	case 0b000:
		return "LB", true
	case 0b001:
		return "LH", true
	case 0b010:
		return "LW", true
	case 0b011:
		if width != xlen.W64 {
			return "", false
		}
		return "LD", true
	case 0b100:
		return "LBU", true
	case 0b101:
		return "LHU", true
	case 0b110:
		if width != xlen.W64 {
			return "", false
		}
		return "LWU", true
	}
	return "", false
}

func storeName(f3 uint32, width xlen.Width) (string, bool) {
	switch f3 {
	case 0b000:
		return "SB", true
	case 0b001:
		return "SH", true
	case 0b010:
		return "SW", true
	case 0b011:
		if width != xlen.W64 {
			return "", false
		}
		return "SD", true
	}
	return "", false
}

// decodeShiftImm extracts the shift amount and arithmetic bit from an
// OP-IMM-shaped instruction. shamtBits is 5 for *W variants (always
// 32-bit shifts) and for RV32, 6 for RV64 non-W shifts.
func decodeShiftImm(raw uint32, shamtBits int) (shamt uint8, arith bool, ok bool) {
	imm12 := uint32(raw>>20) & 0xfff
	mask := uint32(1<<uint(shamtBits)) - 1
	shamt = uint8(imm12 & mask)
	top := imm12 >> uint(shamtBits)
	arithPattern := uint32(0x20)
	if shamtBits == 6 {
		arithPattern = 0x10
	}
	if top == 0 {
		return shamt, false, true
	}
	if top == arithPattern {
		return shamt, true, true
	}
	return 0, false, false
}

func decodeOpImm(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	f3 := funct3(raw)
	rd, rs1 := rdOf(raw), rs1Of(raw)
	switch f3 {
	case 0b000:
		return mk("ADDI", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: immI(raw)}), true
	case 0b010:
		return mk("SLTI", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: immI(raw)}), true
	case 0b011:
		return mk("SLTIU", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: immI(raw)}), true
	case 0b100:
		return mk("XORI", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: immI(raw)}), true
	case 0b110:
		return mk("ORI", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: immI(raw)}), true
	case 0b111:
		return mk("ANDI", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: immI(raw)}), true
	case 0b001:
		shamtBits := 5
		if width == xlen.W64 {
			shamtBits = 6
		}
		shamt, arith, ok := decodeShiftImm(raw, shamtBits)
		if !ok || arith {
			return Decoded{}, false
		}
		return mk("SLLI", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
	case 0b101:
		shamtBits := 5
		if width == xlen.W64 {
			shamtBits = 6
		}
		shamt, arith, ok := decodeShiftImm(raw, shamtBits)
		if !ok {
			return Decoded{}, false
		}
		if arith {
			return mk("SRAI", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
		}
		return mk("SRLI", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
	}
	return Decoded{}, false
}

func decodeOpImm32(raw uint32, pc uint64, size uint8) (Decoded, bool) {
	f3 := funct3(raw)
	rd, rs1 := rdOf(raw), rs1Of(raw)
	switch f3 {
	case 0b000:
		return mk("ADDIW", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: immI(raw)}), true
	case 0b001:
		shamt, arith, ok := decodeShiftImm(raw, 5)
		if !ok || arith {
			return Decoded{}, false
		}
		return mk("SLLIW", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
	case 0b101:
		shamt, arith, ok := decodeShiftImm(raw, 5)
		if !ok {
			return Decoded{}, false
		}
		if arith {
			return mk("SRAIW", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
		}
		return mk("SRLIW", ArgI, pc, size, raw, Args{Rd: rd, Rs1: rs1, Imm: int64(shamt)}), true
	}
	return Decoded{}, false
}

func decodeOp(raw uint32, pc uint64, size uint8) (Decoded, bool) {
	f3, f7 := funct3(raw), funct7(raw)
	rd, rs1, rs2 := rdOf(raw), rs1Of(raw), rs2Of(raw)
	args := Args{Rd: rd, Rs1: rs1, Rs2: rs2}
	switch {
	case f3 == 0b000 && f7 == 0x00:
		return mk("ADD", ArgR, pc, size, raw, args), true
	case f3 == 0b000 && f7 == 0x20:
		return mk("SUB", ArgR, pc, size, raw, args), true
	case f3 == 0b001 && f7 == 0x00:
		return mk("SLL", ArgR, pc, size, raw, args), true
	case f3 == 0b010 && f7 == 0x00:
		return mk("SLT", ArgR, pc, size, raw, args), true
	case f3 == 0b011 && f7 == 0x00:
		return mk("SLTU", ArgR, pc, size, raw, args), true
	case f3 == 0b100 && f7 == 0x00:
		return mk("XOR", ArgR, pc, size, raw, args), true
	case f3 == 0b101 && f7 == 0x00:
		return mk("SRL", ArgR, pc, size, raw, args), true
	case f3 == 0b101 && f7 == 0x20:
		return mk("SRA", ArgR, pc, size, raw, args), true
	case f3 == 0b110 && f7 == 0x00:
		return mk("OR", ArgR, pc, size, raw, args), true
	case f3 == 0b111 && f7 == 0x00:
		return mk("AND", ArgR, pc, size, raw, args), true
	}
	return Decoded{}, false
}

func decodeOp32(raw uint32, pc uint64, size uint8) (Decoded, bool) {
	f3, f7 := funct3(raw), funct7(raw)
	rd, rs1, rs2 := rdOf(raw), rs1Of(raw), rs2Of(raw)
	args := Args{Rd: rd, Rs1: rs1, Rs2: rs2}
	switch {
	case f3 == 0b000 && f7 == 0x00:
		return mk("ADDW", ArgR, pc, size, raw, args), true
	case f3 == 0b000 && f7 == 0x20:
		return mk("SUBW", ArgR, pc, size, raw, args), true
	case f3 == 0b001 && f7 == 0x00:
		return mk("SLLW", ArgR, pc, size, raw, args), true
	case f3 == 0b101 && f7 == 0x00:
		return mk("SRLW", ArgR, pc, size, raw, args), true
	case f3 == 0b101 && f7 == 0x20:
		return mk("SRAW", ArgR, pc, size, raw, args), true
	}
	return Decoded{}, false
}

// Lift lowers a decoded base-I instruction to IR (spec.md §4.3).
func (baseExt) Lift(d Decoded, width xlen.Width) rvir.Instruction {
	next := d.PC + uint64(d.Size)
	inst := rvir.Instruction{PC: d.PC, Size: d.Size, Raw: d.Raw}

	writeRd := func(e *rvir.Expr) []rvir.Stmt {
		if d.Args.Rd == 0 {
			return nil
		}
		return []rvir.Stmt{rvir.Write(rvir.RegTarget(d.Args.Rd), e)}
	}
	rs1 := rvir.Reg(d.Args.Rs1)
	rs2 := rvir.Reg(d.Args.Rs2)

	switch d.Op.Name {
	case "LUI":
		inst.Statements = writeRd(rvir.ImmI(d.Args.Imm))
		inst.Terminator = rvir.Fall(next, true)
	case "AUIPC":
		inst.Statements = writeRd(rvir.Binary(rvir.OpAdd, rvir.PC(), rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "JAL":
		target := uint64(int64(d.PC) + d.Args.Imm)
		inst.Statements = writeRd(rvir.ImmI(int64(next)))
		inst.Terminator = rvir.Jump(target)
	case "JALR":
		addr := rvir.Binary(rvir.OpAnd, rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm)), rvir.ImmI(-2))
		inst.Statements = writeRd(rvir.ImmI(int64(next)))
		inst.Terminator = rvir.JumpDyn(addr)
	case "BEQ", "BNE", "BLT", "BGE", "BLTU", "BGEU":
		target := uint64(int64(d.PC) + d.Args.Imm)
		var bop rvir.BinaryOp
		switch d.Op.Name {
		case "BEQ":
			bop = rvir.OpEq
		case "BNE":
			bop = rvir.OpNe
		case "BLT":
			bop = rvir.OpLt
		case "BGE":
			bop = rvir.OpGe
		case "BLTU":
			bop = rvir.OpLtU
		case "BGEU":
			bop = rvir.OpGeU
		}
		cond := rvir.Binary(bop, rs1, rs2)
		inst.Terminator = rvir.Branch(cond, target, next, true)
	case "LB", "LH", "LW", "LD", "LBU", "LHU", "LWU":
		w, signed := loadWidth(d.Op.Name)
		addr := rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm))
		inst.Statements = writeRd(rvir.Mem(addr, 0, w, signed))
		inst.Terminator = rvir.Fall(next, true)
	case "SB", "SH", "SW", "SD":
		w := storeWidth(d.Op.Name)
		addr := rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm))
		inst.Statements = []rvir.Stmt{rvir.Write(rvir.MemTarget(addr, 0, w), rs2)}
		inst.Terminator = rvir.Fall(next, true)
	case "ADDI":
		inst.Statements = writeRd(rvir.Binary(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "SLTI":
		inst.Statements = writeRd(boolExpr(rvir.Binary(rvir.OpLt, rs1, rvir.ImmI(d.Args.Imm))))
		inst.Terminator = rvir.Fall(next, true)
	case "SLTIU":
		inst.Statements = writeRd(boolExpr(rvir.Binary(rvir.OpLtU, rs1, rvir.ImmI(d.Args.Imm))))
		inst.Terminator = rvir.Fall(next, true)
	case "XORI":
		inst.Statements = writeRd(rvir.Binary(rvir.OpXor, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "ORI":
		inst.Statements = writeRd(rvir.Binary(rvir.OpOr, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "ANDI":
		inst.Statements = writeRd(rvir.Binary(rvir.OpAnd, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "SLLI":
		inst.Statements = writeRd(rvir.Binary(rvir.OpSll, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "SRLI":
		inst.Statements = writeRd(rvir.Binary(rvir.OpSrl, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "SRAI":
		inst.Statements = writeRd(rvir.Binary(rvir.OpSra, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "ADD":
		inst.Statements = writeRd(rvir.Binary(rvir.OpAdd, rs1, rs2))
		inst.Terminator = rvir.Fall(next, true)
	case "SUB":
		inst.Statements = writeRd(rvir.Binary(rvir.OpSub, rs1, rs2))
		inst.Terminator = rvir.Fall(next, true)
	case "SLL":
		inst.Statements = writeRd(rvir.Binary(rvir.OpSll, rs1, maskShift(rs2, width)))
		inst.Terminator = rvir.Fall(next, true)
	case "SLT":
		inst.Statements = writeRd(boolExpr(rvir.Binary(rvir.OpLt, rs1, rs2)))
		inst.Terminator = rvir.Fall(next, true)
	case "SLTU":
		inst.Statements = writeRd(boolExpr(rvir.Binary(rvir.OpLtU, rs1, rs2)))
		inst.Terminator = rvir.Fall(next, true)
	case "XOR":
		inst.Statements = writeRd(rvir.Binary(rvir.OpXor, rs1, rs2))
		inst.Terminator = rvir.Fall(next, true)
	case "SRL":
		inst.Statements = writeRd(rvir.Binary(rvir.OpSrl, rs1, maskShift(rs2, width)))
		inst.Terminator = rvir.Fall(next, true)
	case "SRA":
		inst.Statements = writeRd(rvir.Binary(rvir.OpSra, rs1, maskShift(rs2, width)))
		inst.Terminator = rvir.Fall(next, true)
	case "OR":
		inst.Statements = writeRd(rvir.Binary(rvir.OpOr, rs1, rs2))
		inst.Terminator = rvir.Fall(next, true)
	case "AND":
		inst.Statements = writeRd(rvir.Binary(rvir.OpAnd, rs1, rs2))
		inst.Terminator = rvir.Fall(next, true)
	case "ADDIW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpAdd, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "SLLIW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpSll, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "SRLIW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpSrl, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "SRAIW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpSra, rs1, rvir.ImmI(d.Args.Imm)))
		inst.Terminator = rvir.Fall(next, true)
	case "ADDW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpAdd, rs1, rs2))
		inst.Terminator = rvir.Fall(next, true)
	case "SUBW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpSub, rs1, rs2))
		inst.Terminator = rvir.Fall(next, true)
	case "SLLW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpSll, rs1, rvir.Binary(rvir.OpAnd, rs2, rvir.ImmI(0x1f))))
		inst.Terminator = rvir.Fall(next, true)
	case "SRLW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpSrl, rs1, rvir.Binary(rvir.OpAnd, rs2, rvir.ImmI(0x1f))))
		inst.Terminator = rvir.Fall(next, true)
	case "SRAW":
		inst.Statements = writeRd(rvir.BinaryWord(rvir.OpSra, rs1, rvir.Binary(rvir.OpAnd, rs2, rvir.ImmI(0x1f))))
		inst.Terminator = rvir.Fall(next, true)
	case "FENCE", "FENCE.I":
		inst.Terminator = rvir.Fall(next, true)
	case "ECALL":
		inst.Statements = []rvir.Stmt{rvir.ExternCall("ecall")}
		inst.Terminator = rvir.Fall(next, true)
	case "EBREAK":
		inst.Terminator = rvir.Trap("ebreak")
	default:
		inst.Terminator = rvir.Trap(fmt.Sprintf("unhandled base opcode %s", d.Op.Name))
	}
	return inst
}

// maskShift masks a shift-amount register read to log2(XLEN) bits, per
// spec.md §4.3 ("Shift amounts are masked ... in IR; emitters need not
// re-mask").
func maskShift(e *rvir.Expr, width xlen.Width) *rvir.Expr {
	bits := uint64(0x1f)
	if width == xlen.W64 {
		bits = 0x3f
	}
	return rvir.Binary(rvir.OpAnd, e, rvir.Imm(bits))
}

func boolExpr(cond *rvir.Expr) *rvir.Expr {
	return rvir.Select(cond, rvir.Imm(1), rvir.Imm(0))
}

func loadWidth(name string) (rvir.MemWidth, bool) {
	switch name {
	case "LB":
		return rvir.Width8, true
	case "LH":
		return rvir.Width16, true
	case "LW":
		return rvir.Width32, true
	case "LD":
		return rvir.Width64, true
	case "LBU":
		return rvir.Width8, false
	case "LHU":
		return rvir.Width16, false
	case "LWU":
		return rvir.Width32, false
	}
	return rvir.Width32, false
}

func storeWidth(name string) rvir.MemWidth {
	switch name {
	case "SB":
		return rvir.Width8
	case "SH":
		return rvir.Width16
	case "SW":
		return rvir.Width32
	case "SD":
		return rvir.Width64
	}
	return rvir.Width32
}

func (baseExt) Disasm(d Decoded) string {
	switch d.Args.Shape {
	case ArgR:
		return fmt.Sprintf("%s %s, %s, %s", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), regName(d.Args.Rs2))
	case ArgI:
		return fmt.Sprintf("%s %s, %s, %d", d.Op.Name, regName(d.Args.Rd), regName(d.Args.Rs1), d.Args.Imm)
	case ArgS:
		return fmt.Sprintf("%s %s, %d(%s)", d.Op.Name, regName(d.Args.Rs2), d.Args.Imm, regName(d.Args.Rs1))
	case ArgB:
		return fmt.Sprintf("%s %s, %s, %d", d.Op.Name, regName(d.Args.Rs1), regName(d.Args.Rs2), d.Args.Imm)
	case ArgU:
		return fmt.Sprintf("%s %s, %#x", d.Op.Name, regName(d.Args.Rd), uint64(d.Args.Imm))
	case ArgJ:
		return fmt.Sprintf("%s %s, %d", d.Op.Name, regName(d.Args.Rd), d.Args.Imm)
	}
	return d.Op.Name
}

var baseOpInfo = map[string]OpInfo{
	"LUI": {"lui", ClassALU, 4}, "AUIPC": {"auipc", ClassALU, 4},
	"JAL": {"jal", ClassBranch, 4}, "JALR": {"jalr", ClassBranch, 4},
	"BEQ": {"beq", ClassBranch, 4}, "BNE": {"bne", ClassBranch, 4},
	"BLT": {"blt", ClassBranch, 4}, "BGE": {"bge", ClassBranch, 4},
	"BLTU": {"bltu", ClassBranch, 4}, "BGEU": {"bgeu", ClassBranch, 4},
	"LB": {"lb", ClassLoad, 4}, "LH": {"lh", ClassLoad, 4}, "LW": {"lw", ClassLoad, 4},
	"LD": {"ld", ClassLoad, 4}, "LBU": {"lbu", ClassLoad, 4}, "LHU": {"lhu", ClassLoad, 4}, "LWU": {"lwu", ClassLoad, 4},
	"SB": {"sb", ClassStore, 4}, "SH": {"sh", ClassStore, 4}, "SW": {"sw", ClassStore, 4}, "SD": {"sd", ClassStore, 4},
	"ADDI": {"addi", ClassALU, 4}, "SLTI": {"slti", ClassALU, 4}, "SLTIU": {"sltiu", ClassALU, 4},
	"XORI": {"xori", ClassALU, 4}, "ORI": {"ori", ClassALU, 4}, "ANDI": {"andi", ClassALU, 4},
	"SLLI": {"slli", ClassALU, 4}, "SRLI": {"srli", ClassALU, 4}, "SRAI": {"srai", ClassALU, 4},
	"ADD": {"add", ClassALU, 4}, "SUB": {"sub", ClassALU, 4}, "SLL": {"sll", ClassALU, 4},
	"SLT": {"slt", ClassALU, 4}, "SLTU": {"sltu", ClassALU, 4}, "XOR": {"xor", ClassALU, 4},
	"SRL": {"srl", ClassALU, 4}, "SRA": {"sra", ClassALU, 4}, "OR": {"or", ClassALU, 4}, "AND": {"and", ClassALU, 4},
	"ADDIW": {"addiw", ClassALU, 4}, "SLLIW": {"slliw", ClassALU, 4}, "SRLIW": {"srliw", ClassALU, 4}, "SRAIW": {"sraiw", ClassALU, 4},
	"ADDW": {"addw", ClassALU, 4}, "SUBW": {"subw", ClassALU, 4}, "SLLW": {"sllw", ClassALU, 4}, "SRLW": {"srlw", ClassALU, 4}, "SRAW": {"sraw", ClassALU, 4},
	"FENCE": {"fence", ClassSystem, 4}, "FENCE.I": {"fence.i", ClassSystem, 4},
	"ECALL": {"ecall", ClassSystem, 4}, "EBREAK": {"ebreak", ClassSystem, 4},
}

func (baseExt) OpInfo(op OpID) (OpInfo, bool) {
	info, ok := baseOpInfo[op.Name]
	return info, ok
}
