package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

const extA = "A"

// aExt implements the atomic-memory extension: load-reserved/store-
// conditional and the AMO read-modify-write ops (spec.md §4.2/§4.3). The
// recompiler targets single-threaded guest binaries, so atomicity reduces
// to "one guest instruction runs to completion before the next" — LR/SC
// still track the reservation address/valid fields in the state record so
// guest code that spins on SC failure behaves correctly.
type aExt struct{}

// NewA returns the A (atomic) extension module.
func NewA() Extension { return aExt{} }

func (aExt) Name() string { return extA }

func (aExt) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	if size != 4 || opcode(raw) != opAmo {
		return Decoded{}, false
	}
	f3 := funct3(raw)
	var w rvir.MemWidth
	switch f3 {
	case 0b010:
		w = rvir.Width32
	case 0b011:
		if width != xlen.W64 {
			return Decoded{}, false
		}
		w = rvir.Width64
	default:
		return Decoded{}, false
	}
	f5 := funct5(raw)
	name, ok := amoName(f5)
	if !ok {
		return Decoded{}, false
	}
	aq := (raw>>26)&1 != 0
	rl := (raw>>25)&1 != 0
	args := Args{
		Shape: ArgAMO, Rd: rdOf(raw), Rs1: rs1Of(raw), Rs2: rs2Of(raw),
		Funct5: uint8(f5), Aq: aq, Rl: rl,
		Imm: int64(w),
	}
	return Decoded{Op: OpID{Ext: extA, Name: name}, PC: pc, Size: 4, Raw: raw, Args: args}, true
}

func amoName(f5 uint32) (string, bool) {
	switch f5 {
	case 0b00010:
		return "LR", true
	case 0b00011:
		return "SC", true
	case 0b00001:
		return "AMOSWAP", true
	case 0b00000:
		return "AMOADD", true
	case 0b00100:
		return "AMOXOR", true
	case 0b01100:
		return "AMOAND", true
	case 0b01000:
		return "AMOOR", true
	case 0b10000:
		return "AMOMIN", true
	case 0b10100:
		return "AMOMAX", true
	case 0b11000:
		return "AMOMINU", true
	case 0b11100:
		return "AMOMAXU", true
	}
	return "", false
}

func (aExt) Lift(d Decoded, width xlen.Width) rvir.Instruction {
	next := d.PC + uint64(d.Size)
	inst := rvir.Instruction{PC: d.PC, Size: d.Size, Raw: d.Raw, Terminator: rvir.Fall(next, true)}
	w := rvir.MemWidth(d.Args.Imm)
	addr := rvir.Reg(d.Args.Rs1)
	rs2 := rvir.Reg(d.Args.Rs2)
	rd := d.Args.Rd

	writeRd := func(e *rvir.Expr) rvir.Stmt { return rvir.Write(rvir.RegTarget(rd), e) }

	switch d.Op.Name {
	case "LR":
		stmts := []rvir.Stmt{
			rvir.Write(rvir.ReservationAddrTarget(), addr),
			rvir.Write(rvir.ReservationValidTarget(), rvir.Imm(1)),
		}
		if rd != 0 {
			stmts = append(stmts, writeRd(rvir.Mem(addr, 0, w, true)))
		}
		inst.Statements = stmts
	case "SC":
		ok := scSuccessCond(addr)
		succeed := []rvir.Stmt{rvir.Write(rvir.MemTarget(addr, 0, w), rs2)}
		var fail []rvir.Stmt
		if rd != 0 {
			succeed = append(succeed, writeRd(rvir.Imm(0)))
			fail = append(fail, writeRd(rvir.Imm(1)))
		}
		inst.Statements = []rvir.Stmt{
			rvir.If(ok, succeed, fail),
			rvir.Write(rvir.ReservationValidTarget(), rvir.Imm(0)),
		}
	case "AMOSWAP", "AMOADD", "AMOXOR", "AMOAND", "AMOOR", "AMOMIN", "AMOMAX", "AMOMINU", "AMOMAXU":
		old := rvir.Temp(0)
		stmts := []rvir.Stmt{rvir.Write(rvir.TempTarget(0), rvir.Mem(addr, 0, w, true))}
		if rd != 0 {
			stmts = append(stmts, writeRd(old))
		}
		var newVal *rvir.Expr
		switch d.Op.Name {
		case "AMOSWAP":
			newVal = rs2
		case "AMOADD":
			newVal = rvir.Binary(rvir.OpAdd, old, rs2)
		case "AMOXOR":
			newVal = rvir.Binary(rvir.OpXor, old, rs2)
		case "AMOAND":
			newVal = rvir.Binary(rvir.OpAnd, old, rs2)
		case "AMOOR":
			newVal = rvir.Binary(rvir.OpOr, old, rs2)
		case "AMOMIN":
			newVal = rvir.Binary(rvir.OpMin, old, rs2)
		case "AMOMAX":
			newVal = rvir.Binary(rvir.OpMax, old, rs2)
		case "AMOMINU":
			newVal = rvir.Binary(rvir.OpMinU, old, rs2)
		case "AMOMAXU":
			newVal = rvir.Binary(rvir.OpMaxU, old, rs2)
		}
		stmts = append(stmts, rvir.Write(rvir.MemTarget(addr, 0, w), newVal))
		inst.Statements = stmts
	default:
		inst.Terminator = rvir.Trap(fmt.Sprintf("unhandled A opcode %s", d.Op.Name))
	}
	return inst
}

// scSuccessCond builds the SC.W/SC.D guard: the reservation is valid and
// was taken on this exact address.
func scSuccessCond(addr *rvir.Expr) *rvir.Expr {
	return rvir.Binary(rvir.OpAnd,
		rvir.Binary(rvir.OpNe, rvir.CSR(rvir.PseudoCSRReservationValid), rvir.Imm(0)),
		rvir.Binary(rvir.OpEq, rvir.CSR(rvir.PseudoCSRReservationAddr), addr))
}

func (aExt) Disasm(d Decoded) string {
	suffix := ""
	if d.Args.Aq {
		suffix += ".aq"
	}
	if d.Args.Rl {
		suffix += ".rl"
	}
	if d.Op.Name == "LR" {
		return fmt.Sprintf("%s%s %s, (%s)", d.Op.Name, suffix, regName(d.Args.Rd), regName(d.Args.Rs1))
	}
	return fmt.Sprintf("%s%s %s, %s, (%s)", d.Op.Name, suffix, regName(d.Args.Rd), regName(d.Args.Rs2), regName(d.Args.Rs1))
}

var aOpInfo = map[string]OpInfo{
	"LR": {"lr", ClassAtomic, 4}, "SC": {"sc", ClassAtomic, 4},
	"AMOSWAP": {"amoswap", ClassAtomic, 4}, "AMOADD": {"amoadd", ClassAtomic, 4},
	"AMOXOR": {"amoxor", ClassAtomic, 4}, "AMOAND": {"amoand", ClassAtomic, 4},
	"AMOOR": {"amoor", ClassAtomic, 4}, "AMOMIN": {"amomin", ClassAtomic, 4},
	"AMOMAX": {"amomax", ClassAtomic, 4}, "AMOMINU": {"amominu", ClassAtomic, 4},
	"AMOMAXU": {"amomaxu", ClassAtomic, 4},
}

func (aExt) OpInfo(op OpID) (OpInfo, bool) {
	info, ok := aOpInfo[op.Name]
	return info, ok
}
