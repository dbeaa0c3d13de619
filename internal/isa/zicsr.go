package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

const extZicsr = "Zicsr"

// zicsrExt implements the control-and-status-register instructions: read-
// modify-write and read-modify-clear/set against a CSR, in register and
// 5-bit-immediate source forms (spec.md §4.2). rs1 doubles as the 5-bit
// immediate in the *I forms, per the base encoding.
type zicsrExt struct{}

// NewZicsr returns the Zicsr extension module.
func NewZicsr() Extension { return zicsrExt{} }

func (zicsrExt) Name() string { return extZicsr }

func (zicsrExt) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	if size != 4 || opcode(raw) != opSystem {
		return Decoded{}, false
	}
	f3 := funct3(raw)
	name, ok := csrName(f3)
	if !ok {
		return Decoded{}, false
	}
	args := Args{Shape: ArgCSR, Rd: rdOf(raw), Rs1: rs1Of(raw), CSRNum: csrOf(raw)}
	return Decoded{Op: OpID{Ext: extZicsr, Name: name}, PC: pc, Size: size, Raw: raw, Args: args}, true
}

func csrName(f3 uint32) (string, bool) {
	switch f3 {
	case 0b001:
		return "CSRRW", true
	case 0b010:
		return "CSRRS", true
	case 0b011:
		return "CSRRC", true
	case 0b101:
		return "CSRRWI", true
	case 0b110:
		return "CSRRSI", true
	case 0b111:
		return "CSRRCI", true
	}
	return "", false
}

func (zicsrExt) Lift(d Decoded, width xlen.Width) rvir.Instruction {
	next := d.PC + uint64(d.Size)
	inst := rvir.Instruction{PC: d.PC, Size: d.Size, Raw: d.Raw, Terminator: rvir.Fall(next, true)}

	csr := d.Args.CSRNum
	old := rvir.CSR(csr)
	var stmts []rvir.Stmt

	isImm := d.Op.Name == "CSRRWI" || d.Op.Name == "CSRRSI" || d.Op.Name == "CSRRCI"
	var src *rvir.Expr
	if isImm {
		src = rvir.Imm(uint64(d.Args.Rs1))
	} else {
		src = rvir.Reg(d.Args.Rs1)
	}

	if d.Args.Rd != 0 {
		stmts = append(stmts, rvir.Write(rvir.RegTarget(d.Args.Rd), old))
	}

	// rs1 == 0 (or uimm == 0) means "read-only": CSRRS/CSRRC must not
	// write back in that case, regardless of register vs. immediate form.
	skipWrite := d.Args.Rs1 == 0
	switch d.Op.Name {
	case "CSRRW", "CSRRWI":
		stmts = append(stmts, rvir.Write(rvir.CSRTarget(csr), src))
	case "CSRRS", "CSRRSI":
		if !skipWrite {
			stmts = append(stmts, rvir.Write(rvir.CSRTarget(csr), rvir.Binary(rvir.OpOr, old, src)))
		}
	case "CSRRC", "CSRRCI":
		if !skipWrite {
			stmts = append(stmts, rvir.Write(rvir.CSRTarget(csr), rvir.Binary(rvir.OpAnd, old, rvir.Unary(rvir.OpNot, src))))
		}
	default:
		inst.Terminator = rvir.Trap(fmt.Sprintf("unhandled Zicsr opcode %s", d.Op.Name))
		return inst
	}
	inst.Statements = stmts
	return inst
}

func (zicsrExt) Disasm(d Decoded) string {
	if d.Op.Name == "CSRRWI" || d.Op.Name == "CSRRSI" || d.Op.Name == "CSRRCI" {
		return fmt.Sprintf("%s %s, %#x, %d", d.Op.Name, regName(d.Args.Rd), d.Args.CSRNum, d.Args.Rs1)
	}
	return fmt.Sprintf("%s %s, %#x, %s", d.Op.Name, regName(d.Args.Rd), d.Args.CSRNum, regName(d.Args.Rs1))
}

var zicsrOpInfo = map[string]OpInfo{
	"CSRRW": {"csrrw", ClassSystem, 4}, "CSRRS": {"csrrs", ClassSystem, 4}, "CSRRC": {"csrrc", ClassSystem, 4},
	"CSRRWI": {"csrrwi", ClassSystem, 4}, "CSRRSI": {"csrrsi", ClassSystem, 4}, "CSRRCI": {"csrrci", ClassSystem, 4},
}

func (zicsrExt) OpInfo(op OpID) (OpInfo, bool) {
	info, ok := zicsrOpInfo[op.Name]
	return info, ok
}
