package cfganalysis

import (
	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
)

// transfer applies one decoded instruction's effect on the abstract
// register file. Only the small set of ops spec.md §4.4 names are modeled
// precisely (lui/auipc/addi/add/mv, plus constant reads through read-only
// memory); every other destination write clears to Unknown, and x0 is
// pinned to zero regardless.
func transfer(in RegisterState, d isa.Decoded, tab *itab.Table) RegisterState {
	out := in.clone()

	rd := d.Args.Rd
	write := func(v AbsValue) {
		if rd == 0 {
			return
		}
		out[rd] = v
	}
	clearRd := func() {
		if rd != 0 {
			out[rd] = unknownValue()
		}
	}

	switch d.Op.Name {
	case "LUI":
		write(constValue(uint64(d.Args.Imm)))
	case "C.LUI":
		write(constValue(uint64(d.Args.Imm)))
	case "AUIPC":
		write(constValue(d.PC + uint64(d.Args.Imm)))
	case "ADDI", "C.ADDI", "C.ADDI16SP", "C.ADDI4SPN":
		rs1 := d.Args.Rs1
		if rs1 == 0 {
			write(constValue(uint64(d.Args.Imm)))
			break
		}
		if v, ok := in[rs1].Single(); ok {
			write(constValue(v + uint64(d.Args.Imm)))
		} else {
			clearRd()
		}
	case "C.LI":
		write(constValue(uint64(d.Args.Imm)))
	case "ADD", "C.ADD":
		a, aok := in[d.Args.Rs1].Single()
		b, bok := in[d.Args.Rs2].Single()
		if aok && bok {
			write(constValue(a + b))
		} else {
			clearRd()
		}
	case "C.MV":
		if v, ok := in[d.Args.Rs2].Single(); ok {
			write(constValue(v))
		} else {
			clearRd()
		}
	case "LW", "C.LW", "LD", "C.LD", "C.LWSP", "C.LDSP":
		width := 4
		if d.Op.Name == "LD" || d.Op.Name == "C.LD" || d.Op.Name == "C.LDSP" {
			width = 8
		}
		base, ok := in[d.Args.Rs1].Single()
		if !ok {
			clearRd()
			break
		}
		addr := uint64(int64(base) + d.Args.Imm)
		v, ok := tab.ReadReadonly(addr, width)
		if !ok {
			clearRd()
			break
		}
		write(constValue(v))
	default:
		if d.Op.Name != "" && rd != 0 {
			clearRd()
		}
	}
	return out
}
