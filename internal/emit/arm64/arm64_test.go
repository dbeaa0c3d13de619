package arm64

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rvrecomp/rvrecomp/internal/blocktable"
	"github.com/rvrecomp/rvrecomp/internal/cfganalysis"
	"github.com/rvrecomp/rvrecomp/internal/emit/emitcommon"
	"github.com/rvrecomp/rvrecomp/internal/guestimage"
	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
	"github.com/rvrecomp/rvrecomp/internal/state"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

func encI(opcode, rd, f3, rs1 uint32, imm int64) uint32 {
	return (uint32(imm)&0xfff)<<20 | rs1<<15 | f3<<12 | rd<<7 | opcode
}

const opImm = 0x13
const opJalr = 0x67

func buildProgram() (*itab.Table, *blocktable.Table, *cfganalysis.Result) {
	var code []byte
	code = append(code, le32(encI(opImm, 1, 0, 0, 5))...)
	code = append(code, le32(encI(opImm, 2, 0, 1, 3))...)
	code = append(code, le32(encI(opJalr, 0, 0, 1, 0))...)

	img := &guestimage.Image{
		Width:      xlen.W64,
		EntryPoint: 0x1000,
		Segments: []guestimage.Segment{
			{VirtualStart: 0x1000, VirtualEnd: 0x1000 + uint64(len(code)), Data: code, Flags: guestimage.FlagExec | guestimage.FlagRead},
		},
	}
	reg := isa.Standard()
	tab := itab.Build(img, reg)
	analysis := cfganalysis.Analyze(tab, reg)
	bt := blocktable.Build(tab, reg)
	bt.Optimize()
	return tab, bt, analysis
}

func TestEmitProducesLabeledAssembly(t *testing.T) {
	tab, bt, analysis := buildProgram()
	layout := state.NewLayout(xlen.W64, state.RegFile32, state.TracerArea{})
	cfg := emitcommon.Config{Layout: layout}
	e := New(cfg, tab, bt, analysis, isa.Standard())
	out := e.Emit()

	assert(t, strings.Contains(out, ".text"), "emitted assembly should open with a .text directive")
	assert(t, strings.Contains(out, "B_00001000:"), "emitted assembly should contain the entry block's label, got:\n%s", out)
	assert(t, strings.Contains(out, stateReg), "emitted assembly should reference the reserved state register")
	assert(t, strings.Contains(out, "ret"), "a returning block should end in a ret, got:\n%s", out)
}

func TestEmitAddiLowersToAddInstruction(t *testing.T) {
	tab, bt, analysis := buildProgram()
	layout := state.NewLayout(xlen.W64, state.RegFile32, state.TracerArea{})
	cfg := emitcommon.Config{Layout: layout}
	e := New(cfg, tab, bt, analysis, isa.Standard())
	out := e.Emit()
	assert(t, strings.Contains(out, "add "), "an addi should lower to a three-operand add instruction, got:\n%s", out)
}
