package csource

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

// buildProgram lays out: addi x1,x0,5 ; addi x2,x1,1 ; ret
func buildProgram() (*itab.Table, *blocktable.Table, *cfganalysis.Result) {
	var code []byte
	code = append(code, le32(encI(opImm, 1, 0, 0, 5))...)
	code = append(code, le32(encI(opImm, 2, 0, 1, 1))...)
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

func newConfig() emitcommon.Config {
	layout := state.NewLayout(xlen.W64, state.RegFile32, state.TracerArea{})
	return emitcommon.Config{Layout: layout, Instret: emitcommon.InstretOff}
}

func TestEmitProducesCompilableLookingSource(t *testing.T) {
	tab, bt, analysis := buildProgram()
	e := New(newConfig(), tab, bt, analysis, isa.Standard())
	out := e.Emit()

	assert(t, strings.Contains(out, "#include <stdint.h>"), "emitted source should include stdint.h")
	assert(t, strings.Contains(out, "struct rv_state"), "emitted source should declare rv_state")
	assert(t, strings.Contains(out, "B_00001000"), "emitted source should contain the entry block's label")
	assert(t, strings.Contains(out, "rv_dispatch"), "emitted source should define rv_dispatch")
}

func TestEmitWritesRegisterAssignment(t *testing.T) {
	tab, bt, analysis := buildProgram()
	e := New(newConfig(), tab, bt, analysis, isa.Standard())
	out := e.Emit()

	assert(t, strings.Contains(out, "RV_REG(st, 1) = "), "the addi into x1 should lower to a RV_REG write, got:\n%s", out)
}

func TestEmitElidesX0Writes(t *testing.T) {
	var code []byte
	code = append(code, le32(encI(opImm, 0, 0, 0, 5))...)
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

	e := New(newConfig(), tab, bt, analysis, reg)
	out := e.Emit()
	assert(t, !strings.Contains(out, "RV_REG(st, 0) ="), "a write to x0 must never be emitted, got:\n%s", out)
}

func TestEmitWithTracingAndInstretCount(t *testing.T) {
	tab, bt, analysis := buildProgram()
	layout := state.NewLayout(xlen.W64, state.RegFile32, state.TracerArea{Bytes: 64})
	cfg := emitcommon.Config{Layout: layout, Instret: emitcommon.InstretCount, TraceEnabled: true}
	e := New(cfg, tab, bt, analysis, isa.Standard())
	out := e.Emit()
	assert(t, strings.Contains(out, "RV_INSTRET(st)++;"), "instret counting should emit an increment per instruction")
}

func TestEmitPinsHotRegisterToLocal(t *testing.T) {
	tab, bt, analysis := buildProgram()
	layout := state.NewLayout(xlen.W64, state.RegFile32, state.TracerArea{})
	cfg := emitcommon.Config{Layout: layout, HotRegs: []uint8{1}}
	e := New(cfg, tab, bt, analysis, isa.Standard())
	out := e.Emit()

	assert(t, strings.Contains(out, "rv_reg_t h1 = RV_REG(st, 1);"), "a hot register should be cached into a local at block entry, got:\n%s", out)
	assert(t, strings.Contains(out, "h1 ="), "a write to a hot register should assign its local, got:\n%s", out)
	assert(t, strings.Count(out, "RV_REG(st, 1) = ") == strings.Count(out, "RV_REG(st, 1) = h1;"), "a hot register's writes must bypass RV_REG entirely (only the flush may store to it), got:\n%s", out)
	assert(t, strings.Contains(out, "RV_REG(st, 1) = h1;"), "a hot register must be flushed back to the state record before every exit, got:\n%s", out)
}

func TestEmitTracingWrapsRegisterAccess(t *testing.T) {
	tab, bt, analysis := buildProgram()
	layout := state.NewLayout(xlen.W64, state.RegFile32, state.TracerArea{Bytes: 64})
	cfg := emitcommon.Config{Layout: layout, TraceEnabled: true}
	e := New(cfg, tab, bt, analysis, isa.Standard())
	out := e.Emit()

	assert(t, strings.Contains(out, "trace_block(st, 0x1000ULL);"), "a traced block must call trace_block at its entry, got:\n%s", out)
	assert(t, strings.Contains(out, "trd_reg(st, 1, RV_REG(st, 1))"), "a traced register read should go through trd_reg, got:\n%s", out)
	assert(t, strings.Contains(out, "twr_reg(st, 2, "), "a traced register write should go through twr_reg, got:\n%s", out)
	assert(t, strings.Contains(out, "extern void trace_block("), "tracer externs should be declared when tracing is enabled")
}

func TestEmitOmitsTracerExternsWhenDisabled(t *testing.T) {
	tab, bt, analysis := buildProgram()
	e := New(newConfig(), tab, bt, analysis, isa.Standard())
	out := e.Emit()

	assert(t, !strings.Contains(out, "trace_block"), "a non-traced build must never reference trace_block, got:\n%s", out)
	assert(t, !strings.Contains(out, "trd_reg"), "a non-traced build must never reference trd_reg, got:\n%s", out)
}
