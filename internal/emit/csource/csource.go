// Package csource is the primary emitter backend: portable C (spec.md
// §4.7). Each surviving block becomes one function; tail control transfer
// to another surviving block's entry is rendered with GNU C's
// `__attribute__((musttail))` when the callee's signature is compatible,
// matching original_source/crates/rvr-emit's C backend design.
package csource

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rvrecomp/rvrecomp/internal/blocktable"
	"github.com/rvrecomp/rvrecomp/internal/cfganalysis"
	"github.com/rvrecomp/rvrecomp/internal/emit/emitcommon"
	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

// Emitter renders a block table to a single C translation unit.
type Emitter struct {
	cfg      emitcommon.Config
	tab      *itab.Table
	bt       *blocktable.Table
	analysis *cfganalysis.Result
	reg      *isa.Registry

	regType    string
	signedType string
}

// New constructs a csource Emitter for the given compiled guest image.
func New(cfg emitcommon.Config, tab *itab.Table, bt *blocktable.Table, analysis *cfganalysis.Result, reg *isa.Registry) *Emitter {
	e := &Emitter{cfg: cfg, tab: tab, bt: bt, analysis: analysis, reg: reg}
	if tab.Width() == xlen.W64 {
		e.regType, e.signedType = "uint64_t", "int64_t"
	} else {
		e.regType, e.signedType = "uint32_t", "int32_t"
	}
	return e
}

// Emit renders the complete C source text.
func (e *Emitter) Emit() string {
	var b strings.Builder
	e.writeHeader(&b)

	starts := make([]uint64, 0, len(e.bt.Blocks))
	for _, blk := range e.bt.Blocks {
		starts = append(starts, blk.Start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i] < starts[j] })
	byStart := map[uint64]blocktable.BasicBlock{}
	for _, blk := range e.bt.Blocks {
		byStart[blk.Start] = blk
	}
	for _, start := range starts {
		fmt.Fprintf(&b, "static void %s(struct rv_state *st, uint8_t *mem);\n", emitcommon.Label(start))
	}
	b.WriteString("\n")

	for _, start := range starts {
		e.writeBlock(&b, byStart[start])
	}

	e.writeDispatchTable(&b, starts)
	return b.String()
}

func (e *Emitter) writeHeader(b *strings.Builder) {
	l := e.cfg.Layout
	fmt.Fprintf(b, "/* generated; do not edit */\n#include <stdint.h>\n#include <string.h>\n\n")
	fmt.Fprintf(b, "typedef %s rv_reg_t;\n\n", e.regType)
	fmt.Fprintf(b, "struct rv_state {\n")
	fmt.Fprintf(b, "    uint8_t raw[%d];\n", l.TotalSize)
	fmt.Fprintf(b, "};\n\n")
	fmt.Fprintf(b, "#define RV_REG(st, n) (*(rv_reg_t *)((st)->raw + %d + (n) * %d))\n", l.RegsOffset, e.tab.Width().Bytes())
	fmt.Fprintf(b, "#define RV_PC(st) (*(rv_reg_t *)((st)->raw + %d))\n", l.PCOffset)
	fmt.Fprintf(b, "#define RV_CYCLE(st) (*(uint64_t *)((st)->raw + %d))\n", l.CycleOffset)
	fmt.Fprintf(b, "#define RV_INSTRET(st) (*(uint64_t *)((st)->raw + %d))\n", l.InstretOffset)
	fmt.Fprintf(b, "#define RV_TARGET_INSTRET(st) (*(uint64_t *)((st)->raw + %d))\n", l.TargetInstretOffset)
	fmt.Fprintf(b, "#define RV_RESV_ADDR(st) (*(rv_reg_t *)((st)->raw + %d))\n", l.ReservationAddrOffset)
	fmt.Fprintf(b, "#define RV_RESV_VALID(st) ((st)->raw[%d])\n", l.ReservationValidOffset)
	fmt.Fprintf(b, "#define RV_EXITED(st) ((st)->raw[%d])\n", l.ExitedOffset)
	fmt.Fprintf(b, "#define RV_EXIT_CODE(st) ((st)->raw[%d])\n", l.ExitCodeOffset)
	b.WriteString("\nextern void asm_exit(struct rv_state *st);\nextern void asm_trap(struct rv_state *st, const char *msg);\nextern void rv_htif_store(struct rv_state *st, uint64_t value);\n")
	b.WriteString("void rv_dispatch(struct rv_state *st, uint8_t *mem);\n")
	b.WriteString("extern rv_reg_t rv_csr_read(struct rv_state *st, uint32_t csr);\n")
	b.WriteString("extern rv_reg_t rv_orc_b(rv_reg_t v);\n")
	b.WriteString("extern rv_reg_t rv_div(rv_reg_t a, rv_reg_t b);\n")
	b.WriteString("extern rv_reg_t rv_divu(rv_reg_t a, rv_reg_t b);\n")
	b.WriteString("extern rv_reg_t rv_rem(rv_reg_t a, rv_reg_t b);\n")
	b.WriteString("extern rv_reg_t rv_remu(rv_reg_t a, rv_reg_t b);\n")
	b.WriteString("extern rv_reg_t rv_rol(rv_reg_t v, rv_reg_t amt);\n")
	b.WriteString("extern rv_reg_t rv_ror(rv_reg_t v, rv_reg_t amt);\n")
	b.WriteString("extern uint64_t rv_mulh64(int64_t a, int64_t b);\n")
	if e.cfg.TraceEnabled {
		b.WriteString("\n/* tracer hook (spec.md §6): disabled builds never reference these, so the\n")
		b.WriteString(" * runtime-side inline-passthrough variant never needs to be linked in. */\n")
		b.WriteString("extern void trace_block(struct rv_state *st, uint64_t pc);\n")
		b.WriteString("extern rv_reg_t trd_reg(struct rv_state *st, int n, rv_reg_t v);\n")
		b.WriteString("extern void twr_reg(struct rv_state *st, int n, rv_reg_t v);\n")
		b.WriteString("extern uint64_t trd_mem_u8(struct rv_state *st, rv_reg_t addr, uint64_t v);\n")
		b.WriteString("extern uint64_t trd_mem_u16(struct rv_state *st, rv_reg_t addr, uint64_t v);\n")
		b.WriteString("extern uint64_t trd_mem_u32(struct rv_state *st, rv_reg_t addr, uint64_t v);\n")
		b.WriteString("extern uint64_t trd_mem_u64(struct rv_state *st, rv_reg_t addr, uint64_t v);\n")
		b.WriteString("extern void twr_mem_u8(struct rv_state *st, rv_reg_t addr, uint64_t v);\n")
		b.WriteString("extern void twr_mem_u16(struct rv_state *st, rv_reg_t addr, uint64_t v);\n")
		b.WriteString("extern void twr_mem_u32(struct rv_state *st, rv_reg_t addr, uint64_t v);\n")
		b.WriteString("extern void twr_mem_u64(struct rv_state *st, rv_reg_t addr, uint64_t v);\n")
		b.WriteString("extern rv_reg_t trd_csr(struct rv_state *st, uint32_t csr, rv_reg_t v);\n")
		b.WriteString("extern void twr_csr(struct rv_state *st, uint32_t csr, rv_reg_t v);\n")
	}
	b.WriteString("\n")
	if e.cfg.HTIFEnabled {
		fmt.Fprintf(b, "#define RV_HTIF_ADDR 0x%xULL\n\n", e.cfg.HTIFAddr)
	}
}

// hotRegisters returns the configured hot-register set, excluding x0 (which
// is never live: all writes to it are discarded).
func (e *Emitter) hotRegisters() []uint8 {
	var out []uint8
	for _, r := range e.cfg.HotRegs {
		if r != 0 {
			out = append(out, r)
		}
	}
	return out
}

// writeHotPrologue caches every pinned guest register into a local at
// function entry (spec.md §4.7 "Host register discipline"): the C compiler
// is free to keep these locals in real host registers for the function's
// lifetime, instead of re-reading RV_REG(st, n) from the state record on
// every access.
func (e *Emitter) writeHotPrologue(b *strings.Builder) {
	for _, r := range e.hotRegisters() {
		fmt.Fprintf(b, "    rv_reg_t h%d = RV_REG(st, %d);\n", r, r)
	}
}

// writeHotFlush writes every pinned register's local back to the state
// record. Every exit from the function — a tail call to another emitted
// block, a trap, an exit, or a dispatch re-entry — must flush first, since
// the callee (or the host runtime) reads guest registers from the state
// record, not from this function's locals.
func (e *Emitter) writeHotFlush(b *strings.Builder, indent string) {
	for _, r := range e.hotRegisters() {
		fmt.Fprintf(b, "%sRV_REG(st, %d) = h%d;\n", indent, r, r)
	}
}

// writeTraceBlock emits the block-entry tracer callback for one physical
// leader PC (spec.md §6's "trace_block"). Every continuation and
// taken-inline range reemits this, since each was itself a distinct leader
// before the block-layout optimizer folded it into a larger function.
func (e *Emitter) writeTraceBlock(b *strings.Builder, pc uint64, indent string) {
	if !e.cfg.TraceEnabled {
		return
	}
	fmt.Fprintf(b, "%strace_block(st, 0x%xULL);\n", indent, pc)
}

func (e *Emitter) writeBlock(b *strings.Builder, blk blocktable.BasicBlock) {
	fmt.Fprintf(b, "static void %s(struct rv_state *st, uint8_t *mem) {\n", emitcommon.Label(blk.Start))
	e.writeHotPrologue(b)

	e.writeTraceBlock(b, blk.Start, "    ")
	e.writeRange(b, blk.Start, blk.End, "    ")

	for _, cont := range e.bt.BlockContinuations[blk.Start] {
		e.writeTraceBlock(b, cont.Start, "    ")
		e.writeRange(b, cont.Start, cont.End, "    ")
	}

	e.writeTerminatorAt(b, blk.LastPC, blk.End, "    ")
	b.WriteString("}\n\n")
}

// writeRange emits every instruction in [start, end) at indent, including
// per-instruction instret ticks. Used for a block's own body, its absorbed
// continuations, and any taken-inline range spliced into a branch arm.
func (e *Emitter) writeRange(b *strings.Builder, start, end uint64, indent string) {
	pc := start
	for pc < end {
		d, ok := e.tab.Get(pc)
		if !ok {
			break
		}
		e.writeInstruction(b, d, indent)
		if e.cfg.Instret != emitcommon.InstretOff {
			e.writeInstretTick(b, d, indent)
		}
		pc += uint64(d.Size)
	}
}

// lastPCInRange finds the PC of the final decoded instruction in [start,
// end), needed when recursing into a taken-inline range's own terminator.
func (e *Emitter) lastPCInRange(start, end uint64) uint64 {
	var last uint64
	pc := start
	for pc < end {
		d, ok := e.tab.Get(pc)
		if !ok {
			break
		}
		last = pc
		pc += uint64(d.Size)
	}
	return last
}

func (e *Emitter) writeInstruction(b *strings.Builder, d isa.Decoded, indent string) {
	inst := e.reg.Lift(d, e.tab.Width())
	fmt.Fprintf(b, "%s/* pc=0x%08x %s */\n", indent, d.PC, e.reg.Disasm(d))
	for _, stmt := range inst.Statements {
		e.writeStmt(b, stmt, indent)
	}
}

func (e *Emitter) writeInstretTick(b *strings.Builder, d isa.Decoded, indent string) {
	fmt.Fprintf(b, "%sRV_INSTRET(st)++;\n", indent)
	if e.cfg.Instret == emitcommon.InstretSuspend {
		fmt.Fprintf(b, "%sif (RV_INSTRET(st) >= RV_TARGET_INSTRET(st)) {\n", indent)
		e.writeHotFlush(b, indent+"    ")
		fmt.Fprintf(b, "%s    RV_PC(st) = 0x%xULL; %s(st); return;\n", indent, d.PC+uint64(d.Size), emitcommon.ExitLabel)
		fmt.Fprintf(b, "%s}\n", indent)
	}
}

func (e *Emitter) writeStmt(b *strings.Builder, s rvir.Stmt, indent string) {
	switch s.Kind {
	case rvir.StmtWrite:
		e.writeTarget(b, s.Target, s.Value, indent)
	case rvir.StmtIf:
		fmt.Fprintf(b, "%sif (%s) {\n", indent, e.renderExpr(s.Cond))
		for _, st := range s.Then {
			e.writeStmt(b, st, indent+"    ")
		}
		fmt.Fprintf(b, "%s} else {\n", indent)
		for _, st := range s.Else {
			e.writeStmt(b, st, indent+"    ")
		}
		fmt.Fprintf(b, "%s}\n", indent)
	case rvir.StmtExternCall:
		fmt.Fprintf(b, "%s%s(st%s);\n", indent, s.CallName, e.renderArgList(s.CallArgs))
	}
}

func (e *Emitter) renderArgList(args []*rvir.Expr) string {
	var parts []string
	for _, a := range args {
		parts = append(parts, e.renderExpr(a))
	}
	if len(parts) == 0 {
		return ""
	}
	return ", " + strings.Join(parts, ", ")
}

func (e *Emitter) writeTarget(b *strings.Builder, t rvir.Target, v *rvir.Expr, indent string) {
	val := e.renderExpr(v)
	switch t.Kind {
	case rvir.TargetReg:
		if t.RegNum == 0 {
			return // writes to x0 are no-ops across every backend
		}
		if e.cfg.IsHot(t.RegNum) {
			fmt.Fprintf(b, "%sh%d = %s;\n", indent, t.RegNum, val)
			return
		}
		if e.cfg.TraceEnabled {
			fmt.Fprintf(b, "%stwr_reg(st, %d, %s);\n", indent, t.RegNum, val)
		}
		fmt.Fprintf(b, "%sRV_REG(st, %d) = %s;\n", indent, t.RegNum, val)
	case rvir.TargetMem:
		addr := e.renderAddr(t.MemBase, t.MemOffset)
		if e.cfg.HTIFEnabled {
			fmt.Fprintf(b, "%sif ((%s) == RV_HTIF_ADDR) { rv_htif_store(st, %s); if (RV_EXITED(st)) { ", indent, addr, val)
			e.writeHotFlush(b, "")
			b.WriteString("return; } }\n")
			fmt.Fprintf(b, "%selse\n", indent)
		}
		if e.cfg.TraceEnabled {
			fmt.Fprintf(b, "%stwr_mem_u%d(st, %s, (uint64_t)(%s));\n", indent, int(t.MemWidth)*8, addr, val)
		}
		fmt.Fprintf(b, "%s*(uint%d_t *)(mem + (%s)) = (uint%d_t)(%s);\n", indent, int(t.MemWidth)*8, addr, int(t.MemWidth)*8, val)
	case rvir.TargetPC:
		fmt.Fprintf(b, "%sRV_PC(st) = %s;\n", indent, val)
	case rvir.TargetExited:
		fmt.Fprintf(b, "%sRV_EXITED(st) = (uint8_t)(%s);\n", indent, val)
	case rvir.TargetExitCode:
		fmt.Fprintf(b, "%sRV_EXIT_CODE(st) = (uint8_t)(%s);\n", indent, val)
	case rvir.TargetTemp:
		fmt.Fprintf(b, "%srv_reg_t t%d = %s;\n", indent, t.TempNum, val)
	case rvir.TargetReservationAddr:
		fmt.Fprintf(b, "%sRV_RESV_ADDR(st) = %s;\n", indent, val)
	case rvir.TargetReservationValid:
		fmt.Fprintf(b, "%sRV_RESV_VALID(st) = (uint8_t)(%s);\n", indent, val)
	case rvir.TargetCSR:
		if e.cfg.TraceEnabled {
			fmt.Fprintf(b, "%stwr_csr(st, 0x%x, %s);\n", indent, t.CSRNum, val)
		}
		fmt.Fprintf(b, "%s/* csr 0x%x write */ (void)(%s);\n", indent, t.CSRNum, val)
	}
}

func (e *Emitter) renderAddr(base *rvir.Expr, offset int64) string {
	if offset == 0 {
		return e.renderExpr(base)
	}
	if offset > 0 {
		return fmt.Sprintf("(%s) + 0x%x", e.renderExpr(base), uint64(offset))
	}
	return fmt.Sprintf("(%s) - 0x%x", e.renderExpr(base), uint64(-offset))
}

// writeTerminatorAt writes the terminator belonging to the instruction at
// lastPC, where fallThrough is the PC immediately after it. Used both for a
// physical block's own terminator and, recursively, for a taken-inline
// range's terminator once its spliced-in body has been emitted.
func (e *Emitter) writeTerminatorAt(b *strings.Builder, lastPC, fallThrough uint64, indent string) {
	term := e.reg.Lift(mustGet(e.tab, lastPC), e.tab.Width()).Terminator

	switch term.Kind {
	case rvir.TermFall:
		if !term.HasFallTarget {
			e.writeHotFlush(b, indent)
			fmt.Fprintf(b, "%sreturn;\n", indent)
			return
		}
		e.tailOrGotoInline(b, term.FallTarget, indent)
	case rvir.TermJump:
		e.tailOrGotoInline(b, term.Target, indent)
	case rvir.TermBranch:
		fmt.Fprintf(b, "%sif (%s) {\n", indent, e.renderExpr(term.Cond))
		if emitcommon.ElideBranch(term.Target, fallThrough, true) {
			fmt.Fprintf(b, "%s    /* branch target == fall-through, elided */\n", indent)
		} else if rng, ok := e.bt.TakenInlines[lastPC]; ok {
			// spec.md §4.6/§4.7: splice the taken target's body directly
			// into the if-taken arm instead of jumping to its label.
			e.writeTraceBlock(b, rng.Start, indent+"    ")
			e.writeRange(b, rng.Start, rng.End, indent+"    ")
			e.writeTerminatorAt(b, e.lastPCInRange(rng.Start, rng.End), rng.End, indent+"    ")
		} else {
			e.tailOrGotoInline(b, term.Target, indent+"    ")
		}
		fmt.Fprintf(b, "%s} else {\n", indent)
		if term.HasFallTarget {
			e.tailOrGotoInline(b, term.FallTarget, indent+"    ")
		} else {
			e.writeHotFlush(b, indent+"    ")
			fmt.Fprintf(b, "%s    return;\n", indent)
		}
		fmt.Fprintf(b, "%s}\n", indent)
	case rvir.TermJumpDyn:
		e.writeHotFlush(b, indent)
		fmt.Fprintf(b, "%sRV_PC(st) = %s;\n%srv_dispatch(st, mem);\n%sreturn;\n", indent, e.renderExpr(term.Addr), indent, indent)
	case rvir.TermExit:
		if term.Code != nil {
			fmt.Fprintf(b, "%sRV_EXIT_CODE(st) = (uint8_t)(%s);\n", indent, e.renderExpr(term.Code))
		}
		e.writeHotFlush(b, indent)
		fmt.Fprintf(b, "%sRV_EXITED(st) = 1;\n%sasm_exit(st);\n%sreturn;\n", indent, indent, indent)
	case rvir.TermTrap:
		e.writeHotFlush(b, indent)
		fmt.Fprintf(b, "%sasm_trap(st, %q);\n%sreturn;\n", indent, term.Msg, indent)
	}
}

func (e *Emitter) tailOrGotoInline(b *strings.Builder, target uint64, indent string) {
	resolved := target
	if r, ok := e.bt.AbsorbedToMerged[target]; ok {
		resolved = r
	}
	e.writeHotFlush(b, indent)
	if e.blockExists(resolved) {
		fmt.Fprintf(b, "%s__attribute__((musttail)) return %s(st, mem);\n", indent, emitcommon.Label(resolved))
		return
	}
	fmt.Fprintf(b, "%sRV_PC(st) = 0x%xULL; rv_dispatch(st, mem); return;\n", indent, target)
}

func (e *Emitter) blockExists(pc uint64) bool {
	for _, blk := range e.bt.Blocks {
		if blk.Start == pc {
			return true
		}
	}
	return false
}

func (e *Emitter) writeDispatchTable(b *strings.Builder, starts []uint64) {
	entries := emitcommon.BuildDispatchTable(e.tab, e.bt, e.analysis)
	b.WriteString("struct rv_dispatch_entry { uint64_t pc; void (*fn)(struct rv_state *, uint8_t *); };\n")
	b.WriteString("static const struct rv_dispatch_entry dispatch_table[] = {\n")
	for _, ent := range entries {
		sym := ent.Symbol
		if sym == emitcommon.TrapLabel {
			fmt.Fprintf(b, "    { 0x%xULL, 0 },\n", ent.PC)
			continue
		}
		fmt.Fprintf(b, "    { 0x%xULL, %s },\n", ent.PC, sym)
	}
	b.WriteString("};\n")
	fmt.Fprintf(b, "static const int dispatch_table_len = %d;\n\n", len(entries))
	b.WriteString(`void rv_dispatch(struct rv_state *st, uint8_t *mem) {
    uint64_t pc = RV_PC(st);
    int lo = 0, hi = dispatch_table_len - 1;
    while (lo <= hi) {
        int mid = (lo + hi) / 2;
        if (dispatch_table[mid].pc == pc) {
            if (dispatch_table[mid].fn) { dispatch_table[mid].fn(st, mem); return; }
            asm_trap(st, "unresolved dispatch target");
            return;
        }
        if (dispatch_table[mid].pc < pc) lo = mid + 1; else hi = mid - 1;
    }
    asm_trap(st, "dispatch: pc not in table");
}
`)
}

func mustGet(tab *itab.Table, pc uint64) isa.Decoded {
	d, _ := tab.Get(pc)
	return d
}
