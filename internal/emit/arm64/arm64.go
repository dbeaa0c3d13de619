// Package arm64 emits textual arm64 assembly (an .s file for an external
// assembler to consume, per spec.md §6) — grounded in the teacher's
// backend_aarch64.go register-reservation convention (X0-X3 as working
// registers, X28 as a reserved pointer), adapted from raw object emission
// to assembly text since object emission is out of this repository's
// scope (spec.md §1).
package arm64

import (
	"fmt"
	"strings"

	"github.com/rvrecomp/rvrecomp/internal/blocktable"
	"github.com/rvrecomp/rvrecomp/internal/cfganalysis"
	"github.com/rvrecomp/rvrecomp/internal/emit/emitcommon"
	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
	"github.com/rvrecomp/rvrecomp/internal/rvir"
)

// Reserved host registers: X19 (callee-saved) carries the state pointer
// and X20 the guest memory base, mirroring the teacher's single
// reserved-pointer-register convention (X28 there) rather than a general
// allocator. A free list of caller-saved scratch registers services
// expression evaluation.
const (
	stateReg = "x19"
	memReg   = "x20"
)

var scratch = []string{"x0", "x1", "x2", "x3", "x9", "x10", "x11", "x12", "x13"}

// Emitter renders a block table to arm64 assembly text.
type Emitter struct {
	cfg emitcommon.Config
	tab *itab.Table
	bt  *blocktable.Table
	reg *isa.Registry

	free  []string
	b     *strings.Builder
	ifSeq int // monotonic counter for StmtIf labels, keyed off pc+seq rather than pointer identity (spec.md §8 determinism)
}

// New constructs an arm64 Emitter.
func New(cfg emitcommon.Config, tab *itab.Table, bt *blocktable.Table, _ *cfganalysis.Result, reg *isa.Registry) *Emitter {
	return &Emitter{cfg: cfg, tab: tab, bt: bt, reg: reg}
}

// Emit renders the complete assembly text.
func (e *Emitter) Emit() string {
	e.b = &strings.Builder{}
	e.b.WriteString(".text\n")
	for _, blk := range e.bt.Blocks {
		e.writeBlock(blk)
	}
	return e.b.String()
}

func (e *Emitter) resetFree() {
	e.free = append([]string(nil), scratch...)
}

func (e *Emitter) alloc() string {
	if len(e.free) == 0 {
		panic("arm64: scratch register exhausted")
	}
	r := e.free[0]
	e.free = e.free[1:]
	return r
}

func (e *Emitter) release(r string) {
	e.free = append(e.free, r)
}

func (e *Emitter) writeBlock(blk blocktable.BasicBlock) {
	label := emitcommon.Label(blk.Start)
	fmt.Fprintf(e.b, ".global %s\n%s:\n", label, label)

	pc := blk.Start
	for pc < blk.End {
		d, ok := e.tab.Get(pc)
		if !ok {
			break
		}
		e.writeInstruction(d)
		if e.cfg.Instret != emitcommon.InstretOff {
			e.writeInstretTick(d)
		}
		pc += uint64(d.Size)
	}
	for _, cont := range e.bt.BlockContinuations[blk.Start] {
		p := cont.Start
		for p < cont.End {
			d, ok := e.tab.Get(p)
			if !ok {
				break
			}
			e.writeInstruction(d)
			if e.cfg.Instret != emitcommon.InstretOff {
				e.writeInstretTick(d)
			}
			p += uint64(d.Size)
		}
	}
	e.writeTerminator(blk)
	e.b.WriteString("\n")
}

// writeInstretTick increments the retirement counter after the instruction at
// d.PC (spec.md §4.7 "Instruction retirement"), mirroring the amd64 and
// csource backends. In InstretSuspend mode, a retirement that reaches the
// target count stores the resume PC and transfers to the host-provided exit
// label instead of falling into the next instruction.
func (e *Emitter) writeInstretTick(d isa.Decoded) {
	l := e.cfg.Layout
	fmt.Fprintf(e.b, "    ldr x9, [%s, #%d]\n    add x9, x9, #1\n    str x9, [%s, #%d]\n", stateReg, l.InstretOffset, stateReg, l.InstretOffset)
	if e.cfg.Instret != emitcommon.InstretSuspend {
		return
	}
	skip := fmt.Sprintf(".Lcont_%x", d.PC)
	fmt.Fprintf(e.b, "    ldr x10, [%s, #%d]\n    cmp x9, x10\n    b.lo %s\n", stateReg, l.TargetInstretOffset, skip)
	fmt.Fprintf(e.b, "    movz x9, #0x%x\n    movk x9, #0x%x, lsl #16\n    str x9, [%s, #%d]\n", (d.PC+uint64(d.Size))&0xffff, ((d.PC+uint64(d.Size))>>16)&0xffff, stateReg, l.PCOffset)
	fmt.Fprintf(e.b, "    bl %s\n    ret\n", emitcommon.ExitLabel)
	fmt.Fprintf(e.b, "%s:\n", skip)
}

func (e *Emitter) writeInstruction(d isa.Decoded) {
	fmt.Fprintf(e.b, "    // pc=0x%08x %s\n", d.PC, e.reg.Disasm(d))
	inst := e.reg.Lift(d, e.tab.Width())
	for _, stmt := range inst.Statements {
		e.resetFree()
		e.writeStmt(stmt, d.PC)
	}
}

func (e *Emitter) writeStmt(s rvir.Stmt, pc uint64) {
	switch s.Kind {
	case rvir.StmtWrite:
		e.writeTarget(s.Target, s.Value)
	case rvir.StmtIf:
		e.ifSeq++
		elseLabel := fmt.Sprintf(".Lelse_%x_%d", pc, e.ifSeq)
		endLabel := fmt.Sprintf(".Lend_%x_%d", pc, e.ifSeq)
		cond := e.lower(s.Cond)
		fmt.Fprintf(e.b, "    cbz %s, %s\n", cond, elseLabel)
		e.release(cond)
		for _, st := range s.Then {
			e.resetFree()
			e.writeStmt(st, pc)
		}
		fmt.Fprintf(e.b, "    b %s\n%s:\n", endLabel, elseLabel)
		for _, st := range s.Else {
			e.resetFree()
			e.writeStmt(st, pc)
		}
		fmt.Fprintf(e.b, "%s:\n", endLabel)
	case rvir.StmtExternCall:
		var args []string
		for _, a := range s.CallArgs {
			args = append(args, e.lower(a))
		}
		for i, r := range args {
			if i == 0 {
				fmt.Fprintf(e.b, "    mov x1, %s\n", r)
			} else {
				fmt.Fprintf(e.b, "    mov x%d, %s\n", i+1, r)
			}
		}
		for _, r := range args {
			e.release(r)
		}
		fmt.Fprintf(e.b, "    mov x0, %s\n    bl %s\n", stateReg, s.CallName)
	}
}

func (e *Emitter) writeTarget(t rvir.Target, v *rvir.Expr) {
	e.resetFree()
	val := e.lower(v)
	l := e.cfg.Layout

	switch t.Kind {
	case rvir.TargetReg:
		if t.RegNum == 0 {
			return
		}
		fmt.Fprintf(e.b, "    str %s, [%s, #%d]\n", val, stateReg, l.RegOffset(t.RegNum))
	case rvir.TargetMem:
		addr := e.lowerAddr(t.MemBase, t.MemOffset)
		switch t.MemWidth {
		case rvir.Width8:
			fmt.Fprintf(e.b, "    strb %sw, [%s, %s]\n", val, memReg, addr)
		case rvir.Width16:
			fmt.Fprintf(e.b, "    strh %sw, [%s, %s]\n", val, memReg, addr)
		case rvir.Width32:
			fmt.Fprintf(e.b, "    str %sw, [%s, %s]\n", val, memReg, addr)
		default:
			fmt.Fprintf(e.b, "    str %s, [%s, %s]\n", val, memReg, addr)
		}
		e.release(addr)
	case rvir.TargetPC:
		fmt.Fprintf(e.b, "    str %s, [%s, #%d]\n", val, stateReg, l.PCOffset)
	case rvir.TargetExited:
		fmt.Fprintf(e.b, "    strb %sw, [%s, #%d]\n", val, stateReg, l.ExitedOffset)
	case rvir.TargetExitCode:
		fmt.Fprintf(e.b, "    strb %sw, [%s, #%d]\n", val, stateReg, l.ExitCodeOffset)
	case rvir.TargetTemp:
		fmt.Fprintf(e.b, "    str %s, [sp, #-%d]\n", val, (t.TempNum+1)*8)
	case rvir.TargetReservationAddr:
		fmt.Fprintf(e.b, "    str %s, [%s, #%d]\n", val, stateReg, l.ReservationAddrOffset)
	case rvir.TargetReservationValid:
		fmt.Fprintf(e.b, "    strb %sw, [%s, #%d]\n", val, stateReg, l.ReservationValidOffset)
	case rvir.TargetCSR:
		fmt.Fprintf(e.b, "    // csr 0x%x write, unsupported in this backend\n", t.CSRNum)
	}
	e.release(val)
}

func (e *Emitter) writeTerminator(blk blocktable.BasicBlock) {
	d, _ := e.tab.Get(blk.LastPC)
	term := e.reg.Lift(d, e.tab.Width()).Terminator
	fallThrough := blk.End

	switch term.Kind {
	case rvir.TermFall:
		if term.HasFallTarget {
			e.jumpTo(term.FallTarget)
		} else {
			e.b.WriteString("    ret\n")
		}
	case rvir.TermJump:
		e.jumpTo(term.Target)
	case rvir.TermBranch:
		e.resetFree()
		cond := e.lower(term.Cond)
		fmt.Fprintf(e.b, "    cbz %s, .Lfall_%x\n", cond, blk.LastPC)
		e.release(cond)
		if !emitcommon.ElideBranch(term.Target, fallThrough, true) {
			e.jumpTo(term.Target)
		}
		fmt.Fprintf(e.b, ".Lfall_%x:\n", blk.LastPC)
		if term.HasFallTarget {
			e.jumpTo(term.FallTarget)
		} else {
			e.b.WriteString("    ret\n")
		}
	case rvir.TermJumpDyn:
		e.resetFree()
		addr := e.lower(term.Addr)
		fmt.Fprintf(e.b, "    str %s, [%s, #%d]\n    bl rv_dispatch\n    ret\n", addr, stateReg, e.cfg.Layout.PCOffset)
		e.release(addr)
	case rvir.TermExit:
		e.b.WriteString("    bl asm_exit\n    ret\n")
	case rvir.TermTrap:
		e.b.WriteString("    bl asm_trap\n    ret\n")
	}
}

func (e *Emitter) jumpTo(target uint64) {
	resolved := target
	if r, ok := e.bt.AbsorbedToMerged[target]; ok {
		resolved = r
	}
	for _, blk := range e.bt.Blocks {
		if blk.Start == resolved {
			fmt.Fprintf(e.b, "    b %s\n", emitcommon.Label(resolved))
			return
		}
	}
	fmt.Fprintf(e.b, "    movz x9, #0x%x\n    movk x9, #0x%x, lsl #16\n    str x9, [%s, #%d]\n    bl rv_dispatch\n    ret\n",
		target&0xffff, (target>>16)&0xffff, stateReg, e.cfg.Layout.PCOffset)
}

func (e *Emitter) lowerAddr(base *rvir.Expr, offset int64) string {
	r := e.lower(base)
	if offset != 0 {
		if offset > 0 {
			fmt.Fprintf(e.b, "    add %s, %s, #%d\n", r, r, offset)
		} else {
			fmt.Fprintf(e.b, "    sub %s, %s, #%d\n", r, r, -offset)
		}
	}
	return r
}
