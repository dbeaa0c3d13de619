// Package amd64 emits textual AT&T-syntax host assembly (an .s file for an
// external assembler to consume, per spec.md §6) — grounded in the
// teacher's backend_x64.go register-reservation convention, adapted from
// raw ELF byte emission to assembly text since object emission is out of
// this repository's scope (spec.md §1).
package amd64

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

// Reserved host registers, following the teacher's convention of pinning a
// fixed register per concern rather than a general allocator: rdi carries
// the state pointer, rsi the guest memory base (the analogue of the
// teacher's R15 memory-base reservation), and a small free list of scratch
// registers services expression evaluation.
const (
	stateReg = "%rdi"
	memReg   = "%rsi"
)

var scratch = []string{"%rax", "%rcx", "%rdx", "%r8", "%r9", "%r10", "%r11"}

// Emitter renders a block table to AT&T assembly text.
type Emitter struct {
	cfg emitcommon.Config
	tab *itab.Table
	bt  *blocktable.Table
	reg *isa.Registry

	free  []string
	b     *strings.Builder
	ifSeq int // monotonic counter for StmtIf labels, keyed off pc+seq rather than pointer identity (spec.md §8 determinism)
}

// New constructs an amd64 Emitter.
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
		panic("amd64: scratch register exhausted")
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
	fmt.Fprintf(e.b, ".globl %s\n%s:\n", label, label)

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
// d.PC (spec.md §4.7 "Instruction retirement"), mirroring csource's
// writeInstretTick. In InstretSuspend mode, a retirement that reaches the
// target count stores the resume PC and transfers to the host-provided exit
// label instead of falling into the next instruction.
func (e *Emitter) writeInstretTick(d isa.Decoded) {
	l := e.cfg.Layout
	fmt.Fprintf(e.b, "    incq %d(%s)\n", l.InstretOffset, stateReg)
	if e.cfg.Instret != emitcommon.InstretSuspend {
		return
	}
	skip := fmt.Sprintf(".Lcont_%x", d.PC)
	fmt.Fprintf(e.b, "    mov %d(%s), %%rax\n", l.InstretOffset, stateReg)
	fmt.Fprintf(e.b, "    cmp %d(%s), %%rax\n", l.TargetInstretOffset, stateReg)
	fmt.Fprintf(e.b, "    jb %s\n", skip)
	fmt.Fprintf(e.b, "    movq $0x%x, %d(%s)\n", d.PC+uint64(d.Size), l.PCOffset, stateReg)
	fmt.Fprintf(e.b, "    call %s\n    ret\n", emitcommon.ExitLabel)
	fmt.Fprintf(e.b, "%s:\n", skip)
}

func (e *Emitter) writeInstruction(d isa.Decoded) {
	fmt.Fprintf(e.b, "    # pc=0x%08x %s\n", d.PC, e.reg.Disasm(d))
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
		fmt.Fprintf(e.b, "    test %s, %s\n    jz %s\n", cond, cond, elseLabel)
		e.release(cond)
		for _, st := range s.Then {
			e.resetFree()
			e.writeStmt(st, pc)
		}
		fmt.Fprintf(e.b, "    jmp %s\n%s:\n", endLabel, elseLabel)
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
		for i := len(args) - 1; i >= 0; i-- {
			fmt.Fprintf(e.b, "    push %s\n", args[i])
		}
		fmt.Fprintf(e.b, "    mov %s, %%rdi\n    call %s\n", stateReg, s.CallName)
		if len(args) > 0 {
			fmt.Fprintf(e.b, "    add $%d, %%rsp\n", len(args)*8)
		}
		for _, r := range args {
			e.release(r)
		}
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
		fmt.Fprintf(e.b, "    mov %s, %d(%s)\n", val, l.RegOffset(t.RegNum), stateReg)
	case rvir.TargetMem:
		addr := e.lowerAddr(t.MemBase, t.MemOffset)
		fmt.Fprintf(e.b, "    mov %s, (%s,%s)\n", val, memReg, addr)
		e.release(addr)
	case rvir.TargetPC:
		fmt.Fprintf(e.b, "    mov %s, %d(%s)\n", val, l.PCOffset, stateReg)
	case rvir.TargetExited:
		fmt.Fprintf(e.b, "    movb %sb, %d(%s)\n", val, l.ExitedOffset, stateReg)
	case rvir.TargetExitCode:
		fmt.Fprintf(e.b, "    movb %sb, %d(%s)\n", val, l.ExitCodeOffset, stateReg)
	case rvir.TargetTemp:
		fmt.Fprintf(e.b, "    mov %s, -%d(%%rsp)\n", val, (t.TempNum+1)*8)
	case rvir.TargetReservationAddr:
		fmt.Fprintf(e.b, "    mov %s, %d(%s)\n", val, l.ReservationAddrOffset, stateReg)
	case rvir.TargetReservationValid:
		fmt.Fprintf(e.b, "    movb %sb, %d(%s)\n", val, l.ReservationValidOffset, stateReg)
	case rvir.TargetCSR:
		fmt.Fprintf(e.b, "    # csr 0x%x write, unsupported in this backend\n", t.CSRNum)
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
		fmt.Fprintf(e.b, "    test %s, %s\n    jz .Lfall_%x\n", cond, cond, blk.LastPC)
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
		fmt.Fprintf(e.b, "    mov %s, %d(%s)\n    call rv_dispatch\n    ret\n", addr, e.cfg.Layout.PCOffset, stateReg)
		e.release(addr)
	case rvir.TermExit:
		e.b.WriteString("    call asm_exit\n    ret\n")
	case rvir.TermTrap:
		e.b.WriteString("    call asm_trap\n    ret\n")
	}
}

func (e *Emitter) jumpTo(target uint64) {
	resolved := target
	if r, ok := e.bt.AbsorbedToMerged[target]; ok {
		resolved = r
	}
	for _, blk := range e.bt.Blocks {
		if blk.Start == resolved {
			fmt.Fprintf(e.b, "    jmp %s\n", emitcommon.Label(resolved))
			return
		}
	}
	fmt.Fprintf(e.b, "    movq $0x%x, %d(%s)\n    call rv_dispatch\n    ret\n", target, e.cfg.Layout.PCOffset, stateReg)
}

func (e *Emitter) lowerAddr(base *rvir.Expr, offset int64) string {
	r := e.lower(base)
	if offset != 0 {
		fmt.Fprintf(e.b, "    add $%d, %s\n", offset, r)
	}
	return r
}
