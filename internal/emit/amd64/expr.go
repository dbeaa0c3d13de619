package amd64

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

// lower renders expr into a freshly allocated scratch register and returns
// its name. Recursive descent with a small free list, mirroring the
// teacher's push/pop discipline in backend_x64.go but without spilling to
// the host stack: the IR's expression trees are shallow enough that seven
// scratch registers never run out in practice, so the free list panics
// loudly instead of silently mis-emitting a spill sequence.
func (e *Emitter) lower(expr *rvir.Expr) string {
	if expr == nil {
		return e.imm(0)
	}
	if v, ok := expr.Fold(); ok {
		return e.imm(v)
	}
	switch expr.Kind {
	case rvir.ExprImm:
		return e.imm(expr.ImmValue)
	case rvir.ExprReg:
		r := e.alloc()
		if expr.RegNum == 0 {
			fmt.Fprintf(e.b, "    xor %s, %s\n", r, r)
			return r
		}
		fmt.Fprintf(e.b, "    mov %d(%s), %s\n", e.cfg.Layout.RegOffset(expr.RegNum), stateReg, r)
		return r
	case rvir.ExprMem:
		addr := e.lowerAddr(expr.Base, expr.Offset)
		r := addr
		switch expr.MemWidth {
		case rvir.Width8:
			if expr.Signed {
				fmt.Fprintf(e.b, "    movsbq (%s,%s), %s\n", memReg, addr, r)
			} else {
				fmt.Fprintf(e.b, "    movzbq (%s,%s), %s\n", memReg, addr, r)
			}
		case rvir.Width16:
			if expr.Signed {
				fmt.Fprintf(e.b, "    movswq (%s,%s), %s\n", memReg, addr, r)
			} else {
				fmt.Fprintf(e.b, "    movzwq (%s,%s), %s\n", memReg, addr, r)
			}
		case rvir.Width32:
			if expr.Signed {
				fmt.Fprintf(e.b, "    movslq (%s,%s), %s\n", memReg, addr, r)
			} else {
				fmt.Fprintf(e.b, "    mov (%s,%s), %sd\n", memReg, addr, r)
			}
		default:
			fmt.Fprintf(e.b, "    mov (%s,%s), %s\n", memReg, addr, r)
		}
		return r
	case rvir.ExprPC:
		r := e.alloc()
		fmt.Fprintf(e.b, "    mov %d(%s), %s\n", e.cfg.Layout.PCOffset, stateReg, r)
		return r
	case rvir.ExprTemp:
		r := e.alloc()
		fmt.Fprintf(e.b, "    mov -%d(%%rsp), %s\n", (expr.TempNum+1)*8, r)
		return r
	case rvir.ExprCSR:
		r := e.alloc()
		switch expr.CSRNum {
		case rvir.PseudoCSRReservationAddr:
			fmt.Fprintf(e.b, "    mov %d(%s), %s\n", e.cfg.Layout.ReservationAddrOffset, stateReg, r)
		case rvir.PseudoCSRReservationValid:
			fmt.Fprintf(e.b, "    movzbq %d(%s), %s\n", e.cfg.Layout.ReservationValidOffset, stateReg, r)
		default:
			fmt.Fprintf(e.b, "    mov $0x%x, %%rdi\n    call rv_csr_read\n    mov %%rax, %s\n", expr.CSRNum, r)
		}
		return r
	case rvir.ExprUnary:
		return e.lowerUnary(expr)
	case rvir.ExprBinary:
		return e.lowerBinary(expr)
	case rvir.ExprSelect:
		cond := e.lower(expr.Cond)
		then := e.lower(expr.Then)
		els := e.lower(expr.Else)
		fmt.Fprintf(e.b, "    test %s, %s\n    cmovz %s, %s\n", cond, cond, els, then)
		e.release(cond)
		e.release(els)
		return then
	case rvir.ExprCall:
		for _, a := range expr.CallArgs {
			r := e.lower(a)
			fmt.Fprintf(e.b, "    push %s\n", r)
			e.release(r)
		}
		fmt.Fprintf(e.b, "    call %s\n", expr.CallName)
		if n := len(expr.CallArgs); n > 0 {
			fmt.Fprintf(e.b, "    add $%d, %%rsp\n", n*8)
		}
		r := e.alloc()
		fmt.Fprintf(e.b, "    mov %%rax, %s\n", r)
		return r
	default:
		return e.imm(0)
	}
}

func (e *Emitter) imm(v uint64) string {
	r := e.alloc()
	fmt.Fprintf(e.b, "    movabs $0x%x, %s\n", v, r)
	return r
}

func (e *Emitter) lowerUnary(expr *rvir.Expr) string {
	x := e.lower(expr.X)
	switch expr.UOp {
	case rvir.OpNeg:
		fmt.Fprintf(e.b, "    neg %s\n", x)
	case rvir.OpNot:
		fmt.Fprintf(e.b, "    not %s\n", x)
	case rvir.OpClz:
		if e.tab.Width() == xlen.W64 {
			fmt.Fprintf(e.b, "    bsr %s, %s\n    xor $63, %s\n", x, x, x)
		} else {
			fmt.Fprintf(e.b, "    bsr %s, %s\n    xor $31, %s\n", x, x, x)
		}
	case rvir.OpCtz:
		fmt.Fprintf(e.b, "    bsf %s, %s\n", x, x)
	case rvir.OpCpop:
		fmt.Fprintf(e.b, "    popcnt %s, %s\n", x, x)
	case rvir.OpSextB:
		fmt.Fprintf(e.b, "    movsbq %sb, %s\n", x, x)
	case rvir.OpSextH:
		fmt.Fprintf(e.b, "    movswq %sw, %s\n", x, x)
	case rvir.OpZextH:
		fmt.Fprintf(e.b, "    movzwq %sw, %s\n", x, x)
	case rvir.OpOrcB:
		fmt.Fprintf(e.b, "    mov %s, %%rdi\n    call rv_orc_b\n    mov %%rax, %s\n", x, x)
	case rvir.OpRev8:
		if e.tab.Width() == xlen.W64 {
			fmt.Fprintf(e.b, "    bswap %s\n", x)
		} else {
			fmt.Fprintf(e.b, "    bswap %sd\n", x)
		}
	}
	return x
}

func (e *Emitter) lowerBinary(expr *rvir.Expr) string {
	l := e.lower(expr.L)
	r := e.lower(expr.R)
	defer e.release(r)

	if expr.BOp == rvir.OpShAdd {
		fmt.Fprintf(e.b, "    shl $%d, %s\n    add %s, %s\n", expr.ShAmt, l, r, l)
		return l
	}

	switch expr.BOp {
	case rvir.OpAdd:
		fmt.Fprintf(e.b, "    add %s, %s\n", r, l)
	case rvir.OpSub:
		fmt.Fprintf(e.b, "    sub %s, %s\n", r, l)
	case rvir.OpAnd:
		fmt.Fprintf(e.b, "    and %s, %s\n", r, l)
	case rvir.OpOr:
		fmt.Fprintf(e.b, "    or %s, %s\n", r, l)
	case rvir.OpXor:
		fmt.Fprintf(e.b, "    xor %s, %s\n", r, l)
	case rvir.OpSll:
		fmt.Fprintf(e.b, "    mov %s, %%rcx\n    shl %%cl, %s\n", r, l)
	case rvir.OpSrl:
		fmt.Fprintf(e.b, "    mov %s, %%rcx\n    shr %%cl, %s\n", r, l)
	case rvir.OpSra:
		fmt.Fprintf(e.b, "    mov %s, %%rcx\n    sar %%cl, %s\n", r, l)
	case rvir.OpMul:
		fmt.Fprintf(e.b, "    imul %s, %s\n", r, l)
	case rvir.OpDiv:
		fmt.Fprintf(e.b, "    mov %s, %%rdi\n    mov %s, %%rsi\n    call rv_div\n    mov %%rax, %s\n", l, r, l)
	case rvir.OpDivU:
		fmt.Fprintf(e.b, "    mov %s, %%rdi\n    mov %s, %%rsi\n    call rv_divu\n    mov %%rax, %s\n", l, r, l)
	case rvir.OpRem:
		fmt.Fprintf(e.b, "    mov %s, %%rdi\n    mov %s, %%rsi\n    call rv_rem\n    mov %%rax, %s\n", l, r, l)
	case rvir.OpRemU:
		fmt.Fprintf(e.b, "    mov %s, %%rdi\n    mov %s, %%rsi\n    call rv_remu\n    mov %%rax, %s\n", l, r, l)
	case rvir.OpMulH, rvir.OpMulHU, rvir.OpMulHSU:
		fmt.Fprintf(e.b, "    mov %s, %%rdi\n    mov %s, %%rsi\n    call rv_mulh64\n    mov %%rax, %s\n", l, r, l)
	case rvir.OpEq:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    sete %%al\n    movzbq %%al, %s\n", r, l, l)
	case rvir.OpNe:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    setne %%al\n    movzbq %%al, %s\n", r, l, l)
	case rvir.OpLt:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    setl %%al\n    movzbq %%al, %s\n", r, l, l)
	case rvir.OpLtU:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    setb %%al\n    movzbq %%al, %s\n", r, l, l)
	case rvir.OpGe:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    setge %%al\n    movzbq %%al, %s\n", r, l, l)
	case rvir.OpGeU:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    setae %%al\n    movzbq %%al, %s\n", r, l, l)
	case rvir.OpRol:
		fmt.Fprintf(e.b, "    mov %s, %%rcx\n    rol %%cl, %s\n", r, l)
	case rvir.OpRor:
		fmt.Fprintf(e.b, "    mov %s, %%rcx\n    ror %%cl, %s\n", r, l)
	case rvir.OpMax:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cmovl %s, %s\n", r, l, r, l)
	case rvir.OpMaxU:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cmovb %s, %s\n", r, l, r, l)
	case rvir.OpMin:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cmovg %s, %s\n", r, l, r, l)
	case rvir.OpMinU:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cmova %s, %s\n", r, l, r, l)
	}
	if expr.Word {
		fmt.Fprintf(e.b, "    movslq %sd, %s\n", l, l)
	}
	return l
}
