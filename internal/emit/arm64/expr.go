package arm64

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

// lower renders expr into a freshly allocated scratch register, mirroring
// amd64's recursive-descent approach adapted to arm64's three-operand
// instruction forms (no implicit accumulator, so most ops take l, r -> l).
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
			fmt.Fprintf(e.b, "    mov %s, #0\n", r)
			return r
		}
		fmt.Fprintf(e.b, "    ldr %s, [%s, #%d]\n", r, stateReg, e.cfg.Layout.RegOffset(expr.RegNum))
		return r
	case rvir.ExprMem:
		addr := e.lowerAddr(expr.Base, expr.Offset)
		switch expr.MemWidth {
		case rvir.Width8:
			if expr.Signed {
				fmt.Fprintf(e.b, "    ldrsb %s, [%s, %s]\n", addr, memReg, addr)
			} else {
				fmt.Fprintf(e.b, "    ldrb %sw, [%s, %s]\n", addr, memReg, addr)
			}
		case rvir.Width16:
			if expr.Signed {
				fmt.Fprintf(e.b, "    ldrsh %s, [%s, %s]\n", addr, memReg, addr)
			} else {
				fmt.Fprintf(e.b, "    ldrh %sw, [%s, %s]\n", addr, memReg, addr)
			}
		case rvir.Width32:
			if expr.Signed {
				fmt.Fprintf(e.b, "    ldrsw %s, [%s, %s]\n", addr, memReg, addr)
			} else {
				fmt.Fprintf(e.b, "    ldr %sw, [%s, %s]\n", addr, memReg, addr)
			}
		default:
			fmt.Fprintf(e.b, "    ldr %s, [%s, %s]\n", addr, memReg, addr)
		}
		return addr
	case rvir.ExprPC:
		r := e.alloc()
		fmt.Fprintf(e.b, "    ldr %s, [%s, #%d]\n", r, stateReg, e.cfg.Layout.PCOffset)
		return r
	case rvir.ExprTemp:
		r := e.alloc()
		fmt.Fprintf(e.b, "    ldr %s, [sp, #-%d]\n", r, (expr.TempNum+1)*8)
		return r
	case rvir.ExprCSR:
		r := e.alloc()
		switch expr.CSRNum {
		case rvir.PseudoCSRReservationAddr:
			fmt.Fprintf(e.b, "    ldr %s, [%s, #%d]\n", r, stateReg, e.cfg.Layout.ReservationAddrOffset)
		case rvir.PseudoCSRReservationValid:
			fmt.Fprintf(e.b, "    ldrb %sw, [%s, #%d]\n", r, stateReg, e.cfg.Layout.ReservationValidOffset)
		default:
			fmt.Fprintf(e.b, "    mov x0, %s\n    mov x1, #0x%x\n    bl rv_csr_read\n    mov %s, x0\n", stateReg, expr.CSRNum, r)
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
		fmt.Fprintf(e.b, "    cmp %s, #0\n    csel %s, %s, %s, ne\n", cond, then, then, els)
		e.release(cond)
		e.release(els)
		return then
	case rvir.ExprCall:
		var args []string
		for _, a := range expr.CallArgs {
			args = append(args, e.lower(a))
		}
		for i, r := range args {
			fmt.Fprintf(e.b, "    mov x%d, %s\n", i, r)
		}
		for _, r := range args {
			e.release(r)
		}
		fmt.Fprintf(e.b, "    bl %s\n", expr.CallName)
		r := e.alloc()
		fmt.Fprintf(e.b, "    mov %s, x0\n", r)
		return r
	default:
		return e.imm(0)
	}
}

func (e *Emitter) imm(v uint64) string {
	r := e.alloc()
	fmt.Fprintf(e.b, "    movz %s, #0x%x\n    movk %s, #0x%x, lsl #16\n    movk %s, #0x%x, lsl #32\n    movk %s, #0x%x, lsl #48\n",
		r, v&0xffff, r, (v>>16)&0xffff, r, (v>>32)&0xffff, r, (v>>48)&0xffff)
	return r
}

func (e *Emitter) lowerUnary(expr *rvir.Expr) string {
	x := e.lower(expr.X)
	switch expr.UOp {
	case rvir.OpNeg:
		fmt.Fprintf(e.b, "    neg %s, %s\n", x, x)
	case rvir.OpNot:
		fmt.Fprintf(e.b, "    mvn %s, %s\n", x, x)
	case rvir.OpClz:
		if e.tab.Width() == xlen.W64 {
			fmt.Fprintf(e.b, "    clz %s, %s\n", x, x)
		} else {
			fmt.Fprintf(e.b, "    clz %sw, %sw\n", x, x)
		}
	case rvir.OpCtz:
		fmt.Fprintf(e.b, "    rbit %s, %s\n    clz %s, %s\n", x, x, x, x)
	case rvir.OpCpop:
		fmt.Fprintf(e.b, "    fmov d0, %s\n    cnt v0.8b, v0.8b\n    addv b0, v0.8b\n    fmov %s, d0\n", x, x)
	case rvir.OpSextB:
		fmt.Fprintf(e.b, "    sxtb %s, %sw\n", x, x)
	case rvir.OpSextH:
		fmt.Fprintf(e.b, "    sxth %s, %sw\n", x, x)
	case rvir.OpZextH:
		fmt.Fprintf(e.b, "    uxth %s, %sw\n", x, x)
	case rvir.OpOrcB:
		fmt.Fprintf(e.b, "    mov x0, %s\n    bl rv_orc_b\n    mov %s, x0\n", x, x)
	case rvir.OpRev8:
		fmt.Fprintf(e.b, "    rev %s, %s\n", x, x)
	}
	return x
}

func (e *Emitter) lowerBinary(expr *rvir.Expr) string {
	l := e.lower(expr.L)
	r := e.lower(expr.R)
	defer e.release(r)

	if expr.BOp == rvir.OpShAdd {
		fmt.Fprintf(e.b, "    add %s, %s, %s, lsl #%d\n", l, l, r, expr.ShAmt)
		return l
	}

	switch expr.BOp {
	case rvir.OpAdd:
		fmt.Fprintf(e.b, "    add %s, %s, %s\n", l, l, r)
	case rvir.OpSub:
		fmt.Fprintf(e.b, "    sub %s, %s, %s\n", l, l, r)
	case rvir.OpAnd:
		fmt.Fprintf(e.b, "    and %s, %s, %s\n", l, l, r)
	case rvir.OpOr:
		fmt.Fprintf(e.b, "    orr %s, %s, %s\n", l, l, r)
	case rvir.OpXor:
		fmt.Fprintf(e.b, "    eor %s, %s, %s\n", l, l, r)
	case rvir.OpSll:
		fmt.Fprintf(e.b, "    lsl %s, %s, %s\n", l, l, r)
	case rvir.OpSrl:
		fmt.Fprintf(e.b, "    lsr %s, %s, %s\n", l, l, r)
	case rvir.OpSra:
		fmt.Fprintf(e.b, "    asr %s, %s, %s\n", l, l, r)
	case rvir.OpMul:
		fmt.Fprintf(e.b, "    mul %s, %s, %s\n", l, l, r)
	case rvir.OpDiv:
		fmt.Fprintf(e.b, "    mov x0, %s\n    mov x1, %s\n    bl rv_div\n    mov %s, x0\n", l, r, l)
	case rvir.OpDivU:
		fmt.Fprintf(e.b, "    mov x0, %s\n    mov x1, %s\n    bl rv_divu\n    mov %s, x0\n", l, r, l)
	case rvir.OpRem:
		fmt.Fprintf(e.b, "    mov x0, %s\n    mov x1, %s\n    bl rv_rem\n    mov %s, x0\n", l, r, l)
	case rvir.OpRemU:
		fmt.Fprintf(e.b, "    mov x0, %s\n    mov x1, %s\n    bl rv_remu\n    mov %s, x0\n", l, r, l)
	case rvir.OpMulH, rvir.OpMulHU, rvir.OpMulHSU:
		fmt.Fprintf(e.b, "    mov x0, %s\n    mov x1, %s\n    bl rv_mulh64\n    mov %s, x0\n", l, r, l)
	case rvir.OpEq:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cset %s, eq\n", l, r, l)
	case rvir.OpNe:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cset %s, ne\n", l, r, l)
	case rvir.OpLt:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cset %s, lt\n", l, r, l)
	case rvir.OpLtU:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cset %s, lo\n", l, r, l)
	case rvir.OpGe:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cset %s, ge\n", l, r, l)
	case rvir.OpGeU:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    cset %s, hs\n", l, r, l)
	case rvir.OpRol:
		fmt.Fprintf(e.b, "    neg %s, %s\n    ror %s, %s, %s\n", r, r, l, l, r)
	case rvir.OpRor:
		fmt.Fprintf(e.b, "    ror %s, %s, %s\n", l, l, r)
	case rvir.OpMax:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    csel %s, %s, %s, gt\n", l, r, l, l, r)
	case rvir.OpMaxU:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    csel %s, %s, %s, hi\n", l, r, l, l, r)
	case rvir.OpMin:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    csel %s, %s, %s, lt\n", l, r, l, l, r)
	case rvir.OpMinU:
		fmt.Fprintf(e.b, "    cmp %s, %s\n    csel %s, %s, %s, lo\n", l, r, l, l, r)
	}
	if expr.Word {
		fmt.Fprintf(e.b, "    sxtw %s, %sw\n", l, l)
	}
	return l
}
