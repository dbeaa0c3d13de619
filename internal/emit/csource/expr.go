package csource

import (
	"fmt"
	"strings"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

func (e *Emitter) renderExpr(expr *rvir.Expr) string {
	if expr == nil {
		return "0"
	}
	if v, ok := expr.Fold(); ok {
		return e.renderImm(v)
	}
	switch expr.Kind {
	case rvir.ExprImm:
		return e.renderImm(expr.ImmValue)
	case rvir.ExprReg:
		if expr.RegNum == 0 {
			return e.renderImm(0)
		}
		if e.cfg.IsHot(expr.RegNum) {
			return fmt.Sprintf("h%d", expr.RegNum)
		}
		if e.cfg.TraceEnabled {
			return fmt.Sprintf("trd_reg(st, %d, RV_REG(st, %d))", expr.RegNum, expr.RegNum)
		}
		return fmt.Sprintf("RV_REG(st, %d)", expr.RegNum)
	case rvir.ExprMem:
		addr := e.renderAddr(expr.Base, expr.Offset)
		width := int(expr.MemWidth) * 8
		raw := fmt.Sprintf("*(uint%d_t *)(mem + (%s))", width, addr)
		if e.cfg.TraceEnabled {
			raw = fmt.Sprintf("trd_mem_u%d(st, %s, (uint64_t)(%s))", width, addr, raw)
		}
		if expr.Signed {
			return fmt.Sprintf("((%s)(int%d_t)(%s))", e.regType, width, raw)
		}
		return fmt.Sprintf("((%s)(%s))", e.regType, raw)
	case rvir.ExprPC:
		return "RV_PC(st)"
	case rvir.ExprTemp:
		return fmt.Sprintf("t%d", expr.TempNum)
	case rvir.ExprCSR:
		switch expr.CSRNum {
		case rvir.PseudoCSRReservationAddr:
			return "RV_RESV_ADDR(st)"
		case rvir.PseudoCSRReservationValid:
			return "RV_RESV_VALID(st)"
		default:
			if e.cfg.TraceEnabled {
				return fmt.Sprintf("trd_csr(st, 0x%x, rv_csr_read(st, 0x%x))", expr.CSRNum, expr.CSRNum)
			}
			return fmt.Sprintf("rv_csr_read(st, 0x%x)", expr.CSRNum)
		}
	case rvir.ExprUnary:
		return e.renderUnary(expr)
	case rvir.ExprBinary:
		return e.renderBinary(expr)
	case rvir.ExprSelect:
		return fmt.Sprintf("((%s) ? (%s) : (%s))", e.renderExpr(expr.Cond), e.renderExpr(expr.Then), e.renderExpr(expr.Else))
	case rvir.ExprCall:
		var args []string
		for _, a := range expr.CallArgs {
			args = append(args, e.renderExpr(a))
		}
		return fmt.Sprintf("%s(%s)", expr.CallName, strings.Join(args, ", "))
	default:
		return "0 /* unsupported expression, lowered to zero */"
	}
}

func (e *Emitter) renderImm(v uint64) string {
	if e.tab.Width() == xlen.W64 {
		return fmt.Sprintf("0x%xULL", v)
	}
	return fmt.Sprintf("0x%xu", v)
}

func (e *Emitter) renderUnary(expr *rvir.Expr) string {
	o := e.renderExpr(expr.X)
	switch expr.UOp {
	case rvir.OpNeg:
		return fmt.Sprintf("(-(%s))", o)
	case rvir.OpNot:
		return fmt.Sprintf("(~(%s))", o)
	case rvir.OpClz:
		if e.tab.Width() == xlen.W64 {
			return fmt.Sprintf("((%s) ? __builtin_clzll(%s) : 64)", o, o)
		}
		return fmt.Sprintf("((%s) ? __builtin_clz(%s) : 32)", o, o)
	case rvir.OpCtz:
		if e.tab.Width() == xlen.W64 {
			return fmt.Sprintf("((%s) ? __builtin_ctzll(%s) : 64)", o, o)
		}
		return fmt.Sprintf("((%s) ? __builtin_ctz(%s) : 32)", o, o)
	case rvir.OpCpop:
		if e.tab.Width() == xlen.W64 {
			return fmt.Sprintf("((%s)__builtin_popcountll(%s))", e.regType, o)
		}
		return fmt.Sprintf("((%s)__builtin_popcount(%s))", e.regType, o)
	case rvir.OpSextB:
		return fmt.Sprintf("((%s)(int8_t)(%s))", e.regType, o)
	case rvir.OpSextH:
		return fmt.Sprintf("((%s)(int16_t)(%s))", e.regType, o)
	case rvir.OpZextH:
		return fmt.Sprintf("((%s)(uint16_t)(%s))", e.regType, o)
	case rvir.OpOrcB:
		return fmt.Sprintf("rv_orc_b(%s)", o)
	case rvir.OpRev8:
		if e.tab.Width() == xlen.W64 {
			return fmt.Sprintf("__builtin_bswap64(%s)", o)
		}
		return fmt.Sprintf("__builtin_bswap32(%s)", o)
	default:
		return "0 /* unsupported unary op, lowered to zero */"
	}
}

func (e *Emitter) renderBinary(expr *rvir.Expr) string {
	l := e.renderExpr(expr.L)
	r := e.renderExpr(expr.R)
	if expr.BOp == rvir.OpShAdd {
		return fmt.Sprintf("(((%s) << %d) + (%s))", l, expr.ShAmt, r)
	}
	if expr.Word {
		return e.renderWordBinary(expr, l, r)
	}
	switch expr.BOp {
	case rvir.OpAdd:
		return fmt.Sprintf("((%s) + (%s))", l, r)
	case rvir.OpSub:
		return fmt.Sprintf("((%s) - (%s))", l, r)
	case rvir.OpAnd:
		return fmt.Sprintf("((%s) & (%s))", l, r)
	case rvir.OpOr:
		return fmt.Sprintf("((%s) | (%s))", l, r)
	case rvir.OpXor:
		return fmt.Sprintf("((%s) ^ (%s))", l, r)
	case rvir.OpSll:
		return fmt.Sprintf("((%s) << (%s))", l, r)
	case rvir.OpSrl:
		return fmt.Sprintf("((%s) >> (%s))", l, r)
	case rvir.OpSra:
		return fmt.Sprintf("((%s)(((%s))(%s) >> (%s)))", e.regType, e.signedType, l, r)
	case rvir.OpMul:
		return fmt.Sprintf("((%s) * (%s))", l, r)
	case rvir.OpMulH:
		return e.wideMul(l, r, true, true)
	case rvir.OpMulHU:
		return e.wideMul(l, r, false, false)
	case rvir.OpMulHSU:
		return e.wideMul(l, r, true, false)
	case rvir.OpDiv:
		return fmt.Sprintf("rv_div(%s, %s)", l, r)
	case rvir.OpDivU:
		return fmt.Sprintf("rv_divu(%s, %s)", l, r)
	case rvir.OpRem:
		return fmt.Sprintf("rv_rem(%s, %s)", l, r)
	case rvir.OpRemU:
		return fmt.Sprintf("rv_remu(%s, %s)", l, r)
	case rvir.OpEq:
		return fmt.Sprintf("((%s) == (%s))", l, r)
	case rvir.OpNe:
		return fmt.Sprintf("((%s) != (%s))", l, r)
	case rvir.OpLt:
		return fmt.Sprintf("(((%s)(%s)) < ((%s)(%s)))", e.signedType, l, e.signedType, r)
	case rvir.OpLtU:
		return fmt.Sprintf("((%s) < (%s))", l, r)
	case rvir.OpGe:
		return fmt.Sprintf("(((%s)(%s)) >= ((%s)(%s)))", e.signedType, l, e.signedType, r)
	case rvir.OpGeU:
		return fmt.Sprintf("((%s) >= (%s))", l, r)
	case rvir.OpRol:
		return fmt.Sprintf("rv_rol(%s, %s)", l, r)
	case rvir.OpRor:
		return fmt.Sprintf("rv_ror(%s, %s)", l, r)
	case rvir.OpMax:
		return fmt.Sprintf("((((%s)(%s)) > ((%s)(%s))) ? (%s) : (%s))", e.signedType, l, e.signedType, r, l, r)
	case rvir.OpMaxU:
		return fmt.Sprintf("(((%s) > (%s)) ? (%s) : (%s))", l, r, l, r)
	case rvir.OpMin:
		return fmt.Sprintf("((((%s)(%s)) < ((%s)(%s))) ? (%s) : (%s))", e.signedType, l, e.signedType, r, l, r)
	case rvir.OpMinU:
		return fmt.Sprintf("(((%s) < (%s)) ? (%s) : (%s))", l, r, l, r)
	default:
		return "0 /* unsupported binary op, lowered to zero */"
	}
}

// renderWordBinary computes op at 32 bits and sign-extends the result to
// XLEN (spec.md §4.3's word-variant rule), a no-op re-mask when XLEN==32.
func (e *Emitter) renderWordBinary(expr *rvir.Expr, l, r string) string {
	var inner string
	switch expr.BOp {
	case rvir.OpAdd:
		inner = fmt.Sprintf("(uint32_t)(%s) + (uint32_t)(%s)", l, r)
	case rvir.OpSub:
		inner = fmt.Sprintf("(uint32_t)(%s) - (uint32_t)(%s)", l, r)
	case rvir.OpSll:
		inner = fmt.Sprintf("(uint32_t)(%s) << ((%s) & 0x1f)", l, r)
	case rvir.OpSrl:
		inner = fmt.Sprintf("(uint32_t)(%s) >> ((%s) & 0x1f)", l, r)
	case rvir.OpSra:
		inner = fmt.Sprintf("(int32_t)(%s) >> ((%s) & 0x1f)", l, r)
	default:
		inner = "0"
	}
	return fmt.Sprintf("((%s)(int64_t)(int32_t)(%s))", e.regType, inner)
}

func (e *Emitter) wideMul(l, r string, signedL, signedR bool) string {
	lt, rt := "uint64_t", "uint64_t"
	if signedL {
		lt = "int64_t"
	}
	if signedR {
		rt = "int64_t"
	}
	if e.tab.Width() == xlen.W64 {
		return fmt.Sprintf("rv_mulh64((%s)(%s), (%s)(%s))", lt, l, rt, r)
	}
	return fmt.Sprintf("(((%s)(%s) * (%s)(%s)) >> 32)", lt, l, rt, r)
}
