// Package state computes the guest state record's fixed byte offsets
// (spec.md §3 "Guest state record", §6 "Guest state layout"). Every emitter
// backend and the host runtime must agree on this layout bit-for-bit, so it
// is factored into its own package rather than duplicated per backend.
package state

import "github.com/rvrecomp/rvrecomp/internal/xlen"

// RegFile names the guest general-register file size: 32 for the standard
// integer ABI, 16 for RV32E/RV64E.
type RegFile int

const (
	RegFile32 RegFile = 32
	RegFile16 RegFile = 16
)

// TracerArea describes the optional tracer hook's reserved byte span
// (spec.md §6); zero-length when tracing is disabled.
type TracerArea struct {
	Bytes int
}

// Layout is the computed set of fixed offsets for one (XLEN, register-file
// size, tracer) configuration.
type Layout struct {
	Width   xlen.Width
	Regs    RegFile
	Tracer  TracerArea

	RegsOffset             int // general registers[0..Regs), each Width.Bytes()
	PCOffset               int
	CycleOffset            int
	InstretOffset          int
	TargetInstretOffset    int
	ReservationAddrOffset  int
	ReservationValidOffset int
	ExitedOffset           int
	ExitCodeOffset         int
	TracerOffset           int
	TotalSize              int
}

// NewLayout computes a Layout for the given XLEN, register-file size, and
// tracer configuration. Fields are packed in spec.md §6's listed order,
// each aligned to its own natural size so emitted loads/stores never cross
// an alignment boundary the host ABI would otherwise guarantee.
func NewLayout(width xlen.Width, regs RegFile, tracer TracerArea) Layout {
	regWidth := width.Bytes()
	l := Layout{Width: width, Regs: regs, Tracer: tracer}

	off := 0
	l.RegsOffset = off
	off += int(regs) * regWidth

	l.PCOffset = off
	off += regWidth

	off = align(off, 8)
	l.CycleOffset = off
	off += 8

	l.InstretOffset = off
	off += 8

	l.TargetInstretOffset = off
	off += 8

	l.ReservationAddrOffset = align(off, regWidth)
	off = l.ReservationAddrOffset + regWidth

	l.ReservationValidOffset = off
	off += 1

	l.ExitedOffset = off
	off += 1

	l.ExitCodeOffset = off
	off += 1

	if tracer.Bytes > 0 {
		off = align(off, 8)
		l.TracerOffset = off
		off += tracer.Bytes
	} else {
		l.TracerOffset = -1
	}

	l.TotalSize = off
	return l
}

func align(off, to int) int {
	if to <= 1 {
		return off
	}
	if rem := off % to; rem != 0 {
		return off + (to - rem)
	}
	return off
}

// RegOffset returns the byte offset of guest register n (0 is always the
// hardwired zero register; callers must never emit a write to offset 0's
// register as anything other than a no-op).
func (l Layout) RegOffset(n uint8) int {
	return l.RegsOffset + int(n)*l.Width.Bytes()
}

// HasTracer reports whether this layout reserves a tracer area.
func (l Layout) HasTracer() bool { return l.Tracer.Bytes > 0 }
