package state

import (
	"fmt"
	"testing"

	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func TestLayoutRegOffsets(t *testing.T) {
	l := NewLayout(xlen.W64, RegFile32, TracerArea{})
	assert(t, l.RegOffset(0) == 0, "register 0 should sit at offset 0, got %d", l.RegOffset(0))
	assert(t, l.RegOffset(1) == 8, "register 1 should sit at offset 8 on rv64, got %d", l.RegOffset(1))
	assert(t, l.RegOffset(31) == 31*8, "register 31 should sit at offset %d, got %d", 31*8, l.RegOffset(31))
	assert(t, l.PCOffset == 32*8, "PC should immediately follow the 32 registers, got %d", l.PCOffset)
}

func TestLayoutNoOverlap(t *testing.T) {
	l := NewLayout(xlen.W64, RegFile32, TracerArea{Bytes: 64})
	offsets := []int{l.RegsOffset, l.PCOffset, l.CycleOffset, l.InstretOffset, l.TargetInstretOffset,
		l.ReservationAddrOffset, l.ReservationValidOffset, l.ExitedOffset, l.ExitCodeOffset, l.TracerOffset}
	for i, off := range offsets {
		assert(t, off >= 0, "offset %d should be non-negative, got %d", i, off)
		assert(t, off < l.TotalSize, "offset %d (%d) should be within TotalSize (%d)", i, off, l.TotalSize)
	}
	// every field must start no earlier than the previous field's end;
	// since fields are listed in packing order this is equivalent to a
	// strictly non-decreasing offset sequence (aside from TracerOffset's
	// own internal alignment padding, already reflected above).
	for i := 1; i < len(offsets)-1; i++ {
		assert(t, offsets[i] >= offsets[i-1], "field %d should not start before field %d: %v", i, i-1, offsets)
	}
}

func TestLayoutTracerOffsetDisabled(t *testing.T) {
	l := NewLayout(xlen.W32, RegFile32, TracerArea{})
	assert(t, !l.HasTracer(), "a zero-byte tracer area should report HasTracer()==false")
	assert(t, l.TracerOffset == -1, "disabled tracer should have sentinel offset -1, got %d", l.TracerOffset)
}

func TestLayoutTracerOffsetEnabled(t *testing.T) {
	l := NewLayout(xlen.W32, RegFile32, TracerArea{Bytes: 32})
	assert(t, l.HasTracer(), "a non-zero tracer area should report HasTracer()==true")
	assert(t, l.TracerOffset >= 0, "enabled tracer should have a non-negative offset, got %d", l.TracerOffset)
	assert(t, l.TotalSize == l.TracerOffset+32, "TotalSize should include the tracer area, got %d vs %d+32", l.TotalSize, l.TracerOffset)
}

func TestLayoutRV32SmallerThanRV64(t *testing.T) {
	l32 := NewLayout(xlen.W32, RegFile32, TracerArea{})
	l64 := NewLayout(xlen.W64, RegFile32, TracerArea{})
	assert(t, l32.TotalSize < l64.TotalSize, "an rv32 layout should be smaller than the equivalent rv64 layout: %d vs %d", l32.TotalSize, l64.TotalSize)
}

func TestRegFile16Smaller(t *testing.T) {
	l32 := NewLayout(xlen.W64, RegFile32, TracerArea{})
	l16 := NewLayout(xlen.W64, RegFile16, TracerArea{})
	assert(t, l16.TotalSize < l32.TotalSize, "a 16-register layout should be smaller than a 32-register layout: %d vs %d", l16.TotalSize, l32.TotalSize)
}
