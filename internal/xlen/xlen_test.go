package xlen

import (
	"fmt"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func TestWidthBasics(t *testing.T) {
	assert(t, W32.Bytes() == 4, "W32 should be 4 bytes")
	assert(t, W64.Bytes() == 8, "W64 should be 8 bytes")
	assert(t, W32.Valid(), "W32 should be valid")
	assert(t, W64.Valid(), "W64 should be valid")
	assert(t, !Width(16).Valid(), "16 should not be a valid XLEN")
	assert(t, W32.String() == "rv32", "unexpected String() for W32: %s", W32.String())
	assert(t, W64.String() == "rv64", "unexpected String() for W64: %s", W64.String())
}

func TestMask(t *testing.T) {
	assert(t, W32.Mask(0xFFFFFFFF00000001) == 1, "W32.Mask should truncate to low 32 bits")
	assert(t, W64.Mask(0xFFFFFFFF00000001) == 0xFFFFFFFF00000001, "W64.Mask should be identity")
}

func TestSignExtendWord(t *testing.T) {
	assert(t, SignExtendWord(0x00000001) == 1, "positive word should sign-extend to itself")
	assert(t, SignExtendWord(0xFFFFFFFF) == 0xFFFFFFFFFFFFFFFF, "all-ones word should sign-extend to all-ones")
	assert(t, SignExtendWord(0x80000000) == 0xFFFFFFFF80000000, "min negative word should sign-extend correctly")
}

func TestSignExtend(t *testing.T) {
	assert(t, SignExtend(0x7FF, 12) == 0x7FF, "positive 12-bit value should sign-extend to itself")
	assert(t, SignExtend(0xFFF, 12) == 0xFFFFFFFFFFFFFFFF, "negative 12-bit value (-1) should sign-extend to all-ones")
	assert(t, SignExtend(0x800, 12) == 0xFFFFFFFFFFFFF800, "min negative 12-bit value should sign-extend correctly")
}
