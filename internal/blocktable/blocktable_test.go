package blocktable

import (
	"fmt"
	"testing"

	"github.com/rvrecomp/rvrecomp/internal/guestimage"
	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
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

func encJAL(rd uint32, offset int64) uint32 {
	u := uint32(offset)
	imm20 := (u >> 20) & 1
	imm10_1 := (u >> 1) & 0x3ff
	imm11 := (u >> 11) & 1
	imm19_12 := (u >> 12) & 0xff
	return imm20<<31 | imm10_1<<21 | imm11<<20 | imm19_12<<12 | rd<<7 | 0x6F
}

const (
	opImm  = 0x13
	opJalr = 0x67
)

func imageFromCode(code []byte) *itab.Table {
	img := &guestimage.Image{
		Width:      xlen.W64,
		EntryPoint: 0x1000,
		Segments: []guestimage.Segment{
			{VirtualStart: 0x1000, VirtualEnd: 0x1000 + uint64(len(code)), Data: code, Flags: guestimage.FlagExec | guestimage.FlagRead},
		},
	}
	return itab.Build(img, isa.Standard())
}

func TestLinearOneBlockPerInstruction(t *testing.T) {
	var code []byte
	code = append(code, le32(encI(opImm, 1, 0, 0, 1))...)
	code = append(code, le32(encI(opImm, 2, 0, 0, 2))...)
	tab := imageFromCode(code)

	bt := Linear(tab)
	assert(t, bt.Len() == 2, "Linear should produce one block per instruction, got %d", bt.Len())
	assert(t, bt.Blocks[0].Start == 0x1000 && bt.Blocks[1].Start == 0x1004, "unexpected block starts: %+v", bt.Blocks)
}

// buildJumpChain lays out: jal x0,+8 (plain jump) ; dead addi ; addi (target) ; ret
func buildJumpChain() *itab.Table {
	var code []byte
	code = append(code, le32(encJAL(0, 8))...)             // 0x1000: jal x0, +8 (unconditional jump, not a call)
	code = append(code, le32(encI(opImm, 9, 0, 9, 9))...)  // 0x1004: dead code, never a leader
	code = append(code, le32(encI(opImm, 2, 0, 2, 2))...)  // 0x1008: addi x2, x2, 2 (jump target)
	code = append(code, le32(encI(opJalr, 0, 0, 1, 0))...) // 0x100c: ret
	return imageFromCode(code)
}

func TestBuildAndMergeAbsorbsJumpTarget(t *testing.T) {
	tab := buildJumpChain()
	bt := Build(tab, isa.Standard())

	merged := bt.MergeBlocks()
	assert(t, merged == 1, "expected exactly 1 block absorbed by MergeBlocks, got %d", merged)

	target, ok := bt.AbsorbedToMerged[0x1008]
	assert(t, ok && target == 0x1000, "0x1008 should be absorbed into the block starting at 0x1000, got target=0x%x ok=%v", target, ok)

	conts := bt.BlockContinuations[0x1000]
	assert(t, len(conts) == 1 && conts[0].Start == 0x1008, "block 0x1000's continuations should include the absorbed range at 0x1008, got %+v", conts)

	for _, b := range bt.Blocks {
		assert(t, b.Start != 0x1008, "0x1008 should no longer be a standalone block after merging, got %+v", bt.Blocks)
	}
}

func TestOptimizeNeverIncreasesBlockCount(t *testing.T) {
	tab := buildJumpChain()
	bt := Build(tab, isa.Standard())
	before := bt.Len()
	bt.Optimize()
	assert(t, bt.Len() <= before, "Optimize should never increase block count: before=%d after=%d", before, bt.Len())
}
