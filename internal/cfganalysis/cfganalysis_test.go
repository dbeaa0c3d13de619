package cfganalysis

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

func encBranch(f3, rs1, rs2 uint32, offset int64) uint32 {
	u := uint32(offset)
	b12 := (u >> 12) & 1
	b11 := (u >> 11) & 1
	b10_5 := (u >> 5) & 0x3f
	b4_1 := (u >> 1) & 0xf
	return b12<<31 | b10_5<<25 | rs2<<20 | rs1<<15 | f3<<12 | b4_1<<8 | b11<<7 | 0x63
}

const (
	opImm  = 0x13
	opJalr = 0x67
)

// buildCallReturnImage lays out a two-function program:
//
//	0x1000  jal x1, 8        -- call 0x1008, return site 0x1004
//	0x1004  addi x5, x5, 0   -- return site instruction
//	0x1008  addi x4, x4, 1   -- callee body
//	0x100c  jalr x0, x1, 0   -- ret
func buildCallReturnImage() *itab.Table {
	var code []byte
	code = append(code, le32(encJAL(1, 8))...)            // 0x1000: jal x1, +8
	code = append(code, le32(encI(opImm, 5, 0, 5, 0))...) // 0x1004: addi x5, x5, 0
	code = append(code, le32(encI(opImm, 4, 0, 4, 1))...) // 0x1008: addi x4, x4, 1
	code = append(code, le32(encI(opJalr, 0, 0, 1, 0))...) // 0x100c: jalr x0, x1, 0

	img := &guestimage.Image{
		Width:      xlen.W64,
		EntryPoint: 0x1000,
		Segments: []guestimage.Segment{
			{VirtualStart: 0x1000, VirtualEnd: 0x1000 + uint64(len(code)), Data: code, Flags: guestimage.FlagExec | guestimage.FlagRead},
		},
	}
	return itab.Build(img, isa.Standard())
}

func TestAnalyzeRecoversCallAndReturn(t *testing.T) {
	tab := buildCallReturnImage()
	r := Analyze(tab, isa.Standard())

	found := false
	for _, e := range r.FunctionEntries {
		if e == 0x1008 {
			found = true
		}
	}
	assert(t, found, "0x1008 should be recovered as a function entry (JAL call target), got %v", r.FunctionEntries)

	assert(t, r.ReturnSites[0x1004], "0x1004 should be a return site")

	rets, ok := r.CallReturnMap[0x1008]
	assert(t, ok && len(rets) == 1 && rets[0] == 0x1004, "call-return map for 0x1008 should list [0x1004], got %v ok=%v", rets, ok)

	retSucc, ok := r.Successors[0x100c]
	assert(t, ok, "the ret instruction at 0x100c should have a computed successor set")
	assert(t, retSucc.Kind == SuccExplicit && len(retSucc.Exact) == 1 && retSucc.Exact[0] == 0x1004,
		"ret should resolve to its call site's known return site [0x1004], got %+v", retSucc)
}

// buildBranchImage lays out a simple branch-diamond:
//
//	0x1000  beq x1, x2, +8   -- taken: 0x1008, fall: 0x1004
//	0x1004  addi x3, x3, 1
//	0x1008  addi x3, x3, 2
func buildBranchImage() *itab.Table {
	var code []byte
	code = append(code, le32(encBranch(0, 1, 2, 8))...)
	code = append(code, le32(encI(opImm, 3, 0, 3, 1))...)
	code = append(code, le32(encI(opImm, 3, 0, 3, 2))...)

	img := &guestimage.Image{
		Width:      xlen.W64,
		EntryPoint: 0x1000,
		Segments: []guestimage.Segment{
			{VirtualStart: 0x1000, VirtualEnd: 0x1000 + uint64(len(code)), Data: code, Flags: guestimage.FlagExec | guestimage.FlagRead},
		},
	}
	return itab.Build(img, isa.Standard())
}

func TestAnalyzeBranchHasBothSuccessors(t *testing.T) {
	tab := buildBranchImage()
	r := Analyze(tab, isa.Standard())

	assert(t, r.InternalTargets[0x1008], "the branch target 0x1008 should be an internal target")

	succ, ok := r.Successors[0x1000]
	assert(t, ok, "the branch at 0x1000 should have a computed successor set")
	assert(t, succ.Kind == SuccExplicit && len(succ.Exact) == 2, "a branch should have exactly 2 successors, got %+v", succ)

	hasTarget, hasFall := false, false
	for _, s := range succ.Exact {
		if s == 0x1008 {
			hasTarget = true
		}
		if s == 0x1004 {
			hasFall = true
		}
	}
	assert(t, hasTarget && hasFall, "branch successors should include both the taken target and the fall-through, got %+v", succ.Exact)

	leaderSet := map[uint64]bool{}
	for _, l := range r.Leaders {
		leaderSet[l] = true
	}
	assert(t, leaderSet[0x1000] && leaderSet[0x1004] && leaderSet[0x1008], "all three block starts should be leaders, got %v", r.Leaders)

	preds := r.Predecessors[0x1008]
	assert(t, len(preds) == 2 && preds[0] == 0x1000 && preds[1] == 0x1004, "0x1008's predecessors should be the branch at 0x1000 and the fall-through addi at 0x1004, got %v", preds)
}

func TestBlockToFunctionAssignsByRange(t *testing.T) {
	tab := buildCallReturnImage()
	r := Analyze(tab, isa.Standard())

	assert(t, r.BlockToFunction[0x1000] == 0x1000, "0x1000 belongs to the function starting at 0x1000")
	assert(t, r.BlockToFunction[0x1008] == 0x1008, "0x1008 belongs to the function starting at 0x1008")
}
