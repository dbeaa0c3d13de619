package itab

import (
	"fmt"
	"testing"

	"github.com/rvrecomp/rvrecomp/internal/guestimage"
	"github.com/rvrecomp/rvrecomp/internal/isa"
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

// newTestImage lays out: addi x1,x0,5 ; addi x2,x0,7 ; <undecodable word>
// at 0x1000, followed by a readonly data word at 0x2000.
func newTestImage() *guestimage.Image {
	var code []byte
	code = append(code, le32(0x500093)...) // addi x1, x0, 5
	code = append(code, le32(0x700113)...) // addi x2, x0, 7
	code = append(code, le32(0xFFFFFFFF)...)

	data := le32(0xDEADBEEF)

	return &guestimage.Image{
		Width:      xlen.W64,
		EntryPoint: 0x1000,
		Segments: []guestimage.Segment{
			{VirtualStart: 0x1000, VirtualEnd: 0x1000 + uint64(len(code)), Data: code, Flags: guestimage.FlagExec | guestimage.FlagRead},
			{VirtualStart: 0x2000, VirtualEnd: 0x2000 + uint64(len(data)), Data: data, Flags: guestimage.FlagRead},
		},
		Exports: map[string]uint64{"helper": 0x1004},
	}
}

func TestBuildDecodesInstructionsEagerly(t *testing.T) {
	tab := Build(newTestImage(), isa.Standard())

	assert(t, tab.IsValidPC(0x1000), "0x1000 should be a valid instruction start")
	assert(t, tab.IsValidPC(0x1004), "0x1004 should be a valid instruction start")
	assert(t, !tab.IsValidPC(0x1002), "0x1002 is the interior half of the first instruction")
	assert(t, !tab.IsValidPC(0x1008), "0x1008 should be undecodable")

	d, ok := tab.Get(0x1000)
	assert(t, ok, "Get(0x1000) should succeed")
	assert(t, d.Op.Name == "ADDI" && d.Args.Imm == 5, "expected ADDI imm=5, got %s imm=%d", d.Op.Name, d.Args.Imm)

	assert(t, tab.InstructionSizeAt(0x1000) == 4, "expected size 4, got %d", tab.InstructionSizeAt(0x1000))
	assert(t, tab.InstructionSizeAt(0x1002) == 0, "interior slot should report size 0")
	assert(t, tab.InstructionSizeAt(0x1008) == 0, "undecodable slot should report size 0")

	stats := tab.Stats()
	assert(t, stats.Decoded == 2, "expected 2 decoded instructions, got %d", stats.Decoded)
	assert(t, stats.Undecodable == 2, "expected 2 undecodable slots (0x1008, and 0x100a after resuming at pc+2), got %d", stats.Undecodable)
}

func TestReadReadonly(t *testing.T) {
	tab := Build(newTestImage(), isa.Standard())

	v, ok := tab.ReadReadonly(0x2000, 4)
	assert(t, ok, "ReadReadonly at 0x2000 should succeed")
	assert(t, v == 0xDEADBEEF, "expected 0xDEADBEEF, got 0x%x", v)

	_, ok = tab.ReadReadonly(0x1000, 4)
	assert(t, !ok, "ReadReadonly should refuse an executable (not readonly) segment")

	_, ok = tab.ReadReadonly(0x3000, 4)
	assert(t, !ok, "ReadReadonly should refuse an address outside any segment")
}

func TestEntryPoints(t *testing.T) {
	tab := Build(newTestImage(), isa.Standard())
	entries := tab.EntryPoints()
	assert(t, len(entries) == 2, "expected 2 entry points, got %d", len(entries))
	assert(t, entries[0] == 0x1000 && entries[1] == 0x1004, "expected [0x1000, 0x1004] sorted, got %v", entries)
}

func TestBaseEndWidth(t *testing.T) {
	tab := Build(newTestImage(), isa.Standard())
	assert(t, tab.BaseAddress() == 0x1000, "expected base 0x1000, got 0x%x", tab.BaseAddress())
	assert(t, tab.EndAddress() == 0x100c, "expected end 0x100c, got 0x%x", tab.EndAddress())
	assert(t, tab.Width() == xlen.W64, "expected width W64, got %v", tab.Width())
}

func TestEmptyImageHasNoCodeRange(t *testing.T) {
	img := &guestimage.Image{Width: xlen.W32}
	tab := Build(img, isa.Standard())
	assert(t, tab.BaseAddress() == 0 && tab.EndAddress() == 0, "an image with no executable segments should have an empty code range")
	assert(t, !tab.IsValidPC(0), "no PC should be valid in an empty table")
}
