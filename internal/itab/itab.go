// Package itab is the instruction table (spec.md §4.1): a random-access
// view over a guest image's executable segments, keyed by guest PC, that
// caches decoded instruction records and exposes read-only bytes for
// constant loads and jump-table scanning.
package itab

import (
	"sort"

	"github.com/rvrecomp/rvrecomp/internal/guestimage"
	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

// slotKind discriminates one 2-byte-aligned table slot.
type slotKind uint8

const (
	slotEmpty       slotKind = iota // not covered by any executable segment
	slotInstruction                 // the start of a decoded instruction
	slotInsidePrior                 // the second half of a 4-byte instruction
	slotUndecodable                 // a valid, aligned slot no extension claimed
)

type slot struct {
	kind slotKind
	inst isa.Decoded
}

// Table is the immutable, eagerly decoded view of a guest image's code
// (spec.md §3 "Instruction table").
type Table struct {
	img   *guestimage.Image
	reg   *isa.Registry
	base  uint64
	end   uint64
	slots []slot

	undecodable int
	decoded     int
}

// Build scans every executable segment of img and decodes each slot
// eagerly, per spec.md §4.1's decode discipline: probe compressed-vs-full,
// ask the registry, and on decline mark the slot undecodable but resume
// scanning at pc+2 rather than skipping a potentially valid 4-byte
// instruction at pc+2.
func Build(img *guestimage.Image, reg *isa.Registry) *Table {
	base, end := codeRange(img)
	t := &Table{img: img, reg: reg, base: base, end: end}
	if end <= base {
		return t
	}
	t.slots = make([]slot, (end-base)/2)

	for _, seg := range img.Segments {
		if !seg.Executable() {
			continue
		}
		t.decodeSegment(seg)
	}
	return t
}

func codeRange(img *guestimage.Image) (uint64, uint64) {
	base, end := ^uint64(0), uint64(0)
	for _, seg := range img.Segments {
		if !seg.Executable() {
			continue
		}
		if seg.VirtualStart < base {
			base = seg.VirtualStart
		}
		if seg.VirtualEnd > end {
			end = seg.VirtualEnd
		}
	}
	if base > end {
		return 0, 0
	}
	return base, end
}

func (t *Table) slotIndex(pc uint64) (int, bool) {
	if pc < t.base || pc >= t.end || pc%2 != 0 {
		return 0, false
	}
	return int((pc - t.base) / 2), true
}

func (t *Table) decodeSegment(seg guestimage.Segment) {
	pc := seg.VirtualStart
	if pc%2 != 0 {
		pc++
	}
	for pc+1 < seg.VirtualEnd {
		idx, ok := t.slotIndex(pc)
		if !ok {
			break
		}
		if t.slots[idx].kind != slotEmpty {
			pc += 2
			continue
		}

		b0, ok0 := seg.ReadByte(pc)
		b1, ok1 := seg.ReadByte(pc + 1)
		if !ok0 || !ok1 {
			pc += 2
			continue
		}
		half := uint32(b0) | uint32(b1)<<8
		is32 := half&0x3 == 0x3

		if !is32 {
			d, ok := t.reg.Decode(half, pc, 2, t.img.Width)
			if !ok {
				t.slots[idx] = slot{kind: slotUndecodable}
				t.undecodable++
				pc += 2
				continue
			}
			t.slots[idx] = slot{kind: slotInstruction, inst: d}
			t.decoded++
			pc += 2
			continue
		}

		if pc+3 >= seg.VirtualEnd {
			t.slots[idx] = slot{kind: slotUndecodable}
			t.undecodable++
			pc += 2
			continue
		}
		b2, ok2 := seg.ReadByte(pc + 2)
		b3, ok3 := seg.ReadByte(pc + 3)
		if !ok2 || !ok3 {
			t.slots[idx] = slot{kind: slotUndecodable}
			t.undecodable++
			pc += 2
			continue
		}
		raw := half | uint32(b2)<<16 | uint32(b3)<<24
		d, ok := t.reg.Decode(raw, pc, 4, t.img.Width)
		if !ok {
			t.slots[idx] = slot{kind: slotUndecodable}
			t.undecodable++
			pc += 2
			continue
		}
		t.slots[idx] = slot{kind: slotInstruction, inst: d}
		t.decoded++
		if idx2, ok := t.slotIndex(pc + 2); ok {
			t.slots[idx2] = slot{kind: slotInsidePrior}
		}
		pc += 4
	}
}

// IsValidPC reports whether pc addresses a decoded instruction's first
// byte — aligned, in range, and not the interior half of a wider one.
func (t *Table) IsValidPC(pc uint64) bool {
	idx, ok := t.slotIndex(pc)
	if !ok {
		return false
	}
	return t.slots[idx].kind == slotInstruction
}

// InstructionSizeAt returns 2 or 4 for a decoded instruction, 0 otherwise
// (undecodable, interior, or out of range) — spec.md §4.1.
func (t *Table) InstructionSizeAt(pc uint64) uint8 {
	idx, ok := t.slotIndex(pc)
	if !ok {
		return 0
	}
	s := t.slots[idx]
	if s.kind != slotInstruction {
		return 0
	}
	return s.inst.Size
}

// Get returns the decoded instruction at pc, if any.
func (t *Table) Get(pc uint64) (isa.Decoded, bool) {
	idx, ok := t.slotIndex(pc)
	if !ok {
		return isa.Decoded{}, false
	}
	s := t.slots[idx]
	if s.kind != slotInstruction {
		return isa.Decoded{}, false
	}
	return s.inst, true
}

// ReadReadonly performs a little-endian unsigned load from a read-only
// segment; width must be 1, 2, 4, or 8. Returns false if addr (or any byte
// of the access) falls outside a readonly segment.
func (t *Table) ReadReadonly(addr uint64, width int) (uint64, bool) {
	seg, ok := t.img.SegmentAt(addr, guestimage.Segment.Readonly)
	if !ok {
		return 0, false
	}
	var v uint64
	for i := 0; i < width; i++ {
		b, ok := seg.ReadByte(addr + uint64(i))
		if !ok {
			return 0, false
		}
		v |= uint64(b) << (8 * uint(i))
	}
	return v, true
}

// EntryPoints returns the ELF entry point plus any declared exports,
// sorted and deduplicated.
func (t *Table) EntryPoints() []uint64 {
	set := map[uint64]struct{}{t.img.EntryPoint: {}}
	for _, addr := range t.img.Exports {
		set[addr] = struct{}{}
	}
	out := make([]uint64, 0, len(set))
	for pc := range set {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ROSegments returns every readonly, non-writable segment, for the
// analyzer's switch-table pointer sweep.
func (t *Table) ROSegments() []guestimage.Segment {
	var out []guestimage.Segment
	for _, seg := range t.img.Segments {
		if seg.Readonly() {
			out = append(out, seg)
		}
	}
	return out
}

// BaseAddress is the lowest address covered by any executable segment.
func (t *Table) BaseAddress() uint64 { return t.base }

// EndAddress is the exclusive upper bound of executable code.
func (t *Table) EndAddress() uint64 { return t.end }

// Width is the guest's register width.
func (t *Table) Width() xlen.Width { return t.img.Width }

// Stats summarizes the build for diagnostics.
type Stats struct {
	Decoded     int
	Undecodable int
}

// Stats reports how many slots decoded cleanly versus were marked
// undecodable during Build.
func (t *Table) Stats() Stats {
	return Stats{Decoded: t.decoded, Undecodable: t.undecodable}
}
