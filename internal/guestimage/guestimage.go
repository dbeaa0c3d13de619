// Package guestimage models the executable/read-only segments of a guest
// RISC-V ELF image. Full ELF parsing (section headers, relocations,
// dynamic linking) is an external collaborator per spec.md §1; this
// package only carries the shape the core (itab, cfganalysis) consumes:
// a base address, a byte slice per segment, and permission flags.
package guestimage

import (
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

// Flags describes segment permissions, mirroring ELF program-header flags.
type Flags uint8

const (
	FlagExec Flags = 1 << iota
	FlagWrite
	FlagRead
)

// Segment is one loadable memory region of the guest image.
type Segment struct {
	VirtualStart uint64
	VirtualEnd   uint64
	Data         []byte // file-backed bytes; len(Data) may be < VirtualEnd-VirtualStart for BSS
	Flags        Flags
}

// Executable reports whether code may be fetched from this segment.
func (s Segment) Executable() bool {
	return s.Flags&FlagExec != 0
}

// Readonly reports whether the segment is readable but neither writable
// nor executable — the analyzer treats such segments as candidate
// constant-load sources.
func (s Segment) Readonly() bool {
	return s.Flags&FlagRead != 0 && s.Flags&FlagWrite == 0 && s.Flags&FlagExec == 0
}

func (s Segment) contains(addr uint64) bool {
	return addr >= s.VirtualStart && addr < s.VirtualEnd
}

// Image is the guest executable as loaded into its virtual address space.
type Image struct {
	Width      xlen.Width
	EntryPoint uint64
	Segments   []Segment
	// Exports names additional function entry points declared by the
	// producing toolchain (e.g. a symbol table export list), beyond the
	// ELF entry point. Optional; may be nil.
	Exports map[string]uint64
}

// SegmentAt returns the segment containing addr that satisfies pred, if any.
func (img *Image) SegmentAt(addr uint64, pred func(Segment) bool) (Segment, bool) {
	for _, seg := range img.Segments {
		if seg.contains(addr) && (pred == nil || pred(seg)) {
			return seg, true
		}
	}
	return Segment{}, false
}

// ReadByte reads one byte at addr from this segment, respecting BSS
// (bytes beyond len(Data) read as zero within [VirtualStart, VirtualEnd)).
func (s Segment) ReadByte(addr uint64) (byte, bool) {
	if !s.contains(addr) {
		return 0, false
	}
	off := addr - s.VirtualStart
	if off >= uint64(len(s.Data)) {
		return 0, true // BSS
	}
	return s.Data[off], true
}
