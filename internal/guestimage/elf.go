package guestimage

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

// Load reads a little-endian RISC-V ELF32 or ELF64 image and returns its
// PT_LOAD segments. This is deliberately not a general-purpose ELF reader:
// it understands just enough of the program header table to recover the
// bytes and permissions the core pipeline needs, per spec.md §1 (ELF
// parsing proper is an external collaborator). Section headers, the
// dynamic segment, and relocations are not interpreted.
func Load(r io.ReaderAt) (*Image, error) {
	var ident [16]byte
	if _, err := r.ReadAt(ident[:], 0); err != nil {
		return nil, fmt.Errorf("guestimage: read ELF identification: %w", err)
	}
	if ident[0] != 0x7f || ident[1] != 'E' || ident[2] != 'L' || ident[3] != 'F' {
		return nil, fmt.Errorf("guestimage: not an ELF image")
	}
	if ident[5] != 1 {
		return nil, fmt.Errorf("guestimage: only little-endian images are supported")
	}

	var width xlen.Width
	switch ident[4] {
	case 1:
		width = xlen.W32
	case 2:
		width = xlen.W64
	default:
		return nil, fmt.Errorf("guestimage: unknown ELF class %d", ident[4])
	}

	img := &Image{Width: width}

	if width == xlen.W32 {
		var hdr elf32Header
		if err := readStruct(r, 0, &hdr); err != nil {
			return nil, err
		}
		img.EntryPoint = uint64(hdr.Entry)
		for i := 0; i < int(hdr.Phnum); i++ {
			off := int64(hdr.Phoff) + int64(i)*int64(hdr.Phentsize)
			var ph elf32ProgHeader
			if err := readStruct(r, off, &ph); err != nil {
				return nil, err
			}
			if ph.Type != ptLoad {
				continue
			}
			seg, err := loadSegment(r, int64(ph.Offset), int64(ph.Filesz), uint64(ph.Vaddr), uint64(ph.Memsz), ph.Flags)
			if err != nil {
				return nil, err
			}
			img.Segments = append(img.Segments, seg)
		}
		return img, nil
	}

	var hdr elf64Header
	if err := readStruct(r, 0, &hdr); err != nil {
		return nil, err
	}
	img.EntryPoint = hdr.Entry
	for i := 0; i < int(hdr.Phnum); i++ {
		off := int64(hdr.Phoff) + int64(i)*int64(hdr.Phentsize)
		var ph elf64ProgHeader
		if err := readStruct(r, off, &ph); err != nil {
			return nil, err
		}
		if ph.Type != ptLoad {
			continue
		}
		seg, err := loadSegment(r, int64(ph.Offset), int64(ph.Filesz), ph.Vaddr, ph.Memsz, ph.Flags)
		if err != nil {
			return nil, err
		}
		img.Segments = append(img.Segments, seg)
	}
	return img, nil
}

const ptLoad = 1

const (
	pfExec  = 1
	pfWrite = 2
	pfRead  = 4
)

func loadSegment(r io.ReaderAt, fileOff, fileSz int64, vaddr, memsz uint64, flags uint32) (Segment, error) {
	data := make([]byte, fileSz)
	if fileSz > 0 {
		if _, err := r.ReadAt(data, fileOff); err != nil && err != io.EOF {
			return Segment{}, fmt.Errorf("guestimage: read PT_LOAD segment: %w", err)
		}
	}
	var f Flags
	if flags&pfExec != 0 {
		f |= FlagExec
	}
	if flags&pfWrite != 0 {
		f |= FlagWrite
	}
	if flags&pfRead != 0 {
		f |= FlagRead
	}
	return Segment{
		VirtualStart: vaddr,
		VirtualEnd:   vaddr + memsz,
		Data:         data,
		Flags:        f,
	}, nil
}

func readStruct(r io.ReaderAt, off int64, v any) error {
	sz := binary.Size(v)
	buf := make([]byte, sz)
	if _, err := r.ReadAt(buf, off); err != nil {
		return fmt.Errorf("guestimage: read header at %#x: %w", off, err)
	}
	return binary.Read(newSliceReader(buf), binary.LittleEndian, v)
}

type sliceReader struct {
	b []byte
}

func newSliceReader(b []byte) *sliceReader { return &sliceReader{b: b} }

func (s *sliceReader) Read(p []byte) (int, error) {
	n := copy(p, s.b)
	s.b = s.b[n:]
	if n == 0 {
		return 0, io.EOF
	}
	return n, nil
}

type elf32Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint32
	Phoff     uint32
	Shoff     uint32
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elf32ProgHeader struct {
	Type   uint32
	Offset uint32
	Vaddr  uint32
	Paddr  uint32
	Filesz uint32
	Memsz  uint32
	Flags  uint32
	Align  uint32
}

type elf64Header struct {
	Ident     [16]byte
	Type      uint16
	Machine   uint16
	Version   uint32
	Entry     uint64
	Phoff     uint64
	Shoff     uint64
	Flags     uint32
	Ehsize    uint16
	Phentsize uint16
	Phnum     uint16
	Shentsize uint16
	Shnum     uint16
	Shstrndx  uint16
}

type elf64ProgHeader struct {
	Type   uint32
	Flags  uint32
	Offset uint64
	Vaddr  uint64
	Paddr  uint64
	Filesz uint64
	Memsz  uint64
	Align  uint64
}
