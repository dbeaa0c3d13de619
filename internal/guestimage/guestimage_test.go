package guestimage

import (
	"fmt"
	"testing"
)

func assert(t *testing.T, cond bool, format string, args ...any) {
	if !cond {
		t.Fatalf(fmt.Sprintf("%v %s", cond, format), args...)
	}
}

func TestSegmentFlags(t *testing.T) {
	rx := Segment{VirtualStart: 0x1000, VirtualEnd: 0x2000, Flags: FlagExec | FlagRead}
	rw := Segment{VirtualStart: 0x2000, VirtualEnd: 0x3000, Flags: FlagRead | FlagWrite}
	ro := Segment{VirtualStart: 0x3000, VirtualEnd: 0x4000, Flags: FlagRead}

	assert(t, rx.Executable(), "rx segment should be executable")
	assert(t, !rw.Executable(), "rw segment should not be executable")
	assert(t, !rx.Readonly(), "rx segment is read+exec, not readonly by this definition's exec check")
	assert(t, !rw.Readonly(), "rw segment should not be readonly")
	assert(t, ro.Readonly(), "ro segment should be readonly")
}

func TestSegmentReadByteBSS(t *testing.T) {
	seg := Segment{VirtualStart: 0x1000, VirtualEnd: 0x1010, Data: []byte{1, 2, 3, 4}, Flags: FlagRead | FlagWrite}

	b, ok := seg.ReadByte(0x1000)
	assert(t, ok && b == 1, "expected first byte 1, got %d ok=%v", b, ok)

	b, ok = seg.ReadByte(0x1003)
	assert(t, ok && b == 4, "expected fourth byte 4, got %d ok=%v", b, ok)

	b, ok = seg.ReadByte(0x1004)
	assert(t, ok && b == 0, "BSS byte beyond file data should read as zero, got %d ok=%v", b, ok)

	_, ok = seg.ReadByte(0x1010)
	assert(t, !ok, "reading at the segment's exclusive end should fail")

	_, ok = seg.ReadByte(0x0FFF)
	assert(t, !ok, "reading before the segment start should fail")
}

func TestImageSegmentAt(t *testing.T) {
	img := &Image{
		Segments: []Segment{
			{VirtualStart: 0x1000, VirtualEnd: 0x2000, Flags: FlagExec | FlagRead},
			{VirtualStart: 0x2000, VirtualEnd: 0x3000, Flags: FlagRead},
		},
	}

	seg, ok := img.SegmentAt(0x1500, func(s Segment) bool { return s.Executable() })
	assert(t, ok && seg.VirtualStart == 0x1000, "should find the executable segment")

	_, ok = img.SegmentAt(0x2500, func(s Segment) bool { return s.Executable() })
	assert(t, !ok, "the second segment is not executable, SegmentAt should decline it")

	seg, ok = img.SegmentAt(0x2500, func(s Segment) bool { return s.Readonly() })
	assert(t, ok && seg.VirtualStart == 0x2000, "should find the readonly segment")

	_, ok = img.SegmentAt(0x5000, nil)
	assert(t, !ok, "an address outside every segment should not be found")
}
