// Package isa is the extension registry and decoder (spec.md §4.2): a set
// of extension modules, each owning a disjoint subset of RISC-V opcodes,
// dispatched to by raw instruction bits.
package isa

import (
	"fmt"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

// OpClass is a coarse instruction category reported through OpInfo. The
// block-layout optimizer and Disasm do not consult it.
type OpClass string

const (
	ClassALU    OpClass = "alu"
	ClassBranch OpClass = "branch"
	ClassLoad   OpClass = "load"
	ClassStore  OpClass = "store"
	ClassSystem OpClass = "system"
	ClassAtomic OpClass = "atomic"
)

// OpInfo describes one opcode for disassembly and heuristics.
type OpInfo struct {
	Name     string
	Class    OpClass
	SizeHint uint8
}

// OpID identifies a (extension, opcode) pair; spec.md §3 "Decoded
// instruction" calls this `opid`.
type OpID struct {
	Ext  string
	Name string
}

func (o OpID) String() string { return o.Ext + "." + o.Name }

// ArgShape names one of the RISC-V argument encodings (spec.md §3).
type ArgShape int

const (
	ArgNone ArgShape = iota
	ArgR
	ArgI
	ArgS
	ArgB
	ArgU
	ArgJ
	ArgCSR
	ArgAMO
)

// Args is the union of argument shapes a decoded instruction may carry.
type Args struct {
	Shape ArgShape
	Rd    uint8
	Rs1   uint8
	Rs2   uint8
	Imm   int64
	CSRNum uint16
	// AMO
	Funct5 uint8
	Aq     bool
	Rl     bool
}

// Decoded is one decoded guest instruction (spec.md §3).
type Decoded struct {
	Op   OpID
	PC   uint64
	Size uint8
	Args Args
	Raw  uint32
}

// Extension is the contract every decoder/lifter module implements
// (spec.md §4.2).
type Extension interface {
	Name() string
	// Decode claims a raw encoding or declines by returning ok=false.
	Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool)
	Lift(d Decoded, width xlen.Width) rvir.Instruction
	Disasm(d Decoded) string
	OpInfo(op OpID) (OpInfo, bool)
}

// Registry owns an ordered set of extensions; the first claimant wins
// (spec.md §4.2). The registry does not check for opcodes claimed by two
// extensions: Decode returns the first claim and never consults the rest.
type Registry struct {
	exts []Extension
}

// NewRegistry builds a registry that tries exts in the given order.
func NewRegistry(exts ...Extension) *Registry {
	return &Registry{exts: exts}
}

// Decode tries each extension in declared order and returns the first
// claim. raw is the full 16- or 32-bit encoding (compressed instructions
// are passed as their 16-bit value widened into raw's low bits); size
// must already be known (2 or 4) by the probe in internal/itab.
func (r *Registry) Decode(raw uint32, pc uint64, size uint8, width xlen.Width) (Decoded, bool) {
	for _, ext := range r.exts {
		if d, ok := ext.Decode(raw, pc, size, width); ok {
			return d, true
		}
	}
	return Decoded{}, false
}

// Lift dispatches to the owning extension by name. Panics if d.Op.Ext
// names an extension not present in the registry — a decoded instruction
// can only have come from one of this registry's own extensions.
func (r *Registry) Lift(d Decoded, width xlen.Width) rvir.Instruction {
	ext := r.find(d.Op.Ext)
	if ext == nil {
		panic(fmt.Sprintf("isa: Lift: unknown extension %q", d.Op.Ext))
	}
	return ext.Lift(d, width)
}

// Disasm renders d using its owning extension.
func (r *Registry) Disasm(d Decoded) string {
	ext := r.find(d.Op.Ext)
	if ext == nil {
		return fmt.Sprintf("<unknown %s>", d.Op)
	}
	return ext.Disasm(d)
}

// OpInfo looks up static metadata for an opcode.
func (r *Registry) OpInfo(op OpID) (OpInfo, bool) {
	ext := r.find(op.Ext)
	if ext == nil {
		return OpInfo{}, false
	}
	return ext.OpInfo(op)
}

func (r *Registry) find(name string) Extension {
	for _, ext := range r.exts {
		if ext.Name() == name {
			return ext
		}
	}
	return nil
}

// Standard builds the default extension set named in spec.md §1: base
// I, M, A, C, Zba, Zbb, Zbs, Zicsr. Order matters only in that every
// opcode must be claimed by exactly one extension; C is tried first since
// it operates on a disjoint 16-bit decode space and must not let a 32-bit
// extension see a raw value built from a 2-byte fetch.
func Standard() *Registry {
	return NewRegistry(
		NewCompressed(),
		NewBase(),
		NewM(),
		NewA(),
		NewZba(),
		NewZbb(),
		NewZbs(),
		NewZicsr(),
	)
}
