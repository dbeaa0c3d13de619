// Package cfganalysis recovers control flow from raw instruction bytes:
// function entries, internal branch targets, return sites, the successor
// graph, and the call-return map (spec.md §4.4). It consumes the
// instruction table and extension registry only — not the lifter — since
// every rule it needs is expressible at the decoded-mnemonic level.
package cfganalysis

import (
	"sort"

	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
	"github.com/rvrecomp/rvrecomp/internal/xlen"
)

// maxIterationsMultiplier bounds the worklist's total iterations at
// multiplier × number of instructions, a hard stop against pathological
// divergence (spec.md §4.4 phase 3).
const maxIterationsMultiplier = 20

// SuccKind discriminates a successor set's shape.
type SuccKind int

const (
	// SuccExplicit lists every successor PC precisely.
	SuccExplicit SuccKind = iota
	// SuccAllEntries is the compact "fan out to every function entry"
	// sentinel (spec.md §9 design note): Extra still lists any additional
	// concrete successor (e.g. an indirect call's fall-through PC).
	SuccAllEntries
)

// SuccSet is one instruction's successor set.
type SuccSet struct {
	Kind  SuccKind
	Exact []uint64 // valid when Kind == SuccExplicit
	Extra []uint64 // additional concrete targets alongside SuccAllEntries
}

// Result is everything the analyzer recovers (spec.md §4.4); the block
// table builder consumes it directly.
type Result struct {
	Width xlen.Width

	FunctionEntries []uint64 // sorted, deduplicated
	InternalTargets map[uint64]bool
	ReturnSites     map[uint64]bool

	CallReturnMap map[uint64][]uint64 // callee -> sorted return PCs

	Successors   map[uint64]SuccSet
	Predecessors map[uint64][]uint64

	UnresolvedJumps map[uint64]bool

	// Leaders is the union function entries ∪ internal targets ∪ return
	// sites ∪ every concrete successor the worklist recorded for a reached
	// instruction. A non-control-flow instruction records its fall-through
	// PC as a successor, so that PC is a leader as well; the set is not
	// limited to the successors of control-flow instructions.
	Leaders []uint64

	// BlockToFunction maps each leader to its enclosing function entry,
	// by address range, for the block table's function grouping.
	BlockToFunction map[uint64]uint64
}

// Analyze runs all five phases against tab using reg's mnemonic-level view
// of each decoded instruction.
func Analyze(tab *itab.Table, reg *isa.Registry) *Result {
	r := &Result{
		Width:           tab.Width(),
		InternalTargets: map[uint64]bool{},
		ReturnSites:     map[uint64]bool{},
		CallReturnMap:   map[uint64][]uint64{},
		Successors:      map[uint64]SuccSet{},
		Predecessors:    map[uint64][]uint64{},
		UnresolvedJumps: map[uint64]bool{},
		BlockToFunction: map[uint64]uint64{},
	}

	entrySet := map[uint64]bool{}
	for _, e := range tab.EntryPoints() {
		entrySet[e] = true
	}

	instructionCount := collectTargets(tab, entrySet, r.InternalTargets, r.ReturnSites)
	buildCallReturnMap(tab, r.CallReturnMap)

	for e := range entrySet {
		r.FunctionEntries = append(r.FunctionEntries, e)
	}
	sort.Slice(r.FunctionEntries, func(i, j int) bool { return r.FunctionEntries[i] < r.FunctionEntries[j] })

	scanReadOnlyForTargets(tab, r.FunctionEntries, r.InternalTargets)

	worklist(tab, reg, r, instructionCount)

	computeLeaders(r)
	computePredecessors(r)
	for _, pc := range r.Leaders {
		if fn, ok := binarySearchLE(r.FunctionEntries, pc); ok {
			r.BlockToFunction[pc] = fn
		}
	}

	return r
}

// collectTargets is phase 1: a single linear pass over the instruction
// table threading one narrow constant-propagation state (spec.md §4.4).
// It seeds function entries, return sites, and internal targets, and
// returns the number of decoded instructions visited (used to size the
// phase-3 iteration cap).
func collectTargets(tab *itab.Table, entries map[uint64]bool, internal, returns map[uint64]bool) int {
	state := newRegisterState()
	count := 0

	for pc := tab.BaseAddress(); pc < tab.EndAddress(); {
		size := tab.InstructionSizeAt(pc)
		if size == 0 {
			pc += 2
			continue
		}
		d, ok := tab.Get(pc)
		if !ok {
			pc += uint64(size)
			continue
		}
		count++

		switch d.Op.Name {
		case "JAL", "C.JAL":
			target := jumpTarget(d)
			if d.Args.Rd != 0 {
				entries[target] = true
				returns[d.PC+uint64(d.Size)] = true
			} else {
				internal[target] = true
			}
		case "C.J":
			internal[jumpTarget(d)] = true
		case "BEQ", "BNE", "BLT", "BGE", "BLTU", "BGEU", "C.BEQZ", "C.BNEZ":
			internal[jumpTarget(d)] = true
			internal[d.PC+uint64(d.Size)] = true
		case "JALR", "C.JALR", "C.JR":
			if base, ok := state[d.Args.Rs1].Single(); ok {
				target := (base + uint64(d.Args.Imm)) &^ 1
				entries[target] = true
			}
		}

		state = transfer(state, d, tab)
		pc += uint64(size)
	}
	return count
}

// buildCallReturnMap is phase 2: record, for every static call, the set of
// return PCs that target it.
func buildCallReturnMap(tab *itab.Table, callReturn map[uint64][]uint64) {
	for pc := tab.BaseAddress(); pc < tab.EndAddress(); {
		size := tab.InstructionSizeAt(pc)
		if size == 0 {
			pc += 2
			continue
		}
		d, ok := tab.Get(pc)
		if !ok {
			pc += uint64(size)
			continue
		}
		if (d.Op.Name == "JAL" && d.Args.Rd != 0) || d.Op.Name == "C.JAL" {
			callee := jumpTarget(d)
			callReturn[callee] = append(callReturn[callee], d.PC+uint64(d.Size))
		}
		pc += uint64(size)
	}
	for callee, rets := range callReturn {
		sort.Slice(rets, func(i, j int) bool { return rets[i] < rets[j] })
		callReturn[callee] = rets
	}
}

// scanReadOnlyForTargets sweeps read-only segments for XLEN-aligned words
// that land inside executable code, seeding them as internal targets
// (spec.md §4.4's switch-table scan).
func scanReadOnlyForTargets(tab *itab.Table, entries []uint64, internal map[uint64]bool) {
	width := 4
	if tab.Width() == xlen.W64 {
		width = 8
	}
	for _, seg := range tab.ROSegments() {
		start := seg.VirtualStart
		if rem := start % uint64(width); rem != 0 {
			start += uint64(width) - rem
		}
		for addr := start; addr+uint64(width) <= seg.VirtualEnd; addr += uint64(width) {
			v, ok := tab.ReadReadonly(addr, width)
			if !ok {
				continue
			}
			if v >= tab.BaseAddress() && v < tab.EndAddress() && tab.IsValidPC(v) {
				internal[v] = true
			}
		}
	}
}

func jumpTarget(d isa.Decoded) uint64 {
	return uint64(int64(d.PC) + d.Args.Imm)
}
