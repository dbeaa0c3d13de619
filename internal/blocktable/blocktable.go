// Package blocktable builds basic blocks from the CFG analyzer's leader
// set and applies the three fixed-order layout optimizations (spec.md
// §4.5): merge, tail-duplicate, superblock formation, followed by a
// chain-following fix-up of absorbed-block mappings.
package blocktable

import (
	"sort"

	"github.com/rvrecomp/rvrecomp/internal/cfganalysis"
	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
	"github.com/rvrecomp/rvrecomp/internal/rvir"
)

// Default transform bounds (spec.md §4.5 / original's DEFAULT_* constants).
const (
	DefaultSuperblockDepth = 100
	DefaultTailDupSize     = 100
	DefaultTakenInlineSize = 50
)

// Range is a half-open [Start, End) byte range.
type Range struct {
	Start, End uint64
}

// BasicBlock is one contiguous run of instructions between leaders.
type BasicBlock struct {
	Start             uint64
	End               uint64 // exclusive
	InstructionCount  int
	LastPC            uint64
}

// Size returns the block's byte length.
func (b BasicBlock) Size() uint64 { return b.End - b.Start }

// Table is the block-level view over an instruction table: blocks plus
// every structure the optimizer passes and the emitters need.
type Table struct {
	tab *itab.Table
	reg *isa.Registry

	Blocks []BasicBlock

	AbsorbedToMerged  map[uint64]uint64
	BlockContinuations map[uint64][]Range
	TakenInlines      map[uint64]Range

	Predecessors  map[uint64][]uint64
	Successors    map[uint64]cfganalysis.SuccSet
	CallReturnMap map[uint64][]uint64
	BlockToFunction map[uint64]uint64
	UnresolvedJumps map[uint64]bool
}

// Linear builds one block per instruction, with no CFG analysis — used by
// tests and diagnostics that want a trivial baseline.
func Linear(tab *itab.Table) *Table {
	t := &Table{tab: tab, AbsorbedToMerged: map[uint64]uint64{}, BlockContinuations: map[uint64][]Range{}, TakenInlines: map[uint64]Range{}}
	pc := tab.BaseAddress()
	for pc < tab.EndAddress() {
		if !tab.IsValidPC(pc) {
			pc += 2
			continue
		}
		size := uint64(tab.InstructionSizeAt(pc))
		if size == 0 {
			pc += 2
			continue
		}
		t.Blocks = append(t.Blocks, BasicBlock{Start: pc, End: pc + size, InstructionCount: 1, LastPC: pc})
		pc += size
	}
	return t
}

// Build runs the CFG analyzer and constructs blocks from its leader set.
func Build(tab *itab.Table, reg *isa.Registry) *Table {
	analysis := cfganalysis.Analyze(tab, reg)

	t := &Table{
		tab:               tab,
		reg:               reg,
		AbsorbedToMerged:  map[uint64]uint64{},
		BlockContinuations: map[uint64][]Range{},
		TakenInlines:      map[uint64]Range{},
		Predecessors:      analysis.Predecessors,
		Successors:        analysis.Successors,
		CallReturnMap:     analysis.CallReturnMap,
		BlockToFunction:   analysis.BlockToFunction,
		UnresolvedJumps:   analysis.UnresolvedJumps,
	}
	t.createBlocksFromLeaders(analysis.Leaders)
	return t
}

func (t *Table) createBlocksFromLeaders(leaders []uint64) {
	sorted := append([]uint64(nil), leaders...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	end := t.tab.EndAddress()
	leaderSet := map[uint64]bool{}
	for _, l := range sorted {
		leaderSet[l] = true
	}

	for i, start := range sorted {
		if !t.tab.IsValidPC(start) {
			continue
		}
		maxEnd := end
		if i+1 < len(sorted) && sorted[i+1] < maxEnd {
			maxEnd = sorted[i+1]
		}

		pc := start
		count := 0
		lastPC := start
		for pc < maxEnd && pc < end {
			if !t.tab.IsValidPC(pc) {
				break
			}
			size := uint64(t.tab.InstructionSizeAt(pc))
			if size == 0 {
				break
			}
			count++
			lastPC = pc

			if t.terminatorOf(pc).IsControlFlow() {
				pc += size
				break
			}

			next := pc + size
			if leaderSet[next] && next != start {
				pc = next
				break
			}
			pc = next
		}

		if count > 0 && pc > start {
			t.Blocks = append(t.Blocks, BasicBlock{Start: start, End: pc, InstructionCount: count, LastPC: lastPC})
		}
	}
}

func (t *Table) terminatorOf(pc uint64) rvir.Terminator {
	d, ok := t.tab.Get(pc)
	if !ok {
		return rvir.Fall(0, false)
	}
	return t.reg.Lift(d, t.tab.Width()).Terminator
}

// Len returns the current block count.
func (t *Table) Len() int { return len(t.Blocks) }
