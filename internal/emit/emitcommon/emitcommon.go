// Package emitcommon holds the lowering discipline shared by every emitter
// backend (spec.md §4.7): configuration, label naming, fall-through
// elision, dispatch-table construction, and the compact "all function
// entries" sentinel. Backend packages hold an emitcommon.Config and call
// these helpers, the way the teacher's backend_x64.go and
// backend_aarch64.go share the CodeGen fields from backend.go rather than
// duplicating them.
package emitcommon

import (
	"fmt"
	"sort"

	"github.com/rvrecomp/rvrecomp/internal/blocktable"
	"github.com/rvrecomp/rvrecomp/internal/cfganalysis"
	"github.com/rvrecomp/rvrecomp/internal/itab"
	"github.com/rvrecomp/rvrecomp/internal/state"
)

// InstretMode selects how retirement counting is emitted (spec.md §4.7).
type InstretMode int

const (
	InstretOff InstretMode = iota
	InstretCount
	InstretSuspend
)

// Config carries every emission choice that is independent of backend.
type Config struct {
	Layout         state.Layout
	HotRegs        []uint8 // guest register numbers pinned to host registers
	Instret        InstretMode
	TargetInstret  uint64
	HTIFAddr       uint64
	HTIFEnabled    bool
	TraceEnabled   bool
}

// IsHot reports whether guest register n is pinned to a host register.
func (c Config) IsHot(n uint8) bool {
	for _, r := range c.HotRegs {
		if r == n {
			return true
		}
	}
	return false
}

// Label renders the symbol name for the block starting at pc
// (spec.md §6: "B_<pchex>").
func Label(pc uint64) string {
	return fmt.Sprintf("B_%08x", pc)
}

// TrapLabel and ExitLabel name the host-provided re-entry points
// (spec.md §6).
const (
	TrapLabel = "asm_trap"
	ExitLabel = "asm_exit"
)

// DispatchEntry is one row of the emitted dispatch table.
type DispatchEntry struct {
	PC     uint64
	Symbol string // a block label, or TrapLabel if pc has no surviving block
}

// BuildDispatchTable enumerates every PC a caller might target — function
// entries, internal targets, and return sites — and resolves each through
// absorbed_to_merged to the block that actually carries its code
// (spec.md §6 "dispatch_table").
func BuildDispatchTable(tab *itab.Table, bt *blocktable.Table, analysis *cfganalysis.Result) []DispatchEntry {
	targets := map[uint64]bool{}
	for _, e := range analysis.FunctionEntries {
		targets[e] = true
	}
	for pc := range analysis.InternalTargets {
		targets[pc] = true
	}
	for pc := range analysis.ReturnSites {
		targets[pc] = true
	}

	blockStart := map[uint64]bool{}
	for _, b := range bt.Blocks {
		blockStart[b.Start] = true
	}

	var pcs []uint64
	for pc := range targets {
		pcs = append(pcs, pc)
	}
	sort.Slice(pcs, func(i, j int) bool { return pcs[i] < pcs[j] })

	out := make([]DispatchEntry, 0, len(pcs))
	for _, pc := range pcs {
		sym := TrapLabel
		if resolved, ok := bt.AbsorbedToMerged[pc]; ok {
			sym = Label(resolved)
		} else if blockStart[pc] {
			sym = Label(pc)
		}
		out = append(out, DispatchEntry{PC: pc, Symbol: sym})
	}
	return out
}

// AllFunctionEntriesSentinel is the shared, compact stand-in for "every
// function entry" fan-out (spec.md §9). No emitter refers to it: the
// emitters do not read successor sets, and every indirect jump is lowered
// to a single rv_dispatch lookup rather than a per-PC edge list.
const AllFunctionEntriesSentinel = "<all-entries>"

// ElideBranch reports whether a branch or jump whose target equals the
// fall-through PC needs no code (spec.md §8 boundary behavior).
func ElideBranch(target, fallThrough uint64, hasFall bool) bool {
	return hasFall && target == fallThrough
}
