package cfganalysis

import (
	"sort"

	"github.com/rvrecomp/rvrecomp/internal/isa"
	"github.com/rvrecomp/rvrecomp/internal/itab"
)

// maxDuffScan bounds the Duff-device forward scan (spec.md §4.4's indirect
// jump fallback) against pathologically long straight-line code.
const maxDuffScan = 64

// worklist is phase 3: a fixed-point iteration over every leader candidate's
// abstract register state, computing each instruction's successor set as
// it converges (spec.md §4.4).
func worklist(tab *itab.Table, reg *isa.Registry, r *Result, instructionCount int) {
	seeds := map[uint64]bool{}
	for _, e := range r.FunctionEntries {
		seeds[e] = true
	}
	for pc := range r.InternalTargets {
		seeds[pc] = true
	}

	states := map[uint64]RegisterState{}
	var queue []uint64
	queued := map[uint64]bool{}
	for pc := range seeds {
		states[pc] = newRegisterState()
		queue = append(queue, pc)
		queued[pc] = true
	}
	sort.Slice(queue, func(i, j int) bool { return queue[i] < queue[j] })

	maxIterations := maxIterationsMultiplier * instructionCount
	if maxIterations < maxIterationsMultiplier {
		maxIterations = maxIterationsMultiplier
	}

	for iterations := 0; len(queue) > 0 && iterations < maxIterations; iterations++ {
		pc := queue[0]
		queue = queue[1:]
		queued[pc] = false

		if !tab.IsValidPC(pc) {
			continue
		}
		d, ok := tab.Get(pc)
		if !ok {
			continue
		}
		in := states[pc]

		succ := computeSuccessors(tab, d, in, r)
		r.Successors[pc] = succ

		out := transfer(in, d, tab)

		propagate := func(target uint64) {
			if !tab.IsValidPC(target) {
				return
			}
			cur, has := states[target]
			if !has {
				cur = newRegisterState()
			}
			merged, changed := joinState(cur, out)
			states[target] = merged
			if (changed || !has) && !queued[target] {
				queue = append(queue, target)
				queued[target] = true
			}
		}

		switch succ.Kind {
		case SuccExplicit:
			for _, t := range succ.Exact {
				propagate(t)
			}
		case SuccAllEntries:
			for _, t := range r.FunctionEntries {
				propagate(t)
			}
			for _, t := range succ.Extra {
				propagate(t)
			}
		}
	}
}

// computeSuccessors implements spec.md §4.4's per-terminator successor
// policy directly against the decoded instruction, without invoking the
// lifter.
func computeSuccessors(tab *itab.Table, d isa.Decoded, state RegisterState, r *Result) SuccSet {
	fallthroughPC := d.PC + uint64(d.Size)
	hasFall := tab.IsValidPC(fallthroughPC)

	switch d.Op.Name {
	case "JAL":
		target := jumpTarget(d)
		if d.Args.Rd != 0 {
			return explicit(append([]uint64{target}, pick(fallthroughPC, hasFall)...)...)
		}
		return explicit(target)
	case "C.JAL":
		return explicit(append([]uint64{jumpTarget(d)}, pick(fallthroughPC, hasFall)...)...)
	case "C.J":
		return explicit(jumpTarget(d))
	case "BEQ", "BNE", "BLT", "BGE", "BLTU", "BGEU", "C.BEQZ", "C.BNEZ":
		return explicit(append([]uint64{jumpTarget(d)}, pick(fallthroughPC, hasFall)...)...)
	case "EBREAK", "C.EBREAK":
		return SuccSet{Kind: SuccExplicit}
	case "JALR", "C.JALR", "C.JR":
		return indirectSuccessors(tab, d, state, r, fallthroughPC, hasFall)
	default:
		return explicit(pick(fallthroughPC, hasFall)...)
	}
}

func indirectSuccessors(tab *itab.Table, d isa.Decoded, state RegisterState, r *Result, fallthroughPC uint64, hasFall bool) SuccSet {
	isReturn := (d.Op.Name == "JALR" && d.Args.Rd == 0 && d.Args.Rs1 == 1 && d.Args.Imm == 0) ||
		(d.Op.Name == "C.JR" && d.Args.Rs1 == 1)
	isCall := (d.Op.Name == "JALR" && d.Args.Rd != 0) || d.Op.Name == "C.JALR"

	if isCall {
		return SuccSet{Kind: SuccAllEntries, Extra: pick(fallthroughPC, hasFall)}
	}

	if isReturn {
		if entry, ok := binarySearchLE(r.FunctionEntries, d.PC); ok {
			if rets, ok := r.CallReturnMap[entry]; ok && len(rets) > 0 {
				return explicit(rets...)
			}
		}
		return explicit(allReturnSites(r)...)
	}

	// Plain indirect jump. A resolved base collapses to one concrete
	// target; otherwise fall back to a Duff-device scan plus the
	// enclosing function's own internal targets, and failing that mark
	// unresolved and fan out to every function entry.
	if base, ok := state[d.Args.Rs1].Single(); ok {
		target := (uint64(int64(base)+d.Args.Imm)) &^ 1
		return explicit(target)
	}

	candidates := duffScan(tab, fallthroughPC)
	candidates = append(candidates, enclosingInternalTargets(d.PC, r)...)
	if len(candidates) > 0 {
		return explicit(candidates...)
	}

	r.UnresolvedJumps[d.PC] = true
	return SuccSet{Kind: SuccAllEntries}
}

func explicit(targets ...uint64) SuccSet {
	return SuccSet{Kind: SuccExplicit, Exact: targets}
}

func pick(v uint64, has bool) []uint64 {
	if !has {
		return nil
	}
	return []uint64{v}
}

func allReturnSites(r *Result) []uint64 {
	out := make([]uint64, 0, len(r.ReturnSites))
	for pc := range r.ReturnSites {
		out = append(out, pc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// duffScan walks forward from start collecting each valid instruction's PC
// until (and including) the first control-flow instruction, approximating
// a compiler-emitted sequence of per-case absolute jumps.
func duffScan(tab *itab.Table, start uint64) []uint64 {
	var out []uint64
	pc := start
	for len(out) < maxDuffScan {
		d, ok := tab.Get(pc)
		if !ok {
			break
		}
		out = append(out, pc)
		if isControlFlowMnemonic(d.Op.Name) {
			break
		}
		pc += uint64(d.Size)
	}
	return out
}

func isControlFlowMnemonic(name string) bool {
	switch name {
	case "JAL", "C.JAL", "C.J", "JALR", "C.JALR", "C.JR",
		"BEQ", "BNE", "BLT", "BGE", "BLTU", "BGEU", "C.BEQZ", "C.BNEZ",
		"EBREAK", "C.EBREAK":
		return true
	default:
		return false
	}
}

// enclosingInternalTargets returns the internal targets address-ranged to
// the function containing pc: everything at or above pc's enclosing entry
// and below the next higher entry (or end of code, for the last function).
func enclosingInternalTargets(pc uint64, r *Result) []uint64 {
	entry, ok := binarySearchLE(r.FunctionEntries, pc)
	if !ok {
		return nil
	}
	nextEntry := ^uint64(0)
	for _, e := range r.FunctionEntries {
		if e > entry && e < nextEntry {
			nextEntry = e
		}
	}
	var out []uint64
	for t := range r.InternalTargets {
		if t >= entry && t < nextEntry {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// binarySearchLE returns the largest element of sorted that is <= pc.
func binarySearchLE(sorted []uint64, pc uint64) (uint64, bool) {
	if len(sorted) == 0 {
		return 0, false
	}
	i := sort.Search(len(sorted), func(i int) bool { return sorted[i] > pc })
	if i == 0 {
		return 0, false
	}
	return sorted[i-1], true
}
