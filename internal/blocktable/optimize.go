package blocktable

import (
	"sort"

	"github.com/rvrecomp/rvrecomp/internal/rvir"
)

// Optimize applies the three fixed-order passes — merge, tail-duplicate,
// superblock formation — then fixes up any stale absorbed-block chains
// left by successive absorptions (spec.md §4.5).
func (t *Table) Optimize() (merged, tailDuped, superblocked int) {
	merged = t.MergeBlocks()
	tailDuped = t.TailDuplicate(DefaultTailDupSize)
	superblocked = t.FormSuperblocks(DefaultSuperblockDepth)
	t.fixStaleMappings()
	return
}

func (t *Table) entryPointSet() map[uint64]bool {
	set := map[uint64]bool{}
	for _, e := range t.tab.EntryPoints() {
		set[e] = true
	}
	return set
}

func (t *Table) startToIndex() map[uint64]int {
	m := make(map[uint64]int, len(t.Blocks))
	for i, b := range t.Blocks {
		m[b.Start] = i
	}
	return m
}

// MergeBlocks absorbs a block into its sole predecessor when the
// predecessor's terminator falls or jumps unconditionally into it and it
// is not itself a function entry. Returns the number of blocks absorbed.
func (t *Table) MergeBlocks() int {
	if len(t.Blocks) == 0 {
		return 0
	}
	entries := t.entryPointSet()
	startToIdx := t.startToIndex()

	absorbed := map[uint64]bool{}
	for _, b := range t.Blocks {
		if absorbed[b.Start] {
			continue
		}
		if target, ok := t.mergeTarget(b, entries); ok {
			absorbed[target] = true
		}
	}
	if len(absorbed) == 0 {
		return 0
	}

	var merged []BasicBlock
	t.AbsorbedToMerged = map[uint64]uint64{}
	t.BlockContinuations = map[uint64][]Range{}

	for _, b := range t.Blocks {
		if absorbed[b.Start] {
			continue
		}
		count := b.InstructionCount
		lastPC := b.LastPC
		current := b
		var continuations []Range

		for {
			target, ok := t.mergeTarget(current, entries)
			if !ok || !absorbed[target] {
				break
			}
			idx, ok := startToIdx[target]
			if !ok {
				break
			}
			targetBlock := t.Blocks[idx]
			t.AbsorbedToMerged[target] = b.Start
			continuations = append(continuations, Range{targetBlock.Start, targetBlock.End})
			count += targetBlock.InstructionCount
			lastPC = targetBlock.LastPC
			current = targetBlock
		}

		if len(continuations) > 0 {
			t.BlockContinuations[b.Start] = continuations
		}
		merged = append(merged, BasicBlock{Start: b.Start, End: b.End, InstructionCount: count, LastPC: lastPC})
	}

	absorbedCount := len(t.Blocks) - len(merged)
	t.Blocks = merged
	return absorbedCount
}

func (t *Table) mergeTarget(b BasicBlock, entries map[uint64]bool) (uint64, bool) {
	term := t.terminatorOf(b.LastPC)
	var target uint64
	switch term.Kind {
	case rvir.TermFall:
		if !term.HasFallTarget {
			return 0, false
		}
		target = term.FallTarget
	case rvir.TermJump:
		target = term.Target
	default:
		return 0, false
	}
	if entries[target] {
		return 0, false
	}
	preds := t.Predecessors[target]
	if len(preds) != 1 || preds[0] != b.LastPC {
		return 0, false
	}
	return target, true
}

// TailDuplicate copies small join-point blocks reached only by
// unconditional jumps into each of their predecessors, eliminating the
// shared block in favor of duplicated continuations.
func (t *Table) TailDuplicate(maxDupSize int) int {
	if len(t.Blocks) == 0 {
		return 0
	}
	entries := t.entryPointSet()
	startToIdx := t.startToIndex()
	lastPCToStart := map[uint64]uint64{}
	for _, b := range t.Blocks {
		lastPCToStart[b.LastPC] = b.Start
	}

	toDuplicate := map[uint64]bool{}
	for _, b := range t.Blocks {
		if entries[b.Start] || b.InstructionCount > maxDupSize {
			continue
		}
		preds := t.Predecessors[b.Start]
		if len(preds) < 2 {
			continue
		}
		if t.terminatorOf(b.LastPC).Kind != rvir.TermFall {
			continue
		}
		allUnconditional := true
		for _, predPC := range preds {
			if t.terminatorOf(predPC).Kind != rvir.TermJump {
				allUnconditional = false
				break
			}
		}
		if allUnconditional {
			toDuplicate[b.Start] = true
		}
	}
	if len(toDuplicate) == 0 {
		return 0
	}

	for dupStart := range toDuplicate {
		idx, ok := startToIdx[dupStart]
		if !ok {
			continue
		}
		dupBlock := t.Blocks[idx]

		var valid []predCandidate
		for _, predPC := range t.Predecessors[dupStart] {
			predStart, ok := lastPCToStart[predPC]
			if !ok {
				continue
			}
			term := t.terminatorOf(predPC)
			switch term.Kind {
			case rvir.TermJump, rvir.TermBranch:
				valid = append(valid, predCandidate{predStart, true})
			case rvir.TermFall:
				valid = append(valid, predCandidate{predStart, false})
			}
		}
		sortCandidates(valid)
		if len(valid) == 0 {
			continue
		}

		for i, c := range valid {
			t.BlockContinuations[c.start] = append(t.BlockContinuations[c.start], Range{dupBlock.Start, dupBlock.End})
			if i == 0 {
				t.AbsorbedToMerged[dupStart] = c.start
			}
		}
	}

	var kept []BasicBlock
	for _, b := range t.Blocks {
		if !toDuplicate[b.Start] {
			kept = append(kept, b)
		}
	}
	eliminated := len(t.Blocks) - len(kept)
	t.Blocks = kept
	return eliminated
}

// predCandidate is a tail-duplication predecessor: explicit jumps/branches
// sort before fall-through predecessors, then by address for determinism.
type predCandidate struct {
	start    uint64
	explicit bool
}

func sortCandidates(c []predCandidate) {
	sort.Slice(c, func(i, j int) bool {
		if c[i].explicit != c[j].explicit {
			return c[i].explicit
		}
		return c[i].start < c[j].start
	})
}

// FormSuperblocks absorbs the fall-through chain after a branch's
// not-taken arm into the branch's own block, and records a short
// taken-arm inline when the taken target is small and itself unbranched.
func (t *Table) FormSuperblocks(maxDepth int) int {
	if len(t.Blocks) == 0 {
		return 0
	}
	entries := t.entryPointSet()
	startToIdx := t.startToIndex()

	mergeTargets := map[uint64]bool{}
	for _, v := range t.AbsorbedToMerged {
		mergeTargets[v] = true
	}

	absorbed := map[uint64]bool{}
	superblockHeads := map[uint64]bool{}
	chains := map[uint64][]uint64{}

	for _, b := range t.Blocks {
		if absorbed[b.Start] || mergeTargets[b.Start] {
			continue
		}
		term := t.terminatorOf(b.LastPC)
		if term.Kind != rvir.TermBranch {
			continue
		}
		takenPC := term.Target

		if !entries[takenPC] && !absorbed[takenPC] && !mergeTargets[takenPC] {
			if idx, ok := startToIdx[takenPC]; ok {
				preds := t.Predecessors[takenPC]
				if len(preds) == 1 {
					takenBlock := t.Blocks[idx]
					if takenBlock.InstructionCount <= DefaultTakenInlineSize &&
						t.terminatorOf(takenBlock.LastPC).Kind != rvir.TermBranch {
						t.TakenInlines[b.LastPC] = Range{takenBlock.Start, takenBlock.End}
					}
				}
			}
		}

		fallPC := b.End
		if _, hasFall := startToIdx[fallPC]; entries[fallPC] || !hasFall {
			continue
		}
		superblockHeads[b.Start] = true

		var chain []uint64
		current := fallPC
		for depth := 0; depth < maxDepth; depth++ {
			if absorbed[current] || entries[current] {
				break
			}
			idx, ok := startToIdx[current]
			if !ok {
				break
			}
			if mergeTargets[current] || superblockHeads[current] {
				break
			}
			if preds := t.Predecessors[current]; len(preds) > 1 {
				break
			}
			curBlock := t.Blocks[idx]
			chain = append(chain, current)
			absorbed[current] = true

			term := t.terminatorOf(curBlock.LastPC)
			switch term.Kind {
			case rvir.TermFall:
				if term.HasFallTarget {
					current = term.FallTarget
				} else {
					current = curBlock.End
				}
			case rvir.TermJump:
				current = term.Target
			default:
				depth = maxDepth
			}
		}
		if len(chain) > 0 {
			chains[b.Start] = chain
		}
	}

	if len(absorbed) == 0 {
		return 0
	}

	for head, chain := range chains {
		for _, absorbedStart := range chain {
			t.AbsorbedToMerged[absorbedStart] = head
			idx := startToIdx[absorbedStart]
			absorbedBlock := t.Blocks[idx]
			t.BlockContinuations[head] = append(t.BlockContinuations[head], Range{absorbedBlock.Start, absorbedBlock.End})
		}
	}

	var kept []BasicBlock
	for _, b := range t.Blocks {
		if !absorbed[b.Start] {
			kept = append(kept, b)
		}
	}
	absorbedCount := len(t.Blocks) - len(kept)
	t.Blocks = kept
	return absorbedCount
}

// fixStaleMappings follows absorbed_to_merged chains after several
// transform passes so that every mapping points to a block that still
// exists; broken chains (the chain's end was itself absorbed without a
// successor mapping) are dropped.
func (t *Table) fixStaleMappings() {
	remaining := map[uint64]bool{}
	for _, b := range t.Blocks {
		remaining[b.Start] = true
	}

	type update struct{ pc, target uint64 }
	var updates []update
	var removals []uint64

	for absorbedPC, targetPC := range t.AbsorbedToMerged {
		if remaining[targetPC] {
			continue
		}
		current := targetPC
		visited := map[uint64]bool{absorbedPC: true}
		found := false
		for !visited[current] {
			visited[current] = true
			if remaining[current] {
				updates = append(updates, update{absorbedPC, current})
				found = true
				break
			}
			next, ok := t.AbsorbedToMerged[current]
			if !ok {
				break
			}
			current = next
		}
		if !found {
			removals = append(removals, absorbedPC)
		}
	}

	for _, u := range updates {
		t.AbsorbedToMerged[u.pc] = u.target
		for head, ranges := range t.BlockContinuations {
			for i, rg := range ranges {
				if rg.Start == u.pc {
					t.BlockContinuations[head] = append(ranges[:i], ranges[i+1:]...)
					t.BlockContinuations[u.target] = append(t.BlockContinuations[u.target], rg)
					break
				}
			}
		}
	}
	for _, pc := range removals {
		delete(t.AbsorbedToMerged, pc)
	}
}
