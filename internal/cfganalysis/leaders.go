package cfganalysis

import "sort"

// computeLeaders is phase 4: the leader set is every function entry,
// internal target, return site, and every concrete successor PC the
// worklist recorded (spec.md §4.4).
func computeLeaders(r *Result) {
	set := map[uint64]bool{}
	for _, e := range r.FunctionEntries {
		set[e] = true
	}
	for pc := range r.InternalTargets {
		set[pc] = true
	}
	for pc := range r.ReturnSites {
		set[pc] = true
	}
	for _, succ := range r.Successors {
		for _, t := range succ.Exact {
			set[t] = true
		}
		for _, t := range succ.Extra {
			set[t] = true
		}
	}

	r.Leaders = make([]uint64, 0, len(set))
	for pc := range set {
		r.Leaders = append(r.Leaders, pc)
	}
	sort.Slice(r.Leaders, func(i, j int) bool { return r.Leaders[i] < r.Leaders[j] })
}

// computePredecessors is phase 5: the transpose of the successor graph.
// SuccAllEntries edges fan in from every function entry plus any Extra
// target, matching how the worklist itself propagated state.
func computePredecessors(r *Result) {
	for pc, succ := range r.Successors {
		switch succ.Kind {
		case SuccExplicit:
			for _, t := range succ.Exact {
				r.Predecessors[t] = append(r.Predecessors[t], pc)
			}
		case SuccAllEntries:
			for _, t := range r.FunctionEntries {
				r.Predecessors[t] = append(r.Predecessors[t], pc)
			}
			for _, t := range succ.Extra {
				r.Predecessors[t] = append(r.Predecessors[t], pc)
			}
		}
	}
	for pc, preds := range r.Predecessors {
		sort.Slice(preds, func(i, j int) bool { return preds[i] < preds[j] })
		out := preds[:0]
		for i, v := range preds {
			if i == 0 || v != out[len(out)-1] {
				out = append(out, v)
			}
		}
		r.Predecessors[pc] = out
	}
}
