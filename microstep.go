package scjson

import (
	"context"
	"sort"

	"github.com/agentflare-ai/scjson-go/document"
)

// firedTransition is a selected, resolved transition awaiting commit: the
// authored Transition plus its resolved target activation indices (after
// history resolution) and the source state that declares it (the selecting
// atomic state or one of its ancestors).
type firedTransition struct {
	sourceIdx  int
	transition document.Transition
	targets    []int
}

// selectTransitions implements C5 step 2-3: for each active atomic state,
// walk its ancestor chain collecting the first matching, enabled transition
// (innermost source wins), then drop any transition whose exit set
// intersects an earlier one in document order.
func (rt *Runtime) selectTransitions(ctx context.Context, evt *Event) ([]firedTransition, error) {
	var candidates []firedTransition
	for _, leaf := range rt.atomicActiveInDocumentOrder() {
		ft, err := rt.selectForState(ctx, leaf, evt)
		if err != nil {
			return nil, err
		}
		if ft != nil {
			candidates = append(candidates, *ft)
		}
	}
	return rt.resolveConflicts(candidates), nil
}

// hasEventlessEnabled reports whether any eventless transition would be
// selected right now, without mutating configuration or queues. Used to
// decide whether the current macrostep is complete. Cond failures stay
// silent here; the selection pass that actually consumes the step raises
// error.execution exactly once.
func (rt *Runtime) hasEventlessEnabled(ctx context.Context) bool {
	rt.muteEvalErrors = true
	defer func() { rt.muteEvalErrors = false }()
	for _, leaf := range rt.atomicActiveInDocumentOrder() {
		ft, err := rt.selectForState(ctx, leaf, nil)
		if err == nil && ft != nil {
			return true
		}
	}
	return false
}

// atomicActiveInDocumentOrder returns every active atomic (leaf) state,
// ascending by document order, which is also the arena index order.
func (rt *Runtime) atomicActiveInDocumentOrder() []int {
	var out []int
	for idx := range rt.active {
		if rt.graph.IsAtomic(idx) {
			out = append(out, idx)
		}
	}
	rt.graph.SortDocumentOrder(out)
	return out
}

// selectForState walks leaf's ancestor chain (leaf first) looking for the
// first transition whose event token matches evt (or, when evt is nil,
// whose Events list is empty) and whose cond evaluates true. The first
// matching transition on the innermost ancestor wins.
func (rt *Runtime) selectForState(ctx context.Context, leaf int, evt *Event) (*firedTransition, error) {
	chain := append([]int{leaf}, rt.graph.ProperAncestors(leaf)...)
	for _, src := range chain {
		for _, t := range rt.graph.Node(src).Transitions {
			if evt == nil {
				if !t.IsEventless() {
					continue
				}
			} else {
				if t.IsEventless() || !matchesAny(t.Events, evt.Name) {
					continue
				}
			}
			enabled, err := rt.evalCond(ctx, src, t)
			if err != nil {
				return nil, err
			}
			if !enabled {
				continue
			}
			targets, err := rt.resolveTargets(src, t)
			if err != nil {
				return nil, err
			}
			return &firedTransition{sourceIdx: src, transition: t, targets: targets}, nil
		}
	}
	return nil, nil
}

// evalCond evaluates t.Cond in the scope of src. An EvalError makes the
// transition "not enabled" and raises error.execution, rather than aborting
// selection of the whole microstep.
func (rt *Runtime) evalCond(ctx context.Context, src int, t document.Transition) (bool, error) {
	if t.Cond == "" {
		return true, nil
	}
	ok, err := rt.dm.EvalCond(ctx, src, t.Cond)
	if err != nil {
		if !rt.muteEvalErrors {
			rt.raiseError("error.execution", map[string]any{"message": err.Error(), "expr": t.Cond})
		}
		return false, nil
	}
	return ok, nil
}

// resolveTargets expands history targets against recorded memory, falling
// back to the history node's own default transition targets when memory is
// empty.
func (rt *Runtime) resolveTargets(src int, t document.Transition) ([]int, error) {
	var out []int
	for _, id := range t.Targets {
		idx, ok := rt.graph.IndexOf(id)
		if !ok {
			return nil, &LinkError{Message: "unresolved transition target", NodeID: id}
		}
		if rt.graph.Node(idx).Kind == document.KindHistory {
			out = append(out, rt.resolveHistoryTarget(idx)...)
			continue
		}
		out = append(out, idx)
	}
	return out, nil
}

func (rt *Runtime) resolveHistoryTarget(historyIdx int) []int {
	if mem, ok := rt.historyMemory[historyIdx]; ok && len(mem) > 0 {
		return mem
	}
	parent := rt.graph.Node(historyIdx).Parent
	for _, t := range rt.graph.Node(historyIdx).Transitions {
		if t.IsEventless() {
			targets, _ := rt.resolveTargets(historyIdx, t)
			return targets
		}
	}
	return rt.graph.DefaultEntry(parent)
}

// resolveConflicts drops conflicting transitions: two transitions conflict
// if their exit sets intersect, and in document order the earlier one wins.
// Orthogonal (parallel) regions never conflict because their exit sets are
// disjoint by construction.
func (rt *Runtime) resolveConflicts(candidates []firedTransition) []firedTransition {
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].sourceIdx < candidates[j].sourceIdx })
	var kept []firedTransition
	var exitSets [][]int
	for _, c := range candidates {
		exitSet := rt.exitSetForTransition(c)
		conflict := false
		for _, prev := range exitSets {
			if intersects(prev, exitSet) {
				conflict = true
				break
			}
		}
		if conflict {
			continue
		}
		kept = append(kept, c)
		exitSets = append(exitSets, exitSet)
	}
	return kept
}

func intersects(a, b []int) bool {
	set := make(map[int]bool, len(a))
	for _, x := range a {
		set[x] = true
	}
	for _, y := range b {
		if set[y] {
			return true
		}
	}
	return false
}
