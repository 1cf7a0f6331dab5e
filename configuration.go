package scjson

import (
	"context"

	"github.com/agentflare-ai/scjson-go/document"
)

// transitionDomain returns the LCCA of ft's source and targets, except for
// the two exit-free cases: a targetless internal transition, and an
// internal transition whose targets are all descendants of the source.
// Both report the source itself as the domain.
func (rt *Runtime) transitionDomain(ft firedTransition) int {
	if len(ft.targets) == 0 {
		return ft.sourceIdx
	}
	if rt.isInternalNoExit(ft) {
		return ft.sourceIdx
	}
	ids := append([]int{ft.sourceIdx}, ft.targets...)
	return rt.graph.LCCA(ids)
}

func (rt *Runtime) isInternalNoExit(ft firedTransition) bool {
	if ft.transition.Type != document.TransitionInternal || len(ft.targets) == 0 {
		return false
	}
	for _, t := range ft.targets {
		if !rt.graph.IsDescendant(t, ft.sourceIdx) {
			return false
		}
	}
	return true
}

// exitSetForTransition computes the states ft would exit.
func (rt *Runtime) exitSetForTransition(ft firedTransition) []int {
	if len(ft.targets) == 0 || rt.isInternalNoExit(ft) {
		return nil
	}
	domain := rt.transitionDomain(ft)
	var out []int
	for idx := range rt.active {
		if idx != domain && rt.graph.IsDescendant(idx, domain) {
			out = append(out, idx)
		}
	}
	return out
}

// pathToDomain returns every index from target up to (not including) domain,
// in root-to-leaf order. domain == -1 means "include the full chain to the
// true root", used for initial entry.
func (rt *Runtime) pathToDomain(target, domain int) []int {
	var chain []int
	for i := target; i != domain; i = rt.graph.Node(i).Parent {
		chain = append(chain, i)
		if i == rt.graph.Root() && domain == -1 {
			break
		}
		if rt.graph.Node(i).Parent == -1 {
			break
		}
	}
	for l, r := 0, len(chain)-1; l < r; l, r = l+1, r-1 {
		chain[l], chain[r] = chain[r], chain[l]
	}
	return chain
}

// defaultEntryChain recursively expands the default-entry descendants that
// must also be entered when idx is entered without a more specific target.
func (rt *Runtime) defaultEntryChain(idx int) []int {
	var out []int
	for _, c := range rt.graph.DefaultEntry(idx) {
		out = append(out, c)
		out = append(out, rt.defaultEntryChain(c)...)
	}
	return out
}

// entrySetForTransition computes the states ft would enter.
func (rt *Runtime) entrySetForTransition(ft firedTransition) []int {
	if len(ft.targets) == 0 {
		return nil
	}
	domain := rt.transitionDomain(ft)
	if rt.isInternalNoExit(ft) {
		domain = ft.sourceIdx
	}
	seen := make(map[int]bool)
	var out []int
	add := func(idx int) {
		if !seen[idx] {
			seen[idx] = true
			out = append(out, idx)
		}
	}
	for _, target := range ft.targets {
		for _, c := range rt.pathToDomain(target, domain) {
			add(c)
		}
		for _, d := range rt.defaultEntryChain(target) {
			add(d)
		}
	}
	return out
}

// recordHistoryMemory captures, for every history pseudo-state whose parent
// is about to exit, the currently-active children (shallow) or atomic
// descendants (deep). Must run before the exit set is removed from
// rt.active.
func (rt *Runtime) recordHistoryMemory(exitSet []int) {
	inExit := make(map[int]bool, len(exitSet))
	for _, idx := range exitSet {
		inExit[idx] = true
	}
	for idx := 0; idx < rt.graph.Len(); idx++ {
		n := rt.graph.Node(idx)
		if n.Kind != document.KindHistory || !inExit[n.Parent] {
			continue
		}
		parent := n.Parent
		var mem []int
		if n.HistoryType == document.HistoryDeep {
			for _, d := range rt.graph.Descendants(parent) {
				if rt.graph.IsAtomic(d) && rt.active[d] {
					mem = append(mem, d)
				}
			}
		} else {
			for _, c := range rt.graph.Node(parent).Children {
				if rt.active[c] {
					mem = append(mem, c)
				}
			}
		}
		rt.historyMemory[idx] = mem
	}
}

// enterStates runs onentry for each entered node in entry-set document
// order, (re)initializing local data first.
func (rt *Runtime) enterStates(ctx context.Context, entrySet []int) error {
	rt.graph.SortDocumentOrder(entrySet)
	for _, idx := range entrySet {
		if err := rt.enterOne(ctx, idx); err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) enterOne(ctx context.Context, idx int) error {
	n := rt.graph.Node(idx)
	needInit := n.BindingLate || rt.dm.frames[idx] == nil
	if n.BindingLate {
		rt.dm.ResetLateBinding(idx)
	}
	if needInit {
		if err := rt.dm.InitNode(ctx, idx); err != nil {
			rt.raiseError("error.execution", map[string]any{"message": err.Error()})
		}
	}
	return rt.execActions(ctx, idx, n.OnEntry)
}

// commit applies a resolved, conflict-free set of fired transitions: exit,
// record history, run onexit, run transition actions, run onentry, update
// the configuration, then propagate done.state.
func (rt *Runtime) commit(ctx context.Context, fired []firedTransition) (entered, exited []int, err error) {
	exitSeen := make(map[int]bool)
	var exitSet []int
	for _, ft := range fired {
		for _, e := range rt.exitSetForTransition(ft) {
			if !exitSeen[e] {
				exitSeen[e] = true
				exitSet = append(exitSet, e)
			}
		}
	}
	rt.graph.SortReverseDocumentOrder(exitSet)

	rt.recordHistoryMemory(exitSet)
	rt.stopInvokesForStates(ctx, exitSet)
	for _, idx := range exitSet {
		for _, sid := range rt.ownedSendIDs[idx] {
			rt.queue.cancel(sid)
		}
		delete(rt.ownedSendIDs, idx)
	}

	for _, idx := range exitSet {
		if aErr := rt.execActions(ctx, idx, rt.graph.Node(idx).OnExit); aErr != nil {
			return nil, nil, aErr
		}
	}

	for _, ft := range fired {
		if aErr := rt.execActions(ctx, ft.sourceIdx, ft.transition.Actions); aErr != nil {
			return nil, nil, aErr
		}
	}

	entrySeen := make(map[int]bool)
	var entrySet []int
	for _, ft := range fired {
		for _, e := range rt.entrySetForTransition(ft) {
			if !entrySeen[e] {
				entrySeen[e] = true
				entrySet = append(entrySet, e)
			}
		}
	}
	if err := rt.enterStates(ctx, entrySet); err != nil {
		return nil, nil, err
	}

	for _, idx := range exitSet {
		delete(rt.active, idx)
	}
	for _, idx := range entrySet {
		rt.active[idx] = true
	}

	rt.propagateDone(ctx, entrySet)

	return entrySet, exitSet, nil
}

// isInFinalState reports whether idx counts as "complete" for done.state
// purposes: a final state always does; a compound state does when its
// active child is a final; a parallel state does when every child is
// (recursively) complete.
func (rt *Runtime) isInFinalState(idx int) bool {
	n := rt.graph.Node(idx)
	switch n.Kind {
	case document.KindFinal:
		return rt.active[idx]
	case document.KindParallel:
		for _, c := range n.Children {
			if !rt.isInFinalState(c) {
				return false
			}
		}
		return len(n.Children) > 0
	case document.KindCompound, document.KindRoot:
		for _, c := range n.Children {
			if rt.active[c] && rt.graph.Node(c).Kind == document.KindFinal {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// propagateDone walks up from every freshly-entered state's parent, emitting
// done.state.<id> the first time each ancestor becomes complete, halting the
// runtime if the root itself completes.
func (rt *Runtime) propagateDone(ctx context.Context, entered []int) {
	queue := make([]int, 0, len(entered))
	seen := make(map[int]bool)
	for _, idx := range entered {
		if p := rt.graph.Node(idx).Parent; p != -1 {
			queue = append(queue, p)
		}
	}
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if seen[idx] || rt.doneEmitted[idx] || !rt.active[idx] {
			continue
		}
		seen[idx] = true
		if !rt.isInFinalState(idx) {
			continue
		}
		rt.doneEmitted[idx] = true
		donedata := rt.doneDataFor(ctx, idx)
		name := "done.state." + rt.graph.Node(idx).ID
		rt.queue.enqueueInternal(Event{Name: name, Data: donedata, Type: EventInternal})
		if idx == rt.graph.Root() {
			rt.lastRootDoneData = donedata
			rt.halt(ctx)
			return
		}
		if parent := rt.graph.Node(idx).Parent; parent != -1 {
			queue = append(queue, parent)
		}
	}
}

// doneDataFor evaluates the donedata payload of the active final child of a
// compound parent. Parallel-completion propagation has no
// single final to draw donedata from, so it carries nil.
func (rt *Runtime) doneDataFor(ctx context.Context, parent int) any {
	n := rt.graph.Node(parent)
	if n.Kind != document.KindCompound && n.Kind != document.KindRoot {
		return nil
	}
	for _, c := range n.Children {
		if rt.active[c] && rt.graph.Node(c).Kind == document.KindFinal {
			return rt.evalDoneData(ctx, c, rt.graph.Node(c).Done)
		}
	}
	return nil
}

func (rt *Runtime) halt(ctx context.Context) {
	rt.halted = true
	rt.stopAllInvokes(ctx)
}
