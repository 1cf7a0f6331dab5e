package scjson

import (
	"sort"

	"github.com/agentflare-ai/scjson-go/document"
)

// ActivationRecord is one referenceable (or pseudo-) runtime frame, built
// once per node at Graph construction time. Parent/Children
// are arena indices, never pointers, so the arena stays a flat, trivially
// copyable slice.
type ActivationRecord struct {
	ID          string
	Kind        document.Kind
	HistoryType document.HistoryType

	Parent   int // -1 for the root
	Children []int

	Transitions []document.Transition
	Invokes     []document.Invoke
	Datamodel   []document.DataItem

	OnEntry []document.Action
	OnExit  []document.Action
	Done    *document.DoneData

	Initial     string
	BindingLate bool
}

// Graph is the arena-indexed Activation Graph (C3). Index 0 is always the
// root.
type Graph struct {
	nodes []ActivationRecord
	byID  map[string]int
}

// BuildGraph walks doc in pre-order and allocates one ActivationRecord per
// node.
func BuildGraph(doc *document.Document) (*Graph, error) {
	g := &Graph{byID: make(map[string]int)}
	var walk func(n *document.Node, parent int) (int, error)
	walk = func(n *document.Node, parent int) (int, error) {
		idx := len(g.nodes)
		g.nodes = append(g.nodes, ActivationRecord{
			ID:          n.ID,
			Kind:        n.Kind,
			HistoryType: n.HistoryType,
			Parent:      parent,
			Transitions: n.Transitions,
			Invokes:     n.Invokes,
			Datamodel:   n.Datamodel,
			OnEntry:     n.OnEntry,
			OnExit:      n.OnExit,
			Done:        n.Done,
			Initial:     n.Initial,
			BindingLate: n.BindingLate,
		})
		if n.ID != "" {
			if _, dup := g.byID[n.ID]; dup {
				return -1, &LinkError{Message: "duplicate id", NodeID: n.ID}
			}
			g.byID[n.ID] = idx
		}
		for _, c := range n.Children {
			if c.Kind == document.KindHistory && n.Kind != document.KindCompound && n.Kind != document.KindParallel {
				return -1, &LinkError{Message: "history pseudo-state outside a compound/parallel parent", NodeID: c.ID}
			}
			childIdx, err := walk(c, idx)
			if err != nil {
				return -1, err
			}
			g.nodes[idx].Children = append(g.nodes[idx].Children, childIdx)
		}
		return idx, nil
	}
	if _, err := walk(doc.Root, -1); err != nil {
		return nil, err
	}
	if err := g.validateLinks(); err != nil {
		return nil, err
	}
	return g, nil
}

// validateLinks checks every authored transition target resolves to a known
// id.
func (g *Graph) validateLinks() error {
	for i := range g.nodes {
		for _, t := range g.nodes[i].Transitions {
			for _, target := range t.Targets {
				if _, ok := g.byID[target]; !ok {
					return &LinkError{Message: "unresolved transition target " + target, NodeID: g.nodes[i].ID}
				}
			}
		}
	}
	return nil
}

func (g *Graph) Root() int { return 0 }

func (g *Graph) Node(idx int) *ActivationRecord { return &g.nodes[idx] }

func (g *Graph) IndexOf(id string) (int, bool) {
	idx, ok := g.byID[id]
	return idx, ok
}

func (g *Graph) Len() int { return len(g.nodes) }

// IsAtomic reports whether idx has no children that the configuration
// engine needs to descend into (final or a leaf compound/root).
func (g *Graph) IsAtomic(idx int) bool {
	n := &g.nodes[idx]
	if n.Kind == document.KindFinal {
		return true
	}
	return len(n.Children) == 0
}

// Descendants returns every proper descendant of idx (document order).
func (g *Graph) Descendants(idx int) []int {
	var out []int
	var walk func(i int)
	walk = func(i int) {
		for _, c := range g.nodes[i].Children {
			out = append(out, c)
			walk(c)
		}
	}
	walk(idx)
	return out
}

// IsDescendant reports whether a is a (possibly improper) descendant of b.
func (g *Graph) IsDescendant(a, b int) bool {
	for i := a; i != -1; i = g.nodes[i].Parent {
		if i == b {
			return true
		}
	}
	return false
}

// ProperAncestors returns idx's ancestors, nearest first, not including idx.
func (g *Graph) ProperAncestors(idx int) []int {
	var out []int
	for i := g.nodes[idx].Parent; i != -1; i = g.nodes[i].Parent {
		out = append(out, i)
	}
	return out
}

// LCCA returns the least common compound ancestor of a set of ids: the
// nearest ancestor that is compound or parallel and is a proper ancestor of
// every id, or root if none qualifies.
func (g *Graph) LCCA(ids []int) int {
	if len(ids) == 0 {
		return g.Root()
	}
	for _, cand := range g.ProperAncestors(ids[0]) {
		k := g.nodes[cand].Kind
		if cand != g.Root() && k != document.KindCompound && k != document.KindParallel {
			continue
		}
		ok := true
		for _, id := range ids[1:] {
			if id == cand || !g.IsDescendant(id, cand) {
				ok = false
				break
			}
		}
		if ok {
			return cand
		}
	}
	return g.Root()
}

// DefaultEntry returns the children that must be entered by default when
// idx is entered without a specific target: the explicit
// initial, the first <initial> transition's resolved target, or the first
// child for compound states; all children for parallel; none for
// final/atomic states.
func (g *Graph) DefaultEntry(idx int) []int {
	n := &g.nodes[idx]
	switch n.Kind {
	case document.KindParallel:
		out := append([]int(nil), n.Children...)
		return out
	case document.KindRoot, document.KindCompound:
		if n.Initial != "" {
			if target, ok := g.byID[n.Initial]; ok {
				return []int{target}
			}
		}
		if len(n.Children) > 0 {
			// Historical/pseudo children never qualify as a default entry.
			for _, c := range n.Children {
				if g.nodes[c].Kind != document.KindHistory {
					return []int{c}
				}
			}
		}
		return nil
	default:
		return nil
	}
}

// SortDocumentOrder sorts ids ascending by arena index, which is document
// (pre-order) order because BuildGraph allocates in that order.
func (g *Graph) SortDocumentOrder(ids []int) {
	sort.Ints(ids)
}

// SortReverseDocumentOrder sorts ids descending by arena index.
func (g *Graph) SortReverseDocumentOrder(ids []int) {
	sort.Sort(sort.Reverse(sort.IntSlice(ids)))
}
