package scjson

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/agentflare-ai/scjson-go/eval"
)

// DataModel is the scoped frame-stack data model: one small map per
// activation record plus a document-global map, searched innermost-to-root
// on lookup, written to whichever frame already owns the name (falling back
// to global). It never builds a fresh merged map per evaluation.
type DataModel struct {
	graph  *Graph
	global map[string]any
	frames []map[string]any // lazily allocated, indexed by activation index

	sessionID    string
	currentEvent *Event
	inConfig     func(stateID string) bool
}

func newDataModel(g *Graph, sessionID string) *DataModel {
	return &DataModel{
		graph:     g,
		global:    make(map[string]any),
		frames:    make([]map[string]any, g.Len()),
		sessionID: sessionID,
	}
}

func (d *DataModel) frame(idx int) map[string]any {
	if d.frames[idx] == nil {
		d.frames[idx] = make(map[string]any)
	}
	return d.frames[idx]
}

// chain returns idx and every ancestor, innermost first, ending at root.
func (d *DataModel) chain(idx int) []int {
	out := []int{idx}
	out = append(out, d.graph.ProperAncestors(idx)...)
	return out
}

// InitNode populates local_data for idx from its authored <data> elements.
// Called once at activation for binding "early", and again on every re-entry
// for binding "late".
func (d *DataModel) InitNode(ctx context.Context, idx int) error {
	n := d.graph.Node(idx)
	if len(n.Datamodel) == 0 {
		return nil
	}
	frame := d.frame(idx)
	env := d.envFor(idx)
	for _, item := range n.Datamodel {
		var val any
		switch {
		case item.Expr != "":
			v, err := eval.Eval(ctx, item.Expr, env)
			if err != nil {
				return &EvalError{Expr: item.Expr, Err: err}
			}
			val = v
		case item.Content != "":
			val = item.Content
		default:
			val = nil
		}
		frame[item.ID] = val
	}
	return nil
}

// ResetLateBinding clears a node's frame so the next InitNode call rebuilds
// it from scratch; used on re-entry when Document.Binding == "late".
func (d *DataModel) ResetLateBinding(idx int) {
	d.frames[idx] = nil
}

// Lookup implements innermost-to-root resolution for eval.Env, starting the
// search at scopeIdx.
func (d *DataModel) Lookup(scopeIdx int, name string) (any, bool) {
	switch name {
	case "_sessionid":
		return d.sessionID, true
	case "_event":
		if d.currentEvent == nil {
			return nil, true
		}
		return eventToAny(*d.currentEvent), true
	case "_name":
		return d.graph.Node(d.graph.Root()).ID, true
	}
	for _, idx := range d.chain(scopeIdx) {
		if f := d.frames[idx]; f != nil {
			if v, ok := f[name]; ok {
				return v, true
			}
		}
	}
	if v, ok := d.global[name]; ok {
		return v, true
	}
	return nil, false
}

func eventToAny(e Event) map[string]any {
	return map[string]any{
		"name":   e.Name,
		"type":   string(e.Type),
		"data":   e.Data,
		"sendid": e.SendID,
		"origin": e.Origin,
		"invokeid": e.InvokeID,
	}
}

// envFor builds the read-only eval.Env rooted at scopeIdx, with the In()
// predicate bound to the configuration as of microstep start, never a
// partially-updated state.
func (d *DataModel) envFor(scopeIdx int) eval.Env {
	return eval.Env{
		Lookup: func(name string) (any, bool) { return d.Lookup(scopeIdx, name) },
		In: func(stateID string) bool {
			if d.inConfig == nil {
				return false
			}
			return d.inConfig(stateID)
		},
	}
}

// EvalExpr evaluates expr in the scope of scopeIdx.
func (d *DataModel) EvalExpr(ctx context.Context, scopeIdx int, expr string) (any, error) {
	v, err := eval.Eval(ctx, expr, d.envFor(scopeIdx))
	if err != nil {
		return nil, &EvalError{Expr: expr, Err: err}
	}
	return v, nil
}

// EvalCond evaluates cond as a boolean. The caller is responsible for
// treating an EvalError as "false, raise error.execution" — this method
// only performs the evaluation.
func (d *DataModel) EvalCond(ctx context.Context, scopeIdx int, cond string) (bool, error) {
	v, err := eval.EvalBool(ctx, cond, d.envFor(scopeIdx))
	if err != nil {
		return false, &EvalError{Expr: cond, Err: err}
	}
	return v, nil
}

// Assign writes value to a dotted/bracketed location path, targeting
// whichever frame in scopeIdx's chain already owns the root name, or the
// global map if none does.
func (d *DataModel) Assign(scopeIdx int, location string, value any) error {
	root, path, err := parseLocation(location)
	if err != nil {
		return &ActionError{Action: "assign", Message: err.Error()}
	}
	if len(path) == 0 {
		d.ownerFrame(scopeIdx, root)[root] = value
		return nil
	}
	frame := d.ownerFrame(scopeIdx, root)
	container, ok := frame[root]
	if !ok {
		return &ActionError{Action: "assign", Message: fmt.Sprintf("location %q is not defined", root)}
	}
	if err := setPath(container, path, value); err != nil {
		return &ActionError{Action: "assign", Message: err.Error()}
	}
	frame[root] = container
	return nil
}

// ownerFrame returns the frame in scopeIdx's ancestor chain that already
// defines root, or the global map if none does (a fresh assignment lands in
// the global map, matching "writes target the innermost frame that owns the
// name, else the global map").
func (d *DataModel) ownerFrame(scopeIdx int, root string) map[string]any {
	for _, idx := range d.chain(scopeIdx) {
		if f := d.frames[idx]; f != nil {
			if _, ok := f[root]; ok {
				return f
			}
		}
	}
	return d.global
}

// locPathSeg is one step of a parsed assign/evaluate-location path: either a
// dotted field name or a bracketed index/key.
type locPathSeg struct {
	field string
	index int
	isIdx bool
}

func parseLocation(loc string) (root string, path []locPathSeg, err error) {
	i := 0
	for i < len(loc) && loc[i] != '.' && loc[i] != '[' {
		i++
	}
	root = loc[:i]
	if root == "" {
		return "", nil, fmt.Errorf("empty location")
	}
	for i < len(loc) {
		switch loc[i] {
		case '.':
			i++
			start := i
			for i < len(loc) && loc[i] != '.' && loc[i] != '[' {
				i++
			}
			if start == i {
				return "", nil, fmt.Errorf("malformed location %q", loc)
			}
			path = append(path, locPathSeg{field: loc[start:i]})
		case '[':
			i++
			start := i
			for i < len(loc) && loc[i] != ']' {
				i++
			}
			if i >= len(loc) {
				return "", nil, fmt.Errorf("unterminated '[' in location %q", loc)
			}
			raw := strings.TrimSpace(loc[start:i])
			i++ // skip ']'
			if n, convErr := strconv.Atoi(raw); convErr == nil {
				path = append(path, locPathSeg{index: n, isIdx: true})
			} else {
				path = append(path, locPathSeg{field: strings.Trim(raw, `"'`)})
			}
		default:
			return "", nil, fmt.Errorf("malformed location %q", loc)
		}
	}
	return root, path, nil
}

// setPath mutates container in place by walking path and assigning value at
// the final step. Supports map[string]any and []any, matching the JSON-ish
// values produced by eval and loaders.
func setPath(container any, path []locPathSeg, value any) error {
	for i := 0; i < len(path)-1; i++ {
		seg := path[i]
		switch c := container.(type) {
		case map[string]any:
			next, ok := c[seg.field]
			if !ok {
				return fmt.Errorf("missing intermediate container at %q", seg.field)
			}
			container = next
		case []any:
			if !seg.isIdx || seg.index < 0 || seg.index >= len(c) {
				return fmt.Errorf("index out of range in location path")
			}
			container = c[seg.index]
		default:
			return fmt.Errorf("missing intermediate container")
		}
	}
	last := path[len(path)-1]
	switch c := container.(type) {
	case map[string]any:
		c[last.field] = value
		return nil
	case []any:
		if !last.isIdx || last.index < 0 || last.index >= len(c) {
			return fmt.Errorf("index out of range in location path")
		}
		c[last.index] = value
		return nil
	default:
		return fmt.Errorf("missing intermediate container")
	}
}
