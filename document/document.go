// Package document holds the immutable parsed-chart tree produced by a
// loader (xmlload or jsonload). It is the "Document" of the data model:
// built once, never mutated, and owns its children outright.
package document

// Kind tags the referenceable node variants. Matching on Kind rather than
// dispatching through an interface keeps the microstep hot path a single
// branch on an integer tag (see DESIGN.md).
type Kind int

const (
	KindRoot Kind = iota
	KindCompound
	KindParallel
	KindFinal
	KindHistory
)

func (k Kind) String() string {
	switch k {
	case KindRoot:
		return "root"
	case KindCompound:
		return "compound"
	case KindParallel:
		return "parallel"
	case KindFinal:
		return "final"
	case KindHistory:
		return "history"
	default:
		return "unknown"
	}
}

// HistoryType distinguishes shallow from deep history pseudo-states.
type HistoryType int

const (
	HistoryShallow HistoryType = iota
	HistoryDeep
)

// TransitionType distinguishes external from internal transitions (SCXML 3.13).
type TransitionType int

const (
	TransitionExternal TransitionType = iota
	TransitionInternal
)

// Action is a tagged variant over the executable-content element kinds
// supported by the interpreter. Each concrete type below
// implements it via an unexported marker method, so no type outside this
// package satisfies it. The compiler does not check a type switch over it
// for missed cases.
type Action interface {
	isAction()
}

type Raise struct {
	Event     string
	EventExpr string
}

type Assign struct {
	Location   string
	Expr       string
	AssignType string
	Content    string // literal fallback when Expr is empty
}

type Log struct {
	Label string
	Expr  string
}

type If struct {
	// Branches holds the if/elseif/else ladder in document order. The last
	// branch may have an empty Cond to represent <else>.
	Branches []IfBranch
}

type IfBranch struct {
	Cond    string // empty for the trailing <else>
	Actions []Action
}

type Foreach struct {
	Array   string
	Item    string
	Index   string
	Actions []Action
}

type Param struct {
	Name     string
	Expr     string
	Location string
}

type ContentSpec struct {
	Expr    string
	Literal string
}

type Send struct {
	Event      string
	EventExpr  string
	Target     string
	TargetExpr string
	Type       string
	TypeExpr   string
	ID         string
	IDLocation string
	Delay      string
	DelayExpr  string
	Namelist   []string
	Params     []Param
	Content    *ContentSpec
}

type Cancel struct {
	SendID     string
	SendIDExpr string
}

type Script struct {
	Src     string
	Content string
}

// Custom is executable content authored in a foreign (non-SCXML) namespace,
// e.g. `<env:get xmlns:env="...">`. The engine dispatches it to whichever
// NamespaceHandler is registered for URI; a document with no handler
// registered for an encountered URI raises error.execution rather than
// failing to parse, matching LAX-leaning treatment of vendor extensions.
type Custom struct {
	URI   string
	Tag   string
	Attrs map[string]string
	Text  string
}

func (Raise) isAction()   {}
func (Assign) isAction()  {}
func (Log) isAction()     {}
func (If) isAction()      {}
func (Foreach) isAction() {}
func (Send) isAction()    {}
func (Cancel) isAction()  {}
func (Script) isAction()  {}
func (Custom) isAction()  {}

// Transition is authored on a state node.
type Transition struct {
	Events  []string // event descriptors, possibly wildcarded ("a.b.*", "*")
	Cond    string
	Targets []string // ordered target ids; empty means a targetless transition
	Type    TransitionType
	Actions []Action

	// SourceID is filled in at build time for diagnostics and trace records.
	SourceID string
}

// IsEventless reports whether the transition fires on the NULL (eventless) event.
func (t Transition) IsEventless() bool {
	return len(t.Events) == 0
}

// Invoke is authored on a state node.
type Invoke struct {
	ID          string
	IDExpr      string
	Type        string
	TypeExpr    string
	Src         string
	SrcExpr     string
	Autoforward bool
	Namelist    []string
	Params      []Param
	Content     *ContentSpec
	Finalize    []Action
}

// DataItem is one <data> declaration.
type DataItem struct {
	ID      string
	Expr    string
	Src     string
	Content string
}

// DoneData is the payload template attached to a <final> state.
type DoneData struct {
	Content *ContentSpec
	Params  []Param
}

// Node is one referenceable (or pseudo-) element of the parsed chart.
// Children are owned outright; Parent is a non-owning convenience back
// reference set by the builder and ignored for equality/serialization.
type Node struct {
	ID          string
	Kind        Kind
	HistoryType HistoryType

	// Initial holds the explicit `initial` attribute (compound states) or
	// the resolved <initial> transition's single target id. Empty means
	// "use first child" default-entry semantics.
	Initial string

	Children    []*Node
	Transitions []Transition
	Invokes     []Invoke
	Datamodel   []DataItem
	OnEntry     []Action
	OnExit      []Action
	Done        *DoneData // only set for KindFinal

	// BindingLate marks a datamodel binding mode of "late": local_data is
	// reset on each re-entry rather than only at document load.
	BindingLate bool

	Parent *Node
}

// Document is the parsed, immutable chart.
type Document struct {
	Root *Node

	// Name is a human-readable source identifier (file path or "<string>")
	// used in diagnostics.
	Name string

	// Binding is the document-wide datamodel binding mode: "early" (default)
	// or "late".
	Binding string
}

// Walk visits n and every descendant in pre-order.
func Walk(n *Node, fn func(*Node)) {
	if n == nil {
		return
	}
	fn(n)
	for _, c := range n.Children {
		Walk(c, fn)
	}
}

// ByID returns every node reachable from root that has a non-empty id,
// keyed by that id (authored and loader-synthesized ids alike).
func ByID(root *Node) map[string]*Node {
	out := make(map[string]*Node)
	Walk(root, func(n *Node) {
		if n.ID != "" {
			out[n.ID] = n
		}
	})
	return out
}
