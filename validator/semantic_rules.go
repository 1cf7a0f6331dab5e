package validator

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/agentflare-ai/scjson-go/document"
)

// collectIDs returns every authored and synthesized id keyed to its node,
// plus the document-order list of duplicated ids.
func collectIDs(root *document.Node) (byID map[string]*document.Node, dups []string) {
	byID = make(map[string]*document.Node)
	document.Walk(root, func(n *document.Node) {
		if n.ID == "" {
			return
		}
		if _, seen := byID[n.ID]; seen {
			dups = append(dups, n.ID)
			return
		}
		byID[n.ID] = n
	})
	return byID, dups
}

// walkActions visits every action reachable from acts, descending into
// if/elseif/else branches and foreach bodies.
func walkActions(acts []document.Action, fn func(document.Action)) {
	for _, a := range acts {
		fn(a)
		switch t := a.(type) {
		case document.If:
			for _, b := range t.Branches {
				walkActions(b.Actions, fn)
			}
		case document.Foreach:
			walkActions(t.Actions, fn)
		}
	}
}

// walkAllActions visits every action authored anywhere on n or below:
// onentry, onexit, transition bodies, and invoke finalize blocks.
func walkAllActions(root *document.Node, fn func(owner *document.Node, a document.Action)) {
	document.Walk(root, func(n *document.Node) {
		visit := func(a document.Action) { fn(n, a) }
		walkActions(n.OnEntry, visit)
		walkActions(n.OnExit, visit)
		for _, t := range n.Transitions {
			walkActions(t.Actions, visit)
		}
		for _, inv := range n.Invokes {
			walkActions(inv.Finalize, visit)
		}
	})
}

// DuplicateIDRule reports ids declared on more than one node.
type DuplicateIDRule struct{}

func (r *DuplicateIDRule) Name() string { return "E301" }

func (r *DuplicateIDRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	_, dups := collectIDs(doc.Root)
	for _, id := range dups {
		diags = append(diags, Diagnostic{
			Severity:  SeverityError,
			Code:      r.Name(),
			Message:   fmt.Sprintf("id %q is declared more than once", id),
			StateID:   id,
			Attribute: "id",
			Hints:     []string{"every referenceable node needs a unique id"},
		})
	}
	return diags
}

// TransitionTargetRule reports transition targets that resolve to no node.
// A transition with an unresolved target is never selectable at runtime, so
// this is an error even outside strict mode.
type TransitionTargetRule struct{}

func (r *TransitionTargetRule) Name() string { return "E302" }

func (r *TransitionTargetRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	byID, _ := collectIDs(doc.Root)
	document.Walk(doc.Root, func(n *document.Node) {
		for _, t := range n.Transitions {
			for _, target := range t.Targets {
				if _, ok := byID[target]; !ok {
					diags = append(diags, Diagnostic{
						Severity:  SeverityError,
						Code:      r.Name(),
						Message:   fmt.Sprintf("transition target %q does not resolve to any state", target),
						StateID:   n.ID,
						Tag:       "transition",
						Attribute: "target",
					})
				}
			}
		}
	})
	return diags
}

// InitialResolutionRule reports an `initial` attribute naming a state that
// is not a child of the declaring node.
type InitialResolutionRule struct{}

func (r *InitialResolutionRule) Name() string { return "E303" }

func (r *InitialResolutionRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	document.Walk(doc.Root, func(n *document.Node) {
		if n.Initial == "" {
			return
		}
		for _, c := range n.Children {
			if c.ID == n.Initial {
				return
			}
		}
		diags = append(diags, Diagnostic{
			Severity:  SeverityError,
			Code:      r.Name(),
			Message:   fmt.Sprintf("initial %q does not name a child of %q", n.Initial, n.ID),
			StateID:   n.ID,
			Attribute: "initial",
		})
	})
	return diags
}

// HistoryPlacementRule reports a history pseudo-state whose parent is not a
// compound or parallel state.
type HistoryPlacementRule struct{}

func (r *HistoryPlacementRule) Name() string { return "E304" }

func (r *HistoryPlacementRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	document.Walk(doc.Root, func(n *document.Node) {
		for _, c := range n.Children {
			if c.Kind != document.KindHistory {
				continue
			}
			if n.Kind == document.KindCompound || n.Kind == document.KindParallel || n.Kind == document.KindRoot {
				continue
			}
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     r.Name(),
				Message:  fmt.Sprintf("history %q must be a child of a compound or parallel state", c.ID),
				StateID:  c.ID,
				Tag:      "history",
			})
		}
	})
	return diags
}

// HistoryDefaultRule warns about a history pseudo-state with no default
// transition: it still works once memory exists, but the first entry through
// it falls back to the parent's default entry, which is rarely intended.
type HistoryDefaultRule struct{}

func (r *HistoryDefaultRule) Name() string { return "W305" }

func (r *HistoryDefaultRule) Validate(doc *document.Document, config Config) []Diagnostic {
	var diags []Diagnostic
	sev := SeverityWarning
	if config.Strict {
		sev = SeverityError
	}
	document.Walk(doc.Root, func(n *document.Node) {
		if n.Kind != document.KindHistory {
			return
		}
		for _, t := range n.Transitions {
			if t.IsEventless() && len(t.Targets) > 0 {
				return
			}
		}
		diags = append(diags, Diagnostic{
			Severity: sev,
			Code:     r.Name(),
			Message:  fmt.Sprintf("history %q has no default transition", n.ID),
			StateID:  n.ID,
			Tag:      "history",
			Hints:    []string{"add a targeted, eventless <transition> inside the history element"},
		})
	})
	return diags
}

// FinalChildlessRule reports a final state with child states.
type FinalChildlessRule struct{}

func (r *FinalChildlessRule) Name() string { return "E306" }

func (r *FinalChildlessRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	document.Walk(doc.Root, func(n *document.Node) {
		if n.Kind == document.KindFinal && len(n.Children) > 0 {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     r.Name(),
				Message:  fmt.Sprintf("final state %q must not contain child states", n.ID),
				StateID:  n.ID,
				Tag:      "final",
			})
		}
	})
	return diags
}

// eventDescriptorPattern admits dotted tokens, a trailing ".*" wildcard
// segment, or the bare "*" wildcard.
var eventDescriptorPattern = regexp.MustCompile(`^(\*|[A-Za-z0-9_-]+(\.[A-Za-z0-9_-]+)*(\.\*)?)$`)

// EventDescriptorRule validates transition event descriptor tokens.
type EventDescriptorRule struct{}

func (r *EventDescriptorRule) Name() string { return "E307" }

func (r *EventDescriptorRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	document.Walk(doc.Root, func(n *document.Node) {
		for _, t := range n.Transitions {
			for _, ev := range t.Events {
				if !eventDescriptorPattern.MatchString(ev) {
					diags = append(diags, Diagnostic{
						Severity:  SeverityError,
						Code:      r.Name(),
						Message:   fmt.Sprintf("event descriptor %q is not a valid token", ev),
						StateID:   n.ID,
						Tag:       "transition",
						Attribute: "event",
						Hints:     []string{
							"descriptors are dotted names like a.b.c",
							"wildcards are the bare * or a trailing .* segment",
						},
					})
				}
			}
		}
	})
	return diags
}

var delayPattern = regexp.MustCompile(`^[0-9]+(\.[0-9]+)?(s|ms)$`)

// SendDelayRule validates static <send> delay attributes ("Ns" / "Nms").
// Delays computed by delayexpr can only be checked at runtime.
type SendDelayRule struct{}

func (r *SendDelayRule) Name() string { return "E308" }

func (r *SendDelayRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	walkAllActions(doc.Root, func(owner *document.Node, a document.Action) {
		send, ok := a.(document.Send)
		if !ok || send.Delay == "" {
			return
		}
		if !delayPattern.MatchString(strings.TrimSpace(send.Delay)) {
			diags = append(diags, Diagnostic{
				Severity:  SeverityError,
				Code:      r.Name(),
				Message:   fmt.Sprintf("malformed send delay %q", send.Delay),
				StateID:   owner.ID,
				Tag:       "send",
				Attribute: "delay",
			})
		}
	})
	return diags
}

// CancelSendIDRule enforces that <cancel> carries exactly one of sendid and
// sendidexpr.
type CancelSendIDRule struct{}

func (r *CancelSendIDRule) Name() string { return "E309" }

func (r *CancelSendIDRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	walkAllActions(doc.Root, func(owner *document.Node, a document.Action) {
		cancel, ok := a.(document.Cancel)
		if !ok {
			return
		}
		has := cancel.SendID != ""
		hasExpr := cancel.SendIDExpr != ""
		if has == hasExpr {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     r.Name(),
				Message:  "cancel requires exactly one of sendid and sendidexpr",
				StateID:  owner.ID,
				Tag:      "cancel",
			})
		}
	})
	return diags
}

// DonedataExclusionRule enforces that <donedata> carries content or params,
// never both.
type DonedataExclusionRule struct{}

func (r *DonedataExclusionRule) Name() string { return "E310" }

func (r *DonedataExclusionRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	var diags []Diagnostic
	document.Walk(doc.Root, func(n *document.Node) {
		if n.Done == nil {
			return
		}
		if n.Done.Content != nil && len(n.Done.Params) > 0 {
			diags = append(diags, Diagnostic{
				Severity: SeverityError,
				Code:     r.Name(),
				Message:  fmt.Sprintf("donedata of %q mixes content and params", n.ID),
				StateID:  n.ID,
				Tag:      "donedata",
			})
		}
	})
	return diags
}

// UnreachableStateRule warns about states that are neither a transition
// target, an initial reference, nor a default-entry child, and so can never
// enter the configuration.
type UnreachableStateRule struct{}

func (r *UnreachableStateRule) Name() string { return "W401" }

func (r *UnreachableStateRule) Validate(doc *document.Document, _ Config) []Diagnostic {
	reachable := make(map[*document.Node]bool)
	byID, _ := collectIDs(doc.Root)

	markTargets := func(n *document.Node) {
		for _, t := range n.Transitions {
			for _, target := range t.Targets {
				if tn, ok := byID[target]; ok {
					reachable[tn] = true
				}
			}
		}
		if n.Initial != "" {
			if tn, ok := byID[n.Initial]; ok {
				reachable[tn] = true
			}
		}
	}

	document.Walk(doc.Root, func(n *document.Node) {
		markTargets(n)
		switch n.Kind {
		case document.KindParallel:
			for _, c := range n.Children {
				reachable[c] = true
			}
		case document.KindRoot, document.KindCompound:
			if n.Initial == "" {
				for _, c := range n.Children {
					if c.Kind != document.KindHistory {
						reachable[c] = true
						break
					}
				}
			}
		}
	})

	var diags []Diagnostic
	document.Walk(doc.Root, func(n *document.Node) {
		if n == doc.Root || n.Kind == document.KindHistory {
			return
		}
		if !reachable[n] {
			diags = append(diags, Diagnostic{
				Severity: SeverityWarning,
				Code:     r.Name(),
				Message:  fmt.Sprintf("state %q is unreachable", n.ID),
				StateID:  n.ID,
			})
		}
	})
	return diags
}
