// Package xmlload converts an SCXML document into the engine's immutable
// document.Document tree, using go-xmldom for parsing.
//
// Unknown elements from a foreign namespace become document.Custom
// executable content (namespace extension point, see the root package's
// NamespaceHandler); unknown elements in the SCXML namespace itself are
// errors in STRICT mode and are dropped without a report in LAX mode.
// Attributes are not checked against the SCXML vocabulary.
package xmlload

import (
	"fmt"
	"io"
	"strings"

	"github.com/agentflare-ai/go-xmldom"

	"github.com/agentflare-ai/scjson-go/document"
)

const scxmlNS = "http://www.w3.org/2005/07/scxml"

// Mode controls how unknown constructs are treated.
type Mode int

const (
	ModeStrict Mode = iota
	ModeLax
)

// Load parses an SCXML string into a document.Document.
func Load(xml string, name string, mode Mode) (*document.Document, error) {
	decoder := xmldom.NewDecoderFromBytes([]byte(xml))
	doc, err := decoder.Decode()
	if err != nil {
		return nil, fmt.Errorf("xmlload: parse %s: %w", name, err)
	}
	return build(doc, name, mode)
}

// LoadReader parses an SCXML document read from r.
func LoadReader(r io.Reader, name string, mode Mode) (*document.Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("xmlload: read %s: %w", name, err)
	}
	return Load(string(data), name, mode)
}

func build(doc xmldom.Document, name string, mode Mode) (*document.Document, error) {
	root := doc.DocumentElement()
	if root == nil {
		return nil, fmt.Errorf("xmlload: %s has no root element", name)
	}
	b := &builder{mode: mode, source: name, anon: 0}
	rootNode, err := b.buildState(root, document.KindRoot)
	if err != nil {
		return nil, err
	}
	binding := attr(root, "binding")
	if binding == "" {
		binding = "early"
	}
	return &document.Document{Root: rootNode, Name: name, Binding: binding}, nil
}

type builder struct {
	mode   Mode
	source string
	anon   int
}

func attr(el xmldom.Element, name string) string {
	return strings.TrimSpace(string(el.GetAttribute(xmldom.DOMString(name))))
}

func children(el xmldom.Element) []xmldom.Element {
	list := el.Children()
	if list == nil {
		return nil
	}
	out := make([]xmldom.Element, 0, list.Length())
	for i := uint(0); i < list.Length(); i++ {
		if c := list.Item(i); c != nil {
			out = append(out, c)
		}
	}
	return out
}

func localName(el xmldom.Element) string {
	if ln := strings.TrimSpace(string(el.LocalName())); ln != "" {
		return strings.ToLower(ln)
	}
	tag := string(el.TagName())
	if i := strings.IndexByte(tag, ':'); i >= 0 {
		tag = tag[i+1:]
	}
	return strings.ToLower(tag)
}

func isSCXMLNamespace(el xmldom.Element) bool {
	ns := string(el.NamespaceURI())
	return ns == "" || ns == scxmlNS
}

func (b *builder) nextAnonID() string {
	b.anon++
	return fmt.Sprintf("__anon.%d", b.anon)
}

// buildState converts el (a scxml/state/parallel/final/history element) into
// a document.Node, recursing into its children.
func (b *builder) buildState(el xmldom.Element, kind document.Kind) (*document.Node, error) {
	n := &document.Node{ID: attr(el, "id"), Kind: kind}
	if n.ID == "" {
		n.ID = b.nextAnonID()
	}
	n.Initial = attr(el, "initial")
	if attr(el, "type") == "deep" {
		n.HistoryType = document.HistoryDeep
	}
	n.BindingLate = false

	for _, c := range children(el) {
		if !isSCXMLNamespace(c) {
			continue // foreign top-level elements aren't executable content here
		}
		switch localName(c) {
		case "state":
			child, err := b.buildState(c, document.KindCompound)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case "parallel":
			child, err := b.buildState(c, document.KindParallel)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case "final":
			child, err := b.buildState(c, document.KindFinal)
			if err != nil {
				return nil, err
			}
			child.Done = b.buildDoneData(c)
			n.Children = append(n.Children, child)
		case "history":
			child, err := b.buildState(c, document.KindHistory)
			if err != nil {
				return nil, err
			}
			n.Children = append(n.Children, child)
		case "initial":
			// <initial> holds exactly one <transition> whose targets become
			// the node's resolved Initial.
			for _, t := range children(c) {
				if localName(t) == "transition" {
					targets := strings.Fields(attr(t, "target"))
					if len(targets) > 0 {
						n.Initial = targets[0]
					}
				}
			}
		case "transition":
			tr, err := b.buildTransition(c)
			if err != nil {
				return nil, err
			}
			tr.SourceID = n.ID
			n.Transitions = append(n.Transitions, tr)
		case "datamodel":
			for _, d := range children(c) {
				if localName(d) == "data" {
					n.Datamodel = append(n.Datamodel, document.DataItem{
						ID:      attr(d, "id"),
						Expr:    attr(d, "expr"),
						Src:     attr(d, "src"),
						Content: strings.TrimSpace(string(d.TextContent())),
					})
				}
			}
		case "onentry":
			actions, err := b.buildActions(c)
			if err != nil {
				return nil, err
			}
			n.OnEntry = append(n.OnEntry, actions...)
		case "onexit":
			actions, err := b.buildActions(c)
			if err != nil {
				return nil, err
			}
			n.OnExit = append(n.OnExit, actions...)
		case "invoke":
			inv, err := b.buildInvoke(c)
			if err != nil {
				return nil, err
			}
			n.Invokes = append(n.Invokes, inv)
		case "donedata":
			// handled by the parent <final> case above; ignore if seen bare.
		default:
			if b.mode == ModeStrict {
				return nil, fmt.Errorf("xmlload: unknown SCXML element <%s> (STRICT mode)", localName(c))
			}
		}
	}
	return n, nil
}

func (b *builder) buildDoneData(finalEl xmldom.Element) *document.DoneData {
	for _, c := range children(finalEl) {
		if localName(c) == "donedata" {
			dd := &document.DoneData{}
			for _, cc := range children(c) {
				switch localName(cc) {
				case "content":
					dd.Content = b.buildContent(cc)
				case "param":
					dd.Params = append(dd.Params, document.Param{
						Name:     attr(cc, "name"),
						Expr:     attr(cc, "expr"),
						Location: attr(cc, "location"),
					})
				}
			}
			return dd
		}
	}
	return nil
}

func (b *builder) buildContent(el xmldom.Element) *document.ContentSpec {
	return &document.ContentSpec{
		Expr:    attr(el, "expr"),
		Literal: strings.TrimSpace(string(el.TextContent())),
	}
}

func (b *builder) buildTransition(el xmldom.Element) (document.Transition, error) {
	tr := document.Transition{
		Cond:    attr(el, "cond"),
		Targets: strings.Fields(attr(el, "target")),
	}
	if ev := attr(el, "event"); ev != "" {
		tr.Events = strings.Fields(ev)
	}
	if attr(el, "type") == "internal" {
		tr.Type = document.TransitionInternal
	}
	actions, err := b.buildActions(el)
	if err != nil {
		return tr, err
	}
	tr.Actions = actions
	return tr, nil
}

func (b *builder) buildInvoke(el xmldom.Element) (document.Invoke, error) {
	inv := document.Invoke{
		ID:       attr(el, "id"),
		IDExpr:   attr(el, "idlocation"),
		Type:     orDefault(attr(el, "type"), "scxml"),
		TypeExpr: attr(el, "typeexpr"),
		Src:      attr(el, "src"),
		SrcExpr:  attr(el, "srcexpr"),
	}
	if autof := attr(el, "autoforward"); autof == "true" {
		inv.Autoforward = true
	}
	if nl := attr(el, "namelist"); nl != "" {
		inv.Namelist = strings.Fields(nl)
	}
	for _, c := range children(el) {
		switch localName(c) {
		case "param":
			inv.Params = append(inv.Params, document.Param{
				Name:     attr(c, "name"),
				Expr:     attr(c, "expr"),
				Location: attr(c, "location"),
			})
		case "content":
			inv.Content = b.buildContent(c)
		case "finalize":
			actions, err := b.buildActions(c)
			if err != nil {
				return inv, err
			}
			inv.Finalize = actions
		}
	}
	return inv, nil
}

// buildActions converts a container element's executable-content children
// in document order. Elements outside the SCXML namespace
// become document.Custom, dispatched at runtime to a registered
// NamespaceHandler.
func (b *builder) buildActions(container xmldom.Element) ([]document.Action, error) {
	return b.buildActionList(children(container))
}

// buildIf folds the if/elseif*/else ladder into document.If's Branches,
// splitting siblings at each elseif/else boundary (SCXML 4.3).
func (b *builder) buildIf(el xmldom.Element) (document.If, error) {
	ifAction := document.If{}
	kids := children(el)
	cond := attr(el, "cond")
	var cur []xmldom.Element
	flush := func(c string) error {
		actions, err := b.buildActionList(cur)
		if err != nil {
			return err
		}
		ifAction.Branches = append(ifAction.Branches, document.IfBranch{Cond: c, Actions: actions})
		cur = nil
		return nil
	}
	for _, c := range kids {
		if isSCXMLNamespace(c) && localName(c) == "elseif" {
			if err := flush(cond); err != nil {
				return ifAction, err
			}
			cond = attr(c, "cond")
			continue
		}
		if isSCXMLNamespace(c) && localName(c) == "else" {
			if err := flush(cond); err != nil {
				return ifAction, err
			}
			cond = ""
			continue
		}
		cur = append(cur, c)
	}
	if err := flush(cond); err != nil {
		return ifAction, err
	}
	return ifAction, nil
}

func (b *builder) buildActionList(els []xmldom.Element) ([]document.Action, error) {
	var out []document.Action
	for _, c := range els {
		if !isSCXMLNamespace(c) {
			out = append(out, b.buildCustom(c))
			continue
		}
		one, err := b.buildOne(c)
		if err != nil {
			return nil, err
		}
		if one != nil {
			out = append(out, one)
		}
	}
	return out, nil
}

// buildOne builds exactly one executable-content action from c, used by the
// if/elseif/else splitter which already has individual element handles.
func (b *builder) buildOne(c xmldom.Element) (document.Action, error) {
	switch localName(c) {
	case "raise":
		return document.Raise{Event: attr(c, "event"), EventExpr: attr(c, "eventexpr")}, nil
	case "log":
		return document.Log{Label: attr(c, "label"), Expr: attr(c, "expr")}, nil
	case "assign":
		return document.Assign{
			Location:   attr(c, "location"),
			Expr:       attr(c, "expr"),
			AssignType: attr(c, "type"),
			Content:    strings.TrimSpace(string(c.TextContent())),
		}, nil
	case "if":
		return b.buildIf(c)
	case "foreach":
		actions, err := b.buildActions(c)
		if err != nil {
			return nil, err
		}
		return document.Foreach{Array: attr(c, "array"), Item: attr(c, "item"), Index: attr(c, "index"), Actions: actions}, nil
	case "send":
		return b.buildSend(c)
	case "cancel":
		return document.Cancel{SendID: attr(c, "sendid"), SendIDExpr: attr(c, "sendidexpr")}, nil
	case "script":
		return document.Script{Src: attr(c, "src"), Content: strings.TrimSpace(string(c.TextContent()))}, nil
	default:
		if b.mode == ModeStrict {
			return nil, fmt.Errorf("xmlload: unknown executable content <%s> (STRICT mode)", localName(c))
		}
		return nil, nil
	}
}

func (b *builder) buildSend(el xmldom.Element) (document.Send, error) {
	send := document.Send{
		Event:      attr(el, "event"),
		EventExpr:  attr(el, "eventexpr"),
		Target:     attr(el, "target"),
		TargetExpr: attr(el, "targetexpr"),
		Type:       attr(el, "type"),
		TypeExpr:   attr(el, "typeexpr"),
		ID:         attr(el, "id"),
		IDLocation: attr(el, "idlocation"),
		Delay:      orDefault(attr(el, "delay"), ""),
		DelayExpr:  attr(el, "delayexpr"),
	}
	if nl := attr(el, "namelist"); nl != "" {
		send.Namelist = strings.Fields(nl)
	}
	for _, c := range children(el) {
		switch localName(c) {
		case "param":
			send.Params = append(send.Params, document.Param{
				Name:     attr(c, "name"),
				Expr:     attr(c, "expr"),
				Location: attr(c, "location"),
			})
		case "content":
			send.Content = b.buildContent(c)
		}
	}
	return send, nil
}

// buildCustom captures a foreign-namespace element as a flat Custom action.
// Its own children, if any, are not recursed into; extension elements such
// as <env:get> and <stdin:read> are always leaves.
func (b *builder) buildCustom(el xmldom.Element) document.Custom {
	attrs := make(map[string]string)
	list := el.Attributes()
	if list != nil {
		for i := uint(0); i < list.Length(); i++ {
			a := list.Item(i)
			if a == nil {
				continue
			}
			attrs[string(a.LocalName())] = string(a.(xmldom.Attr).Value())
		}
	}
	return document.Custom{
		URI:   string(el.NamespaceURI()),
		Tag:   localName(el),
		Attrs: attrs,
		Text:  strings.TrimSpace(string(el.TextContent())),
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
