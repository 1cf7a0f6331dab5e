// Package jsonload converts an SCJSON document (the JSON projection of the
// SCXML schema, as produced by the external SCXML<->SCJSON converter) into
// the engine's immutable document.Document tree.
//
// Field naming follows the converter's generated types:
// repeatable child elements are arrays keyed by their lowercase tag name
// ("state", "transition", "datamodel", ...), and an XML attribute that would
// otherwise collide with a same-named child element carries an "_attribute"
// suffix ("initial_attribute" for <state initial="...">, as distinct from
// the <initial> child element's "initial" key).
package jsonload

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/agentflare-ai/scjson-go/document"
)

// Mode controls how unknown constructs are treated.
type Mode int

const (
	ModeStrict Mode = iota
	ModeLax
)

// Load parses an SCJSON string into a document.Document.
func Load(jsonStr string, name string, mode Mode) (*document.Document, error) {
	var raw map[string]any
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("jsonload: parse %s: %w", name, err)
	}
	b := &builder{mode: mode, source: name}
	root, err := b.buildState(raw, document.KindRoot)
	if err != nil {
		return nil, err
	}
	binding := str(raw, "binding_attribute")
	if binding == "" {
		binding = "early"
	}
	return &document.Document{Root: root, Name: name, Binding: binding}, nil
}

type builder struct {
	mode   Mode
	source string
	anon   int
}

func (b *builder) nextAnonID() string {
	b.anon++
	return fmt.Sprintf("__anon.%d", b.anon)
}

func str(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

func strList(m map[string]any, key string) []string {
	v, ok := m[key]
	if !ok {
		return nil
	}
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case string:
		return strings.Fields(t)
	default:
		return nil
	}
}

// objList returns the array of objects at key, e.g. m["state"].
func objList(m map[string]any, key string) []map[string]any {
	v, ok := m[key]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(arr))
	for _, e := range arr {
		if obj, ok := e.(map[string]any); ok {
			out = append(out, obj)
		}
	}
	return out
}

// obj returns the single nested object at key, if present.
func obj(m map[string]any, key string) (map[string]any, bool) {
	v, ok := m[key]
	if !ok {
		return nil, false
	}
	o, ok := v.(map[string]any)
	return o, ok
}

// contentText collapses a content field, possibly an array of text chunks,
// into a plain string.
func contentText(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return t
	case []any:
		var sb strings.Builder
		for _, e := range t {
			fmt.Fprintf(&sb, "%v", e)
		}
		return sb.String()
	default:
		return fmt.Sprint(t)
	}
}

func (b *builder) buildState(m map[string]any, kind document.Kind) (*document.Node, error) {
	n := &document.Node{ID: str(m, "id"), Kind: kind}
	if n.ID == "" {
		n.ID = b.nextAnonID()
	}
	n.Initial = str(m, "initial_attribute")
	if n.Initial == "" {
		if inits := objList(m, "initial"); len(inits) > 0 {
			if trs := objList(inits[0], "transition"); len(trs) > 0 {
				if t := strList(trs[0], "target"); len(t) > 0 {
					n.Initial = t[0]
				}
			}
		}
	}
	if str(m, "type_attribute") == "deep" {
		n.HistoryType = document.HistoryDeep
	}

	for _, c := range objList(m, "state") {
		child, err := b.buildState(c, document.KindCompound)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	for _, c := range objList(m, "parallel") {
		child, err := b.buildState(c, document.KindParallel)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	for _, c := range objList(m, "final") {
		child, err := b.buildState(c, document.KindFinal)
		if err != nil {
			return nil, err
		}
		child.Done = b.buildDoneData(c)
		n.Children = append(n.Children, child)
	}
	for _, c := range objList(m, "history") {
		child, err := b.buildState(c, document.KindHistory)
		if err != nil {
			return nil, err
		}
		n.Children = append(n.Children, child)
	}
	for _, c := range objList(m, "transition") {
		tr := b.buildTransition(c)
		tr.SourceID = n.ID
		n.Transitions = append(n.Transitions, tr)
	}
	for _, dm := range objList(m, "datamodel") {
		for _, d := range objList(dm, "data") {
			n.Datamodel = append(n.Datamodel, document.DataItem{
				ID:      str(d, "id"),
				Expr:    str(d, "expr"),
				Src:     str(d, "src"),
				Content: contentText(d, "content"),
			})
		}
	}
	for _, oe := range objList(m, "onentry") {
		actions, err := b.buildActions(oe)
		if err != nil {
			return nil, err
		}
		n.OnEntry = append(n.OnEntry, actions...)
	}
	for _, oe := range objList(m, "onexit") {
		actions, err := b.buildActions(oe)
		if err != nil {
			return nil, err
		}
		n.OnExit = append(n.OnExit, actions...)
	}
	for _, iv := range objList(m, "invoke") {
		inv := b.buildInvoke(iv)
		n.Invokes = append(n.Invokes, inv)
	}
	return n, nil
}

func (b *builder) buildDoneData(finalObj map[string]any) *document.DoneData {
	dds := objList(finalObj, "donedata")
	if len(dds) == 0 {
		return nil
	}
	dd := &document.DoneData{}
	d := dds[0]
	if cs := objList(d, "content"); len(cs) > 0 {
		dd.Content = b.buildContent(cs[0])
	}
	for _, p := range objList(d, "param") {
		dd.Params = append(dd.Params, document.Param{Name: str(p, "name"), Expr: str(p, "expr"), Location: str(p, "location")})
	}
	return dd
}

func (b *builder) buildContent(m map[string]any) *document.ContentSpec {
	return &document.ContentSpec{Expr: str(m, "expr"), Literal: contentText(m, "content")}
}

func (b *builder) buildTransition(m map[string]any) document.Transition {
	tr := document.Transition{
		Cond:    str(m, "cond"),
		Targets: strList(m, "target"),
		Events:  strList(m, "event"),
	}
	if str(m, "type_attribute") == "internal" {
		tr.Type = document.TransitionInternal
	}
	actions, _ := b.buildActions(m)
	tr.Actions = actions
	return tr
}

func (b *builder) buildInvoke(m map[string]any) document.Invoke {
	inv := document.Invoke{
		ID:       str(m, "id"),
		IDExpr:   str(m, "idlocation"),
		Type:     str(m, "type_attribute"),
		TypeExpr: str(m, "typeexpr"),
		Src:      str(m, "src"),
		SrcExpr:  str(m, "srcexpr"),
		Namelist: strList(m, "namelist"),
	}
	if inv.Type == "" {
		inv.Type = "scxml"
	}
	if str(m, "autoforward") == "true" {
		inv.Autoforward = true
	}
	for _, p := range objList(m, "param") {
		inv.Params = append(inv.Params, document.Param{Name: str(p, "name"), Expr: str(p, "expr"), Location: str(p, "location")})
	}
	if cs := objList(m, "content"); len(cs) > 0 {
		inv.Content = b.buildContent(cs[0])
	}
	for _, fz := range objList(m, "finalize") {
		actions, _ := b.buildActions(fz)
		inv.Finalize = actions
	}
	return inv
}

func (b *builder) buildActions(m map[string]any) ([]document.Action, error) {
	var out []document.Action
	// Document order isn't recoverable from a plain Go map decode across
	// distinct tag keys; SCJSON is expected to preserve an explicit
	// "content_order" when it matters (non-goal here: fall back to a fixed
	// tag order, raise, log, assign, if, foreach, send, cancel, script, then
	// custom, with array index order within each tag).
	for _, tag := range []string{"raise", "log", "assign", "if", "foreach", "send", "cancel", "script"} {
		for _, c := range objList(m, tag) {
			act, err := b.buildOne(tag, c)
			if err != nil {
				return nil, err
			}
			if act != nil {
				out = append(out, act)
			}
		}
	}
	for _, c := range objList(m, "custom") {
		out = append(out, b.buildCustom(c))
	}
	return out, nil
}

func (b *builder) buildOne(tag string, c map[string]any) (document.Action, error) {
	switch tag {
	case "raise":
		return document.Raise{Event: str(c, "event"), EventExpr: str(c, "eventexpr")}, nil
	case "log":
		return document.Log{Label: str(c, "label"), Expr: str(c, "expr")}, nil
	case "assign":
		return document.Assign{
			Location:   str(c, "location"),
			Expr:       str(c, "expr"),
			AssignType: str(c, "type_attribute"),
			Content:    contentText(c, "content"),
		}, nil
	case "if":
		return b.buildIf(c)
	case "foreach":
		actions, err := b.buildActions(c)
		if err != nil {
			return nil, err
		}
		return document.Foreach{Array: str(c, "array"), Item: str(c, "item"), Index: str(c, "index"), Actions: actions}, nil
	case "send":
		return b.buildSend(c), nil
	case "cancel":
		return document.Cancel{SendID: str(c, "sendid"), SendIDExpr: str(c, "sendidexpr")}, nil
	case "script":
		return document.Script{Src: str(c, "src"), Content: contentText(c, "content")}, nil
	default:
		return nil, fmt.Errorf("jsonload: unknown executable content %q", tag)
	}
}

// buildIf reconstructs the if/elseif/else ladder. SCJSON keeps the branches
// as parallel "elseif"/"else" arrays on the same object rather than document
// order siblings (there is no text-node interleaving in JSON), so the first
// branch is the <if>'s own condition and body, followed by each <elseif> in
// array order, followed by <else> if present.
func (b *builder) buildIf(m map[string]any) (document.If, error) {
	ifAction := document.If{}
	first, err := b.buildActions(m)
	if err != nil {
		return ifAction, err
	}
	ifAction.Branches = append(ifAction.Branches, document.IfBranch{Cond: str(m, "cond"), Actions: first})
	for _, ei := range objList(m, "elseif") {
		actions, err := b.buildActions(ei)
		if err != nil {
			return ifAction, err
		}
		ifAction.Branches = append(ifAction.Branches, document.IfBranch{Cond: str(ei, "cond"), Actions: actions})
	}
	for _, el := range objList(m, "else") {
		actions, err := b.buildActions(el)
		if err != nil {
			return ifAction, err
		}
		ifAction.Branches = append(ifAction.Branches, document.IfBranch{Cond: "", Actions: actions})
	}
	return ifAction, nil
}

func (b *builder) buildSend(m map[string]any) document.Send {
	send := document.Send{
		Event:      str(m, "event"),
		EventExpr:  str(m, "eventexpr"),
		Target:     str(m, "target"),
		TargetExpr: str(m, "targetexpr"),
		Type:       str(m, "type_attribute"),
		TypeExpr:   str(m, "typeexpr"),
		ID:         str(m, "id"),
		IDLocation: str(m, "idlocation"),
		Delay:      str(m, "delay"),
		DelayExpr:  str(m, "delayexpr"),
		Namelist:   strList(m, "namelist"),
	}
	for _, p := range objList(m, "param") {
		send.Params = append(send.Params, document.Param{Name: str(p, "name"), Expr: str(p, "expr"), Location: str(p, "location")})
	}
	if cs := objList(m, "content"); len(cs) > 0 {
		send.Content = b.buildContent(cs[0])
	}
	return send
}

// buildCustom converts a foreign-namespace element captured by the
// converter under the "custom" key (an "_ns"/"_tag"/attrs/"_text" envelope)
// into document.Custom.
func (b *builder) buildCustom(m map[string]any) document.Custom {
	attrs := make(map[string]string)
	if rawAttrs, ok := obj(m, "attrs"); ok {
		for k, v := range rawAttrs {
			attrs[k] = fmt.Sprint(v)
		}
	}
	return document.Custom{
		URI:   str(m, "_ns"),
		Tag:   str(m, "_tag"),
		Attrs: attrs,
		Text:  str(m, "_text"),
	}
}
