package scjson

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/agentflare-ai/scjson-go/document"
	"github.com/agentflare-ai/scjson-go/jsonload"
	"github.com/agentflare-ai/scjson-go/xmlload"
)

// Handler is what an invocation type registers to participate in the
// invoke lifecycle: start with a payload, receive forwarded events, stop on
// cancellation or owner exit.
type Handler interface {
	Start(ctx context.Context, payload any) error
	Send(ctx context.Context, evt Event) error
	Stop(ctx context.Context) error
}

// invocation tracks one running Handler plus the bookkeeping needed to emit
// finalize-then-done.invoke exactly once.
type invocation struct {
	id          string
	ownerState  int
	spec        document.Invoke
	handler     Handler
	child       *Runtime // set only for the in-process scxml/scjson handler
	autoforward bool
	doneSent    bool
}

// childHandler is the scxml/scjson invoke type: an independent Runtime over
// the same core, driven synchronously to its next stable point on every
// Start/Send call.
type childHandler struct {
	rt *Runtime
}

func (h *childHandler) Start(ctx context.Context, payload any) error {
	if m, ok := payload.(map[string]any); ok {
		root := h.rt.dm.frame(h.rt.graph.Root())
		for k, v := range m {
			root[k] = v
		}
	}
	if _, err := h.rt.Start(ctx); err != nil {
		return err
	}
	return h.rt.pumpToStability(ctx)
}

func (h *childHandler) Send(ctx context.Context, evt Event) error {
	h.rt.Enqueue(evt.Name, evt.Data)
	return h.rt.pumpToStability(ctx)
}

func (h *childHandler) Stop(ctx context.Context) error {
	h.rt.halted = true
	h.rt.stopAllInvokes(ctx)
	return nil
}

// pumpToStability drains eventless/internal microsteps until the runtime is
// idle (its own macrostep boundary), since nothing else drives a child
// runtime's loop.
func (rt *Runtime) pumpToStability(ctx context.Context) error {
	for {
		if rt.halted {
			return nil
		}
		_, ok, err := rt.Microstep(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

// startEligibleInvokes starts every not-yet-started invoke of every active
// state, but only once this runtime has reached a stable configuration (no
// eventless transition enabled).
func (rt *Runtime) startEligibleInvokes(ctx context.Context) error {
	if rt.hasEventlessEnabled(ctx) {
		return nil
	}
	for _, idx := range rt.activeDocumentOrder() {
		n := rt.graph.Node(idx)
		started := rt.invokedBy[idx]
		for i := len(started); i < len(n.Invokes); i++ {
			if err := rt.startInvoke(ctx, idx, n.Invokes[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (rt *Runtime) activeDocumentOrder() []int {
	out := make([]int, 0, len(rt.active))
	for idx := range rt.active {
		out = append(out, idx)
	}
	sort.Ints(out)
	return out
}

func (rt *Runtime) startInvoke(ctx context.Context, ownerIdx int, spec document.Invoke) error {
	id := spec.ID
	if id == "" && spec.IDExpr != "" {
		v, err := rt.dm.EvalExpr(ctx, ownerIdx, spec.IDExpr)
		if err != nil {
			return &InvokeError{Message: "id_expr evaluation failed", Cause: err}
		}
		id = fmt.Sprint(v)
	}
	if id == "" {
		id = uuid.NewString()
	}

	handler, child, err := rt.makeHandler(ctx, ownerIdx, spec, id)
	if err != nil {
		rt.raiseError("error.communication", map[string]any{"message": err.Error(), "invokeid": id})
		return nil
	}

	payload, err := rt.buildInvokePayload(ctx, ownerIdx, spec)
	if err != nil {
		return err
	}

	inv := &invocation{id: id, ownerState: ownerIdx, spec: spec, handler: handler, child: child, autoforward: spec.Autoforward}
	rt.invokes[id] = inv
	rt.invokedBy[ownerIdx] = append(rt.invokedBy[ownerIdx], id)

	if err := handler.Start(ctx, payload); err != nil {
		rt.raiseError("error.communication", map[string]any{"message": err.Error(), "invokeid": id})
		return nil
	}
	rt.checkChildDone(ctx, inv)
	return nil
}

// makeHandler resolves the invoke's type/src/content to a Handler. Only the
// scxml and scjson in-process child-runtime type is supported; every other
// type reports InvokeError.
func (rt *Runtime) makeHandler(ctx context.Context, ownerIdx int, spec document.Invoke, id string) (Handler, *Runtime, error) {
	typ := spec.Type
	if spec.TypeExpr != "" {
		v, err := rt.dm.EvalExpr(ctx, ownerIdx, spec.TypeExpr)
		if err != nil {
			return nil, nil, err
		}
		typ = fmt.Sprint(v)
	}
	if typ != "" && !strings.Contains(typ, "scxml") && !strings.Contains(typ, "scjson") {
		return nil, nil, &InvokeError{InvokeID: id, Message: "unsupported invoke type " + typ}
	}

	src := spec.Src
	if spec.SrcExpr != "" {
		v, err := rt.dm.EvalExpr(ctx, ownerIdx, spec.SrcExpr)
		if err != nil {
			return nil, nil, err
		}
		src = fmt.Sprint(v)
	}

	childDoc, err := loadChildDocument(src, spec.Content, rt.mode)
	if err != nil {
		return nil, nil, &InvokeError{InvokeID: id, Message: "failed to load child document", Cause: err}
	}
	childRT, err := NewRuntime(childDoc, WithMode(rt.mode), WithClock(rt.clock))
	if err != nil {
		return nil, nil, &InvokeError{InvokeID: id, Message: "failed to build child runtime", Cause: err}
	}
	childRT.parent = rt
	childRT.selfInvokeID = id
	return &childHandler{rt: childRT}, childRT, nil
}

func loadChildDocument(src string, content *document.ContentSpec, mode Mode) (*document.Document, error) {
	var raw, name string
	switch {
	case content != nil && content.Literal != "":
		raw, name = content.Literal, "<invoke content>"
	case src != "":
		b, err := os.ReadFile(src)
		if err != nil {
			return nil, err
		}
		raw, name = string(b), src
	default:
		return nil, fmt.Errorf("invoke has neither src nor inline content")
	}
	if strings.HasPrefix(strings.TrimSpace(raw), "{") {
		jm := jsonload.ModeStrict
		if mode == ModeLax {
			jm = jsonload.ModeLax
		}
		return jsonload.Load(raw, name, jm)
	}
	xm := xmlload.ModeStrict
	if mode == ModeLax {
		xm = xmlload.ModeLax
	}
	return xmlload.Load(raw, name, xm)
}

func (rt *Runtime) buildInvokePayload(ctx context.Context, ownerIdx int, spec document.Invoke) (any, error) {
	out := make(map[string]any)
	for _, name := range spec.Namelist {
		if v, ok := rt.dm.Lookup(ownerIdx, name); ok {
			out[name] = v
		}
	}
	for _, p := range spec.Params {
		v, err := rt.evalParam(ctx, ownerIdx, p)
		if err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	// Inline literal content is the child document itself (see
	// loadChildDocument), so it never replaces the namelist/params payload.
	if spec.Content != nil {
		if spec.Content.Expr != "" {
			return rt.dm.EvalExpr(ctx, ownerIdx, spec.Content.Expr)
		}
	}
	return out, nil
}

// checkChildDone detects a completed child (root entered its final state)
// and runs finalize, strictly before done.invoke.<id> is enqueued, exactly
// once per invocation.
func (rt *Runtime) checkChildDone(ctx context.Context, inv *invocation) {
	if inv.doneSent || inv.child == nil || !inv.child.halted {
		return
	}
	inv.doneSent = true
	donedata := inv.child.lastRootDoneData

	prevEvent := rt.dm.currentEvent
	rt.dm.currentEvent = &Event{Name: "done.invoke." + inv.id, Data: donedata, InvokeID: inv.id}
	_ = rt.execActions(ctx, inv.ownerState, inv.spec.Finalize)
	rt.dm.currentEvent = prevEvent

	rt.queue.enqueueInternal(Event{Name: "done.invoke." + inv.id, Data: donedata, InvokeID: inv.id, Type: EventInternal})
}

// forwardAutoforward delivers evt to every autoforwarding child in document
// declaration order, before the parent itself processes it.
func (rt *Runtime) forwardAutoforward(ctx context.Context, evt Event) error {
	for _, id := range rt.invokeIDsDeclarationOrder() {
		inv := rt.invokes[id]
		if !inv.autoforward {
			continue
		}
		if err := inv.handler.Send(ctx, evt); err != nil {
			return err
		}
		rt.checkChildDone(ctx, inv)
	}
	return nil
}

func (rt *Runtime) invokeIDsDeclarationOrder() []string {
	owners := make([]int, 0, len(rt.invokedBy))
	for idx := range rt.invokedBy {
		owners = append(owners, idx)
	}
	sort.Ints(owners)
	var out []string
	for _, idx := range owners {
		out = append(out, rt.invokedBy[idx]...)
	}
	return out
}

func (rt *Runtime) forwardToInvoke(ctx context.Context, id string, evt Event) error {
	inv, ok := rt.invokes[id]
	if !ok {
		return &InvokeError{InvokeID: id, Message: "unknown invoke id"}
	}
	if err := inv.handler.Send(ctx, evt); err != nil {
		return err
	}
	rt.checkChildDone(ctx, inv)
	return nil
}

// stopInvokesForStates cancels every invocation owned by a state about to
// exit, before the state's own onexit runs. No done.invoke is emitted after
// cancel.
func (rt *Runtime) stopInvokesForStates(ctx context.Context, exitSet []int) {
	for _, idx := range exitSet {
		for _, id := range rt.invokedBy[idx] {
			if inv, ok := rt.invokes[id]; ok {
				_ = inv.handler.Stop(ctx)
				delete(rt.invokes, id)
			}
		}
		delete(rt.invokedBy, idx)
	}
}

func (rt *Runtime) stopAllInvokes(ctx context.Context) {
	for id, inv := range rt.invokes {
		_ = inv.handler.Stop(ctx)
		delete(rt.invokes, id)
	}
	rt.invokedBy = make(map[int][]string)
}
