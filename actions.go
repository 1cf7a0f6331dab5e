package scjson

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/agentflare-ai/scjson-go/document"
	"github.com/agentflare-ai/scjson-go/eval"
)

// execActions runs a document-order list of executable content in the scope
// of scopeIdx. A failing action raises error.execution onto the internal
// queue and aborts the REMAINDER OF THIS BLOCK ONLY, so the
// surrounding onentry/onexit/transition loop in configuration.go keeps going.
func (rt *Runtime) execActions(ctx context.Context, scopeIdx int, actions []document.Action) error {
	for _, a := range actions {
		if err := rt.execOne(ctx, scopeIdx, a); err != nil {
			rt.raiseError("error.execution", map[string]any{"message": err.Error()})
			return nil
		}
	}
	return nil
}

func (rt *Runtime) execOne(ctx context.Context, scopeIdx int, a document.Action) error {
	switch act := a.(type) {
	case document.Raise:
		name := act.Event
		if act.EventExpr != "" {
			v, err := rt.dm.EvalExpr(ctx, scopeIdx, act.EventExpr)
			if err != nil {
				return err
			}
			name = fmt.Sprint(v)
		}
		rt.queue.enqueueInternal(Event{Name: name, Type: EventInternal})
		rt.recordLog("raise", name)
		return nil

	case document.Assign:
		val, err := rt.valueForAssign(ctx, scopeIdx, act)
		if err != nil {
			return err
		}
		if err := rt.dm.Assign(scopeIdx, act.Location, val); err != nil {
			return err
		}
		rt.recordLog("assign", act.Location)
		rt.recordDelta(act.Location, val)
		return nil

	case document.Log:
		var msg string
		if act.Expr != "" {
			v, err := rt.dm.EvalExpr(ctx, scopeIdx, act.Expr)
			if err != nil {
				return err
			}
			msg = fmt.Sprint(v)
		}
		if act.Label != "" {
			msg = act.Label + ": " + msg
		}
		rt.recordLog("log", msg)
		return nil

	case document.If:
		for _, branch := range act.Branches {
			if branch.Cond == "" {
				return rt.execActions(ctx, scopeIdx, branch.Actions)
			}
			ok, err := rt.dm.EvalCond(ctx, scopeIdx, branch.Cond)
			if err != nil {
				return err
			}
			if ok {
				return rt.execActions(ctx, scopeIdx, branch.Actions)
			}
		}
		return nil

	case document.Foreach:
		return rt.execForeach(ctx, scopeIdx, act)

	case document.Send:
		return rt.execSend(ctx, scopeIdx, act)

	case document.Cancel:
		sendID := act.SendID
		if act.SendIDExpr != "" {
			v, err := rt.dm.EvalExpr(ctx, scopeIdx, act.SendIDExpr)
			if err != nil {
				return err
			}
			sendID = fmt.Sprint(v)
		}
		rt.queue.cancel(sendID)
		return nil

	case document.Script:
		// <script> would require general host eval, which the sandbox
		// forbids, so it is ignored.
		return nil

	case document.Custom:
		handler := rt.namespaceHandler(act.URI)
		if handler == nil {
			return fmt.Errorf("no namespace handler registered for %q", act.URI)
		}
		handled, err := handler.Handle(ctx, rt, act)
		if err != nil {
			return err
		}
		if !handled {
			return fmt.Errorf("namespace %q does not recognize element <%s>", act.URI, act.Tag)
		}
		return nil

	default:
		return fmt.Errorf("unrecognized action %T", a)
	}
}

func (rt *Runtime) valueForAssign(ctx context.Context, scopeIdx int, act document.Assign) (any, error) {
	if act.Expr != "" {
		return rt.dm.EvalExpr(ctx, scopeIdx, act.Expr)
	}
	return act.Content, nil
}

func (rt *Runtime) execForeach(ctx context.Context, scopeIdx int, act document.Foreach) error {
	arr, err := rt.dm.EvalExpr(ctx, scopeIdx, act.Array)
	if err != nil {
		return err
	}
	items, err := toIterable(arr)
	if err != nil {
		return &ActionError{Action: "foreach", Message: err.Error()}
	}
	frame := rt.dm.frame(scopeIdx)
	for i, item := range items {
		frame[act.Item] = item
		if act.Index != "" {
			frame[act.Index] = int64(i)
		}
		if err := rt.execActions(ctx, scopeIdx, act.Actions); err != nil {
			return err
		}
	}
	return nil
}

func toIterable(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case []string:
		out := make([]any, len(t))
		for i, s := range t {
			out[i] = s
		}
		return out, nil
	case eval.Tuple:
		return []any(t), nil
	case *eval.Set:
		return t.Items(), nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	default:
		return nil, fmt.Errorf("value is not iterable")
	}
}

func (rt *Runtime) evalParam(ctx context.Context, scopeIdx int, p document.Param) (any, error) {
	if p.Expr != "" {
		return rt.dm.EvalExpr(ctx, scopeIdx, p.Expr)
	}
	if p.Location != "" {
		if v, ok := rt.dm.Lookup(scopeIdx, p.Location); ok {
			return v, nil
		}
		return nil, fmt.Errorf("unresolved param location %q", p.Location)
	}
	return nil, nil
}

func (rt *Runtime) evalDoneData(ctx context.Context, scopeIdx int, dd *document.DoneData) any {
	if dd == nil {
		return nil
	}
	if dd.Content != nil {
		if dd.Content.Expr != "" {
			v, err := rt.dm.EvalExpr(ctx, scopeIdx, dd.Content.Expr)
			if err != nil {
				rt.raiseError("error.execution", map[string]any{"message": err.Error()})
				return nil
			}
			return v
		}
		if dd.Content.Literal != "" {
			return dd.Content.Literal
		}
	}
	if len(dd.Params) == 0 {
		return nil
	}
	out := make(map[string]any, len(dd.Params))
	for _, p := range dd.Params {
		if v, err := rt.evalParam(ctx, scopeIdx, p); err == nil {
			out[p.Name] = v
		}
	}
	return out
}

// execSend implements C6 <send>: target resolution, delay parsing, and
// payload assembly from namelist/params/content.
func (rt *Runtime) execSend(ctx context.Context, scopeIdx int, act document.Send) error {
	name := act.Event
	if act.EventExpr != "" {
		v, err := rt.dm.EvalExpr(ctx, scopeIdx, act.EventExpr)
		if err != nil {
			return err
		}
		name = fmt.Sprint(v)
	}

	target := act.Target
	if act.TargetExpr != "" {
		v, err := rt.dm.EvalExpr(ctx, scopeIdx, act.TargetExpr)
		if err != nil {
			return err
		}
		target = fmt.Sprint(v)
	}

	sendID := act.ID
	if act.IDLocation != "" {
		sendID = uuid.NewString()
		if err := rt.dm.Assign(scopeIdx, act.IDLocation, sendID); err != nil {
			return err
		}
		// Sends bound through idlocation are owned by the authoring state and
		// cancelled when it exits.
		rt.ownedSendIDs[scopeIdx] = append(rt.ownedSendIDs[scopeIdx], sendID)
	} else if sendID == "" {
		sendID = uuid.NewString()
	}

	payload, err := rt.buildSendPayload(ctx, scopeIdx, act)
	if err != nil {
		return err
	}
	evt := Event{Name: name, Data: payload, SendID: sendID, Origin: rt.sessionID}

	var delayMicro int64
	if act.Delay != "" || act.DelayExpr != "" {
		delayStr := act.Delay
		if act.DelayExpr != "" {
			v, err := rt.dm.EvalExpr(ctx, scopeIdx, act.DelayExpr)
			if err != nil {
				return err
			}
			delayStr = fmt.Sprint(v)
		}
		d, err := parseCSSDuration(delayStr)
		if err != nil {
			return &ActionError{Action: "send", Message: err.Error()}
		}
		delayMicro = d.Microseconds()
	}

	if delayMicro > 0 {
		rt.queue.schedule(evt, delayMicro, sendID)
		return nil
	}
	return rt.dispatchSend(ctx, target, evt)
}

// dispatchSend routes an immediately-due send to its target queue:
// #_internal, #_parent, #_invokeid(id), or the external queue of this
// runtime (including any registered IOProcessor).
func (rt *Runtime) dispatchSend(ctx context.Context, target string, evt Event) error {
	switch {
	case target == "#_internal":
		rt.queue.enqueueInternal(evt)
		return nil
	case target == "#_parent":
		if rt.parent == nil {
			return &ActionError{Action: "send", Message: "#_parent target used outside an invoked child"}
		}
		evt.InvokeID = rt.selfInvokeID
		rt.parent.queue.enqueueExternal(evt)
		return nil
	case strings.HasPrefix(target, "#_") && strings.Contains(target, "("):
		id := target[strings.Index(target, "(")+1 : strings.Index(target, ")")]
		return rt.forwardToInvoke(ctx, id, evt)
	case target == "" || target == "#_scxml_session" || target == "#_self":
		rt.queue.enqueueExternal(evt)
		return nil
	default:
		rt.queue.enqueueExternal(evt)
		if rt.ioProc != nil {
			return rt.ioProc.Handle(ctx, &evt)
		}
		return nil
	}
}

// buildSendPayload assembles an event's data from namelist (copied by name
// from the current scope), params (evaluated), and content.
func (rt *Runtime) buildSendPayload(ctx context.Context, scopeIdx int, act document.Send) (any, error) {
	if act.Content != nil {
		if act.Content.Expr != "" {
			return rt.dm.EvalExpr(ctx, scopeIdx, act.Content.Expr)
		}
		if act.Content.Literal != "" {
			return act.Content.Literal, nil
		}
	}
	if len(act.Namelist) == 0 && len(act.Params) == 0 {
		return nil, nil
	}
	out := make(map[string]any)
	for _, name := range act.Namelist {
		if v, ok := rt.dm.Lookup(scopeIdx, name); ok {
			out[name] = v
		}
	}
	for _, p := range act.Params {
		v, err := rt.evalParam(ctx, scopeIdx, p)
		if err != nil {
			return nil, err
		}
		out[p.Name] = v
	}
	return out, nil
}

// parseCSSDuration parses a CSS2-style duration ("Ns" / "Nms").
func parseCSSDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	switch {
	case strings.HasSuffix(s, "ms"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(s, "ms"), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed delay %q", s)
		}
		return time.Duration(n * float64(time.Millisecond)), nil
	case strings.HasSuffix(s, "s"):
		n, err := strconv.ParseFloat(strings.TrimSuffix(s, "s"), 64)
		if err != nil {
			return 0, fmt.Errorf("malformed delay %q", s)
		}
		return time.Duration(n * float64(time.Second)), nil
	default:
		return 0, fmt.Errorf("malformed delay %q", s)
	}
}
