package scjson

import (
	"context"
	"sort"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/agentflare-ai/scjson-go/document"
	"github.com/agentflare-ai/scjson-go/trace"
)

var tracer oteltrace.Tracer = otel.Tracer("github.com/agentflare-ai/scjson-go")

// IOProcessor is an external transport an invoking host can register so
// the runtime's external Send targets reach the outside world.
type IOProcessor interface {
	Handle(ctx context.Context, event *Event) error
	Location(ctx context.Context) (string, error)
	Type() string
	Shutdown(ctx context.Context) error
}

// Runtime is one running chart instance: the document's activation graph
// plus all the mutable state — configuration, queues, clock, history
// memory, data frames. A Runtime invoked as a child is itself a Runtime;
// see invoke.go.
type Runtime struct {
	doc   *document.Document
	graph *Graph
	dm    *DataModel
	queue *eventQueue
	clock Clock

	sessionID  string
	mode       Mode
	ioProc     IOProcessor
	namespaces map[string]NamespaceHandler

	active        map[int]bool
	historyMemory map[int][]int
	doneEmitted   map[int]bool
	invokes       map[string]*invocation // keyed by invoke-id, this runtime's own children
	invokedBy     map[int][]string       // owning state idx -> invoke-ids started for it
	ownedSendIDs  map[int][]string       // owning state idx -> idlocation send-ids, cancelled on exit

	parent       *Runtime // nil for a root runtime
	selfInvokeID string   // this runtime's invoke-id as seen by parent

	fullStates       bool
	halted           bool
	muteEvalErrors   bool
	lastRootDoneData any

	// perStepLog/perStepDelta are reset at the start of every Microstep call
	// and read by buildRecord at the end of it (C6 "test-observable" sink).
	perStepLog   []trace.ActionLogEntry
	perStepDelta map[string]any
	perStepErr   []string
}

// NewRuntime builds the activation graph from doc and returns a runtime
// positioned before initial entry; callers must call Start to perform the
// document's initial entry.
func NewRuntime(doc *document.Document, opts ...RunOption) (*Runtime, error) {
	cfg := Config{Mode: ModeStrict}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Clock == nil {
		cfg.Clock = NewVirtualClock()
	}
	graph, err := BuildGraph(doc)
	if err != nil {
		// A graph can't be built past an unresolved structural link even in
		// LAX mode; the validator is the place to get diagnostics instead of
		// a hard error.
		return nil, err
	}
	sessionID := uuid.NewString()
	namespaces := make(map[string]NamespaceHandler, len(cfg.Namespaces))
	for _, h := range cfg.Namespaces {
		namespaces[h.URI()] = h
	}
	rt := &Runtime{
		doc:           doc,
		graph:         graph,
		queue:         newEventQueue(cfg.Clock),
		clock:         cfg.Clock,
		sessionID:     sessionID,
		mode:          cfg.Mode,
		ioProc:        cfg.IOProcessor,
		namespaces:    namespaces,
		active:        make(map[int]bool),
		historyMemory: make(map[int][]int),
		doneEmitted:   make(map[int]bool),
		invokes:       make(map[string]*invocation),
		invokedBy:     make(map[int][]string),
		ownedSendIDs:  make(map[int][]string),
		fullStates:    cfg.FullStates,
	}
	rt.dm = newDataModel(graph, sessionID)
	rt.dm.inConfig = rt.isActiveID
	return rt, nil
}

// SessionID returns this runtime's session identifier (_sessionid).
func (rt *Runtime) SessionID() string { return rt.sessionID }

// Enqueue delivers an external event.
func (rt *Runtime) Enqueue(name string, data any) {
	rt.queue.enqueueExternal(Event{Name: name, Data: data, Type: EventExternal})
}

// AdvanceTime moves the virtual clock forward and flushes any now-due
// delayed sends into the external queue.
func (rt *Runtime) AdvanceTime(ctx context.Context, deltaMicro int64) {
	_, span := tracer.Start(ctx, "scjson.advance_time")
	defer span.End()
	rt.queue.advanceTime(deltaMicro)
}

// Configuration returns the sorted ids of every currently active node,
// leaf-and-ancestor inclusive.
func (rt *Runtime) Configuration() []string {
	out := make([]string, 0, len(rt.active))
	for idx := range rt.active {
		if id := rt.graph.Node(idx).ID; id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// LeafConfiguration returns the sorted ids of the active atomic states only.
func (rt *Runtime) LeafConfiguration() []string {
	out := make([]string, 0, len(rt.active))
	for idx := range rt.active {
		if !rt.graph.IsAtomic(idx) {
			continue
		}
		if id := rt.graph.Node(idx).ID; id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (rt *Runtime) isActiveID(stateID string) bool {
	idx, ok := rt.graph.IndexOf(stateID)
	if !ok {
		return false
	}
	return rt.active[idx]
}

// Start performs the document's initial entry, entering the implied default
// chain down to the atomic leaves, and starts any invocations reachable at
// the resulting stable configuration.
func (rt *Runtime) Start(ctx context.Context) (*trace.Record, error) {
	ctx, span := tracer.Start(ctx, "scjson.start")
	defer span.End()

	rt.beginStep()
	if rt.doc.Binding != "late" {
		// Early binding initializes every node's local data up front; a node
		// entered later sees values computed at document init, not at entry.
		for idx := 0; idx < rt.graph.Len(); idx++ {
			if err := rt.dm.InitNode(ctx, idx); err != nil {
				rt.raiseError("error.execution", map[string]any{"message": err.Error()})
			}
		}
	}
	root := rt.graph.Root()
	entrySet := append([]int{root}, rt.defaultEntryChain(root)...)
	if err := rt.enterStates(ctx, entrySet); err != nil {
		return nil, err
	}
	for _, idx := range entrySet {
		rt.active[idx] = true
	}
	rt.propagateDone(ctx, entrySet)
	if err := rt.startEligibleInvokes(ctx); err != nil {
		return nil, err
	}
	return rt.buildRecord(nil, nil, entrySet, nil), nil
}

// Microstep performs exactly one selection-and-commit cycle:
// eventless transitions are checked first, then one internal event is
// consumed, and an external event is consumed only when neither applies.
// ok is false once the queues are empty and no eventless transition is
// enabled — i.e. the current macrostep is complete.
func (rt *Runtime) Microstep(ctx context.Context) (rec *trace.Record, ok bool, err error) {
	if rt.halted {
		return nil, false, nil
	}
	ctx, span := tracer.Start(ctx, "scjson.microstep")
	defer span.End()
	span.SetAttributes(attribute.Int("configuration.size", len(rt.active)))

	rt.beginStep()

	// Selection order at a microstep boundary: eventless transitions first,
	// then the internal queue, and only at the macrostep boundary one
	// external event.
	var evt *Event
	switch {
	case rt.hasEventlessEnabled(ctx):
		evt = nil
	case rt.queue.hasInternal():
		e, _ := rt.queue.nextEvent()
		evt = &e
	default:
		rt.queue.advanceTime(0)
		e, has := rt.popExternal()
		if !has {
			return nil, false, nil
		}
		// Autoforwarding children see every external event before the
		// parent processes it.
		if err := rt.forwardAutoforward(ctx, e); err != nil {
			return nil, true, err
		}
		evt = &e
	}

	rt.dm.currentEvent = evt
	if evt != nil {
		span.SetAttributes(attribute.String("event.name", evt.Name))
	}

	fired, err := rt.selectTransitions(ctx, evt)
	if err != nil {
		return nil, true, err
	}
	entered, exited, err := rt.commit(ctx, fired)
	if err != nil {
		return nil, true, err
	}
	if err := rt.startEligibleInvokes(ctx); err != nil {
		return nil, true, err
	}
	return rt.buildRecord(evt, fired, entered, exited), true, nil
}

func (rt *Runtime) popExternal() (Event, bool) {
	if len(rt.queue.external) == 0 {
		return Event{}, false
	}
	e := rt.queue.external[0]
	rt.queue.external = rt.queue.external[1:]
	return e, true
}

func (rt *Runtime) beginStep() {
	rt.perStepLog = nil
	rt.perStepDelta = make(map[string]any)
	rt.perStepErr = nil
}

func (rt *Runtime) buildRecord(evt *Event, fired []firedTransition, entered, exited []int) *trace.Record {
	config := rt.LeafConfiguration()
	if rt.fullStates {
		config = rt.Configuration()
	}
	rec := &trace.Record{
		Configuration:  trace.SortedConfiguration(config),
		ActionLog:      rt.perStepLog,
		DatamodelDelta: rt.perStepDelta,
		Errors:         rt.perStepErr,
	}
	if evt != nil {
		rec.Event = &trace.EventRecord{Name: evt.Name, Data: evt.Data}
	}
	for _, ft := range fired {
		rec.FiredTransitions = append(rec.FiredTransitions, trace.FiredTransition{
			Source:  rt.graph.Node(ft.sourceIdx).ID,
			Targets: idsOf(rt.graph, ft.targets),
			Event:   firstOr(ft.transition.Events, ""),
			Cond:    ft.transition.Cond,
		})
	}
	rec.EnteredStates = idsOf(rt.graph, entered)
	rec.ExitedStates = idsOf(rt.graph, exited)
	return rec
}

func idsOf(g *Graph, idxs []int) []string {
	out := make([]string, 0, len(idxs))
	for _, i := range idxs {
		if id := g.Node(i).ID; id != "" {
			out = append(out, id)
		}
	}
	return out
}

func firstOr(s []string, def string) string {
	if len(s) == 0 {
		return def
	}
	return s[0]
}

// recordLog appends to the test-observable log sink.
func (rt *Runtime) recordLog(kind, value string) {
	rt.perStepLog = append(rt.perStepLog, trace.ActionLogEntry{Type: kind, Value: value})
}

func (rt *Runtime) recordDelta(name string, value any) {
	rt.perStepDelta[name] = value
}

func (rt *Runtime) recordError(msg string) {
	rt.perStepErr = append(rt.perStepErr, msg)
}

func (rt *Runtime) raiseError(name string, data map[string]any) {
	rt.queue.enqueueInternal(Event{Name: name, Data: data, Type: EventInternal})
	if msg, ok := data["message"].(string); ok {
		rt.recordError(msg)
	}
}
