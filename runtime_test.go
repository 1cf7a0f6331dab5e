package scjson

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/scjson-go/trace"
	"github.com/agentflare-ai/scjson-go/xmlload"
)

func newTestRuntime(t *testing.T, src string, opts ...RunOption) *Runtime {
	t.Helper()
	doc, err := xmlload.Load(src, "<test>", xmlload.ModeStrict)
	require.NoError(t, err)
	rt, err := NewRuntime(doc, opts...)
	require.NoError(t, err)
	_, err = rt.Start(context.Background())
	require.NoError(t, err)
	drainMacrostep(t, rt)
	return rt
}

// drainMacrostep runs microsteps until the runtime is stable, returning every
// record produced.
func drainMacrostep(t *testing.T, rt *Runtime) []*trace.Record {
	t.Helper()
	var out []*trace.Record
	for {
		rec, ok, err := rt.Microstep(context.Background())
		require.NoError(t, err)
		if !ok {
			return out
		}
		out = append(out, rec)
	}
}

func deliver(t *testing.T, rt *Runtime, name string, data any) []*trace.Record {
	t.Helper()
	rt.Enqueue(name, data)
	return drainMacrostep(t, rt)
}

func TestBasicTransition(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a"><transition event="go" target="b"/></state>
		<state id="b"/>
	</scxml>`)

	recs := deliver(t, rt, "go", nil)
	require.NotEmpty(t, recs)
	assert.Equal(t, []string{"b"}, rt.LeafConfiguration())

	first := recs[0]
	require.Len(t, first.FiredTransitions, 1)
	assert.Equal(t, "a", first.FiredTransitions[0].Source)
	assert.Equal(t, []string{"b"}, first.FiredTransitions[0].Targets)
	assert.Equal(t, "go", first.FiredTransitions[0].Event)
}

func TestConditionalGuard(t *testing.T) {
	chart := func(flag string) string {
		return `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
			<datamodel><data id="flag" expr="` + flag + `"/></datamodel>
			<state id="a"><transition event="go" cond="flag==1" target="b"/></state>
			<state id="b"/>
		</scxml>`
	}

	rt := newTestRuntime(t, chart("1"))
	deliver(t, rt, "go", nil)
	assert.Equal(t, []string{"b"}, rt.LeafConfiguration())

	rt = newTestRuntime(t, chart("0"))
	recs := deliver(t, rt, "go", nil)
	assert.Equal(t, []string{"a"}, rt.LeafConfiguration())
	for _, rec := range recs {
		assert.Empty(t, rec.FiredTransitions)
	}
}

func TestFailingCondRaisesErrorExecution(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a">
			<transition event="go" cond="no_such_name + 1" target="b"/>
			<transition event="error.execution" target="c"/>
		</state>
		<state id="b"/>
		<state id="c"/>
	</scxml>`)

	deliver(t, rt, "go", nil)
	// The guard error must not enable the transition; the synthetic
	// error.execution event is processed within the same macrostep.
	assert.Equal(t, []string{"c"}, rt.LeafConfiguration())
}

func TestShallowHistory(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="p">
		<state id="p" initial="s1">
			<history id="h" type="shallow">
				<transition target="s1"/>
			</history>
			<state id="s1"><transition event="next" target="s2"/></state>
			<state id="s2"/>
			<transition event="toQ" target="q"/>
		</state>
		<state id="q"><transition event="back" target="h"/></state>
	</scxml>`)

	assert.Equal(t, []string{"s1"}, rt.LeafConfiguration())
	deliver(t, rt, "next", nil)
	assert.Equal(t, []string{"s2"}, rt.LeafConfiguration())
	deliver(t, rt, "toQ", nil)
	assert.Equal(t, []string{"q"}, rt.LeafConfiguration())
	deliver(t, rt, "back", nil)
	assert.Equal(t, []string{"s2"}, rt.LeafConfiguration())
	assert.Contains(t, rt.Configuration(), "p")
}

func TestHistoryWithEmptyMemoryFallsBack(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="q">
		<state id="p" initial="s1">
			<history id="h" type="shallow">
				<transition target="s2"/>
			</history>
			<state id="s1"/>
			<state id="s2"/>
		</state>
		<state id="q"><transition event="enter" target="h"/></state>
	</scxml>`)

	deliver(t, rt, "enter", nil)
	// p was never exited, so the history has no memory and the default
	// transition's target wins over p's initial.
	assert.Equal(t, []string{"s2"}, rt.LeafConfiguration())
}

func TestDoneStatePropagationThroughParallel(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="par">
		<parallel id="par">
			<state id="A" initial="a1">
				<state id="a1"><transition event="e1" target="aF"/></state>
				<final id="aF"/>
			</state>
			<state id="B" initial="b1">
				<state id="b1"><transition event="e2" target="bF"/></state>
				<final id="bF"/>
			</state>
			<transition event="done.state.par" target="end"/>
		</parallel>
		<state id="end"/>
	</scxml>`)

	deliver(t, rt, "e1", nil)
	assert.Contains(t, rt.Configuration(), "par")
	deliver(t, rt, "e2", nil)
	assert.Equal(t, []string{"end"}, rt.LeafConfiguration())
}

func TestRootFinalHaltsRuntime(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a"><transition event="stop" target="theEnd"/></state>
		<final id="theEnd"/>
	</scxml>`)

	deliver(t, rt, "stop", nil)
	_, ok, err := rt.Microstep(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	// Further events are refused.
	recs := deliver(t, rt, "stop", nil)
	assert.Empty(t, recs)
}

func TestWildcardEventMatch(t *testing.T) {
	tests := []struct {
		descriptor string
		name       string
		want       bool
	}{
		{"a", "a.b.c", true},
		{"a.b", "a.b.c", true},
		{"a.*", "a.b.c", true},
		{"*", "a.b.c", true},
		{"a.b.d", "a.b.c", false},
		{"a.b.c", "a.b.c", true},
		{"a.bc", "a.b.c", false},
		{"b", "a.b.c", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, dottedMatch(tt.descriptor, tt.name),
			"dottedMatch(%q, %q)", tt.descriptor, tt.name)
	}
}

func TestInternalBeforeExternal(t *testing.T) {
	// onentry of b raises an internal event; a matching internal transition
	// must win over the already-queued external event.
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a"><transition event="go" target="b"/></state>
		<state id="b">
			<onentry><raise event="inner"/></onentry>
			<transition event="inner" target="c"/>
			<transition event="outer" target="wrong"/>
		</state>
		<state id="c"><transition event="outer" target="right"/></state>
		<state id="wrong"/>
		<state id="right"/>
	</scxml>`)

	rt.Enqueue("go", nil)
	rt.Enqueue("outer", nil)
	drainMacrostep(t, rt)
	assert.Equal(t, []string{"right"}, rt.LeafConfiguration())
}

func TestEventlessBeforeInternal(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a">
			<transition event="go" target="b"><raise event="inner"/></transition>
		</state>
		<state id="b">
			<transition target="c"/>
			<transition event="inner" target="wrong"/>
		</state>
		<state id="c"><transition event="inner" target="right"/></state>
		<state id="wrong"/>
		<state id="right"/>
	</scxml>`)

	deliver(t, rt, "go", nil)
	// The eventless b->c transition must fire before the pending internal
	// "inner" is consumed, so "inner" is seen from c, not b.
	assert.Equal(t, []string{"right"}, rt.LeafConfiguration())
}

func TestTargetlessTransitionRunsActionsOnly(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<datamodel><data id="hits" expr="0"/></datamodel>
		<state id="a">
			<transition event="bump"><assign location="hits" expr="hits + 1"/></transition>
		</state>
	</scxml>`)

	recs := deliver(t, rt, "bump", nil)
	assert.Equal(t, []string{"a"}, rt.LeafConfiguration())
	require.NotEmpty(t, recs)
	assert.Empty(t, recs[0].EnteredStates)
	assert.Empty(t, recs[0].ExitedStates)
	v, err := rt.EvalGlobal(context.Background(), "hits")
	require.NoError(t, err)
	assert.EqualValues(t, 1, v)
}

func TestParallelRegionsDoNotConflict(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="par">
		<parallel id="par">
			<state id="A" initial="a1">
				<state id="a1"><transition event="tick" target="a2"/></state>
				<state id="a2"/>
			</state>
			<state id="B" initial="b1">
				<state id="b1"><transition event="tick" target="b2"/></state>
				<state id="b2"/>
			</state>
		</parallel>
	</scxml>`)

	recs := deliver(t, rt, "tick", nil)
	require.NotEmpty(t, recs)
	assert.Len(t, recs[0].FiredTransitions, 2)
	assert.ElementsMatch(t, []string{"a2", "b2"}, rt.LeafConfiguration())
}

func TestConfigurationInvariants(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="par">
		<parallel id="par">
			<state id="A" initial="a1"><state id="a1"/><state id="a2"/></state>
			<state id="B" initial="b1"><state id="b1"/></state>
		</parallel>
	</scxml>`)

	// Parent-closure: every active non-root state has an active parent, and
	// a parallel state keeps every child active.
	for idx := range rt.active {
		parent := rt.graph.Node(idx).Parent
		if parent == -1 {
			continue
		}
		assert.True(t, rt.active[parent], "parent of %s must be active", rt.graph.Node(idx).ID)
	}
	parIdx, ok := rt.graph.IndexOf("par")
	require.True(t, ok)
	for _, c := range rt.graph.Node(parIdx).Children {
		assert.True(t, rt.active[c])
	}
}

func TestTraceRecordShape(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a">
			<transition event="go" target="b"/>
		</state>
		<state id="b">
			<onentry><log label="note" expr="'arrived'"/></onentry>
		</state>
	</scxml>`)

	recs := deliver(t, rt, "go", nil)
	require.NotEmpty(t, recs)
	rec := recs[0]
	require.NotNil(t, rec.Event)
	assert.Equal(t, "go", rec.Event.Name)
	assert.Equal(t, []string{"b"}, rec.Configuration)
	require.NotEmpty(t, rec.ActionLog)
	assert.Equal(t, "log", rec.ActionLog[0].Type)
	assert.Equal(t, "note: arrived", rec.ActionLog[0].Value)
}
