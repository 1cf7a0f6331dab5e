package scjson

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/scjson-go/xmlload"
)

func buildGraphFromXML(t *testing.T, src string) *Graph {
	t.Helper()
	doc, err := xmlload.Load(src, "<test>", xmlload.ModeStrict)
	require.NoError(t, err)
	g, err := BuildGraph(doc)
	require.NoError(t, err)
	return g
}

func TestScopedLookupInnermostWins(t *testing.T) {
	g := buildGraphFromXML(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="outer">
		<datamodel><data id="x" expr="'global'"/></datamodel>
		<state id="outer" initial="inner">
			<datamodel><data id="x" expr="'outer'"/></datamodel>
			<state id="inner">
				<datamodel><data id="x" expr="'inner'"/></datamodel>
			</state>
		</state>
	</scxml>`)
	dm := newDataModel(g, "session-1")
	ctx := context.Background()
	for idx := 0; idx < g.Len(); idx++ {
		require.NoError(t, dm.InitNode(ctx, idx))
	}

	innerIdx, ok := g.IndexOf("inner")
	require.True(t, ok)
	outerIdx, ok := g.IndexOf("outer")
	require.True(t, ok)

	v, found := dm.Lookup(innerIdx, "x")
	require.True(t, found)
	assert.Equal(t, "inner", v)

	v, found = dm.Lookup(outerIdx, "x")
	require.True(t, found)
	assert.Equal(t, "outer", v)
}

func TestAssignTargetsOwningFrame(t *testing.T) {
	g := buildGraphFromXML(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="outer">
		<state id="outer" initial="inner">
			<datamodel><data id="y" expr="1"/></datamodel>
			<state id="inner"/>
		</state>
	</scxml>`)
	dm := newDataModel(g, "session-1")
	ctx := context.Background()
	for idx := 0; idx < g.Len(); idx++ {
		require.NoError(t, dm.InitNode(ctx, idx))
	}

	innerIdx, _ := g.IndexOf("inner")
	outerIdx, _ := g.IndexOf("outer")

	// Writing y from the inner scope must mutate outer's frame, not create a
	// shadow in inner or the global map.
	require.NoError(t, dm.Assign(innerIdx, "y", int64(2)))
	v, ok := dm.frames[outerIdx]["y"]
	require.True(t, ok)
	assert.EqualValues(t, 2, v)
	_, inGlobal := dm.global["y"]
	assert.False(t, inGlobal)
}

func TestAssignFreshNameLandsInGlobal(t *testing.T) {
	g := buildGraphFromXML(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a"/>
	</scxml>`)
	dm := newDataModel(g, "session-1")
	aIdx, _ := g.IndexOf("a")

	require.NoError(t, dm.Assign(aIdx, "fresh", "hello"))
	assert.Equal(t, "hello", dm.global["fresh"])
}

func TestAssignNestedPath(t *testing.T) {
	g := buildGraphFromXML(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a"/>
	</scxml>`)
	dm := newDataModel(g, "session-1")
	aIdx, _ := g.IndexOf("a")
	dm.global["doc"] = map[string]any{"meta": map[string]any{"v": int64(1)}, "tags": []any{"x", "y"}}

	require.NoError(t, dm.Assign(aIdx, "doc.meta.v", int64(2)))
	require.NoError(t, dm.Assign(aIdx, `doc.tags[1]`, "z"))
	meta := dm.global["doc"].(map[string]any)["meta"].(map[string]any)
	assert.EqualValues(t, 2, meta["v"])
	tags := dm.global["doc"].(map[string]any)["tags"].([]any)
	assert.Equal(t, "z", tags[1])

	// Missing intermediate container fails rather than autovivifying.
	err := dm.Assign(aIdx, "doc.nothere.v", 1)
	require.Error(t, err)
	var actionErr *ActionError
	assert.ErrorAs(t, err, &actionErr)
}

func TestSystemVariables(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" id="machine" initial="a">
		<state id="a">
			<transition event="poke" cond="_event.name == 'poke'" target="b"/>
		</state>
		<state id="b"/>
	</scxml>`)

	deliver(t, rt, "poke", nil)
	assert.Equal(t, []string{"b"}, rt.LeafConfiguration())

	v, err := rt.EvalGlobal(context.Background(), "_sessionid")
	require.NoError(t, err)
	assert.Equal(t, rt.SessionID(), v)
}

func TestInPredicateSeesConfiguration(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="par">
		<parallel id="par">
			<state id="A" initial="a1"><state id="a1"/></state>
			<state id="B" initial="b1">
				<state id="b1"><transition event="check" cond="In('a1')" target="b2"/></state>
				<state id="b2"/>
			</state>
		</parallel>
	</scxml>`)

	deliver(t, rt, "check", nil)
	assert.ElementsMatch(t, []string{"a1", "b2"}, rt.LeafConfiguration())
}
