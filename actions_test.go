package scjson

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIfElseLadder(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<datamodel>
			<data id="n" expr="2"/>
			<data id="label" expr="''"/>
		</datamodel>
		<state id="a">
			<transition event="classify">
				<if cond="n &lt; 0">
					<assign location="label" expr="'negative'"/>
				<elseif cond="n == 0"/>
					<assign location="label" expr="'zero'"/>
				<else/>
					<assign location="label" expr="'positive'"/>
				</if>
			</transition>
		</state>
	</scxml>`)

	deliver(t, rt, "classify", nil)
	v, err := rt.EvalGlobal(context.Background(), "label")
	require.NoError(t, err)
	assert.Equal(t, "positive", v)
}

func TestForeachAccumulates(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<datamodel>
			<data id="items" expr="[1, 2, 3]"/>
			<data id="total" expr="0"/>
			<data id="lastIndex" expr="-1"/>
		</datamodel>
		<state id="a">
			<transition event="sum">
				<foreach array="items" item="it" index="i">
					<assign location="total" expr="total + it"/>
					<assign location="lastIndex" expr="i"/>
				</foreach>
			</transition>
		</state>
	</scxml>`)

	deliver(t, rt, "sum", nil)
	total, err := rt.EvalGlobal(context.Background(), "total")
	require.NoError(t, err)
	assert.EqualValues(t, 6, total)
	last, err := rt.EvalGlobal(context.Background(), "lastIndex")
	require.NoError(t, err)
	assert.EqualValues(t, 2, last)
}

func TestForeachOverNonIterableAbortsBlock(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<datamodel>
			<data id="bad" expr="7"/>
			<data id="after" expr="0"/>
		</datamodel>
		<state id="a">
			<transition event="go">
				<foreach array="bad" item="it">
					<assign location="after" expr="99"/>
				</foreach>
				<assign location="after" expr="1"/>
			</transition>
			<transition event="error.execution" target="errored"/>
		</state>
		<state id="errored"/>
	</scxml>`)

	deliver(t, rt, "go", nil)
	// The failing foreach aborts the rest of the block and raises
	// error.execution, which the chart observes.
	assert.Equal(t, []string{"errored"}, rt.LeafConfiguration())
	v, err := rt.EvalGlobal(context.Background(), "after")
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)
}

func TestAssignToUndefinedPathRaisesError(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a">
			<transition event="go">
				<assign location="missing.deep.path" expr="1"/>
			</transition>
			<transition event="error.execution" target="errored"/>
		</state>
		<state id="errored"/>
	</scxml>`)

	deliver(t, rt, "go", nil)
	assert.Equal(t, []string{"errored"}, rt.LeafConfiguration())
}

func TestSendToInternalTarget(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a">
			<transition event="go">
				<send event="ping" target="#_internal"/>
			</transition>
			<transition event="ping" target="b"/>
		</state>
		<state id="b"/>
	</scxml>`)

	deliver(t, rt, "go", nil)
	assert.Equal(t, []string{"b"}, rt.LeafConfiguration())
}

func TestSendPayloadFromParamsAndNamelist(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<datamodel>
			<data id="who" expr="'world'"/>
			<data id="got" expr="''"/>
		</datamodel>
		<state id="a">
			<transition event="go">
				<send event="greet" namelist="who">
					<param name="punct" expr="'!'"/>
				</send>
			</transition>
			<transition event="greet" target="b">
				<assign location="got" expr="_event.data.who + _event.data.punct"/>
			</transition>
		</state>
		<state id="b"/>
	</scxml>`)

	deliver(t, rt, "go", nil)
	assert.Equal(t, []string{"b"}, rt.LeafConfiguration())
	v, err := rt.EvalGlobal(context.Background(), "got")
	require.NoError(t, err)
	assert.Equal(t, "world!", v)
}

func TestScriptIsIgnoredByDefault(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<datamodel><data id="x" expr="0"/></datamodel>
		<state id="a">
			<transition event="go" target="b">
				<script>x = 99</script>
			</transition>
		</state>
		<state id="b"/>
	</scxml>`)

	deliver(t, rt, "go", nil)
	assert.Equal(t, []string{"b"}, rt.LeafConfiguration())
	v, err := rt.EvalGlobal(context.Background(), "x")
	require.NoError(t, err)
	assert.EqualValues(t, 0, v)
}

func TestRaiseEnqueuesInternal(t *testing.T) {
	rt := newTestRuntime(t, `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a">
			<transition event="go">
				<raise event="lifted"/>
			</transition>
			<transition event="lifted" target="b"/>
		</state>
		<state id="b"/>
	</scxml>`)

	recs := deliver(t, rt, "go", nil)
	assert.Equal(t, []string{"b"}, rt.LeafConfiguration())
	require.NotEmpty(t, recs)
	assert.Equal(t, "raise", recs[0].ActionLog[0].Type)
}
