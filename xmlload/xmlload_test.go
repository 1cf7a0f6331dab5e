package xmlload

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflare-ai/scjson-go/document"
)

const basicChart = `<?xml version="1.0" encoding="UTF-8"?>
<scxml xmlns="http://www.w3.org/2005/07/scxml" version="1.0" initial="a">
  <state id="a">
    <transition event="go" target="b"/>
  </state>
  <state id="b"/>
</scxml>`

func TestLoad_BasicTransition(t *testing.T) {
	doc, err := Load(basicChart, "basic.scxml", ModeStrict)
	require.NoError(t, err)
	require.NotNil(t, doc.Root)
	assert.Equal(t, "a", doc.Root.Initial)
	require.Len(t, doc.Root.Children, 2)
	assert.Equal(t, "a", doc.Root.Children[0].ID)
	require.Len(t, doc.Root.Children[0].Transitions, 1)
	assert.Equal(t, []string{"go"}, doc.Root.Children[0].Transitions[0].Events)
	assert.Equal(t, []string{"b"}, doc.Root.Children[0].Transitions[0].Targets)
}

const ifElseChart = `<?xml version="1.0" encoding="UTF-8"?>
<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
  <datamodel>
    <data id="flag" expr="1"/>
  </datamodel>
  <state id="a">
    <transition event="go" target="b">
      <if cond="flag==1">
        <assign location="seen" expr="1"/>
      <elseif cond="flag==2"/>
        <assign location="seen" expr="2"/>
      <else/>
        <assign location="seen" expr="0"/>
      </if>
    </transition>
  </state>
  <state id="b"/>
</scxml>`

func TestLoad_IfElseifElse(t *testing.T) {
	doc, err := Load(ifElseChart, "ifelse.scxml", ModeStrict)
	require.NoError(t, err)
	tr := doc.Root.Children[0].Transitions[0]
	require.Len(t, tr.Actions, 1)
	ifAction, ok := tr.Actions[0].(document.If)
	require.True(t, ok)
	require.Len(t, ifAction.Branches, 3)
	assert.Equal(t, "flag==1", ifAction.Branches[0].Cond)
	assert.Equal(t, "flag==2", ifAction.Branches[1].Cond)
	assert.Equal(t, "", ifAction.Branches[2].Cond)
}

const parallelChart = `<?xml version="1.0" encoding="UTF-8"?>
<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="par">
  <parallel id="par">
    <state id="regionA">
      <state id="a1"/>
    </state>
    <state id="regionB">
      <state id="b1"/>
    </state>
  </parallel>
</scxml>`

func TestLoad_Parallel(t *testing.T) {
	doc, err := Load(parallelChart, "parallel.scxml", ModeStrict)
	require.NoError(t, err)
	require.Len(t, doc.Root.Children, 1)
	assert.Equal(t, document.KindParallel, doc.Root.Children[0].Kind)
}

const namespaceChart = `<?xml version="1.0" encoding="UTF-8"?>
<scxml xmlns="http://www.w3.org/2005/07/scxml" xmlns:env="github.com/agentflare-ai/scjson-go/env" initial="a">
  <state id="a">
    <onentry>
      <env:get name="HOME" location="home"/>
    </onentry>
  </state>
</scxml>`

func TestLoad_ForeignNamespaceBecomesCustomAction(t *testing.T) {
	doc, err := Load(namespaceChart, "ns.scxml", ModeStrict)
	require.NoError(t, err)
	require.Len(t, doc.Root.Children[0].OnEntry, 1)
	custom, ok := doc.Root.Children[0].OnEntry[0].(document.Custom)
	require.True(t, ok)
	assert.Equal(t, "get", custom.Tag)
	assert.Equal(t, "HOME", custom.Attrs["name"])
}

func TestLoad_UnknownElementStrictFails(t *testing.T) {
	const bad = `<?xml version="1.0"?>
<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
  <state id="a">
    <onentry><bogus/></onentry>
  </state>
</scxml>`
	_, err := Load(bad, "bad.scxml", ModeStrict)
	assert.Error(t, err)

	doc, err := Load(bad, "bad.scxml", ModeLax)
	require.NoError(t, err)
	assert.Empty(t, doc.Root.Children[0].OnEntry)
}
