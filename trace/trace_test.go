package trace

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestMarshalJSONLFieldOrder(t *testing.T) {
	rec := &Record{
		Event:         &EventRecord{Name: "go"},
		Configuration: []string{"b"},
		FiredTransitions: []FiredTransition{
			{Source: "a", Targets: []string{"b"}, Event: "go"},
		},
		EnteredStates: []string{"b"},
		ExitedStates:  []string{"a"},
	}

	line, err := rec.MarshalJSONL()
	require.NoError(t, err)

	parsed := gjson.ParseBytes(line)
	require.True(t, parsed.IsObject())

	var keys []string
	parsed.ForEach(func(key, _ gjson.Result) bool {
		keys = append(keys, key.String())
		return true
	})
	assert.Equal(t, []string{"event", "firedTransitions", "enteredStates", "exitedStates", "configuration"}, keys)
}

func TestMarshalJSONLDropsEmptyContainers(t *testing.T) {
	rec := &Record{
		Configuration:  []string{"a"},
		DatamodelDelta: map[string]any{},
	}

	line, err := rec.MarshalJSONL()
	require.NoError(t, err)

	parsed := gjson.ParseBytes(line)
	assert.False(t, parsed.Get("datamodelDelta").Exists())
	assert.False(t, parsed.Get("actionLog").Exists())
	assert.True(t, parsed.Get("configuration").Exists())
}

func TestEventlessStepKeepsNullEvent(t *testing.T) {
	rec := &Record{Configuration: []string{"a"}}

	line, err := rec.MarshalJSONL()
	require.NoError(t, err)
	parsed := gjson.ParseBytes(line)
	// A null event marks an eventless step and must not be dropped like an
	// empty container.
	evt := parsed.Get("event")
	assert.True(t, evt.Exists())
	assert.Equal(t, gjson.Null, evt.Type)
}

func TestSortedConfigurationDoesNotMutate(t *testing.T) {
	in := []string{"c", "a", "b"}
	out := SortedConfiguration(in)
	assert.Equal(t, []string{"a", "b", "c"}, out)
	assert.Equal(t, []string{"c", "a", "b"}, in)
}
