package scjson

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadEventStream(t *testing.T) {
	input := `{"event": "go", "data": {"n": 1}}

{"advance": 0.5}
{"event": "stop"}
`
	entries, err := ReadEventStream(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, entries, 3)

	assert.Equal(t, "go", entries[0].Event)
	assert.False(t, entries[0].IsAdvance())

	assert.True(t, entries[1].IsAdvance())
	assert.Equal(t, 0.5, entries[1].Advance)
	assert.Equal(t, int64(500_000), SecondsToMicro(entries[1].Advance))

	assert.Equal(t, "stop", entries[2].Event)
}

func TestReadEventStreamRejectsMalformedLines(t *testing.T) {
	_, err := ReadEventStream(strings.NewReader(`{"neither": true}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 1")

	_, err = ReadEventStream(strings.NewReader(`not json`))
	assert.Error(t, err)
}
