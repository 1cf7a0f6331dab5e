package validator

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func codes(result *Result) []string {
	var out []string
	for _, d := range result.Diagnostics {
		out = append(out, d.Code)
	}
	return out
}

func TestValidateXMLCleanDocument(t *testing.T) {
	src := `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a">
			<transition event="go" target="b"/>
		</state>
		<state id="b"/>
	</scxml>`

	result, doc, err := New(Config{}).ValidateXML(context.Background(), src)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)
}

func TestSemanticRules(t *testing.T) {
	tests := []struct {
		name     string
		src      string
		wantCode string
	}{
		{
			name: "unresolved transition target",
			src: `<scxml xmlns="http://www.w3.org/2005/07/scxml">
				<state id="a"><transition event="go" target="nowhere"/></state>
			</scxml>`,
			wantCode: "E302",
		},
		{
			name: "initial does not name a child",
			src: `<scxml xmlns="http://www.w3.org/2005/07/scxml">
				<state id="p" initial="elsewhere">
					<state id="c"/>
				</state>
				<state id="elsewhere"/>
			</scxml>`,
			wantCode: "E303",
		},
		{
			name: "bad event descriptor",
			src: `<scxml xmlns="http://www.w3.org/2005/07/scxml">
				<state id="a"><transition event="a..b" target="a"/></state>
			</scxml>`,
			wantCode: "E307",
		},
		{
			name: "malformed send delay",
			src: `<scxml xmlns="http://www.w3.org/2005/07/scxml">
				<state id="a">
					<onentry><send event="t" delay="10 minutes"/></onentry>
				</state>
			</scxml>`,
			wantCode: "E308",
		},
		{
			name: "cancel with neither sendid nor sendidexpr",
			src: `<scxml xmlns="http://www.w3.org/2005/07/scxml">
				<state id="a">
					<onentry><cancel/></onentry>
				</state>
			</scxml>`,
			wantCode: "E309",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, _, err := New(Config{}).ValidateXML(context.Background(), tt.src)
			require.NoError(t, err)
			assert.Contains(t, codes(result), tt.wantCode)
		})
	}
}

func TestDuplicateIDRule(t *testing.T) {
	src := `<scxml xmlns="http://www.w3.org/2005/07/scxml">
		<state id="a"/>
		<state id="a"/>
	</scxml>`

	result, _, err := New(Config{}).ValidateXML(context.Background(), src)
	require.NoError(t, err)
	assert.Contains(t, codes(result), "E301")
	assert.True(t, result.HasErrors())
}

func TestHistoryRules(t *testing.T) {
	src := `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="p">
		<state id="p" initial="s1">
			<history id="h" type="shallow"/>
			<state id="s1"/>
		</state>
	</scxml>`

	result, _, err := New(Config{}).ValidateXML(context.Background(), src)
	require.NoError(t, err)
	// No default transition inside <history> is a warning, not an error.
	assert.Contains(t, codes(result), "W305")
	assert.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)

	strict, _, err := New(Config{Strict: true}).ValidateXML(context.Background(), src)
	require.NoError(t, err)
	assert.True(t, strict.HasErrors())
}

func TestUnreachableStateWarning(t *testing.T) {
	src := `<scxml xmlns="http://www.w3.org/2005/07/scxml" initial="a">
		<state id="a"/>
		<state id="island"/>
	</scxml>`

	result, _, err := New(Config{}).ValidateXML(context.Background(), src)
	require.NoError(t, err)

	var found bool
	for _, d := range result.Diagnostics {
		if d.Code == "W401" && d.StateID == "island" {
			found = true
		}
	}
	assert.True(t, found, "expected W401 for island, got %v", result.Diagnostics)
}

func TestValidateJSONDocument(t *testing.T) {
	src := `{
		"initial_attribute": "a",
		"state": [
			{"id": "a", "transition": [{"event": ["go"], "target": ["b"]}]},
			{"id": "b"}
		]
	}`

	result, doc, err := New(Config{}).ValidateJSON(context.Background(), src)
	require.NoError(t, err)
	require.NotNil(t, doc)
	assert.False(t, result.HasErrors(), "diagnostics: %v", result.Diagnostics)
}

func TestWriteText(t *testing.T) {
	result := &Result{}
	result.Add(Diagnostic{Severity: SeverityError, Code: "E302", StateID: "a", Message: "boom"})

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, result))
	assert.Contains(t, buf.String(), "E302")
	assert.Contains(t, buf.String(), "1 error(s)")
}
