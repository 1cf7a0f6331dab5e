// Package trace produces the normalized per-microstep JSON records the
// engine emits for cross-engine comparison, using tidwall/gjson and
// tidwall/sjson to normalize the output rather than hand-rolled string
// surgery on encoding/json bytes.
package trace

import (
	"encoding/json"
	"sort"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// FiredTransition is one committed transition this microstep, in commit order.
type FiredTransition struct {
	Source  string   `json:"source"`
	Targets []string `json:"targets"`
	Event   string   `json:"event,omitempty"`
	Cond    string   `json:"cond,omitempty"`
}

// ActionLogEntry is one observable log/assign/raise effect.
type ActionLogEntry struct {
	Type  string `json:"type"` // "log" | "assign" | "raise"
	Value string `json:"value"`
}

// EventRecord is the {name, data} pair for the step's consumed event, or
// nil for an eventless step.
type EventRecord struct {
	Name string `json:"name"`
	Data any    `json:"data,omitempty"`
}

// Record is one normalized microstep trace line.
type Record struct {
	Event            *EventRecord      `json:"event"`
	FiredTransitions []FiredTransition `json:"firedTransitions"`
	EnteredStates    []string          `json:"enteredStates"`
	ExitedStates     []string          `json:"exitedStates"`
	Configuration    []string          `json:"configuration"`
	ActionLog        []ActionLogEntry  `json:"actionLog,omitempty"`
	DatamodelDelta   map[string]any    `json:"datamodelDelta,omitempty"`
	Errors           []string          `json:"errors,omitempty"`
}

// fieldOrder pins record keys to the declaration order above rather than
// Go's map iteration or alphabetical JSON marshaling, since neither is
// guaranteed stable across encoding/json versions for struct fields with
// omitempty.
var fieldOrder = []string{
	"event", "firedTransitions", "enteredStates", "exitedStates",
	"configuration", "actionLog", "datamodelDelta", "errors",
}

// MarshalJSONL renders r as one normalized JSON line.
func (r *Record) MarshalJSONL() ([]byte, error) {
	raw, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return normalize(raw)
}

// normalize applies the diff-normalization pass: drop empty containers,
// strip entries absent from fieldOrder (defensive), and rebuild in stable
// field order. Numeric-looking version strings and entity-unescaping are
// the converter's job upstream of this package; what's left here is pure
// JSON-shape massaging, which is what gjson/sjson are for.
func normalize(raw []byte) ([]byte, error) {
	parsed := gjson.ParseBytes(raw)
	out := "{}"
	var err error
	for _, key := range fieldOrder {
		val := parsed.Get(key)
		if !val.Exists() {
			continue
		}
		// A null event marks an eventless step and is meaningful; any other
		// null is just an absent optional field.
		if val.Type == gjson.Null && key != "event" {
			continue
		}
		if isEmptyContainer(val) {
			continue
		}
		out, err = sjson.SetRaw(out, key, val.Raw)
		if err != nil {
			return nil, err
		}
	}
	return []byte(out), nil
}

func isEmptyContainer(v gjson.Result) bool {
	if !v.IsObject() && !v.IsArray() {
		return false
	}
	return v.Raw == "{}" || v.Raw == "[]"
}

// SortedConfiguration returns ids sorted for stable emission; map iteration
// order must never leak into a trace line.
func SortedConfiguration(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	return out
}
