package validator

import (
	"encoding/json"
	"fmt"
	"io"
)

// WriteText renders result as a human-readable report: one line per
// diagnostic, errors first, followed by a summary line.
func WriteText(w io.Writer, result *Result) error {
	var errors, warnings, infos int
	order := []Severity{SeverityError, SeverityWarning, SeverityInfo}
	for _, sev := range order {
		for _, d := range result.Diagnostics {
			if d.Severity != sev {
				continue
			}
			switch sev {
			case SeverityError:
				errors++
			case SeverityWarning:
				warnings++
			case SeverityInfo:
				infos++
			}
			loc := d.StateID
			if loc == "" {
				loc = "<document>"
			}
			if _, err := fmt.Fprintf(w, "%s %s %s: %s\n", d.Severity, d.Code, loc, d.Message); err != nil {
				return err
			}
			for _, hint := range d.Hints {
				if _, err := fmt.Fprintf(w, "    hint: %s\n", hint); err != nil {
					return err
				}
			}
		}
	}
	_, err := fmt.Fprintf(w, "%d error(s), %d warning(s), %d info\n", errors, warnings, infos)
	return err
}

// WriteJSON renders result as indented JSON for machine consumption.
func WriteJSON(w io.Writer, result *Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
