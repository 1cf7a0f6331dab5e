package validator

import (
	"github.com/agentflare-ai/scjson-go/document"
)

// SemanticRule validates statechart constraints that cannot be expressed in
// a schema language (mutual exclusion, reference resolution, tree-shape
// rules). Rules run over the loader-independent document tree, so the same
// rule set covers SCXML and SCJSON input.
type SemanticRule interface {
	// Name returns the diagnostic code for this rule (e.g., "E301").
	Name() string

	// Validate checks the rule against a document and returns diagnostics.
	Validate(doc *document.Document, config Config) []Diagnostic
}

// DefaultSemanticRules returns the standard rule set, ordered so that
// reference-resolution failures surface before the style-level warnings
// that assume resolvable references.
func DefaultSemanticRules() []SemanticRule {
	return []SemanticRule{
		// Reference resolution
		&DuplicateIDRule{},
		&TransitionTargetRule{},
		&InitialResolutionRule{},

		// Tree-shape constraints
		&HistoryPlacementRule{},
		&HistoryDefaultRule{},
		&FinalChildlessRule{},

		// Token/format validation
		&EventDescriptorRule{},
		&SendDelayRule{},

		// Mutual exclusion
		&CancelSendIDRule{},
		&DonedataExclusionRule{},

		// Reachability
		&UnreachableStateRule{},
	}
}
