package scjson

import (
	"context"

	"github.com/agentflare-ai/scjson-go/document"
)

// NamespaceHandler executes document.Custom actions authored in a foreign
// namespace. Handle reports whether the element's local tag was recognized;
// a false return (with nil error) lets the caller raise error.execution for
// an unknown tag within a known namespace.
type NamespaceHandler interface {
	URI() string
	Handle(ctx context.Context, rt *Runtime, el document.Custom) (bool, error)
}

// EvalGlobal evaluates expr against the document-global data scope (root
// activation record). Namespace handlers run outside any single state's
// scope, so they only ever see the global frame plus system variables.
func (rt *Runtime) EvalGlobal(ctx context.Context, expr string) (any, error) {
	return rt.dm.EvalExpr(ctx, rt.graph.Root(), expr)
}

// AssignGlobal writes value to a location rooted in the document-global
// data scope.
func (rt *Runtime) AssignGlobal(location string, value any) error {
	return rt.dm.Assign(rt.graph.Root(), location, value)
}

// RaiseExecutionError enqueues error.execution with diagnostic data, the
// same synthetic event the core action interpreter raises on an ActionError
//, for use by namespace handlers that fail mid-element.
func (rt *Runtime) RaiseExecutionError(message string, data map[string]any) {
	if data == nil {
		data = map[string]any{}
	}
	data["message"] = message
	rt.raiseError("error.execution", data)
}

func (rt *Runtime) namespaceHandler(uri string) NamespaceHandler {
	return rt.namespaces[uri]
}
