package scjson

// Mode selects STRICT or LAX loading for the documents a runtime loads
// itself (invoked child charts). Activation-graph link errors make
// NewRuntime fail in either mode.
type Mode int

const (
	ModeStrict Mode = iota
	ModeLax
)

// Config holds the settings for NewRuntime. The zero value is usable.
type Config struct {
	Mode        Mode
	Clock       Clock
	IOProcessor IOProcessor
	Namespaces  []NamespaceHandler

	// FullStates emits every active state id (ancestors included) in trace
	// records instead of the default leaf-only normalization.
	FullStates bool
}

// RunOption mutates a Config; NewRuntime applies them in order.
type RunOption func(*Config)

func WithMode(m Mode) RunOption {
	return func(c *Config) { c.Mode = m }
}

func WithClock(clock Clock) RunOption {
	return func(c *Config) { c.Clock = clock }
}

// WithIOProcessor installs an additional transport for external Send calls;
// see wsio.Processor for the websocket-backed implementation. The default
// Runtime never starts one.
func WithIOProcessor(p IOProcessor) RunOption {
	return func(c *Config) { c.IOProcessor = p }
}

// WithFullStates switches trace records from leaf-only configuration lists
// to the full active set, ancestors included.
func WithFullStates() RunOption {
	return func(c *Config) { c.FullStates = true }
}

// WithNamespace registers a handler for foreign executable content (see
// ext/env and ext/stdin).
func WithNamespace(h NamespaceHandler) RunOption {
	return func(c *Config) { c.Namespaces = append(c.Namespaces, h) }
}
