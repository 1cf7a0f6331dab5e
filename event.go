package scjson

// EventType distinguishes where an event entered the queueing system.
type EventType string

const (
	EventInternal EventType = "internal"
	EventExternal EventType = "external"
	EventPlatform EventType = "platform"
)

// Event is the engine's wire-independent event record. There is no
// wall-clock timestamp: the engine is driven entirely by the virtual clock,
// and a real timestamp would be a non-deterministic field in an otherwise
// deterministic trace.
type Event struct {
	Name       string
	Type       EventType
	Data       any
	SendID     string
	Origin     string
	OriginType string
	InvokeID   string
}

// dottedMatch reports whether an event name matches a transition's event
// descriptor token: "a.b.c" matches "a", "a.b", "a.*", and "*"; it does not
// match "a.b.d".
func dottedMatch(descriptor, name string) bool {
	if descriptor == "*" {
		return true
	}
	prefix := descriptor
	if len(descriptor) >= 2 && descriptor[len(descriptor)-2:] == ".*" {
		prefix = descriptor[:len(descriptor)-2]
	}
	if name == prefix {
		return true
	}
	return len(name) > len(prefix) && name[:len(prefix)+1] == prefix+"."
}

// matchesAny reports whether name matches any of the transition's event
// descriptors.
func matchesAny(descriptors []string, name string) bool {
	for _, d := range descriptors {
		if dottedMatch(d, name) {
			return true
		}
	}
	return false
}
