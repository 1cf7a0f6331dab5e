package eval

import "fmt"

// Tuple is an immutable fixed-size sequence, distinct from List so that
// equality and str() formatting match Python's tuple semantics closely
// enough for SCXML datamodel round-tripping.
type Tuple []any

// Set is an insertion-ordered collection of hashable scalars. Only scalar
// element types (bool, int64, float64, string) are supported, which is all
// the grammar's set()/literal forms can produce.
type Set struct {
	order []any
}

func NewSet(items ...any) *Set {
	s := &Set{}
	for _, it := range items {
		s.Add(it)
	}
	return s
}

func (s *Set) Add(v any) {
	if s.Contains(v) {
		return
	}
	s.order = append(s.order, v)
}

func (s *Set) Contains(v any) bool {
	for _, x := range s.order {
		if valuesEqual(x, v) {
			return true
		}
	}
	return false
}

func (s *Set) Items() []any { return append([]any(nil), s.order...) }
func (s *Set) Len() int     { return len(s.order) }

func valuesEqual(a, b any) bool {
	af, aok := toFloat(a)
	bf, bok := toFloat(b)
	if aok && bok {
		return af == bf
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b) && sameKind(a, b)
}

func sameKind(a, b any) bool {
	switch a.(type) {
	case string:
		_, ok := b.(string)
		return ok
	case bool:
		_, ok := b.(bool)
		return ok
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func isTruthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case int64:
		return x != 0
	case float64:
		return x != 0
	case string:
		return x != ""
	case []any:
		return len(x) > 0
	case Tuple:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case *Set:
		return x.Len() > 0
	default:
		return true
	}
}
