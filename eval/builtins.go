package eval

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// builtins is the closed set of safe functions the sandbox exposes. There is
// no escape hatch to register more at runtime — extending this set means
// editing this file, which is the point of a sandbox.
var builtins map[string]builtinFunc

func init() {
	builtins = map[string]builtinFunc{
		"abs":       biAbs,
		"len":       biLen,
		"min":       biMinMax(true),
		"max":       biMinMax(false),
		"range":     biRange,
		"sorted":    biSorted,
		"sum":       biSum,
		"bool":      biBool,
		"int":       biInt,
		"float":     biFloat,
		"str":       biStr,
		"list":      biList,
		"dict":      biDict,
		"set":       biSet,
		"tuple":     biTuple,
		"zip":       biZip,
		"enumerate": biEnumerate,
	}
}

var mathFuncs = map[string]builtinFunc{
	"sqrt":  mathUnary(math.Sqrt),
	"floor": mathUnary(math.Floor),
	"ceil":  mathUnary(math.Ceil),
	"pow":   mathBinary(math.Pow),
	"log":   mathUnary(math.Log),
	"exp":   mathUnary(math.Exp),
	"sin":   mathUnary(math.Sin),
	"cos":   mathUnary(math.Cos),
	"tan":   mathUnary(math.Tan),
}

// mathConsts are attribute lookups on the math namespace that resolve to a
// value directly rather than a callable (math.pi, not math.pi()).
var mathConsts = map[string]float64{
	"pi":  math.Pi,
	"inf": math.Inf(1),
	"e":   math.E,
}

func mathUnary(f func(float64) float64) builtinFunc {
	return func(it *interp, args []any) (any, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("math function takes exactly one argument")
		}
		v, ok := toFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("math function requires a number, got %T", args[0])
		}
		return f(v), nil
	}
}

func mathBinary(f func(float64, float64) float64) builtinFunc {
	return func(it *interp, args []any) (any, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("math function takes exactly two arguments")
		}
		a, aok := toFloat(args[0])
		b, bok := toFloat(args[1])
		if !aok || !bok {
			return nil, fmt.Errorf("math function requires numbers")
		}
		return f(a, b), nil
	}
}

func biAbs(it *interp, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("abs() takes exactly one argument")
	}
	if isInt(args[0]) {
		n := args[0].(int64)
		if n < 0 {
			n = -n
		}
		return n, nil
	}
	f, ok := toFloat(args[0])
	if !ok {
		return nil, fmt.Errorf("abs() requires a number, got %T", args[0])
	}
	return math.Abs(f), nil
}

func biLen(it *interp, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("len() takes exactly one argument")
	}
	n, err := sequenceLenAny(args[0])
	if err != nil {
		return nil, err
	}
	return int64(n), nil
}

func sequenceLenAny(v any) (int, error) {
	switch t := v.(type) {
	case []any:
		return len(t), nil
	case Tuple:
		return len(t), nil
	case string:
		return len(t), nil
	case map[string]any:
		return len(t), nil
	case *Set:
		return t.Len(), nil
	default:
		return 0, fmt.Errorf("object of type %T has no len()", v)
	}
}

func toSlice(v any) ([]any, error) {
	switch t := v.(type) {
	case []any:
		return t, nil
	case Tuple:
		return []any(t), nil
	case *Set:
		return t.Items(), nil
	case string:
		out := make([]any, 0, len(t))
		for _, r := range t {
			out = append(out, string(r))
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%T is not iterable", v)
	}
}

func biMinMax(wantMin bool) builtinFunc {
	return func(it *interp, args []any) (any, error) {
		var items []any
		if len(args) == 1 {
			var err error
			items, err = toSlice(args[0])
			if err != nil {
				return nil, err
			}
		} else {
			items = args
		}
		if len(items) == 0 {
			return nil, fmt.Errorf("min()/max() arg is an empty sequence")
		}
		best := items[0]
		for _, v := range items[1:] {
			var replace bool
			if wantMin {
				ok, err := compareOne("<", v, best)
				if err != nil {
					return nil, err
				}
				replace = ok
			} else {
				ok, err := compareOne(">", v, best)
				if err != nil {
					return nil, err
				}
				replace = ok
			}
			if replace {
				best = v
			}
		}
		return best, nil
	}
}

func biRange(it *interp, args []any) (any, error) {
	var start, stop, step int64 = 0, 0, 1
	switch len(args) {
	case 1:
		v, ok := args[0].(int64)
		if !ok {
			return nil, fmt.Errorf("range() arguments must be integers")
		}
		stop = v
	case 2, 3:
		a, aok := args[0].(int64)
		b, bok := args[1].(int64)
		if !aok || !bok {
			return nil, fmt.Errorf("range() arguments must be integers")
		}
		start, stop = a, b
		if len(args) == 3 {
			c, cok := args[2].(int64)
			if !cok || c == 0 {
				return nil, fmt.Errorf("range() step argument must be a non-zero integer")
			}
			step = c
		}
	default:
		return nil, fmt.Errorf("range() takes 1 to 3 arguments")
	}
	var out []any
	if step > 0 {
		for i := start; i < stop; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i > stop; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}

func biSorted(it *interp, args []any) (any, error) {
	if len(args) != 1 {
		return nil, fmt.Errorf("sorted() takes exactly one argument")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	out := append([]any(nil), items...)
	if err := sortAny(out); err != nil {
		return nil, err
	}
	return out, nil
}

func biSum(it *interp, args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("sum() takes 1 or 2 arguments")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	var total float64
	allInt := true
	if len(args) == 2 {
		f, ok := toFloat(args[1])
		if !ok {
			return nil, fmt.Errorf("sum() start value must be a number")
		}
		total = f
		allInt = isInt(args[1])
	}
	for _, v := range items {
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("sum() requires numeric items, got %T", v)
		}
		if !isInt(v) {
			allInt = false
		}
		total += f
	}
	if allInt {
		return int64(total), nil
	}
	return total, nil
}

func biBool(it *interp, args []any) (any, error) {
	if len(args) == 0 {
		return false, nil
	}
	return isTruthy(args[0]), nil
}

func biInt(it *interp, args []any) (any, error) {
	if len(args) == 0 {
		return int64(0), nil
	}
	switch v := args[0].(type) {
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for int(): %q", v)
		}
		return n, nil
	case bool:
		if v {
			return int64(1), nil
		}
		return int64(0), nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("int() argument must be a string or a number, got %T", v)
		}
		return int64(f), nil
	}
}

func biFloat(it *interp, args []any) (any, error) {
	if len(args) == 0 {
		return 0.0, nil
	}
	switch v := args[0].(type) {
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid literal for float(): %q", v)
		}
		return f, nil
	default:
		f, ok := toFloat(v)
		if !ok {
			return nil, fmt.Errorf("float() argument must be a string or a number, got %T", v)
		}
		return f, nil
	}
}

func biStr(it *interp, args []any) (any, error) {
	if len(args) == 0 {
		return "", nil
	}
	return stringify(args[0]), nil
}

func stringify(v any) string {
	switch x := v.(type) {
	case nil:
		return "None"
	case bool:
		if x {
			return "True"
		}
		return "False"
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	default:
		return fmt.Sprintf("%v", x)
	}
}

func biList(it *interp, args []any) (any, error) {
	if len(args) == 0 {
		return []any{}, nil
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	return append([]any(nil), items...), nil
}

func biTuple(it *interp, args []any) (any, error) {
	if len(args) == 0 {
		return Tuple{}, nil
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	return Tuple(append([]any(nil), items...)), nil
}

func biSet(it *interp, args []any) (any, error) {
	if len(args) == 0 {
		return NewSet(), nil
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	return NewSet(items...), nil
}

func biDict(it *interp, args []any) (any, error) {
	if len(args) == 0 {
		return map[string]any{}, nil
	}
	pairs, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	out := map[string]any{}
	for _, p := range pairs {
		kv, err := toSlice(p)
		if err != nil || len(kv) != 2 {
			return nil, fmt.Errorf("dict() requires an iterable of (key, value) pairs")
		}
		key, ok := kv[0].(string)
		if !ok {
			return nil, fmt.Errorf("dict keys must be strings")
		}
		out[key] = kv[1]
	}
	return out, nil
}

func biZip(it *interp, args []any) (any, error) {
	seqs := make([][]any, len(args))
	minLen := -1
	for i, a := range args {
		s, err := toSlice(a)
		if err != nil {
			return nil, err
		}
		seqs[i] = s
		if minLen == -1 || len(s) < minLen {
			minLen = len(s)
		}
	}
	if minLen < 0 {
		minLen = 0
	}
	out := make([]any, 0, minLen)
	for i := 0; i < minLen; i++ {
		row := make(Tuple, 0, len(seqs))
		for _, s := range seqs {
			row = append(row, s[i])
		}
		out = append(out, row)
	}
	return out, nil
}

func biEnumerate(it *interp, args []any) (any, error) {
	if len(args) < 1 || len(args) > 2 {
		return nil, fmt.Errorf("enumerate() takes 1 or 2 arguments")
	}
	items, err := toSlice(args[0])
	if err != nil {
		return nil, err
	}
	start := int64(0)
	if len(args) == 2 {
		s, ok := args[1].(int64)
		if !ok {
			return nil, fmt.Errorf("enumerate() start must be an integer")
		}
		start = s
	}
	out := make([]any, 0, len(items))
	for i, v := range items {
		out = append(out, Tuple{start + int64(i), v})
	}
	return out, nil
}
