package lax

import (
	"strconv"
	"strings"

	"github.com/spf13/cast"
)

func toStringFunc(args ...any) (any, error) {
	if err := arity("to_string", args, 1, 1); err != nil {
		return nil, err
	}
	return toString(args[0]), nil
}

// toInt converts to an integer. Floats truncate toward zero and strings
// must hold a base-10 integer. Anything else yields the optional default,
// which is 0 when omitted.
func toInt(args ...any) (any, error) {
	if err := arity("to_int", args, 1, 2); err != nil {
		return nil, err
	}
	def := optArg(args, 1, int64(0))
	switch x := normalize(args[0]).(type) {
	case nil, []any, map[string]any:
		return def, nil
	case string:
		n, err := strconv.ParseInt(strings.ReplaceAll(strings.TrimSpace(x), "_", ""), 10, 64)
		if err != nil {
			return def, nil
		}
		return n, nil
	default:
		n, err := cast.ToInt64E(x)
		if err != nil {
			return def, nil
		}
		return n, nil
	}
}

// toFloat converts to a float, yielding the optional default (0.0) when the
// value has no numeric reading.
func toFloat(args ...any) (any, error) {
	if err := arity("to_float", args, 1, 2); err != nil {
		return nil, err
	}
	def := optArg(args, 1, float64(0))
	f, ok := parseFloat(args[0])
	if !ok {
		return def, nil
	}
	return f, nil
}

func parseFloat(v any) (float64, bool) {
	switch x := normalize(v).(type) {
	case nil, []any, map[string]any:
		return 0, false
	case string:
		f, err := cast.ToFloat64E(strings.TrimSpace(x))
		return f, err == nil
	default:
		f, err := cast.ToFloat64E(x)
		return f, err == nil
	}
}

func toBool(args ...any) (any, error) {
	if err := arity("bool", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return false, nil
	}
	return truthy(args[0]), nil
}

// toList wraps a value in a list. Lists are copied, maps give their values
// in key order, strings their characters and nil an empty list.
func toList(args ...any) (any, error) {
	if err := arity("to_list", args, 0, 1); err != nil {
		return nil, err
	}
	if len(args) == 0 {
		return []any{}, nil
	}
	switch x := normalize(args[0]).(type) {
	case nil:
		return []any{}, nil
	case []any:
		return append([]any{}, x...), nil
	case string:
		return iterate(x), nil
	case map[string]any:
		keys := sortedKeys(x)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = x[k]
		}
		return out, nil
	default:
		return []any{x}, nil
	}
}

func isEmpty(args ...any) (any, error) {
	if err := arity("is_empty", args, 1, 1); err != nil {
		return nil, err
	}
	return empty(args[0]), nil
}

func isNotEmpty(args ...any) (any, error) {
	if err := arity("is_not_empty", args, 1, 1); err != nil {
		return nil, err
	}
	return !empty(args[0]), nil
}

// empty is true for nil and for zero-length strings, lists and maps.
// Numbers and booleans are never empty.
func empty(v any) bool {
	switch x := normalize(v).(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

func isNumeric(args ...any) (any, error) {
	if err := arity("is_numeric", args, 1, 1); err != nil {
		return nil, err
	}
	_, ok := parseFloat(args[0])
	return ok, nil
}

func typeOf(args ...any) (any, error) {
	if err := arity("type_of", args, 1, 1); err != nil {
		return nil, err
	}
	return typeName(args[0]), nil
}
