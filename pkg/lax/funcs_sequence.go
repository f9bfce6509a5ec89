package lax

import "sort"

// seq returns the list form of a sequence argument: lists as they are,
// strings as characters. Other values are not sequences.
func seq(v any) ([]any, bool) {
	switch x := normalize(v).(type) {
	case []any:
		return x, true
	case string:
		return iterate(x), true
	}
	return nil, false
}

// first returns the first item of a list or the first character of a string.
func first(args ...any) (any, error) {
	if err := arity("first", args, 1, 1); err != nil {
		return nil, err
	}
	items, ok := seq(args[0])
	if !ok || len(items) == 0 {
		return nil, nil
	}
	return items[0], nil
}

func last(args ...any) (any, error) {
	if err := arity("last", args, 1, 1); err != nil {
		return nil, err
	}
	items, ok := seq(args[0])
	if !ok || len(items) == 0 {
		return nil, nil
	}
	return items[len(items)-1], nil
}

// rest drops the first item. Strings stay strings.
func rest(args ...any) (any, error) {
	if err := arity("rest", args, 1, 1); err != nil {
		return nil, err
	}
	if s, ok := normalize(args[0]).(string); ok {
		r := []rune(s)
		if len(r) == 0 {
			return "", nil
		}
		return string(r[1:]), nil
	}
	items, ok := seq(args[0])
	if !ok || len(items) == 0 {
		return []any{}, nil
	}
	return append([]any{}, items[1:]...), nil
}

// take keeps the first n items. Negative n counts from the end.
func take(args ...any) (any, error) {
	if err := arity("take", args, 2, 2); err != nil {
		return nil, err
	}
	n, ok := toNum(args[1])
	if !ok || n.isFloat {
		return []any{}, nil
	}
	hi := int(n.i)
	if s, ok := normalize(args[0]).(string); ok {
		r := []rune(s)
		start, end := sliceBounds(len(r), nil, &hi)
		return string(r[start:end]), nil
	}
	items, ok := seq(args[0])
	if !ok {
		return []any{}, nil
	}
	start, end := sliceBounds(len(items), nil, &hi)
	return append([]any{}, items[start:end]...), nil
}

func reverse(args ...any) (any, error) {
	if err := arity("reverse", args, 1, 1); err != nil {
		return nil, err
	}
	items, _ := seq(args[0])
	out := make([]any, len(items))
	for i, item := range items {
		out[len(items)-1-i] = item
	}
	return out, nil
}

// sortFunc returns a sorted copy. An optional second argument reverses the
// order. Items that cannot be ordered against each other give an empty list.
func sortFunc(args ...any) (any, error) {
	if err := arity("sort", args, 1, 2); err != nil {
		return nil, err
	}
	items, _ := seq(args[0])
	if m, ok := normalize(args[0]).(map[string]any); ok {
		items = iterate(m)
	}
	out := append([]any{}, items...)
	desc := truthy(optArg(args, 1, false))

	var failed bool
	sort.SliceStable(out, func(i, j int) bool {
		c, err := compare(out[i], out[j])
		if err != nil {
			failed = true
			return false
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	if failed {
		return []any{}, nil
	}
	return out, nil
}

// unique drops repeated items, keeping first occurrences in order.
func unique(args ...any) (any, error) {
	if err := arity("unique", args, 1, 1); err != nil {
		return nil, err
	}
	items, _ := seq(args[0])
	out := make([]any, 0, len(items))
	for _, item := range items {
		dup := false
		for _, seen := range out {
			if equal(item, seen) {
				dup = true
				break
			}
		}
		if !dup {
			out = append(out, item)
		}
	}
	return out, nil
}

// concat joins any number of lists. Falsy arguments are skipped and a
// non-list argument is appended as a single item.
func concat(args ...any) (any, error) {
	out := []any{}
	for _, a := range args {
		if !truthy(a) {
			continue
		}
		if items, ok := seq(a); ok {
			out = append(out, items...)
			continue
		}
		out = append(out, a)
	}
	return out, nil
}
