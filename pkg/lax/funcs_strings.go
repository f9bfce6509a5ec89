package lax

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// stringFunc wraps a one-argument string transform. Falsy input yields "".
func stringFunc(name string, fn func(string) string) Func {
	return func(args ...any) (any, error) {
		if err := arity(name, args, 1, 1); err != nil {
			return nil, err
		}
		if !truthy(args[0]) {
			return "", nil
		}
		return fn(toString(args[0])), nil
	}
}

var (
	upper  = stringFunc("upper", strings.ToUpper)
	lower  = stringFunc("lower", strings.ToLower)
	title  = stringFunc("title", func(s string) string { return cases.Title(language.Und).String(s) })
	strip  = stringFunc("strip", strings.TrimSpace)
	lstrip = stringFunc("lstrip", func(s string) string { return strings.TrimLeftFunc(s, unicode.IsSpace) })
	rstrip = stringFunc("rstrip", func(s string) string { return strings.TrimRightFunc(s, unicode.IsSpace) })

	// capitalize upper-cases the first character and lower-cases the rest.
	capitalize = stringFunc("capitalize", func(s string) string {
		r := []rune(strings.ToLower(s))
		r[0] = unicode.ToUpper(r[0])
		return string(r)
	})
)

// split breaks s on sep, or on runs of whitespace when sep is omitted or
// nil. An optional third argument caps the number of splits.
func split(args ...any) (any, error) {
	if err := arity("split", args, 1, 3); err != nil {
		return nil, err
	}
	if !truthy(args[0]) {
		return []any{}, nil
	}
	s := toString(args[0])
	limit := -1
	if n, ok := toNum(optArg(args, 2, nil)); ok && !n.isFloat && n.i >= 0 {
		limit = int(n.i)
	}

	var parts []string
	sep := optArg(args, 1, nil)
	if sep == nil {
		parts = splitFields(s, limit)
	} else {
		sepStr := toString(sep)
		if sepStr == "" {
			return []any{s}, nil
		}
		n := -1
		if limit >= 0 {
			n = limit + 1
		}
		parts = strings.SplitN(s, sepStr, n)
	}
	out := make([]any, len(parts))
	for i, p := range parts {
		out[i] = p
	}
	return out, nil
}

// splitFields splits on whitespace runs, keeping the remainder once limit
// splits have been made.
func splitFields(s string, limit int) []string {
	if limit < 0 {
		return strings.Fields(s)
	}
	var parts []string
	s = strings.TrimLeftFunc(s, unicode.IsSpace)
	for s != "" && len(parts) < limit {
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			break
		}
		parts = append(parts, s[:end])
		s = strings.TrimLeftFunc(s[end:], unicode.IsSpace)
	}
	if s != "" {
		parts = append(parts, s)
	}
	return parts
}

// join stringifies each item and joins them with sep.
func join(args ...any) (any, error) {
	if err := arity("join", args, 2, 2); err != nil {
		return nil, err
	}
	items := iterate(args[1])
	parts := make([]string, len(items))
	for i, item := range items {
		parts[i] = toString(item)
	}
	return strings.Join(parts, toString(args[0])), nil
}

func replace(args ...any) (any, error) {
	if err := arity("replace", args, 3, 3); err != nil {
		return nil, err
	}
	if !truthy(args[0]) {
		return "", nil
	}
	return strings.ReplaceAll(toString(args[0]), toString(args[1]), toString(args[2])), nil
}

func startsWith(args ...any) (any, error) {
	if err := arity("startswith", args, 2, 2); err != nil {
		return nil, err
	}
	return truthy(args[0]) && strings.HasPrefix(toString(args[0]), toString(args[1])), nil
}

func endsWith(args ...any) (any, error) {
	if err := arity("endswith", args, 2, 2); err != nil {
		return nil, err
	}
	return truthy(args[0]) && strings.HasSuffix(toString(args[0]), toString(args[1])), nil
}

func containsFunc(args ...any) (any, error) {
	if err := arity("contains", args, 2, 2); err != nil {
		return nil, err
	}
	return truthy(args[0]) && strings.Contains(toString(args[0]), toString(args[1])), nil
}

// length counts characters of a string, items of a list or keys of a map.
// nil and scalars have length 0.
func length(args ...any) (any, error) {
	if err := arity("length", args, 1, 1); err != nil {
		return nil, err
	}
	switch x := normalize(args[0]).(type) {
	case string:
		return int64(runeLen(x)), nil
	case []any:
		return int64(len(x)), nil
	case map[string]any:
		return int64(len(x)), nil
	}
	return int64(0), nil
}

// sliceFunc returns the characters of s between start and the optional end.
func sliceFunc(args ...any) (any, error) {
	if err := arity("slice", args, 2, 3); err != nil {
		return nil, err
	}
	runes := []rune(toString(args[0]))
	bound := func(v any) (*int, bool) {
		if v == nil {
			return nil, true
		}
		n, ok := toNum(v)
		if !ok || n.isFloat {
			return nil, false
		}
		i := int(n.i)
		return &i, true
	}
	lo, ok := bound(args[1])
	if !ok {
		return "", nil
	}
	hi, ok := bound(optArg(args, 2, nil))
	if !ok {
		return "", nil
	}
	start, end := sliceBounds(len(runes), lo, hi)
	return string(runes[start:end]), nil
}
