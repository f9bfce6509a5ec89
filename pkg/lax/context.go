package lax

import (
	"fmt"
	"reflect"
	"sort"
	"unicode"

	"github.com/mitchellh/mapstructure"
)

// isIdentifier reports whether s is a letter or underscore followed by
// letters, digits and underscores.
func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		if r == '_' || unicode.IsLetter(r) {
			continue
		}
		if i > 0 && unicode.IsDigit(r) {
			continue
		}
		return false
	}
	return true
}

// validateContext fails on the first key, in sorted order, that is not
// identifier-shaped.
func validateContext(data map[string]any) error {
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !isIdentifier(k) {
			return &ValidationError{Key: k}
		}
	}
	return nil
}

// ToContext converts host data into a render Context. Maps are copied and
// structs are decoded by their mapstructure tags, with nested structs and
// slices of structs becoming maps and lists of maps. Timestamps should be
// formatted by the caller; a time.Time field decodes to an empty map.
func ToContext(v any) (Context, error) {
	switch x := v.(type) {
	case nil:
		return Context{}, nil
	case Context:
		return x.clone(), nil
	case map[string]any:
		return Context(x).clone(), nil
	}

	out := map[string]any{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:  &out,
		TagName: "mapstructure",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create context decoder: %w", err)
	}
	if err = dec.Decode(v); err != nil {
		return nil, fmt.Errorf("failed to convert %T to context: %w", v, err)
	}
	for k, val := range out {
		out[k] = plainValue(val)
	}
	return out, nil
}

// plainValue rewrites struct values the decoder left behind in pointers and
// slices.
func plainValue(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int, int64, float64:
		return v
	case map[string]any:
		for k, e := range x {
			x[k] = plainValue(e)
		}
		return x
	case []any:
		for i, e := range x {
			x[i] = plainValue(e)
		}
		return x
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Struct:
		if c, err := ToContext(rv.Interface()); err == nil {
			return map[string]any(c)
		}
	case reflect.Slice, reflect.Array:
		elem := rv.Type().Elem()
		if elem.Kind() == reflect.Pointer {
			elem = elem.Elem()
		}
		if elem.Kind() != reflect.Struct && elem.Kind() != reflect.Map && elem.Kind() != reflect.Interface {
			return v
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = plainValue(rv.Index(i).Interface())
		}
		return out
	}
	return v
}
