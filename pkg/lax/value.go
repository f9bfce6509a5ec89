package lax

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// Gettable is implemented by values that expose named members to dotted
// lookups and member expressions. Host types that are not plain maps can
// implement it to become addressable from templates.
type Gettable interface {
	Get(key string) (any, bool)
}

// Context is the variable namespace visible to a render. Values are strings,
// numbers, booleans, nil, lists, nested maps or Gettable values.
type Context map[string]any

// Get implements Gettable.
func (c Context) Get(key string) (any, bool) {
	v, ok := c[key]
	return v, ok
}

// clone returns a shallow copy of c.
func (c Context) clone() Context {
	out := make(Context, len(c)+2)
	for k, v := range c {
		out[k] = v
	}
	return out
}

// LoopState is the per-iteration record exposed as "loop" inside a for body.
type LoopState struct {
	Index  int // 1-based
	Index0 int // 0-based
	First  bool
	Last   bool
	Length int

	// Parent is the "loop" value of the enclosing scope: a *LoopState, a
	// caller-supplied mapping, or nil at the outermost level. It is a lookup
	// edge only.
	Parent any
}

// Get implements Gettable.
func (l *LoopState) Get(key string) (any, bool) {
	if l == nil {
		return nil, false
	}
	switch key {
	case "index":
		return int64(l.Index), true
	case "index0":
		return int64(l.Index0), true
	case "first":
		return l.First, true
	case "last":
		return l.Last, true
	case "length":
		return int64(l.Length), true
	case "parentloop":
		if l.Parent == nil {
			return nil, true
		}
		return l.Parent, true
	}
	return nil, false
}

func (l *LoopState) fields() map[string]any {
	return map[string]any{
		"index":      int64(l.Index),
		"index0":     int64(l.Index0),
		"first":      l.First,
		"last":       l.Last,
		"length":     int64(l.Length),
		"parentloop": l.Parent,
	}
}

// normalize folds host values into the kinds the evaluator works with:
// nil, string, bool, int64, float64, []any, map[string]any and Gettable.
// Elements of lists and maps are normalized lazily when they are read.
func normalize(v any) any {
	switch x := v.(type) {
	case nil, string, bool, int64, float64, []any, map[string]any, *LoopState:
		return v
	case Context:
		return map[string]any(x)
	case int:
		return int64(x)
	case int8:
		return int64(x)
	case int16:
		return int64(x)
	case int32:
		return int64(x)
	case uint:
		return int64(x)
	case uint8:
		return int64(x)
	case uint16:
		return int64(x)
	case uint32:
		return int64(x)
	case uint64:
		return int64(x)
	case float32:
		return float64(x)
	case []byte:
		return string(x)
	case []string:
		out := make([]any, len(x))
		for i, s := range x {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(x))
		for i, n := range x {
			out[i] = int64(n)
		}
		return out
	case []map[string]any:
		out := make([]any, len(x))
		for i, m := range x {
			out[i] = m
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(x))
		for k, s := range x {
			out[k] = s
		}
		return out
	case Gettable:
		return x
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return []any{}
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = rv.Index(i).Interface()
		}
		return out
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return v
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = iter.Value().Interface()
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil
		}
	}
	return v
}

// truthy applies the usual truthiness rules: nil, false, zero, and empty
// strings and collections are false, everything else is true.
func truthy(v any) bool {
	switch x := normalize(v).(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	case int64:
		return x != 0
	case float64:
		return x != 0
	case []any:
		return len(x) > 0
	case map[string]any:
		return len(x) > 0
	case *LoopState:
		return x != nil
	}
	return true
}

// toString is the stringification used for output. nil renders empty.
func toString(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		if x {
			return "True"
		}
		return "False"
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return formatFloat(x)
	case []any, map[string]any, *LoopState:
		return repr(x)
	case fmt.Stringer:
		return x.String()
	case error:
		return x.Error()
	default:
		return fmt.Sprint(x)
	}
}

// repr renders a value the way it appears nested inside a list or map.
func repr(v any) string {
	switch x := normalize(v).(type) {
	case nil:
		return "None"
	case string:
		return quoteRepr(x)
	case []any:
		parts := make([]string, len(x))
		for i, e := range x {
			parts[i] = repr(e)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		return reprMap(x)
	case *LoopState:
		return reprMap(x.fields())
	default:
		return toString(x)
	}
}

func reprMap(m map[string]any) string {
	keys := sortedKeys(m)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = quoteRepr(k) + ": " + repr(m[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func quoteRepr(s string) string {
	quote := '\''
	if strings.ContainsRune(s, '\'') && !strings.ContainsRune(s, '"') {
		quote = '"'
	}
	var b strings.Builder
	b.WriteRune(quote)
	for _, r := range s {
		switch r {
		case '\\':
			b.WriteString(`\\`)
		case '\n':
			b.WriteString(`\n`)
		case '\r':
			b.WriteString(`\r`)
		case '\t':
			b.WriteString(`\t`)
		case quote:
			b.WriteRune('\\')
			b.WriteRune(r)
		default:
			b.WriteRune(r)
		}
	}
	b.WriteRune(quote)
	return b.String()
}

// formatFloat keeps a trailing ".0" on integral values so floats stay
// distinguishable from integers in output.
func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return "nan"
	case math.IsInf(f, 1):
		return "inf"
	case math.IsInf(f, -1):
		return "-inf"
	}
	abs := math.Abs(f)
	if abs != 0 && (abs < 1e-4 || abs >= 1e16) {
		return strconv.FormatFloat(f, 'e', -1, 64)
	}
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(s, ".e") {
		s += ".0"
	}
	return s
}

func typeName(v any) string {
	switch normalize(v).(type) {
	case nil:
		return "NoneType"
	case string:
		return "str"
	case bool:
		return "bool"
	case int64:
		return "int"
	case float64:
		return "float"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	case *LoopState:
		return "LoopState"
	}
	return reflect.TypeOf(v).String()
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// num is a normalized numeric operand.
type num struct {
	i       int64
	f       float64
	isFloat bool
}

func (n num) float() float64 {
	if n.isFloat {
		return n.f
	}
	return float64(n.i)
}

func (n num) value() any {
	if n.isFloat {
		return n.f
	}
	return n.i
}

// toNum reports v as a number. Booleans count as 0 and 1.
func toNum(v any) (num, bool) {
	switch x := normalize(v).(type) {
	case int64:
		return num{i: x}, true
	case float64:
		return num{f: x, isFloat: true}, true
	case bool:
		if x {
			return num{i: 1}, true
		}
		return num{}, true
	}
	return num{}, false
}

// isZeroNumber reports whether v is the number zero. Booleans do not count.
func isZeroNumber(v any) bool {
	switch x := normalize(v).(type) {
	case int64:
		return x == 0
	case float64:
		return x == 0
	}
	return false
}

// member resolves key on a mapping-like value.
func member(v any, key string) (any, bool) {
	switch x := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		val, ok := x[key]
		return val, ok
	case Gettable:
		return x.Get(key)
	}
	switch x := normalize(v).(type) {
	case map[string]any:
		val, ok := x[key]
		return val, ok
	case []any:
		if idx, err := strconv.Atoi(key); err == nil {
			if idx < 0 {
				idx += len(x)
			}
			if idx >= 0 && idx < len(x) {
				return x[idx], true
			}
		}
	}
	return nil, false
}

// lookupPath follows a dotted path from the context. A missing step, or a
// step that lands on nil before the path ends, reports false.
func lookupPath(ctx Context, path string) (any, bool) {
	parts := strings.Split(path, ".")
	cur, ok := ctx[strings.TrimSpace(parts[0])]
	if !ok {
		return nil, false
	}
	for _, part := range parts[1:] {
		if cur == nil {
			return nil, false
		}
		cur, ok = member(cur, strings.TrimSpace(part))
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// iterate returns the items a for loop walks over. Strings yield their
// characters and maps their sorted keys. Anything else yields nothing.
func iterate(v any) []any {
	switch x := normalize(v).(type) {
	case []any:
		return x
	case string:
		out := make([]any, 0, len(x))
		for _, r := range x {
			out = append(out, string(r))
		}
		return out
	case map[string]any:
		keys := sortedKeys(x)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out
	}
	return nil
}

// equal compares two values with numeric widening.
func equal(a, b any) bool {
	a, b = normalize(a), normalize(b)
	if an, ok := toNum(a); ok {
		if bn, ok := toNum(b); ok {
			if !an.isFloat && !bn.isFloat {
				return an.i == bn.i
			}
			return an.float() == bn.float()
		}
		return false
	}
	switch x := a.(type) {
	case nil:
		return b == nil
	case string:
		y, ok := b.(string)
		return ok && x == y
	case []any:
		y, ok := b.([]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for i := range x {
			if !equal(x[i], y[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		y, ok := b.(map[string]any)
		if !ok || len(x) != len(y) {
			return false
		}
		for k, xv := range x {
			yv, ok := y[k]
			if !ok || !equal(xv, yv) {
				return false
			}
		}
		return true
	}
	return reflect.DeepEqual(a, b)
}

// compare orders two numbers, two strings or two lists.
func compare(a, b any) (int, error) {
	a, b = normalize(a), normalize(b)
	if an, ok := toNum(a); ok {
		if bn, ok := toNum(b); ok {
			if !an.isFloat && !bn.isFloat {
				return cmpOrdered(an.i, bn.i), nil
			}
			return cmpOrdered(an.float(), bn.float()), nil
		}
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), nil
		}
	case []any:
		if y, ok := b.([]any); ok {
			for i := 0; i < len(x) && i < len(y); i++ {
				if equal(x[i], y[i]) {
					continue
				}
				return compare(x[i], y[i])
			}
			return cmpOrdered(len(x), len(y)), nil
		}
	}
	return 0, evalErrorf("comparison not supported between instances of '%s' and '%s'", typeName(a), typeName(b))
}

func cmpOrdered[T int | int64 | float64](a, b T) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
