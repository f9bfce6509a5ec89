package lax

import (
	"math"
	"strings"
	"unicode/utf8"
)

// maxRepeatLen bounds the length of strings and lists built with "*".
const maxRepeatLen = 1 << 20

// evaluator walks a parsed expression against a context and registry.
type evaluator struct {
	ctx Context
	reg *Registry
}

// evaluate parses and evaluates src. Screen rejections come back as
// *ScreenError, everything else as *EvalError or an error returned by a
// registered function.
func evaluate(src string, ctx Context, reg *Registry) (any, error) {
	n, err := parseExpr(src)
	if err != nil {
		return nil, err
	}
	e := &evaluator{ctx: ctx, reg: reg}
	return e.eval(n)
}

func (e *evaluator) eval(n ast) (any, error) {
	switch x := n.(type) {
	case *literalExpr:
		return x.val, nil

	case *nameExpr:
		if v, ok := e.ctx[x.name]; ok {
			return v, nil
		}
		if _, ok := e.reg.Lookup(x.name); ok {
			return nil, evalErrorf("function '%s' must be called", x.name)
		}
		return nil, evalErrorf("name '%s' is not defined", x.name)

	case *listExpr:
		out := make([]any, len(x.items))
		for i, item := range x.items {
			v, err := e.eval(item)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case *dictExpr:
		out := make(map[string]any, len(x.keys))
		for i := range x.keys {
			k, err := e.eval(x.keys[i])
			if err != nil {
				return nil, err
			}
			ks, ok := normalize(k).(string)
			if !ok {
				return nil, evalErrorf("mapping keys must be strings, not '%s'", typeName(k))
			}
			v, err := e.eval(x.vals[i])
			if err != nil {
				return nil, err
			}
			out[ks] = v
		}
		return out, nil

	case *unaryExpr:
		v, err := e.eval(x.x)
		if err != nil {
			return nil, err
		}
		n, ok := toNum(v)
		if !ok {
			return nil, evalErrorf("bad operand type for unary %s: '%s'", x.op, typeName(v))
		}
		if x.op == "+" {
			return n.value(), nil
		}
		if n.isFloat {
			return -n.f, nil
		}
		return -n.i, nil

	case *notExpr:
		v, err := e.eval(x.x)
		if err != nil {
			return nil, err
		}
		return !truthy(v), nil

	case *logicExpr:
		l, err := e.eval(x.l)
		if err != nil {
			return nil, err
		}
		if x.op == "and" && !truthy(l) || x.op == "or" && truthy(l) {
			return l, nil
		}
		return e.eval(x.r)

	case *condExpr:
		c, err := e.eval(x.cond)
		if err != nil {
			return nil, err
		}
		if truthy(c) {
			return e.eval(x.then)
		}
		return e.eval(x.els)

	case *binaryExpr:
		l, err := e.eval(x.l)
		if err != nil {
			return nil, err
		}
		r, err := e.eval(x.r)
		if err != nil {
			return nil, err
		}
		return binaryOp(x.op, l, r)

	case *compareExpr:
		left, err := e.eval(x.operands[0])
		if err != nil {
			return nil, err
		}
		for i, op := range x.ops {
			right, err := e.eval(x.operands[i+1])
			if err != nil {
				return nil, err
			}
			ok, err := compareOp(op, left, right)
			if err != nil {
				return nil, err
			}
			if !ok {
				return false, nil
			}
			left = right
		}
		return true, nil

	case *testExpr:
		var result bool
		switch x.test {
		case "defined":
			result = e.defined(x.x)
		case "undefined":
			result = !e.defined(x.x)
		case "none":
			v, err := e.eval(x.x)
			if err != nil {
				return nil, err
			}
			result = normalize(v) == nil
		}
		return result != x.negate, nil

	case *memberExpr:
		base, err := e.eval(x.x)
		if err != nil {
			return nil, err
		}
		return memberOf(base, x.name)

	case *indexExpr:
		base, err := e.eval(x.x)
		if err != nil {
			return nil, err
		}
		idx, err := e.eval(x.index)
		if err != nil {
			return nil, err
		}
		return indexOf(base, idx)

	case *sliceExpr:
		return e.evalSlice(x)

	case *callExpr:
		return e.call(x)
	}
	return nil, evalErrorf("unsupported expression %T", n)
}

// defined reports whether a name or member chain resolves without error.
func (e *evaluator) defined(n ast) bool {
	switch x := n.(type) {
	case *nameExpr:
		_, ok := e.ctx[x.name]
		return ok
	case *memberExpr:
		if !e.defined(x.x) {
			return false
		}
		base, err := e.eval(x.x)
		if err != nil {
			return false
		}
		_, ok := member(base, x.name)
		return ok
	}
	_, err := e.eval(n)
	return err == nil
}

func (e *evaluator) call(x *callExpr) (any, error) {
	if x.name == "set" || x.name == "let" {
		if !e.reg.hasCustom(x.name) {
			return e.bind(x)
		}
	}
	fn, ok := e.reg.Lookup(x.name)
	if !ok {
		return nil, evalErrorf("name '%s' is not defined", x.name)
	}
	args := make([]any, len(x.args))
	for i, a := range x.args {
		v, err := e.eval(a)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return safeCall(x.name, fn, args)
}

// bind implements set('name', value) and let('name', value) inside
// expressions: the value is stored in the current context and returned.
func (e *evaluator) bind(x *callExpr) (any, error) {
	if len(x.args) != 2 {
		return nil, evalErrorf("%s() takes 2 arguments (%d given)", x.name, len(x.args))
	}
	nameVal, err := e.eval(x.args[0])
	if err != nil {
		return nil, err
	}
	name, ok := normalize(nameVal).(string)
	if !ok || !isIdentifier(name) {
		return nil, evalErrorf("%s() needs a variable name as its first argument", x.name)
	}
	v, err := e.eval(x.args[1])
	if err != nil {
		return nil, err
	}
	e.ctx[name] = v
	return v, nil
}

// safeCall turns a panicking function into an evaluation error.
func safeCall(name string, fn Func, args []any) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result, err = nil, evalErrorf("%s() failed: %v", name, r)
		}
	}()
	return fn(args...)
}

func (e *evaluator) evalSlice(x *sliceExpr) (any, error) {
	base, err := e.eval(x.x)
	if err != nil {
		return nil, err
	}
	var lo, hi *int
	for _, pair := range []struct {
		n   ast
		dst **int
	}{{x.lo, &lo}, {x.hi, &hi}} {
		if pair.n == nil {
			continue
		}
		v, err := e.eval(pair.n)
		if err != nil {
			return nil, err
		}
		if normalize(v) == nil {
			continue
		}
		n, ok := toNum(v)
		if !ok || n.isFloat {
			return nil, evalErrorf("slice indices must be integers")
		}
		i := int(n.i)
		*pair.dst = &i
	}
	switch b := normalize(base).(type) {
	case string:
		runes := []rune(b)
		start, end := sliceBounds(len(runes), lo, hi)
		return string(runes[start:end]), nil
	case []any:
		start, end := sliceBounds(len(b), lo, hi)
		out := make([]any, end-start)
		copy(out, b[start:end])
		return out, nil
	}
	return nil, evalErrorf("'%s' object is not subscriptable", typeName(base))
}

// sliceBounds clamps optional, possibly negative, bounds to [0, n].
func sliceBounds(n int, lo, hi *int) (int, int) {
	clamp := func(p *int, def int) int {
		if p == nil {
			return def
		}
		i := *p
		if i < 0 {
			i += n
		}
		return max(0, min(i, n))
	}
	start, end := clamp(lo, 0), clamp(hi, n)
	if end < start {
		end = start
	}
	return start, end
}

func memberOf(base any, name string) (any, error) {
	switch normalize(base).(type) {
	case nil:
		return nil, evalErrorf("'NoneType' object has no attribute '%s'", name)
	case map[string]any:
		v, _ := member(base, name)
		return v, nil
	}
	if _, ok := base.(Gettable); ok {
		v, _ := member(base, name)
		return v, nil
	}
	return nil, evalErrorf("'%s' object has no attribute '%s'", typeName(base), name)
}

func indexOf(base, idx any) (any, error) {
	switch b := normalize(base).(type) {
	case []any:
		n, ok := toNum(idx)
		if !ok || n.isFloat {
			return nil, evalErrorf("list indices must be integers, not '%s'", typeName(idx))
		}
		i := int(n.i)
		if i < 0 {
			i += len(b)
		}
		if i < 0 || i >= len(b) {
			return nil, evalErrorf("list index out of range")
		}
		return b[i], nil
	case string:
		n, ok := toNum(idx)
		if !ok || n.isFloat {
			return nil, evalErrorf("string indices must be integers, not '%s'", typeName(idx))
		}
		runes := []rune(b)
		i := int(n.i)
		if i < 0 {
			i += len(runes)
		}
		if i < 0 || i >= len(runes) {
			return nil, evalErrorf("string index out of range")
		}
		return string(runes[i]), nil
	case map[string]any:
		key, ok := normalize(idx).(string)
		if !ok {
			return nil, evalErrorf("key %s not found", repr(idx))
		}
		v, ok := b[key]
		if !ok {
			return nil, evalErrorf("key %s not found", repr(key))
		}
		return v, nil
	}
	if g, ok := base.(Gettable); ok {
		if key, ok := normalize(idx).(string); ok {
			if v, ok := g.Get(key); ok {
				return v, nil
			}
			return nil, evalErrorf("key %s not found", repr(key))
		}
	}
	return nil, evalErrorf("'%s' object is not subscriptable", typeName(base))
}

func compareOp(op string, l, r any) (bool, error) {
	switch op {
	case "==":
		return equal(l, r), nil
	case "!=":
		return !equal(l, r), nil
	case "in":
		return contains(r, l)
	case "not in":
		ok, err := contains(r, l)
		return !ok, err
	}
	c, err := compare(l, r)
	if err != nil {
		return false, err
	}
	switch op {
	case "<":
		return c < 0, nil
	case "<=":
		return c <= 0, nil
	case ">":
		return c > 0, nil
	case ">=":
		return c >= 0, nil
	}
	return false, evalErrorf("unknown comparison %q", op)
}

// contains implements the "in" operator.
func contains(container, item any) (bool, error) {
	switch c := normalize(container).(type) {
	case string:
		s, ok := normalize(item).(string)
		if !ok {
			return false, evalErrorf("'in <string>' requires string as left operand, not %s", typeName(item))
		}
		return strings.Contains(c, s), nil
	case []any:
		for _, e := range c {
			if equal(e, item) {
				return true, nil
			}
		}
		return false, nil
	case map[string]any:
		k, ok := normalize(item).(string)
		if !ok {
			return false, nil
		}
		_, found := c[k]
		return found, nil
	}
	if g, ok := container.(Gettable); ok {
		if k, ok := normalize(item).(string); ok {
			_, found := g.Get(k)
			return found, nil
		}
		return false, nil
	}
	return false, evalErrorf("argument of type '%s' is not iterable", typeName(container))
}

func binaryOp(op string, l, r any) (any, error) {
	ln, lok := toNum(l)
	rn, rok := toNum(r)
	if lok && rok {
		return arith(op, ln, rn)
	}

	l, r = normalize(l), normalize(r)
	switch op {
	case "+":
		switch a := l.(type) {
		case string:
			if b, ok := r.(string); ok {
				return a + b, nil
			}
		case []any:
			if b, ok := r.([]any); ok {
				out := make([]any, 0, len(a)+len(b))
				return append(append(out, a...), b...), nil
			}
		}
	case "*":
		if lok && !ln.isFloat {
			return repeat(r, ln.i)
		}
		if rok && !rn.isFloat {
			return repeat(l, rn.i)
		}
	}
	return nil, evalErrorf("unsupported operand type(s) for %s: '%s' and '%s'", op, typeName(l), typeName(r))
}

func repeat(v any, n int64) (any, error) {
	switch x := v.(type) {
	case string:
		if n <= 0 {
			return "", nil
		}
		if int64(len(x))*n > maxRepeatLen {
			return nil, evalErrorf("repeated string is too large")
		}
		return strings.Repeat(x, int(n)), nil
	case []any:
		if n <= 0 {
			return []any{}, nil
		}
		if int64(len(x))*n > maxRepeatLen {
			return nil, evalErrorf("repeated list is too large")
		}
		out := make([]any, 0, len(x)*int(n))
		for i := int64(0); i < n; i++ {
			out = append(out, x...)
		}
		return out, nil
	}
	return nil, evalErrorf("can't multiply sequence by non-int of type '%s'", typeName(v))
}

func arith(op string, a, b num) (any, error) {
	if !a.isFloat && !b.isFloat {
		x, y := a.i, b.i
		switch op {
		case "+":
			return x + y, nil
		case "-":
			return x - y, nil
		case "*":
			return x * y, nil
		case "/":
			if y == 0 {
				return nil, evalErrorf("division by zero")
			}
			return float64(x) / float64(y), nil
		case "//":
			if y == 0 {
				return nil, evalErrorf("integer division or modulo by zero")
			}
			return floorDiv(x, y), nil
		case "%":
			if y == 0 {
				return nil, evalErrorf("integer modulo by zero")
			}
			return x - floorDiv(x, y)*y, nil
		case "**":
			if y >= 0 {
				return intPow(x, y), nil
			}
			return math.Pow(float64(x), float64(y)), nil
		}
		return nil, evalErrorf("unknown operator %q", op)
	}

	x, y := a.float(), b.float()
	switch op {
	case "+":
		return x + y, nil
	case "-":
		return x - y, nil
	case "*":
		return x * y, nil
	case "/":
		if y == 0 {
			return nil, evalErrorf("float division by zero")
		}
		return x / y, nil
	case "//":
		if y == 0 {
			return nil, evalErrorf("float floor division by zero")
		}
		return math.Floor(x / y), nil
	case "%":
		if y == 0 {
			return nil, evalErrorf("float modulo")
		}
		m := math.Mod(x, y)
		if m != 0 && (m < 0) != (y < 0) {
			m += y
		}
		return m, nil
	case "**":
		return math.Pow(x, y), nil
	}
	return nil, evalErrorf("unknown operator %q", op)
}

func floorDiv(x, y int64) int64 {
	q := x / y
	if (x%y != 0) && ((x < 0) != (y < 0)) {
		q--
	}
	return q
}

func intPow(base, exp int64) int64 {
	result := int64(1)
	for exp > 0 {
		if exp&1 == 1 {
			result *= base
		}
		base *= base
		exp >>= 1
	}
	return result
}

// runeLen counts characters rather than bytes.
func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
