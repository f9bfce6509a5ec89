package lax

import (
	"math"
	"sort"
)

// maxRangeSize bounds the lists produced by range.
const maxRangeSize = 100_000

func sqrt(args ...any) (any, error) {
	if err := arity("sqrt", args, 1, 1); err != nil {
		return nil, err
	}
	n, ok := toNum(args[0])
	if !ok || n.float() < 0 {
		return float64(0), nil
	}
	return math.Sqrt(n.float()), nil
}

// ceil rounds up to an integer.
func ceil(args ...any) (any, error) {
	if err := arity("ceil", args, 1, 1); err != nil {
		return nil, err
	}
	n, ok := toNum(args[0])
	switch {
	case !ok:
		return int64(0), nil
	case !n.isFloat:
		return n.i, nil
	}
	return int64(math.Ceil(n.f)), nil
}

// floor rounds down to an integer, so floor(-1.5) is -2.
func floor(args ...any) (any, error) {
	if err := arity("floor", args, 1, 1); err != nil {
		return nil, err
	}
	n, ok := toNum(args[0])
	switch {
	case !ok:
		return int64(0), nil
	case !n.isFloat:
		return n.i, nil
	}
	return int64(math.Floor(n.f)), nil
}

func absFunc(args ...any) (any, error) {
	if err := arity("abs", args, 1, 1); err != nil {
		return nil, err
	}
	n, ok := toNum(args[0])
	switch {
	case !ok:
		return int64(0), nil
	case n.isFloat:
		return math.Abs(n.f), nil
	case n.i < 0:
		return -n.i, nil
	}
	return n.i, nil
}

// round rounds half to even. Without a digit count it returns an integer,
// with one it keeps the operand's type.
func round(args ...any) (any, error) {
	if err := arity("round", args, 1, 2); err != nil {
		return nil, err
	}
	n, ok := toNum(args[0])
	if !ok {
		return int64(0), nil
	}
	if len(args) == 1 || args[1] == nil {
		if !n.isFloat {
			return n.i, nil
		}
		return int64(math.RoundToEven(n.f)), nil
	}
	digits, ok := toNum(args[1])
	if !ok || digits.isFloat {
		return n.value(), nil
	}
	if !n.isFloat {
		if digits.i >= 0 {
			return n.i, nil
		}
		scale := intPow(10, -digits.i)
		return int64(math.RoundToEven(float64(n.i)/float64(scale))) * scale, nil
	}
	scale := math.Pow(10, float64(digits.i))
	return math.RoundToEven(n.f*scale) / scale, nil
}

// extremeArgs accepts either one list argument or several values.
func extremeArgs(args []any) []any {
	if len(args) == 1 {
		items, _ := seq(args[0])
		if m, ok := normalize(args[0]).(map[string]any); ok {
			items = iterate(m)
		}
		return items
	}
	return args
}

// pick returns the item that compares best under better, or nil when the
// items are empty or not mutually comparable.
func pick(name string, args []any, better func(int) bool) (any, error) {
	if err := arity(name, args, 1, -1); err != nil {
		return nil, err
	}
	items := extremeArgs(args)
	if len(items) == 0 {
		return nil, nil
	}
	best := items[0]
	for _, item := range items[1:] {
		c, err := compare(item, best)
		if err != nil {
			return nil, nil
		}
		if better(c) {
			best = item
		}
	}
	return best, nil
}

func minFunc(args ...any) (any, error) {
	return pick("min", args, func(c int) bool { return c < 0 })
}

func maxFunc(args ...any) (any, error) {
	return pick("max", args, func(c int) bool { return c > 0 })
}

// numbers reads every item as a number. Any non-numeric item fails the set.
func numbers(items []any) ([]num, bool) {
	out := make([]num, len(items))
	for i, item := range items {
		n, ok := toNum(item)
		if !ok {
			return nil, false
		}
		out[i] = n
	}
	return out, true
}

func addNums(ns []num) num {
	var total num
	for _, n := range ns {
		if total.isFloat || n.isFloat {
			total = num{f: total.float() + n.float(), isFloat: true}
			continue
		}
		total.i += n.i
	}
	return total
}

// sum adds a list of numbers, starting from the optional second argument.
func sum(args ...any) (any, error) {
	if err := arity("sum", args, 1, 2); err != nil {
		return nil, err
	}
	items, _ := seq(args[0])
	ns, ok := numbers(items)
	if !ok {
		return int64(0), nil
	}
	if start, ok := toNum(optArg(args, 1, int64(0))); ok {
		ns = append(ns, start)
	}
	return addNums(ns).value(), nil
}

func pow(args ...any) (any, error) {
	if err := arity("pow", args, 2, 2); err != nil {
		return nil, err
	}
	a, okA := toNum(args[0])
	b, okB := toNum(args[1])
	if !okA || !okB {
		return int64(0), nil
	}
	v, err := arith("**", a, b)
	if err != nil {
		return int64(0), nil
	}
	return v, nil
}

// mean is the arithmetic mean as a float. Empty or non-numeric input is 0.
func mean(args ...any) (any, error) {
	if err := arity("mean", args, 1, 1); err != nil {
		return nil, err
	}
	items, _ := seq(args[0])
	ns, ok := numbers(items)
	if !ok || len(ns) == 0 {
		return int64(0), nil
	}
	return addNums(ns).float() / float64(len(ns)), nil
}

// median returns the middle item, or the mean of the two middle items of an
// even-length list.
func median(args ...any) (any, error) {
	if err := arity("median", args, 1, 1); err != nil {
		return nil, err
	}
	items, _ := seq(args[0])
	ns, ok := numbers(items)
	if !ok || len(ns) == 0 {
		return int64(0), nil
	}
	sort.SliceStable(ns, func(i, j int) bool { return ns[i].float() < ns[j].float() })
	mid := len(ns) / 2
	if len(ns)%2 == 1 {
		return ns[mid].value(), nil
	}
	return (ns[mid-1].float() + ns[mid].float()) / 2, nil
}

// rangeFunc builds range(stop), range(start, stop) or range(start, stop,
// step) as a list of integers. A zero step, non-integer bounds or a result
// longer than maxRangeSize give an empty list.
func rangeFunc(args ...any) (any, error) {
	if err := arity("range", args, 1, 3); err != nil {
		return nil, err
	}
	bounds := make([]int64, len(args))
	for i, a := range args {
		n, ok := toNum(a)
		if !ok || n.isFloat {
			return []any{}, nil
		}
		bounds[i] = n.i
	}
	start, stop, step := int64(0), bounds[0], int64(1)
	if len(bounds) > 1 {
		start, stop = bounds[0], bounds[1]
	}
	if len(bounds) > 2 {
		step = bounds[2]
	}
	if step == 0 {
		return []any{}, nil
	}

	// The span and step magnitude are taken in uint64 so that bounds near
	// the int64 limits cannot overflow the count.
	var span, stride uint64
	if step > 0 && stop > start {
		span, stride = uint64(stop)-uint64(start), uint64(step)
	} else if step < 0 && stop < start {
		span, stride = uint64(start)-uint64(stop), -uint64(step)
	}
	if span == 0 {
		return []any{}, nil
	}
	count := (span-1)/stride + 1
	if count > maxRangeSize {
		return []any{}, nil
	}
	out := make([]any, count)
	for i := range out {
		// Wraps in the intermediate product but every element lies
		// between start and stop.
		out[i] = start + int64(i)*step
	}
	return out, nil
}
