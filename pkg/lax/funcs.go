package lax

// builtins is the standard function library every template can call.
var builtins = builtinFuncs()

func builtinFuncs() map[string]Func {
	return map[string]Func{
		// Strings (from funcs_strings.go)
		"upper":      upper,
		"lower":      lower,
		"title":      title,
		"capitalize": capitalize,
		"strip":      strip,
		"lstrip":     lstrip,
		"rstrip":     rstrip,
		"split":      split,
		"join":       join,
		"replace":    replace,
		"startswith": startsWith,
		"endswith":   endsWith,
		"contains":   containsFunc,
		"length":     length,
		"slice":      sliceFunc,

		// Sequences (from funcs_sequence.go)
		"first":   first,
		"last":    last,
		"rest":    rest,
		"take":    take,
		"reverse": reverse,
		"sort":    sortFunc,
		"unique":  unique,
		"concat":  concat,

		// Conversion & predicates (from funcs_convert.go)
		"to_string":    toStringFunc,
		"to_int":       toInt,
		"to_float":     toFloat,
		"to_list":      toList,
		"is_empty":     isEmpty,
		"is_not_empty": isNotEmpty,
		"is_numeric":   isNumeric,
		"type_of":      typeOf,

		// Math (from funcs_math.go)
		"sqrt":   sqrt,
		"ceil":   ceil,
		"floor":  floor,
		"abs":    absFunc,
		"round":  round,
		"min":    minFunc,
		"max":    maxFunc,
		"sum":    sum,
		"pow":    pow,
		"mean":   mean,
		"median": median,
		"range":  rangeFunc,

		// Time (from funcs_time.go)
		"now":   now,
		"today": today,
		"year":  year,
		"month": month,
		"day":   day,

		// Logic (from funcs_logic.go)
		"coalesce":    coalesce,
		"default":     defaultFunc,
		"conditional": conditional,

		// Encoding (from funcs_encoding.go)
		"quote":       quote,
		"unquote":     unquote,
		"json_encode": jsonEncode,
		"json_decode": jsonDecode,

		// Conversion aliases
		"len":   length,
		"str":   toStringFunc,
		"int":   toInt,
		"float": toFloat,
		"bool":  toBool,
		"list":  toList,
	}
}

// arity checks the argument count of a builtin. most < 0 means unbounded.
func arity(name string, args []any, least, most int) error {
	n := len(args)
	switch {
	case most < 0 && n < least:
		return evalErrorf("%s() takes at least %d arguments (%d given)", name, least, n)
	case most >= 0 && (n < least || n > most):
		if least == most {
			return evalErrorf("%s() takes %d arguments (%d given)", name, least, n)
		}
		return evalErrorf("%s() takes %d to %d arguments (%d given)", name, least, most, n)
	}
	return nil
}

// optArg returns args[i], or def when the argument was not supplied.
func optArg(args []any, i int, def any) any {
	if i < len(args) {
		return args[i]
	}
	return def
}
