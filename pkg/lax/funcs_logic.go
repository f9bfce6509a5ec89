package lax

// present is false for nil and the empty string only.
func present(v any) bool {
	if v == nil {
		return false
	}
	s, ok := v.(string)
	return !ok || s != ""
}

// coalesce returns the first argument that is neither nil nor "".
func coalesce(args ...any) (any, error) {
	for _, a := range args {
		if present(a) {
			return a, nil
		}
	}
	return nil, nil
}

func defaultFunc(args ...any) (any, error) {
	if err := arity("default", args, 2, 2); err != nil {
		return nil, err
	}
	if present(args[0]) {
		return args[0], nil
	}
	return args[1], nil
}

func conditional(args ...any) (any, error) {
	if err := arity("conditional", args, 3, 3); err != nil {
		return nil, err
	}
	if truthy(args[0]) {
		return args[1], nil
	}
	return args[2], nil
}
