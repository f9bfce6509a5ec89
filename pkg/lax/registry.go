package lax

import (
	"errors"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"sync/atomic"
)

// Func is the calling convention of every template function.
type Func func(args ...any) (any, error)

// Registry maps names to functions callable from expressions. Registered
// names shadow builtins of the same name. Writes copy the table, so
// registering while other goroutines render is safe; a render sees the
// table as it was when its lookup ran.
type Registry struct {
	mu    sync.Mutex
	funcs atomic.Pointer[map[string]Func]
}

// NewRegistry returns an empty Registry. Builtins are always available.
func NewRegistry() *Registry {
	r := &Registry{}
	empty := map[string]Func{}
	r.funcs.Store(&empty)
	return r
}

// Register adds one function. fn may be a Func, a func(...any) any, or any Go
// function returning one value or a value and an error; arguments of the
// latter are converted to the declared parameter types on each call.
func (r *Registry) Register(name string, fn any) error {
	return r.RegisterAll(map[string]any{name: fn})
}

// RegisterAll adds several functions at once. Nothing is registered if any
// of them is invalid.
func (r *Registry) RegisterAll(fns map[string]any) error {
	adapted := make(map[string]Func, len(fns))
	for name, fn := range fns {
		if !isIdentifier(name) {
			return fmt.Errorf("invalid function name %q", name)
		}
		if _, ok := reserved[name]; ok {
			return fmt.Errorf("function name %q is a reserved word", name)
		}
		f, err := adaptFunc(name, fn)
		if err != nil {
			return err
		}
		adapted[name] = f
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	old := *r.funcs.Load()
	next := make(map[string]Func, len(old)+len(adapted))
	for k, f := range old {
		next[k] = f
	}
	for k, f := range adapted {
		next[k] = f
	}
	r.funcs.Store(&next)
	return nil
}

// Lookup resolves a name against registered functions, then builtins.
func (r *Registry) Lookup(name string) (Func, bool) {
	if r != nil {
		if f, ok := (*r.funcs.Load())[name]; ok {
			return f, true
		}
	}
	f, ok := builtins[name]
	return f, ok
}

func (r *Registry) hasCustom(name string) bool {
	if r == nil {
		return false
	}
	_, ok := (*r.funcs.Load())[name]
	return ok
}

// Names returns the registered (non-builtin) function names, sorted.
func (r *Registry) Names() []string {
	funcs := *r.funcs.Load()
	names := make([]string, 0, len(funcs))
	for name := range funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// BuiltinNames returns the names of the standard function library, sorted.
func BuiltinNames() []string {
	names := make([]string, 0, len(builtins))
	for name := range builtins {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var errorType = reflect.TypeOf((*error)(nil)).Elem()

func adaptFunc(name string, fn any) (Func, error) {
	switch f := fn.(type) {
	case nil:
		return nil, fmt.Errorf("function %q is nil", name)
	case Func:
		return f, nil
	case func(...any) (any, error):
		return f, nil
	case func(...any) any:
		return func(args ...any) (any, error) { return f(args...), nil }, nil
	}

	rv := reflect.ValueOf(fn)
	if rv.Kind() != reflect.Func {
		return nil, fmt.Errorf("function %q: %T is not a function", name, fn)
	}
	t := rv.Type()
	switch {
	case t.NumOut() == 1:
	case t.NumOut() == 2 && t.Out(1).Implements(errorType):
	default:
		return nil, fmt.Errorf("function %q must return one value, or a value and an error", name)
	}

	return func(args ...any) (any, error) {
		in, err := convertArgs(name, t, args)
		if err != nil {
			return nil, err
		}
		out := rv.Call(in)
		if len(out) == 2 && !out[1].IsNil() {
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}, nil
}

func convertArgs(name string, t reflect.Type, args []any) ([]reflect.Value, error) {
	n := t.NumIn()
	if t.IsVariadic() {
		if len(args) < n-1 {
			return nil, evalErrorf("%s() takes at least %d arguments (%d given)", name, n-1, len(args))
		}
	} else if len(args) != n {
		return nil, evalErrorf("%s() takes %d arguments (%d given)", name, n, len(args))
	}

	in := make([]reflect.Value, len(args))
	for i, a := range args {
		var pt reflect.Type
		if t.IsVariadic() && i >= n-1 {
			pt = t.In(n - 1).Elem()
		} else {
			pt = t.In(i)
		}
		v, err := convertArg(a, pt)
		if err != nil {
			return nil, evalErrorf("%s() argument %d: %v", name, i+1, err)
		}
		in[i] = v
	}
	return in, nil
}

func convertArg(a any, pt reflect.Type) (reflect.Value, error) {
	if a == nil {
		return reflect.Zero(pt), nil
	}
	if v := reflect.ValueOf(a); v.Type().AssignableTo(pt) {
		return v, nil
	}
	switch pt.Kind() {
	case reflect.String:
		return reflect.ValueOf(toString(a)).Convert(pt), nil
	case reflect.Bool:
		return reflect.ValueOf(truthy(a)).Convert(pt), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		if n, ok := toNum(a); ok {
			return reflect.ValueOf(n.value()).Convert(pt), nil
		}
	}
	if nv := normalize(a); nv != nil && reflect.TypeOf(nv).AssignableTo(pt) {
		return reflect.ValueOf(nv), nil
	}
	return reflect.Value{}, errors.New("cannot use " + typeName(a) + " as " + pt.String())
}
