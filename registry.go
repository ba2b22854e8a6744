package taskx

import (
	"context"
	"fmt"
	"reflect"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/mohans/taskx/codec"
)

var (
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
)

// Registry maps callable keys to functions in this process. It is never
// serialized: every consumer builds its own at startup and must register
// the same keys the producers use.
type Registry struct {
	mu        sync.RWMutex
	callables map[string]*Callable
}

func NewRegistry() *Registry {
	return &Registry{
		callables: make(map[string]*Callable),
	}
}

// Register adds fn under key. fn may take a context.Context as its first
// parameter (supplied at call time, not counted as an argument) and may
// return a single error; any other shape is rejected.
func (r *Registry) Register(key string, fn any) error {
	if key == "" {
		return fmt.Errorf("callable key is required")
	}

	c, err := newCallable(key, fn)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.callables[key]; exists {
		return fmt.Errorf("callable '%s' already registered", key)
	}
	r.callables[key] = c
	return nil
}

// MustRegister is like Register but panics on error.
func (r *Registry) MustRegister(key string, fn any) {
	if err := r.Register(key, fn); err != nil {
		panic(err)
	}
}

// Resolve returns the callable registered under key, or a *NotFoundError.
func (r *Registry) Resolve(key string) (*Callable, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.callables[key]
	if !ok {
		return nil, &NotFoundError{Key: key}
	}
	return c, nil
}

// Deregister removes key and reports whether it was present.
func (r *Registry) Deregister(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.callables[key]
	delete(r.callables, key)
	return ok
}

// Keys lists the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.callables))
	for k := range r.callables {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Callable is a registered function with its parameter list worked out once.
type Callable struct {
	key      string
	fn       reflect.Value
	withCtx  bool
	params   []reflect.Type // positional parameters, context excluded
	variadic bool
	retErr   bool
}

func newCallable(key string, fn any) (*Callable, error) {
	if fn == nil {
		return nil, fmt.Errorf("callable '%s': nil function", key)
	}

	v := reflect.ValueOf(fn)
	t := v.Type()
	if t.Kind() != reflect.Func {
		return nil, fmt.Errorf("callable '%s': %T is not a function", key, fn)
	}
	if v.IsNil() {
		return nil, fmt.Errorf("callable '%s': nil function", key)
	}

	c := &Callable{
		key:      key,
		fn:       v,
		variadic: t.IsVariadic(),
	}

	switch {
	case t.NumOut() == 0:
	case t.NumOut() == 1 && t.Out(0) == errorType:
		c.retErr = true
	default:
		return nil, fmt.Errorf("callable '%s': may only return an error", key)
	}

	start := 0
	if t.NumIn() > 0 && t.In(0) == contextType {
		c.withCtx = true
		start = 1
	}
	for i := start; i < t.NumIn(); i++ {
		c.params = append(c.params, t.In(i))
	}

	return c, nil
}

func (c *Callable) Key() string {
	return c.key
}

// Arity is the number of positional arguments the callable takes; for a
// variadic callable, the minimum number.
func (c *Callable) Arity() int {
	if c.variadic {
		return len(c.params) - 1
	}
	return len(c.params)
}

// Call binds args to the parameters and invokes the function.
//
// Binding failures wrap ErrArityMismatch or ErrArgumentType; failures of the
// function itself come back as *InvocationError, panics included.
func (c *Callable) Call(ctx context.Context, args []any) error {
	in, err := c.bind(ctx, args)
	if err != nil {
		return err
	}
	return c.invoke(in)
}

func (c *Callable) bind(ctx context.Context, args []any) ([]reflect.Value, error) {
	fixed := c.Arity()
	if (!c.variadic && len(args) != fixed) || (c.variadic && len(args) < fixed) {
		return nil, &ArityError{Key: c.key, Want: fixed, Got: len(args), Variadic: c.variadic}
	}

	in := make([]reflect.Value, 0, len(args)+1)
	if c.withCtx {
		in = append(in, reflect.ValueOf(&ctx).Elem())
	}

	for i, a := range args {
		var pt reflect.Type
		if c.variadic && i >= fixed {
			pt = c.params[len(c.params)-1].Elem()
		} else {
			pt = c.params[i]
		}

		v, err := coerce(a, pt)
		if err != nil {
			return nil, fmt.Errorf("callable %q argument %d: %w", c.key, i, err)
		}
		in = append(in, v)
	}
	return in, nil
}

func (c *Callable) invoke(in []reflect.Value) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &InvocationError{
				Key:      c.key,
				Err:      fmt.Errorf("%v", r),
				Panicked: true,
				Stack:    debug.Stack(),
			}
		}
	}()

	out := c.fn.Call(in)
	if c.retErr && !out[0].IsNil() {
		return &InvocationError{Key: c.key, Err: out[0].Interface().(error)}
	}
	return nil
}

// coerce fits a decoded argument to parameter type pt. Numbers convert
// between kinds only when no information is lost.
func coerce(a any, pt reflect.Type) (reflect.Value, error) {
	if a == nil {
		switch pt.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan:
			return reflect.Zero(pt), nil
		}
		return reflect.Value{}, fmt.Errorf("%w: nil for %v", ErrArgumentType, pt)
	}

	av := reflect.ValueOf(a)
	if av.Type().AssignableTo(pt) {
		return av, nil
	}

	if op, ok := a.(codec.Opaque); ok && pt.Kind() == reflect.String {
		return reflect.ValueOf(op.Text).Convert(pt), nil
	}

	// Nullable primitives arrive as their value.
	if pt.Kind() == reflect.Pointer && av.Kind() != reflect.Pointer {
		ev, err := coerce(a, pt.Elem())
		if err != nil {
			return reflect.Value{}, err
		}
		p := reflect.New(pt.Elem())
		p.Elem().Set(ev)
		return p, nil
	}

	if isNumeric(av.Kind()) && isNumeric(pt.Kind()) {
		if isSigned(av.Kind()) && av.Int() < 0 && isUnsigned(pt.Kind()) {
			return reflect.Value{}, fmt.Errorf("%w: %v does not fit %v", ErrArgumentType, a, pt)
		}
		if isFloat(av.Kind()) && av.Float() < 0 && isUnsigned(pt.Kind()) {
			return reflect.Value{}, fmt.Errorf("%w: %v does not fit %v", ErrArgumentType, a, pt)
		}
		conv := av.Convert(pt)
		if conv.Convert(av.Type()).Interface() != a {
			return reflect.Value{}, fmt.Errorf("%w: %v does not fit %v", ErrArgumentType, a, pt)
		}
		return conv, nil
	}

	return reflect.Value{}, fmt.Errorf("%w: %T for %v", ErrArgumentType, a, pt)
}

func isSigned(k reflect.Kind) bool {
	return k >= reflect.Int && k <= reflect.Int64
}

func isUnsigned(k reflect.Kind) bool {
	return k >= reflect.Uint && k <= reflect.Uintptr
}

func isFloat(k reflect.Kind) bool {
	return k == reflect.Float32 || k == reflect.Float64
}

func isNumeric(k reflect.Kind) bool {
	return isSigned(k) || isUnsigned(k) || isFloat(k)
}
