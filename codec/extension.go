package codec

import (
	"encoding"
	"errors"
	"fmt"
	"reflect"
)

// Register teaches c how to carry values of type T under name. format
// renders the canonical text form; parse rebuilds an equal value from it.
// parse may be nil, in which case decoding yields an Opaque.
//
// The name travels with every encoded value, so it must be identical in all
// processes sharing a queue.
func Register[T any](c *Codec, name string, format func(T) (string, error), parse func(string) (T, error)) error {
	if name == "" {
		return errors.New("codec: extension name is required")
	}
	if format == nil {
		return fmt.Errorf("codec: extension %q has no format function", name)
	}

	ext := &extension{
		name: name,
		typ:  reflect.TypeOf((*T)(nil)).Elem(),
		format: func(v any) (string, error) {
			return format(v.(T))
		},
	}
	if ext.typ.Kind() == reflect.Interface {
		return fmt.Errorf("codec: extension %q: interface types cannot be registered", name)
	}
	if parse != nil {
		ext.parse = func(s string) (any, error) {
			return parse(s)
		}
	}

	return c.add(ext)
}

// MustRegister is like Register but panics on error. Meant for package init.
func MustRegister[T any](c *Codec, name string, format func(T) (string, error), parse func(string) (T, error)) {
	if err := Register(c, name, format, parse); err != nil {
		panic(err)
	}
}

// RegisterText registers T using its encoding.TextMarshaler implementation.
// *T must implement encoding.TextUnmarshaler.
func RegisterText[T encoding.TextMarshaler](c *Codec, name string) error {
	if _, ok := any(new(T)).(encoding.TextUnmarshaler); !ok {
		var zero T
		return fmt.Errorf("codec: *%T does not implement encoding.TextUnmarshaler", zero)
	}

	format := func(v T) (string, error) {
		b, err := v.MarshalText()
		return string(b), err
	}
	parse := func(s string) (T, error) {
		var v T
		err := any(&v).(encoding.TextUnmarshaler).UnmarshalText([]byte(s))
		return v, err
	}
	return Register(c, name, format, parse)
}
