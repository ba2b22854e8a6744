// Package codec converts task arguments to and from a tagged, portable form
// that can be stored as text and rebuilt in another process.
//
// Primitives (integers of every width, strings, booleans, floats), time.Time
// and *time.Time round-trip exactly. Any other type must be registered with
// Register or RegisterText before it can be encoded; it is stored as its
// registered name plus a canonical text rendering. A decoder that does not
// know the name yields an Opaque value exposing only that text, so only types
// registered on both sides round-trip with full fidelity.
package codec

import (
	"fmt"
	"reflect"
	"strconv"
	"sync"
	"time"
)

// Default is the codec used when none is configured.
var Default = New()

type extension struct {
	name   string
	typ    reflect.Type
	format func(any) (string, error)
	parse  func(string) (any, error)
}

// Codec encodes and decodes argument values. It is safe for concurrent use;
// extensions are normally registered once at startup.
type Codec struct {
	mu     sync.RWMutex
	byType map[reflect.Type]*extension
	byName map[string]*extension
}

func New() *Codec {
	return &Codec{
		byType: make(map[reflect.Type]*extension),
		byName: make(map[string]*extension),
	}
}

func (c *Codec) add(ext *extension) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.byName[ext.name]; ok {
		return fmt.Errorf("codec: extension %q already registered", ext.name)
	}
	if prev, ok := c.byType[ext.typ]; ok {
		return fmt.Errorf("codec: type %v already registered as %q", ext.typ, prev.name)
	}

	c.byName[ext.name] = ext
	c.byType[ext.typ] = ext
	return nil
}

func (c *Codec) extensionFor(t reflect.Type) *extension {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.byType[t]
}

func (c *Codec) extensionNamed(name string) *extension {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.byName[name]
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	timePtrType = reflect.TypeOf((*time.Time)(nil))
)

// Encode converts v into its portable form.
func (c *Codec) Encode(v any) (Value, error) {
	if v == nil {
		return Value{Tag: TagNull}, nil
	}

	rt := reflect.TypeOf(v)
	if ext := c.extensionFor(rt); ext != nil {
		text, err := ext.format(v)
		if err != nil {
			return Value{}, fmt.Errorf("codec: format %s: %w", ext.name, err)
		}
		return Value{Tag: TagObject, Kind: ext.name, Payload: text}, nil
	}

	switch rt {
	case timeType:
		text, err := formatTime(v.(time.Time))
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagDateTime, Payload: text}, nil
	case timePtrType:
		tp := v.(*time.Time)
		if tp == nil {
			return Value{Tag: TagNullableDateTime}, nil
		}
		text, err := formatTime(*tp)
		if err != nil {
			return Value{}, err
		}
		return Value{Tag: TagNullableDateTime, Payload: text}, nil
	}

	rv := reflect.ValueOf(v)
	if rt.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return Value{Tag: TagNull}, nil
		}
		// A set nullable primitive travels as its value.
		if isBasic(rt.Elem()) {
			return c.Encode(rv.Elem().Interface())
		}
	}

	if !isBasic(rt) {
		return Value{}, &UnsupportedTypeError{Type: rt}
	}

	switch rt.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Value{Tag: TagInteger, Kind: rt.Name(), Payload: strconv.FormatInt(rv.Int(), 10)}, nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return Value{Tag: TagInteger, Kind: rt.Name(), Payload: strconv.FormatUint(rv.Uint(), 10)}, nil
	case reflect.Float32, reflect.Float64:
		return Value{Tag: TagFloating, Kind: rt.Name(), Payload: strconv.FormatFloat(rv.Float(), 'g', -1, rt.Bits())}, nil
	case reflect.String:
		return Value{Tag: TagText, Payload: rv.String()}, nil
	case reflect.Bool:
		return Value{Tag: TagBoolean, Payload: strconv.FormatBool(rv.Bool())}, nil
	}

	return Value{}, &UnsupportedTypeError{Type: rt}
}

// isBasic reports whether t is a predeclared type rather than a named type
// built on one. Named types need an extension to keep their identity.
func isBasic(t reflect.Type) bool {
	return t.PkgPath() == "" && t.Name() == t.Kind().String()
}

// Decode rebuilds the value described by v.
func (c *Codec) Decode(v Value) (any, error) {
	switch v.Tag {
	case TagNull:
		return nil, nil
	case TagInteger:
		return decodeInteger(v)
	case TagFloating:
		return decodeFloat(v)
	case TagText:
		return v.Payload, nil
	case TagBoolean:
		switch v.Payload {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, corrupt(v, "boolean payload must be true or false", nil)
	case TagDateTime:
		t, err := parseTime(v.Payload)
		if err != nil {
			return nil, corrupt(v, "invalid datetime", err)
		}
		return t, nil
	case TagNullableDateTime:
		if v.Payload == "" {
			return (*time.Time)(nil), nil
		}
		t, err := parseTime(v.Payload)
		if err != nil {
			return nil, corrupt(v, "invalid datetime", err)
		}
		return &t, nil
	case TagObject:
		return c.decodeObject(v)
	}

	return nil, corrupt(v, "unknown tag", nil)
}

func (c *Codec) decodeObject(v Value) (any, error) {
	if v.Kind == "" {
		return nil, corrupt(v, "object without type name", nil)
	}

	ext := c.extensionNamed(v.Kind)
	if ext == nil || ext.parse == nil {
		return Opaque{TypeName: v.Kind, Text: v.Payload}, nil
	}

	obj, err := ext.parse(v.Payload)
	if err != nil {
		return nil, corrupt(v, "object does not parse", err)
	}
	return obj, nil
}

// EncodeAll encodes an argument list, keeping positions.
func (c *Codec) EncodeAll(args []any) ([]Value, error) {
	out := make([]Value, len(args))
	for i, a := range args {
		enc, err := c.Encode(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = enc
	}
	return out, nil
}

// DecodeAll decodes an argument list, keeping positions.
func (c *Codec) DecodeAll(vals []Value) ([]any, error) {
	out := make([]any, len(vals))
	for i, v := range vals {
		dec, err := c.Decode(v)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		out[i] = dec
	}
	return out, nil
}

var integerKinds = map[string]reflect.Type{
	"int":    reflect.TypeOf(int(0)),
	"int8":   reflect.TypeOf(int8(0)),
	"int16":  reflect.TypeOf(int16(0)),
	"int32":  reflect.TypeOf(int32(0)),
	"int64":  reflect.TypeOf(int64(0)),
	"uint":   reflect.TypeOf(uint(0)),
	"uint8":  reflect.TypeOf(uint8(0)),
	"uint16": reflect.TypeOf(uint16(0)),
	"uint32": reflect.TypeOf(uint32(0)),
	"uint64": reflect.TypeOf(uint64(0)),
}

func decodeInteger(v Value) (any, error) {
	kind := v.Kind
	if kind == "" {
		kind = "int64"
	}
	rt, ok := integerKinds[kind]
	if !ok {
		return nil, corrupt(v, "unknown integer kind", nil)
	}

	out := reflect.New(rt).Elem()
	switch rt.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		n, err := strconv.ParseUint(v.Payload, 10, rt.Bits())
		if err != nil {
			return nil, corrupt(v, "invalid integer", err)
		}
		out.SetUint(n)
	default:
		n, err := strconv.ParseInt(v.Payload, 10, rt.Bits())
		if err != nil {
			return nil, corrupt(v, "invalid integer", err)
		}
		out.SetInt(n)
	}
	return out.Interface(), nil
}

func decodeFloat(v Value) (any, error) {
	switch v.Kind {
	case "float32":
		f, err := strconv.ParseFloat(v.Payload, 32)
		if err != nil {
			return nil, corrupt(v, "invalid float", err)
		}
		return float32(f), nil
	case "", "float64":
		f, err := strconv.ParseFloat(v.Payload, 64)
		if err != nil {
			return nil, corrupt(v, "invalid float", err)
		}
		return f, nil
	}
	return nil, corrupt(v, "unknown float kind", nil)
}

// formatTime renders t as RFC 3339, which only has room for years 0-9999.
func formatTime(t time.Time) (string, error) {
	if y := t.Year(); y < 0 || y > 9999 {
		return "", &TimeRangeError{Time: t}
	}
	return t.Format(time.RFC3339Nano), nil
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
