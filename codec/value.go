package codec

import (
	"encoding/json"
	"fmt"
)

// Tag identifies the type family of an encoded value.
type Tag string

const (
	TagNull             Tag = "null"
	TagInteger          Tag = "integer"
	TagText             Tag = "text"
	TagBoolean          Tag = "boolean"
	TagFloating         Tag = "floating"
	TagDateTime         Tag = "datetime"
	TagNullableDateTime Tag = "nullable-datetime"
	TagObject           Tag = "object"
)

func (t Tag) valid() bool {
	switch t {
	case TagNull, TagInteger, TagText, TagBoolean, TagFloating,
		TagDateTime, TagNullableDateTime, TagObject:
		return true
	}
	return false
}

// Value is the portable form of a single argument.
//
// Kind carries the concrete Go kind for numbers (so an int32 decodes as an
// int32) and the registered type name for objects.
type Value struct {
	Tag     Tag    `json:"t"`
	Kind    string `json:"k,omitempty"`
	Payload string `json:"p,omitempty"`
}

func (v Value) String() string {
	if v.Kind == "" {
		return fmt.Sprintf("%s(%q)", v.Tag, v.Payload)
	}
	return fmt.Sprintf("%s/%s(%q)", v.Tag, v.Kind, v.Payload)
}

// UnmarshalJSON rejects unknown tags early so that a bad value never reaches
// Decode looking like a valid one.
func (v *Value) UnmarshalJSON(data []byte) error {
	type plain Value
	var p plain
	if err := json.Unmarshal(data, &p); err != nil {
		return err
	}
	if !p.Tag.valid() {
		return &CorruptEncodingError{Value: Value(p), Reason: "unknown tag"}
	}
	*v = Value(p)
	return nil
}

// Opaque stands in for an object whose type has no extension registered on
// the decoding side. Only the text rendering survives.
type Opaque struct {
	TypeName string
	Text     string
}

func (o Opaque) String() string {
	return o.Text
}
