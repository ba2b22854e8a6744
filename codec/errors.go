package codec

import (
	"errors"
	"fmt"
	"reflect"
	"time"
)

var (
	ErrUnsupportedType = errors.New("unsupported type")
	ErrCorruptEncoding = errors.New("corrupt encoding")
)

// UnsupportedTypeError is returned by Encode for values that are neither
// primitives nor of a type with a registered extension.
type UnsupportedTypeError struct {
	Type reflect.Type
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("codec: %s: %v", ErrUnsupportedType, e.Type)
}

func (e *UnsupportedTypeError) Unwrap() error {
	return ErrUnsupportedType
}

// TimeRangeError is returned by Encode for times whose year does not fit the
// wire form. It matches ErrUnsupportedType.
type TimeRangeError struct {
	Time time.Time
}

func (e *TimeRangeError) Error() string {
	return fmt.Sprintf("codec: %s: year %d of %v is outside 0-9999", ErrUnsupportedType, e.Time.Year(), e.Time)
}

func (e *TimeRangeError) Unwrap() error {
	return ErrUnsupportedType
}

// CorruptEncodingError is returned by Decode when a value's tag and payload
// do not agree.
type CorruptEncodingError struct {
	Value  Value
	Reason string
	Err    error
}

func (e *CorruptEncodingError) Error() string {
	msg := fmt.Sprintf("codec: %s: %s: %s", ErrCorruptEncoding, e.Value, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *CorruptEncodingError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrCorruptEncoding, e.Err}
	}
	return []error{ErrCorruptEncoding}
}

func corrupt(v Value, reason string, err error) error {
	return &CorruptEncodingError{Value: v, Reason: reason, Err: err}
}
