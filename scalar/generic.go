package scalar

import (
	"fmt"
)

// Value is the set of Go types that have a host type code.
type Value interface {
	bool | int8 | uint8 | int16 | uint16 | int32 | uint32 | int64 | uint64 | float32 | float64
}

// TypeOf returns the type code for T.
func TypeOf[T Value]() Type {
	var zero T
	t, _ := Of(zero)
	return t
}

// As converts a checked value to T. It fails with ErrTypeMismatch unless v
// already has Go type T.
func As[T Value](v any) (T, error) {
	out, ok := v.(T)
	if !ok {
		var zero T
		return zero, fmt.Errorf("%w: have %s, want %s", ErrTypeMismatch, describe(v), TypeOf[T]())
	}
	return out, nil
}
