// Package scalar maps the host's numeric type codes onto Go and OPC UA
// scalar types. Conversions are strict: a value is accepted only when its
// type is exactly the requested one.
package scalar

import (
	"fmt"
	"strings"

	"github.com/gopcua/opcua/ua"

	"github.com/wippyai/opcua-bridge/errors"
)

// Type is a host scalar type code.
type Type uint8

const (
	Invalid Type = iota
	Boolean
	SByte
	Byte
	Int16
	UInt16
	Int32
	UInt32
	Int64
	UInt64
	Float
	Double
)

var (
	ErrInvalidType  = errors.Sentinel(errors.PhaseType, errors.KindInvalidType, errors.StatusInvalidType, "unknown scalar type code")
	ErrTypeMismatch = errors.Sentinel(errors.PhaseType, errors.KindTypeMismatch, errors.StatusTypeMismatch, "value type differs from requested type")
)

type info struct {
	name   string
	typeID ua.TypeID
	zero   any
}

var types = [...]info{
	Boolean: {"Boolean", ua.TypeIDBoolean, false},
	SByte:   {"SByte", ua.TypeIDSByte, int8(0)},
	Byte:    {"Byte", ua.TypeIDByte, uint8(0)},
	Int16:   {"Int16", ua.TypeIDInt16, int16(0)},
	UInt16:  {"UInt16", ua.TypeIDUint16, uint16(0)},
	Int32:   {"Int32", ua.TypeIDInt32, int32(0)},
	UInt32:  {"UInt32", ua.TypeIDUint32, uint32(0)},
	Int64:   {"Int64", ua.TypeIDInt64, int64(0)},
	UInt64:  {"UInt64", ua.TypeIDUint64, uint64(0)},
	Float:   {"Float", ua.TypeIDFloat, float32(0)},
	Double:  {"Double", ua.TypeIDDouble, float64(0)},
}

// All lists every valid type in code order.
func All() []Type {
	out := make([]Type, 0, len(types)-1)
	for t := Boolean; t <= Double; t++ {
		out = append(out, t)
	}
	return out
}

// Valid reports whether t is one of the eleven known codes.
func (t Type) Valid() bool { return t >= Boolean && t <= Double }

func (t Type) String() string {
	if !t.Valid() {
		return fmt.Sprintf("Type(%d)", uint8(t))
	}
	return types[t].name
}

// TypeID returns the OPC UA built-in type id for t.
func (t Type) TypeID() ua.TypeID {
	if !t.Valid() {
		return ua.TypeIDNull
	}
	return types[t].typeID
}

// Zero returns the zero value of t as its Go type, or nil for invalid codes.
func (t Type) Zero() any {
	if !t.Valid() {
		return nil
	}
	return types[t].zero
}

// Parse validates a raw type code.
func Parse(code int32) (Type, error) {
	t := Type(code)
	if code < 0 || code > int32(Double) || !t.Valid() {
		return Invalid, fmt.Errorf("%w: %d", ErrInvalidType, code)
	}
	return t, nil
}

// ParseName resolves a type by name, case-insensitively ("double", "Int32").
func ParseName(name string) (Type, error) {
	for t := Boolean; t <= Double; t++ {
		if strings.EqualFold(types[t].name, name) {
			return t, nil
		}
	}
	return Invalid, fmt.Errorf("%w: %q", ErrInvalidType, name)
}

// FromTypeID maps an OPC UA built-in type id back to a code.
func FromTypeID(id ua.TypeID) (Type, bool) {
	for t := Boolean; t <= Double; t++ {
		if types[t].typeID == id {
			return t, true
		}
	}
	return Invalid, false
}

// Of returns the type code of a Go value.
func Of(v any) (Type, bool) {
	switch v.(type) {
	case bool:
		return Boolean, true
	case int8:
		return SByte, true
	case uint8:
		return Byte, true
	case int16:
		return Int16, true
	case uint16:
		return UInt16, true
	case int32:
		return Int32, true
	case uint32:
		return UInt32, true
	case int64:
		return Int64, true
	case uint64:
		return UInt64, true
	case float32:
		return Float, true
	case float64:
		return Double, true
	}
	return Invalid, false
}

// Check returns v unchanged if it has Go type want, otherwise ErrTypeMismatch.
func Check(v any, want Type) (any, error) {
	if !want.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, uint8(want))
	}
	got, ok := Of(v)
	if !ok || got != want {
		return nil, mismatch("", describe(v), want)
	}
	return v, nil
}

// FromVariant extracts the value of a variant holding exactly type want.
// No widening, narrowing or parsing is performed.
func FromVariant(node string, v *ua.Variant, want Type) (any, error) {
	if !want.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidType, uint8(want))
	}
	if v == nil {
		return nil, mismatch(node, "null", want)
	}
	if v.Type() != want.TypeID() {
		stored := v.Type().String()
		if t, ok := FromTypeID(v.Type()); ok {
			stored = t.String()
		}
		return nil, mismatch(node, stored, want)
	}
	got, ok := Of(v.Value())
	if !ok || got != want {
		return nil, mismatch(node, describe(v.Value()), want)
	}
	return v.Value(), nil
}

// Variant wraps v in an OPC UA variant after checking it has type want.
func Variant(v any, want Type) (*ua.Variant, error) {
	if _, err := Check(v, want); err != nil {
		return nil, err
	}
	return ua.NewVariant(v)
}

func describe(v any) string {
	if t, ok := Of(v); ok {
		return t.String()
	}
	if v == nil {
		return "null"
	}
	return fmt.Sprintf("%T", v)
}

func mismatch(node, stored string, want Type) error {
	return fmt.Errorf("%w: %w", ErrTypeMismatch,
		errors.TypeMismatch(errors.PhaseType, node, stored, want.String()))
}
