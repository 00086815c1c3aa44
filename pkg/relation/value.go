package relation

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"k8s.io/apimachinery/pkg/util/json"
)

// Kind is the type of a scalar value.
type Kind int

const (
	KindUnit Kind = iota
	KindInt
	KindString
)

func (k Kind) String() string {
	switch k {
	case KindUnit:
		return "unit"
	case KindInt:
		return "int"
	case KindString:
		return "string"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a type name as it appears in a relation declaration.
func ParseKind(name string) (Kind, error) {
	switch name {
	case "unit":
		return KindUnit, nil
	case "int":
		return KindInt, nil
	case "string":
		return KindString, nil
	}
	return KindUnit, NewConfigurationError("unknown attribute type %q", name)
}

// UnitType is the plain Go representation of the unit value.
type UnitType struct{}

// Value is a typed scalar. Values are comparable, so they can be used as map keys.
type Value struct {
	kind Kind
	i    int64
	s    string
}

// NewInt returns an integer value.
func NewInt(i int64) Value { return Value{kind: KindInt, i: i} }

// NewString returns a string value.
func NewString(s string) Value { return Value{kind: KindString, s: s} }

// Unit returns the unit value.
func Unit() Value { return Value{kind: KindUnit} }

func (v Value) Kind() Kind { return v.kind }

// Int returns the integer held by the value and whether the value is an integer.
func (v Value) Int() (int64, bool) { return v.i, v.kind == KindInt }

// Str returns the string held by the value and whether the value is a string.
func (v Value) Str() (string, bool) { return v.s, v.kind == KindString }

// Any converts the value into a plain Go value: int64, string or UnitType.
func (v Value) Any() any {
	switch v.kind {
	case KindInt:
		return v.i
	case KindString:
		return v.s
	default:
		return UnitType{}
	}
}

// FromAny converts a plain Go value into a Value.
func FromAny(a any) (Value, error) {
	switch x := a.(type) {
	case Value:
		return x, nil
	case UnitType, *UnitType:
		return Unit(), nil
	case int:
		return NewInt(int64(x)), nil
	case int32:
		return NewInt(int64(x)), nil
	case int64:
		return NewInt(x), nil
	case string:
		return NewString(x), nil
	}
	return Value{}, fmt.Errorf("cannot convert %#v into a scalar value", a)
}

// Compare orders values: unit < int < string, ints numerically, strings lexicographically.
func Compare(a, b Value) int {
	if a.kind != b.kind {
		if a.kind < b.kind {
			return -1
		}
		return 1
	}
	switch a.kind {
	case KindInt:
		switch {
		case a.i < b.i:
			return -1
		case a.i > b.i:
			return 1
		}
		return 0
	case KindString:
		switch {
		case a.s < b.s:
			return -1
		case a.s > b.s:
			return 1
		}
		return 0
	}
	return 0
}

func (v Value) String() string {
	switch v.kind {
	case KindInt:
		return strconv.FormatInt(v.i, 10)
	case KindString:
		return v.s
	default:
		return "()"
	}
}

// MarshalJSON encodes ints as numbers, strings as strings and the unit value as null.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindInt:
		return json.Marshal(v.i)
	case KindString:
		return json.Marshal(v.s)
	default:
		return []byte("null"), nil
	}
}

func (v *Value) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*v = Unit()
		return nil
	}

	var i int64
	if err := json.Unmarshal(b, &i); err == nil {
		*v = NewInt(i)
		return nil
	}

	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		if s == "@unit" {
			*v = Unit()
		} else {
			*v = NewString(s)
		}
		return nil
	}

	return errors.New("scalar value must be an integer, a string or null, got " + string(b))
}
