package relation

import (
	"sort"
	"strconv"
	"strings"
)

// Tuple is an ordered sequence of values matching a relation schema. Tuples stored in a relation
// are never mutated.
type Tuple []Value

// NewTuple creates a tuple from plain Go values, see FromAny.
func NewTuple(vs ...any) (Tuple, error) {
	t := make(Tuple, len(vs))
	for i, a := range vs {
		v, err := FromAny(a)
		if err != nil {
			return nil, err
		}
		t[i] = v
	}
	return t, nil
}

// Key returns an injective string encoding of the tuple, usable as a map key.
func (t Tuple) Key() string {
	var b strings.Builder
	for _, v := range t {
		switch v.kind {
		case KindInt:
			b.WriteByte('i')
			b.WriteString(strconv.FormatInt(v.i, 10))
			b.WriteByte(';')
		case KindString:
			b.WriteByte('s')
			b.WriteString(strconv.Itoa(len(v.s)))
			b.WriteByte(':')
			b.WriteString(v.s)
		default:
			b.WriteByte('u')
		}
	}
	return b.String()
}

// Project returns the values at the given column positions.
func (t Tuple) Project(cols []int) Tuple {
	ret := make(Tuple, len(cols))
	for i, c := range cols {
		ret[i] = t[c]
	}
	return ret
}

func (t Tuple) Equal(o Tuple) bool {
	if len(t) != len(o) {
		return false
	}
	for i := range t {
		if t[i] != o[i] {
			return false
		}
	}
	return true
}

func (t Tuple) String() string {
	parts := make([]string, len(t))
	for i, v := range t {
		if v.kind == KindString {
			parts[i] = strconv.Quote(v.s)
		} else {
			parts[i] = v.String()
		}
	}
	return "(" + strings.Join(parts, ", ") + ")"
}

// CompareTuples orders tuples lexicographically.
func CompareTuples(a, b Tuple) int {
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := Compare(a[i], b[i]); c != 0 {
			return c
		}
	}
	return len(a) - len(b)
}

// SortTuples sorts a tuple list in place.
func SortTuples(ts []Tuple) {
	sort.Slice(ts, func(i, j int) bool { return CompareTuples(ts[i], ts[j]) < 0 })
}
