package expression

import (
	"bytes"
	"fmt"
	"strings"

	"k8s.io/apimachinery/pkg/util/json"
)

func (e *Expression) UnmarshalJSON(b []byte) error {
	if bytes.Equal(bytes.TrimSpace(b), []byte("null")) {
		*e = Expression{Op: "@unit"}
		return nil
	}

	// try to unmarshal as a bool terminal expression
	bv := false
	if err := json.Unmarshal(b, &bv); err == nil {
		*e = Expression{Op: "@bool", Literal: bv}
		return nil
	}

	// try to unmarshal as an int terminal expression
	var iv int64 = 0
	if err := json.Unmarshal(b, &iv); err == nil {
		*e = Expression{Op: "@int", Literal: iv}
		return nil
	}

	// floats are not scalar values
	fv := 0.0
	if err := json.Unmarshal(b, &fv); err == nil {
		return NewUnmarshalError("expression (floating point values are not supported)", string(b))
	}

	// try to unmarshal as a string terminal expression: a column reference, the unit value or a
	// string literal
	sv := ""
	if err := json.Unmarshal(b, &sv); err == nil {
		switch {
		case sv == "@unit":
			*e = Expression{Op: "@unit"}
		case strings.HasPrefix(sv, "$"):
			*e = Expression{Op: "@ref", Literal: sv[1:]}
		default:
			*e = Expression{Op: "@string", Literal: sv}
		}
		return nil
	}

	// try to unmarshal as a literal list expression
	mv := []Expression{}
	if err := json.Unmarshal(b, &mv); err == nil {
		*e = Expression{Op: "@list", Literal: mv}
		return nil
	}

	// try to unmarshal as an operator: an op has a single key that starts with @
	cv := map[string]Expression{}
	if err := json.Unmarshal(b, &cv); err == nil && len(cv) == 1 {
		for op, exp := range cv {
			if len(op) > 1 && op[0] == '@' {
				exp := exp
				*e = Expression{Op: op, Arg: &exp}
				return nil
			}
		}
	}

	return NewUnmarshalError("expression", string(b))
}

func (e Expression) MarshalJSON() ([]byte, error) {
	switch e.Op {
	case "@unit":
		return json.Marshal("@unit")

	case "@ref":
		v, err := AsString(e.Literal)
		if err != nil {
			return []byte(""), err
		}
		return json.Marshal("$" + v)

	case "@bool", "@int", "@string":
		if e.Arg != nil {
			// keep the op for a correct round-trip and possible side-effects (conversion)
			ret := map[string]*Expression{e.Op: e.Arg}
			return json.Marshal(ret)
		}
		return json.Marshal(e.Literal)

	case "@list":
		if e.Arg != nil {
			return json.Marshal(map[string]*Expression{e.Op: e.Arg})
		}
		es, ok := e.Literal.([]Expression)
		if !ok {
			return []byte(""), fmt.Errorf("invalid expression list: %#v", e)
		}
		return json.Marshal(es)

	default:
		// everything else is a valid op
		if len(e.Op) == 0 || e.Op[0] != '@' {
			return []byte(""), fmt.Errorf("expected an op starting with @, got %#v", e)
		}

		ret := map[string]*Expression{e.Op: e.Arg}
		return json.Marshal(ret)
	}
}

func (e *Expression) String() string {
	b, err := json.Marshal(e)
	if err != nil {
		return ""
	}
	return string(b)
}
