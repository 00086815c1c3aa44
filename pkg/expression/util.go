package expression

import (
	"strings"
)

// Ref is a column reference.
type Ref struct {
	Alias, Attribute string
}

func (r Ref) String() string { return "$" + r.Alias + "." + r.Attribute }

// References lists the column references in the expression, in order of appearance. Malformed
// references are returned with an empty attribute.
func (e *Expression) References() []Ref {
	ret := []Ref{}
	e.walk(func(x *Expression) {
		if x.Op != "@ref" {
			return
		}
		s, _ := x.Literal.(string)
		alias, attr, _ := strings.Cut(s, ".")
		ret = append(ret, Ref{Alias: alias, Attribute: attr})
	})
	return ret
}

// Params lists the names of the parameters the expression reads.
func (e *Expression) Params() []string {
	ret := []string{}
	e.walk(func(x *Expression) {
		if x.Op != "@param" || x.Arg == nil || x.Arg.Op != "@string" {
			return
		}
		if s, ok := x.Arg.Literal.(string); ok {
			ret = append(ret, s)
		}
	})
	return ret
}

// IsConstant reports whether the expression has no column references.
func (e *Expression) IsConstant() bool {
	return len(e.References()) == 0
}

func (e *Expression) walk(fn func(*Expression)) {
	if e == nil {
		return
	}
	fn(e)
	if e.Arg != nil {
		e.Arg.walk(fn)
	}
	if es, ok := e.Literal.([]Expression); ok {
		for i := range es {
			es[i].walk(fn)
		}
	}
}
