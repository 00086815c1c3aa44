package expression

import (
	"fmt"

	"github.com/l7mp/fixpoint/pkg/relation"
)

// NewLiteralExpression creates a new literal expression with the given argument.
func NewLiteralExpression(value any) (Expression, error) {
	switch v := value.(type) {
	case bool:
		return Expression{Op: "@bool", Literal: v}, nil
	case int:
		return Expression{Op: "@int", Literal: int64(v)}, nil
	case int32:
		return Expression{Op: "@int", Literal: int64(v)}, nil
	case int64:
		return Expression{Op: "@int", Literal: v}, nil
	case string:
		return Expression{Op: "@string", Literal: v}, nil
	case relation.UnitType:
		return Expression{Op: "@unit"}, nil
	case relation.Value:
		return NewLiteralExpression(v.Any())
	}

	return Expression{}, fmt.Errorf("cannot create a literal expression from an "+
		"argument %#v", value)
}

// NewRefExpression creates an expression that evaluates to the given attribute of the tuple bound
// to alias.
func NewRefExpression(alias, attribute string) Expression {
	return Expression{Op: "@ref", Literal: alias + "." + attribute}
}

// NewParamExpression creates an expression that evaluates to a program parameter.
func NewParamExpression(name string) Expression {
	return Expression{Op: "@param", Arg: &Expression{Op: "@string", Literal: name}}
}

// NewOpExpression applies an operator to a list of arguments.
func NewOpExpression(op string, args ...Expression) Expression {
	if len(args) == 1 {
		return Expression{Op: op, Arg: &args[0]}
	}
	return Expression{Op: op, Arg: &Expression{Op: "@list", Literal: args}}
}
