package expression

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-logr/logr"

	"github.com/l7mp/fixpoint/pkg/relation"
)

// Env resolves column references of the form alias.attribute.
type Env interface {
	Lookup(alias, attribute string) (relation.Value, bool)
}

// EvalCtx is the evaluation context of an expression.
type EvalCtx struct {
	Env    Env
	Params map[string]relation.Value
	Log    logr.Logger
}

// Expression is a node of the expression tree. Terminal expressions hold their value in Literal,
// operators hold their argument in Arg. Expressions evaluate to int64, string, bool or
// relation.UnitType values.
type Expression struct {
	Op      string
	Arg     *Expression
	Literal any
}

func (e *Expression) Evaluate(ctx EvalCtx) (any, error) {
	if len(e.Op) == 0 {
		return nil, NewInvalidArgumentsError(e, "empty operator")
	}

	switch e.Op {
	case "@bool":
		lit := e.Literal
		if e.Arg != nil {
			// eval stacked expressions stored in e.Arg
			v, err := e.Arg.Evaluate(ctx)
			if err != nil {
				return nil, err
			}
			lit = v
		}

		v, err := AsBool(lit)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}

		e.logResult(ctx, v)
		return v, nil

	case "@int":
		lit := e.Literal
		if e.Arg != nil {
			v, err := e.Arg.Evaluate(ctx)
			if err != nil {
				return nil, err
			}
			lit = v
		}

		v, err := AsInt(lit)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}

		e.logResult(ctx, v)
		return v, nil

	case "@string":
		lit := e.Literal
		if e.Arg != nil {
			v, err := e.Arg.Evaluate(ctx)
			if err != nil {
				return nil, err
			}
			lit = v
		}

		v, err := AsString(lit)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}

		e.logResult(ctx, v)
		return v, nil

	case "@unit":
		return relation.UnitType{}, nil

	case "@ref":
		ref, ok := e.Literal.(string)
		if !ok {
			return nil, NewExpressionError(e, errors.New("reference must be a string"))
		}
		alias, attr, ok := strings.Cut(ref, ".")
		if !ok {
			return nil, NewExpressionError(e,
				fmt.Errorf("reference %q must be of the form $alias.attribute", ref))
		}
		if ctx.Env == nil {
			return nil, NewExpressionError(e, errors.New("no tuples bound"))
		}
		v, ok := ctx.Env.Lookup(alias, attr)
		if !ok {
			return nil, NewExpressionError(e, fmt.Errorf("unbound reference %q", ref))
		}

		ret := v.Any()
		e.logResult(ctx, ret)
		return ret, nil

	case "@list":
		ret := []any{}
		if e.Arg != nil {
			v, err := e.Arg.Evaluate(ctx)
			if err != nil {
				return nil, err
			}

			vs, ok := v.([]any)
			if !ok {
				return nil, NewExpressionError(e, errors.New("argument must be a list"))
			}

			ret = vs
		} else {
			// literal lists stored in Literal
			vs, ok := e.Literal.([]Expression)
			if !ok {
				return nil, NewExpressionError(e,
					errors.New("argument must be an expression list"))
			}

			for i := range vs {
				res, err := vs[i].Evaluate(ctx)
				if err != nil {
					return nil, err
				}
				ret = append(ret, res)
			}
		}

		e.logResult(ctx, ret)
		return ret, nil
	}

	// operators
	// evaluate subexpression
	if e.Arg == nil {
		return nil, NewExpressionError(e, errors.New("empty argument list"))
	}

	arg, err := e.Arg.Evaluate(ctx)
	if err != nil {
		return nil, err
	}

	var v any
	switch e.Op {
	case "@param":
		name, err := AsString(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		p, ok := ctx.Params[name]
		if !ok {
			return nil, NewExpressionError(e, fmt.Errorf("unknown parameter %q", name))
		}
		v = p.Any()

	// unary
	case "@not":
		b, err := AsBool(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		v = !b

	case "@isunit":
		_, isUnit := arg.(relation.UnitType)
		v = isUnit

	// binary
	case "@eq", "@neq":
		args, err := AsBinaryList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		eq := reflect.DeepEqual(args[0], args[1])
		v = (e.Op == "@eq") == eq

	case "@lt", "@lte", "@gt", "@gte":
		args, err := AsBinaryList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		c, err := compareScalars(args[0], args[1])
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		switch e.Op {
		case "@lt":
			v = c < 0
		case "@lte":
			v = c <= 0
		case "@gt":
			v = c > 0
		default:
			v = c >= 0
		}

	case "@sub":
		args, err := AsIntList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		if len(args) != 2 {
			return nil, NewExpressionError(e, errors.New("expected 2 arguments"))
		}
		v = args[0] - args[1]

	// list
	case "@and":
		args, err := AsBoolList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		b := true
		for _, a := range args {
			b = b && a
		}
		v = b

	case "@or":
		args, err := AsBoolList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		b := false
		for _, a := range args {
			b = b || a
		}
		v = b

	case "@add":
		args, err := AsIntList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		var sum int64
		for _, a := range args {
			sum += a
		}
		v = sum

	case "@mul":
		args, err := AsIntList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		prod := int64(1)
		for _, a := range args {
			prod *= a
		}
		v = prod

	case "@max", "@min":
		args, err := AsIntList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		if len(args) == 0 {
			return nil, NewExpressionError(e, errors.New("empty argument list"))
		}
		m := args[0]
		for _, a := range args[1:] {
			if (e.Op == "@max" && a > m) || (e.Op == "@min" && a < m) {
				m = a
			}
		}
		v = m

	case "@concat":
		args, err := AsStringList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		v = strings.Join(args, "")

	case "@distinct":
		args, err := AsList(arg)
		if err != nil {
			return nil, NewExpressionError(e, err)
		}
		d := true
		for i := 0; i < len(args) && d; i++ {
			for j := i + 1; j < len(args); j++ {
				if reflect.DeepEqual(args[i], args[j]) {
					d = false
					break
				}
			}
		}
		v = d

	default:
		return nil, NewInvalidArgumentsError(e, "unknown operator")
	}

	e.logResult(ctx, v)
	return v, nil
}

func (e *Expression) logResult(ctx EvalCtx, v any) {
	if log := ctx.Log.V(8); log.Enabled() {
		log.Info("eval ready", "expression", e.String(), "result", v)
	}
}

func compareScalars(a, b any) (int, error) {
	switch x := a.(type) {
	case int64:
		y, err := AsInt(b)
		if err != nil {
			return 0, err
		}
		switch {
		case x < y:
			return -1, nil
		case x > y:
			return 1, nil
		}
		return 0, nil
	case string:
		y, err := AsString(b)
		if err != nil {
			return 0, err
		}
		return strings.Compare(x, y), nil
	}
	return 0, fmt.Errorf("cannot order %#v and %#v", a, b)
}
