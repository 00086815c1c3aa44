package algebra

import (
	"fmt"
	"strings"

	"github.com/l7mp/fixpoint/pkg/expression"
	"github.com/l7mp/fixpoint/pkg/relation"
)

// SelectionOp keeps the rows satisfying a predicate.
type SelectionOp struct {
	BaseOp
	Predicate expression.Expression
}

// NewSelection creates a selection op.
func NewSelection(b *Binding, pred expression.Expression) *SelectionOp {
	return &SelectionOp{BaseOp: NewBaseOp("σ", b), Predicate: pred}
}

// Process evaluates the op.
func (op *SelectionOp) Process(ctx *Context, rows []Row) ([]Row, error) {
	ret := []Row{}
	for _, row := range rows {
		ok, err := op.evalPredicate(ctx, row, &op.Predicate)
		if err != nil {
			return nil, err
		}
		if ok {
			ret = append(ret, row)
		}
	}
	return ret, nil
}

func (op *SelectionOp) String() string {
	return fmt.Sprintf("%s %s", op.name, op.Predicate.String())
}

// ProjectionOp turns rows into tuples of the head relation.
type ProjectionOp struct {
	BaseOp
	Head    relation.Declaration
	Columns []expression.Expression
}

// NewProjection creates a projection op. Columns are given in head schema order.
func NewProjection(b *Binding, head relation.Declaration, cols []expression.Expression) *ProjectionOp {
	return &ProjectionOp{BaseOp: NewBaseOp("π", b), Head: head, Columns: cols}
}

// Project evaluates the op.
func (op *ProjectionOp) Project(ctx *Context, rows []Row) ([]relation.Tuple, error) {
	ret := make([]relation.Tuple, 0, len(rows))
	for _, row := range rows {
		t, err := op.evalKey(ctx, row, op.Columns)
		if err != nil {
			return nil, err
		}
		if err := op.Head.Schema.Check(t); err != nil {
			return nil, relation.NewConfigurationError("head %q: %s", op.Head.Name, err.Error())
		}
		ret = append(ret, t)
	}
	return ret, nil
}

func (op *ProjectionOp) String() string {
	parts := make([]string, len(op.Columns))
	for i := range op.Columns {
		parts[i] = op.Head.Schema.Attributes[i].Name + " = " + op.Columns[i].String()
	}
	return fmt.Sprintf("%s %s(%s)", op.name, op.Head.Name, strings.Join(parts, ", "))
}
