package algebra

import (
	"fmt"
	"strings"

	"github.com/l7mp/fixpoint/pkg/expression"
	"github.com/l7mp/fixpoint/pkg/relation"
)

// Atom is an occurrence of a relation in a rule body.
type Atom struct {
	Relation string
	Alias    string
	Source   Source
	// Slot is the row slot the atom binds.
	Slot int
	// Cols are the columns matched against Keys. Keys may only refer to atoms bound earlier.
	Cols []int
	Keys []expression.Expression
	// Filter is an optional predicate evaluated once the atom is bound.
	Filter *expression.Expression
}

// JoinOp is an inner equi-join of the incoming rows with the tuples of an atom.
type JoinOp struct {
	BaseOp
	Atom Atom
}

// NewJoin creates a join op.
func NewJoin(b *Binding, atom Atom) *JoinOp {
	return &JoinOp{BaseOp: NewBaseOp("⋈", b), Atom: atom}
}

// NewScan creates the first op of a plan: a join against the empty row.
func NewScan(b *Binding, atom Atom) *JoinOp {
	return &JoinOp{BaseOp: NewBaseOp("scan", b), Atom: atom}
}

// Process evaluates the op.
func (op *JoinOp) Process(ctx *Context, rows []Row) ([]Row, error) {
	rel, err := ctx.Snapshot.Relation(op.Atom.Relation, op.Atom.Source)
	if err != nil {
		return nil, err
	}

	ret := []Row{}
	if rel.Len() == 0 {
		return ret, nil
	}

	var idx *relation.Index
	if len(op.Atom.Cols) > 0 {
		idx = rel.Index(op.Atom.Cols)
	}

	for _, row := range rows {
		var matches []relation.Tuple
		if idx == nil {
			matches = make([]relation.Tuple, 0, rel.Len())
			rel.Scan(func(t relation.Tuple) bool {
				matches = append(matches, t)
				return true
			})
		} else {
			key, err := op.evalKey(ctx, row, op.Atom.Keys)
			if err != nil {
				return nil, err
			}
			matches = idx.Find(key)
		}

		for _, t := range matches {
			nr := make(Row, len(row))
			copy(nr, row)
			nr[op.Atom.Slot] = t

			if op.Atom.Filter != nil {
				ok, err := op.evalPredicate(ctx, nr, op.Atom.Filter)
				if err != nil {
					return nil, err
				}
				if !ok {
					continue
				}
			}

			ret = append(ret, nr)
		}
	}

	return ret, nil
}

func (op *JoinOp) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s AS %s", op.name, op.Atom.Relation, op.Atom.Alias)
	if op.Atom.Source == Delta {
		b.WriteString(" [Δ]")
	}
	if len(op.Atom.Cols) > 0 {
		b.WriteString(" ON ")
		b.WriteString(matchString(op.binding.Schema(op.Atom.Slot), op.Atom.Cols, op.Atom.Keys))
	}
	if op.Atom.Filter != nil {
		b.WriteString(" WHERE ")
		b.WriteString(op.Atom.Filter.String())
	}
	return b.String()
}

// AntiJoinOp drops the rows for which a matching tuple exists in a relation. It always reads the
// full relation.
type AntiJoinOp struct {
	BaseOp
	Relation string
	Schema   relation.Schema
	Cols     []int
	Keys     []expression.Expression
}

// NewAntiJoin creates an anti-join op. Columns not listed in cols match anything.
func NewAntiJoin(b *Binding, rel string, schema relation.Schema, cols []int, keys []expression.Expression) *AntiJoinOp {
	return &AntiJoinOp{
		BaseOp:   NewBaseOp("▷", b),
		Relation: rel,
		Schema:   schema,
		Cols:     cols,
		Keys:     keys,
	}
}

// Process evaluates the op.
func (op *AntiJoinOp) Process(ctx *Context, rows []Row) ([]Row, error) {
	rel, err := ctx.Snapshot.Relation(op.Relation, Full)
	if err != nil {
		return nil, err
	}

	if rel.Len() == 0 {
		return rows, nil
	}
	if len(op.Cols) == 0 {
		return []Row{}, nil
	}

	idx := rel.Index(op.Cols)
	ret := []Row{}
	for _, row := range rows {
		key, err := op.evalKey(ctx, row, op.Keys)
		if err != nil {
			return nil, err
		}
		if len(idx.Find(key)) == 0 {
			ret = append(ret, row)
		}
	}

	return ret, nil
}

func (op *AntiJoinOp) String() string {
	if len(op.Cols) == 0 {
		return fmt.Sprintf("%s %s", op.name, op.Relation)
	}
	return fmt.Sprintf("%s %s ON %s", op.name, op.Relation, matchString(op.Schema, op.Cols, op.Keys))
}

func matchString(schema relation.Schema, cols []int, keys []expression.Expression) string {
	parts := make([]string, len(cols))
	for i, c := range cols {
		parts[i] = schema.Attributes[c].Name + " = " + keys[i].String()
	}
	return "(" + strings.Join(parts, ", ") + ")"
}
