package algebra

import (
	"fmt"
	"strings"

	"github.com/l7mp/fixpoint/pkg/relation"
)

// Plan evaluates one rule body, or one semi-naive variant of it, into head tuples.
type Plan struct {
	Rule string
	Head string
	// DeltaAtom is the slot of the atom reading the delta relation, or -1.
	DeltaAtom int
	Binding   *Binding
	Ops       []Operator
	Project   *ProjectionOp
	Gather    *GatherOp
}

// Evaluate runs the plan. Tuples are not deduplicated against the head relation.
func (p *Plan) Evaluate(ctx *Context) ([]relation.Tuple, error) {
	rows := []Row{make(Row, p.Binding.Width())}
	for _, op := range p.Ops {
		var err error
		rows, err = op.Process(ctx, rows)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %s: %w", p.Rule, op.Name(), err)
		}

		ctx.Log.V(4).Info("operator ready", "rule", p.Rule, "op", op.Name(), "rows", len(rows))

		if len(rows) == 0 {
			return []relation.Tuple{}, nil
		}
	}

	tuples, err := p.Project.Project(ctx, rows)
	if err != nil {
		return nil, fmt.Errorf("rule %q: %w", p.Rule, err)
	}

	if p.Gather != nil {
		tuples = p.Gather.Gather(tuples)
	}

	ctx.Log.V(2).Info("rule evaluated", "rule", p.Rule, "variant", p.IsVariant(), "tuples", len(tuples))

	return tuples, nil
}

// IsVariant reports whether the plan reads a delta relation.
func (p *Plan) IsVariant() bool { return p.DeltaAtom >= 0 }

func (p *Plan) String() string {
	parts := make([]string, 0, len(p.Ops)+2)
	for _, op := range p.Ops {
		parts = append(parts, op.String())
	}
	parts = append(parts, p.Project.String())
	if p.Gather != nil {
		parts = append(parts, p.Gather.String())
	}
	return strings.Join(parts, " → ")
}

// UnionOp evaluates a set of plans with the same head and concatenates the results.
type UnionOp struct {
	Head  string
	Plans []*Plan
}

// NewUnion creates a union op.
func NewUnion(head string, plans ...*Plan) *UnionOp {
	return &UnionOp{Head: head, Plans: plans}
}

// Evaluate runs every plan in order.
func (u *UnionOp) Evaluate(ctx *Context) ([]relation.Tuple, error) {
	ret := []relation.Tuple{}
	for _, p := range u.Plans {
		if p.Head != u.Head {
			return nil, fmt.Errorf("union of %q: plan of rule %q produces %q", u.Head, p.Rule, p.Head)
		}
		ts, err := p.Evaluate(ctx)
		if err != nil {
			return nil, err
		}
		ret = append(ret, ts...)
	}
	return ret, nil
}

func (u *UnionOp) String() string {
	parts := make([]string, len(u.Plans))
	for i, p := range u.Plans {
		parts[i] = "  " + p.String()
	}
	return fmt.Sprintf("∪ %s:\n%s", u.Head, strings.Join(parts, "\n"))
}
