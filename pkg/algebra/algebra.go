package algebra

import (
	"fmt"

	"github.com/go-logr/logr"

	"github.com/l7mp/fixpoint/pkg/expression"
	"github.com/l7mp/fixpoint/pkg/relation"
)

// Source selects the version of a relation an atom reads.
type Source int

const (
	// Full reads the relation with everything merged so far.
	Full Source = iota
	// Delta reads the tuples added or improved in the previous round.
	Delta
)

func (s Source) String() string {
	if s == Delta {
		return "Δ"
	}
	return "full"
}

// Snapshot provides read access to relations. Relations returned by a snapshot must not change
// while a plan is being evaluated.
type Snapshot interface {
	Relation(name string, src Source) (*relation.Relation, error)
}

// Context is the evaluation context of a plan.
type Context struct {
	Snapshot Snapshot
	Params   map[string]relation.Value
	Log      logr.Logger
}

// Row holds one tuple per body atom, unbound atoms are nil.
type Row []relation.Tuple

// Binding maps the aliases of a rule body to row slots.
type Binding struct {
	aliases []string
	slots   map[string]int
	schemas []relation.Schema
}

func NewBinding() *Binding {
	return &Binding{slots: map[string]int{}}
}

// Bind assigns the next slot to an alias.
func (b *Binding) Bind(alias string, schema relation.Schema) (int, error) {
	if _, ok := b.slots[alias]; ok {
		return -1, relation.NewConfigurationError("duplicate alias %q", alias)
	}
	slot := len(b.aliases)
	b.aliases = append(b.aliases, alias)
	b.slots[alias] = slot
	b.schemas = append(b.schemas, schema)
	return slot, nil
}

// Slot returns the slot of an alias.
func (b *Binding) Slot(alias string) (int, bool) {
	s, ok := b.slots[alias]
	return s, ok
}

func (b *Binding) Alias(slot int) string            { return b.aliases[slot] }
func (b *Binding) Schema(slot int) relation.Schema { return b.schemas[slot] }
func (b *Binding) Width() int                       { return len(b.aliases) }

// Env returns an expression environment over a row.
func (b *Binding) Env(row Row) expression.Env {
	return &rowEnv{binding: b, row: row}
}

type rowEnv struct {
	binding *Binding
	row     Row
}

func (e *rowEnv) Lookup(alias, attr string) (relation.Value, bool) {
	slot, ok := e.binding.slots[alias]
	if !ok || slot >= len(e.row) || e.row[slot] == nil {
		return relation.Value{}, false
	}
	col := e.binding.schemas[slot].Index(attr)
	if col < 0 {
		return relation.Value{}, false
	}
	return e.row[slot][col], true
}

// Operator is a row-to-row step of a plan.
type Operator interface {
	// Process transforms a batch of rows.
	Process(ctx *Context, rows []Row) ([]Row, error)
	// Name returns the operator name for debugging.
	Name() string
	fmt.Stringer
}

// BaseOp holds what is common to all operators.
type BaseOp struct {
	name    string
	binding *Binding
}

func NewBaseOp(name string, binding *Binding) BaseOp {
	return BaseOp{name: name, binding: binding}
}

func (n *BaseOp) Name() string { return n.name }

func (n *BaseOp) evalCtx(ctx *Context, row Row) expression.EvalCtx {
	return expression.EvalCtx{Env: n.binding.Env(row), Params: ctx.Params, Log: ctx.Log}
}

// evalKey evaluates a list of expressions into a tuple.
func (n *BaseOp) evalKey(ctx *Context, row Row, exps []expression.Expression) (relation.Tuple, error) {
	ec := n.evalCtx(ctx, row)
	key := make(relation.Tuple, len(exps))
	for i := range exps {
		res, err := exps[i].Evaluate(ec)
		if err != nil {
			return nil, err
		}
		v, err := relation.FromAny(res)
		if err != nil {
			return nil, expression.NewExpressionError(&exps[i], err)
		}
		key[i] = v
	}
	return key, nil
}

// evalPredicate evaluates a boolean expression over a row.
func (n *BaseOp) evalPredicate(ctx *Context, row Row, exp *expression.Expression) (bool, error) {
	res, err := exp.Evaluate(n.evalCtx(ctx, row))
	if err != nil {
		return false, err
	}
	b, err := expression.AsBool(res)
	if err != nil {
		return false, expression.NewExpressionError(exp, err)
	}
	return b, nil
}
