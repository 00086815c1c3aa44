package algebra

import (
	"fmt"
	"strings"

	"github.com/l7mp/fixpoint/pkg/relation"
)

// GatherOp groups tuples by their key columns and reduces the value column with a lattice join.
// The result does not depend on the order of the input since the join is idempotent, commutative
// and associative.
type GatherOp struct {
	name    string
	Key     []int
	Value   int
	Lattice relation.Lattice
	schema  relation.Schema
}

// NewGather creates a gather op for a lattice relation.
func NewGather(decl relation.Declaration) (*GatherOp, error) {
	key, col, err := decl.Validate()
	if err != nil {
		return nil, err
	}
	if col < 0 {
		return nil, relation.NewConfigurationError("relation %q has no lattice column", decl.Name)
	}
	return &GatherOp{name: "γ", Key: key, Value: col, Lattice: decl.Lattice, schema: decl.Schema}, nil
}

func (op *GatherOp) Name() string { return op.name }

// Gather evaluates the op. The output is sorted by key.
func (op *GatherOp) Gather(tuples []relation.Tuple) []relation.Tuple {
	groups := map[string]relation.Tuple{}
	order := []string{}
	for _, t := range tuples {
		k := t.Project(op.Key).Key()
		old, ok := groups[k]
		if !ok {
			groups[k] = t
			order = append(order, k)
			continue
		}
		j := op.Lattice.Join(old[op.Value], t[op.Value])
		if j != old[op.Value] {
			nt := make(relation.Tuple, len(old))
			copy(nt, old)
			nt[op.Value] = j
			groups[k] = nt
		}
	}

	ret := make([]relation.Tuple, 0, len(groups))
	for _, k := range order {
		ret = append(ret, groups[k])
	}
	relation.SortTuples(ret)
	return ret
}

func (op *GatherOp) String() string {
	names := make([]string, len(op.Key))
	for i, k := range op.Key {
		names[i] = op.schema.Attributes[k].Name
	}
	return fmt.Sprintf("%s %s(%s) BY (%s)", op.name, op.Lattice.Name(),
		op.schema.Attributes[op.Value].Name, strings.Join(names, ", "))
}
