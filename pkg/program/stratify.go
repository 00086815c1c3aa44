package program

import (
	"sort"

	"github.com/l7mp/fixpoint/internal/dag"
	"github.com/l7mp/fixpoint/pkg/relation"
)

// stratify assigns a stratum to each derived relation. A relation is in the same or a higher
// stratum than the relations it reads, and in a strictly higher stratum than the derived
// relations it negates. Negation through a cycle is rejected. Strata are numbered densely from zero.
func stratify(g *dag.Graph, derived map[string]bool) (map[string]int, error) {
	comps := g.Components()
	compOf := make(map[string]int, len(g.Nodes))
	for i, comp := range comps {
		for _, n := range comp {
			compOf[n] = i
		}
	}

	for i, comp := range comps {
		if !g.IsCyclic(comp) {
			continue
		}
		for _, from := range comp {
			for _, to := range g.Edges(from) {
				if g.IsNegative(from, to) && compOf[to] == i {
					return nil, relation.NewConfigurationError("relation %q depends negatively on %q "+
						"through a recursive cycle", to, from)
				}
			}
		}
	}

	// components come in topological order, so every predecessor is final by the time its
	// successors are visited. Base relations are complete before evaluation starts, negating
	// them needs no new stratum.
	level := make([]int, len(comps))
	for i, comp := range comps {
		for _, n := range comp {
			for _, w := range g.Edges(n) {
				j := compOf[w]
				if j == i {
					continue
				}
				l := level[i]
				if g.IsNegative(n, w) && derived[n] {
					l++
				}
				level[j] = max(level[j], l)
			}
		}
	}

	levels := []int{}
	seen := map[int]bool{}
	for n := range derived {
		l := level[compOf[n]]
		if !seen[l] {
			seen[l] = true
			levels = append(levels, l)
		}
	}
	sort.Ints(levels)
	dense := make(map[int]int, len(levels))
	for i, l := range levels {
		dense[l] = i
	}

	ret := make(map[string]int, len(derived))
	for n := range derived {
		ret[n] = dense[level[compOf[n]]]
	}
	return ret, nil
}
