package dag

// New creates an empty graph.
func New() *Graph {
	return &Graph{byLabel: map[string]int{}, edges: map[string]map[string]bool{}}
}

// Components returns the strongly connected components of the graph in topological order: if
// there is an edge from a node of component A to a node of component B then A precedes B.
func (g *Graph) Components() [][]string {
	// Tarjan's algorithm emits components in reverse topological order
	index := map[string]int{}
	low := map[string]int{}
	onStack := map[string]bool{}
	stack := []string{}
	comps := [][]string{}
	next := 0

	var connect func(v string)
	connect = func(v string) {
		index[v] = next
		low[v] = next
		next++
		stack = append(stack, v)
		onStack[v] = true

		for _, w := range g.Edges(v) {
			if _, ok := index[w]; !ok {
				connect(w)
				low[v] = min(low[v], low[w])
			} else if onStack[w] {
				low[v] = min(low[v], index[w])
			}
		}

		if low[v] == index[v] {
			comp := []string{}
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				comp = append(comp, w)
				if w == v {
					break
				}
			}
			// keep insertion order within a component
			sortByLabel(g, comp)
			comps = append(comps, comp)
		}
	}

	for _, v := range g.Nodes {
		if _, ok := index[v]; !ok {
			connect(v)
		}
	}

	for i, j := 0, len(comps)-1; i < j; i, j = i+1, j-1 {
		comps[i], comps[j] = comps[j], comps[i]
	}
	return comps
}

// IsCyclic reports whether the nodes of a component lie on a cycle: the component has more than
// one node or its single node has a self-loop.
func (g *Graph) IsCyclic(comp []string) bool {
	return len(comp) > 1 || (len(comp) == 1 && g.HasEdge(comp[0], comp[0]))
}

func sortByLabel(g *Graph, nodes []string) {
	for i := 1; i < len(nodes); i++ {
		for j := i; j > 0 && g.byLabel[nodes[j]] < g.byLabel[nodes[j-1]]; j-- {
			nodes[j], nodes[j-1] = nodes[j-1], nodes[j]
		}
	}
}
