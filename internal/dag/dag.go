// Package dag implements the directed graphs used to order the evaluation of relations.
//
// Nodes are identified by their label and edges may be marked negative. The graph need not be
// acyclic: Components returns the strongly connected components in topological order, so that
// cyclic dependencies can be evaluated together and everything else in dependency order.
package dag

import (
	"sort"
)

type Graph struct {
	Nodes   []string
	byLabel map[string]int
	edges   map[string]map[string]bool // from -> to -> negative
}

func (g *Graph) AddNode(label string) bool {
	if _, ok := g.byLabel[label]; ok {
		return false
	}
	g.byLabel[label] = len(g.Nodes)
	g.Nodes = append(g.Nodes, label)
	g.edges[label] = map[string]bool{}
	return true
}

// AddEdge adds an edge, adding the endpoints if needed. An edge is negative if it was ever added
// as negative.
func (g *Graph) AddEdge(from, to string, negative bool) {
	g.AddNode(from)
	g.AddNode(to)
	g.edges[from][to] = g.edges[from][to] || negative
}

func (g *Graph) HasEdge(from, to string) bool {
	_, ok := g.edges[from][to]
	return ok
}

// IsNegative reports whether the edge exists and is negative.
func (g *Graph) IsNegative(from, to string) bool {
	return g.edges[from][to]
}

// Edges returns the successors of a node in insertion order.
func (g *Graph) Edges(from string) []string {
	edges := make([]string, 0, len(g.edges[from]))
	for k := range g.edges[from] {
		edges = append(edges, k)
	}
	sort.Slice(edges, func(i, j int) bool { return g.byLabel[edges[i]] < g.byLabel[edges[j]] })
	return edges
}
