// Package visualize renders the precedence graph of a program as a diagram.
package visualize

import (
	"fmt"
	"sort"
	"strings"

	"github.com/emicklei/dot"

	"github.com/l7mp/fixpoint/pkg/program"
)

// Graph represents the visualization graph of a program.
type Graph struct {
	ProgramName string
	Relations   []RelationNode
	Connections []Connection
}

// RelationNode represents a single relation in the graph.
type RelationNode struct {
	Name   string
	Schema string
	// Stratum is the stratum of a derived relation, or -1 for base relations.
	Stratum int
	// Merge is the merge discipline of the relation.
	Merge string
}

// IsDerived reports whether the relation is derived by rules.
func (n RelationNode) IsDerived() bool { return n.Stratum >= 0 }

// Connection represents the dependencies between two relations.
type Connection struct {
	From, To string
	// Rules lists the rules reading From to derive To.
	Rules    []string
	Negative bool
}

// BuildGraph constructs a visualization graph from a compiled program.
func BuildGraph(p *program.Program) *Graph {
	g := &Graph{
		ProgramName: p.Name,
		Relations:   make([]RelationNode, 0, len(p.Relations)),
		Connections: make([]Connection, 0),
	}

	for _, d := range p.Relations {
		merge := "set"
		switch {
		case d.Lattice != nil:
			merge = fmt.Sprintf("%s(%s)", d.Lattice.Name(), d.LatticeColumn)
		case len(d.Key) > 0:
			merge = "key(" + strings.Join(d.Key, ",") + ")"
		}
		g.Relations = append(g.Relations, RelationNode{
			Name:    d.Name,
			Schema:  d.Schema.String(),
			Stratum: p.StratumOf(d.Name),
			Merge:   merge,
		})
	}

	// Merge parallel dependencies with the same polarity into one connection.
	index := map[string]int{}
	for _, dep := range p.Dependencies() {
		key := fmt.Sprintf("%s/%s/%t", dep.From, dep.To, dep.Negative)
		i, ok := index[key]
		if !ok {
			i = len(g.Connections)
			index[key] = i
			g.Connections = append(g.Connections, Connection{
				From:     dep.From,
				To:       dep.To,
				Negative: dep.Negative,
			})
		}
		c := &g.Connections[i]
		if !contains(c.Rules, dep.Rule) {
			c.Rules = append(c.Rules, dep.Rule)
		}
	}

	return g
}

func contains(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}

// Strata returns the stratum indexes present in the graph in increasing order.
func (g *Graph) Strata() []int {
	seen := map[int]bool{}
	ret := []int{}
	for _, r := range g.Relations {
		if r.IsDerived() && !seen[r.Stratum] {
			seen[r.Stratum] = true
			ret = append(ret, r.Stratum)
		}
	}
	sort.Ints(ret)
	return ret
}

// IsTerminal checks if a relation is derived but not read by any rule.
func (g *Graph) IsTerminal(r RelationNode) bool {
	if !r.IsDerived() {
		return false
	}
	for _, c := range g.Connections {
		if c.From == r.Name {
			return false
		}
	}
	return true
}

// BuildDotGraph creates a Graphviz graph with one cluster per stratum.
func BuildDotGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)
	graph.Attr("rankdir", "LR")    // Left to right layout.
	graph.Attr("compound", "true") // Allow edges between clusters.
	graph.Attr("newrank", "true")  // Better ranking algorithm.
	graph.Attr("label", g.ProgramName)
	graph.Attr("labelloc", "t") // Label at top.
	graph.Attr("fontsize", "16")

	clusters := map[int]*dot.Graph{}
	for _, s := range g.Strata() {
		sub := graph.Subgraph(fmt.Sprintf("stratum %d", s), dot.ClusterOption{})
		sub.Attr("style", "dashed")
		sub.Attr("color", "gray")
		clusters[s] = sub
	}

	nodes := make(map[string]dot.Node)
	for _, r := range g.Relations {
		label := r.Name + r.Schema
		if r.Merge != "set" {
			label += "\n" + r.Merge
		}

		if !r.IsDerived() {
			nodes[r.Name] = graph.Node(r.Name).
				Attr("label", label).
				Attr("shape", "ellipse").
				Attr("style", "filled").
				Attr("fillcolor", "lightgreen").
				Attr("fontname", "helvetica")
			continue
		}

		nodes[r.Name] = clusters[r.Stratum].Node(r.Name).
			Attr("label", label).
			Attr("shape", "box").
			Attr("style", "filled,rounded").
			Attr("fillcolor", fillColor(g, r)).
			Attr("color", "darkblue").
			Attr("penwidth", "2").
			Attr("fontname", "helvetica")
	}

	for _, c := range g.Connections {
		from, fromExists := nodes[c.From]
		to, toExists := nodes[c.To]
		if !fromExists || !toExists {
			continue
		}

		e := graph.Edge(from, to).
			Attr("label", edgeLabel(c)).
			Attr("fontname", "helvetica").
			Attr("fontsize", "10")
		if c.Negative {
			e.Attr("style", "dashed").Attr("color", "red")
		}
	}

	return graph
}

// BuildMermaidGraph creates a flat graph for Mermaid rendering. Mermaid output only covers
// top-level nodes, so strata go into the node labels instead of clusters.
func BuildMermaidGraph(g *Graph) *dot.Graph {
	graph := dot.NewGraph(dot.Directed)

	nodes := make(map[string]dot.Node)
	for _, r := range g.Relations {
		label := r.Name + r.Schema
		if r.Merge != "set" {
			label += " " + r.Merge
		}

		n := graph.Node(r.Name)
		if !r.IsDerived() {
			n.Attr("label", label).
				Attr("shape", dot.MermaidShapeCylinder).
				Attr("style", "fill:lightgreen")
		} else {
			n.Attr("label", fmt.Sprintf("%s [stratum %d]", label, r.Stratum)).
				Attr("shape", dot.MermaidShapeRound).
				Attr("style", "fill:"+fillColor(g, r)+",stroke:darkblue")
		}
		nodes[r.Name] = n
	}

	for _, c := range g.Connections {
		from, fromExists := nodes[c.From]
		to, toExists := nodes[c.To]
		if !fromExists || !toExists {
			continue
		}
		graph.Edge(from, to).Attr("label", edgeLabel(c))
	}

	return graph
}

func fillColor(g *Graph, r RelationNode) string {
	if g.IsTerminal(r) {
		return "lightyellow"
	}
	return "lightblue"
}

func edgeLabel(c Connection) string {
	label := strings.Join(c.Rules, ", ")
	if c.Negative {
		return "not " + label
	}
	return label
}
