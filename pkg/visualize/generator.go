package visualize

import (
	"fmt"
	"strings"

	"github.com/emicklei/dot"
)

// Generator renders a graph in some diagram format.
type Generator interface {
	Generate(g *Graph) string
}

// NewGenerator returns the generator for a format: dot, mermaid or markdown.
func NewGenerator(format string) (Generator, error) {
	switch strings.ToLower(format) {
	case "dot", "graphviz":
		return &DotGenerator{}, nil
	case "mermaid":
		return &MermaidGenerator{}, nil
	case "markdown", "md":
		return &MermaidGenerator{Fenced: true}, nil
	}
	return nil, fmt.Errorf("unknown diagram format %q, expected dot, mermaid or markdown", format)
}

// DotGenerator renders Graphviz DOT with one cluster per stratum.
type DotGenerator struct{}

func (*DotGenerator) Generate(g *Graph) string {
	return BuildDotGraph(g).String()
}

// MermaidGenerator renders a left-to-right Mermaid flowchart.
type MermaidGenerator struct {
	// Fenced wraps the flowchart in a markdown code block.
	Fenced bool
}

func (m *MermaidGenerator) Generate(g *Graph) string {
	chart := dot.MermaidFlowchart(BuildMermaidGraph(g), dot.MermaidLeftToRight)
	if !m.Fenced {
		return chart + "\n"
	}
	return "```mermaid\n" + chart + "\n```\n"
}
