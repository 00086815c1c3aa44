// Package report renders relations for humans and machines.
package report

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/fixpoint/pkg/relation"
	"github.com/l7mp/fixpoint/pkg/util"
)

// Format is an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses an output format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q, expected table, json or yaml", s)
}

// Source provides the relations to render.
type Source interface {
	Names() []string
	Relation(name string) (*relation.Relation, bool)
}

// Relation is the serialized form of a relation.
type Relation struct {
	Name       string           `json:"name"`
	Attributes []string         `json:"attributes"`
	Tuples     []relation.Tuple `json:"tuples"`
}

// Collect returns the serialized form of the named relations, or of all relations if names is
// empty.
func Collect(src Source, names []string) ([]Relation, error) {
	if len(names) == 0 {
		names = src.Names()
	}

	ret := make([]Relation, 0, len(names))
	for _, n := range names {
		r, ok := src.Relation(n)
		if !ok {
			return nil, fmt.Errorf("unknown relation %q", n)
		}
		ret = append(ret, Relation{
			Name:       n,
			Attributes: r.Schema().Names(),
			Tuples:     r.Tuples(),
		})
	}
	return ret, nil
}

// Write renders the named relations, or all relations if names is empty.
func Write(w io.Writer, src Source, names []string, format Format) error {
	rels, err := Collect(src, names)
	if err != nil {
		return err
	}

	switch format {
	case FormatTable:
		return writeTable(w, rels)
	case FormatJSON:
		data, err := json.Marshal(rels)
		if err != nil {
			return fmt.Errorf("failed to encode relations: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(rels)
		if err != nil {
			return fmt.Errorf("failed to encode relations: %w", err)
		}
		_, err = w.Write(data)
		return err
	}

	return fmt.Errorf("unknown output format %q", format)
}

func writeTable(w io.Writer, rels []Relation) error {
	for i, r := range rels {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintf(w, "%s (%d tuples)\n", r.Name, len(r.Tuples)); err != nil {
			return err
		}

		tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, strings.ToUpper(strings.Join(r.Attributes, "\t"))) //nolint:errcheck
		for _, t := range r.Tuples {
			vs := util.Map(relation.Value.String, []relation.Value(t))
			fmt.Fprintln(tw, strings.Join(vs, "\t")) //nolint:errcheck
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}
	return nil
}
