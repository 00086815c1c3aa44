package program

import (
	"fmt"
	"io"
	"os"

	yamlv3 "gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/json"
	"sigs.k8s.io/yaml"

	"github.com/l7mp/fixpoint/pkg/api/v1alpha1"
	"github.com/l7mp/fixpoint/pkg/relation"
)

// Parse parses a program from YAML or JSON and checks its structure. YAML is read with YAML 1.2
// rules, so plain scalars like on, y or no remain strings.
func Parse(data []byte) (*v1alpha1.Program, error) {
	doc, err := toJSON(data)
	if err != nil {
		return nil, err
	}

	var p v1alpha1.Program
	if err := yaml.UnmarshalStrict(doc, &p); err != nil {
		return nil, relation.NewConfigurationError("failed to parse program: %s", err.Error())
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

// Load reads a program from a reader.
func Load(r io.Reader) (*v1alpha1.Program, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read program: %w", err)
	}
	return Parse(data)
}

// LoadFile reads a program from a file.
func LoadFile(path string) (*v1alpha1.Program, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open program file: %w", err)
	}
	defer f.Close() //nolint:errcheck

	return Load(f)
}

func toJSON(data []byte) ([]byte, error) {
	var doc any
	if err := yamlv3.Unmarshal(data, &doc); err != nil {
		return nil, relation.NewConfigurationError("failed to parse program: %s", err.Error())
	}
	ret, err := json.Marshal(doc)
	if err != nil {
		return nil, relation.NewConfigurationError("failed to parse program: %s", err.Error())
	}
	return ret, nil
}
