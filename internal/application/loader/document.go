package loader

import (
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/aescanero/dagrun/pkg/domain"
)

// document is the on-disk shape of a workflow.
type document struct {
	Name        string               `yaml:"name"`
	Env         scalarMap            `yaml:"env"`
	Concurrency *concurrencyDocument `yaml:"concurrency"`
	Jobs        yaml.Node            `yaml:"jobs"`
}

type jobDocument struct {
	Name           string               `yaml:"name"`
	Needs          stringList           `yaml:"needs"`
	If             string               `yaml:"if"`
	Strategy       *strategyDocument    `yaml:"strategy"`
	Concurrency    *concurrencyDocument `yaml:"concurrency"`
	Env            scalarMap            `yaml:"env"`
	Outputs        scalarMap            `yaml:"outputs"`
	TimeoutMinutes int                  `yaml:"timeout-minutes"`
	Steps          []stepDocument       `yaml:"steps"`
}

type strategyDocument struct {
	FailFast    *bool           `yaml:"fail-fast"`
	MaxParallel int             `yaml:"max-parallel"`
	Matrix      *matrixDocument `yaml:"matrix"`
}

type stepDocument struct {
	ID       string              `yaml:"id"`
	Name     string              `yaml:"name"`
	Run      string              `yaml:"run"`
	Env      scalarMap           `yaml:"env"`
	Upload   *domain.ArtifactRef `yaml:"upload"`
	Download *domain.ArtifactRef `yaml:"download"`
}

// stringList accepts a scalar or a sequence of scalars.
type stringList []string

func (l *stringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value != "" {
			*l = stringList{node.Value}
		}
		return nil
	case yaml.SequenceNode:
		out := make(stringList, 0, len(node.Content))
		for _, c := range node.Content {
			if c.Kind != yaml.ScalarNode {
				return fmt.Errorf("line %d: expected a string", c.Line)
			}
			out = append(out, c.Value)
		}
		*l = out
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

// scalarMap decodes a mapping of scalars, keeping numbers and booleans as
// their literal text.
type scalarMap map[string]string

func (m *scalarMap) UnmarshalYAML(node *yaml.Node) error {
	values, err := decodeScalarMap(node)
	if err != nil {
		return err
	}
	*m = values
	return nil
}

func decodeScalarMap(node *yaml.Node) (map[string]string, error) {
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("line %d: expected a mapping", node.Line)
	}
	out := make(map[string]string, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		if v.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("line %d: value of %q must be a scalar", v.Line, k.Value)
		}
		out[k.Value] = v.Value
	}
	return out, nil
}

// concurrencyDocument accepts either a group string or
// {group, cancel-in-progress}.
type concurrencyDocument struct {
	Group            string `yaml:"group"`
	CancelInProgress bool   `yaml:"cancel-in-progress"`
}

func (c *concurrencyDocument) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		c.Group = node.Value
		return nil
	}
	type plain concurrencyDocument
	return node.Decode((*plain)(c))
}

func (c *concurrencyDocument) spec() *domain.ConcurrencySpec {
	if c == nil {
		return nil
	}
	return &domain.ConcurrencySpec{Group: c.Group, CancelInProgress: c.CancelInProgress}
}

// matrixDocument keeps axes in declaration order, which a plain map would
// lose.
type matrixDocument struct {
	domain.Matrix
}

func (m *matrixDocument) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: matrix must be a mapping", node.Line)
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		k, v := node.Content[i], node.Content[i+1]
		switch k.Value {
		case "include", "exclude":
			entries, err := decodeEntries(v)
			if err != nil {
				return fmt.Errorf("matrix %s: %w", k.Value, err)
			}
			if k.Value == "include" {
				m.Include = entries
			} else {
				m.Exclude = entries
			}
		default:
			if v.Kind != yaml.SequenceNode {
				return fmt.Errorf("line %d: matrix axis %q must be a list", v.Line, k.Value)
			}
			axis := domain.Axis{Name: k.Value, Values: make([]string, 0, len(v.Content))}
			for _, c := range v.Content {
				if c.Kind != yaml.ScalarNode {
					return fmt.Errorf("line %d: matrix axis %q values must be scalars", c.Line, k.Value)
				}
				axis.Values = append(axis.Values, c.Value)
			}
			m.Axes = append(m.Axes, axis)
		}
	}
	return nil
}

func decodeEntries(node *yaml.Node) ([]domain.MatrixValues, error) {
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("line %d: expected a list", node.Line)
	}
	out := make([]domain.MatrixValues, 0, len(node.Content))
	for _, c := range node.Content {
		values, err := decodeScalarMap(c)
		if err != nil {
			return nil, err
		}
		out = append(out, values)
	}
	return out, nil
}
