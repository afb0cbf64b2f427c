package codec

import (
	"fmt"
	"io"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/mnehpets/httprpc/value"
)

// YAML writes application/yaml. The yaml.v3 encoder works on a whole node
// tree, so the value is fully materialised before anything is written.
type YAML struct{}

func (YAML) ContentType() string { return "application/yaml" }

func (YAML) Encode(w io.Writer, v value.Value) error {
	node, err := yamlNode(v)
	if err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(node); err != nil {
		return err
	}
	return enc.Close()
}

func yamlNode(v value.Value) (*yaml.Node, error) {
	switch v.Kind() {
	case value.NullKind:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
	case value.BoolKind:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: v.String()}, nil
	case value.NumberKind:
		if v.IsInteger() {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: v.String()}, nil
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: yamlFloat(v.Float())}, nil
	case value.StringKind:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Text()}, nil
	case value.SequenceKind:
		n := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for ev, err := range v.Sequence().All() {
			if err != nil {
				return nil, err
			}
			c, err := yamlNode(ev)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, c)
		}
		return n, nil
	case value.MappingKind:
		n := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		m := v.Mapping()
		for _, k := range m.Keys() {
			ev, err := m.Get(k)
			if err != nil {
				return nil, err
			}
			c, err := yamlNode(ev)
			if err != nil {
				return nil, err
			}
			n.Content = append(n.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, c)
		}
		return n, nil
	}
	return nil, fmt.Errorf("codec: unknown value kind %v", v.Kind())
}

func yamlFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	}
	return value.FormatNumber(value.Float(f))
}
