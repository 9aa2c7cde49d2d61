package config

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PortSpec is the ports section. A list of names selects registry
// allocation; a name: offset mapping selects arithmetic derivation.
type PortSpec struct {
	// Names in declaration order, for both forms.
	Names []string
	// Offsets is nil for the list form.
	Offsets map[string]int
}

// IsOffsets reports whether ports were given as a mapping.
func (p PortSpec) IsOffsets() bool {
	return p.Offsets != nil
}

// UnmarshalYAML accepts either a sequence of names or a mapping of offsets.
func (p *PortSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var names []string
		if err := node.Decode(&names); err != nil {
			return fmt.Errorf("ports: %w", err)
		}
		p.Names = names
		p.Offsets = nil
	case yaml.MappingNode:
		p.Names = nil
		p.Offsets = make(map[string]int, len(node.Content)/2)
		for i := 0; i+1 < len(node.Content); i += 2 {
			key, value := node.Content[i], node.Content[i+1]
			var offset int
			if err := value.Decode(&offset); err != nil {
				return fmt.Errorf("ports.%s: offset must be an integer", key.Value)
			}
			if _, dup := p.Offsets[key.Value]; dup {
				return fmt.Errorf("ports.%s: listed twice", key.Value)
			}
			p.Names = append(p.Names, key.Value)
			p.Offsets[key.Value] = offset
		}
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			return nil
		}
		return fmt.Errorf("ports: expected a list or a mapping")
	default:
		return fmt.Errorf("ports: expected a list or a mapping")
	}
	return nil
}
