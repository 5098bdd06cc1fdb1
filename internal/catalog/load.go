package catalog

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Section names understood by the loader.
const (
	sectionCreate   = "create"
	sectionDefaults = "defaults"
	sectionInsert   = "insert"
	sectionSelect   = "select"
)

// document is the raw shape of a catalog file. Sections are kept as nodes so
// that mapping order survives decoding.
type document struct {
	Create   yaml.Node `yaml:"create"`
	Defaults yaml.Node `yaml:"defaults"`
	Insert   yaml.Node `yaml:"insert"`
	Select   yaml.Node `yaml:"select"`
	Details  *Details  `yaml:"details"`
}

// Load reads and parses a catalog document from path.
//
// Parameters:
//   - path: YAML or JSON file
//
// Returns:
//   - *Catalog: Parsed catalog
//   - error: If the file cannot be read or has the wrong shape
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}

	cat, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parsing catalog file %s: %w", path, err)
	}
	return cat, nil
}

// Parse decodes a catalog document. JSON input is accepted as YAML.
func Parse(data []byte) (*Catalog, error) {
	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}

	bootstrap, err := statements(sectionCreate, &doc.Create)
	if err != nil {
		return nil, err
	}

	c := &Catalog{bootstrap: bootstrap}
	if doc.Details != nil {
		c.details = *doc.Details
	}

	for _, sec := range []struct {
		name string
		node *yaml.Node
	}{
		{sectionDefaults, &doc.Defaults},
		{sectionInsert, &doc.Insert},
		{sectionSelect, &doc.Select},
	} {
		if sec.node.Kind == 0 {
			continue
		}
		if c.defaults == nil {
			c.defaults = make(map[string]string)
			c.hasDefaults = true
		}
		if err := queries(sec.name, sec.node, c.defaults); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// statements flattens the create section. Both a sequence of statements and a
// mapping of name to statement are accepted; mapping order is document order.
func statements(section string, node *yaml.Node) ([]string, error) {
	switch node.Kind {
	case 0:
		return nil, nil
	case yaml.ScalarNode:
		if node.ShortTag() == "!!null" {
			return nil, nil
		}
		return nil, fmt.Errorf("%w: %s must be a list or mapping (line %d)", ErrInvalidDocument, section, node.Line)
	case yaml.SequenceNode:
		out := make([]string, 0, len(node.Content))
		for _, item := range node.Content {
			s, err := stringValue(section, item)
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	case yaml.MappingNode:
		out := make([]string, 0, len(node.Content)/2)
		for i := 1; i < len(node.Content); i += 2 {
			s, err := stringValue(section, node.Content[i])
			if err != nil {
				return nil, err
			}
			out = append(out, s)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: %s has unsupported layout (line %d)", ErrInvalidDocument, section, node.Line)
	}
}

// queries copies a name→template mapping into dst, rejecting duplicates.
func queries(section string, node *yaml.Node, dst map[string]string) error {
	if node.Kind == yaml.ScalarNode && node.ShortTag() == "!!null" {
		return nil
	}
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: %s must be a mapping of name to query (line %d)", ErrInvalidDocument, section, node.Line)
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		name := node.Content[i].Value
		text, err := stringValue(section+"."+name, node.Content[i+1])
		if err != nil {
			return err
		}
		if _, exists := dst[name]; exists {
			return fmt.Errorf("%w: %q (section %s, line %d)", ErrDuplicateQuery, name, section, node.Content[i].Line)
		}
		dst[name] = text
	}
	return nil
}

func stringValue(where string, node *yaml.Node) (string, error) {
	if node.Kind != yaml.ScalarNode || node.ShortTag() != "!!str" {
		return "", fmt.Errorf("%w: %s must be a string statement (line %d)", ErrInvalidDocument, where, node.Line)
	}
	return node.Value, nil
}
