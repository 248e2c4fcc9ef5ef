// pkg/catalog/catalog.go
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed fields.yaml
var defaultCatalog []byte

// Default returns the built-in loan application field catalog.
func Default() *Catalog {
	c, err := Parse(defaultCatalog)
	if err != nil {
		panic(fmt.Sprintf("catalog: embedded fields.yaml is invalid: %v", err))
	}
	return c
}

// Load reads a catalog from path, or returns the built-in one when path
// is empty.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML catalog and checks that field names are unique and
// select fields carry options.
func Parse(data []byte) (*Catalog, error) {
	var c Catalog
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if len(c.Sections) == 0 {
		return nil, fmt.Errorf("catalog has no sections")
	}

	c.index = make(map[string]*Field)
	for si := range c.Sections {
		for fi := range c.Sections[si].Fields {
			f := &c.Sections[si].Fields[fi]
			if f.Name == "" {
				return nil, fmt.Errorf("section %q: field %d has no name", c.Sections[si].ID, fi)
			}
			if _, dup := c.index[f.Name]; dup {
				return nil, fmt.Errorf("duplicate field %q", f.Name)
			}
			switch f.Type {
			case TypeText, TypeNumber:
			case TypeSelect:
				if len(f.Options) == 0 {
					return nil, fmt.Errorf("select field %q has no options", f.Name)
				}
			default:
				return nil, fmt.Errorf("field %q has unknown type %q", f.Name, f.Type)
			}
			c.index[f.Name] = f
			c.order = append(c.order, f.Name)
		}
	}
	return &c, nil
}
