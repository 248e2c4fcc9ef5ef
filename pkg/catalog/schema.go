// pkg/catalog/schema.go
package catalog

import "loan-decision/internal/common/validation"

const (
	TypeText   = "text"
	TypeNumber = "number"
	TypeSelect = "select"
)

type Catalog struct {
	Version  string    `yaml:"version" json:"version"`
	Sections []Section `yaml:"sections" json:"sections"`

	index map[string]*Field
	order []string
}

type Section struct {
	ID     string  `yaml:"id" json:"id"`
	Title  string  `yaml:"title" json:"title"`
	Fields []Field `yaml:"fields" json:"fields"`
}

type Field struct {
	Name        string   `yaml:"name" json:"name"`
	Label       string   `yaml:"label" json:"label"`
	Type        string   `yaml:"type" json:"type"`
	Placeholder string   `yaml:"placeholder,omitempty" json:"placeholder,omitempty"`
	Options     []string `yaml:"options,omitempty" json:"options,omitempty"`
	Optional    bool     `yaml:"optional,omitempty" json:"optional,omitempty"`
}

// Names returns every field name in display order.
func (c *Catalog) Names() []string {
	return append([]string(nil), c.order...)
}

// Field looks up a field by name.
func (c *Catalog) Field(name string) (Field, bool) {
	f, ok := c.index[name]
	if !ok {
		return Field{}, false
	}
	return *f, true
}

// Has reports whether name is a catalog field.
func (c *Catalog) Has(name string) bool {
	_, ok := c.index[name]
	return ok
}

// Required returns the names of fields that must be filled in.
func (c *Catalog) Required() []string {
	var names []string
	for _, name := range c.order {
		if !c.index[name].Optional {
			names = append(names, name)
		}
	}
	return names
}

// Schema describes the catalog as a validation schema in which every
// non-optional field is required and non-empty. Option lists and numeric
// types are display hints only and are not enforced.
func (c *Catalog) Schema() validation.JSONSchema {
	props := make(map[string]validation.Property, len(c.order))
	for _, name := range c.order {
		props[name] = validation.Property{Description: c.index[name].Label}
	}
	return validation.JSONSchema{
		Type:                 "object",
		Properties:           props,
		Required:             c.Required(),
		AdditionalProperties: true,
	}
}
