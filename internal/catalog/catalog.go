package catalog

import (
	"path/filepath"
	"sort"
)

// Catalog is an immutable snapshot of bootstrap statements and named queries.
//
// A nil *Catalog is valid and behaves as an empty catalog with no sections.
type Catalog struct {
	bootstrap   []string
	defaults    map[string]string
	hasDefaults bool
	details     Details
}

// Details describes where the database file lives.
// It maps to the optional `details` section of a catalog document.
type Details struct {
	Name       string `yaml:"name"`
	Location   string `yaml:"location"`
	SameThread bool   `yaml:"same_thread"`
}

// Path joins Location and Name. It returns "" when Name is unset.
func (d Details) Path() string {
	if d.Name == "" {
		return ""
	}
	return filepath.Join(d.Location, d.Name)
}

// New builds a Catalog from bootstrap statements and named queries.
// Both arguments are copied. A nil defaults map means the catalog has no
// defaults section at all, which is different from an empty one.
func New(bootstrap []string, defaults map[string]string) *Catalog {
	c := &Catalog{
		bootstrap: append([]string(nil), bootstrap...),
	}
	if defaults != nil {
		c.hasDefaults = true
		c.defaults = make(map[string]string, len(defaults))
		for name, text := range defaults {
			c.defaults[name] = text
		}
	}
	return c
}

// Bootstrap returns a copy of the bootstrap statements in execution order.
func (c *Catalog) Bootstrap() []string {
	if c == nil {
		return nil
	}
	return append([]string(nil), c.bootstrap...)
}

// HasDefaults reports whether the catalog declared a defaults section.
func (c *Catalog) HasDefaults() bool {
	return c != nil && c.hasDefaults
}

// Lookup returns the template registered under name.
func (c *Catalog) Lookup(name string) (string, bool) {
	if c == nil {
		return "", false
	}
	text, ok := c.defaults[name]
	return text, ok
}

// Names returns the registered query names in sorted order.
func (c *Catalog) Names() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.defaults))
	for name := range c.defaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Details returns the database location declared by the document, if any.
func (c *Catalog) Details() Details {
	if c == nil {
		return Details{}
	}
	return c.details
}
