package domain

import (
	"fmt"
	"strings"
)

const (
	CollectionBusinesses = "businesses"
	CollectionArticles   = "articles"
)

// Collection describes one named group of documents sharing a schema.
// Type is the discriminator written to remote documents.
type Collection struct {
	Name   string
	Type   string
	Schema func() any
}

// Registry maps collection names to their definitions. It is built once at
// startup and read-only afterwards.
type Registry struct {
	byName map[string]*Collection
	order  []string
}

func NewRegistry(collections ...Collection) (*Registry, error) {
	r := &Registry{byName: make(map[string]*Collection, len(collections))}
	for i := range collections {
		c := collections[i]
		if c.Name == "" {
			return nil, fmt.Errorf("collection %d: empty name", i)
		}
		if strings.HasPrefix(c.Name, "_") {
			return nil, fmt.Errorf("collection %q: names starting with '_' are reserved", c.Name)
		}
		if _, dup := r.byName[c.Name]; dup {
			return nil, fmt.Errorf("collection %q registered twice", c.Name)
		}
		if c.Type == "" {
			c.Type = Singular(c.Name)
		}
		if c.Schema == nil {
			return nil, fmt.Errorf("collection %q: missing schema", c.Name)
		}
		r.byName[c.Name] = &c
		r.order = append(r.order, c.Name)
	}
	return r, nil
}

// DefaultRegistry returns the businesses and articles collections.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(
		Collection{Name: CollectionBusinesses, Schema: func() any { return &Business{} }},
		Collection{Name: CollectionArticles, Schema: func() any { return &Article{} }},
	)
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Get(name string) (*Collection, error) {
	c, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCollection, name)
	}
	return c, nil
}

// Names returns collection names in registration order.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Singular derives a type discriminator from a plural collection name.
func Singular(name string) string {
	switch {
	case strings.HasSuffix(name, "ies") && len(name) > 3:
		return name[:len(name)-3] + "y"
	case strings.HasSuffix(name, "sses"),
		strings.HasSuffix(name, "xes"),
		strings.HasSuffix(name, "ches"),
		strings.HasSuffix(name, "shes"):
		return name[:len(name)-2]
	case strings.HasSuffix(name, "ss"):
		return name
	case strings.HasSuffix(name, "s") && len(name) > 1:
		return name[:len(name)-1]
	}
	return name
}
