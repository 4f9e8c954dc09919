package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSingular(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"businesses", "business"},
		{"articles", "article"},
		{"categories", "category"},
		{"boxes", "box"},
		{"matches", "match"},
		{"address", "address"},
		{"data", "data"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Singular(tt.in))
		})
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()
	assert.Equal(t, []string{CollectionBusinesses, CollectionArticles}, r.Names())

	c, err := r.Get(CollectionBusinesses)
	require.NoError(t, err)
	assert.Equal(t, "business", c.Type)

	_, err = r.Get("widgets")
	assert.True(t, errors.Is(err, ErrUnknownCollection))
}

func TestNewRegistry_Rejects(t *testing.T) {
	schema := func() any { return &Business{} }
	tests := []struct {
		name string
		cols []Collection
	}{
		{"empty name", []Collection{{Schema: schema}}},
		{"reserved prefix", []Collection{{Name: "_users", Schema: schema}}},
		{"duplicate", []Collection{{Name: "a", Schema: schema}, {Name: "a", Schema: schema}}},
		{"missing schema", []Collection{{Name: "a"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.cols...)
			assert.Error(t, err)
		})
	}
}

func TestDocumentClone(t *testing.T) {
	d := &Document{ID: "1", Fields: map[string]any{"name": "Acme"}}
	c := d.Clone()
	c.Fields["name"] = "Other"
	assert.Equal(t, "Acme", d.StringField("name"))
	assert.Equal(t, "Other", c.StringField("name"))
}
