// Package taxonomy owns the service taxonomy and the keyword classifier that
// maps a lead onto it.
package taxonomy

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"marine_leads_backend/platform/refdata"

	"gopkg.in/yaml.v3"
)

//go:embed default_taxonomy.yaml
var defaultTaxonomy []byte

// Subcategory is a finer-grained service inside a category.
type Subcategory struct {
	Key      string   `yaml:"key" json:"key"`
	Keywords []string `yaml:"keywords" json:"keywords"`
}

// Category is one entry of the taxonomy. Declaration order is significant
// for tie-breaking.
type Category struct {
	Key           string        `yaml:"key" json:"key"`
	DisplayName   string        `yaml:"display_name" json:"displayName"`
	Keywords      []string      `yaml:"keywords" json:"keywords"`
	Subcategories []Subcategory `yaml:"subcategories" json:"subcategories"`
}

// Taxonomy is an immutable snapshot of the service taxonomy.
type Taxonomy struct {
	Version         string     `yaml:"version" json:"version"`
	DefaultCategory string     `yaml:"default_category" json:"defaultCategory"`
	Categories      []Category `yaml:"categories" json:"categories"`
}

// Registry serves the active taxonomy snapshot.
type Registry = refdata.Store[Taxonomy]

// NewRegistry loads the taxonomy from path, or the embedded default when path is empty.
func NewRegistry(path string) (*Registry, error) {
	return refdata.NewStore("taxonomy", path, defaultTaxonomy, Parse)
}

// Parse decodes a YAML taxonomy and normalizes keywords to lower case.
func Parse(data []byte) (*Taxonomy, error) {
	var t Taxonomy
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse taxonomy: %w", err)
	}
	if err := t.normalize(); err != nil {
		return nil, err
	}
	return &t, nil
}

func (t *Taxonomy) normalize() error {
	t.DefaultCategory = strings.TrimSpace(t.DefaultCategory)
	if t.DefaultCategory == "" {
		return errors.New("taxonomy: default_category is required")
	}
	if len(t.Categories) == 0 {
		return errors.New("taxonomy: at least one category is required")
	}

	seen := make(map[string]struct{})
	for i := range t.Categories {
		c := &t.Categories[i]
		c.Key = strings.TrimSpace(c.Key)
		if c.Key == "" {
			return fmt.Errorf("taxonomy: category %d has no key", i)
		}
		if _, dup := seen[c.Key]; dup {
			return fmt.Errorf("taxonomy: duplicate key %q", c.Key)
		}
		seen[c.Key] = struct{}{}
		c.Keywords = lowerAll(c.Keywords)
		for j := range c.Subcategories {
			s := &c.Subcategories[j]
			s.Key = strings.TrimSpace(s.Key)
			if _, dup := seen[s.Key]; dup || s.Key == "" {
				return fmt.Errorf("taxonomy: invalid or duplicate subcategory key %q", s.Key)
			}
			seen[s.Key] = struct{}{}
			s.Keywords = lowerAll(s.Keywords)
		}
	}
	return nil
}

// Category returns the category with the given key.
func (t *Taxonomy) Category(key string) (Category, bool) {
	for _, c := range t.Categories {
		if c.Key == key {
			return c, true
		}
	}
	return Category{}, false
}

// Keys lists category keys in declaration order.
func (t *Taxonomy) Keys() []string {
	keys := make([]string, 0, len(t.Categories))
	for _, c := range t.Categories {
		keys = append(keys, c.Key)
	}
	return keys
}

func lowerAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.ToLower(strings.TrimSpace(v))
		if v != "" {
			out = append(out, v)
		}
	}
	return out
}
