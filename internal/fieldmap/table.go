// Package fieldmap maps canonical lead attributes onto CRM field identifiers
// using a versioned mapping table.
package fieldmap

import (
	_ "embed"
	"errors"
	"fmt"
	"strings"

	"marine_leads_backend/platform/refdata"

	"gopkg.in/yaml.v3"
)

//go:embed default_mappings.yaml
var defaultMappings []byte

// FieldType is the declared data type of a target field.
type FieldType string

const (
	TypeText       FieldType = "text"
	TypeNumeric    FieldType = "numeric"
	TypeDate       FieldType = "date"
	TypeBoolean    FieldType = "boolean"
	TypeEnumerated FieldType = "enumerated"
)

// Scope says where the CRM expects a field.
type Scope string

const (
	// ScopeContact fields are standard contact properties keyed by name.
	ScopeContact Scope = "contact"
	// ScopeCustom fields are tenant-defined custom fields keyed by id.
	ScopeCustom Scope = "custom"
)

// Mapping binds one canonical attribute to one target field.
type Mapping struct {
	Attribute string    `yaml:"attribute" json:"attribute"`
	FieldID   string    `yaml:"field_id" json:"fieldId"`
	Scope     Scope     `yaml:"scope" json:"scope"`
	Type      FieldType `yaml:"type" json:"type"`
	Options   []string  `yaml:"options,omitempty" json:"options,omitempty"`
}

// Table is an immutable snapshot of the mapping table.
type Table struct {
	Version  string    `yaml:"version" json:"version"`
	Mappings []Mapping `yaml:"mappings" json:"mappings"`
}

// Registry serves the active mapping table.
type Registry = refdata.Store[Table]

// NewRegistry loads the table from path, or the embedded default when path is empty.
func NewRegistry(path string) (*Registry, error) {
	return refdata.NewStore("field mappings", path, defaultMappings, Parse)
}

// Parse decodes and validates a YAML mapping table.
func Parse(data []byte) (*Table, error) {
	var t Table
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("parse field mappings: %w", err)
	}
	if len(t.Mappings) == 0 {
		return nil, errors.New("field mappings: table is empty")
	}

	seen := make(map[string]struct{}, len(t.Mappings))
	for i := range t.Mappings {
		m := &t.Mappings[i]
		m.Attribute = strings.TrimSpace(m.Attribute)
		m.FieldID = strings.TrimSpace(m.FieldID)
		if m.Attribute == "" || m.FieldID == "" {
			return nil, fmt.Errorf("field mappings: entry %d needs attribute and field_id", i)
		}
		if _, dup := seen[m.Attribute]; dup {
			return nil, fmt.Errorf("field mappings: attribute %q mapped twice", m.Attribute)
		}
		seen[m.Attribute] = struct{}{}

		if m.Scope == "" {
			m.Scope = ScopeCustom
		}
		if m.Scope != ScopeContact && m.Scope != ScopeCustom {
			return nil, fmt.Errorf("field mappings: %s has unknown scope %q", m.Attribute, m.Scope)
		}
		switch m.Type {
		case TypeText, TypeNumeric, TypeDate, TypeBoolean:
		case TypeEnumerated:
			if len(m.Options) == 0 {
				return nil, fmt.Errorf("field mappings: enumerated %s has no options", m.Attribute)
			}
		default:
			return nil, fmt.Errorf("field mappings: %s has unknown type %q", m.Attribute, m.Type)
		}
	}
	return &t, nil
}

// Lookup returns the mapping for a canonical attribute.
func (t *Table) Lookup(attribute string) (Mapping, bool) {
	for _, m := range t.Mappings {
		if m.Attribute == attribute {
			return m, true
		}
	}
	return Mapping{}, false
}

// FieldType returns the declared type of a target field id.
func (t *Table) FieldType(fieldID string) (FieldType, bool) {
	for _, m := range t.Mappings {
		if m.FieldID == fieldID {
			return m.Type, true
		}
	}
	return "", false
}
