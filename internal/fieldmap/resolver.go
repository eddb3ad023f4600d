package fieldmap

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Field is one resolved target-system value.
type Field struct {
	Attribute string    `json:"attribute"`
	FieldID   string    `json:"fieldId"`
	Scope     Scope     `json:"scope"`
	Type      FieldType `json:"type"`
	Value     any       `json:"value"`
}

// CoercionError reports an attribute whose value did not fit its declared type.
type CoercionError struct {
	Attribute string    `json:"attribute"`
	FieldID   string    `json:"fieldId"`
	Type      FieldType `json:"type"`
	Value     string    `json:"value"`
	Reason    string    `json:"reason"`
}

func (e CoercionError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Attribute, e.Type, e.Reason)
}

// Payload is the resolved target payload plus any coercion errors. Fields
// keep the table's declaration order.
type Payload struct {
	Version string          `json:"version"`
	Fields  []Field         `json:"fields"`
	Errors  []CoercionError `json:"errors"`
}

// Source returns the mapping table snapshot to resolve against.
type Source interface {
	Current() *Table
}

// Resolver assembles target payloads from canonical attributes.
type Resolver struct {
	source Source
}

// NewResolver creates a resolver over the given table source.
func NewResolver(source Source) *Resolver {
	return &Resolver{source: source}
}

// Resolve maps attrs onto target fields. Attributes without a mapping and
// empty values are omitted. Values that fail coercion are reported and left
// out of Fields; the rest of the payload is still returned.
func (r *Resolver) Resolve(attrs map[string]string) Payload {
	t := r.source.Current()
	out := Payload{Version: t.Version, Fields: []Field{}, Errors: []CoercionError{}}

	for _, m := range t.Mappings {
		raw, ok := attrs[m.Attribute]
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			continue
		}
		value, err := Coerce(m, raw)
		if err != nil {
			out.Errors = append(out.Errors, CoercionError{
				Attribute: m.Attribute,
				FieldID:   m.FieldID,
				Type:      m.Type,
				Value:     raw,
				Reason:    err.Error(),
			})
			continue
		}
		out.Fields = append(out.Fields, Field{
			Attribute: m.Attribute,
			FieldID:   m.FieldID,
			Scope:     m.Scope,
			Type:      m.Type,
			Value:     value,
		})
	}
	return out
}

var (
	numericPattern = regexp.MustCompile(`^(-?\d+(?:\.\d+)?)\s*(?:ft|feet|foot|'|m|in)?\.?$`)
	dateLayouts    = []string{
		"2006-01-02",
		time.RFC3339,
		"01/02/2006",
		"1/2/2006",
		"01-02-2006",
		"January 2, 2006",
		"Jan 2, 2006",
	}
)

// Coerce converts raw to the declared type of m.
func Coerce(m Mapping, raw string) (any, error) {
	switch m.Type {
	case TypeText:
		return raw, nil
	case TypeNumeric:
		return coerceNumeric(raw)
	case TypeDate:
		return coerceDate(raw)
	case TypeBoolean:
		return coerceBool(raw)
	case TypeEnumerated:
		return coerceEnum(raw, m.Options)
	default:
		return nil, fmt.Errorf("unsupported type %q", m.Type)
	}
}

func coerceNumeric(raw string) (any, error) {
	cleaned := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""))
	match := numericPattern.FindStringSubmatch(cleaned)
	if match == nil {
		return nil, fmt.Errorf("%q is not a number", raw)
	}
	f, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return nil, fmt.Errorf("%q is not a number", raw)
	}
	return f, nil
}

func coerceDate(raw string) (any, error) {
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.Format("2006-01-02"), nil
		}
	}
	return nil, fmt.Errorf("%q is not a recognized date", raw)
}

func coerceBool(raw string) (any, error) {
	switch strings.ToLower(raw) {
	case "true", "yes", "y", "1", "on":
		return true, nil
	case "false", "no", "n", "0", "off":
		return false, nil
	}
	return nil, fmt.Errorf("%q is not a boolean", raw)
}

func coerceEnum(raw string, options []string) (any, error) {
	norm := normalizeOption(raw)
	for _, opt := range options {
		if normalizeOption(opt) == norm {
			return opt, nil
		}
	}
	return nil, fmt.Errorf("%q is not one of %s", raw, strings.Join(options, ", "))
}

func normalizeOption(s string) string {
	return strings.NewReplacer(" ", "_", "-", "_").Replace(strings.ToLower(strings.TrimSpace(s)))
}
