package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"strings"

	"marine_leads_backend/internal/fieldmap"
)

const (
	customFieldsKey = "customFields"
	sourceRules     = "rules"
)

// RulesAdvisor recognises common CRM validation failures: custom field
// array shape, declared-type mismatches, unknown fields and contact data
// the CRM refuses outright.
type RulesAdvisor struct{}

// NewRulesAdvisor creates a rules advisor.
func NewRulesAdvisor() *RulesAdvisor {
	return &RulesAdvisor{}
}

type ruleResult struct {
	suspects   []string
	causes     []string
	confidence float64
	changed    bool
}

func (r *ruleResult) apply(suspect, cause string, confidence float64) {
	r.suspects = append(r.suspects, suspect)
	r.causes = append(r.causes, cause)
	if !r.changed || confidence < r.confidence {
		r.confidence = confidence
	}
	r.changed = true
}

// Diagnose implements Advisor.
func (a *RulesAdvisor) Diagnose(_ context.Context, p Problem) (Diagnosis, error) {
	text := errorText(p.ErrorBody)
	if text == "" {
		return Diagnosis{RootCause: fmt.Sprintf("CRM returned %d without a message", p.StatusCode), Source: sourceRules}, nil
	}

	if field, ok := rejectedContactField(text); ok {
		return Diagnosis{
			SuspectFields: []string{field},
			RootCause:     fmt.Sprintf("CRM rejected the %s value; it cannot be corrected without new customer data", field),
			Confidence:    0.95,
			Source:        sourceRules,
		}, nil
	}

	payload := clone(p.Payload)
	var res ruleResult
	reshapeCustomFields(payload, text, &res)
	recoerce(payload, text, p.Fields, &res)
	dropUnknown(payload, text, p.Fields, &res)

	if !res.changed {
		return Diagnosis{
			RootCause: "unrecognised CRM validation error: " + truncate(text, 300),
			Source:    sourceRules,
		}, nil
	}
	return Diagnosis{
		SuspectFields: res.suspects,
		RootCause:     strings.Join(res.causes, "; "),
		Corrected:     payload,
		Confidence:    res.confidence,
		Source:        sourceRules,
	}, nil
}

// reshapeCustomFields converts between the object and array encodings of
// custom fields and renames the value key of array items.
func reshapeCustomFields(payload map[string]any, text string, res *ruleResult) {
	if !strings.Contains(text, "customfield") {
		return
	}
	current, ok := payload[customFieldsKey]
	if !ok {
		return
	}

	wantsArray := strings.Contains(text, "array")
	switch cf := current.(type) {
	case map[string]any:
		if !wantsArray {
			return
		}
		items := make([]any, 0, len(cf))
		for _, id := range slices.Sorted(maps.Keys(cf)) {
			items = append(items, map[string]any{"id": id, "value": cf[id]})
		}
		payload[customFieldsKey] = items
		res.apply(customFieldsKey, "customFields must be an array of {id, value} objects", 0.9)

	case []any:
		if !wantsArray && strings.Contains(text, "object") {
			obj := make(map[string]any, len(cf))
			for _, item := range cf {
				m, ok := item.(map[string]any)
				if !ok {
					return
				}
				id, _ := m["id"].(string)
				if id == "" {
					return
				}
				obj[id] = itemValue(m)
			}
			payload[customFieldsKey] = obj
			res.apply(customFieldsKey, "customFields must be an object keyed by field id", 0.8)
			return
		}

		from, to := "", ""
		switch {
		case strings.Contains(text, "field_value"):
			from, to = "value", "field_value"
		case strings.Contains(text, "value"):
			from, to = "field_value", "value"
		default:
			return
		}
		renamed := false
		for _, item := range cf {
			m, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if v, has := m[from]; has {
				if _, clash := m[to]; !clash {
					m[to] = v
					delete(m, from)
					renamed = true
				}
			}
		}
		if renamed {
			res.apply(customFieldsKey, fmt.Sprintf("customFields items must carry %q instead of %q", to, from), 0.85)
		}
	}
}

// recoerce re-applies the declared type to fields the error names.
func recoerce(payload map[string]any, text string, fields []fieldmap.Mapping, res *ruleResult) {
	if !mentionsType(text) {
		return
	}
	for _, m := range fields {
		if m.Type == fieldmap.TypeText || !strings.Contains(text, strings.ToLower(m.FieldID)) {
			continue
		}
		ref := locate(payload, m.FieldID)
		if ref == nil {
			continue
		}
		raw, ok := (*ref.value).(string)
		if !ok {
			continue
		}
		coerced, err := fieldmap.Coerce(m, raw)
		if err != nil {
			continue
		}
		ref.set(coerced)
		res.apply(m.FieldID, fmt.Sprintf("%s must be %s", m.FieldID, m.Type), 0.8)
	}
}

// dropUnknown removes fields the CRM says it does not know.
func dropUnknown(payload map[string]any, text string, fields []fieldmap.Mapping, res *ruleResult) {
	if !strings.Contains(text, "unknown") && !strings.Contains(text, "not exist") &&
		!strings.Contains(text, "not allowed") && !strings.Contains(text, "should not exist") {
		return
	}

	candidates := make([]string, 0, len(payload)+len(fields))
	for k := range payload {
		if k != customFieldsKey && k != "locationId" {
			candidates = append(candidates, k)
		}
	}
	for _, m := range fields {
		if m.Scope == fieldmap.ScopeCustom {
			candidates = append(candidates, m.FieldID)
		}
	}
	slices.Sort(candidates)
	candidates = slices.Compact(candidates)

	for _, id := range candidates {
		if !strings.Contains(text, strings.ToLower(id)) {
			continue
		}
		if removeField(payload, id) {
			res.apply(id, fmt.Sprintf("%s is not a field the CRM accepts", id), 0.75)
		}
	}
}

func rejectedContactField(text string) (string, bool) {
	if !strings.Contains(text, "invalid") {
		return "", false
	}
	for _, field := range []string{"email", "phone"} {
		if strings.Contains(text, field) && !strings.Contains(text, "customfield") {
			return field, true
		}
	}
	return "", false
}

func mentionsType(text string) bool {
	for _, w := range []string{"number", "numeric", "integer", "boolean", "date", "type"} {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

type valueRef struct {
	value *any
	set   func(any)
}

// locate finds a field either as a top-level key or as a custom field item.
func locate(payload map[string]any, fieldID string) *valueRef {
	if v, ok := payload[fieldID]; ok {
		return &valueRef{value: &v, set: func(nv any) { payload[fieldID] = nv }}
	}
	switch cf := payload[customFieldsKey].(type) {
	case map[string]any:
		if v, ok := cf[fieldID]; ok {
			return &valueRef{value: &v, set: func(nv any) { cf[fieldID] = nv }}
		}
	case []any:
		for _, item := range cf {
			m, ok := item.(map[string]any)
			if !ok || m["id"] != fieldID {
				continue
			}
			key := "value"
			if _, ok := m["field_value"]; ok {
				key = "field_value"
			}
			v := m[key]
			return &valueRef{value: &v, set: func(nv any) { m[key] = nv }}
		}
	}
	return nil
}

func removeField(payload map[string]any, fieldID string) bool {
	if _, ok := payload[fieldID]; ok {
		delete(payload, fieldID)
		return true
	}
	switch cf := payload[customFieldsKey].(type) {
	case map[string]any:
		if _, ok := cf[fieldID]; ok {
			delete(cf, fieldID)
			return true
		}
	case []any:
		kept := cf[:0:0]
		for _, item := range cf {
			if m, ok := item.(map[string]any); ok && m["id"] == fieldID {
				continue
			}
			kept = append(kept, item)
		}
		if len(kept) != len(cf) {
			payload[customFieldsKey] = kept
			return true
		}
	}
	return false
}

func itemValue(m map[string]any) any {
	if v, ok := m["value"]; ok {
		return v
	}
	return m["field_value"]
}

// errorText flattens a CRM error body into lowercase text. JSON bodies
// contribute their string values and keys; anything else is used verbatim.
func errorText(body string) string {
	body = strings.TrimSpace(body)
	if body == "" {
		return ""
	}
	var decoded any
	if err := json.Unmarshal([]byte(body), &decoded); err != nil {
		return strings.ToLower(body)
	}
	var parts []string
	walk(decoded, func(s string) { parts = append(parts, s) }, func(k string) { parts = append(parts, strings.ToLower(k)) })
	if len(parts) == 0 {
		return strings.ToLower(body)
	}
	return strings.Join(parts, " ")
}

// clone deep-copies a JSON-shaped document.
func clone(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return clone(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	default:
		return t
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
