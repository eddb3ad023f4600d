// Package intake turns raw form submissions into normalized lead attributes.
package intake

import (
	"encoding/json"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/platform/phone"
	"marine_leads_backend/platform/sanitize"
	"marine_leads_backend/platform/validator"
)

// Required attribute groups reported in Result.Missing.
const (
	MissingZipCode      = "zip_code"
	MissingContactPoint = "email_or_phone"
)

const attrFullName = "full_name"

// labels maps normalized form labels onto canonical attributes. Matching is
// exact after lowercasing, trimming and collapsing whitespace.
var labels = buildLabels(map[string][]string{
	domain.AttrFirstName: {"first_name", "firstname", "first name", "given name", "given_name", "fname"},
	domain.AttrLastName:  {"last_name", "lastname", "last name", "surname", "family name", "family_name", "lname"},
	attrFullName:         {"name", "full name", "full_name", "fullname", "your name", "your_name", "contact name"},
	domain.AttrEmail:     {"email", "e-mail", "email address", "email_address", "emailaddress", "your email"},
	domain.AttrPhone:     {"phone", "phone number", "phone_number", "phonenumber", "telephone", "mobile", "cell", "cell phone", "your phone"},
	domain.AttrZipCode:   {"zip", "zipcode", "zip_code", "zip code", "postal code", "postal_code", "postalcode", "postcode", "boat location zip"},
	domain.AttrServiceCategory: {
		"service_category", "servicecategory", "service category", "category", "service type", "service_type", "servicetype",
	},
	domain.AttrSpecificService: {
		"specific_service", "specificservice", "specific service", "service", "service needed", "service_needed",
		"serviceneeded", "what service do you need?", "what service do you need", "service description",
	},
	domain.AttrVesselMake:   {"vessel_make", "vesselmake", "vessel make", "boat make", "boat_make", "boatmake", "make"},
	domain.AttrVesselModel:  {"vessel_model", "vesselmodel", "vessel model", "boat model", "boat_model", "boatmodel", "model"},
	domain.AttrVesselLength: {"vessel_length", "vessellength", "vessel length", "boat length", "boat_length", "boatlength", "length", "length (ft)"},
	domain.AttrVesselYear:   {"vessel_year", "vesselyear", "vessel year", "boat year", "boat_year", "boatyear", "year"},
	domain.AttrVesselType:   {"vessel_type", "vesseltype", "vessel type", "boat type", "boat_type", "boattype"},
	domain.AttrUrgency:      {"urgency", "timeline", "timeframe", "how soon do you need service?", "how soon do you need service"},
	domain.AttrPreferredDate: {
		"preferred_date", "preferreddate", "preferred date", "preferred service date", "date",
	},
	domain.AttrNotes: {"notes", "note", "message", "comments", "comment", "additional details", "description"},
})

var freeText = []string{domain.AttrSpecificService, domain.AttrNotes}

var zipPattern = regexp.MustCompile(`^(\d{5})(?:[-\s]?\d{4})?$`)

// Result is the normalized attribute set plus what it lacks.
type Result struct {
	Attributes domain.Attributes
	// Missing lists required attribute groups that are empty after normalization.
	Missing []string
	// Invalid lists attributes whose submitted value failed validation. Bad
	// emails and zips are dropped; a bad phone is kept as typed.
	Invalid []string
}

// Complete reports whether every required attribute is present.
func (r Result) Complete() bool {
	return len(r.Missing) == 0
}

// Normalizer maps heterogeneous submissions onto canonical attributes.
type Normalizer struct {
	val *validator.Validator
}

// NewNormalizer creates a normalizer.
func NewNormalizer(val *validator.Validator) *Normalizer {
	return &Normalizer{val: val}
}

// Normalize builds the attribute set for raw. It performs no I/O and is
// deterministic: when several labels map to one attribute, the first
// non-empty value in label order wins.
func (n *Normalizer) Normalize(raw map[string]any) Result {
	var res Result
	attrs := &res.Attributes

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var fullName string
	for _, key := range keys {
		value := render(raw[key])
		if value == "" {
			continue
		}

		attribute, ok := labels[normalizeLabel(key)]
		if !ok {
			if attrs.Extra == nil {
				attrs.Extra = make(map[string]string)
			}
			attrs.Extra[strings.TrimSpace(key)] = value
			continue
		}

		if attribute == attrFullName {
			if fullName == "" {
				fullName = value
			}
			continue
		}
		if ref := attrs.Ref(attribute); ref != nil && *ref == "" {
			*ref = value
		}
	}

	if fullName != "" {
		first, last := splitName(fullName)
		if attrs.FirstName == "" {
			attrs.FirstName = first
		}
		if attrs.LastName == "" {
			attrs.LastName = last
		}
	}

	for _, attribute := range freeText {
		if ref := attrs.Ref(attribute); *ref != "" {
			*ref = sanitize.Text(*ref)
		}
	}

	if attrs.Email != "" {
		attrs.Email = strings.ToLower(attrs.Email)
		if !n.val.IsEmail(attrs.Email) {
			attrs.Email = ""
			res.Invalid = append(res.Invalid, domain.AttrEmail)
		}
	}
	if attrs.Phone != "" {
		var ok bool
		if attrs.Phone, ok = phone.Normalize(attrs.Phone, phone.DefaultRegion); !ok {
			res.Invalid = append(res.Invalid, domain.AttrPhone)
		}
	}
	if attrs.ZipCode != "" {
		zip, ok := normalizeZip(attrs.ZipCode)
		if !ok {
			res.Invalid = append(res.Invalid, domain.AttrZipCode)
		}
		attrs.ZipCode = zip
	}

	if attrs.ZipCode == "" {
		res.Missing = append(res.Missing, MissingZipCode)
	}
	if attrs.Email == "" && attrs.Phone == "" {
		res.Missing = append(res.Missing, MissingContactPoint)
	}
	return res
}

func buildLabels(table map[string][]string) map[string]string {
	out := make(map[string]string)
	for attribute, names := range table {
		for _, name := range names {
			out[normalizeLabel(name)] = attribute
		}
	}
	return out
}

func normalizeLabel(label string) string {
	return strings.Join(strings.Fields(strings.ToLower(label)), " ")
}

func render(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return marshal(v)
			}
			if s = strings.TrimSpace(s); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return marshal(v)
	}
}

func marshal(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(data)
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}

// normalizeZip reduces a US zip or zip+4 to its 5-digit form.
func normalizeZip(value string) (string, bool) {
	m := zipPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return "", false
	}
	return m[1], true
}
