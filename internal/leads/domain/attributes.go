package domain

// Canonical attribute names.
const (
	AttrFirstName       = "first_name"
	AttrLastName        = "last_name"
	AttrEmail           = "email"
	AttrPhone           = "phone"
	AttrZipCode         = "zip_code"
	AttrServiceCategory = "service_category"
	AttrSpecificService = "specific_service"
	AttrVesselMake      = "vessel_make"
	AttrVesselModel     = "vessel_model"
	AttrVesselLength    = "vessel_length"
	AttrVesselYear      = "vessel_year"
	AttrVesselType      = "vessel_type"
	AttrUrgency         = "urgency"
	AttrPreferredDate   = "preferred_date"
	AttrNotes           = "notes"
)

// Attributes is the normalized view of a submission. Labels the normalizer
// does not recognise are kept in Extra.
type Attributes struct {
	FirstName       string `json:"first_name,omitempty"`
	LastName        string `json:"last_name,omitempty"`
	Email           string `json:"email,omitempty"`
	Phone           string `json:"phone,omitempty"`
	ZipCode         string `json:"zip_code,omitempty"`
	ServiceCategory string `json:"service_category,omitempty"`
	SpecificService string `json:"specific_service,omitempty"`
	VesselMake      string `json:"vessel_make,omitempty"`
	VesselModel     string `json:"vessel_model,omitempty"`
	VesselLength    string `json:"vessel_length,omitempty"`
	VesselYear      string `json:"vessel_year,omitempty"`
	VesselType      string `json:"vessel_type,omitempty"`
	Urgency         string `json:"urgency,omitempty"`
	PreferredDate   string `json:"preferred_date,omitempty"`
	Notes           string `json:"notes,omitempty"`

	Extra map[string]string `json:"extra_fields,omitempty"`
}

// Ref returns a pointer to the field backing a canonical attribute, or nil.
func (a *Attributes) Ref(attribute string) *string {
	switch attribute {
	case AttrFirstName:
		return &a.FirstName
	case AttrLastName:
		return &a.LastName
	case AttrEmail:
		return &a.Email
	case AttrPhone:
		return &a.Phone
	case AttrZipCode:
		return &a.ZipCode
	case AttrServiceCategory:
		return &a.ServiceCategory
	case AttrSpecificService:
		return &a.SpecificService
	case AttrVesselMake:
		return &a.VesselMake
	case AttrVesselModel:
		return &a.VesselModel
	case AttrVesselLength:
		return &a.VesselLength
	case AttrVesselYear:
		return &a.VesselYear
	case AttrVesselType:
		return &a.VesselType
	case AttrUrgency:
		return &a.Urgency
	case AttrPreferredDate:
		return &a.PreferredDate
	case AttrNotes:
		return &a.Notes
	default:
		return nil
	}
}

// Flatten returns the non-empty canonical attributes keyed by name. Extra
// fields are not included.
func (a Attributes) Flatten() map[string]string {
	out := make(map[string]string, 16)
	for name, v := range map[string]string{
		AttrFirstName:       a.FirstName,
		AttrLastName:        a.LastName,
		AttrEmail:           a.Email,
		AttrPhone:           a.Phone,
		AttrZipCode:         a.ZipCode,
		AttrServiceCategory: a.ServiceCategory,
		AttrSpecificService: a.SpecificService,
		AttrVesselMake:      a.VesselMake,
		AttrVesselModel:     a.VesselModel,
		AttrVesselLength:    a.VesselLength,
		AttrVesselYear:      a.VesselYear,
		AttrVesselType:      a.VesselType,
		AttrUrgency:         a.Urgency,
		AttrPreferredDate:   a.PreferredDate,
		AttrNotes:           a.Notes,
	} {
		if v != "" {
			out[name] = v
		}
	}
	return out
}

// FullName joins first and last name.
func (a Attributes) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	default:
		return a.FirstName + " " + a.LastName
	}
}

// ServiceText is the free text the classifier searches.
func (a Attributes) ServiceText() []string {
	text := make([]string, 0, 3)
	for _, v := range []string{a.SpecificService, a.Notes} {
		if v != "" {
			text = append(text, v)
		}
	}
	return text
}
