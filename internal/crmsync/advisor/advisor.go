// Package advisor diagnoses CRM rejections and proposes corrected payloads.
// Advisors may reshape, re-type or drop values they were given; they never
// introduce customer data of their own.
package advisor

import (
	"context"

	"marine_leads_backend/internal/fieldmap"
)

// Problem is one rejected CRM call.
type Problem struct {
	Operation  string
	Endpoint   string
	StatusCode int
	ErrorBody  string
	Payload    map[string]any
	// Fields is the mapping reference for the fields in Payload.
	Fields []fieldmap.Mapping
}

// Diagnosis explains a rejection. Corrected is nil when the advisor has no
// safe correction to offer.
type Diagnosis struct {
	SuspectFields []string       `json:"suspectFields"`
	RootCause     string         `json:"rootCause"`
	Corrected     map[string]any `json:"correctedPayload,omitempty"`
	Confidence    float64        `json:"confidence"`
	Source        string         `json:"source"`
}

// Correctable reports whether the diagnosis carries a candidate payload.
func (d Diagnosis) Correctable() bool {
	return d.Corrected != nil
}

// Advisor produces a diagnosis for a rejected call.
type Advisor interface {
	Diagnose(ctx context.Context, p Problem) (Diagnosis, error)
}

// AdvisorFunc adapts a function to Advisor.
type AdvisorFunc func(ctx context.Context, p Problem) (Diagnosis, error)

// Diagnose calls f.
func (f AdvisorFunc) Diagnose(ctx context.Context, p Problem) (Diagnosis, error) {
	return f(ctx, p)
}

func clampConfidence(c float64) float64 {
	switch {
	case c < 0:
		return 0
	case c > 1:
		return 1
	default:
		return c
	}
}
