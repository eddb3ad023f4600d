package transport

import (
	"time"

	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/internal/leads/pipeline"
	vendorsvc "marine_leads_backend/internal/vendors/service"
	vendortransport "marine_leads_backend/internal/vendors/transport"

	"github.com/google/uuid"
)

// IngestResponse is the answer to a submission or a reassignment.
type IngestResponse struct {
	Status        domain.Status                  `json:"status"`
	LeadID        uuid.UUID                      `json:"leadId"`
	Vendor        *vendortransport.VendorSummary `json:"vendor,omitempty"`
	RoutingMethod string                         `json:"routingMethod,omitempty"`
	ProcessingMs  int64                          `json:"processingMs"`
	Duplicate     bool                           `json:"duplicate,omitempty"`
}

// NewIngestResponse renders a pipeline outcome.
func NewIngestResponse(out pipeline.Outcome) IngestResponse {
	resp := IngestResponse{
		Status:        out.Lead.Status,
		LeadID:        out.Lead.ID,
		RoutingMethod: out.Lead.RoutingMethod,
		ProcessingMs:  out.Elapsed.Milliseconds(),
		Duplicate:     out.Duplicate,
	}
	if out.Vendor != nil {
		summary := vendorsvc.ToSummary(*out.Vendor)
		resp.Vendor = &summary
	}
	return resp
}

type ReassignRequest struct {
	Reason   string     `json:"reason" validate:"required,min=3,max=500"`
	VendorID *uuid.UUID `json:"vendorId"`
}

type LeadResponse struct {
	ID                       uuid.UUID                `json:"id"`
	FormID                   string                   `json:"formId"`
	SourceDomain             string                   `json:"sourceDomain,omitempty"`
	Status                   domain.Status            `json:"status"`
	FailureReason            string                   `json:"failureReason,omitempty"`
	FailureDetail            string                   `json:"failureDetail,omitempty"`
	Attributes               domain.Attributes        `json:"attributes"`
	RawPayload               map[string]any           `json:"rawPayload"`
	ServiceCategory          string                   `json:"serviceCategory,omitempty"`
	Subcategories            []string                 `json:"subcategories"`
	ClassificationConfidence float64                  `json:"classificationConfidence"`
	MappingErrors            []fieldmap.CoercionError `json:"mappingErrors"`
	AssignedVendorID         *uuid.UUID               `json:"assignedVendorId,omitempty"`
	RoutingMethod            string                   `json:"routingMethod,omitempty"`
	AssignedAt               *time.Time               `json:"assignedAt,omitempty"`
	CRMContactID             string                   `json:"crmContactId,omitempty"`
	FirstSyncedAt            *time.Time               `json:"firstSyncedAt,omitempty"`
	CreatedAt                time.Time                `json:"createdAt"`
	UpdatedAt                time.Time                `json:"updatedAt"`
}

func NewLeadResponse(l domain.Lead) LeadResponse {
	subs := l.Subcategories
	if subs == nil {
		subs = []string{}
	}
	mappingErrors := l.MappingErrors
	if mappingErrors == nil {
		mappingErrors = []fieldmap.CoercionError{}
	}
	return LeadResponse{
		ID:                       l.ID,
		FormID:                   l.FormID,
		SourceDomain:             l.SourceDomain,
		Status:                   l.Status,
		FailureReason:            string(l.FailureReason),
		FailureDetail:            l.FailureDetail,
		Attributes:               l.Attributes,
		RawPayload:               l.RawPayload,
		ServiceCategory:          l.ServiceCategory,
		Subcategories:            subs,
		ClassificationConfidence: l.ClassificationConfidence,
		MappingErrors:            mappingErrors,
		AssignedVendorID:         l.AssignedVendorID,
		RoutingMethod:            l.RoutingMethod,
		AssignedAt:               l.AssignedAt,
		CRMContactID:             l.CRMContactID,
		FirstSyncedAt:            l.FirstSyncedAt,
		CreatedAt:                l.CreatedAt,
		UpdatedAt:                l.UpdatedAt,
	}
}

type AssignmentRecordResponse struct {
	ID         int64     `json:"id"`
	VendorID   uuid.UUID `json:"vendorId"`
	Method     string    `json:"method"`
	AssignedAt time.Time `json:"assignedAt"`
}
