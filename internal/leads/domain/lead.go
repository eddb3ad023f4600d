// Package domain holds the lead model and its lifecycle rules.
package domain

import (
	"fmt"
	"time"

	"marine_leads_backend/internal/fieldmap"

	"github.com/google/uuid"
)

// Status is the lead's position in the routing pipeline.
type Status string

const (
	StatusReceived   Status = "received"
	StatusClassified Status = "classified"
	StatusMatched    Status = "matched"
	StatusAssigned   Status = "assigned"
	StatusSynced     Status = "synced"
	StatusFailed     Status = "failed"
)

// FailureReason qualifies StatusFailed.
type FailureReason string

const (
	FailureValidation FailureReason = "validation"
	FailureNoCoverage FailureReason = "no_coverage"
	FailureNoVendor   FailureReason = "no_vendor"
	FailureSync       FailureReason = "sync"
	FailureInternal   FailureReason = "internal"
)

// Reroutable reports whether a lead failed for lack of a vendor and may be
// routed again once vendor state changes.
func (r FailureReason) Reroutable() bool {
	return r == FailureNoCoverage || r == FailureNoVendor
}

var transitions = map[Status][]Status{
	StatusReceived:   {StatusClassified, StatusFailed},
	StatusClassified: {StatusMatched, StatusFailed},
	StatusMatched:    {StatusAssigned, StatusFailed},
	StatusAssigned:   {StatusSynced, StatusMatched, StatusFailed},
	StatusSynced:     {StatusMatched},
	StatusFailed:     {StatusClassified, StatusMatched},
}

// CanTransition reports whether from -> to is a legal lifecycle step.
// assigned/synced -> matched is the reassignment path; failed -> classified
// re-enters routing and failed -> matched releases a failed sync for reassignment.
func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lead is a customer service request moving through the pipeline.
type Lead struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	FormID       string
	SourceDomain string

	Status        Status
	FailureReason FailureReason
	FailureDetail string

	Attributes Attributes
	// RawPayload is the submission exactly as received.
	RawPayload map[string]any

	ServiceCategory          string
	Subcategories            []string
	ClassificationConfidence float64
	MappingErrors            []fieldmap.CoercionError

	AssignedVendorID *uuid.UUID
	RoutingMethod    string
	AssignedAt       *time.Time
	CRMContactID     string
	FirstSyncedAt    *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// New creates a lead in the received state.
func New(tenantID uuid.UUID, formID string, raw map[string]any, attrs Attributes, now time.Time) Lead {
	return Lead{
		ID:         uuid.New(),
		TenantID:   tenantID,
		FormID:     formID,
		Status:     StatusReceived,
		Attributes: attrs,
		RawPayload: raw,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
}

// Advance moves the lead to status to.
func (l *Lead) Advance(to Status, now time.Time) error {
	if !CanTransition(l.Status, to) {
		return fmt.Errorf("lead %s: illegal transition %s -> %s", l.ID, l.Status, to)
	}
	l.Status = to
	if to != StatusFailed {
		l.FailureReason = ""
		l.FailureDetail = ""
	}
	l.UpdatedAt = now
	return nil
}

// Fail marks the lead failed. Partial state is kept.
func (l *Lead) Fail(reason FailureReason, detail string, now time.Time) {
	l.Status = StatusFailed
	l.FailureReason = reason
	l.FailureDetail = detail
	l.UpdatedAt = now
}

// IsAssigned reports whether the lead holds a vendor.
func (l Lead) IsAssigned() bool {
	return l.AssignedVendorID != nil && (l.Status == StatusAssigned || l.Status == StatusSynced ||
		(l.Status == StatusFailed && l.FailureReason == FailureSync))
}

// IsTerminal reports whether automated processing is finished.
func (l Lead) IsTerminal() bool {
	switch l.Status {
	case StatusSynced:
		return true
	case StatusFailed:
		return l.FailureReason == FailureValidation || l.FailureReason == FailureSync
	default:
		return false
	}
}

// MappingAttributes returns the canonical attributes sent to the CRM. The
// classified category replaces the submitted hint.
func (l Lead) MappingAttributes() map[string]string {
	attrs := l.Attributes.Flatten()
	if l.ServiceCategory != "" {
		attrs[AttrServiceCategory] = l.ServiceCategory
	}
	return attrs
}
