// Package events defines the lead lifecycle events published on the
// platform bus.
package events

import (
	"marine_leads_backend/platform/events"

	"github.com/google/uuid"
)

type (
	Event       = events.Event
	Bus         = events.Bus
	Publisher   = events.Publisher
	Subscriber  = events.Subscriber
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// LeadReceived is published once a submission has been persisted.
type LeadReceived struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
}

func (e LeadReceived) EventName() string { return "leads.lead.received" }

// LeadAssigned is published when a vendor has been committed to a lead.
type LeadAssigned struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	VendorID uuid.UUID `json:"vendorId"`
	Method   string    `json:"method"`
}

func (e LeadAssigned) EventName() string { return "leads.lead.assigned" }

// LeadReassigned is published after an operator moved a lead to another vendor.
type LeadReassigned struct {
	BaseEvent
	LeadID        uuid.UUID `json:"leadId"`
	TenantID      uuid.UUID `json:"tenantId"`
	PriorVendorID uuid.UUID `json:"priorVendorId"`
	VendorID      uuid.UUID `json:"vendorId"`
	Reason        string    `json:"reason"`
}

func (e LeadReassigned) EventName() string { return "leads.lead.reassigned" }

// LeadSynced is published when the CRM accepted the lead.
type LeadSynced struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Attempts int       `json:"attempts"`
}

func (e LeadSynced) EventName() string { return "leads.lead.synced" }

// LeadSyncFailed is published when the CRM sync gave up on a lead.
type LeadSyncFailed struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	VendorID uuid.UUID `json:"vendorId"`
	Attempts int       `json:"attempts"`
	Detail   string    `json:"detail"`
}

func (e LeadSyncFailed) EventName() string { return "leads.sync.failed" }

// LeadRoutingFailed is published when no vendor could take a lead.
type LeadRoutingFailed struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	TenantID uuid.UUID `json:"tenantId"`
	Reason   string    `json:"reason"`
	Category string    `json:"category"`
	ZipCode  string    `json:"zipCode"`
}

func (e LeadRoutingFailed) EventName() string { return "leads.routing.failed" }
