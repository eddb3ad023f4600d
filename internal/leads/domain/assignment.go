package domain

import (
	"time"

	"github.com/google/uuid"
)

// AssignmentRecord is an append-only log entry of a lead being handed to a vendor.
type AssignmentRecord struct {
	ID         int64
	LeadID     uuid.UUID
	VendorID   uuid.UUID
	Method     string
	AssignedAt time.Time
}

// Reassignment logs the release of a prior assignment.
type Reassignment struct {
	ID            int64
	LeadID        uuid.UUID
	PriorVendorID uuid.UUID
	Reason        string
	ReleasedAt    time.Time
}
