package transport

import (
	"time"

	"github.com/google/uuid"
)

type CreateVendorRequest struct {
	Name             string   `json:"name" validate:"required,min=1,max=200"`
	ContactName      string   `json:"contactName" validate:"max=120"`
	ContactEmail     string   `json:"contactEmail" validate:"omitempty,email"`
	ContactPhone     string   `json:"contactPhone" validate:"max=50"`
	Capabilities     []string `json:"capabilities" validate:"required,min=1,dive,required"`
	CoverageType     string   `json:"coverageType" validate:"required,oneof=zip region"`
	CoverageZips     []string `json:"coverageZips" validate:"omitempty,dive,uszip"`
	CoverageRegions  []string `json:"coverageRegions" validate:"omitempty,dive,min=2,max=120"`
	PerformanceScore float64  `json:"performanceScore" validate:"gte=0,lte=1"`
	TakingNewWork    *bool    `json:"takingNewWork"`
}

type UpdateAvailabilityRequest struct {
	TakingNewWork *bool `json:"takingNewWork" validate:"required"`
}

type VendorSummary struct {
	ID      uuid.UUID `json:"id"`
	Name    string    `json:"name"`
	Contact Contact   `json:"contact"`
}

type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type VendorResponse struct {
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	Contact          Contact    `json:"contact"`
	Capabilities     []string   `json:"capabilities"`
	CoverageType     string     `json:"coverageType"`
	CoverageZips     []string   `json:"coverageZips"`
	CoverageRegions  []string   `json:"coverageRegions"`
	PerformanceScore float64    `json:"performanceScore"`
	TakingNewWork    bool       `json:"takingNewWork"`
	Active           bool       `json:"active"`
	LastLeadAssigned *time.Time `json:"lastLeadAssigned,omitempty"`
	LeadsReceived    int        `json:"leadsReceived"`
	LeadsClosed      int        `json:"leadsClosed"`
}

type CategoryAvailability struct {
	Category    string `json:"category"`
	DisplayName string `json:"displayName"`
	Vendors     int    `json:"vendors"`
	Available   bool   `json:"available"`
}
