package transport

import (
	"time"

	"marine_leads_backend/internal/fieldmap"
	vendortransport "marine_leads_backend/internal/vendors/transport"

	"github.com/google/uuid"
)

type UpdateConfigRequest struct {
	PerformancePercentage *int `json:"performancePercentage" validate:"required,gte=0,lte=100"`
}

type VendorCounts struct {
	Total         int `json:"total"`
	TakingNewWork int `json:"takingNewWork"`
}

type ConfigResponse struct {
	PerformancePercentage int                                    `json:"performancePercentage"`
	Vendors               VendorCounts                           `json:"vendors"`
	Services              []vendortransport.CategoryAvailability `json:"services"`
	TaxonomyVersion       string                                 `json:"taxonomyVersion"`
	FieldMappingVersion   string                                 `json:"fieldMappingVersion"`
}

type MatchTestRequest struct {
	ZipCode         string `json:"zipCode" validate:"required,uszip"`
	ServiceCategory string `json:"serviceCategory" validate:"required,max=100"`
}

type RankedVendor struct {
	Rank             int        `json:"rank"`
	ID               uuid.UUID  `json:"id"`
	Name             string     `json:"name"`
	PerformanceScore float64    `json:"performanceScore"`
	LastLeadAssigned *time.Time `json:"lastLeadAssigned,omitempty"`
}

type MatchTestResponse struct {
	ZipCode               string         `json:"zipCode"`
	ServiceCategory       string         `json:"serviceCategory"`
	County                string         `json:"county,omitempty"`
	State                 string         `json:"state,omitempty"`
	Reason                string         `json:"reason,omitempty"`
	PerformancePercentage int            `json:"performancePercentage"`
	PerformanceRanking    []RankedVendor `json:"performanceRanking"`
	RoundRobinRanking     []RankedVendor `json:"roundRobinRanking"`
}

type FieldMappingsResponse struct {
	Version  string             `json:"version"`
	Mappings []fieldmap.Mapping `json:"mappings"`
}

type ReloadResponse struct {
	TaxonomyVersion     string `json:"taxonomyVersion"`
	FieldMappingVersion string `json:"fieldMappingVersion"`
	GeoVersion          string `json:"geoVersion"`
	GeoZipCount         int    `json:"geoZipCount"`
}
