// Package domain holds the vendor model and the pure eligibility and ranking
// rules used by the matcher.
package domain

import (
	"slices"
	"sort"
	"strings"
	"time"

	"marine_leads_backend/internal/geo"

	"github.com/google/uuid"
)

// CoverageType says how a vendor's service area is described. Exactly one
// of the zip list or the region list is meaningful.
type CoverageType string

const (
	CoverageZip    CoverageType = "zip"
	CoverageRegion CoverageType = "region"
)

// Routing methods recorded on assignment records.
const (
	MethodPerformance    = "performance_based"
	MethodRoundRobin     = "round_robin"
	MethodManualOverride = "manual_override"
)

// Contact is the vendor's point of contact.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// Vendor is a service provider that can receive leads.
type Vendor struct {
	ID               uuid.UUID
	TenantID         uuid.UUID
	Name             string
	Contact          Contact
	Capabilities     []string
	CoverageType     CoverageType
	CoverageZips     []string
	CoverageRegions  []string
	PerformanceScore float64
	TakingNewWork    bool
	Active           bool
	LastLeadAssigned *time.Time
	LeadsReceived    int
	LeadsClosed      int
	Revision         int64
}

// HasCapability reports whether the vendor offers category.
func (v Vendor) HasCapability(category string) bool {
	return slices.Contains(v.Capabilities, category)
}

// CoversZip reports whether the vendor's service area includes zip. region
// is the zip's resolved region and is only consulted for region coverage.
func (v Vendor) CoversZip(zip string, region geo.Region) bool {
	switch v.CoverageType {
	case CoverageZip:
		return slices.Contains(v.CoverageZips, zip)
	case CoverageRegion:
		return region.Covers(v.CoverageRegions)
	default:
		return false
	}
}

// Available reports whether the vendor may be offered new leads at all.
func (v Vendor) Available() bool {
	return v.Active && v.TakingNewWork
}

// Criteria is what a lead asks of a vendor.
type Criteria struct {
	Category string
	ZipCode  string
	Region   geo.Region
	Exclude  []uuid.UUID
}

// Rejection reasons produced by Filter.
const (
	RejectUnavailable = "unavailable"
	RejectCapability  = "capability"
	RejectCoverage    = "coverage"
	RejectExcluded    = "excluded"
)

// Filter returns the vendors eligible under c, in input order, and why the
// others were dropped.
func Filter(vendors []Vendor, c Criteria) (eligible []Vendor, rejected map[uuid.UUID]string) {
	eligible = make([]Vendor, 0, len(vendors))
	rejected = make(map[uuid.UUID]string)
	for _, v := range vendors {
		switch {
		case slices.Contains(c.Exclude, v.ID):
			rejected[v.ID] = RejectExcluded
		case !v.Available():
			rejected[v.ID] = RejectUnavailable
		case !v.HasCapability(c.Category):
			rejected[v.ID] = RejectCapability
		case !v.CoversZip(c.ZipCode, c.Region):
			rejected[v.ID] = RejectCoverage
		default:
			eligible = append(eligible, v)
		}
	}
	return eligible, rejected
}

// RankRoundRobin orders vendors oldest-assigned first. A vendor that never
// received a lead counts as the oldest. Remaining ties fall back to id order.
func RankRoundRobin(vendors []Vendor) []Vendor {
	out := slices.Clone(vendors)
	sort.SliceStable(out, func(i, j int) bool {
		if c := compareLastAssigned(out[i], out[j]); c != 0 {
			return c < 0
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out
}

// RankPerformance orders vendors by score descending, ties by least
// recently assigned, then id.
func RankPerformance(vendors []Vendor) []Vendor {
	out := slices.Clone(vendors)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].PerformanceScore != out[j].PerformanceScore {
			return out[i].PerformanceScore > out[j].PerformanceScore
		}
		if c := compareLastAssigned(out[i], out[j]); c != 0 {
			return c < 0
		}
		return strings.Compare(out[i].ID.String(), out[j].ID.String()) < 0
	})
	return out
}

func compareLastAssigned(a, b Vendor) int {
	switch {
	case a.LastLeadAssigned == nil && b.LastLeadAssigned == nil:
		return 0
	case a.LastLeadAssigned == nil:
		return -1
	case b.LastLeadAssigned == nil:
		return 1
	default:
		return a.LastLeadAssigned.Compare(*b.LastLeadAssigned)
	}
}
