package service

import (
	"context"
	"fmt"
	"math/rand/v2"

	"marine_leads_backend/internal/geo"
	"marine_leads_backend/internal/vendors/domain"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
)

// Match outcomes when no vendor is returned.
const (
	ReasonNoCoverage = "no_coverage"
	ReasonNoVendor   = "no_vendor"
)

// CandidateLister loads capability candidates for a tenant.
type CandidateLister interface {
	ListCandidates(ctx context.Context, tenantID uuid.UUID, category string) ([]domain.Vendor, error)
}

// PercentageSource provides the tenant's performance_percentage (0-100).
type PercentageSource interface {
	PerformancePercentage(ctx context.Context, tenantID uuid.UUID) (int, error)
}

// GeoSource provides the zip directory snapshot.
type GeoSource interface {
	Current() *geo.Directory
}

// RollFunc returns a uniform integer in [0, n).
type RollFunc func(n int) int

// MatchRequest describes the lead being routed.
type MatchRequest struct {
	TenantID uuid.UUID
	Category string
	ZipCode  string
	Exclude  []uuid.UUID
}

// MatchResult is the ranked eligible set. Ranked is ordered by Method and its
// first element is the selection. Reason is set when Ranked is empty.
type MatchResult struct {
	Ranked   []domain.Vendor
	Method   string
	Reason   string
	Region   *geo.Region
	Rejected map[uuid.UUID]string
}

// Selected returns the chosen vendor, if any.
func (r MatchResult) Selected() (domain.Vendor, bool) {
	if len(r.Ranked) == 0 {
		return domain.Vendor{}, false
	}
	return r.Ranked[0], true
}

// Preview is a side-effect free view of both rankings.
type Preview struct {
	Region                *geo.Region     `json:"region,omitempty"`
	Reason                string          `json:"reason,omitempty"`
	PerformancePercentage int             `json:"performancePercentage"`
	ByPerformance         []domain.Vendor `json:"-"`
	ByRoundRobin          []domain.Vendor `json:"-"`
}

// Matcher selects vendors for leads.
type Matcher struct {
	vendors    CandidateLister
	percentage PercentageSource
	geo        GeoSource
	roll       RollFunc
	log        *logger.Logger
}

// NewMatcher creates a matcher. A nil roll uses math/rand/v2.
func NewMatcher(vendors CandidateLister, percentage PercentageSource, geoSource GeoSource, roll RollFunc, log *logger.Logger) *Matcher {
	if roll == nil {
		roll = rand.IntN
	}
	return &Matcher{vendors: vendors, percentage: percentage, geo: geoSource, roll: roll, log: log}
}

// Match filters candidates by geography and capability and ranks them with
// the tenant's performance/round-robin blend. It never mutates state.
func (m *Matcher) Match(ctx context.Context, req MatchRequest) (MatchResult, error) {
	eligible, region, reason, rejected, err := m.eligible(ctx, req)
	if err != nil {
		return MatchResult{}, err
	}
	if len(eligible) == 0 {
		return MatchResult{Reason: reason, Region: region, Rejected: rejected}, nil
	}

	p, err := m.percentage.PerformancePercentage(ctx, req.TenantID)
	if err != nil {
		return MatchResult{}, fmt.Errorf("load performance percentage: %w", err)
	}

	method := domain.MethodRoundRobin
	ranked := domain.RankRoundRobin(eligible)
	if m.roll(100) < p {
		method = domain.MethodPerformance
		ranked = domain.RankPerformance(eligible)
	}

	m.log.Debug("vendor match",
		"tenantId", req.TenantID,
		"category", req.Category,
		"zip", req.ZipCode,
		"eligible", len(eligible),
		"method", method,
	)
	return MatchResult{Ranked: ranked, Method: method, Region: region, Rejected: rejected}, nil
}

// Preview returns both rankings for a category and zip code.
func (m *Matcher) Preview(ctx context.Context, req MatchRequest) (Preview, error) {
	eligible, region, reason, _, err := m.eligible(ctx, req)
	if err != nil {
		return Preview{}, err
	}
	p, err := m.percentage.PerformancePercentage(ctx, req.TenantID)
	if err != nil {
		return Preview{}, fmt.Errorf("load performance percentage: %w", err)
	}
	return Preview{
		Region:                region,
		Reason:                reason,
		PerformancePercentage: p,
		ByPerformance:         domain.RankPerformance(eligible),
		ByRoundRobin:          domain.RankRoundRobin(eligible),
	}, nil
}

func (m *Matcher) eligible(ctx context.Context, req MatchRequest) ([]domain.Vendor, *geo.Region, string, map[uuid.UUID]string, error) {
	region, ok := m.geo.Current().Resolve(req.ZipCode)
	if !ok {
		return nil, nil, ReasonNoCoverage, nil, nil
	}

	candidates, err := m.vendors.ListCandidates(ctx, req.TenantID, req.Category)
	if err != nil {
		return nil, &region, "", nil, fmt.Errorf("list vendor candidates: %w", err)
	}

	eligible, rejected := domain.Filter(candidates, domain.Criteria{
		Category: req.Category,
		ZipCode:  req.ZipCode,
		Region:   region,
		Exclude:  req.Exclude,
	})
	if len(eligible) == 0 {
		return nil, &region, ReasonNoVendor, rejected, nil
	}
	return eligible, &region, "", rejected, nil
}
