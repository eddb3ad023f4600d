// Package service holds vendor business logic: administration of the vendor
// pool and lead-to-vendor matching.
package service

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"marine_leads_backend/internal/geo"
	"marine_leads_backend/internal/taxonomy"
	"marine_leads_backend/internal/vendors/domain"
	"marine_leads_backend/internal/vendors/repository"
	"marine_leads_backend/internal/vendors/transport"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/phone"
	"marine_leads_backend/platform/sanitize"

	"github.com/google/uuid"
)

// Repository is the vendor persistence the service needs.
type Repository interface {
	CandidateLister
	List(ctx context.Context, tenantID uuid.UUID) ([]domain.Vendor, error)
	Get(ctx context.Context, tenantID, vendorID uuid.UUID) (domain.Vendor, error)
	Create(ctx context.Context, v domain.Vendor) (domain.Vendor, error)
	SetAvailability(ctx context.Context, tenantID, vendorID uuid.UUID, takingNewWork bool) (domain.Vendor, error)
	Counts(ctx context.Context, tenantID uuid.UUID) (repository.Counts, error)
	CapabilityCounts(ctx context.Context, tenantID uuid.UUID) (map[string]int, error)
}

// TaxonomySource provides the current taxonomy snapshot.
type TaxonomySource interface {
	Current() *taxonomy.Taxonomy
}

// Service provides business logic for vendors.
type Service struct {
	repo     Repository
	taxonomy TaxonomySource
}

// New creates a new vendors service.
func New(repo Repository, tax TaxonomySource) *Service {
	return &Service{repo: repo, taxonomy: tax}
}

func (s *Service) Create(ctx context.Context, tenantID uuid.UUID, req transport.CreateVendorRequest) (transport.VendorResponse, error) {
	known := s.taxonomy.Current().Keys()
	for _, c := range req.Capabilities {
		if !slices.Contains(known, c) {
			return transport.VendorResponse{}, apperr.Validation(fmt.Sprintf("unknown capability %q", c))
		}
	}

	v := domain.Vendor{
		ID:       uuid.New(),
		TenantID: tenantID,
		Name:     sanitize.Text(req.Name),
		Contact: domain.Contact{
			Name:  sanitize.Text(req.ContactName),
			Email: strings.ToLower(strings.TrimSpace(req.ContactEmail)),
			Phone: phone.NormalizeE164(req.ContactPhone),
		},
		Capabilities:     dedupe(req.Capabilities),
		CoverageType:     domain.CoverageType(req.CoverageType),
		CoverageZips:     []string{},
		CoverageRegions:  []string{},
		PerformanceScore: req.PerformanceScore,
		TakingNewWork:    req.TakingNewWork == nil || *req.TakingNewWork,
		Active:           true,
	}

	switch v.CoverageType {
	case domain.CoverageZip:
		if len(req.CoverageZips) == 0 || len(req.CoverageRegions) > 0 {
			return transport.VendorResponse{}, apperr.Validation("zip coverage needs coverageZips and no coverageRegions")
		}
		v.CoverageZips = dedupe(req.CoverageZips)
	case domain.CoverageRegion:
		if len(req.CoverageRegions) == 0 || len(req.CoverageZips) > 0 {
			return transport.VendorResponse{}, apperr.Validation("region coverage needs coverageRegions and no coverageZips")
		}
		regions := make([]string, 0, len(req.CoverageRegions))
		for _, r := range req.CoverageRegions {
			regions = append(regions, geo.NormalizeCoverageKey(r))
		}
		v.CoverageRegions = dedupe(regions)
	}

	created, err := s.repo.Create(ctx, v)
	if err != nil {
		return transport.VendorResponse{}, err
	}
	return ToResponse(created), nil
}

func (s *Service) List(ctx context.Context, tenantID uuid.UUID) ([]transport.VendorResponse, error) {
	vendors, err := s.repo.List(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	out := make([]transport.VendorResponse, 0, len(vendors))
	for _, v := range vendors {
		out = append(out, ToResponse(v))
	}
	return out, nil
}

// Get returns one vendor of a tenant.
func (s *Service) Get(ctx context.Context, tenantID, vendorID uuid.UUID) (domain.Vendor, error) {
	return s.repo.Get(ctx, tenantID, vendorID)
}

func (s *Service) SetAvailability(ctx context.Context, tenantID, vendorID uuid.UUID, takingNewWork bool) (transport.VendorResponse, error) {
	v, err := s.repo.SetAvailability(ctx, tenantID, vendorID, takingNewWork)
	if err != nil {
		return transport.VendorResponse{}, err
	}
	return ToResponse(v), nil
}

// Counts returns total vendors and vendors currently taking work.
func (s *Service) Counts(ctx context.Context, tenantID uuid.UUID) (repository.Counts, error) {
	return s.repo.Counts(ctx, tenantID)
}

// Availability reports, for every taxonomy category, whether any vendor can
// currently take work.
func (s *Service) Availability(ctx context.Context, tenantID uuid.UUID) ([]transport.CategoryAvailability, error) {
	counts, err := s.repo.CapabilityCounts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	t := s.taxonomy.Current()
	out := make([]transport.CategoryAvailability, 0, len(t.Categories))
	for _, c := range t.Categories {
		n := counts[c.Key]
		out = append(out, transport.CategoryAvailability{
			Category:    c.Key,
			DisplayName: c.DisplayName,
			Vendors:     n,
			Available:   n > 0,
		})
	}
	return out, nil
}

// ToResponse maps a vendor to its API representation.
func ToResponse(v domain.Vendor) transport.VendorResponse {
	return transport.VendorResponse{
		ID:               v.ID,
		Name:             v.Name,
		Contact:          transport.Contact(v.Contact),
		Capabilities:     v.Capabilities,
		CoverageType:     string(v.CoverageType),
		CoverageZips:     v.CoverageZips,
		CoverageRegions:  v.CoverageRegions,
		PerformanceScore: v.PerformanceScore,
		TakingNewWork:    v.TakingNewWork,
		Active:           v.Active,
		LastLeadAssigned: v.LastLeadAssigned,
		LeadsReceived:    v.LeadsReceived,
		LeadsClosed:      v.LeadsClosed,
	}
}

// ToSummary maps a vendor to the short form returned with assignments.
func ToSummary(v domain.Vendor) transport.VendorSummary {
	return transport.VendorSummary{ID: v.ID, Name: v.Name, Contact: transport.Contact(v.Contact)}
}

func dedupe(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
