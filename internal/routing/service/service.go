// Package service implements routing configuration: the per-tenant
// performance percentage, pool status, diagnostics and reference reloads.
package service

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/internal/geo"
	"marine_leads_backend/internal/routing/repository"
	"marine_leads_backend/internal/routing/transport"
	"marine_leads_backend/internal/taxonomy"
	"marine_leads_backend/internal/vendors/domain"
	vendorrepo "marine_leads_backend/internal/vendors/repository"
	vendorsvc "marine_leads_backend/internal/vendors/service"
	vendortransport "marine_leads_backend/internal/vendors/transport"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// SettingsStore persists the percentage.
type SettingsStore interface {
	GetPerformancePercentage(ctx context.Context, tenantID uuid.UUID) (int, error)
	UpsertPerformancePercentage(ctx context.Context, tenantID uuid.UUID, percentage int) error
}

// VendorPool reports the state of the vendor pool.
type VendorPool interface {
	Counts(ctx context.Context, tenantID uuid.UUID) (vendorrepo.Counts, error)
	Availability(ctx context.Context, tenantID uuid.UUID) ([]vendortransport.CategoryAvailability, error)
}

// MatchPreviewer returns would-be rankings without side effects.
type MatchPreviewer interface {
	Preview(ctx context.Context, req vendorsvc.MatchRequest) (vendorsvc.Preview, error)
}

// Reloadable is a reference table that can be re-read from its source.
type Reloadable[T any] interface {
	Current() *T
	Reload() (*T, error)
}

// References bundles the reference tables the service reports on and reloads.
type References struct {
	Taxonomy Reloadable[taxonomy.Taxonomy]
	Fields   Reloadable[fieldmap.Table]
	Geo      Reloadable[geo.Directory]
}

// Service provides business logic for routing settings.
type Service struct {
	store             SettingsStore
	pool              VendorPool
	matcher           MatchPreviewer
	refs              References
	defaultPercentage int
	group             singleflight.Group
	log               *logger.Logger
}

// New creates a routing settings service.
func New(store SettingsStore, refs References, defaultPercentage int, log *logger.Logger) *Service {
	return &Service{store: store, refs: refs, defaultPercentage: defaultPercentage, log: log}
}

// SetVendorPool wires the vendor pool once the vendors module exists. The
// vendors module reads the percentage from this service, so the two are
// constructed in sequence.
func (s *Service) SetVendorPool(pool VendorPool, matcher MatchPreviewer) {
	s.pool = pool
	s.matcher = matcher
}

// PerformancePercentage returns the tenant's percentage, or the configured
// default when none is stored. Concurrent lookups for a tenant share one query,
// which outlives a caller that gives up so the others still get an answer.
func (s *Service) PerformancePercentage(ctx context.Context, tenantID uuid.UUID) (int, error) {
	shared := context.WithoutCancel(ctx)
	ch := s.group.DoChan(tenantID.String(), func() (any, error) {
		p, err := s.store.GetPerformancePercentage(shared, tenantID)
		if errors.Is(err, repository.ErrNotFound) {
			return s.defaultPercentage, nil
		}
		return p, err
	})
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return 0, res.Err
		}
		return res.Val.(int), nil
	}
}

// SetPerformancePercentage validates and stores a new percentage.
func (s *Service) SetPerformancePercentage(ctx context.Context, tenantID uuid.UUID, percentage int) error {
	if percentage < 0 || percentage > 100 {
		return apperr.Validation("performancePercentage must be between 0 and 100")
	}
	if err := s.store.UpsertPerformancePercentage(ctx, tenantID, percentage); err != nil {
		return err
	}
	s.group.Forget(tenantID.String())
	s.log.Info("routing: performance percentage updated", "tenantId", tenantID, "performancePercentage", percentage)
	return nil
}

// Config returns the current routing configuration and pool status.
func (s *Service) Config(ctx context.Context, tenantID uuid.UUID) (transport.ConfigResponse, error) {
	p, err := s.PerformancePercentage(ctx, tenantID)
	if err != nil {
		return transport.ConfigResponse{}, err
	}
	counts, err := s.pool.Counts(ctx, tenantID)
	if err != nil {
		return transport.ConfigResponse{}, err
	}
	services, err := s.pool.Availability(ctx, tenantID)
	if err != nil {
		return transport.ConfigResponse{}, err
	}
	return transport.ConfigResponse{
		PerformancePercentage: p,
		Vendors:               transport.VendorCounts{Total: counts.Total, TakingNewWork: counts.TakingNewWork},
		Services:              services,
		TaxonomyVersion:       s.refs.Taxonomy.Current().Version,
		FieldMappingVersion:   s.refs.Fields.Current().Version,
	}, nil
}

// MatchTest ranks vendors for a zip code and category without mutating anything.
func (s *Service) MatchTest(ctx context.Context, tenantID uuid.UUID, req transport.MatchTestRequest) (transport.MatchTestResponse, error) {
	if !slices.Contains(s.refs.Taxonomy.Current().Keys(), req.ServiceCategory) {
		return transport.MatchTestResponse{}, apperr.Validation(fmt.Sprintf("unknown service category %q", req.ServiceCategory))
	}

	preview, err := s.matcher.Preview(ctx, vendorsvc.MatchRequest{
		TenantID: tenantID,
		Category: req.ServiceCategory,
		ZipCode:  req.ZipCode,
	})
	if err != nil {
		return transport.MatchTestResponse{}, err
	}

	resp := transport.MatchTestResponse{
		ZipCode:               req.ZipCode,
		ServiceCategory:       req.ServiceCategory,
		Reason:                preview.Reason,
		PerformancePercentage: preview.PerformancePercentage,
		PerformanceRanking:    rank(preview.ByPerformance),
		RoundRobinRanking:     rank(preview.ByRoundRobin),
	}
	if preview.Region != nil {
		resp.County = preview.Region.County
		resp.State = preview.Region.State
	}
	return resp, nil
}

// FieldMappings returns the active mapping table.
func (s *Service) FieldMappings() transport.FieldMappingsResponse {
	t := s.refs.Fields.Current()
	return transport.FieldMappingsResponse{Version: t.Version, Mappings: t.Mappings}
}

// ReloadReferences re-reads the taxonomy, field mappings and geo directory.
// Tables that fail to load keep their previous snapshot.
func (s *Service) ReloadReferences(ctx context.Context) (transport.ReloadResponse, error) {
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error { _, err := s.refs.Taxonomy.Reload(); return err })
	g.Go(func() error { _, err := s.refs.Fields.Reload(); return err })
	g.Go(func() error { _, err := s.refs.Geo.Reload(); return err })
	if err := g.Wait(); err != nil {
		s.log.Error("routing: reference reload failed", "error", err)
		return transport.ReloadResponse{}, apperr.Wrap(apperr.KindValidation, "reference reload failed", err)
	}

	resp := transport.ReloadResponse{
		TaxonomyVersion:     s.refs.Taxonomy.Current().Version,
		FieldMappingVersion: s.refs.Fields.Current().Version,
		GeoVersion:          s.refs.Geo.Current().Version,
		GeoZipCount:         s.refs.Geo.Current().Len(),
	}
	s.log.Info("routing: reference data reloaded",
		"taxonomyVersion", resp.TaxonomyVersion,
		"fieldMappingVersion", resp.FieldMappingVersion,
		"geoVersion", resp.GeoVersion,
	)
	return resp, nil
}

func rank(vendors []domain.Vendor) []transport.RankedVendor {
	out := make([]transport.RankedVendor, 0, len(vendors))
	for i, v := range vendors {
		out = append(out, transport.RankedVendor{
			Rank:             i + 1,
			ID:               v.ID,
			Name:             v.Name,
			PerformanceScore: v.PerformanceScore,
			LastLeadAssigned: v.LastLeadAssigned,
		})
	}
	return out
}
