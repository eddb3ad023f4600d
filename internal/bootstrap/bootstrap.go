// Package bootstrap wires the domain modules shared by the API and the
// scheduler binaries.
package bootstrap

import (
	"context"
	"fmt"

	"marine_leads_backend/internal/adapters/storage"
	"marine_leads_backend/internal/crmsync"
	"marine_leads_backend/internal/events"
	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/internal/geo"
	"marine_leads_backend/internal/leads"
	"marine_leads_backend/internal/leads/pipeline"
	"marine_leads_backend/internal/routing"
	routingsvc "marine_leads_backend/internal/routing/service"
	"marine_leads_backend/internal/taxonomy"
	"marine_leads_backend/internal/vendors"
	"marine_leads_backend/platform/config"
	"marine_leads_backend/platform/db"
	"marine_leads_backend/platform/logger"
	"marine_leads_backend/platform/validator"

	"github.com/redis/go-redis/v9"
)

// Infra holds the shared infrastructure handed to the modules. Redis and
// Archive are optional.
type Infra struct {
	Pool    db.Pool
	Bus     events.Bus
	Redis   redis.Cmdable
	Archive storage.Archive
}

// Modules is the set of domain modules both binaries need.
type Modules struct {
	Vendors *vendors.Module
	Routing *routing.Module
	CRMSync *crmsync.Module
	Leads   *leads.Module
}

// References loads the versioned reference tables.
func References(cfg config.ReferenceDataConfig) (routingsvc.References, error) {
	tax, err := taxonomy.NewRegistry(cfg.GetTaxonomyPath())
	if err != nil {
		return routingsvc.References{}, fmt.Errorf("load taxonomy: %w", err)
	}
	fields, err := fieldmap.NewRegistry(cfg.GetFieldMappingPath())
	if err != nil {
		return routingsvc.References{}, fmt.Errorf("load field mappings: %w", err)
	}
	directory, err := geo.NewRegistry(cfg.GetGeoDirectoryPath())
	if err != nil {
		return routingsvc.References{}, fmt.Errorf("load geo directory: %w", err)
	}
	return routingsvc.References{Taxonomy: tax, Fields: fields, Geo: directory}, nil
}

// Build constructs the modules in dependency order. Routing owns the
// performance percentage the vendor matcher reads, and the vendor pool is
// attached to routing afterwards.
func Build(ctx context.Context, cfg *config.Config, infra Infra, val *validator.Validator, log *logger.Logger) (*Modules, error) {
	refs, err := References(cfg)
	if err != nil {
		return nil, err
	}

	routingModule := routing.NewModule(infra.Pool, refs, cfg, val, log)
	vendorsModule := vendors.NewModule(infra.Pool, refs.Taxonomy, refs.Geo, routingModule.Service(), val, log)
	routingModule.Service().SetVendorPool(vendorsModule.Service(), vendorsModule.Matcher())

	crmModule, err := crmsync.NewModule(ctx, infra.Pool, refs.Fields, cfg, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("init crmsync module: %w", err)
	}

	deps := leads.Deps{
		Taxonomy: refs.Taxonomy,
		Mappings: refs.Fields,
		Matcher:  vendorsModule.Matcher(),
		Vendors:  vendorsModule.Service(),
		Syncer:   crmModule.Service(),
		Bus:      infra.Bus,
	}
	if infra.Redis != nil {
		deps.Dedupe = pipeline.NewRedisDeduper(infra.Redis, cfg.GetDedupeWindow())
	}
	if infra.Archive != nil {
		deps.Archive = infra.Archive
	}

	return &Modules{
		Vendors: vendorsModule,
		Routing: routingModule,
		CRMSync: crmModule,
		Leads:   leads.NewModule(infra.Pool, deps, cfg, val, log),
	}, nil
}
