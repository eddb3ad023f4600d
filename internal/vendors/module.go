// Package vendors provides the vendor bounded context module.
package vendors

import (
	apphttp "marine_leads_backend/internal/http"
	"marine_leads_backend/internal/vendors/handler"
	"marine_leads_backend/internal/vendors/repository"
	"marine_leads_backend/internal/vendors/service"
	"marine_leads_backend/platform/db"
	"marine_leads_backend/platform/logger"
	"marine_leads_backend/platform/validator"
)

// Module is the vendors bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
	matcher *service.Matcher
}

// NewModule creates and initializes the vendors module with all its dependencies.
func NewModule(
	pool db.Pool,
	tax service.TaxonomySource,
	geoSource service.GeoSource,
	percentage service.PercentageSource,
	val *validator.Validator,
	log *logger.Logger,
) *Module {
	repo := repository.New(pool)
	svc := service.New(repo, tax)
	matcher := service.NewMatcher(repo, percentage, geoSource, nil, log)

	return &Module{
		handler: handler.New(svc, val),
		service: svc,
		matcher: matcher,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "vendors"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// Matcher returns the vendor matcher used by lead assignment.
func (m *Module) Matcher() *service.Matcher {
	return m.matcher
}

// RegisterRoutes mounts vendor admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin.Group("/vendors"))
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
