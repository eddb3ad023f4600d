// Package routing provides the routing configuration bounded context module.
package routing

import (
	apphttp "marine_leads_backend/internal/http"
	"marine_leads_backend/internal/routing/handler"
	"marine_leads_backend/internal/routing/repository"
	"marine_leads_backend/internal/routing/service"
	"marine_leads_backend/platform/config"
	"marine_leads_backend/platform/db"
	"marine_leads_backend/platform/logger"
	"marine_leads_backend/platform/validator"
)

// Module is the routing bounded context module implementing http.Module.
type Module struct {
	handler *handler.Handler
	service *service.Service
}

// NewModule creates the routing module. The vendor pool is attached later
// with Service().SetVendorPool.
func NewModule(pool db.Pool, refs service.References, cfg config.RoutingConfig, val *validator.Validator, log *logger.Logger) *Module {
	svc := service.New(repository.New(pool), refs, cfg.GetDefaultPerformancePercentage(), log)
	return &Module{handler: handler.New(svc, val), service: svc}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "routing"
}

// Service returns the service layer for external use.
func (m *Module) Service() *service.Service {
	return m.service
}

// RegisterRoutes mounts routing admin routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Admin)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
