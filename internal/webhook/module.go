package webhook

import (
	apphttp "marine_leads_backend/internal/http"
	"marine_leads_backend/platform/db"
	"marine_leads_backend/platform/validator"
)

// Module is the webhook bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	repo    *Repository
}

// NewModule creates the webhook module. Submissions are handed to ingester.
func NewModule(pool db.Pool, ingester Ingester, val *validator.Validator) *Module {
	repo := NewRepository(pool)
	return &Module{
		handler: NewHandler(ingester, repo, val),
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "webhook"
}

// RegisterRoutes mounts webhook routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	// Public webhook endpoint (API key auth, no JWT)
	webhookGroup := ctx.V1.Group("/webhook")
	webhookGroup.Use(APIKeyAuthMiddleware(m.repo))
	webhookGroup.POST("/leads", m.handler.HandleLeadSubmission)

	// Admin API key management (JWT auth + admin role)
	adminGroup := ctx.Admin.Group("/webhook/keys")
	adminGroup.POST("", m.handler.HandleCreateAPIKey)
	adminGroup.GET("", m.handler.HandleListAPIKeys)
	adminGroup.DELETE("/:keyId", m.handler.HandleRevokeAPIKey)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
