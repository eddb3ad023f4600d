package handler

import (
	"net/http"

	"marine_leads_backend/internal/routing/service"
	"marine_leads_backend/internal/routing/transport"
	"marine_leads_backend/platform/httpkit"
	"marine_leads_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
)

// Handler serves the routing administration endpoints.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new routing handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers routing admin routes on the admin group.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/routing/config", h.GetConfig)
	admin.PUT("/routing/config", h.UpdateConfig)
	admin.POST("/routing/match-test", h.MatchTest)
	admin.GET("/field-mappings", h.FieldMappings)
	admin.POST("/reference/reload", h.Reload)
}

func (h *Handler) GetConfig(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.Config(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) UpdateConfig(c *gin.Context) {
	var req transport.UpdateConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	ctx := c.Request.Context()
	if err := h.svc.SetPerformancePercentage(ctx, identity.TenantID(), *req.PerformancePercentage); httpkit.HandleError(c, err) {
		return
	}
	resp, err := h.svc.Config(ctx, identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) MatchTest(c *gin.Context) {
	var req transport.MatchTestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidRequest, nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgValidationFailed, err.Error())
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	resp, err := h.svc.MatchTest(c.Request.Context(), identity.TenantID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}

func (h *Handler) FieldMappings(c *gin.Context) {
	httpkit.OK(c, h.svc.FieldMappings())
}

func (h *Handler) Reload(c *gin.Context) {
	resp, err := h.svc.ReloadReferences(c.Request.Context())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}
