package handler

import (
	"net/http"

	"marine_leads_backend/internal/vendors/service"
	"marine_leads_backend/internal/vendors/transport"
	"marine_leads_backend/platform/httpkit"
	"marine_leads_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidVendorID  = "invalid vendor id"
)

// Handler handles HTTP requests for vendors.
type Handler struct {
	svc *service.Service
	val *validator.Validator
}

// New creates a new vendors handler.
func New(svc *service.Service, val *validator.Validator) *Handler {
	return &Handler{svc: svc, val: val}
}

// RegisterRoutes registers vendor routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("", h.List)
	rg.POST("", h.Create)
	rg.PATCH("/:vendorId/availability", h.SetAvailability)
}

func (h *Handler) List(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	vendors, err := h.svc.List(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"items": vendors})
}

func (h *Handler) Create(c *gin.Context) {
	var req transport.CreateVendorRequest
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

	resp, err := h.svc.Create(c.Request.Context(), identity.TenantID(), req)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.JSON(c, http.StatusCreated, resp)
}

func (h *Handler) SetAvailability(c *gin.Context) {
	vendorID, err := uuid.Parse(c.Param("vendorId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidVendorID, nil)
		return
	}

	var req transport.UpdateAvailabilityRequest
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

	resp, err := h.svc.SetAvailability(c.Request.Context(), identity.TenantID(), vendorID, *req.TakingNewWork)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, resp)
}
