package handler

import (
	"context"
	"net/http"

	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/internal/leads/pipeline"
	"marine_leads_backend/internal/leads/transport"
	"marine_leads_backend/platform/httpkit"
	"marine_leads_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	msgInvalidRequest   = "invalid request"
	msgValidationFailed = "validation failed"
	msgInvalidLeadID    = "invalid lead id"
)

// LeadReader is the read side of the lead store.
type LeadReader interface {
	Get(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error)
	ListAssignments(ctx context.Context, tenantID, leadID uuid.UUID) ([]domain.AssignmentRecord, error)
}

// Handler serves lead administration endpoints.
type Handler struct {
	pipeline *pipeline.Pipeline
	leads    LeadReader
	val      *validator.Validator
}

// New creates a new leads handler.
func New(p *pipeline.Pipeline, leads LeadReader, val *validator.Validator) *Handler {
	return &Handler{pipeline: p, leads: leads, val: val}
}

// RegisterRoutes registers lead routes on the admin group.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/leads/:leadId", h.Get)
	admin.GET("/leads/:leadId/assignments", h.ListAssignments)
	admin.POST("/leads/:leadId/reassign", h.Reassign)
	admin.POST("/leads/:leadId/resume", h.Resume)
}

func (h *Handler) Get(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	lead, err := h.leads.Get(c.Request.Context(), identity.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewLeadResponse(lead))
}

func (h *Handler) ListAssignments(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	records, err := h.leads.ListAssignments(c.Request.Context(), identity.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	items := make([]transport.AssignmentRecordResponse, 0, len(records))
	for _, r := range records {
		items = append(items, transport.AssignmentRecordResponse{
			ID:         r.ID,
			VendorID:   r.VendorID,
			Method:     r.Method,
			AssignedAt: r.AssignedAt,
		})
	}
	httpkit.OK(c, gin.H{"items": items})
}

// Reassign releases the lead's vendor and routes it again, or to the vendor
// named in the request.
func (h *Handler) Reassign(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}

	var req transport.ReassignRequest
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

	out, err := h.pipeline.Reassign(c.Request.Context(), identity.TenantID(), leadID, req.Reason, req.VendorID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewIngestResponse(out))
}

func (h *Handler) Resume(c *gin.Context) {
	leadID, ok := parseLeadID(c)
	if !ok {
		return
	}
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	out, err := h.pipeline.Resume(c.Request.Context(), identity.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.NewIngestResponse(out))
}

func parseLeadID(c *gin.Context) (uuid.UUID, bool) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return uuid.Nil, false
	}
	return leadID, true
}
