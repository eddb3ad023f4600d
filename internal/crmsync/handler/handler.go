package handler

import (
	"net/http"

	"marine_leads_backend/internal/crmsync/service"
	"marine_leads_backend/internal/crmsync/transport"
	"marine_leads_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const msgInvalidLeadID = "invalid lead id"

// Handler serves the sync attempt review endpoint.
type Handler struct {
	svc *service.Service
}

// New creates a new sync handler.
func New(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers sync routes on the admin group.
func (h *Handler) RegisterRoutes(admin *gin.RouterGroup) {
	admin.GET("/leads/:leadId/sync-attempts", h.ListAttempts)
}

func (h *Handler) ListAttempts(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("leadId"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, msgInvalidLeadID, nil)
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	items, err := h.svc.Attempts(c.Request.Context(), identity.TenantID(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, transport.ToSyncAttempts(items))
}
