package webhook

import (
	"context"
	"net/http"

	"marine_leads_backend/internal/leads/pipeline"
	leadtransport "marine_leads_backend/internal/leads/transport"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/httpkit"
	"marine_leads_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	errInvalidRequest = "invalid request body"
	errValidation     = "validation error"
	errNoFormData     = "no form data received"
	timeFormat        = "2006-01-02T15:04:05Z"
	maxFormMemory     = 1 << 20
	formIDField       = "form_id"
)

// Ingester runs a submission through the lead pipeline.
type Ingester interface {
	Ingest(ctx context.Context, sub pipeline.Submission) (pipeline.Outcome, error)
}

// KeyStore manages webhook API keys.
type KeyStore interface {
	Create(ctx context.Context, tenantID uuid.UUID, name, keyHash, keyPrefix string, allowedDomains []string) (APIKey, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error)
	Revoke(ctx context.Context, keyID, tenantID uuid.UUID) error
}

// Handler handles webhook HTTP requests.
type Handler struct {
	ingester Ingester
	keys     KeyStore
	val      *validator.Validator
}

// NewHandler creates a new webhook handler.
func NewHandler(ingester Ingester, keys KeyStore, val *validator.Validator) *Handler {
	return &Handler{ingester: ingester, keys: keys, val: val}
}

// ---- Lead Submission (public, API-key authenticated) ----

// SubmissionRequest is the JSON form of a submission.
type SubmissionRequest struct {
	FormID string         `json:"formId" validate:"max=200"`
	Fields map[string]any `json:"fields" validate:"required,min=1"`
}

// HandleLeadSubmission runs an inbound submission through the pipeline.
// POST /api/v1/webhook/leads
// Authenticated via X-Webhook-API-Key header (set by middleware).
func (h *Handler) HandleLeadSubmission(c *gin.Context) {
	tenantID, ok := c.Get(ctxTenantKey)
	if !ok {
		httpkit.HandleError(c, apperr.Unauthorized("missing tenant context"))
		return
	}

	sub, ok := h.parseSubmission(c)
	if !ok {
		return
	}
	sub.TenantID = tenantID.(uuid.UUID)
	sub.SourceDomain = c.GetString(ctxSourceDomain)

	out, err := h.ingester.Ingest(c.Request.Context(), sub)
	if httpkit.HandleError(c, err) {
		return
	}

	status := http.StatusCreated
	if out.Duplicate {
		status = http.StatusOK
	}
	httpkit.JSON(c, status, leadtransport.NewIngestResponse(out))
}

// parseSubmission accepts either a JSON envelope or a plain form post. Form
// values are taken verbatim; the form id comes from the query or a form_id field.
func (h *Handler) parseSubmission(c *gin.Context) (pipeline.Submission, bool) {
	if c.ContentType() == "application/json" {
		var req SubmissionRequest
		if !h.bindAndValidate(c, &req) {
			return pipeline.Submission{}, false
		}
		return pipeline.Submission{FormID: req.FormID, Fields: req.Fields}, true
	}

	if err := c.Request.ParseMultipartForm(maxFormMemory); err != nil {
		if err := c.Request.ParseForm(); err != nil {
			httpkit.HandleError(c, apperr.BadRequest("unable to parse form data"))
			return pipeline.Submission{}, false
		}
	}
	fields := collectFormFields(c)
	if len(fields) == 0 {
		httpkit.HandleError(c, apperr.BadRequest(errNoFormData))
		return pipeline.Submission{}, false
	}

	formID := c.Query("formId")
	if formID == "" {
		formID, _ = fields[formIDField].(string)
	}
	return pipeline.Submission{FormID: formID, Fields: fields}, true
}

func collectFormFields(c *gin.Context) map[string]any {
	fields := make(map[string]any)
	if c.Request.MultipartForm != nil {
		for key, values := range c.Request.MultipartForm.Value {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
	}
	for key, values := range c.Request.PostForm {
		if _, exists := fields[key]; !exists && len(values) > 0 {
			fields[key] = values[0]
		}
	}
	return fields
}

// ---- Admin API Key Management (JWT authenticated) ----

// CreateAPIKeyRequest is the request body for creating a new API key.
type CreateAPIKeyRequest struct {
	Name           string   `json:"name" validate:"required,min=1,max=100"`
	AllowedDomains []string `json:"allowedDomains" validate:"max=20,dive,max=200"`
}

// APIKeyResponse is returned when listing or creating API keys.
type APIKeyResponse struct {
	ID             uuid.UUID `json:"id"`
	Name           string    `json:"name"`
	KeyPrefix      string    `json:"keyPrefix"`
	AllowedDomains []string  `json:"allowedDomains"`
	IsActive       bool      `json:"isActive"`
	CreatedAt      string    `json:"createdAt"`
}

// CreateAPIKeyResponse includes the plaintext key (shown only once).
type CreateAPIKeyResponse struct {
	APIKeyResponse
	Key string `json:"key"`
}

// HandleCreateAPIKey creates a new webhook API key.
// POST /api/v1/admin/webhook/keys
func (h *Handler) HandleCreateAPIKey(c *gin.Context) {
	var req CreateAPIKeyRequest
	if !h.bindAndValidate(c, &req) {
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	plaintext, hash, prefix, err := GenerateAPIKey()
	if err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to generate API key", nil)
		return
	}

	domains := req.AllowedDomains
	if domains == nil {
		domains = []string{}
	}

	key, err := h.keys.Create(c.Request.Context(), identity.TenantID(), req.Name, hash, prefix, domains)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.JSON(c, http.StatusCreated, CreateAPIKeyResponse{
		APIKeyResponse: toAPIKeyResponse(key),
		Key:            plaintext,
	})
}

// HandleListAPIKeys lists the tenant's webhook API keys.
// GET /api/v1/admin/webhook/keys
func (h *Handler) HandleListAPIKeys(c *gin.Context) {
	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	keys, err := h.keys.ListByTenant(c.Request.Context(), identity.TenantID())
	if httpkit.HandleError(c, err) {
		return
	}

	result := make([]APIKeyResponse, len(keys))
	for i, k := range keys {
		result[i] = toAPIKeyResponse(k)
	}
	httpkit.OK(c, result)
}

// HandleRevokeAPIKey deactivates a webhook API key.
// DELETE /api/v1/admin/webhook/keys/:keyId
func (h *Handler) HandleRevokeAPIKey(c *gin.Context) {
	keyID, err := uuid.Parse(c.Param("keyId"))
	if err != nil {
		httpkit.HandleError(c, apperr.BadRequest("invalid key ID"))
		return
	}

	identity := httpkit.MustGetIdentity(c)
	if identity == nil {
		return
	}

	if err := h.keys.Revoke(c.Request.Context(), keyID, identity.TenantID()); httpkit.HandleError(c, err) {
		return
	}
	httpkit.OK(c, gin.H{"message": "API key revoked"})
}

func toAPIKeyResponse(key APIKey) APIKeyResponse {
	return APIKeyResponse{
		ID:             key.ID,
		Name:           key.Name,
		KeyPrefix:      key.KeyPrefix,
		AllowedDomains: key.AllowedDomains,
		IsActive:       key.IsActive,
		CreatedAt:      key.CreatedAt.UTC().Format(timeFormat),
	}
}

func (h *Handler) bindAndValidate(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errInvalidRequest, err.Error())
		return false
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, errValidation, err.Error())
		return false
	}
	return true
}
