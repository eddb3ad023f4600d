package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"

	"marine_leads_backend/platform/logger"
)

// DryRun accepts every call without contacting a CRM. It is used when no
// CRM is configured so the pipeline still completes in development.
type DryRun struct {
	log *logger.Logger
}

// NewDryRun creates a dry-run CRM.
func NewDryRun(log *logger.Logger) *DryRun {
	return &DryRun{log: log}
}

// Do implements CRM.
func (d *DryRun) Do(_ context.Context, call Call) (Reply, error) {
	sum := sha256.Sum256([]byte(call.IdempotencyKey))
	id := "dry-run-" + hex.EncodeToString(sum[:6])
	body, _ := json.Marshal(map[string]any{
		"id":          id,
		"contact":     map[string]string{"id": id},
		"opportunity": map[string]string{"id": id},
	})
	d.log.Info("crm dry run", "operation", call.Operation, "endpoint", call.Endpoint)
	return Reply{StatusCode: http.StatusOK, Body: body}, nil
}
