// Package domain holds the CRM sync attempt log model.
package domain

import (
	"time"

	"marine_leads_backend/internal/crmsync/advisor"

	"github.com/google/uuid"
)

// Operations performed against the CRM.
const (
	OperationUpsertContact     = "upsert_contact"
	OperationCreateOpportunity = "create_opportunity"
)

// Attempt is one outbound CRM call. Attempts are append-only and numbered
// per lead across all operations.
type Attempt struct {
	ID                      int64
	LeadID                  uuid.UUID
	AttemptNumber           int
	Operation               string
	Endpoint                string
	Payload                 map[string]any
	ResponseStatus          int
	ErrorText               string
	CorrectedPayloadApplied bool
	Diagnosis               *advisor.Diagnosis
	AttemptedAt             time.Time
}

// Succeeded reports whether the CRM accepted the call.
func (a Attempt) Succeeded() bool {
	return a.ResponseStatus >= 200 && a.ResponseStatus < 300
}
