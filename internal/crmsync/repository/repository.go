// Package repository persists the CRM sync attempt log.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"marine_leads_backend/internal/crmsync/advisor"
	"marine_leads_backend/internal/crmsync/domain"
	"marine_leads_backend/platform/db"

	"github.com/google/uuid"
)

// Repository stores sync attempts.
type Repository struct {
	pool db.Pool
}

// New creates a sync attempt repository.
func New(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends one attempt.
func (r *Repository) Record(ctx context.Context, a domain.Attempt) error {
	payload, err := json.Marshal(a.Payload)
	if err != nil {
		return fmt.Errorf("encode attempt payload: %w", err)
	}
	var diagnosis []byte
	if a.Diagnosis != nil {
		if diagnosis, err = json.Marshal(a.Diagnosis); err != nil {
			return fmt.Errorf("encode attempt diagnosis: %w", err)
		}
	}

	_, err = r.pool.Exec(ctx, `
		INSERT INTO sync_attempts (
			id, lead_id, attempt_number, operation, endpoint, payload, response_status,
			error_text, corrected_payload_applied, diagnosis, attempted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, a.ID, a.LeadID, a.AttemptNumber, a.Operation, a.Endpoint, payload, a.ResponseStatus,
		a.ErrorText, a.CorrectedPayloadApplied, diagnosis, a.AttemptedAt)
	return err
}

// LatestAttemptNumber returns the highest attempt number logged for a lead,
// or zero.
func (r *Repository) LatestAttemptNumber(ctx context.Context, leadID uuid.UUID) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(attempt_number), 0) FROM sync_attempts WHERE lead_id = $1
	`, leadID).Scan(&n)
	return n, err
}

// ListByLead returns a tenant's lead attempts in order.
func (r *Repository) ListByLead(ctx context.Context, tenantID, leadID uuid.UUID) ([]domain.Attempt, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.id, s.lead_id, s.attempt_number, s.operation, s.endpoint, s.payload,
			s.response_status, s.error_text, s.corrected_payload_applied, s.diagnosis, s.attempted_at
		FROM sync_attempts s
		JOIN leads l ON l.id = s.lead_id
		WHERE l.tenant_id = $1 AND s.lead_id = $2
		ORDER BY s.attempt_number ASC
	`, tenantID, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.Attempt, 0)
	for rows.Next() {
		var (
			a         domain.Attempt
			payload   []byte
			diagnosis []byte
		)
		if err := rows.Scan(&a.ID, &a.LeadID, &a.AttemptNumber, &a.Operation, &a.Endpoint, &payload,
			&a.ResponseStatus, &a.ErrorText, &a.CorrectedPayloadApplied, &diagnosis, &a.AttemptedAt); err != nil {
			return nil, err
		}
		if len(payload) > 0 {
			if err := json.Unmarshal(payload, &a.Payload); err != nil {
				return nil, fmt.Errorf("decode attempt payload: %w", err)
			}
		}
		if len(diagnosis) > 0 {
			var d advisor.Diagnosis
			if err := json.Unmarshal(diagnosis, &d); err != nil {
				return nil, fmt.Errorf("decode attempt diagnosis: %w", err)
			}
			a.Diagnosis = &d
		}
		items = append(items, a)
	}
	return items, rows.Err()
}
