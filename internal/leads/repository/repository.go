// Package repository provides lead persistence, including the transactional
// assignment commit.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const leadNotFoundMsg = "lead not found"

const leadColumns = `
	id, tenant_id, form_id, source_domain, status, failure_reason, failure_detail,
	attributes, raw_payload, service_category, subcategories, classification_confidence,
	mapping_errors, assigned_vendor_id, routing_method, assigned_at, crm_contact_id,
	first_synced_at, created_at, updated_at`

// Repository provides database operations for leads.
type Repository struct {
	pool db.Pool
}

// New creates a new leads repository.
func New(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Create inserts a new lead with its raw payload.
func (r *Repository) Create(ctx context.Context, l domain.Lead) error {
	attrs, raw, mappingErrs, err := encode(l)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO leads (
			id, tenant_id, form_id, source_domain, status, failure_reason, failure_detail,
			attributes, raw_payload, mapping_errors, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, l.ID, l.TenantID, l.FormID, l.SourceDomain, string(l.Status), nullableReason(l.FailureReason),
		l.FailureDetail, attrs, raw, mappingErrs, l.CreatedAt)
	return err
}

// Save persists pipeline progress. Assignment columns are owned by
// CommitAssignment and Reassign and are not written here.
func (r *Repository) Save(ctx context.Context, l domain.Lead) error {
	attrs, _, mappingErrs, err := encode(l)
	if err != nil {
		return err
	}
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET status = $3, failure_reason = $4, failure_detail = $5, attributes = $6,
			service_category = $7, subcategories = $8, classification_confidence = $9,
			mapping_errors = $10, crm_contact_id = $11, first_synced_at = $12, updated_at = $13
		WHERE tenant_id = $1 AND id = $2
	`, l.TenantID, l.ID, string(l.Status), nullableReason(l.FailureReason), l.FailureDetail, attrs,
		l.ServiceCategory, nonNil(l.Subcategories), l.ClassificationConfidence, mappingErrs,
		l.CRMContactID, l.FirstSyncedAt, l.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(leadNotFoundMsg)
	}
	return nil
}

// Get returns one lead of a tenant.
func (r *Repository) Get(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+`
		FROM leads
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, leadID)
	l, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, apperr.NotFound(leadNotFoundMsg)
	}
	return l, err
}

// TransitionStatus moves a lead from one status to another. It fails with
// domain.ErrStaleLead when the lead is no longer in from.
func (r *Repository) TransitionStatus(ctx context.Context, tenantID, leadID uuid.UUID, from, to domain.Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET status = $4, failure_reason = NULL, failure_detail = '', updated_at = now()
		WHERE tenant_id = $1 AND id = $2 AND status = $3
	`, tenantID, leadID, string(from), string(to))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleLead
	}
	return nil
}

// Fail marks a lead failed, keeping everything else.
func (r *Repository) Fail(ctx context.Context, tenantID, leadID uuid.UUID, reason domain.FailureReason, detail string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET status = 'failed', failure_reason = $3, failure_detail = $4, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, leadID, string(reason), detail)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound(leadNotFoundMsg)
	}
	return nil
}

// Commit is one assignment to apply atomically.
type Commit struct {
	TenantID       uuid.UUID
	LeadID         uuid.UUID
	VendorID       uuid.UUID
	VendorRevision int64
	Method         string
	RecordID       int64
	At             time.Time
}

// CommitAssignment moves the lead from matched to assigned, advances the
// vendor's load state and appends the assignment record in one transaction.
// The vendor update is a compare-and-swap on revision; a lost race returns
// domain.ErrVendorConflict and nothing is written.
func (r *Repository) CommitAssignment(ctx context.Context, c Commit) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET status = 'assigned', assigned_vendor_id = $3, routing_method = $4, assigned_at = $5,
			failure_reason = NULL, failure_detail = '', updated_at = $5
		WHERE tenant_id = $1 AND id = $2 AND status = 'matched'
	`, c.TenantID, c.LeadID, c.VendorID, c.Method, c.At)
	if err != nil {
		return fmt.Errorf("assign lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleLead
	}

	if err := advanceVendor(ctx, tx, c); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// Reassignment moves an assigned lead from its current vendor to another.
type Reassignment struct {
	Commit
	PriorVendorID  uuid.UUID
	Reason         string
	ReassignmentID int64
}

// Reassign swaps the lead's vendor in one transaction: the lead is
// re-pointed only while it still holds PriorVendorID, the new vendor is
// advanced with the same compare-and-swap as CommitAssignment, and the
// release is logged. On domain.ErrVendorConflict or domain.ErrStaleLead
// nothing is written and the prior assignment stands.
func (r *Repository) Reassign(ctx context.Context, ra Reassignment) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE leads
		SET status = 'assigned', assigned_vendor_id = $3, routing_method = $4, assigned_at = $5,
			failure_reason = NULL, failure_detail = '', updated_at = $5
		WHERE tenant_id = $1 AND id = $2 AND assigned_vendor_id = $6
			AND (status IN ('assigned', 'synced') OR (status = 'failed' AND failure_reason = 'sync'))
	`, ra.TenantID, ra.LeadID, ra.VendorID, ra.Method, ra.At, ra.PriorVendorID)
	if err != nil {
		return fmt.Errorf("reassign lead: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrStaleLead
	}

	if err := advanceVendor(ctx, tx, ra.Commit); err != nil {
		return err
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO lead_reassignments (id, lead_id, prior_vendor_id, reason, released_at)
		VALUES ($1, $2, $3, $4, $5)
	`, ra.ReassignmentID, ra.LeadID, ra.PriorVendorID, ra.Reason, ra.At); err != nil {
		return fmt.Errorf("log reassignment: %w", err)
	}

	return tx.Commit(ctx)
}

// advanceVendor applies the vendor compare-and-swap and appends the
// assignment record inside tx.
func advanceVendor(ctx context.Context, tx pgx.Tx, c Commit) error {
	tag, err := tx.Exec(ctx, `
		UPDATE vendors
		SET last_lead_assigned = $4, leads_received = leads_received + 1,
			revision = revision + 1, updated_at = $4
		WHERE tenant_id = $1 AND id = $2 AND revision = $3
			AND active = true AND taking_new_work = true
	`, c.TenantID, c.VendorID, c.VendorRevision, c.At)
	if err != nil {
		return fmt.Errorf("update vendor load: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVendorConflict
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO assignment_records (id, lead_id, vendor_id, method, assigned_at)
		VALUES ($1, $2, $3, $4, $5)
	`, c.RecordID, c.LeadID, c.VendorID, c.Method, c.At); err != nil {
		return fmt.Errorf("append assignment record: %w", err)
	}
	return nil
}

// ListAssignments returns a lead's assignment history, newest first.
func (r *Repository) ListAssignments(ctx context.Context, tenantID, leadID uuid.UUID) ([]domain.AssignmentRecord, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT a.id, a.lead_id, a.vendor_id, a.method, a.assigned_at
		FROM assignment_records a
		JOIN leads l ON l.id = a.lead_id
		WHERE l.tenant_id = $1 AND a.lead_id = $2
		ORDER BY a.assigned_at DESC, a.id DESC
	`, tenantID, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]domain.AssignmentRecord, 0)
	for rows.Next() {
		var rec domain.AssignmentRecord
		if err := rows.Scan(&rec.ID, &rec.LeadID, &rec.VendorID, &rec.Method, &rec.AssignedAt); err != nil {
			return nil, err
		}
		items = append(items, rec)
	}
	return items, rows.Err()
}

// StaleLead identifies a lead the reconciler should look at.
type StaleLead struct {
	ID       uuid.UUID
	TenantID uuid.UUID
	Status   domain.Status
}

// ListStale returns leads stuck in a non-terminal state since before cutoff,
// plus internal failures. Routing failures are left to the reroute task.
func (r *Repository) ListStale(ctx context.Context, cutoff time.Time, limit int) ([]StaleLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, tenant_id, status
		FROM leads
		WHERE updated_at < $1
			AND (
				status IN ('received', 'classified', 'matched', 'assigned')
				OR (status = 'failed' AND failure_reason = 'internal')
			)
		ORDER BY updated_at ASC
		LIMIT $2
	`, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]StaleLead, 0)
	for rows.Next() {
		var item StaleLead
		var status string
		if err := rows.Scan(&item.ID, &item.TenantID, &status); err != nil {
			return nil, err
		}
		item.Status = domain.Status(status)
		items = append(items, item)
	}
	return items, rows.Err()
}

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		l             domain.Lead
		status        string
		reason        *string
		attrs         []byte
		raw           []byte
		mappingErrors []byte
	)
	if err := row.Scan(
		&l.ID, &l.TenantID, &l.FormID, &l.SourceDomain, &status, &reason, &l.FailureDetail,
		&attrs, &raw, &l.ServiceCategory, &l.Subcategories, &l.ClassificationConfidence,
		&mappingErrors, &l.AssignedVendorID, &l.RoutingMethod, &l.AssignedAt, &l.CRMContactID,
		&l.FirstSyncedAt, &l.CreatedAt, &l.UpdatedAt,
	); err != nil {
		return domain.Lead{}, err
	}

	l.Status = domain.Status(status)
	if reason != nil {
		l.FailureReason = domain.FailureReason(*reason)
	}
	if err := json.Unmarshal(attrs, &l.Attributes); err != nil {
		return domain.Lead{}, fmt.Errorf("decode attributes: %w", err)
	}
	if err := json.Unmarshal(raw, &l.RawPayload); err != nil {
		return domain.Lead{}, fmt.Errorf("decode raw payload: %w", err)
	}
	if len(mappingErrors) > 0 {
		if err := json.Unmarshal(mappingErrors, &l.MappingErrors); err != nil {
			return domain.Lead{}, fmt.Errorf("decode mapping errors: %w", err)
		}
	}
	return l, nil
}

func encode(l domain.Lead) (attrs, raw, mappingErrs []byte, err error) {
	if attrs, err = json.Marshal(l.Attributes); err != nil {
		return nil, nil, nil, fmt.Errorf("encode attributes: %w", err)
	}
	payload := l.RawPayload
	if payload == nil {
		payload = map[string]any{}
	}
	if raw, err = json.Marshal(payload); err != nil {
		return nil, nil, nil, fmt.Errorf("encode raw payload: %w", err)
	}
	errs := l.MappingErrors
	if errs == nil {
		errs = []fieldmap.CoercionError{}
	}
	if mappingErrs, err = json.Marshal(errs); err != nil {
		return nil, nil, nil, fmt.Errorf("encode mapping errors: %w", err)
	}
	return attrs, raw, mappingErrs, nil
}

func nullableReason(r domain.FailureReason) *string {
	if r == "" {
		return nil
	}
	s := string(r)
	return &s
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
