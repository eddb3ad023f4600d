// Package repository provides vendor persistence.
package repository

import (
	"context"
	"errors"
	"time"

	"marine_leads_backend/internal/vendors/domain"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const vendorNotFoundMsg = "vendor not found"

const vendorColumns = `
	id, tenant_id, name, contact_name, contact_email, contact_phone,
	capabilities, coverage_type, coverage_zips, coverage_regions,
	performance_score, taking_new_work, active, last_lead_assigned,
	leads_received, leads_closed, revision`

// Repository provides database operations for vendors.
type Repository struct {
	pool db.Pool
}

// New creates a new vendors repository.
func New(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// Counts summarises a tenant's vendor pool.
type Counts struct {
	Total         int `json:"total"`
	TakingNewWork int `json:"takingNewWork"`
}

// ListCandidates returns active vendors taking new work that offer category.
// Geographic filtering is left to the caller.
func (r *Repository) ListCandidates(ctx context.Context, tenantID uuid.UUID, category string) ([]domain.Vendor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+vendorColumns+`
		FROM vendors
		WHERE tenant_id = $1
			AND $2 = ANY(capabilities)
			AND active = true
			AND taking_new_work = true
		ORDER BY id
	`, tenantID, category)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVendors(rows)
}

// List returns every vendor of a tenant ordered by name.
func (r *Repository) List(ctx context.Context, tenantID uuid.UUID) ([]domain.Vendor, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+vendorColumns+`
		FROM vendors
		WHERE tenant_id = $1
		ORDER BY name, id
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectVendors(rows)
}

// Get returns one vendor of a tenant.
func (r *Repository) Get(ctx context.Context, tenantID, vendorID uuid.UUID) (domain.Vendor, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+vendorColumns+`
		FROM vendors
		WHERE tenant_id = $1 AND id = $2
	`, tenantID, vendorID)
	v, err := scanVendor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vendor{}, apperr.NotFound(vendorNotFoundMsg)
	}
	return v, err
}

// Create inserts a vendor.
func (r *Repository) Create(ctx context.Context, v domain.Vendor) (domain.Vendor, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO vendors (
			id, tenant_id, name, contact_name, contact_email, contact_phone,
			capabilities, coverage_type, coverage_zips, coverage_regions,
			performance_score, taking_new_work, active
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		RETURNING `+vendorColumns,
		v.ID, v.TenantID, v.Name, v.Contact.Name, v.Contact.Email, v.Contact.Phone,
		v.Capabilities, string(v.CoverageType), v.CoverageZips, v.CoverageRegions,
		v.PerformanceScore, v.TakingNewWork, v.Active,
	)
	return scanVendor(row)
}

// SetAvailability toggles taking_new_work. The revision is bumped so that an
// in-flight assignment against the old state fails its compare-and-swap.
func (r *Repository) SetAvailability(ctx context.Context, tenantID, vendorID uuid.UUID, takingNewWork bool) (domain.Vendor, error) {
	row := r.pool.QueryRow(ctx, `
		UPDATE vendors
		SET taking_new_work = $3, revision = revision + 1, updated_at = now()
		WHERE tenant_id = $1 AND id = $2
		RETURNING `+vendorColumns,
		tenantID, vendorID, takingNewWork,
	)
	v, err := scanVendor(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Vendor{}, apperr.NotFound(vendorNotFoundMsg)
	}
	return v, err
}

// Counts returns the number of vendors and of vendors taking new work.
func (r *Repository) Counts(ctx context.Context, tenantID uuid.UUID) (Counts, error) {
	var c Counts
	err := r.pool.QueryRow(ctx, `
		SELECT count(*), count(*) FILTER (WHERE active AND taking_new_work)
		FROM vendors
		WHERE tenant_id = $1
	`, tenantID).Scan(&c.Total, &c.TakingNewWork)
	return c, err
}

// CapabilityCounts returns, per category, how many vendors can currently take work.
func (r *Repository) CapabilityCounts(ctx context.Context, tenantID uuid.UUID) (map[string]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT cap, count(*)
		FROM vendors, unnest(capabilities) AS cap
		WHERE tenant_id = $1 AND active AND taking_new_work
		GROUP BY cap
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var category string
		var n int
		if err := rows.Scan(&category, &n); err != nil {
			return nil, err
		}
		counts[category] = n
	}
	return counts, rows.Err()
}

func collectVendors(rows pgx.Rows) ([]domain.Vendor, error) {
	vendors := make([]domain.Vendor, 0)
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, err
		}
		vendors = append(vendors, v)
	}
	return vendors, rows.Err()
}

func scanVendor(row pgx.Row) (domain.Vendor, error) {
	var (
		v            domain.Vendor
		coverageType string
		lastAssigned *time.Time
	)
	err := row.Scan(
		&v.ID, &v.TenantID, &v.Name, &v.Contact.Name, &v.Contact.Email, &v.Contact.Phone,
		&v.Capabilities, &coverageType, &v.CoverageZips, &v.CoverageRegions,
		&v.PerformanceScore, &v.TakingNewWork, &v.Active, &lastAssigned,
		&v.LeadsReceived, &v.LeadsClosed, &v.Revision,
	)
	if err != nil {
		return domain.Vendor{}, err
	}
	v.CoverageType = domain.CoverageType(coverageType)
	v.LastLeadAssigned = lastAssigned
	return v, nil
}
