// Package repository persists per-tenant routing settings.
package repository

import (
	"context"
	"errors"

	"marine_leads_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ErrNotFound means the tenant has no stored settings.
var ErrNotFound = errors.New("routing settings not found")

// Repository provides data access for routing settings.
type Repository struct {
	pool db.Pool
}

// New creates a new routing settings repository.
func New(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetPerformancePercentage returns the stored percentage for a tenant.
func (r *Repository) GetPerformancePercentage(ctx context.Context, tenantID uuid.UUID) (int, error) {
	var p int
	err := r.pool.QueryRow(ctx, `
		SELECT performance_percentage FROM routing_settings WHERE tenant_id = $1
	`, tenantID).Scan(&p)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, ErrNotFound
	}
	return p, err
}

// UpsertPerformancePercentage stores the percentage for a tenant.
func (r *Repository) UpsertPerformancePercentage(ctx context.Context, tenantID uuid.UUID, percentage int) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO routing_settings (tenant_id, performance_percentage, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (tenant_id) DO UPDATE
		SET performance_percentage = EXCLUDED.performance_percentage, updated_at = now()
	`, tenantID, percentage)
	return err
}
