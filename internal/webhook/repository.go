// Package webhook accepts lead submissions from tenant websites and manages
// the API keys those sites authenticate with.
package webhook

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrAPIKeyNotFound = errors.New("webhook API key not found")

const apiKeyColumns = `id, tenant_id, name, key_hash, key_prefix, allowed_domains, is_active, created_at, updated_at`

// APIKey represents a webhook API key stored in the database.
type APIKey struct {
	ID             uuid.UUID
	TenantID       uuid.UUID
	Name           string
	KeyHash        string
	KeyPrefix      string
	AllowedDomains []string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Repository provides data access for webhook API keys.
type Repository struct {
	pool db.Pool
}

// NewRepository creates a new webhook repository.
func NewRepository(pool db.Pool) *Repository {
	return &Repository{pool: pool}
}

// GenerateAPIKey creates a new random API key and returns the plaintext key and its hash.
// The plaintext key is returned only once; only the hash is stored.
func GenerateAPIKey() (plaintext string, hash string, prefix string, err error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", "", "", err
	}
	plaintext = "whk_" + hex.EncodeToString(buf)
	prefix = plaintext[:12] // "whk_" + 8 hex chars
	return plaintext, HashKey(plaintext), prefix, nil
}

// HashKey hashes a plaintext API key for lookup.
func HashKey(plaintext string) string {
	h := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(h[:])
}

// Create stores a new API key for a tenant.
func (r *Repository) Create(ctx context.Context, tenantID uuid.UUID, name, keyHash, keyPrefix string, allowedDomains []string) (APIKey, error) {
	row := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_api_keys (tenant_id, name, key_hash, key_prefix, allowed_domains)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+apiKeyColumns, tenantID, name, keyHash, keyPrefix, allowedDomains)
	return scanAPIKey(row)
}

// GetByHash retrieves an active API key by its hash.
func (r *Repository) GetByHash(ctx context.Context, keyHash string) (APIKey, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+apiKeyColumns+`
		FROM webhook_api_keys
		WHERE key_hash = $1 AND is_active = true
	`, keyHash)
	key, err := scanAPIKey(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return APIKey{}, ErrAPIKeyNotFound
	}
	return key, err
}

// ListByTenant returns all API keys of a tenant, newest first.
func (r *Repository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]APIKey, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+apiKeyColumns+`
		FROM webhook_api_keys
		WHERE tenant_id = $1
		ORDER BY created_at DESC
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	keys := make([]APIKey, 0)
	for rows.Next() {
		key, err := scanAPIKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// Revoke deactivates an API key.
func (r *Repository) Revoke(ctx context.Context, keyID, tenantID uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE webhook_api_keys SET is_active = false, updated_at = now()
		WHERE id = $1 AND tenant_id = $2
	`, keyID, tenantID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("API key not found")
	}
	return nil
}

func scanAPIKey(row pgx.Row) (APIKey, error) {
	var key APIKey
	err := row.Scan(
		&key.ID, &key.TenantID, &key.Name, &key.KeyHash, &key.KeyPrefix,
		&key.AllowedDomains, &key.IsActive, &key.CreatedAt, &key.UpdatedAt,
	)
	return key, err
}
