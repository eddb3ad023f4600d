package webhook

import (
	"context"
	"strings"
	"testing"
	"time"

	"marine_leads_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var apiKeyRowColumns = []string{"id", "tenant_id", "name", "key_hash", "key_prefix", "allowed_domains", "is_active", "created_at", "updated_at"}

func TestGenerateAPIKey(t *testing.T) {
	plaintext, hash, prefix, err := GenerateAPIKey()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, "whk_"))
	assert.Len(t, plaintext, 68)
	assert.Equal(t, plaintext[:12], prefix)
	assert.Equal(t, HashKey(plaintext), hash)
}

func TestGetByHash(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id, tenant := uuid.New(), uuid.New()
	now := time.Now()
	mock.ExpectQuery(`SELECT .* FROM webhook_api_keys\s+WHERE key_hash = \$1 AND is_active = true`).
		WithArgs("abc").
		WillReturnRows(pgxmock.NewRows(apiKeyRowColumns).
			AddRow(id, tenant, "site", "abc", "whk_01234567", []string{"miamiboats.example"}, true, now, now))

	key, err := NewRepository(mock).GetByHash(context.Background(), "abc")
	require.NoError(t, err)
	assert.Equal(t, tenant, key.TenantID)
	assert.Equal(t, []string{"miamiboats.example"}, key.AllowedDomains)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByHashNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectQuery(`FROM webhook_api_keys`).WithArgs("missing").WillReturnError(pgx.ErrNoRows)

	_, err = NewRepository(mock).GetByHash(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrAPIKeyNotFound)
}

func TestRevokeUnknownKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	keyID, tenant := uuid.New(), uuid.New()
	mock.ExpectExec(`UPDATE webhook_api_keys SET is_active = false`).
		WithArgs(keyID, tenant).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = NewRepository(mock).Revoke(context.Background(), keyID, tenant)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
