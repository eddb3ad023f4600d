package repository

import (
	"context"
	"testing"
	"time"

	"marine_leads_backend/internal/crmsync/advisor"
	"marine_leads_backend/internal/crmsync/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordStoresDiagnosis(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	a := domain.Attempt{
		ID:             7,
		LeadID:         uuid.New(),
		AttemptNumber:  1,
		Operation:      domain.OperationUpsertContact,
		Endpoint:       "/contacts/upsert",
		Payload:        map[string]any{"firstName": "John"},
		ResponseStatus: 422,
		ErrorText:      "customFields must be an array",
		Diagnosis:      &advisor.Diagnosis{RootCause: "shape", Confidence: 0.9, Source: "rules"},
		AttemptedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	mock.ExpectExec(`INSERT INTO sync_attempts`).
		WithArgs(a.ID, a.LeadID, 1, a.Operation, a.Endpoint, pgxmock.AnyArg(), 422,
			a.ErrorText, false, pgxmock.AnyArg(), a.AttemptedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, New(mock).Record(context.Background(), a))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLatestAttemptNumber(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	leadID := uuid.New()
	mock.ExpectQuery(`SELECT COALESCE\(MAX\(attempt_number\), 0\) FROM sync_attempts`).
		WithArgs(leadID).
		WillReturnRows(pgxmock.NewRows([]string{"coalesce"}).AddRow(3))

	n, err := New(mock).LatestAttemptNumber(context.Background(), leadID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestListByLeadDecodesJSONColumns(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tenantID, leadID := uuid.New(), uuid.New()
	at := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "lead_id", "attempt_number", "operation", "endpoint", "payload",
		"response_status", "error_text", "corrected_payload_applied", "diagnosis", "attempted_at"}
	mock.ExpectQuery(`FROM sync_attempts s\s+JOIN leads l`).
		WithArgs(tenantID, leadID).
		WillReturnRows(pgxmock.NewRows(cols).
			AddRow(int64(1), leadID, 1, "upsert_contact", "/contacts/upsert", []byte(`{"firstName":"John"}`),
				422, "bad shape", false, []byte(`{"rootCause":"shape","confidence":0.9,"source":"rules"}`), at).
			AddRow(int64(2), leadID, 2, "upsert_contact", "/contacts/upsert", []byte(`{"firstName":"John"}`),
				200, "", true, []byte(nil), at.Add(time.Second)))

	items, err := New(mock).ListByLead(context.Background(), tenantID, leadID)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.NotNil(t, items[0].Diagnosis)
	assert.Equal(t, "shape", items[0].Diagnosis.RootCause)
	assert.Equal(t, "John", items[0].Payload["firstName"])
	assert.Nil(t, items[1].Diagnosis)
	assert.True(t, items[1].CorrectedPayloadApplied)
	assert.True(t, items[1].Succeeded())
}
