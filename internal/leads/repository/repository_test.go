package repository

import (
	"context"
	"testing"
	"time"

	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var leadRowColumns = []string{
	"id", "tenant_id", "form_id", "source_domain", "status", "failure_reason", "failure_detail",
	"attributes", "raw_payload", "service_category", "subcategories", "classification_confidence",
	"mapping_errors", "assigned_vendor_id", "routing_method", "assigned_at", "crm_contact_id",
	"first_synced_at", "created_at", "updated_at",
}

func newCommit() Commit {
	return Commit{
		TenantID:       uuid.New(),
		LeadID:         uuid.New(),
		VendorID:       uuid.New(),
		VendorRevision: 3,
		Method:         "round_robin",
		RecordID:       42,
		At:             time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestCommitAssignmentWritesAllOrNothing(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := newCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads\s+SET status = 'assigned'`).
		WithArgs(c.TenantID, c.LeadID, c.VendorID, c.Method, c.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE vendors\s+SET last_lead_assigned = \$4, leads_received = leads_received \+ 1`).
		WithArgs(c.TenantID, c.VendorID, c.VendorRevision, c.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO assignment_records`).
		WithArgs(c.RecordID, c.LeadID, c.VendorID, c.Method, c.At).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, New(mock).CommitAssignment(context.Background(), c))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitAssignmentRollsBackOnRevisionMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := newCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads`).
		WithArgs(c.TenantID, c.LeadID, c.VendorID, c.Method, c.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE vendors`).
		WithArgs(c.TenantID, c.VendorID, c.VendorRevision, c.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = New(mock).CommitAssignment(context.Background(), c)

	assert.ErrorIs(t, err, domain.ErrVendorConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCommitAssignmentRejectsLeadNotMatched(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	c := newCommit()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads`).
		WithArgs(c.TenantID, c.LeadID, c.VendorID, c.Method, c.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = New(mock).CommitAssignment(context.Background(), c)

	assert.ErrorIs(t, err, domain.ErrStaleLead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func newReassignment() Reassignment {
	return Reassignment{
		Commit:         newCommit(),
		PriorVendorID:  uuid.New(),
		Reason:         "vendor declined",
		ReassignmentID: 7,
	}
}

func TestReassignSwapsVendorInOneTransaction(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ra := newReassignment()
	mock.ExpectBegin()
	mock.ExpectExec(`(?s)UPDATE leads\s+SET status = 'assigned'.*assigned_vendor_id = \$6`).
		WithArgs(ra.TenantID, ra.LeadID, ra.VendorID, ra.Method, ra.At, ra.PriorVendorID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE vendors`).
		WithArgs(ra.TenantID, ra.VendorID, ra.VendorRevision, ra.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`INSERT INTO assignment_records`).
		WithArgs(ra.RecordID, ra.LeadID, ra.VendorID, ra.Method, ra.At).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec(`INSERT INTO lead_reassignments`).
		WithArgs(ra.ReassignmentID, ra.LeadID, ra.PriorVendorID, ra.Reason, ra.At).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, New(mock).Reassign(context.Background(), ra))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignKeepsPriorVendorOnRevisionMismatch(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ra := newReassignment()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads`).
		WithArgs(ra.TenantID, ra.LeadID, ra.VendorID, ra.Method, ra.At, ra.PriorVendorID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`UPDATE vendors`).
		WithArgs(ra.TenantID, ra.VendorID, ra.VendorRevision, ra.At).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = New(mock).Reassign(context.Background(), ra)

	assert.ErrorIs(t, err, domain.ErrVendorConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReassignRejectsLeadMovedByAnotherWriter(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	ra := newReassignment()
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE leads`).
		WithArgs(ra.TenantID, ra.LeadID, ra.VendorID, ra.Method, ra.At, ra.PriorVendorID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err = New(mock).Reassign(context.Background(), ra)

	assert.ErrorIs(t, err, domain.ErrStaleLead)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetDecodesLead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tenant, leadID, vendorID := uuid.New(), uuid.New(), uuid.New()
	created := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	reason := "sync"
	mock.ExpectQuery(`SELECT .* FROM leads\s+WHERE tenant_id = \$1 AND id = \$2`).
		WithArgs(tenant, leadID).
		WillReturnRows(pgxmock.NewRows(leadRowColumns).AddRow(
			leadID, tenant, "contact-form", "example.com", "failed", &reason, "customFields rejected",
			[]byte(`{"first_name":"John","zip_code":"33139","extra_fields":{"Referral":"Google"}}`),
			[]byte(`{"firstName":"John","zipCode":"33139"}`),
			"boat_maintenance", []string{"detailing"}, 0.5,
			[]byte(`[{"attribute":"vessel_length","fieldId":"cf_vessel_length","type":"numeric","value":"long","reason":"not a number"}]`),
			&vendorID, "performance_based", &created, "crm-1", (*time.Time)(nil), created, created,
		))

	l, err := New(mock).Get(context.Background(), tenant, leadID)

	require.NoError(t, err)
	assert.Equal(t, domain.StatusFailed, l.Status)
	assert.Equal(t, domain.FailureSync, l.FailureReason)
	assert.Equal(t, "John", l.Attributes.FirstName)
	assert.Equal(t, "Google", l.Attributes.Extra["Referral"])
	assert.Equal(t, "33139", l.RawPayload["zipCode"])
	require.Len(t, l.MappingErrors, 1)
	assert.Equal(t, "vessel_length", l.MappingErrors[0].Attribute)
	require.NotNil(t, l.AssignedVendorID)
	assert.Equal(t, vendorID, *l.AssignedVendorID)
	assert.True(t, l.IsAssigned())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetMapsNoRowsToNotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tenant, leadID := uuid.New(), uuid.New()
	mock.ExpectQuery(`SELECT .* FROM leads`).
		WithArgs(tenant, leadID).
		WillReturnError(pgx.ErrNoRows)

	_, err = New(mock).Get(context.Background(), tenant, leadID)

	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestTransitionStatusDetectsStaleLead(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	tenant, leadID := uuid.New(), uuid.New()
	mock.ExpectExec(`UPDATE leads\s+SET status = \$4`).
		WithArgs(tenant, leadID, "classified", "matched").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err = New(mock).TransitionStatus(context.Background(), tenant, leadID, domain.StatusClassified, domain.StatusMatched)

	assert.ErrorIs(t, err, domain.ErrStaleLead)
}
