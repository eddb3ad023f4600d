package service

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"marine_leads_backend/internal/crmsync/advisor"
	"marine_leads_backend/internal/crmsync/client"
	"marine_leads_backend/internal/crmsync/domain"
	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptedCRM struct {
	mu      sync.Mutex
	replies []func(client.Call) (client.Reply, error)
	calls   []client.Call
}

func (c *scriptedCRM) Do(_ context.Context, call client.Call) (client.Reply, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, call)
	if len(c.replies) == 0 {
		return client.Reply{StatusCode: http.StatusOK, Body: []byte(`{"contact":{"id":"c-1"}}`)}, nil
	}
	next := c.replies[0]
	c.replies = c.replies[1:]
	return next(call)
}

func reply(status int, body string) func(client.Call) (client.Reply, error) {
	return func(client.Call) (client.Reply, error) {
		return client.Reply{StatusCode: status, Body: []byte(body)}, nil
	}
}

type memAttempts struct {
	mu    sync.Mutex
	items []domain.Attempt
}

func (m *memAttempts) Record(_ context.Context, a domain.Attempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = append(m.items, a)
	return nil
}

func (m *memAttempts) LatestAttemptNumber(_ context.Context, leadID uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.items {
		if a.LeadID == leadID && a.AttemptNumber > n {
			n = a.AttemptNumber
		}
	}
	return n, nil
}

func (m *memAttempts) ListByLead(_ context.Context, _ uuid.UUID, leadID uuid.UUID) ([]domain.Attempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Attempt
	for _, a := range m.items {
		if a.LeadID == leadID {
			out = append(out, a)
		}
	}
	return out, nil
}

func newRequest() Request {
	return Request{
		LeadID:     uuid.New(),
		TenantID:   uuid.New(),
		Title:      "John Doe",
		Category:   "boat_maintenance",
		VendorID:   uuid.New(),
		VendorName: "Biscayne Marine Care",
		Payload: fieldmap.Payload{
			Version: "2024.1",
			Fields: []fieldmap.Field{
				{Attribute: "first_name", FieldID: "firstName", Scope: fieldmap.ScopeContact, Type: fieldmap.TypeText, Value: "John"},
				{Attribute: "email", FieldID: "email", Scope: fieldmap.ScopeContact, Type: fieldmap.TypeText, Value: "john.doe@example.com"},
				{Attribute: "vessel_make", FieldID: "cf_vessel_make", Scope: fieldmap.ScopeCustom, Type: fieldmap.TypeText, Value: "Sea Ray"},
			},
		},
	}
}

func newService(t *testing.T, crm client.CRM, adv advisor.Advisor, cfg Config) (*Service, *memAttempts) {
	t.Helper()
	table, err := fieldmap.NewRegistry("")
	require.NoError(t, err)
	store := &memAttempts{}
	if cfg.ConfidenceThreshold == 0 {
		cfg.ConfidenceThreshold = 0.7
	}
	svc := New(crm, store, adv, table, cfg, logger.Discard())
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC) }
	return svc, store
}

func TestSyncSucceedsFirstTime(t *testing.T) {
	crm := &scriptedCRM{}
	svc, store := newService(t, crm, advisor.NewRulesAdvisor(), Config{LocationID: "loc-1", MaxRetries: 2})

	res, err := svc.Sync(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, "c-1", res.ContactID)
	assert.Equal(t, 1, res.Attempts)
	assert.False(t, res.Corrected)

	require.Len(t, crm.calls, 1)
	body := crm.calls[0].Body
	assert.Equal(t, "loc-1", body["locationId"])
	assert.Equal(t, "John", body["firstName"])
	assert.Equal(t, []any{map[string]any{"id": "cf_vessel_make", "field_value": "Sea Ray"}}, body["customFields"])
	assert.Equal(t, []any{"boat_maintenance"}, body["tags"])

	require.Len(t, store.items, 1)
	assert.Equal(t, 1, store.items[0].AttemptNumber)
	assert.Equal(t, 200, store.items[0].ResponseStatus)
}

func TestSyncAppliesCorrectionAfterRejection(t *testing.T) {
	crm := &scriptedCRM{replies: []func(client.Call) (client.Reply, error){
		reply(422, `{"message":["customFields.0.value must be a string"]}`),
	}}
	svc, store := newService(t, crm, advisor.NewRulesAdvisor(), Config{LocationID: "loc-1", MaxRetries: 2})

	res, err := svc.Sync(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Attempts)
	assert.True(t, res.Corrected)

	require.Len(t, store.items, 2)
	first, second := store.items[0], store.items[1]
	assert.Equal(t, 422, first.ResponseStatus)
	require.NotNil(t, first.Diagnosis)
	assert.Equal(t, []string{"customFields"}, first.Diagnosis.SuspectFields)
	assert.False(t, first.CorrectedPayloadApplied)

	assert.Equal(t, 2, second.AttemptNumber)
	assert.True(t, second.CorrectedPayloadApplied)
	assert.Equal(t, 200, second.ResponseStatus)

	sent := crm.calls[1].Body["customFields"].([]any)[0].(map[string]any)
	assert.Equal(t, "Sea Ray", sent["value"])
	assert.Equal(t, crm.calls[0].IdempotencyKey, crm.calls[1].IdempotencyKey)
}

func TestSyncStopsWhenBudgetIsExhausted(t *testing.T) {
	rejection := reply(422, `{"message":"rejected"}`)
	crm := &scriptedCRM{replies: []func(client.Call) (client.Reply, error){rejection, rejection, rejection, rejection, rejection}}
	adv := advisor.AdvisorFunc(func(_ context.Context, p advisor.Problem) (advisor.Diagnosis, error) {
		corrected := make(map[string]any, len(p.Payload))
		for k, v := range p.Payload {
			if k != "tags" {
				corrected[k] = v
			}
		}
		return advisor.Diagnosis{RootCause: "tags rejected", Corrected: corrected, Confidence: 0.9, Source: "stub"}, nil
	})
	svc, store := newService(t, crm, adv, Config{LocationID: "loc-1", MaxRetries: 3})

	_, err := svc.Sync(context.Background(), newRequest())
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, 4, syncErr.Attempts)
	require.NotNil(t, syncErr.Diagnosis)
	assert.Equal(t, "tags rejected", syncErr.Diagnosis.RootCause)
	assert.Contains(t, syncErr.Detail, "retry budget exhausted")

	require.Len(t, store.items, 4)
	applied := 0
	for i, a := range store.items {
		assert.Equal(t, i+1, a.AttemptNumber)
		if a.CorrectedPayloadApplied {
			applied++
		}
	}
	assert.Equal(t, 3, applied)
}

func TestSyncDoesNotRetryBelowConfidenceThreshold(t *testing.T) {
	crm := &scriptedCRM{replies: []func(client.Call) (client.Reply, error){reply(422, `{"message":"odd"}`)}}
	adv := advisor.AdvisorFunc(func(_ context.Context, p advisor.Problem) (advisor.Diagnosis, error) {
		return advisor.Diagnosis{RootCause: "unsure", Corrected: p.Payload, Confidence: 0.4}, nil
	})
	svc, store := newService(t, crm, adv, Config{MaxRetries: 2})

	_, err := svc.Sync(context.Background(), newRequest())
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Equal(t, 1, syncErr.Attempts)
	assert.Equal(t, "unsure", syncErr.Detail)
	assert.Len(t, store.items, 1)
}

func TestSyncRejectsFabricatedCorrection(t *testing.T) {
	crm := &scriptedCRM{replies: []func(client.Call) (client.Reply, error){reply(422, `{"message":"lastName is required"}`)}}
	adv := advisor.AdvisorFunc(func(_ context.Context, p advisor.Problem) (advisor.Diagnosis, error) {
		corrected := map[string]any{"lastName": "Smith"}
		for k, v := range p.Payload {
			corrected[k] = v
		}
		return advisor.Diagnosis{RootCause: "lastName missing", Corrected: corrected, Confidence: 0.95}, nil
	})
	svc, store := newService(t, crm, adv, Config{MaxRetries: 2})

	_, err := svc.Sync(context.Background(), newRequest())
	var syncErr *SyncError
	require.ErrorAs(t, err, &syncErr)
	assert.Len(t, crm.calls, 1)
	assert.Len(t, store.items, 1)
}

func TestSyncRetriesTransientFailuresWithSamePayload(t *testing.T) {
	crm := &scriptedCRM{replies: []func(client.Call) (client.Reply, error){
		func(client.Call) (client.Reply, error) { return client.Reply{}, errors.New("connection reset") },
		reply(503, "unavailable"),
	}}
	svc, store := newService(t, crm, advisor.NewRulesAdvisor(), Config{MaxRetries: 2})

	res, err := svc.Sync(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, 3, res.Attempts)
	assert.False(t, res.Corrected)
	assert.Equal(t, crm.calls[0].IdempotencyKey, crm.calls[2].IdempotencyKey)
	assert.Equal(t, "connection reset", store.items[0].ErrorText)
	assert.Nil(t, store.items[1].Diagnosis)
}

func TestSyncCreatesOpportunityWhenPipelineConfigured(t *testing.T) {
	crm := &scriptedCRM{replies: []func(client.Call) (client.Reply, error){
		reply(200, `{"contact":{"id":"c-9"}}`),
		reply(201, `{"opportunity":{"id":"o-3"}}`),
	}}
	svc, store := newService(t, crm, advisor.NewRulesAdvisor(), Config{LocationID: "loc-1", PipelineID: "p-1", PipelineStageID: "s-1", MaxRetries: 2})

	res, err := svc.Sync(context.Background(), newRequest())
	require.NoError(t, err)
	assert.Equal(t, "c-9", res.ContactID)
	assert.Equal(t, "o-3", res.OpportunityID)
	assert.Equal(t, 2, res.Attempts)

	opp := crm.calls[1].Body
	assert.Equal(t, "c-9", opp["contactId"])
	assert.Equal(t, "s-1", opp["pipelineStageId"])
	assert.Equal(t, "John Doe / Biscayne Marine Care", opp["name"])
	assert.Equal(t, domain.OperationCreateOpportunity, store.items[1].Operation)
}

func TestSyncContinuesAttemptNumbering(t *testing.T) {
	crm := &scriptedCRM{}
	svc, store := newService(t, crm, advisor.NewRulesAdvisor(), Config{MaxRetries: 2})
	req := newRequest()

	_, err := svc.Sync(context.Background(), req)
	require.NoError(t, err)
	_, err = svc.Sync(context.Background(), req)
	require.NoError(t, err)

	attempts, err := svc.Attempts(context.Background(), req.TenantID, req.LeadID)
	require.NoError(t, err)
	require.Len(t, attempts, 2)
	assert.Equal(t, 2, store.items[1].AttemptNumber)
}
