// Package service pushes assigned leads into the CRM, diagnosing rejected
// calls and retrying with corrected payloads within a bounded budget.
package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"marine_leads_backend/internal/crmsync/advisor"
	"marine_leads_backend/internal/crmsync/client"
	"marine_leads_backend/internal/crmsync/domain"
	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/platform/ids"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	contactEndpoint     = "/contacts/upsert"
	opportunityEndpoint = "/opportunities/"
	maxErrorText        = 2000
)

// AttemptStore is the append-only attempt log.
type AttemptStore interface {
	Record(ctx context.Context, a domain.Attempt) error
	LatestAttemptNumber(ctx context.Context, leadID uuid.UUID) (int, error)
	ListByLead(ctx context.Context, tenantID, leadID uuid.UUID) ([]domain.Attempt, error)
}

// MappingSource provides the mapping reference handed to advisors.
type MappingSource interface {
	Current() *fieldmap.Table
}

// Config tunes the sync loop.
type Config struct {
	LocationID      string
	PipelineID      string
	PipelineStageID string
	// CallTimeout bounds each CRM call.
	CallTimeout time.Duration
	// AdvisorTimeout bounds each diagnosis.
	AdvisorTimeout time.Duration
	// MaxRetries is the retry budget for one sync, shared by all operations.
	MaxRetries int
	// ConfidenceThreshold is the minimum diagnosis confidence to apply a correction.
	ConfidenceThreshold float64
}

// Request is one lead to sync.
type Request struct {
	LeadID     uuid.UUID
	TenantID   uuid.UUID
	Title      string
	Category   string
	VendorID   uuid.UUID
	VendorName string
	Payload    fieldmap.Payload
}

// Result describes a successful sync.
type Result struct {
	ContactID     string
	OpportunityID string
	Attempts      int
	Corrected     bool
}

// SyncError reports a sync that ended without CRM acceptance.
type SyncError struct {
	Operation string
	Attempts  int
	Status    int
	Diagnosis *advisor.Diagnosis
	Detail    string
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("crm %s failed after %d attempts: %s", e.Operation, e.Attempts, e.Detail)
}

// Service runs lead syncs.
type Service struct {
	crm      client.CRM
	store    AttemptStore
	advisor  advisor.Advisor
	mappings MappingSource
	cfg      Config
	now      func() time.Time
	log      *logger.Logger
}

// New creates the sync service.
func New(crm client.CRM, store AttemptStore, adv advisor.Advisor, mappings MappingSource, cfg Config, log *logger.Logger) *Service {
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 10 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Service{
		crm:      crm,
		store:    store,
		advisor:  adv,
		mappings: mappings,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		log:      log,
	}
}

// Attempts returns a lead's attempt log.
func (s *Service) Attempts(ctx context.Context, tenantID, leadID uuid.UUID) ([]domain.Attempt, error) {
	return s.store.ListByLead(ctx, tenantID, leadID)
}

// run carries the shared state of one sync across operations.
type run struct {
	req         Request
	number      int
	attempts    int
	retriesLeft int
	corrected   bool
}

// Sync upserts the contact and, when a pipeline is configured, opens an
// opportunity for it. Every call is recorded before the next decision.
func (s *Service) Sync(ctx context.Context, req Request) (Result, error) {
	latest, err := s.store.LatestAttemptNumber(ctx, req.LeadID)
	if err != nil {
		return Result{}, fmt.Errorf("read attempt log: %w", err)
	}
	r := &run{req: req, number: latest, retriesLeft: s.cfg.MaxRetries}

	reply, err := s.execute(ctx, r, domain.OperationUpsertContact, contactEndpoint, s.contactDocument(req))
	if err != nil {
		return Result{}, err
	}
	res := Result{ContactID: client.ContactID(reply.Body)}

	if s.cfg.PipelineID != "" {
		if res.ContactID == "" {
			return Result{}, &SyncError{
				Operation: domain.OperationUpsertContact,
				Attempts:  r.attempts,
				Status:    reply.StatusCode,
				Detail:    "CRM accepted the contact without returning its id",
			}
		}
		reply, err = s.execute(ctx, r, domain.OperationCreateOpportunity, opportunityEndpoint, s.opportunityDocument(req, res.ContactID))
		if err != nil {
			return Result{}, err
		}
		res.OpportunityID = client.OpportunityID(reply.Body)
	}

	res.Attempts = r.attempts
	res.Corrected = r.corrected
	return res, nil
}

// execute sends one operation until it is accepted, the budget runs out or
// the rejection cannot be corrected.
func (s *Service) execute(ctx context.Context, r *run, operation, endpoint string, original map[string]any) (client.Reply, error) {
	log := s.log.WithLead(r.req.LeadID.String())
	payload := original
	applied := false

	for {
		r.number++
		r.attempts++

		callCtx, cancel := context.WithTimeout(ctx, s.cfg.CallTimeout)
		reply, callErr := s.crm.Do(callCtx, client.Call{
			Operation:      operation,
			Method:         http.MethodPost,
			Endpoint:       endpoint,
			Body:           payload,
			IdempotencyKey: idempotencyKey(r.req.LeadID, operation),
		})
		cancel()

		attempt := domain.Attempt{
			ID:                      ids.New(),
			LeadID:                  r.req.LeadID,
			AttemptNumber:           r.number,
			Operation:               operation,
			Endpoint:                endpoint,
			Payload:                 payload,
			ResponseStatus:          reply.StatusCode,
			CorrectedPayloadApplied: applied,
			AttemptedAt:             s.now(),
		}
		switch {
		case callErr != nil:
			attempt.ErrorText = truncate(callErr.Error())
		case !reply.OK():
			attempt.ErrorText = truncate(string(reply.Body))
		}
		if callErr == nil && isClientError(reply.StatusCode) {
			attempt.Diagnosis = s.diagnose(ctx, operation, endpoint, reply, payload)
		}

		if err := s.store.Record(context.WithoutCancel(ctx), attempt); err != nil {
			log.DatabaseError("record sync attempt", err)
			return client.Reply{}, fmt.Errorf("record sync attempt: %w", err)
		}
		log.SyncAttempt(r.req.LeadID.String(), r.number, operation, reply.StatusCode, applied)

		if callErr == nil && reply.OK() {
			return reply, nil
		}

		fail := &SyncError{Operation: operation, Attempts: r.attempts, Status: reply.StatusCode, Diagnosis: attempt.Diagnosis, Detail: attempt.ErrorText}
		if r.retriesLeft == 0 {
			fail.Detail = "retry budget exhausted: " + fail.Detail
			return client.Reply{}, fail
		}

		if callErr != nil || !isClientError(reply.StatusCode) {
			// transient: resend the same payload
			r.retriesLeft--
			continue
		}

		next, ok := s.correction(log, original, attempt.Diagnosis)
		if !ok {
			if attempt.Diagnosis != nil {
				fail.Detail = attempt.Diagnosis.RootCause
			}
			return client.Reply{}, fail
		}
		r.retriesLeft--
		r.corrected = true
		applied = true
		payload = next
	}
}

func (s *Service) diagnose(ctx context.Context, operation, endpoint string, reply client.Reply, payload map[string]any) *advisor.Diagnosis {
	if s.advisor == nil {
		return nil
	}
	if s.cfg.AdvisorTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.AdvisorTimeout)
		defer cancel()
	}
	d, err := s.advisor.Diagnose(ctx, advisor.Problem{
		Operation:  operation,
		Endpoint:   endpoint,
		StatusCode: reply.StatusCode,
		ErrorBody:  string(reply.Body),
		Payload:    payload,
		Fields:     s.reference(payload),
	})
	if err != nil {
		s.log.Warn("crmsync: diagnosis failed", "operation", operation, "error", err)
		return nil
	}
	return &d
}

// correction returns the corrected payload when the diagnosis is confident
// and only reuses values from the original document.
func (s *Service) correction(log *logger.Logger, original map[string]any, d *advisor.Diagnosis) (map[string]any, bool) {
	if d == nil || !d.Correctable() || d.Confidence < s.cfg.ConfidenceThreshold {
		return nil, false
	}
	if err := advisor.VerifyNoFabrication(original, d.Corrected); err != nil {
		log.Warn("crmsync: correction rejected", "source", d.Source, "error", err)
		return nil, false
	}
	return d.Corrected, true
}

// reference lists the table mappings for the fields present in payload.
func (s *Service) reference(payload map[string]any) []fieldmap.Mapping {
	if s.mappings == nil {
		return nil
	}
	table := s.mappings.Current()
	present := make(map[string]struct{}, len(payload))
	for k := range payload {
		present[k] = struct{}{}
	}
	switch cf := payload["customFields"].(type) {
	case []any:
		for _, item := range cf {
			if m, ok := item.(map[string]any); ok {
				if id, ok := m["id"].(string); ok {
					present[id] = struct{}{}
				}
			}
		}
	case map[string]any:
		for id := range cf {
			present[id] = struct{}{}
		}
	}

	out := make([]fieldmap.Mapping, 0, len(present))
	for _, m := range table.Mappings {
		if _, ok := present[m.FieldID]; ok {
			out = append(out, m)
		}
	}
	return out
}

func (s *Service) contactDocument(req Request) map[string]any {
	doc := map[string]any{"locationId": s.cfg.LocationID}
	custom := make([]any, 0, len(req.Payload.Fields))
	for _, f := range req.Payload.Fields {
		if f.Scope == fieldmap.ScopeContact {
			doc[f.FieldID] = f.Value
			continue
		}
		custom = append(custom, map[string]any{"id": f.FieldID, "field_value": f.Value})
	}
	if len(custom) > 0 {
		doc["customFields"] = custom
	}
	if req.Category != "" {
		doc["tags"] = []any{req.Category}
	}
	return doc
}

func (s *Service) opportunityDocument(req Request, contactID string) map[string]any {
	name := req.Title
	if req.VendorName != "" {
		name = fmt.Sprintf("%s / %s", req.Title, req.VendorName)
	}
	doc := map[string]any{
		"locationId": s.cfg.LocationID,
		"pipelineId": s.cfg.PipelineID,
		"contactId":  contactID,
		"name":       name,
		"status":     "open",
	}
	if s.cfg.PipelineStageID != "" {
		doc["pipelineStageId"] = s.cfg.PipelineStageID
	}
	return doc
}

// idempotencyKey is derived from the lead identity only, so every retry of
// an operation carries the same key.
func idempotencyKey(leadID uuid.UUID, operation string) string {
	return leadID.String() + ":" + operation
}

func isClientError(status int) bool {
	return status >= 400 && status < 500 && status != http.StatusTooManyRequests
}

func truncate(s string) string {
	if len(s) <= maxErrorText {
		return s
	}
	return s[:maxErrorText]
}
