// Package pipeline drives a lead from submission to CRM: normalize,
// classify, map, match, assign and sync.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"marine_leads_backend/internal/crmsync/advisor"
	crmsvc "marine_leads_backend/internal/crmsync/service"
	"marine_leads_backend/internal/events"
	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/internal/leads/assignment"
	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/internal/leads/intake"
	"marine_leads_backend/internal/taxonomy"
	vendordomain "marine_leads_backend/internal/vendors/domain"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
)

// Store persists leads.
type Store interface {
	Create(ctx context.Context, l domain.Lead) error
	Save(ctx context.Context, l domain.Lead) error
	Get(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error)
}

// Normalizer builds canonical attributes from a raw submission.
type Normalizer interface {
	Normalize(raw map[string]any) intake.Result
}

// Resolver maps canonical attributes onto CRM fields.
type Resolver interface {
	Resolve(attrs map[string]string) fieldmap.Payload
}

// Assigner hands leads to vendors.
type Assigner interface {
	Assign(ctx context.Context, lead domain.Lead) (assignment.Outcome, error)
	Reassign(ctx context.Context, tenantID, leadID uuid.UUID, reason string, vendorID *uuid.UUID) (assignment.Outcome, error)
}

// VendorReader loads one vendor.
type VendorReader interface {
	Get(ctx context.Context, tenantID, vendorID uuid.UUID) (vendordomain.Vendor, error)
}

// Syncer pushes an assigned lead to the CRM.
type Syncer interface {
	Sync(ctx context.Context, req crmsvc.Request) (crmsvc.Result, error)
}

// Archive stores raw submissions.
type Archive interface {
	Put(ctx context.Context, key, contentType string, body []byte) error
}

// Rerouter schedules another routing attempt for a lead no vendor could take.
type Rerouter interface {
	ScheduleReroute(ctx context.Context, tenantID, leadID uuid.UUID) error
}

// Submission is one form post as received by the webhook.
type Submission struct {
	TenantID     uuid.UUID
	FormID       string
	SourceDomain string
	Fields       map[string]any
}

// Outcome is the pipeline's answer for one lead.
type Outcome struct {
	Lead   domain.Lead
	Vendor *vendordomain.Vendor
	// Duplicate is set when the submission matched a lead claimed moments ago.
	Duplicate    bool
	SyncAttempts int
	Elapsed      time.Duration
}

// Failure describes why a lead stopped. It is attached to every pipeline
// error as apperr details.
type Failure struct {
	LeadID    uuid.UUID          `json:"leadId"`
	Status    domain.Status      `json:"status"`
	Reason    string             `json:"reason"`
	Detail    string             `json:"detail"`
	Missing   []string           `json:"missing,omitempty"`
	Invalid   []string           `json:"invalid,omitempty"`
	Attempts  int                `json:"attempts,omitempty"`
	Diagnosis *advisor.Diagnosis `json:"diagnosis,omitempty"`
}

// Deps are the collaborators of a Pipeline. Dedupe, Archive and Rerouter
// are optional.
type Deps struct {
	Store      Store
	Normalizer Normalizer
	Classifier taxonomy.Classifier
	Resolver   Resolver
	Assigner   Assigner
	Vendors    VendorReader
	Syncer     Syncer
	Bus        events.Publisher
	Dedupe     Deduper
	Archive    Archive
	Rerouter   Rerouter
}

// Pipeline runs leads through every stage, persisting after each one.
type Pipeline struct {
	Deps
	now func() time.Time
	log *logger.Logger
}

// New creates a pipeline.
func New(deps Deps, log *logger.Logger) *Pipeline {
	return &Pipeline{
		Deps: deps,
		now:  func() time.Time { return time.Now().UTC() },
		log:  log,
	}
}

// Ingest accepts a submission. The lead and its raw payload are stored
// before any processing, and processing outlives the caller's request.
func (p *Pipeline) Ingest(ctx context.Context, sub Submission) (Outcome, error) {
	start := p.now()
	work := context.WithoutCancel(ctx)

	norm := p.Normalizer.Normalize(sub.Fields)
	lead := domain.New(sub.TenantID, sub.FormID, sub.Fields, norm.Attributes, start)
	lead.SourceDomain = sub.SourceDomain

	p.archive(work, lead)
	if p.Dedupe != nil {
		if key := submissionKey(sub, norm.Attributes); key != "" {
			holder, claimed, err := p.Dedupe.Claim(work, sub.TenantID, key, lead.ID)
			switch {
			case err != nil:
				p.log.Warn("pipeline: dedupe unavailable, continuing", "error", err)
			case !claimed:
				p.log.Info("pipeline: duplicate submission", "archivedAs", lead.ID, "leadId", holder)
				return p.duplicate(work, sub.TenantID, holder, start)
			}
		}
	}

	if err := p.Store.Create(work, lead); err != nil {
		p.log.DatabaseError("create lead", err)
		return Outcome{Lead: lead}, apperr.Wrap(apperr.KindInternal, "lead could not be stored", err).
			WithOp("pipeline.Ingest").
			WithDetails(Failure{LeadID: lead.ID, Status: lead.Status, Reason: string(domain.FailureInternal), Detail: "persist lead"})
	}
	p.log.Info("lead received", "leadId", lead.ID, "tenantId", lead.TenantID, "formId", lead.FormID)
	p.Bus.Publish(work, events.LeadReceived{BaseEvent: events.NewBaseEvent(), LeadID: lead.ID, TenantID: lead.TenantID})

	if !norm.Complete() {
		detail := "missing required fields: " + strings.Join(norm.Missing, ", ")
		lead.Fail(domain.FailureValidation, detail, p.now())
		p.save(work, lead)
		p.log.LeadStage(lead.ID.String(), string(domain.StatusReceived), string(domain.StatusFailed))
		return p.outcome(lead, nil, 0, start), p.failure(lead, Failure{Missing: norm.Missing, Invalid: norm.Invalid})
	}

	return p.process(work, lead, start, true)
}

// Resume continues a lead from its persisted stage. Settled leads are
// returned as they are. A routing failure during resume is returned to the
// caller and does not schedule another reroute.
func (p *Pipeline) Resume(ctx context.Context, tenantID, leadID uuid.UUID) (Outcome, error) {
	start := p.now()
	lead, err := p.Store.Get(ctx, tenantID, leadID)
	if err != nil {
		return Outcome{}, err
	}
	if lead.IsTerminal() {
		return p.settled(ctx, lead, start)
	}
	return p.process(context.WithoutCancel(ctx), lead, start, false)
}

// Reassign moves a lead to another vendor and syncs it again.
func (p *Pipeline) Reassign(ctx context.Context, tenantID, leadID uuid.UUID, reason string, vendorID *uuid.UUID) (Outcome, error) {
	start := p.now()
	out, err := p.Assigner.Reassign(ctx, tenantID, leadID, reason, vendorID)
	if err != nil {
		return Outcome{}, err
	}
	return p.sync(context.WithoutCancel(ctx), out.Lead, out.Vendor, start)
}

func (p *Pipeline) process(ctx context.Context, lead domain.Lead, start time.Time, reroute bool) (Outcome, error) {
	if lead.Status == domain.StatusReceived || lead.FailureReason == domain.FailureInternal {
		if err := p.classify(ctx, &lead); err != nil {
			return p.internal(ctx, lead, start, "classify", err)
		}
	}

	var vendor vendordomain.Vendor
	if lead.Status == domain.StatusAssigned {
		v, err := p.Vendors.Get(ctx, lead.TenantID, *lead.AssignedVendorID)
		if err != nil {
			return p.outcome(lead, nil, 0, start), fmt.Errorf("load assigned vendor: %w", err)
		}
		vendor = v
	} else {
		out, err := p.Assigner.Assign(ctx, lead)
		if err != nil {
			return p.assignFailed(ctx, lead, start, err, reroute)
		}
		lead, vendor = out.Lead, out.Vendor
		if lead.Status == domain.StatusSynced {
			return p.outcome(lead, &vendor, 0, start), nil
		}
	}

	return p.sync(ctx, lead, vendor, start)
}

func (p *Pipeline) classify(ctx context.Context, lead *domain.Lead) error {
	c := p.Classifier.Classify(taxonomy.Input{
		Hint: lead.Attributes.ServiceCategory,
		Text: lead.Attributes.ServiceText(),
	})
	lead.ServiceCategory = c.Category
	lead.Subcategories = c.Subcategories
	lead.ClassificationConfidence = c.Confidence
	lead.MappingErrors = p.Resolver.Resolve(lead.MappingAttributes()).Errors

	from := lead.Status
	if err := lead.Advance(domain.StatusClassified, p.now()); err != nil {
		return err
	}
	if err := p.Store.Save(ctx, *lead); err != nil {
		return fmt.Errorf("save classification: %w", err)
	}
	p.log.LeadStage(lead.ID.String(), string(from), string(domain.StatusClassified))
	p.log.WithLead(lead.ID.String()).Debug("lead classified",
		"category", c.Category, "method", c.Method, "confidence", c.Confidence, "taxonomyVersion", c.TaxonomyVersion)
	return nil
}

func (p *Pipeline) assignFailed(ctx context.Context, lead domain.Lead, start time.Time, err error, reroute bool) (Outcome, error) {
	var routing *assignment.RoutingError
	if !errors.As(err, &routing) {
		if apperr.Is(err, apperr.KindConflict) {
			return p.outcome(lead, nil, 0, start), err
		}
		return p.internal(ctx, lead, start, "assign", err)
	}

	// the coordinator has already persisted the failure
	lead.Fail(routing.Reason, routing.Detail, p.now())
	if reroute && p.Rerouter != nil {
		if err := p.Rerouter.ScheduleReroute(ctx, lead.TenantID, lead.ID); err != nil {
			p.log.Warn("pipeline: reroute not scheduled", "leadId", lead.ID, "error", err)
		}
	}
	return p.outcome(lead, nil, 0, start), p.failure(lead, Failure{})
}

func (p *Pipeline) sync(ctx context.Context, lead domain.Lead, vendor vendordomain.Vendor, start time.Time) (Outcome, error) {
	res, err := p.Syncer.Sync(ctx, crmsvc.Request{
		LeadID:     lead.ID,
		TenantID:   lead.TenantID,
		Title:      lead.Attributes.FullName(),
		Category:   lead.ServiceCategory,
		VendorID:   vendor.ID,
		VendorName: vendor.Name,
		Payload:    p.Resolver.Resolve(lead.MappingAttributes()),
	})

	var syncErr *crmsvc.SyncError
	switch {
	case errors.As(err, &syncErr):
		lead.Fail(domain.FailureSync, syncErr.Detail, p.now())
		p.save(ctx, lead)
		p.log.LeadStage(lead.ID.String(), string(domain.StatusAssigned), string(domain.StatusFailed))
		p.Bus.Publish(ctx, events.LeadSyncFailed{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			TenantID:  lead.TenantID,
			VendorID:  vendor.ID,
			Attempts:  syncErr.Attempts,
			Detail:    syncErr.Detail,
		})
		return p.outcome(lead, &vendor, syncErr.Attempts, start),
			p.failure(lead, Failure{Attempts: syncErr.Attempts, Diagnosis: syncErr.Diagnosis})
	case err != nil:
		// the lead stays assigned and the reconciler resumes the sync
		p.log.Error("pipeline: sync interrupted", "leadId", lead.ID, "error", err)
		return p.outcome(lead, &vendor, 0, start), apperr.Wrap(apperr.KindInternal, "lead sync interrupted", err).
			WithOp("pipeline.sync").
			WithDetails(Failure{LeadID: lead.ID, Status: lead.Status, Reason: string(domain.FailureInternal), Detail: "sync"})
	}

	now := p.now()
	if err := lead.Advance(domain.StatusSynced, now); err != nil {
		return p.internal(ctx, lead, start, "sync", err)
	}
	lead.CRMContactID = res.ContactID
	if lead.FirstSyncedAt == nil {
		lead.FirstSyncedAt = &now
	}
	if err := p.Store.Save(ctx, lead); err != nil {
		p.log.DatabaseError("save synced lead", err)
		return p.outcome(lead, &vendor, res.Attempts, start), apperr.Wrap(apperr.KindInternal, "synced lead could not be stored", err).
			WithDetails(Failure{LeadID: lead.ID, Status: lead.Status, Reason: string(domain.FailureInternal), Detail: "persist sync"})
	}
	p.log.LeadStage(lead.ID.String(), string(domain.StatusAssigned), string(domain.StatusSynced))
	p.Bus.Publish(ctx, events.LeadSynced{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		TenantID:  lead.TenantID,
		Attempts:  res.Attempts,
	})
	return p.outcome(lead, &vendor, res.Attempts, start), nil
}

// internal records an unexpected failure. Partial progress is kept so the
// reconciler can pick the lead up again.
func (p *Pipeline) internal(ctx context.Context, lead domain.Lead, start time.Time, stage string, err error) (Outcome, error) {
	from := lead.Status
	lead.Fail(domain.FailureInternal, stage+": "+err.Error(), p.now())
	p.save(ctx, lead)
	p.log.Error("pipeline: stage failed", "leadId", lead.ID, "stage", stage, "error", err)
	p.log.LeadStage(lead.ID.String(), string(from), string(domain.StatusFailed))
	return p.outcome(lead, nil, 0, start), apperr.Wrap(apperr.KindInternal, "lead processing failed", err).
		WithOp("pipeline." + stage).
		WithDetails(Failure{LeadID: lead.ID, Status: lead.Status, Reason: string(domain.FailureInternal), Detail: stage})
}

func (p *Pipeline) duplicate(ctx context.Context, tenantID, leadID uuid.UUID, start time.Time) (Outcome, error) {
	lead, err := p.Store.Get(ctx, tenantID, leadID)
	if apperr.Is(err, apperr.KindNotFound) {
		// the holder is still being stored
		return Outcome{
			Lead:      domain.Lead{ID: leadID, TenantID: tenantID, Status: domain.StatusReceived},
			Duplicate: true,
			Elapsed:   p.now().Sub(start),
		}, nil
	}
	if err != nil {
		return Outcome{}, err
	}
	out, err := p.settled(ctx, lead, start)
	out.Duplicate = true
	return out, err
}

func (p *Pipeline) settled(ctx context.Context, lead domain.Lead, start time.Time) (Outcome, error) {
	if lead.AssignedVendorID == nil {
		return p.outcome(lead, nil, 0, start), nil
	}
	vendor, err := p.Vendors.Get(ctx, lead.TenantID, *lead.AssignedVendorID)
	if err != nil {
		return Outcome{}, err
	}
	return p.outcome(lead, &vendor, 0, start), nil
}

func (p *Pipeline) archive(ctx context.Context, lead domain.Lead) {
	if p.Archive == nil {
		return
	}
	body, err := json.Marshal(lead.RawPayload)
	if err != nil {
		p.log.Warn("pipeline: raw payload not archived", "leadId", lead.ID, "error", err)
		return
	}
	key := fmt.Sprintf("%s/%s/%s.json", lead.TenantID, lead.CreatedAt.Format("2006/01/02"), lead.ID)
	if err := p.Archive.Put(ctx, key, "application/json", body); err != nil {
		p.log.Warn("pipeline: raw payload not archived", "leadId", lead.ID, "error", err)
	}
}

func (p *Pipeline) save(ctx context.Context, lead domain.Lead) {
	if err := p.Store.Save(ctx, lead); err != nil {
		p.log.DatabaseError("save lead", err)
	}
}

func (p *Pipeline) outcome(lead domain.Lead, vendor *vendordomain.Vendor, attempts int, start time.Time) Outcome {
	return Outcome{Lead: lead, Vendor: vendor, SyncAttempts: attempts, Elapsed: p.now().Sub(start)}
}

// failure builds the error for a lead that stopped in StatusFailed.
func (p *Pipeline) failure(lead domain.Lead, f Failure) error {
	f.LeadID = lead.ID
	f.Status = lead.Status
	f.Reason = string(lead.FailureReason)
	f.Detail = lead.FailureDetail

	var err *apperr.Error
	switch lead.FailureReason {
	case domain.FailureValidation:
		err = apperr.Validation("lead is missing required fields")
	case domain.FailureNoCoverage, domain.FailureNoVendor:
		err = apperr.Unprocessable("no vendor can take this lead")
	case domain.FailureSync:
		err = apperr.Upstream("CRM did not accept the lead")
	default:
		err = apperr.Internal("lead processing failed")
	}
	return err.WithDetails(f)
}
