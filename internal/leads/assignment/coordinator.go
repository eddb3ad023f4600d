// Package assignment runs the match-then-commit protocol that hands a lead to
// exactly one vendor.
package assignment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"marine_leads_backend/internal/events"
	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/internal/leads/repository"
	vendordomain "marine_leads_backend/internal/vendors/domain"
	vendorsvc "marine_leads_backend/internal/vendors/service"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/ids"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
)

const defaultMaxAttempts = 5

// Store is the lead state the coordinator owns.
type Store interface {
	Get(ctx context.Context, tenantID, leadID uuid.UUID) (domain.Lead, error)
	TransitionStatus(ctx context.Context, tenantID, leadID uuid.UUID, from, to domain.Status) error
	Fail(ctx context.Context, tenantID, leadID uuid.UUID, reason domain.FailureReason, detail string) error
	CommitAssignment(ctx context.Context, c repository.Commit) error
	Reassign(ctx context.Context, ra repository.Reassignment) error
}

// Matcher ranks eligible vendors for a lead.
type Matcher interface {
	Match(ctx context.Context, req vendorsvc.MatchRequest) (vendorsvc.MatchResult, error)
}

// VendorReader loads one vendor.
type VendorReader interface {
	Get(ctx context.Context, tenantID, vendorID uuid.UUID) (vendordomain.Vendor, error)
}

// Outcome is the result of an assignment.
type Outcome struct {
	Lead   domain.Lead
	Vendor vendordomain.Vendor
	Method string
	// Existing is true when the lead was already assigned and nothing changed.
	Existing bool
}

// RoutingError reports that no vendor could take the lead.
type RoutingError struct {
	Reason domain.FailureReason
	Detail string
}

func (e *RoutingError) Error() string {
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

// Coordinator assigns leads to vendors. Vendor load state is updated with a
// compare-and-swap on the vendor revision; a lost race triggers reselection
// rather than a lock.
type Coordinator struct {
	store       Store
	matcher     Matcher
	vendors     VendorReader
	bus         events.Publisher
	maxAttempts int
	now         func() time.Time
	log         *logger.Logger
}

// New creates a coordinator. maxAttempts bounds reselection after lost races.
func New(store Store, matcher Matcher, vendors VendorReader, bus events.Publisher, maxAttempts int, log *logger.Logger) *Coordinator {
	if maxAttempts < 1 {
		maxAttempts = defaultMaxAttempts
	}
	return &Coordinator{
		store:       store,
		matcher:     matcher,
		vendors:     vendors,
		bus:         bus,
		maxAttempts: maxAttempts,
		now:         func() time.Time { return time.Now().UTC() },
		log:         log,
	}
}

// Assign hands a classified or matched lead to one vendor. Calling it on an
// assigned lead returns the existing assignment without side effects.
func (c *Coordinator) Assign(ctx context.Context, lead domain.Lead) (Outcome, error) {
	return c.assign(ctx, lead, nil)
}

func (c *Coordinator) assign(ctx context.Context, lead domain.Lead, exclude []uuid.UUID) (Outcome, error) {
	if lead.IsAssigned() {
		return c.existing(ctx, lead)
	}

	log := c.log.WithLead(lead.ID.String())
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		result, err := c.matcher.Match(ctx, vendorsvc.MatchRequest{
			TenantID: lead.TenantID,
			Category: lead.ServiceCategory,
			ZipCode:  lead.Attributes.ZipCode,
			Exclude:  exclude,
		})
		if err != nil {
			return Outcome{}, fmt.Errorf("match vendors: %w", err)
		}

		vendor, ok := result.Selected()
		if !ok {
			return Outcome{}, c.noVendor(ctx, lead, result)
		}

		if lead.Status != domain.StatusMatched {
			if err := c.store.TransitionStatus(ctx, lead.TenantID, lead.ID, lead.Status, domain.StatusMatched); err != nil {
				return c.afterStale(ctx, lead, err)
			}
			log.LeadStage(lead.ID.String(), string(lead.Status), string(domain.StatusMatched))
			lead.Status = domain.StatusMatched
			lead.FailureReason, lead.FailureDetail = "", ""
		}

		at := c.now()
		err = c.store.CommitAssignment(ctx, repository.Commit{
			TenantID:       lead.TenantID,
			LeadID:         lead.ID,
			VendorID:       vendor.ID,
			VendorRevision: vendor.Revision,
			Method:         result.Method,
			RecordID:       ids.New(),
			At:             at,
		})
		switch {
		case err == nil:
			return c.committed(ctx, lead, vendor, result.Method, at), nil
		case errors.Is(err, domain.ErrVendorConflict):
			log.Debug("assignment: vendor changed, reselecting", "vendorId", vendor.ID, "attempt", attempt)
			continue
		default:
			return c.afterStale(ctx, lead, err)
		}
	}

	return Outcome{}, apperr.Conflict(fmt.Sprintf("vendor selection did not settle after %d attempts", c.maxAttempts)).
		WithOp("assignment.Assign")
}

// Reassign moves an assigned lead to another vendor. Without vendorID the
// matcher selects among the remaining vendors; with it the named vendor is
// assigned as a manual override. The swap is a single store transaction, so
// when no other vendor can take the lead or the swap keeps losing races the
// current assignment stays in place.
func (c *Coordinator) Reassign(ctx context.Context, tenantID, leadID uuid.UUID, reason string, vendorID *uuid.UUID) (Outcome, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Outcome{}, apperr.Validation("reassignment reason is required")
	}

	lead, err := c.store.Get(ctx, tenantID, leadID)
	if err != nil {
		return Outcome{}, err
	}
	if !lead.IsAssigned() {
		return Outcome{}, apperr.Conflict("lead is not assigned")
	}
	prior := *lead.AssignedVendorID
	if vendorID != nil && *vendorID == prior {
		return Outcome{}, apperr.Validation("lead is already assigned to this vendor")
	}

	log := c.log.WithLead(lead.ID.String())
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		vendor, method, err := c.replacement(ctx, lead, prior, vendorID)
		if err != nil {
			return Outcome{}, err
		}

		at := c.now()
		err = c.store.Reassign(ctx, repository.Reassignment{
			Commit: repository.Commit{
				TenantID:       tenantID,
				LeadID:         leadID,
				VendorID:       vendor.ID,
				VendorRevision: vendor.Revision,
				Method:         method,
				RecordID:       ids.New(),
				At:             at,
			},
			PriorVendorID:  prior,
			Reason:         reason,
			ReassignmentID: ids.New(),
		})
		switch {
		case err == nil:
			lead.FailureReason, lead.FailureDetail = "", ""
			out := c.committed(ctx, lead, vendor, method, at)
			c.bus.Publish(ctx, events.LeadReassigned{
				BaseEvent:     events.NewBaseEvent(),
				LeadID:        leadID,
				TenantID:      tenantID,
				PriorVendorID: prior,
				VendorID:      vendor.ID,
				Reason:        reason,
			})
			return out, nil
		case errors.Is(err, domain.ErrVendorConflict):
			log.Debug("reassignment: vendor changed, reselecting", "vendorId", vendor.ID, "attempt", attempt)
			continue
		case errors.Is(err, domain.ErrStaleLead):
			return Outcome{}, apperr.Conflict("lead assignment changed concurrently")
		default:
			return Outcome{}, err
		}
	}

	return Outcome{}, apperr.Conflict(fmt.Sprintf("reassignment did not settle after %d attempts", c.maxAttempts)).
		WithOp("assignment.Reassign")
}

// replacement picks the vendor a reassignment moves to. It is read fresh on
// every attempt so a lost compare-and-swap retries against the current
// revision.
func (c *Coordinator) replacement(ctx context.Context, lead domain.Lead, prior uuid.UUID, vendorID *uuid.UUID) (vendordomain.Vendor, string, error) {
	if vendorID != nil {
		v, err := c.vendors.Get(ctx, lead.TenantID, *vendorID)
		if err != nil {
			return vendordomain.Vendor{}, "", err
		}
		if !v.Available() {
			return vendordomain.Vendor{}, "", apperr.Validation("vendor is not taking new work")
		}
		return v, vendordomain.MethodManualOverride, nil
	}

	result, err := c.matcher.Match(ctx, vendorsvc.MatchRequest{
		TenantID: lead.TenantID,
		Category: lead.ServiceCategory,
		ZipCode:  lead.Attributes.ZipCode,
		Exclude:  []uuid.UUID{prior},
	})
	if err != nil {
		return vendordomain.Vendor{}, "", fmt.Errorf("match vendors: %w", err)
	}
	v, ok := result.Selected()
	if !ok {
		return vendordomain.Vendor{}, "", apperr.Unprocessable("no other vendor can take this lead; the current assignment is kept")
	}
	return v, result.Method, nil
}

func (c *Coordinator) committed(ctx context.Context, lead domain.Lead, vendor vendordomain.Vendor, method string, at time.Time) Outcome {
	from := lead.Status
	vendorID := vendor.ID
	lead.Status = domain.StatusAssigned
	lead.AssignedVendorID = &vendorID
	lead.RoutingMethod = method
	lead.AssignedAt = &at
	lead.UpdatedAt = at

	c.log.LeadStage(lead.ID.String(), string(from), string(domain.StatusAssigned))
	c.bus.Publish(ctx, events.LeadAssigned{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		TenantID:  lead.TenantID,
		VendorID:  vendor.ID,
		Method:    method,
	})
	return Outcome{Lead: lead, Vendor: vendor, Method: method}
}

func (c *Coordinator) existing(ctx context.Context, lead domain.Lead) (Outcome, error) {
	vendor, err := c.vendors.Get(ctx, lead.TenantID, *lead.AssignedVendorID)
	if err != nil {
		return Outcome{}, err
	}
	return Outcome{Lead: lead, Vendor: vendor, Method: lead.RoutingMethod, Existing: true}, nil
}

// afterStale re-reads a lead whose state moved underneath us. A concurrent
// assignment of the same lead is reported as the existing assignment.
func (c *Coordinator) afterStale(ctx context.Context, lead domain.Lead, cause error) (Outcome, error) {
	if !errors.Is(cause, domain.ErrStaleLead) {
		return Outcome{}, cause
	}
	current, err := c.store.Get(ctx, lead.TenantID, lead.ID)
	if err != nil {
		return Outcome{}, err
	}
	if current.IsAssigned() {
		return c.existing(ctx, current)
	}
	return Outcome{}, apperr.Conflict(fmt.Sprintf("lead moved to %s during assignment", current.Status))
}

func (c *Coordinator) noVendor(ctx context.Context, lead domain.Lead, result vendorsvc.MatchResult) error {
	reason := domain.FailureNoVendor
	detail := fmt.Sprintf("no eligible vendor for %s in %s", lead.ServiceCategory, lead.Attributes.ZipCode)
	if result.Reason == vendorsvc.ReasonNoCoverage {
		reason = domain.FailureNoCoverage
		detail = fmt.Sprintf("zip code %s is outside the coverage directory", lead.Attributes.ZipCode)
	}

	if err := c.store.Fail(ctx, lead.TenantID, lead.ID, reason, detail); err != nil {
		return fmt.Errorf("record routing failure: %w", err)
	}
	c.log.LeadStage(lead.ID.String(), string(lead.Status), string(domain.StatusFailed))
	c.bus.Publish(ctx, events.LeadRoutingFailed{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    lead.ID,
		TenantID:  lead.TenantID,
		Reason:    string(reason),
		Category:  lead.ServiceCategory,
		ZipCode:   lead.Attributes.ZipCode,
	})
	return &RoutingError{Reason: reason, Detail: detail}
}
