package pipeline

import (
	"context"
	"testing"
	"time"

	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/internal/geo"
	"marine_leads_backend/internal/leads/assignment"
	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/internal/leads/intake"
	"marine_leads_backend/internal/leads/repository"
	"marine_leads_backend/internal/taxonomy"
	vendordomain "marine_leads_backend/internal/vendors/domain"
	vendorsvc "marine_leads_backend/internal/vendors/service"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/logger"
	"marine_leads_backend/platform/validator"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routedStore backs both the pipeline and a real assignment coordinator,
// keeping the repository's compare-and-swap rules in memory.
type routedStore struct {
	*memStore
	vendors map[uuid.UUID]vendordomain.Vendor
	records []domain.AssignmentRecord
}

func (s *routedStore) ListCandidates(_ context.Context, tenantID uuid.UUID, category string) ([]vendordomain.Vendor, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]vendordomain.Vendor, 0, len(s.vendors))
	for _, v := range s.vendors {
		if v.TenantID == tenantID && v.HasCapability(category) {
			out = append(out, v)
		}
	}
	return out, nil
}

func (s *routedStore) TransitionStatus(_ context.Context, _, leadID uuid.UUID, from, to domain.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.leads[leadID]
	if l.Status != from {
		return domain.ErrStaleLead
	}
	l.Status = to
	s.leads[leadID] = l
	return nil
}

func (s *routedStore) Fail(_ context.Context, _, leadID uuid.UUID, reason domain.FailureReason, detail string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.leads[leadID]
	l.Fail(reason, detail, time.Now().UTC())
	s.leads[leadID] = l
	return nil
}

func (s *routedStore) CommitAssignment(_ context.Context, c repository.Commit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leads[c.LeadID].Status != domain.StatusMatched {
		return domain.ErrStaleLead
	}
	return s.apply(c)
}

func (s *routedStore) Reassign(_ context.Context, ra repository.Reassignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l := s.leads[ra.LeadID]
	if !l.IsAssigned() || *l.AssignedVendorID != ra.PriorVendorID {
		return domain.ErrStaleLead
	}
	return s.apply(ra.Commit)
}

func (s *routedStore) apply(c repository.Commit) error {
	v := s.vendors[c.VendorID]
	if v.Revision != c.VendorRevision || !v.Available() {
		return domain.ErrVendorConflict
	}
	v.Revision++
	v.LeadsReceived++
	s.vendors[v.ID] = v

	l := s.leads[c.LeadID]
	vendorID, at := c.VendorID, c.At
	l.Status = domain.StatusAssigned
	l.AssignedVendorID = &vendorID
	l.RoutingMethod = c.Method
	l.AssignedAt = &at
	l.FailureReason, l.FailureDetail = "", ""
	s.leads[l.ID] = l
	s.records = append(s.records, domain.AssignmentRecord{ID: c.RecordID, LeadID: c.LeadID, VendorID: c.VendorID, Method: c.Method, AssignedAt: c.At})
	return nil
}

func (s *routedStore) vendor(id uuid.UUID) vendordomain.Vendor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.vendors[id]
}

type routedVendors struct{ s *routedStore }

func (r routedVendors) Get(_ context.Context, _, vendorID uuid.UUID) (vendordomain.Vendor, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.vendors[vendorID]
	if !ok {
		return vendordomain.Vendor{}, apperr.NotFound("vendor not found")
	}
	return v, nil
}

type allPerformance struct{}

func (allPerformance) PerformancePercentage(context.Context, uuid.UUID) (int, error) { return 100, nil }

type routedFixture struct {
	pipeline *Pipeline
	store    *routedStore
	syncer   *stubSyncer
	bus      *recordingBus
	rerouter *stubRerouter
}

func newRoutedFixture(t *testing.T, vendors ...vendordomain.Vendor) *routedFixture {
	t.Helper()
	tax, err := taxonomy.NewRegistry("")
	require.NoError(t, err)
	mappings, err := fieldmap.NewRegistry("")
	require.NoError(t, err)
	zips, err := geo.NewRegistry("")
	require.NoError(t, err)

	store := &routedStore{memStore: newMemStore(), vendors: map[uuid.UUID]vendordomain.Vendor{}}
	for _, v := range vendors {
		store.vendors[v.ID] = v
	}
	log := logger.Discard()
	f := &routedFixture{store: store, syncer: &stubSyncer{}, bus: &recordingBus{}, rerouter: &stubRerouter{}}
	matcher := vendorsvc.NewMatcher(store, allPerformance{}, zips, nil, log)
	coord := assignment.New(store, matcher, routedVendors{store}, f.bus, 5, log)
	f.pipeline = New(Deps{
		Store:      store,
		Normalizer: intake.NewNormalizer(validator.New()),
		Classifier: taxonomy.NewKeywordClassifier(tax),
		Resolver:   fieldmap.NewResolver(mappings),
		Assigner:   coord,
		Vendors:    routedVendors{store},
		Syncer:     f.syncer,
		Bus:        f.bus,
		Rerouter:   f.rerouter,
	}, log)
	return f
}

func marineVendor(tenantID uuid.UUID, name string, score float64) vendordomain.Vendor {
	return vendordomain.Vendor{
		ID:               uuid.New(),
		TenantID:         tenantID,
		Name:             name,
		Capabilities:     []string{"boat_maintenance"},
		CoverageType:     vendordomain.CoverageZip,
		CoverageZips:     []string{"33139"},
		PerformanceScore: score,
		TakingNewWork:    true,
		Active:           true,
	}
}

func TestIngestRoutesThroughCoordinator(t *testing.T) {
	tenantID := uuid.New()
	best := marineVendor(tenantID, "Biscayne Marine Care", 0.9)
	other := marineVendor(tenantID, "Keys Detail", 0.4)
	f := newRoutedFixture(t, best, other)

	out, err := f.pipeline.Ingest(context.Background(), johnDoe(tenantID))
	require.NoError(t, err)

	assert.Equal(t, domain.StatusSynced, out.Lead.Status)
	require.NotNil(t, out.Vendor)
	assert.Equal(t, best.ID, out.Vendor.ID)

	stored := f.store.get(out.Lead.ID)
	assert.Equal(t, domain.StatusSynced, stored.Status)
	assert.Equal(t, vendordomain.MethodPerformance, stored.RoutingMethod)
	require.NotNil(t, stored.AssignedVendorID)
	assert.Equal(t, best.ID, *stored.AssignedVendorID)
	assert.Equal(t, 1, f.store.vendor(best.ID).LeadsReceived)
	assert.Len(t, f.store.records, 1)
	assert.Contains(t, f.bus.names, "leads.lead.assigned")
	require.Len(t, f.syncer.requests, 1)
	assert.Equal(t, best.ID, f.syncer.requests[0].VendorID)
}

func TestReassignThroughCoordinatorResyncsNewVendor(t *testing.T) {
	tenantID := uuid.New()
	best := marineVendor(tenantID, "Biscayne Marine Care", 0.9)
	other := marineVendor(tenantID, "Keys Detail", 0.4)
	f := newRoutedFixture(t, best, other)

	first, err := f.pipeline.Ingest(context.Background(), johnDoe(tenantID))
	require.NoError(t, err)

	out, err := f.pipeline.Reassign(context.Background(), tenantID, first.Lead.ID, "vendor declined the job", nil)
	require.NoError(t, err)

	require.NotNil(t, out.Vendor)
	assert.Equal(t, other.ID, out.Vendor.ID)
	stored := f.store.get(first.Lead.ID)
	assert.Equal(t, domain.StatusSynced, stored.Status)
	assert.Equal(t, other.ID, *stored.AssignedVendorID)
	require.Len(t, f.syncer.requests, 2)
	assert.Equal(t, other.ID, f.syncer.requests[1].VendorID)
	assert.Contains(t, f.bus.names, "leads.lead.reassigned")
}

func TestReassignWithoutAlternativeLeavesLeadWithVendor(t *testing.T) {
	tenantID := uuid.New()
	only := marineVendor(tenantID, "Biscayne Marine Care", 0.9)
	f := newRoutedFixture(t, only)

	first, err := f.pipeline.Ingest(context.Background(), johnDoe(tenantID))
	require.NoError(t, err)

	_, err = f.pipeline.Reassign(context.Background(), tenantID, first.Lead.ID, "vendor declined the job", nil)

	assert.Equal(t, apperr.KindUnprocessable, apperr.GetKind(err))
	stored := f.store.get(first.Lead.ID)
	assert.Equal(t, domain.StatusSynced, stored.Status)
	require.NotNil(t, stored.AssignedVendorID)
	assert.Equal(t, only.ID, *stored.AssignedVendorID)
	assert.Len(t, f.store.records, 1)
	assert.Len(t, f.syncer.requests, 1)
	assert.Empty(t, f.rerouter.scheduled)
}

func TestReassignOverrideToUnavailableVendorKeepsAssignment(t *testing.T) {
	tenantID := uuid.New()
	best := marineVendor(tenantID, "Biscayne Marine Care", 0.9)
	paused := marineVendor(tenantID, "Keys Detail", 0.4)
	paused.TakingNewWork = false
	f := newRoutedFixture(t, best, paused)

	first, err := f.pipeline.Ingest(context.Background(), johnDoe(tenantID))
	require.NoError(t, err)

	_, err = f.pipeline.Reassign(context.Background(), tenantID, first.Lead.ID, "customer asked for Keys", &paused.ID)

	assert.Equal(t, apperr.KindValidation, apperr.GetKind(err))
	stored := f.store.get(first.Lead.ID)
	assert.Equal(t, domain.StatusSynced, stored.Status)
	assert.Equal(t, best.ID, *stored.AssignedVendorID)
}
