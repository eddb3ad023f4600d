package service

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"marine_leads_backend/internal/fieldmap"
	"marine_leads_backend/internal/geo"
	"marine_leads_backend/internal/routing/repository"
	"marine_leads_backend/internal/routing/transport"
	"marine_leads_backend/internal/taxonomy"
	"marine_leads_backend/internal/vendors/domain"
	vendorrepo "marine_leads_backend/internal/vendors/repository"
	vendorsvc "marine_leads_backend/internal/vendors/service"
	vendortransport "marine_leads_backend/internal/vendors/transport"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu     sync.Mutex
	values map[uuid.UUID]int
	reads  atomic.Int32
}

func (m *memStore) GetPerformancePercentage(_ context.Context, tenantID uuid.UUID) (int, error) {
	m.reads.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.values[tenantID]
	if !ok {
		return 0, repository.ErrNotFound
	}
	return p, nil
}

func (m *memStore) UpsertPerformancePercentage(_ context.Context, tenantID uuid.UUID, p int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[tenantID] = p
	return nil
}

type stubPool struct{}

func (stubPool) Counts(context.Context, uuid.UUID) (vendorrepo.Counts, error) {
	return vendorrepo.Counts{Total: 3, TakingNewWork: 2}, nil
}

func (stubPool) Availability(context.Context, uuid.UUID) ([]vendortransport.CategoryAvailability, error) {
	return []vendortransport.CategoryAvailability{{Category: "boat_maintenance", Vendors: 2, Available: true}}, nil
}

type stubPreviewer struct{ preview vendorsvc.Preview }

func (s stubPreviewer) Preview(context.Context, vendorsvc.MatchRequest) (vendorsvc.Preview, error) {
	return s.preview, nil
}

type failingReload[T any] struct{ current *T }

func (f failingReload[T]) Current() *T         { return f.current }
func (f failingReload[T]) Reload() (*T, error) { return nil, errors.New("bad file") }

func refs(t *testing.T) References {
	t.Helper()
	tax, err := taxonomy.NewRegistry("")
	require.NoError(t, err)
	fields, err := fieldmap.NewRegistry("")
	require.NoError(t, err)
	dir, err := geo.NewRegistry("")
	require.NoError(t, err)
	return References{Taxonomy: tax, Fields: fields, Geo: dir}
}

func newService(t *testing.T) (*Service, *memStore) {
	store := &memStore{values: map[uuid.UUID]int{}}
	svc := New(store, refs(t), 70, logger.Discard())
	return svc, store
}

func TestPerformancePercentageFallsBackToDefault(t *testing.T) {
	svc, _ := newService(t)

	p, err := svc.PerformancePercentage(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, 70, p)
}

// slowStore holds every read until release is closed and records the
// context state each read finished with.
type slowStore struct {
	memStore
	started chan struct{}
	release chan struct{}
	mu      sync.Mutex
	ctxErrs []error
}

func (s *slowStore) GetPerformancePercentage(ctx context.Context, _ uuid.UUID) (int, error) {
	s.started <- struct{}{}
	<-s.release
	s.mu.Lock()
	s.ctxErrs = append(s.ctxErrs, ctx.Err())
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return 40, nil
}

func (s *slowStore) finished() []error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.ctxErrs)
}

func TestPerformancePercentageSharedReadSurvivesCallerCancel(t *testing.T) {
	store := &slowStore{started: make(chan struct{}, 4), release: make(chan struct{})}
	svc := New(store, refs(t), 70, logger.Discard())
	tenantID := uuid.New()

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := svc.PerformancePercentage(ctx, tenantID)
		first <- err
	}()
	<-store.started
	cancel()
	assert.ErrorIs(t, <-first, context.Canceled)

	close(store.release)
	p, err := svc.PerformancePercentage(context.Background(), tenantID)
	require.NoError(t, err)
	assert.Equal(t, 40, p)

	require.Eventually(t, func() bool { return len(store.finished()) > 0 }, time.Second, 5*time.Millisecond)
	for _, ctxErr := range store.finished() {
		assert.NoError(t, ctxErr)
	}
}

func TestSetPerformancePercentageRejectsOutOfRange(t *testing.T) {
	svc, _ := newService(t)
	tenant := uuid.New()

	for _, bad := range []int{-1, 101} {
		err := svc.SetPerformancePercentage(context.Background(), tenant, bad)
		require.Error(t, err)
		assert.True(t, apperr.Is(err, apperr.KindValidation))
	}

	require.NoError(t, svc.SetPerformancePercentage(context.Background(), tenant, 0))
	p, err := svc.PerformancePercentage(context.Background(), tenant)
	require.NoError(t, err)
	assert.Equal(t, 0, p)
}

func TestConfigReportsPoolStatus(t *testing.T) {
	svc, _ := newService(t)
	svc.SetVendorPool(stubPool{}, stubPreviewer{})

	cfg, err := svc.Config(context.Background(), uuid.New())

	require.NoError(t, err)
	assert.Equal(t, 70, cfg.PerformancePercentage)
	assert.Equal(t, transport.VendorCounts{Total: 3, TakingNewWork: 2}, cfg.Vendors)
	assert.Len(t, cfg.Services, 1)
	assert.NotEmpty(t, cfg.TaxonomyVersion)
}

func TestMatchTestRanksWithoutSideEffects(t *testing.T) {
	svc, _ := newService(t)
	a := domain.Vendor{ID: uuid.New(), Name: "A", PerformanceScore: 0.9}
	b := domain.Vendor{ID: uuid.New(), Name: "B", PerformanceScore: 0.2}
	svc.SetVendorPool(stubPool{}, stubPreviewer{preview: vendorsvc.Preview{
		Region:                &geo.Region{County: "Miami-Dade", State: "FL"},
		PerformancePercentage: 70,
		ByPerformance:         []domain.Vendor{a, b},
		ByRoundRobin:          []domain.Vendor{b, a},
	}})

	resp, err := svc.MatchTest(context.Background(), uuid.New(), transport.MatchTestRequest{ZipCode: "33139", ServiceCategory: "boat_maintenance"})

	require.NoError(t, err)
	assert.Equal(t, "Miami-Dade", resp.County)
	require.Len(t, resp.PerformanceRanking, 2)
	assert.Equal(t, 1, resp.PerformanceRanking[0].Rank)
	assert.Equal(t, a.ID, resp.PerformanceRanking[0].ID)
	assert.Equal(t, b.ID, resp.RoundRobinRanking[0].ID)
}

func TestMatchTestRejectsUnknownCategory(t *testing.T) {
	svc, _ := newService(t)
	svc.SetVendorPool(stubPool{}, stubPreviewer{})

	_, err := svc.MatchTest(context.Background(), uuid.New(), transport.MatchTestRequest{ZipCode: "33139", ServiceCategory: "space_travel"})

	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindValidation))
}

func TestReloadKeepsPreviousSnapshotsOnFailure(t *testing.T) {
	r := refs(t)
	before := r.Taxonomy.Current()
	r.Geo = failingReload[geo.Directory]{current: r.Geo.Current()}
	svc := New(&memStore{values: map[uuid.UUID]int{}}, r, 70, logger.Discard())

	_, err := svc.ReloadReferences(context.Background())

	require.Error(t, err)
	assert.Equal(t, before.Version, r.Taxonomy.Current().Version)
}

func TestReloadReportsVersions(t *testing.T) {
	svc, _ := newService(t)

	resp, err := svc.ReloadReferences(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "2024.1", resp.TaxonomyVersion)
	assert.Greater(t, resp.GeoZipCount, 0)
}
