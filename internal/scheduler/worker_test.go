package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"marine_leads_backend/internal/leads/domain"
	"marine_leads_backend/internal/leads/pipeline"
	leadrepo "marine_leads_backend/internal/leads/repository"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubResumer struct {
	calls int
	out   pipeline.Outcome
	err   error
}

func (s *stubResumer) Resume(_ context.Context, _, leadID uuid.UUID) (pipeline.Outcome, error) {
	s.calls++
	out := s.out
	out.Lead.ID = leadID
	return out, s.err
}

type stubStale struct {
	cutoff time.Time
	leads  []leadrepo.StaleLead
}

func (s *stubStale) ListStale(_ context.Context, cutoff time.Time, _ int) ([]leadrepo.StaleLead, error) {
	s.cutoff = cutoff
	return s.leads, nil
}

type recordingQueue struct {
	rerouted []uuid.UUID
	resumed  []uuid.UUID
	failOn   uuid.UUID
}

func (q *recordingQueue) ScheduleReroute(_ context.Context, _, leadID uuid.UUID) error {
	q.rerouted = append(q.rerouted, leadID)
	return nil
}

func (q *recordingQueue) EnqueueResume(_ context.Context, _, leadID uuid.UUID) error {
	if leadID == q.failOn {
		return errors.New("redis unavailable")
	}
	q.resumed = append(q.resumed, leadID)
	return nil
}

func leadTask(t *testing.T, typename string, leadID uuid.UUID) *asynq.Task {
	t.Helper()
	task, err := newLeadTask(typename, LeadPayload{LeadID: leadID.String(), TenantID: uuid.NewString()})
	require.NoError(t, err)
	return task
}

func TestRerouteRetriesWhileUnroutable(t *testing.T) {
	resumer := &stubResumer{err: apperr.Unprocessable("no vendor can take this lead")}
	w := newWorker(resumer, &stubStale{}, &recordingQueue{}, 0, logger.Discard())

	err := w.handleReroute(context.Background(), leadTask(t, TaskLeadReroute, uuid.New()))
	require.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
	assert.Equal(t, 1, resumer.calls)
}

func TestRerouteCompletesOnceAssigned(t *testing.T) {
	resumer := &stubResumer{out: pipeline.Outcome{Lead: domain.Lead{Status: domain.StatusSynced}}}
	w := newWorker(resumer, &stubStale{}, &recordingQueue{}, 0, logger.Discard())

	assert.NoError(t, w.handleReroute(context.Background(), leadTask(t, TaskLeadReroute, uuid.New())))
}

func TestResumeRoutingFailureSchedulesReroute(t *testing.T) {
	queue := &recordingQueue{}
	w := newWorker(&stubResumer{err: apperr.Unprocessable("no coverage")}, &stubStale{}, queue, 0, logger.Discard())
	leadID := uuid.New()

	require.NoError(t, w.handleResume(context.Background(), leadTask(t, TaskLeadResume, leadID)))
	assert.Equal(t, []uuid.UUID{leadID}, queue.rerouted)
}

func TestResumeSettlesOrRetriesByKind(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		wantErr   bool
		skipRetry bool
	}{
		{name: "sync failure is settled", err: apperr.Upstream("crm rejected the lead")},
		{name: "validation failure is settled", err: apperr.Validation("missing contact")},
		{name: "unknown lead is dropped", err: apperr.NotFound("lead not found"), wantErr: true, skipRetry: true},
		{name: "internal error retries", err: apperr.Internal("database unavailable"), wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := newWorker(&stubResumer{err: tc.err}, &stubStale{}, &recordingQueue{}, 0, logger.Discard())
			err := w.handleResume(context.Background(), leadTask(t, TaskLeadResume, uuid.New()))
			if !tc.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tc.skipRetry, errors.Is(err, asynq.SkipRetry))
		})
	}
}

func TestMalformedPayloadIsNotRetried(t *testing.T) {
	w := newWorker(&stubResumer{}, &stubStale{}, &recordingQueue{}, 0, logger.Discard())

	err := w.handleResume(context.Background(), asynq.NewTask(TaskLeadResume, []byte(`{"leadId":"nope"}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReconcileEnqueuesStaleLeads(t *testing.T) {
	broken := uuid.New()
	first, second := uuid.New(), uuid.New()
	stale := &stubStale{leads: []leadrepo.StaleLead{
		{ID: first, TenantID: uuid.New(), Status: domain.StatusClassified},
		{ID: broken, TenantID: uuid.New(), Status: domain.StatusAssigned},
		{ID: second, TenantID: uuid.New(), Status: domain.StatusMatched},
	}}
	queue := &recordingQueue{failOn: broken}
	w := newWorker(&stubResumer{}, stale, queue, 15*time.Minute, logger.Discard())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	w.now = func() time.Time { return now }

	require.NoError(t, w.handleReconcile(context.Background(), NewLeadReconcileTask()))
	assert.Equal(t, now.Add(-15*time.Minute), stale.cutoff)
	assert.Equal(t, []uuid.UUID{first, second}, queue.resumed)
}
