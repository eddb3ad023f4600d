package scheduler

import (
	"context"
	"fmt"
	"time"

	"marine_leads_backend/internal/leads/pipeline"
	leadrepo "marine_leads_backend/internal/leads/repository"
	"marine_leads_backend/platform/apperr"
	"marine_leads_backend/platform/config"
	"marine_leads_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	defaultStaleAfter = 10 * time.Minute
	reconcileBatch    = 100
)

// LeadResumer continues a lead from its persisted stage.
type LeadResumer interface {
	Resume(ctx context.Context, tenantID, leadID uuid.UUID) (pipeline.Outcome, error)
}

// StaleLeads lists leads that stopped moving.
type StaleLeads interface {
	ListStale(ctx context.Context, cutoff time.Time, limit int) ([]leadrepo.StaleLead, error)
}

// Queue is the enqueue side used by the worker itself.
type Queue interface {
	ScheduleReroute(ctx context.Context, tenantID, leadID uuid.UUID) error
	EnqueueResume(ctx context.Context, tenantID, leadID uuid.UUID) error
}

type Worker struct {
	server     *asynq.Server
	mux        *asynq.ServeMux
	leads      LeadResumer
	stale      StaleLeads
	queue      Queue
	staleAfter time.Duration
	now        func() time.Time
	log        *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, leads LeadResumer, stale StaleLeads, queue Queue, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	rerouteDelay := cfg.GetRerouteDelay()
	if rerouteDelay <= 0 {
		rerouteDelay = defaultRerouteDelay
	}

	w := newWorker(leads, stale, queue, cfg.GetReconcileStaleAfter(), log)
	w.server = asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
		// a reroute retry waits as long as the first reroute did
		RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
			if t.Type() == TaskLeadReroute {
				return rerouteDelay
			}
			return asynq.DefaultRetryDelayFunc(n, e, t)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(w.handleError),
	})

	return w, nil
}

func newWorker(leads LeadResumer, stale StaleLeads, queue Queue, staleAfter time.Duration, log *logger.Logger) *Worker {
	if staleAfter <= 0 {
		staleAfter = defaultStaleAfter
	}

	w := &Worker{
		mux:        asynq.NewServeMux(),
		leads:      leads,
		stale:      stale,
		queue:      queue,
		staleAfter: staleAfter,
		now:        time.Now,
		log:        log,
	}

	w.mux.HandleFunc(TaskLeadReroute, w.handleReroute)
	w.mux.HandleFunc(TaskLeadResume, w.handleResume)
	w.mux.HandleFunc(TaskLeadReconcile, w.handleReconcile)

	return w
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

// handleReroute retries routing. While the lead is still unroutable the
// task fails so asynq schedules the next attempt.
func (w *Worker) handleReroute(ctx context.Context, task *asynq.Task) error {
	tenantID, leadID, err := parseLead(task)
	if err != nil {
		return err
	}

	out, err := w.leads.Resume(ctx, tenantID, leadID)
	switch {
	case err == nil:
		w.log.Info("lead rerouted", "leadId", leadID, "status", out.Lead.Status)
		return nil
	case apperr.Is(err, apperr.KindUnprocessable):
		return fmt.Errorf("lead %s still unroutable: %w", leadID, err)
	default:
		return w.settle(leadID, err)
	}
}

func (w *Worker) handleResume(ctx context.Context, task *asynq.Task) error {
	tenantID, leadID, err := parseLead(task)
	if err != nil {
		return err
	}

	out, err := w.leads.Resume(ctx, tenantID, leadID)
	switch {
	case err == nil:
		w.log.Info("lead resumed", "leadId", leadID, "status", out.Lead.Status)
		return nil
	case apperr.Is(err, apperr.KindUnprocessable):
		if err := w.queue.ScheduleReroute(ctx, tenantID, leadID); err != nil {
			w.log.Warn("reroute not scheduled", "leadId", leadID, "error", err)
		}
		return nil
	default:
		return w.settle(leadID, err)
	}
}

// settle decides whether a failed resume is worth another attempt. Leads
// that failed validation or sync are settled; only internal errors retry.
func (w *Worker) settle(leadID uuid.UUID, err error) error {
	switch apperr.GetKind(err) {
	case apperr.KindNotFound:
		return fmt.Errorf("lead %s: %v: %w", leadID, err, asynq.SkipRetry)
	case apperr.KindValidation, apperr.KindUpstream, apperr.KindConflict:
		w.log.Info("lead settled by resume", "leadId", leadID, "error", err)
		return nil
	default:
		return err
	}
}

// handleReconcile enqueues a resume for every lead that stopped moving.
func (w *Worker) handleReconcile(ctx context.Context, _ *asynq.Task) error {
	cutoff := w.now().Add(-w.staleAfter)
	stale, err := w.stale.ListStale(ctx, cutoff, reconcileBatch)
	if err != nil {
		w.log.DatabaseError("list stale leads", err)
		return err
	}

	enqueued := 0
	for _, lead := range stale {
		if err := w.queue.EnqueueResume(ctx, lead.TenantID, lead.ID); err != nil {
			w.log.Warn("resume not enqueued", "leadId", lead.ID, "status", lead.Status, "error", err)
			continue
		}
		enqueued++
	}

	if enqueued > 0 {
		w.log.Info("reconcile sweep enqueued resumes", "enqueued", enqueued, "stale", len(stale))
	}
	return nil
}

func (w *Worker) handleError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)
	if task.Type() == TaskLeadReroute && retried >= maxRetry {
		w.log.Warn("reroute attempts exhausted", "payload", string(task.Payload()), "attempts", retried+1, "error", err)
		return
	}
	w.log.Debug("task failed", "type", task.Type(), "retry", retried, "error", err)
}

func parseLead(task *asynq.Task) (uuid.UUID, uuid.UUID, error) {
	payload, err := ParseLeadPayload(task)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("lead id: %v: %w", err, asynq.SkipRetry)
	}

	tenantID, err := uuid.Parse(payload.TenantID)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("tenant id: %v: %w", err, asynq.SkipRetry)
	}

	return tenantID, leadID, nil
}
