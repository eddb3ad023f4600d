package scheduler

import (
	"context"
	"fmt"
	"time"

	"marine_leads_backend/platform/config"
	"marine_leads_backend/platform/logger"

	"github.com/hibiken/asynq"
)

const defaultReconcileInterval = 5 * time.Minute

// Periodic enqueues the reconcile sweep on a fixed interval. The unique
// option keeps several scheduler replicas from stacking sweeps.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, log *logger.Logger) (*Periodic, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	interval := cfg.GetReconcileInterval()
	if interval <= 0 {
		interval = defaultReconcileInterval
	}

	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{
		PostEnqueueFunc: func(_ *asynq.TaskInfo, err error) {
			if err != nil {
				log.Debug("reconcile sweep not enqueued", "error", err)
			}
		},
	})

	cronspec := "@every " + interval.String()
	if _, err := s.Register(cronspec, NewLeadReconcileTask(), asynq.Queue(queueName(cfg)), asynq.Unique(interval)); err != nil {
		return nil, err
	}

	return &Periodic{scheduler: s, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}

	if err := p.scheduler.Start(); err != nil {
		p.log.Error("periodic scheduler stopped", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}
