package scheduler

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"marine_leads_backend/platform/config"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
)

const defaultRerouteDelay = 30 * time.Minute

type Client struct {
	client       *asynq.Client
	queue        string
	rerouteDelay time.Duration
	maxReroutes  int
}

func NewClient(cfg config.SchedulerConfig) (*Client, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	delay := cfg.GetRerouteDelay()
	if delay <= 0 {
		delay = defaultRerouteDelay
	}

	return &Client{
		client:       asynq.NewClient(opt),
		queue:        queueName(cfg),
		rerouteDelay: delay,
		maxReroutes:  cfg.GetRerouteMaxAttempts(),
	}, nil
}

func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// ScheduleReroute enqueues a delayed routing retry for a lead no vendor
// could take. The task is retried by the worker while the lead stays
// unroutable, up to the configured number of attempts.
func (c *Client) ScheduleReroute(ctx context.Context, tenantID, leadID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewLeadRerouteTask(LeadPayload{LeadID: leadID.String(), TenantID: tenantID.String()})
	if err != nil {
		return err
	}

	opts := []asynq.Option{asynq.ProcessIn(c.rerouteDelay), asynq.Queue(c.queue)}
	if c.maxReroutes > 0 {
		opts = append(opts, asynq.MaxRetry(c.maxReroutes-1))
	}
	_, err = c.client.EnqueueContext(ctx, task, opts...)
	return err
}

// EnqueueResume enqueues an immediate resume. A resume already waiting for
// the same lead is not enqueued twice.
func (c *Client) EnqueueResume(ctx context.Context, tenantID, leadID uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}

	task, err := NewLeadResumeTask(LeadPayload{LeadID: leadID.String(), TenantID: tenantID.String()})
	if err != nil {
		return err
	}

	_, err = c.client.EnqueueContext(ctx, task, asynq.Queue(c.queue), asynq.TaskID("resume:"+leadID.String()))
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	return err
}

func queueName(cfg config.SchedulerConfig) string {
	queue := cfg.GetAsynqQueueName()
	if queue == "" {
		queue = "default"
	}
	return queue
}

func redisClientOpt(redisURL string, tlsInsecure bool) (asynq.RedisClientOpt, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, err
	}

	var tlsConfig *tls.Config
	if opt.TLSConfig != nil {
		clone := opt.TLSConfig.Clone()
		if tlsInsecure {
			clone.InsecureSkipVerify = true
		}
		tlsConfig = clone
	} else if tlsInsecure {
		tlsConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return asynq.RedisClientOpt{
		Addr:      opt.Addr,
		Password:  opt.Password,
		DB:        opt.DB,
		TLSConfig: tlsConfig,
	}, nil
}
