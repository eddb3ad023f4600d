package scheduler

import (
	"context"
	"testing"
	"time"

	"marine_leads_backend/platform/config"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client, err := NewClient(&config.Config{
		RedisURL:       "redis://" + mr.Addr(),
		AsynqQueueName: "leads",
		RerouteDelay:   time.Minute,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client, mr
}

func TestNewClientRequiresRedis(t *testing.T) {
	_, err := NewClient(&config.Config{})
	assert.Error(t, err)
}

func TestEnqueueResumeCollapsesPendingDuplicates(t *testing.T) {
	client, mr := newTestClient(t)
	ctx := context.Background()
	tenantID, leadID := uuid.New(), uuid.New()

	require.NoError(t, client.EnqueueResume(ctx, tenantID, leadID))
	require.NoError(t, client.EnqueueResume(ctx, tenantID, leadID))

	pending, err := mr.List("asynq:{leads}:pending")
	require.NoError(t, err)
	assert.Equal(t, []string{"resume:" + leadID.String()}, pending)
}

func TestScheduleRerouteIsDelayed(t *testing.T) {
	client, mr := newTestClient(t)

	require.NoError(t, client.ScheduleReroute(context.Background(), uuid.New(), uuid.New()))

	scheduled, err := mr.ZMembers("asynq:{leads}:scheduled")
	require.NoError(t, err)
	assert.Len(t, scheduled, 1)
	assert.False(t, mr.Exists("asynq:{leads}:pending"))
}

func TestRedisClientOptHonoursTLSFlag(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@cache.internal:6380/2", true)
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opt.Addr)
	assert.Equal(t, "secret", opt.Password)
	assert.Equal(t, 2, opt.DB)
	require.NotNil(t, opt.TLSConfig)
	assert.True(t, opt.TLSConfig.InsecureSkipVerify)
}
