package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

func newClient(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

func TestQueue_DelayedDelivery(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	q := NewQueueRepo(client)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	require.NoError(t, q.Submit(ctx, &entity.Task{Type: entity.TaskFinalizeAudit, AuditID: "a1"}, 3*time.Second))

	_, err := q.Reserve(ctx, time.Minute)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)

	now = now.Add(3 * time.Second)
	task, err := q.Reserve(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskFinalizeAudit, task.Type)
	assert.Equal(t, "a1", task.AuditID)
	assert.NotEmpty(t, task.ID)
	assert.NotEmpty(t, task.Receipt)
}

func TestQueue_RedeliversAfterVisibilityTimeout(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	q := NewQueueRepo(client)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	q.now = func() time.Time { return now }

	require.NoError(t, q.Submit(ctx, &entity.Task{Type: entity.TaskCrawlPage, AuditID: "a1", EntryID: 7}, 0))

	first, err := q.Reserve(ctx, 10*time.Second)
	require.NoError(t, err)

	_, err = q.Reserve(ctx, 10*time.Second)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty, "reserved task must be invisible")

	now = now.Add(11 * time.Second)
	second, err := q.Reserve(ctx, 10*time.Second)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(7), second.EntryID)

	require.NoError(t, q.Ack(ctx, second))
	size, err := q.Size(ctx)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestQueue_RetryDoesNotCollideWithOriginal(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	q := NewQueueRepo(client)

	require.NoError(t, q.Submit(ctx, &entity.Task{ID: "t1", Type: entity.TaskCrawlPage, AuditID: "a1"}, 0))
	original, err := q.Reserve(ctx, time.Minute)
	require.NoError(t, err)

	require.NoError(t, q.Submit(ctx, original.Retry(), 0))
	require.NoError(t, q.Ack(ctx, original))

	retry, err := q.Reserve(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "t1", retry.ID)
	assert.Equal(t, 1, retry.Attempt)
}

func TestFinalizeLock(t *testing.T) {
	mr, client := newClient(t)
	ctx := context.Background()
	lock := NewFinalizeLock(client)

	ok, err := lock.Acquire(ctx, "a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = lock.Acquire(ctx, "a1", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = lock.Acquire(ctx, "a2", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "locks are per audit")

	mr.FastForward(2 * time.Minute)
	ok, err = lock.Acquire(ctx, "a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok, "an expired hold can be taken over")

	require.NoError(t, lock.Release(ctx, "a1"))
	ok, err = lock.Acquire(ctx, "a1", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestUsageMeter_AppendsToStream(t *testing.T) {
	_, client := newClient(t)
	ctx := context.Background()
	meter := NewUsageMeter(client)

	require.NoError(t, meter.Record(ctx, repository.UsageEvent{
		OrgID:     "org-1",
		EventType: "page_crawled",
		Quantity:  1,
		AuditID:   "a1",
		Context:   map[string]string{"url": "https://example.com/"},
	}))

	entries, err := client.XRange(ctx, usageStreamKey, "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "org-1", entries[0].Values["org_id"])
	assert.Equal(t, "page_crawled", entries[0].Values["event_type"])
	assert.Equal(t, "1", entries[0].Values["quantity"])
	assert.Equal(t, "https://example.com/", entries[0].Values["ctx_url"])
}
