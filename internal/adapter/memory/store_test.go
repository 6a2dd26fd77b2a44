package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

func newAudit(t *testing.T, s *Store, limit, depth int) *entity.Audit {
	t.Helper()
	a := &entity.Audit{ID: "a1", Status: entity.AuditQueued, PagesLimit: limit, CrawlDepth: depth}
	require.NoError(t, s.Create(context.Background(), a))
	return a
}

func TestFrontier_ConcurrentEnqueueCreatesOneEntry(t *testing.T) {
	s := NewStore()
	newAudit(t, s, 100, 3)
	fr := s.Frontier()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := fr.Enqueue(context.Background(), &entity.FrontierEntry{
				AuditID: "a1", URL: "https://example.com/a", NormalizedURL: "https://example.com/a", Depth: 1,
			})
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, inserted)
	assert.Len(t, fr.List("a1"), 1)
	a, err := s.Get(context.Background(), "a1")
	require.NoError(t, err)
	assert.Equal(t, 1, a.PagesDiscovered)
}

func TestFrontier_EnqueueStopsAtDiscoveryBudget(t *testing.T) {
	s := NewStore()
	newAudit(t, s, 2, 3)
	fr := s.Frontier()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		u := fmt.Sprintf("https://example.com/%d", i)
		_, err := fr.Enqueue(ctx, &entity.FrontierEntry{AuditID: "a1", URL: u, NormalizedURL: u})
		require.NoError(t, err)
	}
	assert.Len(t, fr.List("a1"), 2)
}

func TestFrontier_ClaimAndTransitions(t *testing.T) {
	s := NewStore()
	newAudit(t, s, 10, 1)
	fr := s.Frontier()
	ctx := context.Background()

	for i, depth := range []int{0, 1, 1, 2} {
		u := fmt.Sprintf("https://example.com/%d", i)
		_, err := fr.Enqueue(ctx, &entity.FrontierEntry{AuditID: "a1", URL: u, NormalizedURL: u, Depth: depth})
		require.NoError(t, err)
	}

	counts, err := fr.Counts(ctx, "a1", 1)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Queued, "depth 2 entry is beyond the crawl depth")

	claimed, err := fr.Claim(ctx, "a1", 1, 2)
	require.NoError(t, err)
	require.Len(t, claimed, 2)
	assert.Equal(t, 0, claimed[0].Depth)
	assert.Equal(t, entity.FrontierProcessing, claimed[0].Status)

	require.NoError(t, fr.MarkDone(ctx, claimed[0].ID))
	require.NoError(t, fr.MarkFailed(ctx, claimed[1].ID, "timeout"))

	var terr *entity.TransitionError
	assert.ErrorAs(t, fr.MarkDone(ctx, claimed[1].ID), &terr)

	skipped, err := fr.SkipQueued(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 2, skipped)

	counts, err = fr.Counts(ctx, "a1", 1)
	require.NoError(t, err)
	assert.Equal(t, entity.FrontierCounts{Queued: 0, Processing: 0, Done: 3, Failed: 1}, counts)

	failed, err := fr.ListFailed(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "timeout", failed[0].LastError)
}

func TestAudit_CountScannedNeverExceedsLimit(t *testing.T) {
	s := NewStore()
	newAudit(t, s, 3, 1)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.CountScanned(ctx, "a1")
		}()
	}
	wg.Wait()

	a, err := s.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, 3, a.PagesScanned)

	_, err = s.Get(ctx, "missing")
	assert.ErrorIs(t, err, repository.ErrNotFound)
}

func TestLinks_UpsertIsIdempotent(t *testing.T) {
	s := NewStore()
	links := s.Links()
	ctx := context.Background()

	edge := func() *entity.LinkEdge {
		return &entity.LinkEdge{AuditID: "a1", FromURL: "https://example.com/", ToURL: "/b#x", NormalizedToURL: "https://example.com/b", Type: entity.LinkInternal}
	}
	n, err := links.UpsertEdges(ctx, []*entity.LinkEdge{edge(), edge()})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	n, err = links.UpsertEdges(ctx, []*entity.LinkEdge{edge()})
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	pending, err := links.ListUnvalidated(ctx, "a1", entity.LinkInternal, 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	code := 404
	require.NoError(t, links.SaveValidation(ctx, pending[0].ID, entity.LinkValidation{StatusCode: &code, Broken: true}))
	pending, err = links.ListUnvalidated(ctx, "a1", entity.LinkInternal, 0)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestPages_UpsertKeepsPerformance(t *testing.T) {
	s := NewStore()
	pages := s.Pages()
	ctx := context.Background()

	require.NoError(t, pages.Upsert(ctx, &entity.PageRecord{AuditID: "a1", URL: "https://example.com/", StatusCode: 200}))
	require.NoError(t, pages.SavePerformance(ctx, "a1", "https://example.com/", &entity.PerformanceMetrics{Score: 80}, nil))
	require.NoError(t, pages.Upsert(ctx, &entity.PageRecord{AuditID: "a1", URL: "https://example.com/", StatusCode: 301}))

	list, err := pages.ListByAudit(ctx, "a1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 301, list[0].StatusCode)
	require.NotNil(t, list[0].MobilePerf)
	assert.InDelta(t, 80.0, list[0].MobilePerf.Score, 1e-9)
}

func TestQueue_DelayVisibilityAndAck(t *testing.T) {
	q := NewQueue()
	now := time.Now()
	q.now = func() time.Time { return now }
	ctx := context.Background()

	require.NoError(t, q.Submit(ctx, &entity.Task{Type: entity.TaskFinalizeAudit, AuditID: "a1"}, time.Second))
	_, err := q.Reserve(ctx, time.Minute)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)

	now = now.Add(2 * time.Second)
	task, err := q.Reserve(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskFinalizeAudit, task.Type)
	assert.NotEmpty(t, task.ID)

	_, err = q.Reserve(ctx, time.Minute)
	assert.ErrorIs(t, err, repository.ErrQueueEmpty)

	// Not acknowledged within the visibility timeout: redelivered.
	now = now.Add(2 * time.Minute)
	again, err := q.Reserve(ctx, time.Minute)
	require.NoError(t, err)
	assert.Equal(t, task.ID, again.ID)

	require.NoError(t, q.Ack(ctx, again))
	assert.Equal(t, 0, q.Len())
}

func TestGuard(t *testing.T) {
	g := NewGuard()
	ctx := context.Background()
	ok, _ := g.Acquire(ctx, "a1", time.Minute)
	assert.True(t, ok)
	ok, _ = g.Acquire(ctx, "a1", time.Minute)
	assert.False(t, ok)
	require.NoError(t, g.Release(ctx, "a1"))
	ok, _ = g.Acquire(ctx, "a1", time.Minute)
	assert.True(t, ok)
}
