package usecase_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/seo-audit-service/internal/entity"
)

func runningAudit(t *testing.T, h *harness, id string, limit, depth int) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.store.Create(ctx, &entity.Audit{ID: id, TargetURL: "https://example.com", Status: entity.AuditQueued, PagesLimit: limit, CrawlDepth: depth}))
	require.NoError(t, h.store.MarkRunning(ctx, id, "https://example.com/", "example.com"))
}

func enqueue(t *testing.T, h *harness, auditID string, n, depth int) {
	t.Helper()
	for i := 0; i < n; i++ {
		u := fmt.Sprintf("https://example.com/%d-%d", depth, i)
		ok, err := h.store.Frontier().Enqueue(context.Background(), &entity.FrontierEntry{AuditID: auditID, URL: u, NormalizedURL: u, Depth: depth})
		require.NoError(t, err)
		require.True(t, ok)
	}
}

func TestCoordinator_ClaimsUpToConcurrency(t *testing.T) {
	h := newHarness(t, time.Second)
	runningAudit(t, h, "a1", 10, 2)
	enqueue(t, h, "a1", 5, 1)

	require.NoError(t, h.pipeline.Coordinator.Advance(context.Background(), "a1"))

	counts, err := h.store.Frontier().Counts(context.Background(), "a1", 2)
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Processing)
	assert.Equal(t, 2, counts.Queued)
	assert.Equal(t, 3, h.queue.Len())

	// Every slot is taken, so a second pass dispatches nothing.
	require.NoError(t, h.pipeline.Coordinator.Advance(context.Background(), "a1"))
	assert.Equal(t, 3, h.queue.Len())
}

func TestCoordinator_ClaimWidthBoundedByRemainingBudget(t *testing.T) {
	h := newHarness(t, time.Second)
	runningAudit(t, h, "a1", 4, 2)
	enqueue(t, h, "a1", 4, 1)
	for i := 0; i < 2; i++ {
		ok, err := h.store.CountScanned(context.Background(), "a1")
		require.NoError(t, err)
		require.True(t, ok)
	}

	require.NoError(t, h.pipeline.Coordinator.Advance(context.Background(), "a1"))

	counts, err := h.store.Frontier().Counts(context.Background(), "a1", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, counts.Processing)
}

func TestCoordinator_IgnoresEntriesBeyondCrawlDepth(t *testing.T) {
	h := newHarness(t, time.Second)
	runningAudit(t, h, "a1", 10, 1)
	enqueue(t, h, "a1", 2, 2)

	require.NoError(t, h.pipeline.Coordinator.Advance(context.Background(), "a1"))

	counts, err := h.store.Frontier().Counts(context.Background(), "a1", 1)
	require.NoError(t, err)
	assert.Zero(t, counts.Processing)
	// Nothing is claimable, so finalization is scheduled.
	task, err := h.queue.Reserve(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskFinalizeAudit, task.Type)
}

func TestCoordinator_SkipsQueuedOnceLimitReached(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	runningAudit(t, h, "a1", 2, 3)
	enqueue(t, h, "a1", 2, 1)
	for i := 0; i < 2; i++ {
		_, err := h.store.CountScanned(ctx, "a1")
		require.NoError(t, err)
	}

	require.NoError(t, h.pipeline.Coordinator.Advance(ctx, "a1"))

	counts, err := h.store.Frontier().Counts(ctx, "a1", 3)
	require.NoError(t, err)
	assert.Zero(t, counts.Queued)
	assert.Equal(t, 2, counts.Done)
	task, err := h.queue.Reserve(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskFinalizeAudit, task.Type)
}

func TestCoordinator_WaitsForInFlightEntries(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	runningAudit(t, h, "a1", 10, 1)
	enqueue(t, h, "a1", 1, 0)
	claimed, err := h.store.Frontier().Claim(ctx, "a1", 1, 1)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	require.NoError(t, h.pipeline.Coordinator.Advance(ctx, "a1"))
	assert.Zero(t, h.queue.Len())

	require.NoError(t, h.store.Frontier().MarkDone(ctx, claimed[0].ID))
	require.NoError(t, h.pipeline.Coordinator.Advance(ctx, "a1"))
	assert.Equal(t, 1, h.queue.Len())
}

func TestCoordinator_NoopForTerminalAudit(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	runningAudit(t, h, "a1", 10, 1)
	enqueue(t, h, "a1", 3, 0)
	require.NoError(t, h.store.MarkFailed(ctx, "a1", "boom"))

	require.NoError(t, h.pipeline.Coordinator.Advance(ctx, "a1"))
	assert.Zero(t, h.queue.Len())
}

func TestFinalize_DefersWhileCrawlHasWork(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	runningAudit(t, h, "a1", 10, 1)
	enqueue(t, h, "a1", 1, 0)

	require.NoError(t, h.pipeline.Finalizer.Finalize(ctx, &entity.Task{Type: entity.TaskFinalizeAudit, AuditID: "a1"}))

	a, err := h.store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, entity.AuditRunning, a.Status)
	assert.Empty(t, a.CategoryScores)
	// The queued entry was dispatched instead.
	task, err := h.queue.Reserve(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskCrawlPage, task.Type)
}

func TestFinalize_ResubmitsPendingPhases(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	runningAudit(t, h, "a1", 10, 1)
	_, err := h.store.UpdateScores(ctx, "a1", func(a *entity.Audit) error {
		a.PendingPhases = []entity.Phase{entity.PhaseSecurity}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, h.pipeline.Finalizer.Finalize(ctx, &entity.Task{Type: entity.TaskFinalizeAudit, AuditID: "a1"}))

	task, err := h.queue.Reserve(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, entity.TaskScorePhase, task.Type)
	assert.Equal(t, entity.PhaseSecurity, task.Phase)
}

func TestPhaseScorer_ExhaustedPhaseStillCompletesAudit(t *testing.T) {
	h := newHarness(t, time.Second)
	ctx := context.Background()
	runningAudit(t, h, "a1", 10, 1)
	_, err := h.store.UpdateScores(ctx, "a1", func(a *entity.Audit) error {
		a.CategoryScores = map[entity.Category]int{entity.CategoryOnPage: 80}
		a.PendingPhases = []entity.Phase{entity.PhasePerformance}
		return nil
	})
	require.NoError(t, err)

	task := &entity.Task{Type: entity.TaskScorePhase, AuditID: "a1", Phase: entity.PhasePerformance}
	require.NoError(t, h.pipeline.Phases.RunExhausted(ctx, task, assert.AnError))
	h.pipeline.Flush()

	a, err := h.store.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, entity.AuditCompleted, a.Status)
	assert.Equal(t, 80, a.CategoryScores[entity.CategoryOnPage])
	assert.Equal(t, 100, a.CategoryScores[entity.CategoryPerformance])
}
