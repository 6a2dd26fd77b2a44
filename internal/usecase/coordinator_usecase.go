package usecase

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/entity"
)

// Coordinator is the dispatch and completion step every worker runs after finishing its own
// entry. It keeps no state: each decision is derived from the frontier counts and the audit
// row, so any number of workers may run it concurrently.
type Coordinator struct {
	d      *Deps
	jitter func(max time.Duration) time.Duration
}

func NewCoordinator(d *Deps) *Coordinator {
	return &Coordinator{d: d, jitter: randomJitter}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}

// Advance claims the next batch of frontier entries, or schedules finalization once nothing is
// queued or in flight.
func (c *Coordinator) Advance(ctx context.Context, auditID string) error {
	a, err := c.d.Audits.Get(ctx, auditID)
	if err != nil {
		return fmt.Errorf("failed to load audit %s: %w", auditID, err)
	}
	if a.Status != entity.AuditRunning {
		return nil
	}

	counts, err := c.d.Frontier.Counts(ctx, auditID, a.CrawlDepth)
	if err != nil {
		return fmt.Errorf("failed to count frontier of %s: %w", auditID, err)
	}

	if a.PagesScanned >= a.PagesLimit && counts.Queued > 0 {
		skipped, err := c.d.Frontier.SkipQueued(ctx, auditID)
		if err != nil {
			return fmt.Errorf("failed to skip queued entries of %s: %w", auditID, err)
		}
		c.d.Logger.Debug("page limit reached, skipped queued entries",
			zap.String("audit_id", auditID), zap.Int("skipped", skipped))
		counts.Queued = 0
	}

	if counts.Queued > 0 {
		return c.dispatch(ctx, a, counts)
	}
	if counts.Processing > 0 {
		// Whichever worker finishes the last in-flight entry schedules finalization.
		return nil
	}

	task := &entity.Task{Type: entity.TaskFinalizeAudit, AuditID: auditID}
	if err := c.d.Queue.Submit(ctx, task, c.d.Settings.FinalizeDelay); err != nil {
		return fmt.Errorf("failed to schedule finalization of %s: %w", auditID, err)
	}
	c.d.Logger.Info("frontier exhausted, finalization scheduled", zap.String("audit_id", auditID))
	return nil
}

func (c *Coordinator) dispatch(ctx context.Context, a *entity.Audit, counts entity.FrontierCounts) error {
	width := min(
		c.d.Settings.CrawlConcurrency-counts.Processing,
		a.PagesLimit-a.PagesScanned-counts.Processing,
	)
	if width <= 0 {
		return nil
	}

	claimed, err := c.d.Frontier.Claim(ctx, a.ID, a.CrawlDepth, width)
	if err != nil {
		return fmt.Errorf("failed to claim frontier entries of %s: %w", a.ID, err)
	}
	for _, e := range claimed {
		task := &entity.Task{Type: entity.TaskCrawlPage, AuditID: a.ID, EntryID: e.ID}
		if err := c.d.Queue.Submit(ctx, task, c.jitter(c.d.Settings.DispatchJitter)); err != nil {
			// A claimed entry without a task would stay processing forever and block completion.
			if markErr := c.d.Frontier.MarkFailed(ctx, e.ID, "dispatch failed: "+err.Error()); markErr != nil {
				c.d.Logger.Error("failed to release undispatched entry", zap.Int64("entry_id", e.ID), zap.Error(markErr))
			}
			return fmt.Errorf("failed to dispatch entry %d: %w", e.ID, err)
		}
	}
	if len(claimed) > 0 {
		c.d.Logger.Debug("dispatched frontier entries",
			zap.String("audit_id", a.ID), zap.Int("claimed", len(claimed)), zap.Int("queued", counts.Queued))
	}
	return nil
}
