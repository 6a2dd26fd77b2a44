package usecase

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/rules"
	"github.com/user/seo-audit-service/pkg/urlutil"
)

// Phases scored during finalization, and the ones handed to separate phase tasks afterwards.
var (
	immediatePhases = []entity.Phase{entity.PhaseContent, entity.PhaseTechnical}
	deferredPhases  = []entity.Phase{entity.PhasePerformance, entity.PhaseSecurity}
)

// Finalizer closes the crawl of an audit: link validation, crawl stats, first scoring pass and
// scheduling of the remaining phases. Running it twice is safe.
type Finalizer struct {
	d           *Deps
	coordinator *Coordinator
	validator   *LinkValidator
	phases      *PhaseScorer
}

func NewFinalizer(d *Deps, coordinator *Coordinator, validator *LinkValidator, phases *PhaseScorer) *Finalizer {
	return &Finalizer{d: d, coordinator: coordinator, validator: validator, phases: phases}
}

func (uc *Finalizer) Finalize(ctx context.Context, task *entity.Task) error {
	a, err := uc.d.Audits.Get(ctx, task.AuditID)
	if err != nil {
		return fmt.Errorf("failed to load audit %s: %w", task.AuditID, err)
	}
	if a.Status != entity.AuditRunning {
		return nil
	}
	if len(a.PendingPhases) > 0 {
		// A previous run got as far as the first scoring pass.
		return uc.submitPhases(ctx, a.ID, a.PendingPhases)
	}

	acquired, err := uc.d.Guard.Acquire(ctx, a.ID, uc.d.Settings.FinalizeLockTTL)
	if err != nil {
		return fmt.Errorf("failed to acquire finalize lock of %s: %w", a.ID, err)
	}
	if !acquired {
		uc.d.Logger.Debug("finalization already in progress", zap.String("audit_id", a.ID))
		return nil
	}

	if err := uc.finalize(ctx, a); err != nil {
		if relErr := uc.d.Guard.Release(ctx, a.ID); relErr != nil {
			uc.d.Logger.Warn("failed to release finalize lock", zap.String("audit_id", a.ID), zap.Error(relErr))
		}
		return err
	}
	return nil
}

// FinalizeExhausted fails the audit when finalization keeps erroring.
func (uc *Finalizer) FinalizeExhausted(ctx context.Context, task *entity.Task, cause error) error {
	msg := "finalization failed"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return failAudit(ctx, uc.d, task.AuditID, msg)
}

func (uc *Finalizer) finalize(ctx context.Context, a *entity.Audit) error {
	logger := uc.d.Logger.With(zap.String("audit_id", a.ID))

	counts, err := uc.d.Frontier.Counts(ctx, a.ID, a.CrawlDepth)
	if err != nil {
		return fmt.Errorf("failed to count frontier of %s: %w", a.ID, err)
	}
	if counts.Processing > 0 || (counts.Queued > 0 && a.PagesScanned < a.PagesLimit) {
		logger.Info("finalization deferred, crawl still has work",
			zap.Int("queued", counts.Queued), zap.Int("processing", counts.Processing))
		if err := uc.d.Guard.Release(ctx, a.ID); err != nil {
			logger.Warn("failed to release finalize lock", zap.Error(err))
		}
		return uc.coordinator.Advance(ctx, a.ID)
	}

	if err := uc.d.Audits.SetProgress(ctx, a.ID, entity.ProgressFinalizing); err != nil {
		return fmt.Errorf("failed to set progress of %s: %w", a.ID, err)
	}
	if _, err := uc.d.Frontier.SkipQueued(ctx, a.ID); err != nil {
		return fmt.Errorf("failed to skip leftover entries of %s: %w", a.ID, err)
	}

	if _, err := uc.validator.Validate(ctx, a.ID); err != nil {
		return fmt.Errorf("failed to validate links of %s: %w", a.ID, err)
	}

	in, err := uc.phases.input(ctx, a.ID)
	if err != nil {
		return err
	}
	stats := crawlStats(in)
	if err := uc.d.Audits.SaveCrawlStats(ctx, a.ID, stats); err != nil {
		return fmt.Errorf("failed to save crawl stats of %s: %w", a.ID, err)
	}

	results := make([]*entity.PhaseResult, 0, len(immediatePhases))
	for _, phase := range immediatePhases {
		rule, ok := uc.d.Rules[phase]
		if !ok {
			continue
		}
		res, err := rule.Evaluate(ctx, in)
		if err != nil {
			return fmt.Errorf("failed to evaluate %s phase of %s: %w", phase, a.ID, err)
		}
		results = append(results, res)
	}

	var pending []entity.Phase
	for _, phase := range deferredPhases {
		if _, ok := uc.d.Rules[phase]; ok {
			pending = append(pending, phase)
		}
	}

	updated, err := uc.d.Audits.UpdateScores(ctx, a.ID, func(cur *entity.Audit) error {
		if cur.Status != entity.AuditRunning || len(cur.PendingPhases) > 0 {
			return errPhaseSettled
		}
		for _, res := range results {
			uc.d.Settings.Scoring.Apply(cur, res)
		}
		cur.PendingPhases = append([]entity.Phase(nil), pending...)
		if len(pending) == 0 {
			complete(cur)
		}
		return nil
	})
	if errors.Is(err, errPhaseSettled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to store scores of %s: %w", a.ID, err)
	}

	logger.Info("crawl finalized",
		zap.Int("pages", len(in.Pages)),
		zap.Int("links", len(in.Links)),
		zap.Int("broken_links", stats.BrokenLinks),
		zap.Any("pending_phases", pending))

	if updated.Status == entity.AuditCompleted {
		uc.phases.completed(updated)
		return nil
	}
	return uc.submitPhases(ctx, a.ID, pending)
}

func (uc *Finalizer) submitPhases(ctx context.Context, auditID string, phases []entity.Phase) error {
	for _, phase := range phases {
		task := &entity.Task{Type: entity.TaskScorePhase, AuditID: auditID, Phase: phase}
		if err := uc.d.Queue.Submit(ctx, task, 0); err != nil {
			return fmt.Errorf("failed to submit %s phase of %s: %w", phase, auditID, err)
		}
	}
	return nil
}

// crawlStats summarises the validated link graph.
func crawlStats(in *entity.PhaseInput) entity.CrawlStats {
	var stats entity.CrawlStats
	chains := make(map[string]bool)
	for _, e := range in.Links {
		if e.Broken {
			stats.BrokenLinks++
		}
		if e.Validated() {
			stats.ValidatedLinks++
		}
		if e.RedirectHops > 1 {
			chains[e.NormalizedToURL] = true
		}
	}
	for _, p := range in.Pages {
		if p.RedirectHops > 1 {
			key, ok := urlutil.Normalize(p.RequestedURL, "")
			if !ok {
				key = p.RequestedURL
			}
			chains[key] = true
		}
		if p.StatusCode >= 400 {
			stats.FailedPages++
		}
	}
	stats.RedirectChains = len(chains)
	stats.FailedPages += len(in.FailedEntries)
	stats.DuplicateTitleGroups = len(rules.DuplicateGroups(in.Pages, rules.Title))
	stats.DuplicateMetaGroups = len(rules.DuplicateGroups(in.Pages, rules.MetaDescription))
	return stats
}
