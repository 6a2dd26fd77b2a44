package usecase

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
	"github.com/user/seo-audit-service/internal/rules"
	"github.com/user/seo-audit-service/internal/scoring"
	"github.com/user/seo-audit-service/pkg/metrics"
)

// errPhaseSettled aborts a score update that another run already applied.
var errPhaseSettled = errors.New("phase already merged")

// PhaseScorer runs one deferred rule phase and merges its categories into the audit.
type PhaseScorer struct {
	d     *Deps
	usage *usageRecorder
}

func NewPhaseScorer(d *Deps, usage *usageRecorder) *PhaseScorer {
	return &PhaseScorer{d: d, usage: usage}
}

func (uc *PhaseScorer) Run(ctx context.Context, task *entity.Task) error {
	a, err := uc.d.Audits.Get(ctx, task.AuditID)
	if err != nil {
		return fmt.Errorf("failed to load audit %s: %w", task.AuditID, err)
	}
	if a.Status != entity.AuditRunning || !slices.Contains(a.PendingPhases, task.Phase) {
		return nil
	}

	rule, ok := uc.d.Rules[task.Phase]
	if !ok {
		return uc.merge(ctx, a.ID, emptyResult(task.Phase))
	}

	in, err := uc.input(ctx, a.ID)
	if err != nil {
		return err
	}
	if task.Phase == entity.PhasePerformance {
		in.CompositePerformance = uc.measure(ctx, a, in.Pages)
	}

	res, err := rule.Evaluate(ctx, in)
	if err != nil {
		return fmt.Errorf("failed to evaluate %s phase of %s: %w", task.Phase, a.ID, err)
	}
	return uc.merge(ctx, a.ID, res)
}

// RunExhausted merges an empty result so a phase that keeps failing cannot hold the audit open.
func (uc *PhaseScorer) RunExhausted(ctx context.Context, task *entity.Task, cause error) error {
	uc.d.Logger.Warn("phase attempts exhausted, merging empty result",
		zap.String("audit_id", task.AuditID), zap.String("phase", string(task.Phase)), zap.Error(cause))
	return uc.merge(ctx, task.AuditID, emptyResult(task.Phase))
}

func emptyResult(phase entity.Phase) *entity.PhaseResult {
	return &entity.PhaseResult{Phase: phase, Penalties: map[entity.Category]int{}}
}

// merge applies the result to the phase's own categories and completes the audit once no
// phase is pending.
func (uc *PhaseScorer) merge(ctx context.Context, auditID string, res *entity.PhaseResult) error {
	updated, err := uc.d.Audits.UpdateScores(ctx, auditID, func(a *entity.Audit) error {
		if a.Status != entity.AuditRunning || !slices.Contains(a.PendingPhases, res.Phase) {
			return errPhaseSettled
		}
		uc.d.Settings.Scoring.Apply(a, res)
		a.PendingPhases = lo.Without(a.PendingPhases, res.Phase)
		if len(a.PendingPhases) == 0 {
			complete(a)
		}
		return nil
	})
	if errors.Is(err, errPhaseSettled) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to merge %s phase of %s: %w", res.Phase, auditID, err)
	}

	uc.d.Logger.Info("phase merged",
		zap.String("audit_id", auditID),
		zap.String("phase", string(res.Phase)),
		zap.Int("issues", len(res.Issues)),
		zap.Any("penalties", res.Penalties))
	if updated.Status == entity.AuditCompleted {
		uc.completed(updated)
	}
	return nil
}

func complete(a *entity.Audit) {
	now := time.Now().UTC()
	a.Status = entity.AuditCompleted
	a.ProgressPercent = entity.ProgressComplete
	a.CompletedAt = &now
}

// completed runs the side effects of the transition to completed.
func (uc *PhaseScorer) completed(a *entity.Audit) {
	metrics.AuditsFinishedTotal.WithLabelValues(string(entity.AuditCompleted)).Inc()
	score := 0
	if a.OverallScore != nil {
		score = *a.OverallScore
	}
	uc.d.Logger.Info("audit completed",
		zap.String("audit_id", a.ID),
		zap.Int("pages_scanned", a.PagesScanned),
		zap.Int("overall_score", score),
		zap.String("grade", a.OverallGrade))
	uc.usage.emit(repository.UsageEvent{
		OrgID:     a.OrgID,
		EventType: EventAuditCompleted,
		Quantity:  1,
		AuditID:   a.ID,
		Context: map[string]string{
			"pages_scanned": itoa(a.PagesScanned),
			"overall_score": itoa(score),
			"grade":         a.OverallGrade,
		},
	})
}

// input loads everything a rule phase evaluates.
func (uc *PhaseScorer) input(ctx context.Context, auditID string) (*entity.PhaseInput, error) {
	a, err := uc.d.Audits.Get(ctx, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to load audit %s: %w", auditID, err)
	}
	pages, err := uc.d.Pages.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pages of %s: %w", auditID, err)
	}
	links, err := uc.d.Links.ListByAudit(ctx, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list links of %s: %w", auditID, err)
	}
	failed, err := uc.d.Frontier.ListFailed(ctx, auditID)
	if err != nil {
		return nil, fmt.Errorf("failed to list failed entries of %s: %w", auditID, err)
	}
	return &entity.PhaseInput{Audit: a, Pages: pages, Links: links, FailedEntries: failed}, nil
}

// measure probes a sample of analyzable pages on both device profiles and returns the
// composite performance score, or nil without any measurement.
func (uc *PhaseScorer) measure(ctx context.Context, a *entity.Audit, pages []*entity.PageRecord) *float64 {
	if uc.d.Perf == nil {
		return nil
	}
	sample := lo.Filter(pages, func(p *entity.PageRecord, _ int) bool { return rules.Analyzable(p) })
	if len(sample) > uc.d.Settings.PerfSamplePages {
		sample = sample[:uc.d.Settings.PerfSamplePages]
	}

	var mu sync.Mutex
	var mobile, desktop []float64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, 2*len(sample)))
	for _, p := range sample {
		for _, device := range []repository.DeviceProfile{repository.DeviceMobile, repository.DeviceDesktop} {
			g.Go(func() error {
				m, err := uc.d.Perf.Measure(gctx, p.URL, device)
				if err != nil {
					uc.d.Logger.Warn("performance probe failed",
						zap.String("url", p.URL), zap.String("device", string(device)), zap.Error(err))
					return nil
				}
				var saveErr error
				if device == repository.DeviceMobile {
					saveErr = uc.d.Pages.SavePerformance(gctx, a.ID, p.URL, m, nil)
				} else {
					saveErr = uc.d.Pages.SavePerformance(gctx, a.ID, p.URL, nil, m)
				}
				if saveErr != nil {
					uc.d.Logger.Warn("failed to store performance metrics", zap.String("url", p.URL), zap.Error(saveErr))
				}
				mu.Lock()
				defer mu.Unlock()
				if device == repository.DeviceMobile {
					mobile = append(mobile, m.Score)
				} else {
					desktop = append(desktop, m.Score)
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		uc.d.Logger.Warn("performance sampling aborted", zap.String("audit_id", a.ID), zap.Error(err))
		return nil
	}

	composite, ok := scoring.CompositePerformance(scoring.Average(mobile), scoring.Average(desktop))
	if !ok {
		return nil
	}
	uc.d.Logger.Info("performance measured",
		zap.String("audit_id", a.ID),
		zap.Int("mobile_samples", len(mobile)),
		zap.Int("desktop_samples", len(desktop)),
		zap.Float64("composite", composite))
	return &composite
}
