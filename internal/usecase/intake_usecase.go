package usecase

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/pkg/metrics"
	"github.com/user/seo-audit-service/pkg/urlutil"
)

// Intake turns a queued audit into a running crawl with a seeded frontier.
type Intake struct {
	d           *Deps
	coordinator *Coordinator
}

func NewIntake(d *Deps, coordinator *Coordinator) *Intake {
	return &Intake{d: d, coordinator: coordinator}
}

// Start normalizes the seed, enqueues it with any sitemap URLs and runs the first
// coordination step. A seed that cannot be normalized fails the audit.
func (uc *Intake) Start(ctx context.Context, task *entity.Task) error {
	a, err := uc.d.Audits.Get(ctx, task.AuditID)
	if err != nil {
		return fmt.Errorf("failed to load audit %s: %w", task.AuditID, err)
	}
	if a.Status.Terminal() {
		return nil
	}

	seed, ok := urlutil.Normalize(a.TargetURL, "")
	host := urlutil.ExtractHost(seed)
	if !ok || host == "" {
		uc.d.Logger.Warn("audit seed rejected", zap.String("audit_id", a.ID), zap.String("url", a.TargetURL))
		return failAudit(ctx, uc.d, a.ID, fmt.Sprintf("invalid seed url %q", a.TargetURL))
	}

	if err := uc.d.Audits.MarkRunning(ctx, a.ID, seed, host); err != nil {
		return fmt.Errorf("failed to start audit %s: %w", a.ID, err)
	}

	inserted, err := uc.d.Frontier.Enqueue(ctx, &entity.FrontierEntry{
		AuditID:        a.ID,
		URL:            seed,
		NormalizedURL:  seed,
		Depth:          0,
		DiscoveredFrom: entity.DiscoveredFromSeed,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue seed of %s: %w", a.ID, err)
	}
	if inserted {
		metrics.FrontierEnqueuedTotal.WithLabelValues("seed").Inc()
		if a.CrawlDepth >= 1 {
			uc.seedFromSitemaps(ctx, a, seed, host)
		}
	}

	uc.d.Logger.Info("audit started", zap.String("audit_id", a.ID), zap.String("seed", seed))
	return uc.coordinator.Advance(ctx, a.ID)
}

// StartExhausted fails an audit whose start task kept erroring.
func (uc *Intake) StartExhausted(ctx context.Context, task *entity.Task, cause error) error {
	msg := "audit could not be started"
	if cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, cause)
	}
	return failAudit(ctx, uc.d, task.AuditID, msg)
}

// seedFromSitemaps adds the site's sitemap URLs at depth 1. Sitemap problems never fail the audit.
func (uc *Intake) seedFromSitemaps(ctx context.Context, a *entity.Audit, seed, host string) {
	if uc.d.Sitemaps == nil {
		return
	}
	logger := uc.d.Logger.With(zap.String("audit_id", a.ID))

	budget := a.PagesLimit - 1
	if budget <= 0 {
		return
	}
	sitemaps, err := uc.d.Sitemaps.DiscoverSitemaps(ctx, seed)
	if err != nil {
		logger.Warn("sitemap discovery failed", zap.Error(err))
		return
	}

	added := 0
	for _, sm := range sitemaps {
		if added >= budget {
			break
		}
		urls, err := uc.d.Sitemaps.ExtractURLs(ctx, sm, budget-added)
		if err != nil {
			logger.Warn("failed to read sitemap", zap.String("sitemap", sm), zap.Error(err))
			continue
		}
		for _, raw := range urls {
			if added >= budget {
				break
			}
			normalized, ok := urlutil.Normalize(raw, "")
			if !ok || !urlutil.IsInternal(normalized, host) || urlutil.IsLikelyAsset(normalized) {
				continue
			}
			inserted, err := uc.d.Frontier.Enqueue(ctx, &entity.FrontierEntry{
				AuditID:        a.ID,
				URL:            raw,
				NormalizedURL:  normalized,
				Depth:          1,
				DiscoveredFrom: entity.DiscoveredFromSitemap,
			})
			if err != nil {
				logger.Warn("failed to enqueue sitemap url", zap.String("url", raw), zap.Error(err))
				return
			}
			if inserted {
				added++
				metrics.FrontierEnqueuedTotal.WithLabelValues("sitemap").Inc()
			}
		}
	}
	if added > 0 {
		logger.Info("frontier pre-seeded from sitemaps", zap.Int("urls", added))
	}
}

// failAudit terminates a running or queued audit with msg. Terminal audits are left alone.
func failAudit(ctx context.Context, d *Deps, auditID, msg string) error {
	a, err := d.Audits.Get(ctx, auditID)
	if err != nil {
		return fmt.Errorf("failed to load audit %s: %w", auditID, err)
	}
	if a.Status.Terminal() {
		return nil
	}
	if err := d.Audits.MarkFailed(ctx, auditID, msg); err != nil {
		return fmt.Errorf("failed to fail audit %s: %w", auditID, err)
	}
	metrics.AuditsFinishedTotal.WithLabelValues(string(entity.AuditFailed)).Inc()
	d.Logger.Warn("audit failed", zap.String("audit_id", auditID), zap.String("error", msg))
	return nil
}
