package repository

import (
	"context"

	"github.com/user/seo-audit-service/internal/entity"
)

// AuditRepository persists the audit aggregate root.
type AuditRepository interface {
	Create(ctx context.Context, audit *entity.Audit) error
	// Get returns ErrNotFound for unknown ids.
	Get(ctx context.Context, id string) (*entity.Audit, error)
	// MarkRunning records the normalized seed and moves a queued audit to running.
	MarkRunning(ctx context.Context, id, normalizedURL, host string) error
	// MarkFailed terminates a non-terminal audit with an error message.
	MarkFailed(ctx context.Context, id, message string) error
	// CountScanned increments pages_scanned only while it is below pages_limit. It reports
	// whether the page was counted.
	CountScanned(ctx context.Context, id string) (bool, error)
	// SetProgress overwrites progress_percent.
	SetProgress(ctx context.Context, id string, percent int) error
	// SaveCrawlStats stores the post-crawl link graph summary.
	SaveCrawlStats(ctx context.Context, id string, stats entity.CrawlStats) error
	// UpdateScores runs mutate on a locked copy of the audit and persists score fields,
	// pending phases, status, progress and completion time. Concurrent callers are serialized.
	UpdateScores(ctx context.Context, id string, mutate func(a *entity.Audit) error) (*entity.Audit, error)
}
