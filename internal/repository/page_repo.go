package repository

import (
	"context"

	"github.com/user/seo-audit-service/internal/entity"
)

// PageRepository stores fetched-and-parsed pages.
type PageRepository interface {
	// Upsert stores the page keyed by (audit, final URL). A second call for the same key overwrites it.
	Upsert(ctx context.Context, page *entity.PageRecord) error
	// ListByAudit returns every page of the audit, shallowest first.
	ListByAudit(ctx context.Context, auditID string) ([]*entity.PageRecord, error)
	// SavePerformance merges lab metrics into an existing page.
	SavePerformance(ctx context.Context, auditID, url string, mobile, desktop *entity.PerformanceMetrics) error
}
