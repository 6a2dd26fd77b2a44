package repository

import (
	"context"

	"github.com/user/seo-audit-service/internal/entity"
)

// FrontierRepository is the shared crawl frontier. Enqueue is the single dedup point.
type FrontierRepository interface {
	// Enqueue inserts the entry unless one with the same (audit, normalized URL) exists or the
	// audit's discovery budget is spent. It reports whether a row was inserted and, if so, sets
	// entry.ID. Concurrent calls for the same key insert at most one row.
	Enqueue(ctx context.Context, entry *entity.FrontierEntry) (bool, error)
	// Get returns one entry.
	Get(ctx context.Context, id int64) (*entity.FrontierEntry, error)
	// Claim moves up to limit queued entries with depth <= maxDepth to processing and returns them.
	Claim(ctx context.Context, auditID string, maxDepth, limit int) ([]*entity.FrontierEntry, error)
	// MarkDone moves a processing entry to done.
	MarkDone(ctx context.Context, id int64) error
	// MarkFailed moves a processing entry to failed and records the error.
	MarkFailed(ctx context.Context, id int64, reason string) error
	// SkipQueued marks every queued entry of the audit done without fetching it.
	SkipQueued(ctx context.Context, auditID string) (int, error)
	// Counts returns status counts; Queued only counts entries with depth <= maxDepth.
	Counts(ctx context.Context, auditID string, maxDepth int) (entity.FrontierCounts, error)
	// ListFailed returns the failed entries of the audit.
	ListFailed(ctx context.Context, auditID string) ([]*entity.FrontierEntry, error)
}
