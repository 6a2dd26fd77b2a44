package repository

import (
	"context"

	"github.com/user/seo-audit-service/internal/entity"
)

// LinkRepository stores the audit's link graph.
type LinkRepository interface {
	// UpsertEdges inserts edges, ignoring ones whose (audit, from, normalized to) already exists.
	// It returns the number of new rows.
	UpsertEdges(ctx context.Context, edges []*entity.LinkEdge) (int, error)
	// ListUnvalidated returns up to limit edges of the given type without a status (limit <= 0: all).
	ListUnvalidated(ctx context.Context, auditID string, linkType entity.LinkType, limit int) ([]*entity.LinkEdge, error)
	// SaveValidation writes validation fields to one edge.
	SaveValidation(ctx context.Context, edgeID int64, v entity.LinkValidation) error
	// ListByAudit returns the full link graph.
	ListByAudit(ctx context.Context, auditID string) ([]*entity.LinkEdge, error)
}
