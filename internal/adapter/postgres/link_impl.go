package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
	"github.com/user/seo-audit-service/pkg/urlutil"
)

// LinkRepoImpl provides a concrete implementation for the LinkRepository interface using PostgreSQL.
type LinkRepoImpl struct {
	db *pgxpool.Pool
}

// NewLinkRepo creates a new instance of LinkRepoImpl.
func NewLinkRepo(db *pgxpool.Pool) *LinkRepoImpl {
	return &LinkRepoImpl{db: db}
}

const linkColumns = `id, audit_id, from_url, to_url, normalized_to_url, link_type, nofollow, anchor_text,
	status_code, final_url, redirect_hops, broken, error, validated_at`

// UpsertEdges sends all edges of a page in one batch. Existing edges are left as they are.
func (r *LinkRepoImpl) UpsertEdges(ctx context.Context, edges []*entity.LinkEdge) (int, error) {
	if len(edges) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO link_edges (audit_id, from_url, from_hash, to_url, normalized_to_url, to_hash, link_type, nofollow, anchor_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (audit_id, from_hash, to_hash) DO NOTHING;
	`
	batch := &pgx.Batch{}
	for _, e := range edges {
		batch.Queue(query,
			e.AuditID,
			e.FromURL,
			urlutil.HashURL(e.FromURL),
			e.ToURL,
			e.NormalizedToURL,
			urlutil.HashURL(e.NormalizedToURL),
			string(e.Type),
			e.Nofollow,
			e.AnchorText,
		)
	}

	br := r.db.SendBatch(ctx, batch)
	defer br.Close()

	inserted := 0
	for range edges {
		tag, err := br.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += int(tag.RowsAffected())
	}
	return inserted, nil
}

// ListUnvalidated returns edges of one type that have no status yet.
func (r *LinkRepoImpl) ListUnvalidated(ctx context.Context, auditID string, linkType entity.LinkType, limit int) ([]*entity.LinkEdge, error) {
	var rowLimit any
	if limit > 0 {
		rowLimit = limit
	}
	query := `
		SELECT ` + linkColumns + ` FROM link_edges
		WHERE audit_id = $1 AND link_type = $2 AND validated_at IS NULL
		ORDER BY id ASC
		LIMIT $3;
	`
	return r.query(ctx, query, auditID, string(linkType), rowLimit)
}

// SaveValidation writes the probe result to one edge.
func (r *LinkRepoImpl) SaveValidation(ctx context.Context, edgeID int64, v entity.LinkValidation) error {
	query := `
		UPDATE link_edges
		SET status_code = $2, final_url = $3, redirect_hops = $4, broken = $5, error = $6, validated_at = $7
		WHERE id = $1;
	`
	tag, err := r.db.Exec(ctx, query, edgeID, v.StatusCode, v.FinalURL, v.RedirectHops, v.Broken, v.Error, time.Now().UTC())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}
	return nil
}

// ListByAudit returns the whole link graph of an audit.
func (r *LinkRepoImpl) ListByAudit(ctx context.Context, auditID string) ([]*entity.LinkEdge, error) {
	query := `SELECT ` + linkColumns + ` FROM link_edges WHERE audit_id = $1 ORDER BY id ASC;`
	return r.query(ctx, query, auditID)
}

func (r *LinkRepoImpl) query(ctx context.Context, query string, args ...any) ([]*entity.LinkEdge, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var edges []*entity.LinkEdge
	for rows.Next() {
		var e entity.LinkEdge
		var linkType string
		if err := rows.Scan(
			&e.ID,
			&e.AuditID,
			&e.FromURL,
			&e.ToURL,
			&e.NormalizedToURL,
			&linkType,
			&e.Nofollow,
			&e.AnchorText,
			&e.StatusCode,
			&e.FinalURL,
			&e.RedirectHops,
			&e.Broken,
			&e.Error,
			&e.ValidatedAt,
		); err != nil {
			return nil, err
		}
		e.Type = entity.LinkType(linkType)
		edges = append(edges, &e)
	}
	return edges, rows.Err()
}
