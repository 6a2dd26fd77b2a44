package postgres

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/pkg/urlutil"
)

// PageRepoImpl provides a concrete implementation for the PageRepository interface using PostgreSQL.
type PageRepoImpl struct {
	db *pgxpool.Pool
}

// NewPageRepo creates a new instance of PageRepoImpl.
func NewPageRepo(db *pgxpool.Pool) *PageRepoImpl {
	return &PageRepoImpl{db: db}
}

// Upsert stores or updates the record for a final URL. Lab metrics are left untouched so a
// re-fetch after the performance phase does not erase them.
func (r *PageRepoImpl) Upsert(ctx context.Context, p *entity.PageRecord) error {
	extrasJSON, err := json.Marshal(p.Extras)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO page_records (
			audit_id, url, url_hash, normalized_url, requested_url, depth, status_code, content_type,
			size_bytes, redirect_hops, response_ms, skipped, title, title_length, meta_description,
			meta_description_length, meta_tag_count, h1_count, h2_count, h3_count, word_count,
			canonical_url, meta_robots, lang, has_viewport, image_count, images_missing_alt,
			internal_links, external_links, has_json_ld, has_microdata, has_open_graph,
			has_twitter_card, extras, crawled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18,
			$19, $20, $21, $22, $23, $24, $25, $26, $27, $28, $29, $30, $31, $32, $33, $34, $35)
		ON CONFLICT (audit_id, url_hash) DO UPDATE SET
			normalized_url = EXCLUDED.normalized_url,
			requested_url = EXCLUDED.requested_url,
			depth = LEAST(page_records.depth, EXCLUDED.depth),
			status_code = EXCLUDED.status_code,
			content_type = EXCLUDED.content_type,
			size_bytes = EXCLUDED.size_bytes,
			redirect_hops = EXCLUDED.redirect_hops,
			response_ms = EXCLUDED.response_ms,
			skipped = EXCLUDED.skipped,
			title = EXCLUDED.title,
			title_length = EXCLUDED.title_length,
			meta_description = EXCLUDED.meta_description,
			meta_description_length = EXCLUDED.meta_description_length,
			meta_tag_count = EXCLUDED.meta_tag_count,
			h1_count = EXCLUDED.h1_count,
			h2_count = EXCLUDED.h2_count,
			h3_count = EXCLUDED.h3_count,
			word_count = EXCLUDED.word_count,
			canonical_url = EXCLUDED.canonical_url,
			meta_robots = EXCLUDED.meta_robots,
			lang = EXCLUDED.lang,
			has_viewport = EXCLUDED.has_viewport,
			image_count = EXCLUDED.image_count,
			images_missing_alt = EXCLUDED.images_missing_alt,
			internal_links = EXCLUDED.internal_links,
			external_links = EXCLUDED.external_links,
			has_json_ld = EXCLUDED.has_json_ld,
			has_microdata = EXCLUDED.has_microdata,
			has_open_graph = EXCLUDED.has_open_graph,
			has_twitter_card = EXCLUDED.has_twitter_card,
			extras = EXCLUDED.extras,
			crawled_at = EXCLUDED.crawled_at
		RETURNING id;
	`
	return r.db.QueryRow(ctx, query,
		p.AuditID,
		p.URL,
		urlutil.HashURL(p.URL),
		p.NormalizedURL,
		p.RequestedURL,
		p.Depth,
		p.StatusCode,
		p.ContentType,
		p.SizeBytes,
		p.RedirectHops,
		p.ResponseMS,
		p.Skipped,
		p.Title,
		p.TitleLength,
		p.MetaDescription,
		p.MetaDescriptionLen,
		p.MetaTagCount,
		p.H1Count,
		p.H2Count,
		p.H3Count,
		p.WordCount,
		p.CanonicalURL,
		p.MetaRobots,
		p.Lang,
		p.HasViewport,
		p.ImageCount,
		p.ImagesMissingAlt,
		p.InternalLinks,
		p.ExternalLinks,
		p.HasJSONLD,
		p.HasMicrodata,
		p.HasOpenGraph,
		p.HasTwitterCard,
		extrasJSON,
		p.CrawledAt,
	).Scan(&p.ID)
}

// ListByAudit retrieves every page of an audit, shallowest first.
func (r *PageRepoImpl) ListByAudit(ctx context.Context, auditID string) ([]*entity.PageRecord, error) {
	query := `
		SELECT id, audit_id, url, normalized_url, requested_url, depth, status_code, content_type,
			size_bytes, redirect_hops, response_ms, skipped, title, title_length, meta_description,
			meta_description_length, meta_tag_count, h1_count, h2_count, h3_count, word_count,
			canonical_url, meta_robots, lang, has_viewport, image_count, images_missing_alt,
			internal_links, external_links, has_json_ld, has_microdata, has_open_graph,
			has_twitter_card, extras, mobile_perf, desktop_perf, crawled_at
		FROM page_records
		WHERE audit_id = $1
		ORDER BY depth ASC, id ASC;
	`
	rows, err := r.db.Query(ctx, query, auditID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []*entity.PageRecord
	for rows.Next() {
		var p entity.PageRecord
		var extrasJSON, mobileJSON, desktopJSON []byte
		if err := rows.Scan(
			&p.ID,
			&p.AuditID,
			&p.URL,
			&p.NormalizedURL,
			&p.RequestedURL,
			&p.Depth,
			&p.StatusCode,
			&p.ContentType,
			&p.SizeBytes,
			&p.RedirectHops,
			&p.ResponseMS,
			&p.Skipped,
			&p.Title,
			&p.TitleLength,
			&p.MetaDescription,
			&p.MetaDescriptionLen,
			&p.MetaTagCount,
			&p.H1Count,
			&p.H2Count,
			&p.H3Count,
			&p.WordCount,
			&p.CanonicalURL,
			&p.MetaRobots,
			&p.Lang,
			&p.HasViewport,
			&p.ImageCount,
			&p.ImagesMissingAlt,
			&p.InternalLinks,
			&p.ExternalLinks,
			&p.HasJSONLD,
			&p.HasMicrodata,
			&p.HasOpenGraph,
			&p.HasTwitterCard,
			&extrasJSON,
			&mobileJSON,
			&desktopJSON,
			&p.CrawledAt,
		); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(extrasJSON, &p.Extras); err != nil {
			return nil, err
		}
		if p.MobilePerf, err = decodePerf(mobileJSON); err != nil {
			return nil, err
		}
		if p.DesktopPerf, err = decodePerf(desktopJSON); err != nil {
			return nil, err
		}
		pages = append(pages, &p)
	}
	return pages, rows.Err()
}

// SavePerformance merges lab metrics into a page. A nil profile keeps the stored value.
func (r *PageRepoImpl) SavePerformance(ctx context.Context, auditID, url string, mobile, desktop *entity.PerformanceMetrics) error {
	mobileJSON, err := encodePerf(mobile)
	if err != nil {
		return err
	}
	desktopJSON, err := encodePerf(desktop)
	if err != nil {
		return err
	}
	query := `
		UPDATE page_records
		SET mobile_perf = COALESCE($3, mobile_perf),
			desktop_perf = COALESCE($4, desktop_perf)
		WHERE audit_id = $1 AND url_hash = $2;
	`
	_, err = r.db.Exec(ctx, query, auditID, urlutil.HashURL(url), mobileJSON, desktopJSON)
	return err
}

func encodePerf(m *entity.PerformanceMetrics) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

func decodePerf(raw []byte) (*entity.PerformanceMetrics, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var m entity.PerformanceMetrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return &m, nil
}
