package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS audits (
		id UUID PRIMARY KEY,
		org_id TEXT NOT NULL DEFAULT '',
		target_url TEXT NOT NULL,
		normalized_url TEXT NOT NULL DEFAULT '',
		host TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'queued' CHECK (status IN ('queued', 'running', 'completed', 'failed')),
		pages_limit INTEGER NOT NULL,
		crawl_depth INTEGER NOT NULL,
		pages_scanned INTEGER NOT NULL DEFAULT 0,
		pages_discovered INTEGER NOT NULL DEFAULT 0,
		progress_percent INTEGER NOT NULL DEFAULT 0,
		category_scores JSONB NOT NULL DEFAULT '{}',
		issue_counts JSONB NOT NULL DEFAULT '{}',
		pending_phases TEXT[] NOT NULL DEFAULT '{}',
		overall_score INTEGER CHECK (overall_score BETWEEN 0 AND 100),
		overall_grade TEXT NOT NULL DEFAULT '',
		crawl_stats JSONB NOT NULL DEFAULT '{}',
		error_message TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		CHECK (pages_scanned <= pages_limit)
	)`,
	`CREATE TABLE IF NOT EXISTS frontier_entries (
		id BIGSERIAL PRIMARY KEY,
		audit_id UUID NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		normalized_url TEXT NOT NULL,
		url_hash TEXT NOT NULL,
		depth INTEGER NOT NULL,
		status TEXT NOT NULL DEFAULT 'queued' CHECK (status IN ('queued', 'processing', 'done', 'failed')),
		discovered_from TEXT NOT NULL DEFAULT '',
		last_error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (audit_id, url_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_frontier_audit_status ON frontier_entries (audit_id, status, depth)`,
	`CREATE TABLE IF NOT EXISTS page_records (
		id BIGSERIAL PRIMARY KEY,
		audit_id UUID NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
		url TEXT NOT NULL,
		url_hash TEXT NOT NULL,
		normalized_url TEXT NOT NULL,
		requested_url TEXT NOT NULL,
		depth INTEGER NOT NULL DEFAULT 0,
		status_code INTEGER NOT NULL,
		content_type TEXT NOT NULL DEFAULT '',
		size_bytes BIGINT NOT NULL DEFAULT 0,
		redirect_hops INTEGER NOT NULL DEFAULT 0,
		response_ms INTEGER NOT NULL DEFAULT 0,
		skipped BOOLEAN NOT NULL DEFAULT FALSE,
		title TEXT NOT NULL DEFAULT '',
		title_length INTEGER NOT NULL DEFAULT 0,
		meta_description TEXT NOT NULL DEFAULT '',
		meta_description_length INTEGER NOT NULL DEFAULT 0,
		meta_tag_count INTEGER NOT NULL DEFAULT 0,
		h1_count INTEGER NOT NULL DEFAULT 0,
		h2_count INTEGER NOT NULL DEFAULT 0,
		h3_count INTEGER NOT NULL DEFAULT 0,
		word_count INTEGER NOT NULL DEFAULT 0,
		canonical_url TEXT NOT NULL DEFAULT '',
		meta_robots TEXT NOT NULL DEFAULT '',
		lang TEXT NOT NULL DEFAULT '',
		has_viewport BOOLEAN NOT NULL DEFAULT FALSE,
		image_count INTEGER NOT NULL DEFAULT 0,
		images_missing_alt INTEGER NOT NULL DEFAULT 0,
		internal_links INTEGER NOT NULL DEFAULT 0,
		external_links INTEGER NOT NULL DEFAULT 0,
		has_json_ld BOOLEAN NOT NULL DEFAULT FALSE,
		has_microdata BOOLEAN NOT NULL DEFAULT FALSE,
		has_open_graph BOOLEAN NOT NULL DEFAULT FALSE,
		has_twitter_card BOOLEAN NOT NULL DEFAULT FALSE,
		extras JSONB NOT NULL DEFAULT '{}',
		mobile_perf JSONB,
		desktop_perf JSONB,
		crawled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (audit_id, url_hash)
	)`,
	`CREATE TABLE IF NOT EXISTS link_edges (
		id BIGSERIAL PRIMARY KEY,
		audit_id UUID NOT NULL REFERENCES audits(id) ON DELETE CASCADE,
		from_url TEXT NOT NULL,
		from_hash TEXT NOT NULL,
		to_url TEXT NOT NULL,
		normalized_to_url TEXT NOT NULL,
		to_hash TEXT NOT NULL,
		link_type TEXT NOT NULL CHECK (link_type IN ('internal', 'external')),
		nofollow BOOLEAN NOT NULL DEFAULT FALSE,
		anchor_text TEXT NOT NULL DEFAULT '',
		status_code INTEGER,
		final_url TEXT NOT NULL DEFAULT '',
		redirect_hops INTEGER NOT NULL DEFAULT 0,
		broken BOOLEAN NOT NULL DEFAULT FALSE,
		error TEXT NOT NULL DEFAULT '',
		validated_at TIMESTAMPTZ,
		UNIQUE (audit_id, from_hash, to_hash)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_link_edges_unvalidated ON link_edges (audit_id, link_type) WHERE validated_at IS NULL`,
}

// Migrate creates the tables if they do not exist yet.
func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range schema {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement: %w", err)
		}
	}
	return nil
}
