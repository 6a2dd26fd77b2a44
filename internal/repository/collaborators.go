package repository

import (
	"context"
	"net/http"

	"github.com/user/seo-audit-service/internal/entity"
)

// PageParser extracts facts and anchors from an HTML document.
type PageParser interface {
	Parse(html []byte, finalURL, requestedURL string, header http.Header) (*entity.PageFacts, error)
}

// SitemapDiscoverer finds sitemap URLs for a site and lists the page URLs they contain.
type SitemapDiscoverer interface {
	DiscoverSitemaps(ctx context.Context, seedURL string) ([]string, error)
	ExtractURLs(ctx context.Context, sitemapURL string, limit int) ([]string, error)
}

// RulePhase turns page facts into issues and category penalties.
type RulePhase interface {
	Phase() entity.Phase
	Evaluate(ctx context.Context, in *entity.PhaseInput) (*entity.PhaseResult, error)
}

// UsageEvent is one metering record.
type UsageEvent struct {
	OrgID     string
	EventType string
	Quantity  int
	AuditID   string
	Context   map[string]string
}

// UsageMeter records billable usage. Callers must not let its failures affect the crawl.
type UsageMeter interface {
	Record(ctx context.Context, event UsageEvent) error
}
