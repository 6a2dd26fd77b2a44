package usecase

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
	"github.com/user/seo-audit-service/pkg/metrics"
	"github.com/user/seo-audit-service/pkg/urlutil"
)

// PageCrawler runs the fetch-parse-expand step for one claimed frontier entry.
type PageCrawler struct {
	d           *Deps
	coordinator *Coordinator
	usage       *usageRecorder
}

func NewPageCrawler(d *Deps, coordinator *Coordinator, usage *usageRecorder) *PageCrawler {
	return &PageCrawler{d: d, coordinator: coordinator, usage: usage}
}

// CrawlPage processes the entry named by the task. A returned error means the fetch should be
// retried; every other outcome is recorded on the entry before returning nil.
func (uc *PageCrawler) CrawlPage(ctx context.Context, task *entity.Task) error {
	entry, err := uc.d.Frontier.Get(ctx, task.EntryID)
	if errors.Is(err, repository.ErrNotFound) {
		uc.d.Logger.Warn("crawl task for unknown frontier entry", zap.Int64("entry_id", task.EntryID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load frontier entry %d: %w", task.EntryID, err)
	}
	if entry.Status != entity.FrontierProcessing {
		// Redelivered task for an entry another attempt already settled.
		return uc.coordinator.Advance(ctx, entry.AuditID)
	}

	a, err := uc.d.Audits.Get(ctx, entry.AuditID)
	if err != nil {
		return fmt.Errorf("failed to load audit %s: %w", entry.AuditID, err)
	}
	if a.Status.Terminal() {
		return nil
	}
	if a.PagesScanned >= a.PagesLimit {
		return uc.settle(ctx, entry, "skipped")
	}

	logger := uc.d.Logger.With(zap.String("audit_id", a.ID), zap.String("url", entry.URL), zap.Int("depth", entry.Depth))

	start := time.Now()
	res, fetchErr := uc.d.Fetcher.Fetch(ctx, entry.URL)
	metrics.CrawlDuration.WithLabelValues(a.Host).Observe(time.Since(start).Seconds())
	if fetchErr != nil {
		metrics.PagesCrawledTotal.WithLabelValues("retry").Inc()
		logger.Warn("fetch failed", zap.Int("attempt", task.Attempt), zap.Error(fetchErr))
		return fmt.Errorf("failed to fetch %s: %w", entry.URL, fetchErr)
	}
	if transientStatus(res.StatusCode) {
		metrics.PagesCrawledTotal.WithLabelValues("retry").Inc()
		logger.Warn("server error", zap.Int("attempt", task.Attempt), zap.Int("status", res.StatusCode))
		return fmt.Errorf("%w: %s returned status %d", repository.ErrFetchFailed, entry.URL, res.StatusCode)
	}

	counted, err := uc.d.Audits.CountScanned(ctx, a.ID)
	if err != nil {
		return fmt.Errorf("failed to count page of %s: %w", a.ID, err)
	}
	if !counted {
		return uc.settle(ctx, entry, "skipped")
	}

	page := uc.buildPage(entry, res)
	var facts *entity.PageFacts
	if !page.Skipped {
		facts, err = uc.d.Parser.Parse(res.Body, res.FinalURL, entry.URL, res.Header)
		if err != nil {
			// Unparsable HTML is a content problem, recorded as a skip.
			logger.Warn("failed to parse page", zap.Error(err))
			page.Skipped = true
			facts = nil
		}
	}

	var edges []*entity.LinkEdge
	if facts != nil {
		applyFacts(page, facts)
		edges = uc.buildEdges(a, page, facts)
	}

	if err := uc.d.Pages.Upsert(ctx, page); err != nil {
		return fmt.Errorf("failed to store page %s: %w", page.URL, err)
	}
	if len(edges) > 0 {
		if _, err := uc.d.Links.UpsertEdges(ctx, edges); err != nil {
			return fmt.Errorf("failed to store links of %s: %w", page.URL, err)
		}
	}
	if entry.Depth < a.CrawlDepth {
		if err := uc.expand(ctx, entry, edges); err != nil {
			return err
		}
	}

	logger.Info("page crawled",
		zap.Int("status", page.StatusCode),
		zap.Bool("skipped", page.Skipped),
		zap.Int("links", len(edges)),
		zap.Int("response_ms", page.ResponseMS))

	uc.usage.emit(repository.UsageEvent{
		OrgID:     a.OrgID,
		EventType: EventPageCrawled,
		Quantity:  1,
		AuditID:   a.ID,
		Context:   map[string]string{"url": page.URL, "status": itoa(page.StatusCode)},
	})

	outcome := "done"
	if page.Skipped {
		outcome = "skipped"
	}
	return uc.settle(ctx, entry, outcome)
}

// CrawlExhausted records the entry as failed once the fetch retries are used up.
func (uc *PageCrawler) CrawlExhausted(ctx context.Context, task *entity.Task, cause error) error {
	entry, err := uc.d.Frontier.Get(ctx, task.EntryID)
	if err != nil {
		return fmt.Errorf("failed to load frontier entry %d: %w", task.EntryID, err)
	}
	reason := "crawl attempts exhausted"
	if cause != nil {
		reason = cause.Error()
	}
	if entry.Status == entity.FrontierProcessing {
		if err := uc.d.Frontier.MarkFailed(ctx, entry.ID, reason); err != nil {
			return fmt.Errorf("failed to mark entry %d failed: %w", entry.ID, err)
		}
		metrics.PagesCrawledTotal.WithLabelValues("failed").Inc()
		uc.d.Logger.Warn("frontier entry failed",
			zap.String("audit_id", entry.AuditID), zap.String("url", entry.URL), zap.String("reason", reason))
	}
	return uc.coordinator.Advance(ctx, entry.AuditID)
}

func (uc *PageCrawler) settle(ctx context.Context, entry *entity.FrontierEntry, outcome string) error {
	if err := uc.d.Frontier.MarkDone(ctx, entry.ID); err != nil {
		return fmt.Errorf("failed to mark entry %d done: %w", entry.ID, err)
	}
	metrics.PagesCrawledTotal.WithLabelValues(outcome).Inc()
	return uc.coordinator.Advance(ctx, entry.AuditID)
}

func (uc *PageCrawler) buildPage(entry *entity.FrontierEntry, res *repository.FetchResult) *entity.PageRecord {
	finalURL := res.FinalURL
	if finalURL == "" {
		finalURL = entry.URL
	}
	normalized, ok := urlutil.Normalize(finalURL, "")
	if !ok {
		normalized = entry.NormalizedURL
	}
	return &entity.PageRecord{
		AuditID:       entry.AuditID,
		URL:           finalURL,
		NormalizedURL: normalized,
		RequestedURL:  entry.URL,
		Depth:         entry.Depth,
		StatusCode:    res.StatusCode,
		ContentType:   res.ContentType,
		SizeBytes:     res.SizeBytes,
		RedirectHops:  res.RedirectHops,
		ResponseMS:    int(res.ResponseTime.Milliseconds()),
		Skipped:       res.TooLarge || !res.IsHTML() || res.StatusCode < 200 || res.StatusCode >= 300,
		CrawledAt:     time.Now().UTC(),
	}
}

func applyFacts(p *entity.PageRecord, f *entity.PageFacts) {
	p.Title = f.Title
	p.TitleLength = utf8.RuneCountInString(f.Title)
	p.MetaDescription = f.MetaDescription
	p.MetaDescriptionLen = utf8.RuneCountInString(f.MetaDescription)
	p.MetaTagCount = f.MetaTagCount
	p.H1Count = f.H1Count
	p.H2Count = f.H2Count
	p.H3Count = f.H3Count
	p.WordCount = f.WordCount
	p.CanonicalURL = f.CanonicalURL
	p.MetaRobots = f.MetaRobots
	p.Lang = f.Lang
	p.HasViewport = f.HasViewport
	p.ImageCount = f.ImageCount
	p.ImagesMissingAlt = f.ImagesMissingAlt
	p.HasJSONLD = f.HasJSONLD
	p.HasMicrodata = f.HasMicrodata
	p.HasOpenGraph = f.HasOpenGraph
	p.HasTwitterCard = f.HasTwitterCard
	p.Extras = entity.PageExtras{
		SchemaTypes:     f.SchemaTypes,
		SecurityHeaders: f.SecurityHeaders,
		OpenGraph:       f.OpenGraph,
		MixedContent:    f.MixedContent,
	}
}

// buildEdges resolves, normalizes and classifies every anchor of the page. Repeated targets
// keep the first anchor; external targets beyond the per-page sample are dropped.
func (uc *PageCrawler) buildEdges(a *entity.Audit, p *entity.PageRecord, f *entity.PageFacts) []*entity.LinkEdge {
	base := p.URL
	if f.BaseHref != "" {
		if b, ok := resolve(p.URL, f.BaseHref); ok {
			base = b
		}
	}

	seen := make(map[string]bool, len(f.Links))
	edges := make([]*entity.LinkEdge, 0, len(f.Links))
	external := 0
	for _, l := range f.Links {
		if urlutil.ShouldSkip(l.Href) {
			continue
		}
		target, ok := resolve(base, l.Href)
		if !ok {
			continue
		}
		normalized, ok := urlutil.Normalize(target, "")
		if !ok || seen[normalized] {
			continue
		}
		seen[normalized] = true

		linkType := entity.LinkExternal
		if urlutil.IsInternal(normalized, a.Host) {
			linkType = entity.LinkInternal
			p.InternalLinks++
		} else {
			p.ExternalLinks++
			external++
			if external > uc.d.Settings.ExternalLinksPerPage {
				continue
			}
		}
		edges = append(edges, &entity.LinkEdge{
			AuditID:         a.ID,
			FromURL:         p.URL,
			ToURL:           target,
			NormalizedToURL: normalized,
			Type:            linkType,
			Nofollow:        l.Nofollow,
			AnchorText:      l.Anchor,
		})
	}
	return edges
}

// expand enqueues the internal targets of a page one level deeper. The frontier refuses
// duplicates and anything past the discovery budget.
func (uc *PageCrawler) expand(ctx context.Context, entry *entity.FrontierEntry, edges []*entity.LinkEdge) error {
	a, err := uc.d.Audits.Get(ctx, entry.AuditID)
	if err != nil {
		return fmt.Errorf("failed to reload audit %s: %w", entry.AuditID, err)
	}
	budget := a.PagesLimit - a.PagesDiscovered
	for _, e := range edges {
		if budget <= 0 {
			break
		}
		if e.Type != entity.LinkInternal || urlutil.IsLikelyAsset(e.NormalizedToURL) {
			continue
		}
		child := &entity.FrontierEntry{
			AuditID:        entry.AuditID,
			URL:            e.ToURL,
			NormalizedURL:  e.NormalizedToURL,
			Depth:          entry.Depth + 1,
			DiscoveredFrom: e.FromURL,
		}
		inserted, err := uc.d.Frontier.Enqueue(ctx, child)
		if err != nil {
			return fmt.Errorf("failed to enqueue %s: %w", e.ToURL, err)
		}
		if inserted {
			budget--
			metrics.FrontierEnqueuedTotal.WithLabelValues("link").Inc()
		}
	}
	return nil
}

// transientStatus reports statuses that are retried and, once attempts run out, fail the entry
// instead of producing a page.
func transientStatus(code int) bool {
	return code >= 500 || code == http.StatusTooManyRequests
}

// resolve returns ref as an absolute http(s) URL relative to base.
func resolve(base, ref string) (string, bool) {
	b, err := url.Parse(base)
	if err != nil {
		return "", false
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	u := b.ResolveReference(r)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	u.Fragment = ""
	return u.String(), true
}
