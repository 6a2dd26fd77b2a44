// Package sitemap finds a site's sitemaps through robots.txt and lists the page URLs in them.
package sitemap

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/samber/lo"
	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/repository"
)

type sitemapEntry struct {
	Loc string `xml:"loc"`
}

// document matches both <urlset> and <sitemapindex>; XMLName tells them apart.
type document struct {
	XMLName  xml.Name
	URLs     []sitemapEntry `xml:"url"`
	Sitemaps []sitemapEntry `xml:"sitemap"`
}

type Discoverer struct {
	fetcher repository.PageFetcher
	logger  *zap.Logger
}

func NewDiscoverer(fetcher repository.PageFetcher, logger *zap.Logger) *Discoverer {
	return &Discoverer{fetcher: fetcher, logger: logger}
}

// DiscoverSitemaps returns the Sitemap: lines of the site's robots.txt, or /sitemap.xml when
// robots.txt is missing or lists none.
func (d *Discoverer) DiscoverSitemaps(ctx context.Context, seedURL string) ([]string, error) {
	seed, err := url.Parse(seedURL)
	if err != nil || seed.Host == "" {
		return nil, fmt.Errorf("%w: %s", repository.ErrInvalidSeed, seedURL)
	}
	origin := seed.Scheme + "://" + seed.Host
	fallback := []string{origin + "/sitemap.xml"}

	res, err := d.fetcher.Fetch(ctx, origin+"/robots.txt")
	if err != nil {
		d.logger.Debug("robots.txt unavailable", zap.String("origin", origin), zap.Error(err))
		return fallback, nil
	}
	robots, err := robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
	if err != nil || len(robots.Sitemaps) == 0 {
		return fallback, nil
	}
	return lo.Uniq(robots.Sitemaps), nil
}

// ExtractURLs lists up to limit page URLs. A sitemap index is followed one level deep.
func (d *Discoverer) ExtractURLs(ctx context.Context, sitemapURL string, limit int) ([]string, error) {
	doc, err := d.load(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}

	urls := locs(doc.URLs)
	if doc.XMLName.Local == "sitemapindex" {
		for _, child := range locs(doc.Sitemaps) {
			if limit > 0 && len(urls) >= limit {
				break
			}
			childDoc, err := d.load(ctx, child)
			if err != nil {
				d.logger.Warn("skipping child sitemap", zap.String("sitemap", child), zap.Error(err))
				continue
			}
			urls = append(urls, locs(childDoc.URLs)...)
		}
	}

	urls = lo.Uniq(urls)
	if limit > 0 && len(urls) > limit {
		urls = urls[:limit]
	}
	return urls, nil
}

func (d *Discoverer) load(ctx context.Context, sitemapURL string) (*document, error) {
	res, err := d.fetcher.Fetch(ctx, sitemapURL)
	if err != nil {
		return nil, err
	}
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sitemap %s returned status %d", sitemapURL, res.StatusCode)
	}
	if res.TooLarge {
		return nil, fmt.Errorf("sitemap %s exceeds %d bytes", sitemapURL, res.SizeBytes)
	}
	var doc document
	if err := xml.Unmarshal(res.Body, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse sitemap %s: %w", sitemapURL, err)
	}
	return &doc, nil
}

func locs(entries []sitemapEntry) []string {
	return lo.FilterMap(entries, func(e sitemapEntry, _ int) (string, bool) {
		loc := strings.TrimSpace(e.Loc)
		return loc, loc != ""
	})
}

var _ repository.SitemapDiscoverer = (*Discoverer)(nil)
