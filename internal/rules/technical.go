package rules

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"github.com/user/seo-audit-service/internal/entity"
)

var technicalRules = []pageRule{
	{"canonical_missing", entity.CategoryTechnical, entity.SeverityNotice, 5, "page has no canonical URL",
		func(p *entity.PageRecord) bool { return p.CanonicalURL == "" }},
	{"noindex", entity.CategoryTechnical, entity.SeverityWarning, 10, "page is excluded from indexing by meta robots",
		func(p *entity.PageRecord) bool { return strings.Contains(p.MetaRobots, "noindex") }},
	{"viewport_missing", entity.CategoryTechnical, entity.SeverityWarning, 10, "page has no viewport meta tag",
		func(p *entity.PageRecord) bool { return !p.HasViewport }},
	{"lang_missing", entity.CategoryTechnical, entity.SeverityNotice, 5, "page has no lang attribute",
		func(p *entity.PageRecord) bool { return p.Lang == "" }},
}

// TechnicalPhase scores crawlability, status codes and the link graph.
type TechnicalPhase struct{}

func (TechnicalPhase) Phase() entity.Phase { return entity.PhaseTechnical }

func (TechnicalPhase) Evaluate(ctx context.Context, in *entity.PhaseInput) (*entity.PhaseResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	c := newCollector()

	// Status codes over everything that was fetched, including non-HTML responses.
	errorPages := lo.Filter(in.Pages, func(p *entity.PageRecord, _ int) bool { return entity.IsBrokenStatus(p.StatusCode) })
	for _, p := range errorPages {
		sev := entity.SeverityWarning
		if p.StatusCode >= 500 {
			sev = entity.SeverityCritical
		}
		c.issue(entity.CategoryTechnical, sev, "http_error", p.URL, fmt.Sprintf("page returned status %d", p.StatusCode))
	}
	c.share(entity.CategoryTechnical, 30, len(errorPages), len(in.Pages))

	for _, e := range in.FailedEntries {
		c.issue(entity.CategoryTechnical, entity.SeverityWarning, "fetch_failed", e.URL, "page could not be fetched: "+e.LastError)
	}
	c.share(entity.CategoryTechnical, 20, len(in.FailedEntries), len(in.Pages)+len(in.FailedEntries))

	chains := lo.Filter(in.Pages, func(p *entity.PageRecord, _ int) bool { return p.RedirectHops > 1 })
	for _, p := range chains {
		c.issue(entity.CategoryTechnical, entity.SeverityNotice, "redirect_chain", p.RequestedURL,
			fmt.Sprintf("reached through %d redirects", p.RedirectHops))
	}
	c.share(entity.CategoryTechnical, 5, len(chains), len(in.Pages))

	pages := lo.Filter(in.Pages, func(p *entity.PageRecord, _ int) bool { return Analyzable(p) })
	c.applyPageRules(pages, technicalRules)

	evaluateLinks(c, in.Links)

	return c.result(entity.PhaseTechnical), nil
}

func evaluateLinks(c *collector, links []*entity.LinkEdge) {
	validated := lo.Filter(links, func(e *entity.LinkEdge, _ int) bool { return e.Validated() })
	for _, linkType := range []entity.LinkType{entity.LinkInternal, entity.LinkExternal} {
		ofType := lo.Filter(validated, func(e *entity.LinkEdge, _ int) bool { return e.Type == linkType })
		broken := lo.Filter(ofType, func(e *entity.LinkEdge, _ int) bool { return e.Broken })
		for _, e := range broken {
			msg := fmt.Sprintf("broken %s link to %s", linkType, e.ToURL)
			if e.StatusCode != nil {
				msg = fmt.Sprintf("%s (status %d)", msg, *e.StatusCode)
			} else if e.Error != "" {
				msg = fmt.Sprintf("%s (%s)", msg, e.Error)
			}
			c.issue(entity.CategoryLinks, entity.SeverityCritical, "broken_"+string(linkType)+"_link", e.FromURL, msg)
		}
		points := 40
		if linkType == entity.LinkExternal {
			points = 20
		}
		c.share(entity.CategoryLinks, points, len(broken), len(ofType))
	}

	redirected := lo.Filter(validated, func(e *entity.LinkEdge, _ int) bool { return !e.Broken && e.RedirectHops > 0 })
	for _, e := range redirected {
		c.issue(entity.CategoryLinks, entity.SeverityNotice, "redirected_link", e.FromURL,
			fmt.Sprintf("link to %s redirects %d times", e.ToURL, e.RedirectHops))
	}
	c.share(entity.CategoryLinks, 10, len(redirected), len(validated))

	internal := lo.Filter(links, func(e *entity.LinkEdge, _ int) bool { return e.Type == entity.LinkInternal })
	nofollow := lo.Filter(internal, func(e *entity.LinkEdge, _ int) bool { return e.Nofollow })
	for _, e := range nofollow {
		c.issue(entity.CategoryLinks, entity.SeverityNotice, "internal_nofollow", e.FromURL, "internal link to "+e.ToURL+" is nofollow")
	}
	c.share(entity.CategoryLinks, 5, len(nofollow), len(internal))
}
