package rules

import (
	"context"
	"fmt"

	"github.com/samber/lo"

	"github.com/user/seo-audit-service/internal/entity"
)

const (
	titleMaxLength       = 60
	titleMinLength       = 10
	descriptionMaxLength = 160
	thinContentWords     = 300
)

var contentRules = []pageRule{
	{"title_missing", entity.CategoryOnPage, entity.SeverityCritical, 20, "page has no <title>",
		func(p *entity.PageRecord) bool { return p.Title == "" }},
	{"title_too_long", entity.CategoryOnPage, entity.SeverityNotice, 5, fmt.Sprintf("title is longer than %d characters", titleMaxLength),
		func(p *entity.PageRecord) bool { return p.TitleLength > titleMaxLength }},
	{"title_too_short", entity.CategoryOnPage, entity.SeverityNotice, 5, fmt.Sprintf("title is shorter than %d characters", titleMinLength),
		func(p *entity.PageRecord) bool { return p.Title != "" && p.TitleLength < titleMinLength }},
	{"meta_description_missing", entity.CategoryOnPage, entity.SeverityWarning, 15, "page has no meta description",
		func(p *entity.PageRecord) bool { return p.MetaDescription == "" }},
	{"meta_description_too_long", entity.CategoryOnPage, entity.SeverityNotice, 5, fmt.Sprintf("meta description is longer than %d characters", descriptionMaxLength),
		func(p *entity.PageRecord) bool { return p.MetaDescriptionLen > descriptionMaxLength }},
	{"h1_missing", entity.CategoryOnPage, entity.SeverityWarning, 15, "page has no <h1>",
		func(p *entity.PageRecord) bool { return p.H1Count == 0 }},
	{"h1_multiple", entity.CategoryOnPage, entity.SeverityNotice, 5, "page has more than one <h1>",
		func(p *entity.PageRecord) bool { return p.H1Count > 1 }},
	{"thin_content", entity.CategoryContent, entity.SeverityWarning, 30, fmt.Sprintf("page has fewer than %d words", thinContentWords),
		func(p *entity.PageRecord) bool { return p.WordCount < thinContentWords }},
	{"image_alt_missing", entity.CategoryContent, entity.SeverityWarning, 15, "images without alt text",
		func(p *entity.PageRecord) bool { return p.ImagesMissingAlt > 0 }},
	{"structured_data_missing", entity.CategoryContent, entity.SeverityNotice, 5, "page has no structured data",
		func(p *entity.PageRecord) bool { return !p.HasJSONLD && !p.HasMicrodata }},
}

// ContentPhase scores on-page markup and content quality.
type ContentPhase struct{}

func (ContentPhase) Phase() entity.Phase { return entity.PhaseContent }

func (ContentPhase) Evaluate(ctx context.Context, in *entity.PhaseInput) (*entity.PhaseResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	c := newCollector()
	pages := lo.Filter(in.Pages, func(p *entity.PageRecord, _ int) bool { return Analyzable(p) })
	if len(pages) == 0 {
		c.issue(entity.CategoryOnPage, entity.SeverityCritical, "no_analyzable_pages", in.Audit.TargetURL, "no page could be fetched and parsed")
		c.penalise(entity.CategoryOnPage, maxPenalty)
		c.penalise(entity.CategoryContent, maxPenalty)
		return c.result(entity.PhaseContent), nil
	}

	c.applyPageRules(pages, contentRules)

	duplicates := func(code, what string, points int, key func(*entity.PageRecord) string) {
		affected := 0
		for _, group := range DuplicateGroups(pages, key) {
			affected += len(group)
			for _, p := range group {
				c.issue(entity.CategoryContent, entity.SeverityWarning, code, p.URL,
					fmt.Sprintf("%s shared with %d other pages", what, len(group)-1))
			}
		}
		c.share(entity.CategoryContent, points, affected, len(pages))
	}
	duplicates("duplicate_title", "title", 15, Title)
	duplicates("duplicate_meta_description", "meta description", 10, MetaDescription)

	return c.result(entity.PhaseContent), nil
}
