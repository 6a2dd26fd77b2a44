// Package rules is the default rule catalogue. Each phase turns page facts into issues and
// penalty points for the categories it owns.
package rules

import (
	"context"
	"math"
	"strings"

	"github.com/samber/lo"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

const maxPenalty = 100

// pageRule penalises the share of pages matching it: a rule matching every page costs its
// full points, a rule matching one page in fifty costs at least one point.
type pageRule struct {
	code     string
	category entity.Category
	severity entity.Severity
	points   int
	message  string
	match    func(p *entity.PageRecord) bool
}

type collector struct {
	issues    []entity.Issue
	penalties map[entity.Category]int
}

func newCollector() *collector {
	return &collector{penalties: make(map[entity.Category]int)}
}

func (c *collector) issue(cat entity.Category, sev entity.Severity, code, url, message string) {
	c.issues = append(c.issues, entity.Issue{Code: code, Category: cat, Severity: sev, URL: url, Message: message})
}

func (c *collector) penalise(cat entity.Category, points int) {
	c.penalties[cat] += points
}

// share adds points scaled by affected/total.
func (c *collector) share(cat entity.Category, points, affected, total int) {
	if affected == 0 || total == 0 {
		return
	}
	p := int(math.Round(float64(points) * float64(affected) / float64(total)))
	c.penalise(cat, max(p, 1))
}

func (c *collector) applyPageRules(pages []*entity.PageRecord, rules []pageRule) {
	for _, r := range rules {
		hits := lo.Filter(pages, func(p *entity.PageRecord, _ int) bool { return r.match(p) })
		for _, p := range hits {
			c.issue(r.category, r.severity, r.code, p.URL, r.message)
		}
		c.share(r.category, r.points, len(hits), len(pages))
	}
}

func (c *collector) result(phase entity.Phase) *entity.PhaseResult {
	penalties := make(map[entity.Category]int, len(c.penalties))
	for _, cat := range phase.Categories() {
		penalties[cat] = min(c.penalties[cat], maxPenalty)
	}
	return &entity.PhaseResult{Phase: phase, Issues: c.issues, Penalties: penalties}
}

// Analyzable reports whether the page was parsed, i.e. a 2xx HTML page within the size limit.
func Analyzable(p *entity.PageRecord) bool {
	return !p.Skipped && p.StatusCode >= 200 && p.StatusCode < 300
}

// DuplicateGroups groups analyzable pages by a normalized key and returns the groups with
// more than one page. Empty keys are ignored.
func DuplicateGroups(pages []*entity.PageRecord, key func(p *entity.PageRecord) string) [][]*entity.PageRecord {
	groups := lo.GroupBy(lo.Filter(pages, func(p *entity.PageRecord, _ int) bool {
		return Analyzable(p) && key(p) != ""
	}), func(p *entity.PageRecord) string {
		return strings.ToLower(strings.TrimSpace(key(p)))
	})
	return lo.Filter(lo.Values(groups), func(g []*entity.PageRecord, _ int) bool { return len(g) > 1 })
}

func Title(p *entity.PageRecord) string           { return p.Title }
func MetaDescription(p *entity.PageRecord) string { return p.MetaDescription }

// Default returns the catalogue keyed by phase.
func Default() map[entity.Phase]repository.RulePhase {
	return map[entity.Phase]repository.RulePhase{
		entity.PhaseContent:     ContentPhase{},
		entity.PhaseTechnical:   TechnicalPhase{},
		entity.PhasePerformance: PerformancePhase{},
		entity.PhaseSecurity:    SecurityPhase{},
	}
}

var (
	_ repository.RulePhase = ContentPhase{}
	_ repository.RulePhase = TechnicalPhase{}
	_ repository.RulePhase = PerformancePhase{}
	_ repository.RulePhase = SecurityPhase{}
)

// checkContext lets a cancelled task stop before any rule runs.
func checkContext(ctx context.Context) error {
	return ctx.Err()
}
