package rules

import (
	"context"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/user/seo-audit-service/internal/entity"
)

const (
	heavyPageBytes = 2 << 20
	slowResponseMS = 1500
)

var performanceRules = []pageRule{
	{"page_too_heavy", entity.CategoryPerformance, entity.SeverityWarning, 10, fmt.Sprintf("HTML document is larger than %d bytes", heavyPageBytes),
		func(p *entity.PageRecord) bool { return p.SizeBytes > heavyPageBytes }},
	{"slow_response", entity.CategoryPerformance, entity.SeverityWarning, 15, fmt.Sprintf("server responded slower than %d ms", slowResponseMS),
		func(p *entity.PageRecord) bool { return p.ResponseMS > slowResponseMS }},
}

// PerformancePhase turns the composite lab score and transfer facts into a performance penalty.
// Without a composite score only the transfer rules apply.
type PerformancePhase struct{}

func (PerformancePhase) Phase() entity.Phase { return entity.PhasePerformance }

func (PerformancePhase) Evaluate(ctx context.Context, in *entity.PhaseInput) (*entity.PhaseResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	c := newCollector()

	if in.CompositePerformance != nil {
		composite := *in.CompositePerformance
		c.penalise(entity.CategoryPerformance, int(math.Round(100-composite)))
		if composite < 50 {
			c.issue(entity.CategoryPerformance, entity.SeverityCritical, "poor_lab_performance", in.Audit.TargetURL,
				fmt.Sprintf("composite performance score is %.0f", composite))
		} else if composite < 90 {
			c.issue(entity.CategoryPerformance, entity.SeverityWarning, "lab_performance_needs_work", in.Audit.TargetURL,
				fmt.Sprintf("composite performance score is %.0f", composite))
		}
	}

	fetched := lo.Filter(in.Pages, func(p *entity.PageRecord, _ int) bool { return p.StatusCode > 0 })
	c.applyPageRules(fetched, performanceRules)

	return c.result(entity.PhasePerformance), nil
}
