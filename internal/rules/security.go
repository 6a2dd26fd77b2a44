package rules

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/user/seo-audit-service/internal/entity"
)

func headerMissing(name string) func(p *entity.PageRecord) bool {
	return func(p *entity.PageRecord) bool {
		_, ok := p.Extras.SecurityHeaders[name]
		return !ok
	}
}

var securityRules = []pageRule{
	{"csp_missing", entity.CategorySecurity, entity.SeverityWarning, 10, "Content-Security-Policy header missing",
		headerMissing("content-security-policy")},
	{"x_frame_options_missing", entity.CategorySecurity, entity.SeverityWarning, 10, "X-Frame-Options header missing",
		headerMissing("x-frame-options")},
	{"x_content_type_options_missing", entity.CategorySecurity, entity.SeverityWarning, 10, "X-Content-Type-Options header missing",
		headerMissing("x-content-type-options")},
	{"referrer_policy_missing", entity.CategorySecurity, entity.SeverityNotice, 5, "Referrer-Policy header missing",
		headerMissing("referrer-policy")},
	{"mixed_content", entity.CategorySecurity, entity.SeverityCritical, 15, "https page loads resources over http",
		func(p *entity.PageRecord) bool { return p.Extras.MixedContent > 0 }},
}

var hstsRule = pageRule{"hsts_missing", entity.CategorySecurity, entity.SeverityWarning, 15, "Strict-Transport-Security header missing",
	headerMissing("strict-transport-security")}

// SecurityPhase scores transport security and response hardening headers.
type SecurityPhase struct{}

func (SecurityPhase) Phase() entity.Phase { return entity.PhaseSecurity }

func (SecurityPhase) Evaluate(ctx context.Context, in *entity.PhaseInput) (*entity.PhaseResult, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	c := newCollector()

	seed := in.Audit.NormalizedURL
	if seed == "" {
		seed = in.Audit.TargetURL
	}
	if !strings.HasPrefix(seed, "https://") {
		c.issue(entity.CategorySecurity, entity.SeverityCritical, "no_https", seed, "site is not served over https")
		c.penalise(entity.CategorySecurity, 40)
	}

	pages := lo.Filter(in.Pages, func(p *entity.PageRecord, _ int) bool { return Analyzable(p) })
	c.applyPageRules(pages, securityRules)

	secure := lo.Filter(pages, func(p *entity.PageRecord, _ int) bool { return strings.HasPrefix(p.URL, "https://") })
	c.applyPageRules(secure, []pageRule{hstsRule})

	return c.result(entity.PhaseSecurity), nil
}
