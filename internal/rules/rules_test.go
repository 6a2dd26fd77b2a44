package rules

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/scoring"
)

func goodPage(url string) *entity.PageRecord {
	title := "A descriptive page title for " + url
	return &entity.PageRecord{
		URL:                url,
		StatusCode:         200,
		ContentType:        "text/html",
		SizeBytes:          20_000,
		ResponseMS:         200,
		Title:              title,
		TitleLength:        len(title),
		MetaDescription:    "Description of " + url,
		MetaDescriptionLen: len("Description of " + url),
		H1Count:            1,
		WordCount:          800,
		CanonicalURL:       url,
		Lang:               "en",
		HasViewport:        true,
		HasJSONLD:          true,
		Extras: entity.PageExtras{SecurityHeaders: map[string]string{
			"strict-transport-security": "max-age=63072000",
			"content-security-policy":   "default-src 'self'",
			"x-frame-options":           "DENY",
			"x-content-type-options":    "nosniff",
			"referrer-policy":           "no-referrer",
		}},
	}
}

func input(pages ...*entity.PageRecord) *entity.PhaseInput {
	return &entity.PhaseInput{
		Audit: &entity.Audit{TargetURL: "https://example.com", NormalizedURL: "https://example.com/"},
		Pages: pages,
	}
}

func codes(res *entity.PhaseResult) []string {
	var out []string
	for _, i := range res.Issues {
		out = append(out, i.Code)
	}
	return out
}

func TestPhases_CleanSiteHasNoPenalties(t *testing.T) {
	in := input(goodPage("https://example.com/"), goodPage("https://example.com/about"))
	for phase, rp := range Default() {
		assert.Equal(t, phase, rp.Phase())
		res, err := rp.Evaluate(context.Background(), in)
		require.NoError(t, err)
		assert.Empty(t, res.Issues, "phase %s", phase)
		for _, cat := range phase.Categories() {
			assert.Zero(t, res.Penalties[cat], "phase %s category %s", phase, cat)
		}
	}
}

func TestContentPhase(t *testing.T) {
	bad := goodPage("https://example.com/bad")
	bad.Title, bad.TitleLength = "", 0
	bad.H1Count = 3
	bad.WordCount = 40

	dupA, dupB := goodPage("https://example.com/a"), goodPage("https://example.com/b")
	dupB.Title = strings.ToUpper(dupA.Title)

	res, err := ContentPhase{}.Evaluate(context.Background(), input(bad, dupA, dupB, goodPage("https://example.com/c")))
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"title_missing", "h1_multiple", "thin_content", "duplicate_title", "duplicate_title"}, codes(res))
	// 20*1/4 + 5*1/4 -> 5 + 1
	assert.Equal(t, 6, res.Penalties[entity.CategoryOnPage])
	// 30*1/4 + 15*2/4 -> 8 + 8
	assert.Equal(t, 16, res.Penalties[entity.CategoryContent])
	assert.NotContains(t, res.Penalties, entity.CategoryTechnical)
}

func TestContentPhase_NoAnalyzablePages(t *testing.T) {
	res, err := ContentPhase{}.Evaluate(context.Background(), input(&entity.PageRecord{URL: "https://example.com/", StatusCode: 500}))
	require.NoError(t, err)
	assert.Equal(t, 100, res.Penalties[entity.CategoryOnPage])
	assert.Equal(t, 100, res.Penalties[entity.CategoryContent])
}

func TestTechnicalPhase(t *testing.T) {
	missing := &entity.PageRecord{URL: "https://example.com/gone", StatusCode: 404}
	redirected := goodPage("https://example.com/final")
	redirected.RequestedURL = "https://example.com/old"
	redirected.RedirectHops = 2
	noindex := goodPage("https://example.com/private")
	noindex.MetaRobots = "noindex, nofollow"

	status404 := 404
	status200 := 200
	in := input(goodPage("https://example.com/"), missing, redirected, noindex)
	in.FailedEntries = []*entity.FrontierEntry{{URL: "https://example.com/timeout", LastError: "fetch timed out"}}
	in.Links = []*entity.LinkEdge{
		validatedEdge(entity.LinkInternal, &status404, 0),
		validatedEdge(entity.LinkInternal, &status200, 0),
		validatedEdge(entity.LinkExternal, &status200, 1),
		{Type: entity.LinkExternal, ToURL: "https://unvalidated.example/"},
	}

	res, err := TechnicalPhase{}.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"http_error", "fetch_failed", "redirect_chain", "noindex", "broken_internal_link", "redirected_link",
	}, codes(res))
	// 30*1/4 + 20*1/5 + 5*1/4 + 10*1/3 -> 8 + 4 + 1 + 3
	assert.Equal(t, 16, res.Penalties[entity.CategoryTechnical])
	// 40*1/2 + 10*1/3 -> 20 + 3
	assert.Equal(t, 23, res.Penalties[entity.CategoryLinks])
}

func validatedEdge(linkType entity.LinkType, status *int, hops int) *entity.LinkEdge {
	e := &entity.LinkEdge{Type: linkType, FromURL: "https://example.com/", ToURL: "https://example.com/x", StatusCode: status, RedirectHops: hops}
	e.Broken = status != nil && entity.IsBrokenStatus(*status)
	now := time.Now()
	e.ValidatedAt = &now
	return e
}

func TestPerformancePhase(t *testing.T) {
	slow := goodPage("https://example.com/slow")
	slow.ResponseMS = 4000

	composite, ok := scoring.CompositePerformance(ptr(80), ptr(60))
	require.True(t, ok)
	in := input(goodPage("https://example.com/"), slow)
	in.CompositePerformance = &composite

	res, err := PerformancePhase{}.Evaluate(context.Background(), in)
	require.NoError(t, err)
	// (100 - 74) + 15*1/2 -> 26 + 8
	assert.Equal(t, 34, res.Penalties[entity.CategoryPerformance])
	assert.ElementsMatch(t, []string{"lab_performance_needs_work", "slow_response"}, codes(res))

	in.CompositePerformance = nil
	res, err = PerformancePhase{}.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 8, res.Penalties[entity.CategoryPerformance], "no composite means no composite penalty")
}

func TestSecurityPhase(t *testing.T) {
	plain := goodPage("http://example.com/")
	plain.Extras.SecurityHeaders = map[string]string{}

	in := input(plain)
	in.Audit.NormalizedURL = "http://example.com/"

	res, err := SecurityPhase{}.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{
		"no_https", "csp_missing", "x_frame_options_missing", "x_content_type_options_missing", "referrer_policy_missing",
	}, codes(res), "hsts only applies to https pages")
	assert.Equal(t, 75, res.Penalties[entity.CategorySecurity])
}

func TestPenaltiesAreCapped(t *testing.T) {
	var pages []*entity.PageRecord
	for _, u := range []string{"https://e.com/1", "https://e.com/2"} {
		p := goodPage(u)
		p.Title, p.TitleLength, p.MetaDescription, p.H1Count = "", 0, "", 0
		p.Extras.SecurityHeaders = nil
		p.Extras.MixedContent = 2
		pages = append(pages, p)
	}
	in := input(pages...)
	in.Audit.NormalizedURL = "http://e.com/"

	res, err := SecurityPhase{}.Evaluate(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, 100, res.Penalties[entity.CategorySecurity])
}

func TestDuplicateGroups(t *testing.T) {
	a, b, c := goodPage("https://e.com/a"), goodPage("https://e.com/b"), goodPage("https://e.com/c")
	a.Title, b.Title, c.Title = "Same", " same ", "Other"
	broken := &entity.PageRecord{URL: "https://e.com/x", StatusCode: 404, Title: "Same"}

	groups := DuplicateGroups([]*entity.PageRecord{a, b, c, broken}, Title)
	require.Len(t, groups, 1)
	assert.Len(t, groups[0], 2)
}

func TestEvaluate_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ContentPhase{}.Evaluate(ctx, input(goodPage("https://e.com/")))
	assert.ErrorIs(t, err, context.Canceled)
}

func ptr(v float64) *float64 { return &v }
