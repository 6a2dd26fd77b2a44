package usecase

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/samber/lo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/pkg/metrics"
	"github.com/user/seo-audit-service/pkg/urlutil"
)

// LinkValidator fills in the status of every unvalidated edge once the frontier is exhausted.
type LinkValidator struct {
	d *Deps
}

func NewLinkValidator(d *Deps) *LinkValidator {
	return &LinkValidator{d: d}
}

// Validate resolves internal edges from crawled pages where possible and probes the rest.
// External edges are limited to a sample. It returns the number of edges it validated.
func (v *LinkValidator) Validate(ctx context.Context, auditID string) (int, error) {
	pages, err := v.d.Pages.ListByAudit(ctx, auditID)
	if err != nil {
		return 0, fmt.Errorf("failed to list pages of %s: %w", auditID, err)
	}
	byURL := make(map[string]*entity.PageRecord, 2*len(pages))
	for _, p := range pages {
		byURL[p.NormalizedURL] = p
		if requested, ok := urlutil.Normalize(p.RequestedURL, ""); ok {
			if _, taken := byURL[requested]; !taken {
				byURL[requested] = p
			}
		}
	}

	internal, err := v.d.Links.ListUnvalidated(ctx, auditID, entity.LinkInternal, 0)
	if err != nil {
		return 0, fmt.Errorf("failed to list internal links of %s: %w", auditID, err)
	}
	external, err := v.d.Links.ListUnvalidated(ctx, auditID, entity.LinkExternal, v.d.Settings.ExternalValidationSample)
	if err != nil {
		return 0, fmt.Errorf("failed to list external links of %s: %w", auditID, err)
	}

	var validated atomic.Int64
	var toProbe []*entity.LinkEdge
	for _, e := range internal {
		p, ok := byURL[e.NormalizedToURL]
		if !ok {
			toProbe = append(toProbe, e)
			continue
		}
		status := p.StatusCode
		res := entity.LinkValidation{
			StatusCode:   &status,
			FinalURL:     p.URL,
			RedirectHops: p.RedirectHops,
			Broken:       entity.IsBrokenStatus(status),
		}
		if err := v.d.Links.SaveValidation(ctx, e.ID, res); err != nil {
			return int(validated.Load()), fmt.Errorf("failed to save validation of link %d: %w", e.ID, err)
		}
		metrics.LinkProbesTotal.WithLabelValues(string(e.Type), "page_match").Inc()
		validated.Add(1)
	}
	toProbe = append(toProbe, external...)

	// One probe per distinct target, shared by every edge pointing at it.
	targets := lo.GroupBy(toProbe, func(e *entity.LinkEdge) string { return e.NormalizedToURL })

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, v.d.Settings.LinkValidationWorkers))
	for _, edges := range targets {
		g.Go(func() error {
			res, result := v.probe(gctx, edges[0])
			for _, e := range edges {
				if err := v.d.Links.SaveValidation(gctx, e.ID, res); err != nil {
					return fmt.Errorf("failed to save validation of link %d: %w", e.ID, err)
				}
				metrics.LinkProbesTotal.WithLabelValues(string(e.Type), result).Inc()
				validated.Add(1)
			}
			return nil
		})
	}
	err = g.Wait()

	v.d.Logger.Info("links validated",
		zap.String("audit_id", auditID),
		zap.Int("page_matches", len(internal)-countInternal(toProbe)),
		zap.Int("probed_targets", len(targets)),
		zap.Int64("validated", validated.Load()))
	return int(validated.Load()), err
}

// probe never fails: a probe error is recorded as a broken link.
func (v *LinkValidator) probe(ctx context.Context, e *entity.LinkEdge) (entity.LinkValidation, string) {
	res, err := v.d.Prober.Probe(ctx, e.ToURL)
	if err != nil {
		v.d.Logger.Debug("link probe failed", zap.String("url", e.ToURL), zap.Error(err))
		return entity.LinkValidation{Broken: true, Error: err.Error()}, "error"
	}
	status := res.StatusCode
	out := entity.LinkValidation{
		StatusCode:   &status,
		FinalURL:     res.FinalURL,
		RedirectHops: res.RedirectHops,
		Broken:       entity.IsBrokenStatus(status),
	}
	if out.Broken {
		return out, "broken"
	}
	return out, "ok"
}

func countInternal(edges []*entity.LinkEdge) int {
	return lo.CountBy(edges, func(e *entity.LinkEdge) bool { return e.Type == entity.LinkInternal })
}
