package usecase

import (
	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
)

// Deps wires the repositories and collaborators every audit use case draws from.
type Deps struct {
	Audits   repository.AuditRepository
	Frontier repository.FrontierRepository
	Pages    repository.PageRepository
	Links    repository.LinkRepository
	Queue    repository.TaskQueue
	Guard    repository.FinalizeGuard

	Fetcher  repository.PageFetcher
	Prober   repository.LinkProber
	Parser   repository.PageParser
	Sitemaps repository.SitemapDiscoverer
	// Perf is optional; without it the performance phase has no lab data.
	Perf  repository.PerformanceProbe
	Meter repository.UsageMeter
	Rules map[entity.Phase]repository.RulePhase

	Settings Settings
	Logger   *zap.Logger
}
