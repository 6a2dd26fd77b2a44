package usecase

import (
	"time"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/scoring"
	"github.com/user/seo-audit-service/pkg/config"
)

// Settings are the tunables shared by the audit use cases.
type Settings struct {
	CrawlConcurrency         int
	DispatchJitter           time.Duration
	FinalizeDelay            time.Duration
	FinalizeLockTTL          time.Duration
	ExternalLinksPerPage     int
	ExternalValidationSample int
	LinkValidationWorkers    int
	DefaultPagesLimit        int
	DefaultCrawlDepth        int
	MaxPagesLimit            int
	MaxCrawlDepth            int
	PerfSamplePages          int
	MeterTimeout             time.Duration
	Scoring                  scoring.Config
}

// NewSettings derives the use case settings from the process configuration.
func NewSettings(cfg *config.Config) Settings {
	return Settings{
		CrawlConcurrency:         cfg.CrawlConcurrency,
		DispatchJitter:           cfg.DispatchJitter(),
		FinalizeDelay:            cfg.FinalizeDelay(),
		FinalizeLockTTL:          cfg.TaskVisibility() / 2,
		ExternalLinksPerPage:     cfg.ExternalLinksPerPage,
		ExternalValidationSample: cfg.ExternalValidationSample,
		LinkValidationWorkers:    cfg.LinkValidationWorkers,
		DefaultPagesLimit:        cfg.DefaultPagesLimit,
		DefaultCrawlDepth:        cfg.DefaultCrawlDepth,
		MaxPagesLimit:            cfg.MaxPagesLimit,
		MaxCrawlDepth:            cfg.MaxCrawlDepth,
		PerfSamplePages:          cfg.PerfSamplePages,
		MeterTimeout:             5 * time.Second,
		Scoring: scoring.Config{
			Weights: scoring.Weights{
				entity.CategoryOnPage:      cfg.ScoreWeightOnpage,
				entity.CategoryContent:     cfg.ScoreWeightContent,
				entity.CategoryTechnical:   cfg.ScoreWeightTechnical,
				entity.CategoryLinks:       cfg.ScoreWeightLinks,
				entity.CategoryPerformance: cfg.ScoreWeightPerformance,
				entity.CategorySecurity:    cfg.ScoreWeightSecurity,
			},
			Bands: []scoring.GradeBand{
				{Min: cfg.GradeAMin, Grade: "A"},
				{Min: cfg.GradeBMin, Grade: "B"},
				{Min: cfg.GradeCMin, Grade: "C"},
				{Min: cfg.GradeDMin, Grade: "D"},
			},
		},
	}
}
