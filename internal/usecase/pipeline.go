package usecase

import (
	"context"

	"github.com/user/seo-audit-service/internal/entity"
)

// Pipeline wires the audit use cases that run behind the task queue.
type Pipeline struct {
	Coordinator *Coordinator
	Intake      *Intake
	Crawler     *PageCrawler
	Validator   *LinkValidator
	Finalizer   *Finalizer
	Phases      *PhaseScorer

	usage *usageRecorder
}

func NewPipeline(d *Deps) *Pipeline {
	usage := newUsageRecorder(d.Meter, d.Settings.MeterTimeout, d.Logger)
	coordinator := NewCoordinator(d)
	validator := NewLinkValidator(d)
	phases := NewPhaseScorer(d, usage)
	return &Pipeline{
		Coordinator: coordinator,
		Intake:      NewIntake(d, coordinator),
		Crawler:     NewPageCrawler(d, coordinator, usage),
		Validator:   validator,
		Finalizer:   NewFinalizer(d, coordinator, validator, phases),
		Phases:      phases,
		usage:       usage,
	}
}

// Handlers maps every task type to the use case that runs it.
func (p *Pipeline) Handlers() map[entity.TaskType]TaskHandler {
	return map[entity.TaskType]TaskHandler{
		entity.TaskStartAudit:    HandlerFuncs{Run: p.Intake.Start, OnExhausted: p.Intake.StartExhausted},
		entity.TaskCrawlPage:     HandlerFuncs{Run: p.Crawler.CrawlPage, OnExhausted: p.Crawler.CrawlExhausted},
		entity.TaskFinalizeAudit: HandlerFuncs{Run: p.Finalizer.Finalize, OnExhausted: p.Finalizer.FinalizeExhausted},
		entity.TaskScorePhase:    HandlerFuncs{Run: p.Phases.Run, OnExhausted: p.Phases.RunExhausted},
	}
}

// Flush waits for pending usage events.
func (p *Pipeline) Flush() {
	p.usage.wait()
}

// HandlerFuncs adapts a pair of functions to TaskHandler.
type HandlerFuncs struct {
	Run         func(ctx context.Context, task *entity.Task) error
	OnExhausted func(ctx context.Context, task *entity.Task, cause error) error
}

func (h HandlerFuncs) Handle(ctx context.Context, task *entity.Task) error {
	return h.Run(ctx, task)
}

func (h HandlerFuncs) Exhausted(ctx context.Context, task *entity.Task, cause error) error {
	if h.OnExhausted == nil {
		return nil
	}
	return h.OnExhausted(ctx, task, cause)
}
