package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/user/seo-audit-service/internal/entity"
	"github.com/user/seo-audit-service/internal/repository"
	"github.com/user/seo-audit-service/pkg/urlutil"
)

// CreateAuditInput is an audit request as received by the API.
type CreateAuditInput struct {
	URL        string
	OrgID      string
	PagesLimit int
	// CrawlDepth is nil when the request did not set one; zero crawls the seed only.
	CrawlDepth *int
}

// AuditManager defines the interface for requesting audits and reading their state.
type AuditManager interface {
	Create(ctx context.Context, in CreateAuditInput) (*entity.Audit, error)
	Get(ctx context.Context, id string) (*entity.Audit, error)
}

type auditManagerUseCase struct {
	d *Deps
}

// NewAuditManager creates a new AuditManager use case.
func NewAuditManager(d *Deps) AuditManager {
	return &auditManagerUseCase{d: d}
}

func (uc *auditManagerUseCase) Create(ctx context.Context, in CreateAuditInput) (*entity.Audit, error) {
	if _, ok := urlutil.Normalize(in.URL, ""); !ok || urlutil.ExtractHost(in.URL) == "" {
		return nil, fmt.Errorf("%w: %q", repository.ErrInvalidSeed, in.URL)
	}

	a := &entity.Audit{
		ID:         uuid.NewString(),
		OrgID:      in.OrgID,
		TargetURL:  in.URL,
		Status:     entity.AuditQueued,
		PagesLimit: clampLimit(in.PagesLimit, uc.d.Settings.DefaultPagesLimit, 1, uc.d.Settings.MaxPagesLimit),
		CrawlDepth: uc.d.Settings.DefaultCrawlDepth,
		CreatedAt:  time.Now().UTC(),
	}
	if in.CrawlDepth != nil {
		a.CrawlDepth = max(0, min(*in.CrawlDepth, uc.d.Settings.MaxCrawlDepth))
	}
	if err := uc.d.Audits.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create audit: %w", err)
	}

	task := &entity.Task{Type: entity.TaskStartAudit, AuditID: a.ID}
	if err := uc.d.Queue.Submit(ctx, task, 0); err != nil {
		if markErr := uc.d.Audits.MarkFailed(ctx, a.ID, "failed to schedule audit"); markErr != nil {
			uc.d.Logger.Error("failed to mark unscheduled audit failed", zap.String("audit_id", a.ID), zap.Error(markErr))
		}
		return nil, fmt.Errorf("failed to submit start task for audit %s: %w", a.ID, err)
	}

	uc.d.Logger.Info("audit created",
		zap.String("audit_id", a.ID),
		zap.String("url", a.TargetURL),
		zap.Int("pages_limit", a.PagesLimit),
		zap.Int("crawl_depth", a.CrawlDepth))
	return a, nil
}

func (uc *auditManagerUseCase) Get(ctx context.Context, id string) (*entity.Audit, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, repository.ErrNotFound
	}
	a, err := uc.d.Audits.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to load audit %s: %w", id, err)
	}
	return a, nil
}

// clampLimit applies the default to unset (zero or negative) values and bounds the result.
func clampLimit(v, def, lo, hi int) int {
	if v <= 0 {
		v = def
	}
	return max(lo, min(v, hi))
}
