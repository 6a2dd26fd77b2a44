package response

import (
	"time"

	"github.com/user/seo-audit-service/internal/entity"
)

// AuditResponse is the public view of an audit.
type AuditResponse struct {
	ID              string                  `json:"id"`
	OrgID           string                  `json:"org_id,omitempty"`
	TargetURL       string                  `json:"target_url"`
	NormalizedURL   string                  `json:"normalized_url,omitempty"`
	Status          entity.AuditStatus      `json:"status"`
	PagesLimit      int                     `json:"pages_limit"`
	CrawlDepth      int                     `json:"crawl_depth"`
	PagesScanned    int                     `json:"pages_scanned"`
	PagesDiscovered int                     `json:"pages_discovered"`
	ProgressPercent int                     `json:"progress_percent"`
	CategoryScores  map[entity.Category]int `json:"category_scores,omitempty"`
	IssueCounts     map[entity.Category]int `json:"issue_counts,omitempty"`
	PendingPhases   []entity.Phase          `json:"pending_phases,omitempty"`
	OverallScore    *int                    `json:"overall_score,omitempty"`
	OverallGrade    string                  `json:"overall_grade,omitempty"`
	CrawlStats      *entity.CrawlStats      `json:"crawl_stats,omitempty"`
	ErrorMessage    string                  `json:"error_message,omitempty"`
	CreatedAt       time.Time               `json:"created_at"`
	StartedAt       *time.Time              `json:"started_at,omitempty"`
	CompletedAt     *time.Time              `json:"completed_at,omitempty"`
}

func NewAuditResponse(a *entity.Audit) AuditResponse {
	resp := AuditResponse{
		ID:              a.ID,
		OrgID:           a.OrgID,
		TargetURL:       a.TargetURL,
		NormalizedURL:   a.NormalizedURL,
		Status:          a.Status,
		PagesLimit:      a.PagesLimit,
		CrawlDepth:      a.CrawlDepth,
		PagesScanned:    a.PagesScanned,
		PagesDiscovered: a.PagesDiscovered,
		ProgressPercent: a.ProgressPercent,
		CategoryScores:  a.CategoryScores,
		IssueCounts:     a.IssueCounts,
		PendingPhases:   a.PendingPhases,
		OverallScore:    a.OverallScore,
		OverallGrade:    a.OverallGrade,
		ErrorMessage:    a.ErrorMessage,
		CreatedAt:       a.CreatedAt,
		StartedAt:       a.StartedAt,
		CompletedAt:     a.CompletedAt,
	}
	if a.Status == entity.AuditCompleted || a.ProgressPercent >= entity.ProgressFinalizing {
		stats := a.CrawlStats
		resp.CrawlStats = &stats
	}
	return resp
}

// HealthResponse reports the state of each backing service.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
