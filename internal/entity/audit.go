package entity

import "time"

type AuditStatus string

const (
	AuditQueued    AuditStatus = "queued"
	AuditRunning   AuditStatus = "running"
	AuditCompleted AuditStatus = "completed"
	AuditFailed    AuditStatus = "failed"
)

// Terminal reports whether no further mutation of the audit is expected.
func (s AuditStatus) Terminal() bool {
	return s == AuditCompleted || s == AuditFailed
}

// Category is a scored dimension of the audit.
type Category string

const (
	CategoryOnPage      Category = "onpage"
	CategoryContent     Category = "content"
	CategoryTechnical   Category = "technical"
	CategoryLinks       Category = "links"
	CategoryPerformance Category = "performance"
	CategorySecurity    Category = "security"
)

// Phase is an independently scheduled rule pipeline contributing penalties to the score map.
type Phase string

const (
	PhaseContent     Phase = "content"
	PhaseTechnical   Phase = "technical"
	PhasePerformance Phase = "performance"
	PhaseSecurity    Phase = "security"
)

// Categories lists the categories a phase owns. Phases own disjoint sets.
func (p Phase) Categories() []Category {
	switch p {
	case PhaseContent:
		return []Category{CategoryOnPage, CategoryContent}
	case PhaseTechnical:
		return []Category{CategoryTechnical, CategoryLinks}
	case PhasePerformance:
		return []Category{CategoryPerformance}
	case PhaseSecurity:
		return []Category{CategorySecurity}
	}
	return nil
}

// CrawlStats summarises the link graph once the frontier is exhausted.
type CrawlStats struct {
	BrokenLinks          int `json:"broken_links"`
	RedirectChains       int `json:"redirect_chains"`
	DuplicateTitleGroups int `json:"duplicate_title_groups"`
	DuplicateMetaGroups  int `json:"duplicate_meta_groups"`
	FailedPages          int `json:"failed_pages"`
	ValidatedLinks       int `json:"validated_links"`
}

// Audit is the aggregate root of one crawl run.
type Audit struct {
	ID            string
	OrgID         string
	TargetURL     string
	NormalizedURL string
	Host          string
	Status        AuditStatus

	PagesLimit      int
	CrawlDepth      int
	PagesScanned    int
	PagesDiscovered int
	ProgressPercent int

	CategoryScores map[Category]int
	IssueCounts    map[Category]int
	PendingPhases  []Phase
	OverallScore   *int
	OverallGrade   string
	CrawlStats     CrawlStats

	ErrorMessage string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
}

// CrawlProgress is the progress percentage reported while pages are still being fetched.
func CrawlProgress(scanned, discovered int) int {
	if discovered <= 0 {
		return 0
	}
	p := 90 * scanned / discovered
	if p > 90 {
		p = 90
	}
	return p
}

const (
	ProgressFinalizing = 95
	ProgressComplete   = 100
)
