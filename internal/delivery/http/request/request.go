package request

// CreateAuditRequest is the body of POST /api/audits.
type CreateAuditRequest struct {
	URL        string `json:"url"`
	OrgID      string `json:"org_id"`
	PagesLimit int    `json:"pages_limit"`
	CrawlDepth *int   `json:"crawl_depth"`
}
