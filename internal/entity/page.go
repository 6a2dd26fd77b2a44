package entity

import "time"

// PerformanceMetrics holds lab measurements for one device profile.
type PerformanceMetrics struct {
	Score            float64 `json:"score"`
	TTFBMS           float64 `json:"ttfb_ms"`
	FCPMS            float64 `json:"fcp_ms"`
	DOMContentLoaded float64 `json:"dom_content_loaded_ms"`
	LoadMS           float64 `json:"load_ms"`
}

// PageExtras is the structured side map for facts that vary from page to page.
type PageExtras struct {
	SchemaTypes     []string          `json:"schema_types,omitempty"`
	SecurityHeaders map[string]string `json:"security_headers,omitempty"`
	OpenGraph       map[string]string `json:"open_graph,omitempty"`
	MixedContent    int               `json:"mixed_content,omitempty"`
}

// PageRecord mirrors the `page_records` table. One row per (AuditID, URL) where URL is the
// final URL after redirects.
type PageRecord struct {
	ID            int64
	AuditID       string
	URL           string
	NormalizedURL string
	RequestedURL  string
	Depth         int
	StatusCode    int
	ContentType   string
	SizeBytes     int64
	RedirectHops  int
	ResponseMS    int
	Skipped       bool // fetched but not parsed (oversized or not HTML)

	Title              string
	TitleLength        int
	MetaDescription    string
	MetaDescriptionLen int
	MetaTagCount       int
	H1Count            int
	H2Count            int
	H3Count            int
	WordCount          int
	CanonicalURL       string
	MetaRobots         string
	Lang               string
	HasViewport        bool
	ImageCount         int
	ImagesMissingAlt   int
	InternalLinks      int
	ExternalLinks      int

	HasJSONLD      bool
	HasMicrodata   bool
	HasOpenGraph   bool
	HasTwitterCard bool

	Extras PageExtras // Stored as JSONB in PostgreSQL

	MobilePerf  *PerformanceMetrics
	DesktopPerf *PerformanceMetrics

	CrawledAt time.Time
}

// Link is an anchor as found by the page parser, before resolution.
type Link struct {
	Href     string
	Anchor   string
	Nofollow bool
}

// PageFacts is what the page parser extracts from one HTML document.
type PageFacts struct {
	Title            string
	MetaDescription  string
	MetaTagCount     int
	H1Count          int
	H2Count          int
	H3Count          int
	WordCount        int
	CanonicalURL     string
	MetaRobots       string
	Lang             string
	HasViewport      bool
	ImageCount       int
	ImagesMissingAlt int
	HasJSONLD        bool
	HasMicrodata     bool
	HasOpenGraph     bool
	HasTwitterCard   bool
	SchemaTypes      []string
	OpenGraph        map[string]string
	SecurityHeaders  map[string]string
	MixedContent     int
	BaseHref         string
	Links            []Link
}
