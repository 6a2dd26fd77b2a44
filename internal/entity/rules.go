package entity

type Severity string

const (
	SeverityCritical Severity = "critical"
	SeverityWarning  Severity = "warning"
	SeverityNotice   Severity = "notice"
)

// Issue is one finding of a rule phase.
type Issue struct {
	Code     string   `json:"code"`
	Category Category `json:"category"`
	Severity Severity `json:"severity"`
	URL      string   `json:"url,omitempty"`
	Message  string   `json:"message"`
}

// PhaseResult is everything the score aggregator consumes from a rule phase.
type PhaseResult struct {
	Phase     Phase
	Issues    []Issue
	Penalties map[Category]int
}

// PhaseInput is what a rule phase evaluates.
type PhaseInput struct {
	Audit *Audit
	Pages []*PageRecord
	Links []*LinkEdge
	// FailedEntries are frontier entries that never produced a page.
	FailedEntries []*FrontierEntry
	// CompositePerformance is set by the performance phase when lab data exists.
	CompositePerformance *float64
}
