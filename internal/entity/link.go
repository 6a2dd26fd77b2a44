package entity

import "time"

type LinkType string

const (
	LinkInternal LinkType = "internal"
	LinkExternal LinkType = "external"
)

// LinkEdge is a directed edge of the audit's link graph. Unique per
// (AuditID, FromURL, NormalizedToURL). Validation fields stay nil until the link validator
// (or a matching page record) fills them in.
type LinkEdge struct {
	ID              int64
	AuditID         string
	FromURL         string
	ToURL           string
	NormalizedToURL string
	Type            LinkType
	Nofollow        bool
	AnchorText      string

	StatusCode   *int
	FinalURL     string
	RedirectHops int
	Broken       bool
	Error        string
	ValidatedAt  *time.Time
}

// Validated reports whether the edge has a known status.
func (e *LinkEdge) Validated() bool {
	return e.ValidatedAt != nil
}

// LinkValidation is the result written back to an edge.
type LinkValidation struct {
	StatusCode   *int
	FinalURL     string
	RedirectHops int
	Broken       bool
	Error        string
}

// IsBrokenStatus is the single definition of a broken HTTP status.
func IsBrokenStatus(code int) bool {
	return code >= 400
}
