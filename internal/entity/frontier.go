package entity

import (
	"fmt"
	"time"
)

type FrontierStatus string

const (
	FrontierQueued     FrontierStatus = "queued"
	FrontierProcessing FrontierStatus = "processing"
	FrontierDone       FrontierStatus = "done"
	FrontierFailed     FrontierStatus = "failed"
)

const (
	DiscoveredFromSeed    = "seed"
	DiscoveredFromSitemap = "sitemap"
)

// CanTransition enforces the frontier state machine. There is no way back to queued.
func (s FrontierStatus) CanTransition(to FrontierStatus) bool {
	switch s {
	case FrontierQueued:
		// queued -> done is the bookkeeping skip once the page budget is spent.
		return to == FrontierProcessing || to == FrontierDone
	case FrontierProcessing:
		return to == FrontierDone || to == FrontierFailed
	}
	return false
}

// TransitionError is returned when a store refuses a state change.
type TransitionError struct {
	EntryID int64
	From    FrontierStatus
	To      FrontierStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("frontier entry %d: invalid transition %s -> %s", e.EntryID, e.From, e.To)
}

// FrontierEntry is one discoverable URL within one audit. Unique per (AuditID, NormalizedURL).
type FrontierEntry struct {
	ID             int64
	AuditID        string
	URL            string
	NormalizedURL  string
	Depth          int
	Status         FrontierStatus
	DiscoveredFrom string
	LastError      string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FrontierCounts is the durable snapshot the coordination step is derived from.
type FrontierCounts struct {
	Queued     int // queued entries with depth <= crawl depth
	Processing int
	Done       int
	Failed     int
}
