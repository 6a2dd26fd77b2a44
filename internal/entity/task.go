package entity

import "time"

type TaskType string

const (
	TaskStartAudit    TaskType = "audit.start"
	TaskCrawlPage     TaskType = "crawl.page"
	TaskFinalizeAudit TaskType = "audit.finalize"
	TaskScorePhase    TaskType = "audit.phase"
)

// Task is a unit of work on the durable queue. Delivery is at-least-once, so every handler
// must be safe to run twice.
type Task struct {
	ID         string    `json:"id"`
	Type       TaskType  `json:"type"`
	AuditID    string    `json:"audit_id"`
	EntryID    int64     `json:"entry_id,omitempty"`
	Phase      Phase     `json:"phase,omitempty"`
	Attempt    int       `json:"attempt"`
	EnqueuedAt time.Time `json:"enqueued_at"`

	// Receipt identifies the reserved copy for Ack. Set by the queue, never serialized.
	Receipt string `json:"-"`
}

// Retry returns a copy of the task for the next attempt.
func (t Task) Retry() *Task {
	next := t
	next.Attempt++
	next.Receipt = ""
	return &next
}
