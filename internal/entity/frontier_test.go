package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrontierStatus_CanTransition(t *testing.T) {
	allowed := map[FrontierStatus][]FrontierStatus{
		FrontierQueued:     {FrontierProcessing, FrontierDone},
		FrontierProcessing: {FrontierDone, FrontierFailed},
		FrontierDone:       {},
		FrontierFailed:     {},
	}
	all := []FrontierStatus{FrontierQueued, FrontierProcessing, FrontierDone, FrontierFailed}

	for from, targets := range allowed {
		for _, to := range all {
			want := false
			for _, target := range targets {
				if target == to {
					want = true
				}
			}
			assert.Equal(t, want, from.CanTransition(to), "%s -> %s", from, to)
		}
	}
}

func TestPhaseCategories_AreDisjoint(t *testing.T) {
	seen := map[Category]Phase{}
	for _, p := range []Phase{PhaseContent, PhaseTechnical, PhasePerformance, PhaseSecurity} {
		assert.NotEmpty(t, p.Categories())
		for _, c := range p.Categories() {
			owner, dup := seen[c]
			assert.False(t, dup, "%s owned by %s and %s", c, owner, p)
			seen[c] = p
		}
	}
}

func TestCrawlProgress(t *testing.T) {
	assert.Equal(t, 0, CrawlProgress(0, 0))
	assert.Equal(t, 45, CrawlProgress(1, 2))
	assert.Equal(t, 90, CrawlProgress(5, 5))
}

func TestTaskRetry(t *testing.T) {
	task := Task{ID: "t1", Type: TaskCrawlPage, Attempt: 0, Receipt: "r"}
	next := task.Retry()
	assert.Equal(t, 1, next.Attempt)
	assert.Empty(t, next.Receipt)
	assert.Equal(t, 0, task.Attempt)
}
